package repodata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	tests := []struct {
		flags   uint32
		want    string
		wantErr bool
	}{
		{flags: 0x0, want: ""},
		{flags: 0x2, want: "LT"},
		{flags: 0x4, want: "GT"},
		{flags: 0x8, want: "EQ"},
		{flags: 0xa, want: "LE"},
		{flags: 0xc, want: "GE"},
		{flags: 0x8 | sensePrereq, want: "EQ"},
		{flags: 0xc | senseRPMLib, want: "GE"},
		{flags: 0x1, wantErr: true},
		{flags: 0x3, wantErr: true},
		{flags: 0x5, wantErr: true},
		{flags: 0xe, wantErr: true},
		{flags: 0xf, wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseFlags(tt.flags)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidFlags, "flags %#x", tt.flags)
			continue
		}
		require.NoError(t, err, "flags %#x", tt.flags)
		assert.Equal(t, tt.want, got, "flags %#x", tt.flags)
	}
}

func TestSplitEVR(t *testing.T) {
	tests := []struct {
		in   string
		want EVR
	}{
		{in: "1:2.4.46-13.el7", want: EVR{Epoch: "1", Version: "2.4.46", Release: "13.el7"}},
		{in: "", want: EVR{}},
		{in: "5.0", want: EVR{Version: "5.0"}},
		{in: "2.17-317.el7", want: EVR{Version: "2.17", Release: "317.el7"}},
		{in: "0:1.0", want: EVR{Epoch: "0", Version: "1.0"}},
		{in: "1.0-rc1-2", want: EVR{Version: "1.0", Release: "rc1-2"}},
		{in: "1.0~beta", want: EVR{Version: "1.0~beta"}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := SplitEVR(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
