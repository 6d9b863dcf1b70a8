package repodata

import (
	"fmt"
	"regexp"
)

// Dependency sense bits.
const (
	senseMask   = 0x0f
	sensePrereq = 1 << 10
	senseRPMLib = 1 << 24
)

var senseNames = map[uint32]string{
	0x0: "",
	0x2: "LT",
	0x4: "GT",
	0x8: "EQ",
	0xa: "LE",
	0xc: "GE",
}

// ParseFlags maps the comparison bits of a dependency to the comparator
// written in the flags attribute. An empty result means no comparison.
func ParseFlags(flags uint32) (string, error) {
	name, ok := senseNames[flags&senseMask]
	if !ok {
		return "", fmt.Errorf("%w: %#x", ErrInvalidFlags, flags)
	}
	return name, nil
}

var evrPattern = regexp.MustCompile(`^(?:(\d+):)?(.+?)(?:-(.+))?$`)

// EVR is a dependency version split into its parts. Empty parts are absent.
type EVR struct {
	Epoch   string
	Version string
	Release string
}

// SplitEVR decomposes "[epoch:]version[-release]".
func SplitEVR(s string) (EVR, error) {
	if s == "" {
		return EVR{}, nil
	}
	m := evrPattern.FindStringSubmatch(s)
	if m == nil {
		return EVR{}, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}
	return EVR{Epoch: m[1], Version: m[2], Release: m[3]}, nil
}
