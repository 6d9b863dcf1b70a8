// Package compress selects how generated documents are gzipped.
package compress

import (
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/pgzip"
)

// Strategy names accepted by New.
const (
	Single   = "single"
	Parallel = "parallel"
)

// Extension is the file suffix every strategy produces.
const Extension = ".gz"

// ErrUnknownStrategy is returned by New for names it does not recognise.
var ErrUnknownStrategy = errors.New("unknown compression strategy")

// Compressor wraps a writer with a gzip stream.
type Compressor interface {
	Name() string
	NewWriter(w io.Writer) (io.WriteCloser, error)
}

// Gzip writes one deflate stream on the calling goroutine.
type Gzip struct {
	Level int
}

func (Gzip) Name() string { return Single }

func (g Gzip) NewWriter(w io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(w, g.Level)
}

// ParallelGzip compresses fixed-size blocks concurrently. Output is a
// standard gzip member readable by any gzip decoder.
type ParallelGzip struct {
	Level     int
	BlockSize int
	Blocks    int
}

func (ParallelGzip) Name() string { return Parallel }

func (p ParallelGzip) NewWriter(w io.Writer) (io.WriteCloser, error) {
	zw, err := pgzip.NewWriterLevel(w, p.Level)
	if err != nil {
		return nil, err
	}
	if p.BlockSize > 0 && p.Blocks > 0 {
		if err := zw.SetConcurrency(p.BlockSize, p.Blocks); err != nil {
			return nil, fmt.Errorf("configuring parallel gzip: %w", err)
		}
	}
	return zw, nil
}

// New returns the strategy called name at the given gzip level. Use -1 for
// the library default.
func New(name string, level int) (Compressor, error) {
	if level < gzip.HuffmanOnly || level > gzip.BestCompression {
		return nil, fmt.Errorf("compression level %d out of range", level)
	}
	switch name {
	case Single:
		return Gzip{Level: level}, nil
	case Parallel, "":
		return ParallelGzip{Level: level}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Bytes compresses data in one call.
func Bytes(c Compressor, w io.Writer, data []byte) error {
	zw, err := c.NewWriter(w)
	if err != nil {
		return err
	}
	if _, err := zw.Write(data); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
