// Package digest computes the content checksums written into repository
// metadata: package ids, compressed document checksums and open checksums.
package digest

import (
	"crypto/sha1"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"

	godigest "github.com/opencontainers/go-digest"
)

// bufferSize bounds the chunk size used when streaming a file through the hash.
const bufferSize = 64 * 1024

// Hasher computes lowercase hex checksums with a single algorithm.
// A Hasher holds no mutable state and is safe for concurrent use.
type Hasher struct {
	typ       string
	algorithm godigest.Algorithm
}

// New returns a Hasher for the named algorithm. Accepted names are
// "sha" and "sha1" (tagged "sha" in metadata), "sha256" and "sha512".
func New(name string) (*Hasher, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "sha", "sha1":
		return &Hasher{typ: "sha"}, nil
	case "", "sha256":
		return &Hasher{typ: "sha256", algorithm: godigest.SHA256}, nil
	case "sha512":
		return &Hasher{typ: "sha512", algorithm: godigest.SHA512}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
}

// MustNew is like New but panics on an unknown algorithm name.
func MustNew(name string) *Hasher {
	h, err := New(name)
	if err != nil {
		panic(err)
	}
	return h
}

// Type returns the checksum type tag, e.g. "sha256".
func (h *Hasher) Type() string {
	return h.typ
}

func (h *Hasher) newHash() hash.Hash {
	if h.algorithm == "" {
		return sha1.New()
	}
	return h.algorithm.Hash()
}

// HashFile hashes the whole content of f. The read position is reset to
// the start of the file first, so callers may pass a handle they already
// read from.
func (h *Hasher) HashFile(f *os.File) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewinding %s: %w", f.Name(), err)
	}

	hasher := h.newHash()
	buf := make([]byte, bufferSize)
	if _, err := io.CopyBuffer(hasher, f, buf); err != nil {
		return "", fmt.Errorf("hashing %s: %w", f.Name(), err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// HashPath opens path and hashes its content.
func (h *Hasher) HashPath(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	return h.HashFile(f)
}

// HashString hashes the UTF-8 bytes of s.
func (h *Hasher) HashString(s string) string {
	return h.HashBytes([]byte(s))
}

// HashBytes hashes b.
func (h *Hasher) HashBytes(b []byte) string {
	hasher := h.newHash()
	hasher.Write(b)
	return hex.EncodeToString(hasher.Sum(nil))
}
