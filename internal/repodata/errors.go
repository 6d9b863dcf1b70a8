package repodata

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingField is returned when a required header field is absent.
	ErrMissingField = errors.New("required field missing")
	// ErrInvalidFlags is returned for dependency flags with an unknown sense.
	ErrInvalidFlags = errors.New("invalid dependency flags")
	// ErrInvalidVersion is returned when a dependency version cannot be split.
	ErrInvalidVersion = errors.New("invalid dependency version")
	// ErrLocked is returned when another process holds the repository lock.
	ErrLocked = errors.New("repository metadata is locked by another process")
	// ErrNotPublished is returned when the repository has no repomd.xml yet.
	ErrNotPublished = errors.New("repository metadata not published")
	// ErrFinished is returned when a finished state is used again.
	ErrFinished = errors.New("repository state already finished")
)

// FieldError names the package field that could not be extracted.
type FieldError struct {
	Field string
	Err   error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %s: %v", e.Field, e.Err)
}

func (e *FieldError) Unwrap() error {
	return e.Err
}

// PackageError attaches package identity to a per-file failure so it can be
// logged where the failure is collected.
type PackageError struct {
	Path    string
	RelPath string
	// Name is the NEVRA when the header could be read.
	Name string
	Err  error
}

func (e *PackageError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("%s (%s): %v", e.RelPath, e.Name, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.RelPath, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

// ErrCorruptIndex is returned by Validate when a published document does
// not match its manifest entry.
var ErrCorruptIndex = errors.New("published index does not match its manifest")
