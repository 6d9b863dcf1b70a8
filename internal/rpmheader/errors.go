package rpmheader

import (
	"errors"
	"fmt"
)

var (
	// ErrBadMagic is returned when the lead or a header does not start with
	// the expected magic bytes.
	ErrBadMagic = errors.New("not an rpm package: bad magic")
	// ErrTruncated is returned when the input ends inside the lead or a header.
	ErrTruncated = errors.New("truncated rpm header")
	// ErrCorrupt is returned for structurally invalid headers.
	ErrCorrupt = errors.New("corrupt rpm header")
	// ErrTagNotFound is returned when a header does not carry a tag.
	ErrTagNotFound = errors.New("tag not found")
	// ErrTypeMismatch is returned when a tag is read as the wrong type.
	ErrTypeMismatch = errors.New("tag type mismatch")
)

// TagError attaches the tag being read to an error.
type TagError struct {
	Tag Tag
	Err error
}

func (e *TagError) Error() string {
	return fmt.Sprintf("%s: %v", e.Tag, e.Err)
}

func (e *TagError) Unwrap() error {
	return e.Err
}

func tagError(tag Tag, err error) error {
	return &TagError{Tag: tag, Err: err}
}
