package rpmheader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	introSize      = 16
	indexEntrySize = 16

	maxIndexEntries = 1 << 16
	maxDataSize     = 256 << 20
)

var headerMagic = [4]byte{0x8e, 0xad, 0xe8, 0x01}

type indexEntry struct {
	typ    TagType
	offset int
	count  int
}

// Header is one decoded header structure: the index plus its data store.
type Header struct {
	entries map[Tag]indexEntry
	data    []byte
	size    int64
}

// readHeader reads one header structure, leaving r positioned just after
// its data store.
func readHeader(r io.Reader) (*Header, error) {
	var intro [introSize]byte
	if _, err := io.ReadFull(r, intro[:]); err != nil {
		return nil, truncated(err)
	}
	if !bytes.Equal(intro[:4], headerMagic[:]) {
		return nil, ErrBadMagic
	}

	nindex := binary.BigEndian.Uint32(intro[8:12])
	hsize := binary.BigEndian.Uint32(intro[12:16])
	if nindex > maxIndexEntries || hsize > maxDataSize {
		return nil, fmt.Errorf("%w: %d entries, %d data bytes", ErrCorrupt, nindex, hsize)
	}

	index := make([]byte, int(nindex)*indexEntrySize)
	if _, err := io.ReadFull(r, index); err != nil {
		return nil, truncated(err)
	}
	data := make([]byte, hsize)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, truncated(err)
	}

	h := &Header{
		entries: make(map[Tag]indexEntry, nindex),
		data:    data,
		size:    int64(introSize + len(index) + len(data)),
	}
	for i := 0; i < int(nindex); i++ {
		b := index[i*indexEntrySize : (i+1)*indexEntrySize]
		tag := Tag(int32(binary.BigEndian.Uint32(b[0:4])))
		offset := int32(binary.BigEndian.Uint32(b[8:12]))
		count := binary.BigEndian.Uint32(b[12:16])
		if offset < 0 || int64(offset) > int64(hsize) || count > hsize {
			return nil, fmt.Errorf("%w: entry %s out of bounds", ErrCorrupt, tag)
		}
		if _, dup := h.entries[tag]; dup {
			continue
		}
		h.entries[tag] = indexEntry{
			typ:    TagType(binary.BigEndian.Uint32(b[4:8])),
			offset: int(offset),
			count:  int(count),
		}
	}
	return h, nil
}

func truncated(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return ErrTruncated
	}
	return err
}

// Size is the encoded length of the header, intro included.
func (h *Header) Size() int64 {
	return h.size
}

// Has reports whether the header carries tag.
func (h *Header) Has(tag Tag) bool {
	_, ok := h.entries[tag]
	return ok
}

// Tags returns the number of index entries.
func (h *Header) Tags() int {
	return len(h.entries)
}

func (h *Header) lookup(tag Tag) (indexEntry, error) {
	e, ok := h.entries[tag]
	if !ok {
		return indexEntry{}, tagError(tag, ErrTagNotFound)
	}
	return e, nil
}

// Strings returns the values of a string, string array or i18n string tag.
func (h *Header) Strings(tag Tag) ([]string, error) {
	e, err := h.lookup(tag)
	if err != nil {
		return nil, err
	}
	if !e.typ.isString() {
		return nil, tagError(tag, ErrTypeMismatch)
	}

	count := e.count
	if e.typ == TypeString {
		count = 1
	}
	out := make([]string, 0, count)
	off := e.offset
	for i := 0; i < count; i++ {
		if off > len(h.data) {
			return nil, tagError(tag, ErrCorrupt)
		}
		end := bytes.IndexByte(h.data[off:], 0)
		if end < 0 {
			return nil, tagError(tag, ErrCorrupt)
		}
		out = append(out, string(h.data[off:off+end]))
		off += end + 1
	}
	return out, nil
}

// String returns the first value of a string tag. For i18n strings that is
// the untranslated text.
func (h *Header) String(tag Tag) (string, error) {
	values, err := h.Strings(tag)
	if err != nil {
		return "", err
	}
	if len(values) == 0 {
		return "", tagError(tag, ErrTagNotFound)
	}
	return values[0], nil
}

// Ints returns the values of an integer tag. Values are read unsigned.
func (h *Header) Ints(tag Tag) ([]uint64, error) {
	e, err := h.lookup(tag)
	if err != nil {
		return nil, err
	}
	width := e.typ.width()
	if width == 0 {
		return nil, tagError(tag, ErrTypeMismatch)
	}
	if e.offset+e.count*width > len(h.data) {
		return nil, tagError(tag, ErrCorrupt)
	}

	out := make([]uint64, e.count)
	for i := range out {
		b := h.data[e.offset+i*width:]
		switch width {
		case 1:
			out[i] = uint64(b[0])
		case 2:
			out[i] = uint64(binary.BigEndian.Uint16(b))
		case 4:
			out[i] = uint64(binary.BigEndian.Uint32(b))
		case 8:
			out[i] = binary.BigEndian.Uint64(b)
		}
	}
	return out, nil
}

// Int returns the first value of an integer tag.
func (h *Header) Int(tag Tag) (uint64, error) {
	values, err := h.Ints(tag)
	if err != nil {
		return 0, err
	}
	if len(values) == 0 {
		return 0, tagError(tag, ErrTagNotFound)
	}
	return values[0], nil
}

// Bytes returns the raw value of a binary tag.
func (h *Header) Bytes(tag Tag) ([]byte, error) {
	e, err := h.lookup(tag)
	if err != nil {
		return nil, err
	}
	if e.typ != TypeBinary {
		return nil, tagError(tag, ErrTypeMismatch)
	}
	if e.offset+e.count > len(h.data) {
		return nil, tagError(tag, ErrCorrupt)
	}
	return h.data[e.offset : e.offset+e.count], nil
}
