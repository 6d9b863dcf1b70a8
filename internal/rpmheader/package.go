package rpmheader

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
)

const leadSize = 96

var leadMagic = [4]byte{0xed, 0xab, 0xee, 0xdb}

// File mode and flag bits used to classify file entries.
const (
	fileTypeMask  = 0o170000
	fileTypeDir   = 0o040000
	fileFlagGhost = 0x40
)

// Package is the signature and main header of an RPM file.
type Package struct {
	Signature *Header
	Header    *Header

	// HeaderStart and HeaderEnd are the byte offsets of the main header
	// within the file.
	HeaderStart int64
	HeaderEnd   int64
}

// Read reads the lead, signature header and main header from r. The
// payload is not consumed.
func Read(r io.Reader) (*Package, error) {
	var lead [leadSize]byte
	if _, err := io.ReadFull(r, lead[:]); err != nil {
		return nil, fmt.Errorf("reading lead: %w", truncated(err))
	}
	if !bytes.Equal(lead[:4], leadMagic[:]) {
		return nil, ErrBadMagic
	}

	sig, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("reading signature header: %w", err)
	}
	pad := (8 - sig.size%8) % 8
	if _, err := io.CopyN(io.Discard, r, pad); err != nil {
		return nil, fmt.Errorf("reading signature padding: %w", truncated(err))
	}

	hdr, err := readHeader(r)
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}

	start := leadSize + sig.size + pad
	return &Package{
		Signature:   sig,
		Header:      hdr,
		HeaderStart: start,
		HeaderEnd:   start + hdr.size,
	}, nil
}

// Open reads the package headers from the start of f.
func Open(f *os.File) (*Package, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	return Read(bufio.NewReader(f))
}

// ReadFile reads the package headers of the file at path.
func ReadFile(path string) (*Package, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Open(f)
}

func (p *Package) Name() (string, error)        { return p.Header.String(TagName) }
func (p *Package) Version() (string, error)     { return p.Header.String(TagVersion) }
func (p *Package) Release() (string, error)     { return p.Header.String(TagRelease) }
func (p *Package) Arch() (string, error)        { return p.Header.String(TagArch) }
func (p *Package) Summary() (string, error)     { return p.Header.String(TagSummary) }
func (p *Package) Description() (string, error) { return p.Header.String(TagDescription) }
func (p *Package) License() (string, error)     { return p.Header.String(TagLicense) }
func (p *Package) Vendor() (string, error)      { return p.Header.String(TagVendor) }
func (p *Package) Group() (string, error)       { return p.Header.String(TagGroup) }
func (p *Package) BuildHost() (string, error)   { return p.Header.String(TagBuildHost) }
func (p *Package) SourceRPM() (string, error)   { return p.Header.String(TagSourceRPM) }
func (p *Package) URL() (string, error)         { return p.Header.String(TagURL) }
func (p *Package) Packager() (string, error)    { return p.Header.String(TagPackager) }

// Epoch returns the package epoch. Most packages do not set one.
func (p *Package) Epoch() (uint64, error) {
	return p.Header.Int(TagEpoch)
}

// BuildTime returns the build timestamp in seconds since the epoch.
func (p *Package) BuildTime() (uint64, error) {
	return p.Header.Int(TagBuildTime)
}

// InstalledSize prefers the 64-bit size tag when present.
func (p *Package) InstalledSize() (uint64, error) {
	if p.Header.Has(TagLongSize) {
		return p.Header.Int(TagLongSize)
	}
	return p.Header.Int(TagSize)
}

// ArchiveSize returns the uncompressed payload size, looking in the main
// header first and the signature header after.
func (p *Package) ArchiveSize() (uint64, error) {
	candidates := []struct {
		h   *Header
		tag Tag
	}{
		{p.Header, TagLongArchiveSize},
		{p.Header, TagArchiveSize},
		{p.Signature, TagLongArchiveSize},
		{p.Signature, SigTagPayloadSize},
	}
	for _, c := range candidates {
		if c.h != nil && c.h.Has(c.tag) {
			return c.h.Int(c.tag)
		}
	}
	return 0, tagError(TagArchiveSize, ErrTagNotFound)
}

// NEVRA formats the package identity for log messages. Missing fields are
// left empty.
func (p *Package) NEVRA() string {
	name, _ := p.Name()
	version, _ := p.Version()
	release, _ := p.Release()
	arch, _ := p.Arch()
	evr := version + "-" + release
	if epoch, err := p.Epoch(); err == nil && epoch > 0 {
		evr = fmt.Sprintf("%d:%s", epoch, evr)
	}
	return fmt.Sprintf("%s-%s.%s", name, evr, arch)
}

// File is one entry of the package file list.
type File struct {
	Path  string
	Mode  uint32
	Flags uint32
}

// IsDir reports whether the entry is a directory.
func (f File) IsDir() bool {
	return f.Mode&fileTypeMask == fileTypeDir
}

// IsGhost reports whether the entry is a %ghost file.
func (f File) IsGhost() bool {
	return f.Flags&fileFlagGhost != 0
}

// Files returns the package file list in header order. Packages without a
// file list return nil.
func (p *Package) Files() ([]File, error) {
	paths, err := p.filePaths()
	if err != nil || len(paths) == 0 {
		return nil, err
	}

	modes, err := optionalInts(p.Header, TagFileModes, len(paths))
	if err != nil {
		return nil, err
	}
	flags, err := optionalInts(p.Header, TagFileFlags, len(paths))
	if err != nil {
		return nil, err
	}

	files := make([]File, len(paths))
	for i, path := range paths {
		files[i] = File{Path: path, Mode: uint32(modes[i]), Flags: uint32(flags[i])}
	}
	return files, nil
}

func (p *Package) filePaths() ([]string, error) {
	h := p.Header
	if !h.Has(TagBaseNames) {
		if h.Has(TagOldFilenames) {
			return h.Strings(TagOldFilenames)
		}
		return nil, nil
	}

	bases, err := h.Strings(TagBaseNames)
	if err != nil {
		return nil, err
	}
	dirs, err := h.Strings(TagDirNames)
	if err != nil {
		return nil, err
	}
	indexes, err := h.Ints(TagDirIndexes)
	if err != nil {
		return nil, err
	}
	if len(indexes) != len(bases) {
		return nil, tagError(TagDirIndexes, ErrCorrupt)
	}

	paths := make([]string, len(bases))
	for i, base := range bases {
		idx := indexes[i]
		if idx >= uint64(len(dirs)) {
			return nil, tagError(TagDirIndexes, ErrCorrupt)
		}
		paths[i] = dirs[idx] + base
	}
	return paths, nil
}

// optionalInts reads an integer array that must either be absent or have
// exactly n elements. Absent arrays read as zeros.
func optionalInts(h *Header, tag Tag, n int) ([]uint64, error) {
	values, err := h.Ints(tag)
	if errors.Is(err, ErrTagNotFound) {
		return make([]uint64, n), nil
	}
	if err != nil {
		return nil, err
	}
	if len(values) != n {
		return nil, tagError(tag, ErrCorrupt)
	}
	return values, nil
}

// Dependency is one entry of a provides, requires, conflicts or obsoletes
// list. Flags holds the raw sense bits.
type Dependency struct {
	Name    string
	Version string
	Flags   uint32
}

type depTags struct {
	name, version, flags Tag
}

var (
	provideTags  = depTags{TagProvideName, TagProvideVersion, TagProvideFlags}
	requireTags  = depTags{TagRequireName, TagRequireVersion, TagRequireFlags}
	conflictTags = depTags{TagConflictName, TagConflictVersion, TagConflictFlags}
	obsoleteTags = depTags{TagObsoleteName, TagObsoleteVersion, TagObsoleteFlags}
)

func (p *Package) Provides() ([]Dependency, error)  { return p.dependencies(provideTags) }
func (p *Package) Requires() ([]Dependency, error)  { return p.dependencies(requireTags) }
func (p *Package) Conflicts() ([]Dependency, error) { return p.dependencies(conflictTags) }
func (p *Package) Obsoletes() ([]Dependency, error) { return p.dependencies(obsoleteTags) }

func (p *Package) dependencies(tags depTags) ([]Dependency, error) {
	h := p.Header
	names, err := h.Strings(tags.name)
	if errors.Is(err, ErrTagNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	versions := make([]string, len(names))
	if h.Has(tags.version) {
		if versions, err = h.Strings(tags.version); err != nil {
			return nil, err
		}
		if len(versions) != len(names) {
			return nil, tagError(tags.version, ErrCorrupt)
		}
	}
	flags, err := optionalInts(h, tags.flags, len(names))
	if err != nil {
		return nil, err
	}

	deps := make([]Dependency, len(names))
	for i, name := range names {
		deps[i] = Dependency{Name: name, Version: versions[i], Flags: uint32(flags[i])}
	}
	return deps, nil
}
