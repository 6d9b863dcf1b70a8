// Package rpmtest builds small synthetic RPM files for tests.
//
// The files carry a valid lead, a signature header and a main header with
// whatever tags the Spec asks for, followed by an opaque payload. They are
// not installable, but they read back through rpmheader exactly like real
// packages.
package rpmtest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path"
	"path/filepath"
	"slices"
	"sort"
	"testing"

	"github.com/dshills/rpmrepo/internal/rpmheader"
)

// DefaultBuildTime is used when a Spec leaves BuildTime unset.
const DefaultBuildTime = 1655985827

// File describes one file list entry.
type File struct {
	Path  string
	Dir   bool
	Ghost bool
}

// Spec describes the package to encode. Empty optional strings are not
// written; Omit removes tags that would otherwise always be present.
type Spec struct {
	Name    string
	Epoch   uint32
	Version string
	Release string
	Arch    string

	Summary     string
	Description string
	License     string
	Vendor      string
	Group       string
	BuildHost   string
	SourceRPM   string
	URL         string
	Packager    string

	BuildTime     uint32
	InstalledSize uint32
	ArchiveSize   uint32

	Files     []File
	Provides  []rpmheader.Dependency
	Requires  []rpmheader.Dependency
	Conflicts []rpmheader.Dependency
	Obsoletes []rpmheader.Dependency

	// Omit drops tags from the main header.
	Omit []rpmheader.Tag
	// Override replaces a tag with a string array, whatever the other
	// fields wrote for it. Counts are not kept consistent.
	Override map[rpmheader.Tag][]string
	// Payload is appended after the headers.
	Payload []byte
}

// Basic returns a complete spec for a noarch package.
func Basic(name, version, release string) Spec {
	return Spec{
		Name:          name,
		Version:       version,
		Release:       release,
		Arch:          "noarch",
		Summary:       name + " test package",
		Description:   "Synthetic package " + name + ".",
		License:       "MIT",
		BuildHost:     "build.example.com",
		SourceRPM:     name + "-" + version + "-" + release + ".src.rpm",
		URL:           "https://example.com/" + name,
		InstalledSize: 4096,
		ArchiveSize:   4400,
		Files: []File{
			{Path: "/usr/share/" + name, Dir: true},
			{Path: "/usr/share/" + name + "/README"},
		},
		Provides: []rpmheader.Dependency{
			{Name: name, Version: version + "-" + release, Flags: 8},
		},
		Payload: []byte("payload:" + name),
	}
}

// Write encodes spec to path and returns path.
func Write(t testing.TB, path string, spec Spec) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, Encode(spec), 0o644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
	return path
}

// Encode returns the bytes of an RPM file described by spec.
func Encode(spec Spec) []byte {
	if spec.BuildTime == 0 {
		spec.BuildTime = DefaultBuildTime
	}

	hdr := &builder{omit: spec.Omit}
	hdr.str(rpmheader.TagName, spec.Name)
	hdr.str(rpmheader.TagVersion, spec.Version)
	hdr.str(rpmheader.TagRelease, spec.Release)
	if spec.Epoch > 0 {
		hdr.int32s(rpmheader.TagEpoch, spec.Epoch)
	}
	hdr.str(rpmheader.TagArch, spec.Arch)
	hdr.i18n(rpmheader.TagSummary, spec.Summary)
	hdr.i18n(rpmheader.TagDescription, spec.Description)
	hdr.str(rpmheader.TagLicense, spec.License)
	hdr.str(rpmheader.TagVendor, spec.Vendor)
	hdr.i18n(rpmheader.TagGroup, spec.Group)
	hdr.str(rpmheader.TagBuildHost, spec.BuildHost)
	hdr.str(rpmheader.TagSourceRPM, spec.SourceRPM)
	hdr.str(rpmheader.TagURL, spec.URL)
	hdr.str(rpmheader.TagPackager, spec.Packager)
	hdr.int32s(rpmheader.TagBuildTime, spec.BuildTime)
	hdr.int32s(rpmheader.TagSize, spec.InstalledSize)
	if spec.ArchiveSize > 0 {
		hdr.int32s(rpmheader.TagArchiveSize, spec.ArchiveSize)
	}
	hdr.files(spec.Files)
	hdr.deps(spec.Provides, rpmheader.TagProvideName, rpmheader.TagProvideVersion, rpmheader.TagProvideFlags)
	hdr.deps(spec.Requires, rpmheader.TagRequireName, rpmheader.TagRequireVersion, rpmheader.TagRequireFlags)
	hdr.deps(spec.Conflicts, rpmheader.TagConflictName, rpmheader.TagConflictVersion, rpmheader.TagConflictFlags)
	hdr.deps(spec.Obsoletes, rpmheader.TagObsoleteName, rpmheader.TagObsoleteVersion, rpmheader.TagObsoleteFlags)
	for tag, values := range spec.Override {
		hdr.entries = slices.DeleteFunc(hdr.entries, func(e entry) bool { return e.tag == tag })
		hdr.strs(tag, values)
	}
	header := hdr.bytes()

	sig := &builder{}
	sig.int32s(rpmheader.SigTagSize, uint32(len(header)+len(spec.Payload)))
	signature := sig.bytes()

	var buf bytes.Buffer
	buf.Write(lead(spec.Name + "-" + spec.Version + "-" + spec.Release))
	buf.Write(signature)
	buf.Write(make([]byte, (8-len(signature)%8)%8))
	buf.Write(header)
	buf.Write(spec.Payload)
	return buf.Bytes()
}

func lead(name string) []byte {
	b := make([]byte, 96)
	copy(b, []byte{0xed, 0xab, 0xee, 0xdb, 3, 0})
	binary.BigEndian.PutUint16(b[6:], 0)  // binary package
	binary.BigEndian.PutUint16(b[8:], 1)  // archnum
	copy(b[10:75], name)                  // NUL-terminated within 66 bytes
	binary.BigEndian.PutUint16(b[76:], 1) // osnum
	binary.BigEndian.PutUint16(b[78:], 5) // header-style signature
	return b
}

type entry struct {
	tag   rpmheader.Tag
	typ   rpmheader.TagType
	count int
	align int
	data  []byte
}

type builder struct {
	omit    []rpmheader.Tag
	entries []entry
}

func (b *builder) add(e entry) {
	if slices.Contains(b.omit, e.tag) {
		return
	}
	b.entries = append(b.entries, e)
}

func (b *builder) str(tag rpmheader.Tag, s string) {
	if s == "" {
		return
	}
	b.add(entry{tag: tag, typ: rpmheader.TypeString, count: 1, align: 1, data: append([]byte(s), 0)})
}

func (b *builder) i18n(tag rpmheader.Tag, s string) {
	if s == "" {
		return
	}
	b.add(entry{tag: tag, typ: rpmheader.TypeI18NString, count: 1, align: 1, data: append([]byte(s), 0)})
}

func (b *builder) strs(tag rpmheader.Tag, values []string) {
	var data []byte
	for _, v := range values {
		data = append(data, v...)
		data = append(data, 0)
	}
	b.add(entry{tag: tag, typ: rpmheader.TypeStringArray, count: len(values), align: 1, data: data})
}

func (b *builder) int32s(tag rpmheader.Tag, values ...uint32) {
	data := make([]byte, 4*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint32(data[4*i:], v)
	}
	b.add(entry{tag: tag, typ: rpmheader.TypeInt32, count: len(values), align: 4, data: data})
}

func (b *builder) int16s(tag rpmheader.Tag, values ...uint16) {
	data := make([]byte, 2*len(values))
	for i, v := range values {
		binary.BigEndian.PutUint16(data[2*i:], v)
	}
	b.add(entry{tag: tag, typ: rpmheader.TypeInt16, count: len(values), align: 2, data: data})
}

func (b *builder) files(files []File) {
	if len(files) == 0 {
		return
	}
	var (
		dirs    []string
		bases   []string
		indexes []uint32
		modes   []uint16
		flags   []uint32
	)
	for _, f := range files {
		dir, base := path.Split(f.Path)
		idx := slices.Index(dirs, dir)
		if idx < 0 {
			idx = len(dirs)
			dirs = append(dirs, dir)
		}
		bases = append(bases, base)
		indexes = append(indexes, uint32(idx))

		mode := uint16(0o100644)
		if f.Dir {
			mode = 0o040755
		}
		modes = append(modes, mode)

		var flag uint32
		if f.Ghost {
			flag = 0x40
		}
		flags = append(flags, flag)
	}
	b.strs(rpmheader.TagBaseNames, bases)
	b.strs(rpmheader.TagDirNames, dirs)
	b.int32s(rpmheader.TagDirIndexes, indexes...)
	b.int16s(rpmheader.TagFileModes, modes...)
	b.int32s(rpmheader.TagFileFlags, flags...)
}

func (b *builder) deps(deps []rpmheader.Dependency, nameTag, versionTag, flagsTag rpmheader.Tag) {
	if len(deps) == 0 {
		return
	}
	names := make([]string, len(deps))
	versions := make([]string, len(deps))
	flags := make([]uint32, len(deps))
	for i, d := range deps {
		names[i] = d.Name
		versions[i] = d.Version
		flags[i] = d.Flags
	}
	b.strs(nameTag, names)
	b.strs(versionTag, versions)
	b.int32s(flagsTag, flags...)
}

func (b *builder) bytes() []byte {
	sort.SliceStable(b.entries, func(i, j int) bool { return b.entries[i].tag < b.entries[j].tag })

	var store bytes.Buffer
	index := make([]byte, 16*len(b.entries))
	for i, e := range b.entries {
		for store.Len()%e.align != 0 {
			store.WriteByte(0)
		}
		rec := index[16*i:]
		binary.BigEndian.PutUint32(rec[0:], uint32(e.tag))
		binary.BigEndian.PutUint32(rec[4:], uint32(e.typ))
		binary.BigEndian.PutUint32(rec[8:], uint32(store.Len()))
		binary.BigEndian.PutUint32(rec[12:], uint32(e.count))
		store.Write(e.data)
	}

	out := make([]byte, 16, 16+len(index)+store.Len())
	copy(out, []byte{0x8e, 0xad, 0xe8, 0x01})
	binary.BigEndian.PutUint32(out[8:], uint32(len(b.entries)))
	binary.BigEndian.PutUint32(out[12:], uint32(store.Len()))
	out = append(out, index...)
	return append(out, store.Bytes()...)
}
