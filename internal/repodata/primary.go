package repodata

import (
	"encoding/xml"
	"errors"
	"os"
	"regexp"

	"github.com/dshills/rpmrepo/internal/rpmheader"
)

// XML namespaces of the yum metadata documents.
const (
	NamespaceCommon    = "http://linux.duke.edu/metadata/common"
	NamespaceRPM       = "http://linux.duke.edu/metadata/rpm"
	NamespaceFilelists = "http://linux.duke.edu/metadata/filelists"
	NamespaceRepo      = "http://linux.duke.edu/metadata/repo"
)

// Primary is the primary.xml document.
type Primary struct {
	XMLName  xml.Name   `xml:"metadata"`
	Xmlns    string     `xml:"xmlns,attr"`
	XmlnsRPM string     `xml:"xmlns:rpm,attr"`
	Count    int        `xml:"packages,attr"`
	Packages []*Package `xml:"package"`
}

// NewPrimary returns an empty primary document.
func NewPrimary() *Primary {
	p := &Primary{}
	p.normalize()
	return p
}

func (p *Primary) normalize() {
	p.XMLName = xml.Name{}
	p.Xmlns = NamespaceCommon
	p.XmlnsRPM = NamespaceRPM
	p.Count = len(p.Packages)
}

// Add appends a record. Callers serialize access.
func (p *Primary) Add(pkg *Package) {
	p.Packages = append(p.Packages, pkg)
	p.Count = len(p.Packages)
}

// PartitionOut removes and returns the records for which keep is false.
func (p *Primary) PartitionOut(keep func(*Package) bool) []*Package {
	var removed []*Package
	p.Packages, removed = partition(p.Packages, keep)
	p.Count = len(p.Packages)
	return removed
}

// Len returns the number of records.
func (p *Primary) Len() int {
	return len(p.Packages)
}

func partition[T any](items []T, keep func(T) bool) (kept, removed []T) {
	kept = items[:0:0]
	for _, item := range items {
		if keep(item) {
			kept = append(kept, item)
		} else {
			removed = append(removed, item)
		}
	}
	if len(kept) == 0 {
		kept = nil
	}
	return kept, removed
}

// Package is one primary record.
type Package struct {
	Type        string   `xml:"type,attr"`
	Name        string   `xml:"name"`
	Arch        string   `xml:"arch,omitempty"`
	Version     Version  `xml:"version"`
	Checksum    Checksum `xml:"checksum"`
	Summary     string   `xml:"summary"`
	Description string   `xml:"description"`
	Packager    string   `xml:"packager"`
	URL         string   `xml:"url"`
	Time        Time     `xml:"time"`
	Size        Size     `xml:"size"`
	Location    Location `xml:"location"`
	Format      Format   `xml:"format"`
}

type Version struct {
	Epoch uint64 `xml:"epoch,attr"`
	Ver   string `xml:"ver,attr"`
	Rel   string `xml:"rel,attr"`
}

// Checksum is a digest tagged with its algorithm. PkgID is only set on
// primary records.
type Checksum struct {
	Type  string `xml:"type,attr"`
	PkgID string `xml:"pkgid,attr,omitempty"`
	Value string `xml:",chardata"`
}

// Time holds the file modification time and the package build time.
type Time struct {
	File  int64  `xml:"file,attr"`
	Build uint64 `xml:"build,attr"`
}

// Size holds the on-disk, installed and payload sizes. Archive is absent
// when the header does not record it.
type Size struct {
	Package   int64   `xml:"package,attr"`
	Installed uint64  `xml:"installed,attr"`
	Archive   *uint64 `xml:"archive,attr,omitempty"`
}

type Location struct {
	Href string `xml:"href,attr"`
}

type HeaderRange struct {
	Start int64 `xml:"start,attr"`
	End   int64 `xml:"end,attr"`
}

// Format is the rpm-specific block of a primary record.
type Format struct {
	License     string       `xml:"rpm:license"`
	Vendor      string       `xml:"rpm:vendor"`
	Group       string       `xml:"rpm:group"`
	BuildHost   string       `xml:"rpm:buildhost"`
	SourceRPM   string       `xml:"rpm:sourcerpm"`
	HeaderRange *HeaderRange `xml:"rpm:header-range,omitempty"`
	Provides    *EntryList   `xml:"rpm:provides,omitempty"`
	Requires    *EntryList   `xml:"rpm:requires,omitempty"`
	Conflicts   *EntryList   `xml:"rpm:conflicts,omitempty"`
	Obsoletes   *EntryList   `xml:"rpm:obsoletes,omitempty"`
	Files       []FileEntry  `xml:"file"`
}

type EntryList struct {
	Entries []Entry `xml:"rpm:entry"`
}

// Entry is one dependency relation.
type Entry struct {
	Name  string `xml:"name,attr"`
	Flags string `xml:"flags,attr,omitempty"`
	Epoch string `xml:"epoch,attr,omitempty"`
	Ver   string `xml:"ver,attr,omitempty"`
	Rel   string `xml:"rel,attr,omitempty"`
	Pre   string `xml:"pre,attr,omitempty"`
}

// FileEntry is a path inside a package. Type is "dir" or "ghost" for those
// entries and empty for regular files.
type FileEntry struct {
	Type string `xml:"type,attr,omitempty"`
	Path string `xml:",chardata"`
}

// NewPackage builds the primary record of pkg. Name, version, release,
// installed size and build time are required; everything else degrades
// to empty. Only paths matching usefulFiles are listed.
func NewPackage(pkg *rpmheader.Package, info os.FileInfo, relPath string, checksum Checksum, usefulFiles *regexp.Regexp) (*Package, error) {
	name, err := required("name", pkg.Name)
	if err != nil {
		return nil, err
	}
	version, err := packageVersion(pkg)
	if err != nil {
		return nil, err
	}
	installed, err := required("installed size", pkg.InstalledSize)
	if err != nil {
		return nil, err
	}
	buildTime, err := required("build time", pkg.BuildTime)
	if err != nil {
		return nil, err
	}

	format, err := newFormat(pkg, usefulFiles)
	if err != nil {
		return nil, err
	}

	record := &Package{
		Type:        "rpm",
		Name:        name,
		Arch:        optional(pkg.Arch),
		Version:     version,
		Checksum:    checksum,
		Summary:     optional(pkg.Summary),
		Description: optional(pkg.Description),
		Packager:    optional(pkg.Packager),
		URL:         optional(pkg.URL),
		Time: Time{
			File:  info.ModTime().Unix(),
			Build: buildTime,
		},
		Size: Size{
			Package:   info.Size(),
			Installed: installed,
		},
		Location: Location{Href: relPath},
		Format:   format,
	}
	if archive, err := pkg.ArchiveSize(); err == nil {
		record.Size.Archive = &archive
	}
	return record, nil
}

func packageVersion(pkg *rpmheader.Package) (Version, error) {
	ver, err := required("version", pkg.Version)
	if err != nil {
		return Version{}, err
	}
	rel, err := required("release", pkg.Release)
	if err != nil {
		return Version{}, err
	}
	epoch, err := pkg.Epoch()
	if err != nil && !errors.Is(err, rpmheader.ErrTagNotFound) {
		return Version{}, &FieldError{Field: "epoch", Err: err}
	}
	return Version{Epoch: epoch, Ver: ver, Rel: rel}, nil
}

func newFormat(pkg *rpmheader.Package, usefulFiles *regexp.Regexp) (Format, error) {
	format := Format{
		License:   optional(pkg.License),
		Vendor:    optional(pkg.Vendor),
		Group:     optional(pkg.Group),
		BuildHost: optional(pkg.BuildHost),
		SourceRPM: optional(pkg.SourceRPM),
		HeaderRange: &HeaderRange{
			Start: pkg.HeaderStart,
			End:   pkg.HeaderEnd,
		},
	}

	lists := []struct {
		field string
		read  func() ([]rpmheader.Dependency, error)
		dst   **EntryList
	}{
		{"provides", pkg.Provides, &format.Provides},
		{"requires", pkg.Requires, &format.Requires},
		{"conflicts", pkg.Conflicts, &format.Conflicts},
		{"obsoletes", pkg.Obsoletes, &format.Obsoletes},
	}
	for _, l := range lists {
		deps, err := l.read()
		if err != nil {
			return Format{}, &FieldError{Field: l.field, Err: err}
		}
		entries, err := newEntries(deps, l.field == "requires")
		if err != nil {
			return Format{}, &FieldError{Field: l.field, Err: err}
		}
		if len(entries) > 0 {
			*l.dst = &EntryList{Entries: entries}
		}
	}

	files, err := pkg.Files()
	if err != nil {
		return Format{}, &FieldError{Field: "files", Err: err}
	}
	for _, f := range files {
		if usefulFiles != nil && usefulFiles.MatchString(f.Path) {
			format.Files = append(format.Files, newFileEntry(f))
		}
	}
	return format, nil
}

func newEntries(deps []rpmheader.Dependency, requires bool) ([]Entry, error) {
	entries := make([]Entry, 0, len(deps))
	for _, dep := range deps {
		// rpmlib() capabilities are internal to rpm itself.
		if requires && dep.Flags&senseRPMLib != 0 {
			continue
		}
		entry, err := newEntry(dep)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func newEntry(dep rpmheader.Dependency) (Entry, error) {
	flags, err := ParseFlags(dep.Flags)
	if err != nil {
		return Entry{}, err
	}
	evr, err := SplitEVR(dep.Version)
	if err != nil {
		return Entry{}, err
	}
	entry := Entry{
		Name:  dep.Name,
		Flags: flags,
		Epoch: evr.Epoch,
		Ver:   evr.Version,
		Rel:   evr.Release,
	}
	if dep.Flags&sensePrereq != 0 {
		entry.Pre = "1"
	}
	return entry, nil
}

func newFileEntry(f rpmheader.File) FileEntry {
	entry := FileEntry{Path: f.Path}
	switch {
	case f.IsDir():
		entry.Type = "dir"
	case f.IsGhost():
		entry.Type = "ghost"
	}
	return entry
}

func required[T any](field string, get func() (T, error)) (T, error) {
	v, err := get()
	if err != nil {
		var zero T
		if errors.Is(err, rpmheader.ErrTagNotFound) {
			err = ErrMissingField
		}
		return zero, &FieldError{Field: field, Err: err}
	}
	return v, nil
}

func optional(get func() (string, error)) string {
	v, _ := get()
	return v
}
