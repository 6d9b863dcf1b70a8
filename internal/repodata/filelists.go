package repodata

import (
	"encoding/xml"

	"github.com/dshills/rpmrepo/internal/rpmheader"
)

// Filelists is the filelists.xml document.
type Filelists struct {
	XMLName  xml.Name           `xml:"filelists"`
	Xmlns    string             `xml:"xmlns,attr"`
	Count    int                `xml:"packages,attr"`
	Packages []*FilelistPackage `xml:"package"`
}

// NewFilelists returns an empty filelists document.
func NewFilelists() *Filelists {
	f := &Filelists{}
	f.normalize()
	return f
}

func (f *Filelists) normalize() {
	f.XMLName = xml.Name{}
	f.Xmlns = NamespaceFilelists
	f.Count = len(f.Packages)
}

func (f *Filelists) Add(pkg *FilelistPackage) {
	f.Packages = append(f.Packages, pkg)
	f.Count = len(f.Packages)
}

func (f *Filelists) PartitionOut(keep func(*FilelistPackage) bool) []*FilelistPackage {
	var removed []*FilelistPackage
	f.Packages, removed = partition(f.Packages, keep)
	f.Count = len(f.Packages)
	return removed
}

func (f *Filelists) Len() int {
	return len(f.Packages)
}

// FilelistPackage lists every file of one package. PkgID joins it to the
// primary record with the same checksum.
type FilelistPackage struct {
	PkgID   string      `xml:"pkgid,attr"`
	Name    string      `xml:"name,attr"`
	Arch    string      `xml:"arch,attr,omitempty"`
	Version Version     `xml:"version"`
	Files   []FileEntry `xml:"file"`
}

// NewFilelistPackage builds the filelists record of pkg, keyed by checksum.
func NewFilelistPackage(pkg *rpmheader.Package, checksum string) (*FilelistPackage, error) {
	name, err := required("name", pkg.Name)
	if err != nil {
		return nil, err
	}
	version, err := packageVersion(pkg)
	if err != nil {
		return nil, err
	}

	record := &FilelistPackage{
		PkgID:   checksum,
		Name:    name,
		Arch:    optional(pkg.Arch),
		Version: version,
	}
	files, err := pkg.Files()
	if err != nil {
		return nil, &FieldError{Field: "files", Err: err}
	}
	for _, f := range files {
		record.Files = append(record.Files, newFileEntry(f))
	}
	return record, nil
}
