package repodata

import "encoding/xml"

// Data types listed in repomd.xml.
const (
	DataPrimary     = "primary"
	DataFilelists   = "filelists"
	DataOther       = "other"
	DataPrimaryDB   = "primary_db"
	DataFilelistsDB = "filelists_db"
	DataOtherDB     = "other_db"
)

// Repomd is the repomd.xml manifest.
type Repomd struct {
	XMLName  xml.Name `xml:"repomd"`
	Xmlns    string   `xml:"xmlns,attr"`
	XmlnsRPM string   `xml:"xmlns:rpm,attr"`
	Revision int64    `xml:"revision"`
	Data     []*Data  `xml:"data"`
}

// NewRepomd returns an empty manifest for revision.
func NewRepomd(revision int64) *Repomd {
	r := &Repomd{Revision: revision}
	r.normalize()
	return r
}

func (r *Repomd) normalize() {
	r.XMLName = xml.Name{}
	r.Xmlns = NamespaceRepo
	r.XmlnsRPM = NamespaceRPM
}

func (r *Repomd) Add(d *Data) {
	r.Data = append(r.Data, d)
}

// Find returns the entry of the given type, or nil.
func (r *Repomd) Find(typ string) *Data {
	for _, d := range r.Data {
		if d.Type == typ {
			return d
		}
	}
	return nil
}

// Data describes one generated document.
type Data struct {
	Type            string   `xml:"type,attr"`
	Checksum        Checksum `xml:"checksum"`
	OpenChecksum    Checksum `xml:"open-checksum"`
	Location        Location `xml:"location"`
	Timestamp       int64    `xml:"timestamp"`
	Size            int64    `xml:"size"`
	OpenSize        int64    `xml:"open-size"`
	DatabaseVersion int      `xml:"database_version,omitempty"`
}
