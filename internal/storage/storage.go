package storage

import "context"

// DatabaseVersion is the yum primary database version written to db_info
// and announced in repomd.xml.
const DatabaseVersion = 10

// Storage writes one primary database.
type Storage interface {
	WritePackages(ctx context.Context, pkgs []Package) error
	SetChecksum(ctx context.Context, checksum string) error
	CountPackages(ctx context.Context) (int, error)
	GetPackage(ctx context.Context, pkgID string) (*Package, error)
	Close() error
}

// Package is one row of the packages table with its dependent rows.
type Package struct {
	PkgID       string
	Name        string
	Arch        string
	Version     string
	Epoch       string
	Release     string
	Summary     string
	Description string
	URL         string
	TimeFile    int64
	TimeBuild   int64

	License   string
	Vendor    string
	Group     string
	BuildHost string
	SourceRPM string
	Packager  string

	HeaderStart int64
	HeaderEnd   int64

	SizePackage   int64
	SizeInstalled int64
	SizeArchive   int64

	LocationHref string
	ChecksumType string

	Provides  []Dependency
	Requires  []Dependency
	Conflicts []Dependency
	Obsoletes []Dependency
	Files     []File
}

// Dependency is one row of a relation table. Pre is only stored for
// requires.
type Dependency struct {
	Name    string
	Flags   string
	Epoch   string
	Version string
	Release string
	Pre     bool
}

// File is one row of the files table. Type is file, dir or ghost.
type File struct {
	Name string
	Type string
}
