package repodata

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/dshills/rpmrepo/internal/storage"
)

// writeDatabase exports the primary document as a yum primary_db and
// compresses it into the scratch directory.
func (s *State) writeDatabase(ctx context.Context, primaryChecksum string) (*Data, error) {
	path := filepath.Join(s.scratch, "primary.sqlite")
	db, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("creating primary database: %w", err)
	}

	rows := make([]storage.Package, 0, s.primary.Len())
	for _, pkg := range s.primary.Packages {
		rows = append(rows, storagePackage(pkg))
	}
	if err := db.WritePackages(ctx, rows); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("writing primary database: %w", err)
	}
	if err := db.SetChecksum(ctx, primaryChecksum); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("writing primary database: %w", err)
	}
	if err := db.Close(); err != nil {
		return nil, fmt.Errorf("closing primary database: %w", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := s.writeCompressed(DataPrimaryDB, "primary.sqlite", raw)
	if err != nil {
		return nil, err
	}
	if err := os.Remove(path); err != nil {
		return nil, err
	}
	data.DatabaseVersion = storage.DatabaseVersion
	return data, nil
}

func storagePackage(pkg *Package) storage.Package {
	row := storage.Package{
		PkgID:         pkg.Checksum.Value,
		Name:          pkg.Name,
		Arch:          pkg.Arch,
		Version:       pkg.Version.Ver,
		Epoch:         strconv.FormatUint(pkg.Version.Epoch, 10),
		Release:       pkg.Version.Rel,
		Summary:       pkg.Summary,
		Description:   pkg.Description,
		URL:           pkg.URL,
		TimeFile:      pkg.Time.File,
		TimeBuild:     int64(pkg.Time.Build),
		License:       pkg.Format.License,
		Vendor:        pkg.Format.Vendor,
		Group:         pkg.Format.Group,
		BuildHost:     pkg.Format.BuildHost,
		SourceRPM:     pkg.Format.SourceRPM,
		Packager:      pkg.Packager,
		SizePackage:   pkg.Size.Package,
		SizeInstalled: int64(pkg.Size.Installed),
		LocationHref:  pkg.Location.Href,
		ChecksumType:  pkg.Checksum.Type,
		Provides:      storageDeps(pkg.Format.Provides),
		Requires:      storageDeps(pkg.Format.Requires),
		Conflicts:     storageDeps(pkg.Format.Conflicts),
		Obsoletes:     storageDeps(pkg.Format.Obsoletes),
	}
	if pkg.Size.Archive != nil {
		row.SizeArchive = int64(*pkg.Size.Archive)
	}
	if hr := pkg.Format.HeaderRange; hr != nil {
		row.HeaderStart = hr.Start
		row.HeaderEnd = hr.End
	}
	for _, f := range pkg.Format.Files {
		typ := f.Type
		if typ == "" {
			typ = "file"
		}
		row.Files = append(row.Files, storage.File{Name: f.Path, Type: typ})
	}
	return row
}

func storageDeps(list *EntryList) []storage.Dependency {
	if list == nil {
		return nil
	}
	deps := make([]storage.Dependency, len(list.Entries))
	for i, e := range list.Entries {
		deps[i] = storage.Dependency{
			Name:    e.Name,
			Flags:   e.Flags,
			Epoch:   e.Epoch,
			Version: e.Ver,
			Release: e.Rel,
			Pre:     e.Pre == "1",
		}
	}
	return deps
}
