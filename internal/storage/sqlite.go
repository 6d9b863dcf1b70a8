package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a requested package doesn't exist
	ErrNotFound = errors.New("not found")
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

var _ Storage = (*SQLiteStorage)(nil)

// openDatabase opens a SQLite database with settings for a file that is
// written once and then shipped.
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Single writer, and a rollback journal so nothing is left beside the
	// database file once it is closed
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA journal_mode=DELETE"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA synchronous=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set synchronous mode: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Apply migrations
	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

const insertPackage = `
	INSERT INTO packages (
		pkgId, name, arch, version, epoch, release, summary, description, url,
		time_file, time_build, rpm_license, rpm_vendor, rpm_group, rpm_buildhost,
		rpm_sourcerpm, rpm_header_start, rpm_header_end, rpm_packager,
		size_package, size_installed, size_archive, location_href, location_base,
		checksum_type
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, ?)
`

// relations maps each dependency table to the package field it stores.
var relations = []struct {
	table string
	deps  func(*Package) []Dependency
}{
	{"provides", func(p *Package) []Dependency { return p.Provides }},
	{"requires", func(p *Package) []Dependency { return p.Requires }},
	{"conflicts", func(p *Package) []Dependency { return p.Conflicts }},
	{"obsoletes", func(p *Package) []Dependency { return p.Obsoletes }},
}

// WritePackages inserts pkgs and their dependent rows in one transaction.
func (s *SQLiteStorage) WritePackages(ctx context.Context, pkgs []Package) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	pkgStmt, err := tx.PrepareContext(ctx, insertPackage)
	if err != nil {
		return err
	}
	defer pkgStmt.Close()

	fileStmt, err := tx.PrepareContext(ctx, "INSERT INTO files (name, type, pkgKey) VALUES (?, ?, ?)")
	if err != nil {
		return err
	}
	defer fileStmt.Close()

	for i := range pkgs {
		p := &pkgs[i]
		result, err := pkgStmt.ExecContext(ctx,
			p.PkgID, p.Name, p.Arch, p.Version, p.Epoch, p.Release, p.Summary,
			p.Description, p.URL, p.TimeFile, p.TimeBuild, p.License, p.Vendor,
			p.Group, p.BuildHost, p.SourceRPM, p.HeaderStart, p.HeaderEnd,
			p.Packager, p.SizePackage, p.SizeInstalled, p.SizeArchive,
			p.LocationHref, p.ChecksumType)
		if err != nil {
			return fmt.Errorf("failed to insert package %s: %w", p.LocationHref, err)
		}
		pkgKey, err := result.LastInsertId()
		if err != nil {
			return err
		}

		for _, f := range p.Files {
			if _, err := fileStmt.ExecContext(ctx, f.Name, f.Type, pkgKey); err != nil {
				return fmt.Errorf("failed to insert file %s: %w", f.Name, err)
			}
		}
		for _, rel := range relations {
			if err := insertDependencies(ctx, tx, rel.table, pkgKey, rel.deps(p)); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func insertDependencies(ctx context.Context, tx *sql.Tx, table string, pkgKey int64, deps []Dependency) error {
	for _, d := range deps {
		var err error
		if table == "requires" {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO requires (name, flags, epoch, version, release, pkgKey, pre) VALUES (?, ?, ?, ?, ?, ?, ?)",
				d.Name, nullable(d.Flags), nullable(d.Epoch), nullable(d.Version), nullable(d.Release), pkgKey, d.Pre)
		} else {
			_, err = tx.ExecContext(ctx,
				"INSERT INTO "+table+" (name, flags, epoch, version, release, pkgKey) VALUES (?, ?, ?, ?, ?, ?)",
				d.Name, nullable(d.Flags), nullable(d.Epoch), nullable(d.Version), nullable(d.Release), pkgKey)
		}
		if err != nil {
			return fmt.Errorf("failed to insert %s entry %s: %w", table, d.Name, err)
		}
	}
	return nil
}

// nullable stores absent dependency fields as NULL, the way yum expects.
func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// SetChecksum records the database version and the checksum of the
// primary.xml the database was generated from.
func (s *SQLiteStorage) SetChecksum(ctx context.Context, checksum string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM db_info"); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO db_info (dbversion, checksum) VALUES (?, ?)", DatabaseVersion, checksum); err != nil {
		return err
	}
	return tx.Commit()
}

// CountPackages returns the number of package rows.
func (s *SQLiteStorage) CountPackages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM packages").Scan(&n)
	return n, err
}

// GetPackage reads a package and its dependent rows back by pkgId.
func (s *SQLiteStorage) GetPackage(ctx context.Context, pkgID string) (*Package, error) {
	var (
		p      Package
		pkgKey int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT pkgKey, pkgId, name, arch, version, epoch, release, summary,
			description, url, time_file, time_build, rpm_license, rpm_vendor,
			rpm_group, rpm_buildhost, rpm_sourcerpm, rpm_header_start,
			rpm_header_end, rpm_packager, size_package, size_installed,
			size_archive, location_href, checksum_type
		FROM packages WHERE pkgId = ?`, pkgID).Scan(
		&pkgKey, &p.PkgID, &p.Name, &p.Arch, &p.Version, &p.Epoch, &p.Release,
		&p.Summary, &p.Description, &p.URL, &p.TimeFile, &p.TimeBuild,
		&p.License, &p.Vendor, &p.Group, &p.BuildHost, &p.SourceRPM,
		&p.HeaderStart, &p.HeaderEnd, &p.Packager, &p.SizePackage,
		&p.SizeInstalled, &p.SizeArchive, &p.LocationHref, &p.ChecksumType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.Files, err = s.files(ctx, pkgKey); err != nil {
		return nil, err
	}
	if p.Provides, err = s.dependencies(ctx, "provides", pkgKey); err != nil {
		return nil, err
	}
	if p.Requires, err = s.dependencies(ctx, "requires", pkgKey); err != nil {
		return nil, err
	}
	if p.Conflicts, err = s.dependencies(ctx, "conflicts", pkgKey); err != nil {
		return nil, err
	}
	if p.Obsoletes, err = s.dependencies(ctx, "obsoletes", pkgKey); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStorage) files(ctx context.Context, pkgKey int64) ([]File, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, type FROM files WHERE pkgKey = ? ORDER BY rowid", pkgKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []File
	for rows.Next() {
		var f File
		if err := rows.Scan(&f.Name, &f.Type); err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

func (s *SQLiteStorage) dependencies(ctx context.Context, table string, pkgKey int64) ([]Dependency, error) {
	pre := "0"
	if table == "requires" {
		pre = "pre"
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT name, flags, epoch, version, release, "+pre+" FROM "+table+" WHERE pkgKey = ? ORDER BY rowid", pkgKey)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deps []Dependency
	for rows.Next() {
		var (
			d                              Dependency
			flags, epoch, version, release sql.NullString
		)
		if err := rows.Scan(&d.Name, &flags, &epoch, &version, &release, &d.Pre); err != nil {
			return nil, err
		}
		d.Flags, d.Epoch, d.Version, d.Release = flags.String, epoch.String, version.String, release.String
		deps = append(deps, d)
	}
	return deps, rows.Err()
}
