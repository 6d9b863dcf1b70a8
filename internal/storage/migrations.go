package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version. The major
	// version is the yum database version.
	CurrentSchemaVersion = "10.0.0"
)

// Migration represents a database schema migration
type Migration struct {
	Version string
	Up      string
	Down    string
}

// AllMigrations contains all database migrations in order
var AllMigrations = []Migration{
	{
		Version: "10.0.0",
		Up:      migrationV10Up,
		Down:    migrationV10Down,
	},
}

const migrationV10Up = `
-- Schema version tracking
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS db_info (
    dbversion INTEGER,
    checksum TEXT
);

CREATE TABLE IF NOT EXISTS packages (
    pkgKey INTEGER PRIMARY KEY,
    pkgId TEXT,
    name TEXT,
    arch TEXT,
    version TEXT,
    epoch TEXT,
    release TEXT,
    summary TEXT,
    description TEXT,
    url TEXT,
    time_file INTEGER,
    time_build INTEGER,
    rpm_license TEXT,
    rpm_vendor TEXT,
    rpm_group TEXT,
    rpm_buildhost TEXT,
    rpm_sourcerpm TEXT,
    rpm_header_start INTEGER,
    rpm_header_end INTEGER,
    rpm_packager TEXT,
    size_package INTEGER,
    size_installed INTEGER,
    size_archive INTEGER,
    location_href TEXT,
    location_base TEXT,
    checksum_type TEXT
);

CREATE TABLE IF NOT EXISTS files (
    name TEXT,
    type TEXT,
    pkgKey INTEGER
);

CREATE TABLE IF NOT EXISTS requires (
    name TEXT,
    flags TEXT,
    epoch TEXT,
    version TEXT,
    release TEXT,
    pkgKey INTEGER,
    pre BOOLEAN DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS provides (
    name TEXT,
    flags TEXT,
    epoch TEXT,
    version TEXT,
    release TEXT,
    pkgKey INTEGER
);

CREATE TABLE IF NOT EXISTS conflicts (
    name TEXT,
    flags TEXT,
    epoch TEXT,
    version TEXT,
    release TEXT,
    pkgKey INTEGER
);

CREATE TABLE IF NOT EXISTS obsoletes (
    name TEXT,
    flags TEXT,
    epoch TEXT,
    version TEXT,
    release TEXT,
    pkgKey INTEGER
);

CREATE INDEX IF NOT EXISTS packagename ON packages (name);
CREATE INDEX IF NOT EXISTS packageId ON packages (pkgId);
CREATE INDEX IF NOT EXISTS filenames ON files (name);
CREATE INDEX IF NOT EXISTS pkgfiles ON files (pkgKey);
CREATE INDEX IF NOT EXISTS pkgrequires ON requires (pkgKey);
CREATE INDEX IF NOT EXISTS requiresname ON requires (name);
CREATE INDEX IF NOT EXISTS pkgprovides ON provides (pkgKey);
CREATE INDEX IF NOT EXISTS providesname ON provides (name);
CREATE INDEX IF NOT EXISTS pkgconflicts ON conflicts (pkgKey);
CREATE INDEX IF NOT EXISTS pkgobsoletes ON obsoletes (pkgKey);

CREATE TRIGGER IF NOT EXISTS removals AFTER DELETE ON packages
BEGIN
    DELETE FROM files WHERE pkgKey = old.pkgKey;
    DELETE FROM requires WHERE pkgKey = old.pkgKey;
    DELETE FROM provides WHERE pkgKey = old.pkgKey;
    DELETE FROM conflicts WHERE pkgKey = old.pkgKey;
    DELETE FROM obsoletes WHERE pkgKey = old.pkgKey;
END;
`

const migrationV10Down = `
DROP TRIGGER IF EXISTS removals;
DROP TABLE IF EXISTS obsoletes;
DROP TABLE IF EXISTS conflicts;
DROP TABLE IF EXISTS provides;
DROP TABLE IF EXISTS requires;
DROP TABLE IF EXISTS files;
DROP TABLE IF EXISTS packages;
DROP TABLE IF EXISTS db_info;
`

// currentVersion reads the newest applied migration, or 0.0.0.
func currentVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	var tableName string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&tableName)
	if errors.Is(err, sql.ErrNoRows) {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	var version string
	err = db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && version == "") {
		return semver.MustParse("0.0.0"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return nil, fmt.Errorf("invalid current schema version %s: %w", version, err)
	}
	return v, nil
}

// ApplyMigrations runs all pending migrations
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := currentVersion(ctx, db)
	if err != nil {
		return err
	}

	for _, migration := range AllMigrations {
		version, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}
		if !current.LessThan(version) {
			continue // Already applied
		}

		if _, err := db.ExecContext(ctx, migration.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
		if _, err := db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}
		current = version
	}

	return nil
}

// RollbackMigration rolls back the most recent migration
func RollbackMigration(ctx context.Context, db *sql.DB) error {
	var version string
	err := db.QueryRowContext(ctx, "SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("no migrations to rollback: %w", err)
	}

	var migration *Migration
	for i := range AllMigrations {
		if AllMigrations[i].Version == version {
			migration = &AllMigrations[i]
			break
		}
	}
	if migration == nil {
		return fmt.Errorf("migration %s not found", version)
	}

	if _, err := db.ExecContext(ctx, migration.Down); err != nil {
		return fmt.Errorf("failed to rollback migration %s: %w", version, err)
	}
	if _, err := db.ExecContext(ctx, "DELETE FROM schema_version WHERE version = ?", version); err != nil {
		return fmt.Errorf("failed to remove migration record %s: %w", version, err)
	}
	return nil
}
