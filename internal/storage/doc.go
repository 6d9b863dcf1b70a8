// Package storage writes the SQLite form of the primary metadata, the
// primary_db document yum can use instead of parsing primary.xml.
//
// The layout follows yum's primary database, version 10:
//
//   - db_info: database version and the checksum of the matching primary.xml
//   - packages: one row per package, keyed by pkgKey
//   - files: the filtered file list of each package
//   - provides, requires, conflicts, obsoletes: dependency relations
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage(filepath.Join(scratch, "primary.sqlite"))
//	if err != nil {
//	    return err
//	}
//	if err := db.WritePackages(ctx, pkgs); err != nil {
//	    db.Close()
//	    return err
//	}
//	if err := db.SetChecksum(ctx, primaryChecksum); err != nil {
//	    db.Close()
//	    return err
//	}
//	return db.Close()
//
// # Drivers
//
// The default build uses modernc.org/sqlite and needs no C compiler.
// Building with the sqlite_cgo tag switches to github.com/mattn/go-sqlite3.
package storage
