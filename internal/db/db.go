// Package db opens the sqlite files used by the dataset bundle and the
// results store and keeps their schemas current with embedded migrations.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"
)

//go:embed migrations
var migrationsFS embed.FS

// Schema selects one of the embedded migration sets.
type Schema string

const (
	SchemaBundle Schema = "bundle" // case bundle: bundle_meta, cases
	SchemaStore  Schema = "store"  // results store: verify_*, sweep_*
)

// Migrations returns the migration files for s.
func Migrations(s Schema) (fs.FS, error) {
	switch s {
	case SchemaBundle, SchemaStore:
	default:
		return nil, fmt.Errorf("unknown schema %q", s)
	}
	return fs.Sub(migrationsFS, "migrations/"+string(s))
}

// DB wraps a sqlite handle.
type DB struct {
	*sql.DB
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// OpenDB opens (or creates) the sqlite file at path and applies the
// connection pragmas. It does not migrate.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	// One connection keeps the per-connection pragmas in force.
	sqlDB.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}
	return &DB{sqlDB}, nil
}

// Open opens path and migrates it to the latest version of schema s.
func Open(path string, s Schema) (*DB, error) {
	d, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	fsys, err := Migrations(s)
	if err != nil {
		d.Close()
		return nil, err
	}
	if err := d.MigrateUp(fsys); err != nil {
		d.Close()
		return nil, err
	}
	return d, nil
}
