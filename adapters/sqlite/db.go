// Package sqlite reads period tables (unit costs, labor, volumes and
// exchange rates) from a SQLite database and keeps a history of
// calculation runs next to them.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // pure go sqlite driver

	"landed-cost/internal/errors"
)

const schema = `
CREATE TABLE IF NOT EXISTS period_costs (
	item      TEXT NOT NULL,
	entity    TEXT NOT NULL,
	period    TEXT NOT NULL,
	unit_cost TEXT NOT NULL,
	currency  TEXT NOT NULL,
	PRIMARY KEY (item, entity, period)
);
CREATE TABLE IF NOT EXISTS labor (
	product  TEXT NOT NULL,
	entity   TEXT NOT NULL,
	period   TEXT NOT NULL,
	hours    TEXT NOT NULL,
	rate     TEXT NOT NULL,
	currency TEXT NOT NULL,
	PRIMARY KEY (product, entity, period)
);
CREATE TABLE IF NOT EXISTS volumes (
	product TEXT NOT NULL,
	entity  TEXT NOT NULL,
	period  TEXT NOT NULL,
	units   TEXT NOT NULL,
	PRIMARY KEY (product, entity, period)
);
CREATE TABLE IF NOT EXISTS rates (
	from_currency TEXT NOT NULL,
	to_currency   TEXT NOT NULL,
	period        TEXT NOT NULL,
	rate          TEXT NOT NULL,
	PRIMARY KEY (from_currency, to_currency, period)
);
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	label         TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	base_currency TEXT NOT NULL,
	records       INTEGER NOT NULL,
	warnings      INTEGER NOT NULL,
	incremental   INTEGER NOT NULL,
	payload       BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS run_records (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	product  TEXT NOT NULL,
	entity   TEXT NOT NULL,
	period   TEXT NOT NULL,
	currency TEXT NOT NULL,
	total    TEXT NOT NULL,
	PRIMARY KEY (run_id, product, entity, period)
);
`

// DB is an open cost database
type DB struct {
	db   *sql.DB
	path string
}

// Open opens or creates the database at path and makes sure the tables
// exist
func Open(ctx context.Context, path string) (*DB, error) {
	if path == "" {
		path = "landed-cost.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to create database directory", err).WithContext("path", path)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(errors.TypeConfig, "failed to open sqlite database", err).WithContext("path", path)
	}
	// a single connection keeps writes serialized
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(errors.TypeConfig, "failed to create tables", err).WithContext("path", path)
	}
	return &DB{db: db, path: path}, nil
}

// Path returns the database path
func (d *DB) Path() string { return d.path }

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}
