// Package db provides database connection management for the Soma offline
// store.
package db

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "github.com/mwangivic/soma/internal/errors"
)

//go:embed schema.sql
var schema string

// SchemaVersion is the fixed schema version stamped into the database via
// PRAGMA user_version. There is no migration machinery: the schema is
// created if missing on first open.
const SchemaVersion = 1

// DB wraps sql.DB with Soma-specific configuration.
type DB struct {
	*sql.DB
}

// Open opens (or creates) the Soma database under dataDir. The database is
// configured with WAL mode, foreign keys, a busy timeout, and a single
// writer connection. Failures to acquire storage are reported as
// STORE_UNAVAILABLE.
func Open(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to create data directory", err)
	}

	dbPath := filepath.Join(dataDir, "soma.db")

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to open database", err)
	}

	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to configure database", err)
		}
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	return &DB{db}, nil
}

// initSchema applies the embedded schema on first open and stamps the schema
// version. Databases written by a newer schema are refused rather than
// silently reinterpreted.
func initSchema(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to read schema version", err)
	}

	switch {
	case version == SchemaVersion:
		return nil
	case version > SchemaVersion:
		return apperrors.New(apperrors.ErrStoreUnavailable,
			fmt.Sprintf("database schema version %d is newer than supported version %d", version, SchemaVersion))
	}

	if _, err := db.Exec(schema); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to create schema", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version=%d", SchemaVersion)); err != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "failed to stamp schema version", err)
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.DB.Close()
}
