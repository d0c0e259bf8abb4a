package db

import (
	"os"
	"path/filepath"
	"testing"

	apperrors "github.com/mwangivic/soma/internal/errors"
)

// TestOpenCreatesSchema tests first open: directory, database file, schema,
// and version stamp.
func TestOpenCreatesSchema(t *testing.T) {
	dataDir := filepath.Join(t.TempDir(), "nested", "data")

	database, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer database.Close()

	if _, err := os.Stat(filepath.Join(dataDir, "soma.db")); err != nil {
		t.Errorf("Expected database file: %v", err)
	}

	var version int
	if err := database.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("read user_version: %v", err)
	}
	if version != SchemaVersion {
		t.Errorf("Expected schema version %d, got %d", SchemaVersion, version)
	}

	// All collections exist.
	for _, table := range []string{"courses", "viewed_records", "messages", "sync_queue"} {
		var name string
		err := database.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		if err != nil {
			t.Errorf("Expected table %s: %v", table, err)
		}
	}
}

// TestOpenIsIdempotent tests that reopening an existing database leaves it
// intact.
func TestOpenIsIdempotent(t *testing.T) {
	dataDir := t.TempDir()

	database, err := Open(dataDir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	if _, err := database.Exec(
		`INSERT INTO courses (id, title, data, cached_at) VALUES ('c1', 'T', '{}', 1)`); err != nil {
		t.Fatalf("insert: %v", err)
	}
	database.Close()

	database, err = Open(dataDir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer database.Close()

	var count int
	if err := database.QueryRow(`SELECT COUNT(*) FROM courses`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected data to survive reopen, got %d rows", count)
	}
}

// TestOpenRefusesNewerSchema tests that a database stamped by a newer build
// is refused.
func TestOpenRefusesNewerSchema(t *testing.T) {
	dataDir := t.TempDir()

	database, err := Open(dataDir)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if _, err := database.Exec("PRAGMA user_version=99"); err != nil {
		t.Fatalf("stamp version: %v", err)
	}
	database.Close()

	_, err = Open(dataDir)
	if !apperrors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Errorf("Expected STORE_UNAVAILABLE for newer schema, got %v", err)
	}
}

// TestOpenBadDataDir tests the unavailable classification when the data
// directory cannot be created.
func TestOpenBadDataDir(t *testing.T) {
	// A regular file where the directory should go.
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	_, err := Open(filepath.Join(blocker, "data"))
	if !apperrors.Is(err, apperrors.ErrStoreUnavailable) {
		t.Errorf("Expected STORE_UNAVAILABLE, got %v", err)
	}
}
