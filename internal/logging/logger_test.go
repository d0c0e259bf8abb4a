package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func newTestLogger(minLevel Level) (*Logger, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return &Logger{out: buf, minLevel: minLevel}, buf
}

func decodeEntries(t *testing.T, buf *bytes.Buffer) []Entry {
	t.Helper()
	var entries []Entry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid JSON line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLevelFiltering(t *testing.T) {
	logger, buf := newTestLogger(LevelWarn)

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept too", errors.New("boom"))

	entries := decodeEntries(t, buf)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != "WARN" || entries[1].Level != "ERROR" {
		t.Errorf("Unexpected levels: %s, %s", entries[0].Level, entries[1].Level)
	}
}

func TestEntryFields(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("sync completed", map[string]interface{}{"synced": 3})

	entries := decodeEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "sync completed" {
		t.Errorf("Unexpected message: %q", entry.Message)
	}
	if entry.Timestamp == "" {
		t.Error("Expected timestamp")
	}
	if entry.Context["synced"] != float64(3) {
		t.Errorf("Unexpected context: %v", entry.Context)
	}
	if entry.Code != "" || entry.Error != "" {
		t.Errorf("Expected empty code and error, got %q / %q", entry.Code, entry.Error)
	}
}

func TestErrorWithCode(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.ErrorWithCode("replay failed", "SYNC_FAILED", errors.New("remote down"),
		map[string]interface{}{"item_id": 7})

	entries := decodeEntries(t, buf)
	if len(entries) != 1 {
		t.Fatalf("Expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Code != "SYNC_FAILED" {
		t.Errorf("Expected code, got %q", entry.Code)
	}
	if entry.Error != "remote down" {
		t.Errorf("Expected error string, got %q", entry.Error)
	}
}

func TestMergeContext(t *testing.T) {
	logger, buf := newTestLogger(LevelDebug)

	logger.Info("merged",
		map[string]interface{}{"a": "1", "b": "old"},
		map[string]interface{}{"b": "new"})

	entries := decodeEntries(t, buf)
	ctx := entries[0].Context
	if ctx["a"] != "1" || ctx["b"] != "new" {
		t.Errorf("Unexpected merged context: %v", ctx)
	}
}

func TestGetInitializesDefaults(t *testing.T) {
	if Get() == nil {
		t.Fatal("Expected a usable global logger")
	}
}
