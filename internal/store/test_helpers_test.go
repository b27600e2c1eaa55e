package store

import (
	"path/filepath"
	"testing"
)

// createTestStore creates a new store in a temp directory.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// line builds an event log line with a fixed timestamp.
func line(kind string, extra string) []byte {
	if extra != "" {
		extra = "," + extra
	}
	return []byte(`{"level":"info","timestamp":"2026-03-01T12:00:00Z","logger":"test","event":"` + kind + `"` + extra + "}\n")
}
