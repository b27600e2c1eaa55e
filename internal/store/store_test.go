package store

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/containersync/internal/eventlog"
)

func TestOpen_CreatesNewDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	for i := 0; i < 3; i++ {
		s, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		s.Close()
	}

	s, err := Open(path)
	if err != nil {
		t.Fatalf("final Open() failed: %v", err)
	}
	defer s.Close()

	for _, table := range []string{"events", "runs"} {
		var name string
		err := s.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
			table,
		).Scan(&name)
		if err != nil {
			t.Errorf("table %q not found after idempotent opens: %v", table, err)
		}
	}

	var version int
	if err := s.db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		t.Fatalf("user_version: %v", err)
	}
	if version != currentSchemaVersion {
		t.Errorf("user_version = %d, want %d", version, currentSchemaVersion)
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)
	for name, want := range map[string]string{
		"journal_mode": "wal",
		"busy_timeout": "5000",
		"synchronous":  "1",
	} {
		got, err := s.pragma(name)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("PRAGMA %s = %q, want %q", name, got, want)
		}
	}
}

func TestOpenReadOnly_ReadsMirror(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	w, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	ctx := context.Background()
	for _, l := range [][]byte{
		line("start_ingest", `"run_id":"r1"`),
		line("end_ingest", `"run_id":"r1"`),
	} {
		if err := w.Append(ctx, l); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}
	w.Close()

	r, err := OpenReadOnly(path)
	if err != nil {
		t.Fatalf("OpenReadOnly() failed: %v", err)
	}
	defer r.Close()

	events, err := r.Events(ctx)
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
	if err := r.Append(ctx, line("start_ingest", `"run_id":"r2"`)); !errors.Is(err, ErrReadOnly) {
		t.Errorf("Append() on read-only store = %v, want ErrReadOnly", err)
	}
}

func TestOpenReadOnly_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.db")
	if _, err := OpenReadOnly(path); err == nil {
		t.Fatal("expected error for missing mirror")
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("read-only open created a file")
	}
}

func TestOpenReadOnly_RejectsForeignDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "other.db")
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec("CREATE TABLE things (id INTEGER)"); err != nil {
		t.Fatal(err)
	}
	db.Close()

	_, err = OpenReadOnly(path)
	if !errors.Is(err, ErrNotMirror) {
		t.Fatalf("OpenReadOnly() = %v, want ErrNotMirror", err)
	}
}

func TestOpen_EmptyPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestAppend_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	lines := [][]byte{
		line("start_ingest", `"run_id":"r1"`),
		line("create_container", `"temp_id":"T1","id":42`),
		line("update_ao", `"ao_id":100,"instances_added":[{"temp_id":"T1","container_id":42}]`),
		line("end_ingest", `"run_id":"r1"`),
	}
	for _, l := range lines {
		if err := s.Append(ctx, l); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	events, err := s.Events(ctx)
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	if events[1].Kind != eventlog.CreateContainer {
		t.Errorf("events[1].Kind = %q", events[1].Kind)
	}
	if id, ok := events[1].Int("id"); !ok || id != 42 {
		t.Errorf("events[1] id = %d, %v", id, ok)
	}
	if events[3].Line != 4 {
		t.Errorf("events[3].Line = %d, want seq 4", events[3].Line)
	}
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if !events[0].Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", events[0].Timestamp, want)
	}

	var runID string
	if err := s.db.QueryRow("SELECT run_id FROM events WHERE seq = 2").Scan(&runID); err != nil {
		t.Fatalf("query run_id: %v", err)
	}
	if runID != "r1" {
		t.Errorf("create_container run_id = %q, want r1", runID)
	}
}

func TestAppend_RejectsCorruptLine(t *testing.T) {
	s := createTestStore(t)
	if err := s.Append(context.Background(), []byte(`{"event":`)); err == nil {
		t.Fatal("expected error for corrupt line")
	}
	if err := s.Append(context.Background(), []byte("  \n")); err != nil {
		t.Errorf("blank line should be ignored: %v", err)
	}
}

func TestRuns_TracksCompletion(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	for _, l := range [][]byte{
		line("start_ingest", `"run_id":"r1"`),
		line("end_ingest", `"run_id":"r1"`),
		line("start_ingest", `"run_id":"r2"`),
		line("create_container", `"temp_id":"T1","id":42`),
	} {
		if err := s.Append(ctx, l); err != nil {
			t.Fatalf("Append() failed: %v", err)
		}
	}

	runs, err := s.Runs(ctx)
	if err != nil {
		t.Fatalf("Runs() failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("got %d runs, want 2", len(runs))
	}
	if !runs[0].Complete() {
		t.Error("r1 should be complete")
	}
	if runs[1].Complete() {
		t.Error("r2 should be incomplete")
	}
}

func TestStore_AsEventLogMirror(t *testing.T) {
	s := createTestStore(t)
	var file bytes.Buffer
	log := eventlog.New(&file, "import_container_data", eventlog.WithMirror(s))

	log.Info(eventlog.StartIngest, eventlog.RunID("r1"))
	log.Warn(eventlog.SkipContainer, eventlog.TempID("T1"), eventlog.ID(7))
	log.Info(eventlog.EndIngest, eventlog.RunID("r1"))
	if err := log.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}

	fromFile, err := eventlog.Read(&file)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	fromDB, err := s.Events(context.Background())
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if len(fromFile) != len(fromDB) {
		t.Fatalf("file has %d events, mirror has %d", len(fromFile), len(fromDB))
	}
	for i := range fromFile {
		if fromFile[i].Kind != fromDB[i].Kind || !fromFile[i].Timestamp.Equal(fromDB[i].Timestamp) {
			t.Errorf("event %d differs: file %v, mirror %v", i, fromFile[i], fromDB[i])
		}
	}
}

func TestEvents_EmptyMirror(t *testing.T) {
	s := createTestStore(t)
	events, err := s.Events(context.Background())
	if err != nil {
		t.Fatalf("Events() failed: %v", err)
	}
	if events == nil || len(events) != 0 {
		t.Errorf("Events() = %v, want empty non-nil slice", events)
	}
}
