package store

import (
	"bytes"
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/eventlog"
)

// ErrReadOnly is returned by Append on a store from OpenReadOnly.
var ErrReadOnly = errors.New("mirror opened read-only")

// Append inserts one event log line. Boundary events open and close a row
// in runs; every other event is tagged with the run in progress.
func (s *Store) Append(ctx context.Context, line []byte) error {
	if s.readOnly {
		return ErrReadOnly
	}
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}
	e, err := eventlog.ParseLine(line)
	if err != nil {
		return errors.Wrap(err, "append event")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	runID, _ := e.String("run_id")
	ts := ""
	if !e.Timestamp.IsZero() {
		ts = e.Timestamp.UTC().Format(time.RFC3339Nano)
	}

	switch e.Kind {
	case eventlog.StartIngest:
		if runID != "" {
			if _, err := s.db.ExecContext(ctx, `
				INSERT INTO runs (run_id, started_at) VALUES (?, ?)
				ON CONFLICT(run_id) DO NOTHING
			`, runID, ts); err != nil {
				return errors.Wrap(err, "append event: start run")
			}
		}
		s.run = runID
	case eventlog.EndIngest:
		if runID == "" {
			runID = s.run
		}
		if runID != "" {
			if _, err := s.db.ExecContext(ctx, `
				UPDATE runs SET ended_at = ? WHERE run_id = ?
			`, ts, runID); err != nil {
				return errors.Wrap(err, "append event: end run")
			}
		}
	}
	if runID == "" {
		runID = s.run
	}

	var aoID sql.NullInt64
	if id, ok := e.Int("ao_id"); ok {
		aoID = sql.NullInt64{Int64: int64(id), Valid: true}
	}
	tempID, _ := e.String("temp_id")

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (kind, level, timestamp, run_id, temp_id, ao_id, line)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		string(e.Kind),
		e.Level,
		ts,
		nullString(runID),
		nullString(tempID),
		aoID,
		string(line),
	)
	if err != nil {
		return errors.Wrap(err, "append event")
	}

	if e.Kind == eventlog.EndIngest {
		s.run = ""
	}
	return nil
}

// Write implements zapcore.WriteSyncer so the store can be attached to an
// event log with eventlog.WithMirror. Each call carries one encoded line.
func (s *Store) Write(p []byte) (int, error) {
	if err := s.Append(context.Background(), p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Sync is a no-op; every Write is committed before it returns.
func (s *Store) Sync() error {
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
