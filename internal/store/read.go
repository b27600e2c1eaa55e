package store

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/eventlog"
)

// Run is one import run recorded in the mirror.
type Run struct {
	ID        string `json:"run_id"`
	StartedAt string `json:"started_at"`

	// EndedAt is empty for a run that never reached end_ingest.
	EndedAt string `json:"ended_at,omitempty"`
}

// Complete reports whether the run wrote end_ingest.
func (r Run) Complete() bool {
	return r.EndedAt != ""
}

// Events returns every mirrored event ordered by seq. Event.Line is the seq.
//
// Returns an empty slice (not nil) if the mirror is empty.
func (s *Store) Events(ctx context.Context) ([]eventlog.Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, line FROM events ORDER BY seq ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query events")
	}
	defer rows.Close()

	events := []eventlog.Event{}
	for rows.Next() {
		var (
			seq  int
			line string
		)
		if err := rows.Scan(&seq, &line); err != nil {
			return nil, errors.Wrap(err, "scan event")
		}
		e, err := eventlog.ParseLine([]byte(line))
		if err != nil {
			return events, &eventlog.CorruptLineError{Line: seq, Err: err}
		}
		e.Line = seq
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate events")
	}
	return events, nil
}

// Runs returns every recorded run, oldest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, ended_at FROM runs
		ORDER BY started_at ASC, run_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, errors.Wrap(err, "query runs")
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var (
			r     Run
			ended sql.NullString
		)
		if err := rows.Scan(&r.ID, &r.StartedAt, &ended); err != nil {
			return nil, errors.Wrap(err, "scan run")
		}
		r.EndedAt = ended.String
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterate runs")
	}
	return runs, nil
}
