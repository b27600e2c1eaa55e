// Package report summarizes a finished import from its event log.
package report

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/eventlog"
)

// ErrTruncated means the log lacks a start_ingest or an end_ingest after
// the last start_ingest; the import did not finish.
var ErrTruncated = errors.New("event log is truncated")

// RowFailure is a row rejected by validation.
type RowFailure struct {
	TempID          string   `json:"temp_id"`
	AOID            string   `json:"ao_id,omitempty"`
	EmptyFields     []string `json:"empty_fields,omitempty"`
	DuplicateFields []string `json:"duplicate_fields,omitempty"`
}

// RemoteFailure is a remote call that did not succeed.
type RemoteFailure struct {
	TempID    string          `json:"temp_id,omitempty"`
	AOID      string          `json:"ao_id,omitempty"`
	RecordURI string          `json:"record_uri,omitempty"`
	Result    json.RawMessage `json:"result,omitempty"`
}

// Summary aggregates one event log.
type Summary struct {
	StartedAt time.Time     `json:"started_at"`
	EndedAt   time.Time     `json:"ended_at"`
	Elapsed   time.Duration `json:"elapsed_ns"`
	Runs      int           `json:"runs"`

	Counts map[eventlog.Kind]int `json:"counts"`

	ContainerValidation []RowFailure    `json:"container_validation_failures"`
	CreateFailures      []RemoteFailure `json:"create_failures"`
	InstanceValidation  []RowFailure    `json:"instance_validation_failures"`
	Omitted             []RowFailure    `json:"omitted_instances"`
	UpdateFailures      []RemoteFailure `json:"update_failures"`
	MissingParents      []string        `json:"missing_parents"`
}

// Count returns the number of events of kind.
func (s *Summary) Count(kind eventlog.Kind) int {
	return s.Counts[kind]
}

// Summarize aggregates events. Elapsed time runs from the first
// start_ingest to the last end_ingest. A log whose last start_ingest has
// no later end_ingest is truncated.
func Summarize(events []eventlog.Event) (*Summary, error) {
	s := &Summary{
		Counts:              make(map[eventlog.Kind]int),
		ContainerValidation: []RowFailure{},
		CreateFailures:      []RemoteFailure{},
		InstanceValidation:  []RowFailure{},
		Omitted:             []RowFailure{},
		UpdateFailures:      []RemoteFailure{},
		MissingParents:      []string{},
	}

	lastStart, lastEnd := -1, -1
	for i, e := range events {
		s.Counts[e.Kind]++

		switch e.Kind {
		case eventlog.StartIngest:
			if lastStart < 0 {
				s.StartedAt = e.Timestamp
			}
			lastStart = i
			s.Runs++
		case eventlog.EndIngest:
			s.EndedAt = e.Timestamp
			lastEnd = i
		case eventlog.FailedValidateContainerRow:
			s.ContainerValidation = append(s.ContainerValidation, rowFailure(e))
		case eventlog.FailedCreateContainer:
			s.CreateFailures = append(s.CreateFailures, remoteFailure(e))
		case eventlog.FailedValidateSubContainerRow:
			s.InstanceValidation = append(s.InstanceValidation, rowFailure(e))
		case eventlog.OmittedValidateSubContainerRow:
			s.Omitted = append(s.Omitted, rowFailure(e))
		case eventlog.FailedUpdateAO, eventlog.FailedUpdateRecord:
			s.UpdateFailures = append(s.UpdateFailures, remoteFailure(e))
		case eventlog.FailedMissingAO:
			s.MissingParents = append(s.MissingParents, scalar(e, "ao_id"))
		}
	}

	switch {
	case lastStart < 0:
		return nil, errors.Wrap(ErrTruncated, "no start_ingest event")
	case lastEnd < lastStart:
		return nil, errors.Wrapf(ErrTruncated, "no end_ingest after start_ingest on line %d", events[lastStart].Line)
	}
	s.Elapsed = s.EndedAt.Sub(s.StartedAt)
	return s, nil
}

func rowFailure(e eventlog.Event) RowFailure {
	tempID, _ := e.String("temp_id")
	f := RowFailure{
		TempID:          tempID,
		AOID:            scalar(e, "ao_id"),
		DuplicateFields: e.Strings("duplicate_fields"),
	}
	f.EmptyFields = e.Strings("empty_fields")
	if len(f.EmptyFields) == 0 {
		f.EmptyFields = nil
	}
	if len(f.DuplicateFields) == 0 {
		f.DuplicateFields = nil
	}
	return f
}

func remoteFailure(e eventlog.Event) RemoteFailure {
	tempID, _ := e.String("temp_id")
	uri, _ := e.String("record_uri")
	return RemoteFailure{
		TempID:    tempID,
		AOID:      scalar(e, "ao_id"),
		RecordURI: uri,
		Result:    e.Raw("result"),
	}
}

// scalar renders a string or number field as text; "" when absent.
func scalar(e eventlog.Event, key string) string {
	v, ok := e.Fields[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// resultText renders an echoed result compactly. JSON strings print
// without quotes.
func resultText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "null"
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}
