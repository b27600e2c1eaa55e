package testutil

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/containersync/internal/eventlog"
)

// EventRecorder captures an event log in memory for assertions.
type EventRecorder struct {
	Log   *eventlog.Log
	Clock *StepClock
	buf   *bytes.Buffer
}

// NewEventRecorder returns a recorder whose timestamps advance one second
// per event from 2026-03-01T12:00:00Z.
func NewEventRecorder() *EventRecorder {
	buf := &bytes.Buffer{}
	clock := NewStepClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), time.Second)
	return &EventRecorder{
		Log:   eventlog.New(buf, "test", eventlog.WithClock(clock)),
		Clock: clock,
		buf:   buf,
	}
}

// Events decodes everything written so far.
func (r *EventRecorder) Events(t testing.TB) []eventlog.Event {
	t.Helper()
	events, err := eventlog.Read(bytes.NewReader(r.buf.Bytes()))
	require.NoError(t, err)
	return events
}

// Kinds returns the kinds written so far, in order.
func (r *EventRecorder) Kinds(t testing.TB) []eventlog.Kind {
	t.Helper()
	var kinds []eventlog.Kind
	for _, e := range r.Events(t) {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

// Bytes returns the raw log contents.
func (r *EventRecorder) Bytes() []byte {
	return r.buf.Bytes()
}

// OfKind filters events by kind.
func OfKind(events []eventlog.Event, kind eventlog.Kind) []eventlog.Event {
	var out []eventlog.Event
	for _, e := range events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}
