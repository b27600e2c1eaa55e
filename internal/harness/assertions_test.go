package harness

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/containersync/internal/aspace/aspacetest"
	"github.com/roach88/containersync/internal/eventlog"
)

func parseEvents(t *testing.T, lines ...string) []eventlog.Event {
	t.Helper()
	events, err := eventlog.Read(strings.NewReader(strings.Join(lines, "\n")))
	require.NoError(t, err)
	return events
}

func sampleEvents(t *testing.T) []eventlog.Event {
	return parseEvents(t,
		`{"event":"start_ingest","run_id":"r1"}`,
		`{"event":"create_container","temp_id":"T1","id":42}`,
		`{"event":"FAILED create_container","temp_id":"T2","result":{"error":"bad"}}`,
		`{"event":"update_ao","ao_id":100,"instances_added":[{"temp_id":"T1","container_id":42}]}`,
		`{"event":"end_ingest","run_id":"r1"}`,
	)
}

func TestAssertTraceContains(t *testing.T) {
	events := sampleEvents(t)

	tests := []struct {
		name   string
		event  string
		fields map[string]any
		pass   bool
	}{
		{"kind only", "create_container", nil, true},
		{"matching subset", "create_container", map[string]any{"temp_id": "T1", "id": 42}, true},
		{"wrong value", "create_container", map[string]any{"id": 43}, false},
		{"missing field", "create_container", map[string]any{"uri": "x"}, false},
		{"nested result", "FAILED create_container", map[string]any{"result": map[string]any{"error": "bad"}}, true},
		{"list of objects", "update_ao", map[string]any{
			"instances_added": []any{map[string]any{"container_id": 42, "temp_id": "T1"}},
		}, true},
		{"absent kind", "skip_ao", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := assertTraceContains(events, Assertion{Type: AssertTraceContains, Event: tt.event, Fields: tt.fields})
			if tt.pass {
				assert.NoError(t, err)
				return
			}
			var ae *AssertionError
			require.ErrorAs(t, err, &ae)
			assert.Equal(t, "not found in event log", ae.Actual)
		})
	}
}

func TestAssertTraceOrder(t *testing.T) {
	events := sampleEvents(t)

	assert.NoError(t, assertTraceOrder(events, Assertion{Events: []string{"start_ingest", "update_ao", "end_ingest"}}))

	err := assertTraceOrder(events, Assertion{Events: []string{"update_ao", "create_container"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "update_ao (pos 4) should be before create_container (pos 2)")

	err = assertTraceOrder(events, Assertion{Events: []string{"start_ingest", "skip_ao"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing event: skip_ao")
}

func TestAssertTraceCount(t *testing.T) {
	events := sampleEvents(t)

	assert.NoError(t, assertTraceCount(events, Assertion{Event: "create_container", Count: 1}))
	assert.NoError(t, assertTraceCount(events, Assertion{Event: "skip_ao", Count: 0}))

	err := assertTraceCount(events, Assertion{Event: "create_container", Count: 2})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 2 occurrences of create_container")
	assert.Contains(t, err.Error(), "Actual: 1 occurrences")
}

func TestAssertFinalState(t *testing.T) {
	srv := aspacetest.NewServer(t)
	uri := srv.AddArchivalObject(2, 100, 0)
	actx := &AssertionContext{Server: srv, Mutations: 3}

	assert.NoError(t, assertFinalState(actx, Assertion{Record: uri}))
	assert.NoError(t, assertFinalState(actx, Assertion{Record: uri, Instances: []string{}}))

	three, four := 3, 4
	assert.NoError(t, assertFinalState(actx, Assertion{Mutations: &three}))
	err := assertFinalState(actx, Assertion{Mutations: &four})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Expected: 4 mutating calls")

	err = assertFinalState(actx, Assertion{Record: uri, Instances: []string{"/repositories/2/top_containers/1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Actual: []")

	err = assertFinalState(actx, Assertion{Record: "/repositories/2/archival_objects/999"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "record not found")

	assert.Error(t, assertFinalState(nil, Assertion{Record: uri}))
}

func TestEvaluateAssertions_CollectsFailures(t *testing.T) {
	result := NewResult()
	result.Events = sampleEvents(t)

	errs := EvaluateAssertions(result, []Assertion{
		{Type: AssertTraceCount, Event: "start_ingest", Count: 1},
		{Type: AssertTraceCount, Event: "end_ingest", Count: 2},
		{Type: "bogus"},
	}, nil)

	require.Len(t, errs, 2)
	assert.True(t, strings.HasPrefix(errs[0], "assertions[1]: "))
	assert.Contains(t, errs[1], `assertions[2]: unknown assertion type "bogus"`)
}

func TestAssertionError_ListsEvents(t *testing.T) {
	err := &AssertionError{
		Type:     AssertTraceCount,
		Expected: "1 occurrences of skip_ao",
		Actual:   "0 occurrences",
		Events:   parseEvents(t, `{"event":"create_container","temp_id":"T1","id":42}`),
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: trace_count")
	assert.Contains(t, msg, "[1] create_container {id=42 temp_id=T1}")
}

func TestDescribeFields_Empty(t *testing.T) {
	assert.Equal(t, "{}", describeFields(nil))
}
