package eventlog

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// fixedClock returns the same instant for every event.
type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }
func (c fixedClock) NewTicker(d time.Duration) *time.Ticker { return time.NewTicker(d) }

func TestLog_WritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	log := New(&buf, "import_container_data", WithClock(fixedClock{at}))

	log.Info(CreateContainer, TempID("T1"), ID(42))
	log.Error(FailedValidateContainerRow, TempID("T2"), EmptyFields([]string{"Container Indicator"}))
	require.NoError(t, log.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "create_container", first["event"])
	assert.Equal(t, "2026-03-01T12:00:00Z", first["timestamp"])
	assert.Equal(t, "info", first["level"])
	assert.Equal(t, "import_container_data", first["logger"])
	assert.Equal(t, "T1", first["temp_id"])
	assert.Equal(t, float64(42), first["id"])

	var second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "FAILED validate_container_row", second["event"])
	assert.Equal(t, "error", second["level"])
	assert.Equal(t, []any{"Container Indicator"}, second["empty_fields"])
}

func TestLog_ResultEchoesJSONBody(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "test")
	log.Error(FailedCreateContainer, TempID("T1"), Result(json.RawMessage(`{"error":{"indicator":["Property is required"]}}`)))
	log.Error(FailedUpdateAO, Result(assert.AnError))

	events, err := Read(&buf)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.JSONEq(t, `{"error":{"indicator":["Property is required"]}}`, string(events[0].Raw("result")))
	s, ok := events[1].String("result")
	assert.True(t, ok)
	assert.Equal(t, assert.AnError.Error(), s)
}

func TestLog_InstancesAddedNeverNull(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, "test")
	log.Info(UpdateAO, AOID(100), InstancesAdded(nil))

	events, err := Read(&buf)
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(events[0].Raw("instances_added")))
}

type lineRecorder struct{ lines []string }

func (r *lineRecorder) Write(p []byte) (int, error) {
	r.lines = append(r.lines, string(p))
	return len(p), nil
}

func (r *lineRecorder) Sync() error { return nil }

func TestLog_MirrorReceivesWholeLines(t *testing.T) {
	var buf bytes.Buffer
	mirror := &lineRecorder{}
	log := New(&buf, "test", WithMirror(mirror))

	log.Info(StartIngest, RunID("r1"))
	log.Info(EndIngest, RunID("r1"))

	require.Len(t, mirror.lines, 2)
	assert.True(t, strings.HasSuffix(mirror.lines[0], "\n"))
	assert.Equal(t, buf.String(), strings.Join(mirror.lines, ""))
}

type failingMirror struct {
	lineRecorder
	failAt int
}

func (m *failingMirror) Write(p []byte) (int, error) {
	if len(m.lines) == m.failAt {
		m.failAt = -1
		return 0, errors.New("disk I/O error")
	}
	return m.lineRecorder.Write(p)
}

func TestLog_MirrorFailureIsLatched(t *testing.T) {
	var buf, errOut bytes.Buffer
	mirror := &failingMirror{failAt: 1}
	log := New(&buf, "test", WithMirror(mirror), WithErrorOutput(zapcore.AddSync(&errOut)))
	require.NoError(t, log.MirrorErr())

	log.Info(StartIngest, RunID("r1"))
	log.Info(CreateContainer, TempID("T1"), ID(42))
	log.Info(EndIngest, RunID("r1"))

	events, err := Read(&buf)
	require.NoError(t, err)
	assert.Len(t, events, 3, "the file keeps every line")

	assert.Len(t, mirror.lines, 1, "the mirror stops at the failed line")
	err = log.MirrorErr()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.Equal(t, 1, strings.Count(errOut.String(), "disk I/O error"))
}

func TestOpenFile_Appends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ingest.log")

	for i := 0; i < 2; i++ {
		log, err := OpenFile(path, "test")
		require.NoError(t, err)
		log.Info(StartIngest)
		require.NoError(t, log.Close())
	}

	events, err := ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, events, 2)
	assert.Equal(t, 2, events[1].Line)
}

func TestRead_LegacyLines(t *testing.T) {
	input := `{"event": "update_ao", "id": 5, "timestamp": "2019-06-25T16:08:04.594806Z", "level": "info"}

{"event": "create_container", "temp_id": "T1", "id": "42", "timestamp": "2019-06-25T16:08:05.1"}
`
	events, err := Read(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, events, 2)

	assert.Equal(t, UpdateAO, events[0].Kind)
	assert.Equal(t, "info", events[0].Level)
	id, ok := events[0].Int("id")
	assert.True(t, ok)
	assert.Equal(t, 5, id)
	assert.Equal(t, 2019, events[0].Timestamp.Year())

	id, ok = events[1].Int("id")
	assert.True(t, ok)
	assert.Equal(t, 42, id)
	assert.Equal(t, 3, events[1].Line)
}

func TestRead_CorruptLine(t *testing.T) {
	input := "{\"event\":\"start_ingest\",\"timestamp\":\"2026-03-01T12:00:00Z\"}\n{\"event\":\"create_conta"
	events, err := Read(strings.NewReader(input))
	require.Error(t, err)

	var ce *CorruptLineError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, 2, ce.Line)
	assert.Len(t, events, 1)
}

func TestRead_MissingKind(t *testing.T) {
	_, err := Read(strings.NewReader(`{"timestamp":"2026-03-01T12:00:00Z"}`))
	assert.ErrorContains(t, err, "missing event kind")
}

func TestRead_BadTimestamp(t *testing.T) {
	_, err := Read(strings.NewReader(`{"event":"start_ingest","timestamp":"yesterday"}`))
	assert.ErrorContains(t, err, "unrecognized timestamp")
}

func TestEvent_Strings(t *testing.T) {
	e, err := ParseLine([]byte(`{"event":"FAILED validate_container_row","empty_fields":["Container Type","Container Indicator"]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Container Type", "Container Indicator"}, e.Strings("empty_fields"))
	assert.Empty(t, e.Strings("duplicate_fields"))
}

func TestKind_Classes(t *testing.T) {
	assert.True(t, UpdateAO.IsParentDone())
	assert.True(t, SkipRecord.IsParentDone())
	assert.False(t, FailedUpdateAO.IsParentDone())
	assert.True(t, SkipContainer.IsContainerMapping())
	assert.False(t, FailedCreateContainer.IsContainerMapping())
}
