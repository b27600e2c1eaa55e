package eventlog

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// maxLineSize bounds one log line. Failure events echo whole parent
// records, which can be large.
const maxLineSize = 16 << 20

// Event is one decoded log line.
type Event struct {
	Kind      Kind
	Timestamp time.Time
	Level     string

	// Line is the 1-based line number in the source, when read from a stream.
	Line int

	// Fields holds every other key. Numbers are json.Number.
	Fields map[string]any
}

// CorruptLineError reports a line that is not a valid event.
type CorruptLineError struct {
	Line int
	Err  error
}

func (e *CorruptLineError) Error() string {
	return fmt.Sprintf("event log line %d: %v", e.Line, e.Err)
}

func (e *CorruptLineError) Unwrap() error {
	return e.Err
}

// timestamp layouts accepted on read, newest writer first.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
}

// ParseLine decodes a single JSON line.
func ParseLine(line []byte) (Event, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return Event{}, err
	}
	if raw == nil {
		return Event{}, errors.New("not an object")
	}

	kind, _ := raw["event"].(string)
	if kind == "" {
		return Event{}, errors.New("missing event kind")
	}
	e := Event{Kind: Kind(kind), Fields: raw}
	delete(raw, "event")

	if ts, ok := raw["timestamp"].(string); ok {
		t, err := parseTimestamp(ts)
		if err != nil {
			return Event{}, err
		}
		e.Timestamp = t
		delete(raw, "timestamp")
	}
	if lvl, ok := raw["level"].(string); ok {
		e.Level = lvl
		delete(raw, "level")
	}
	return e, nil
}

func parseTimestamp(ts string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, ts); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.Newf("unrecognized timestamp %q", ts)
}

// Read decodes every line of r in order. Blank lines are ignored; the
// first malformed line stops reading with a *CorruptLineError.
func Read(r io.Reader) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var events []Event
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		e, err := ParseLine(line)
		if err != nil {
			return events, &CorruptLineError{Line: n, Err: err}
		}
		e.Line = n
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return events, &CorruptLineError{Line: n + 1, Err: err}
	}
	return events, nil
}

// ReadFile reads a log file from disk.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open event log")
	}
	defer f.Close()
	return Read(f)
}

// String returns a string field.
func (e Event) String(key string) (string, bool) {
	s, ok := e.Fields[key].(string)
	return s, ok
}

// Int returns an integer field. Integral JSON numbers and decimal strings
// are accepted; older logs wrote ids either way.
func (e Event) Int(key string) (int, bool) {
	switch v := e.Fields[key].(type) {
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, false
		}
		return int(n), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

// Strings returns a list-of-strings field.
func (e Event) Strings(key string) []string {
	list, _ := e.Fields[key].([]any)
	out := make([]string, 0, len(list))
	for _, item := range list {
		out = append(out, fmt.Sprint(item))
	}
	return out
}

// Raw returns a field re-encoded as JSON, or nil when absent.
func (e Event) Raw(key string) json.RawMessage {
	v, ok := e.Fields[key]
	if !ok {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
