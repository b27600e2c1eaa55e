package harness

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/aspace/aspacetest"
	"github.com/roach88/containersync/internal/eventlog"
)

// AssertionContext carries what final_state assertions inspect.
type AssertionContext struct {
	Server    *aspacetest.Server
	Mutations int
}

// AssertionError is returned when an assertion fails.
// It includes the event kinds seen to help debug the failure.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Events   []eventlog.Event
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nEvent log:\n")
		for i, event := range e.Events {
			fmt.Fprintf(&buf, "  [%d] %s %s\n", i+1, event.Kind, describeFields(event.Fields))
		}
	}
	return buf.String()
}

// EvaluateAssertions runs every assertion and returns the failure messages.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertTraceContains:
			err = assertTraceContains(result.Events, a)
		case AssertTraceOrder:
			err = assertTraceOrder(result.Events, a)
		case AssertTraceCount:
			err = assertTraceCount(result.Events, a)
		case AssertFinalState:
			err = assertFinalState(actx, a)
		default:
			err = errors.Newf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

// assertTraceContains checks for an event of the given kind whose fields
// include every expected field (subset match).
func assertTraceContains(events []eventlog.Event, assertion Assertion) error {
	for _, event := range events {
		if string(event.Kind) == assertion.Event && matchFields(event, assertion.Fields) {
			return nil
		}
	}
	return &AssertionError{
		Type:     AssertTraceContains,
		Expected: fmt.Sprintf("event %s with fields %s", assertion.Event, describeFields(assertion.Fields)),
		Actual:   "not found in event log",
		Events:   events,
	}
}

// assertTraceOrder checks that kinds first appear in the given order.
// Intervening events are allowed.
func assertTraceOrder(events []eventlog.Event, assertion Assertion) error {
	positions := make(map[string]int)
	for i, event := range events {
		kind := string(event.Kind)
		if positions[kind] == 0 && slices.Contains(assertion.Events, kind) {
			positions[kind] = i + 1
		}
	}

	for _, kind := range assertion.Events {
		if positions[kind] == 0 {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("all events present: %v", assertion.Events),
				Actual:   fmt.Sprintf("missing event: %s", kind),
				Events:   events,
			}
		}
	}

	for i := 1; i < len(assertion.Events); i++ {
		prev, curr := assertion.Events[i-1], assertion.Events[i]
		if positions[prev] >= positions[curr] {
			return &AssertionError{
				Type:     AssertTraceOrder,
				Expected: fmt.Sprintf("events in order: %v", assertion.Events),
				Actual: fmt.Sprintf("%s (pos %d) should be before %s (pos %d)",
					prev, positions[prev], curr, positions[curr]),
				Events: events,
			}
		}
	}
	return nil
}

// assertTraceCount checks the kind appears exactly Count times.
func assertTraceCount(events []eventlog.Event, assertion Assertion) error {
	count := 0
	for _, event := range events {
		if string(event.Kind) == assertion.Event {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertTraceCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Event),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Events:   events,
		}
	}
	return nil
}

// assertFinalState checks the stored record's top container refs, in
// order, and the mutation count.
func assertFinalState(actx *AssertionContext, assertion Assertion) error {
	if actx == nil || actx.Server == nil {
		return errors.New("final_state assertion requires a backend")
	}

	if assertion.Mutations != nil && *assertion.Mutations != actx.Mutations {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%d mutating calls", *assertion.Mutations),
			Actual:   fmt.Sprintf("%d mutating calls", actx.Mutations),
		}
	}

	if assertion.Record == "" {
		return nil
	}
	if actx.Server.Record(assertion.Record) == nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("record %s", assertion.Record),
			Actual:   "record not found",
		}
	}

	refs := TopContainerRefs(actx.Server, assertion.Record)
	want := assertion.Instances
	if want == nil {
		want = []string{}
	}
	if !slices.Equal(refs, want) {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("%s instances %v", assertion.Record, want),
			Actual:   fmt.Sprintf("%v", refs),
		}
	}
	return nil
}

// TopContainerRefs returns the top container refs of a stored record, in
// instance order. Instances without a top container are skipped.
func TopContainerRefs(srv *aspacetest.Server, uri string) []string {
	refs := []string{}
	for _, i := range srv.Instances(uri) {
		m, _ := i.(map[string]any)
		sc, _ := m["sub_container"].(map[string]any)
		tc, _ := sc["top_container"].(map[string]any)
		if ref, ok := tc["ref"].(string); ok {
			refs = append(refs, ref)
		}
	}
	return refs
}

// matchFields reports whether every expected field equals the event's
// field of the same name. Values are compared as decoded JSON so YAML
// integers match logged numbers.
func matchFields(event eventlog.Event, expected map[string]any) bool {
	for key, want := range expected {
		raw := event.Raw(key)
		if raw == nil {
			return false
		}
		if !jsonEqual(raw, want) {
			return false
		}
	}
	return true
}

func jsonEqual(actual json.RawMessage, expected any) bool {
	wantJSON, err := json.Marshal(expected)
	if err != nil {
		return false
	}
	var a, b any
	if json.Unmarshal(actual, &a) != nil || json.Unmarshal(wantJSON, &b) != nil {
		return false
	}
	return reflect.DeepEqual(a, b)
}

// describeFields formats a field map with sorted keys.
func describeFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "{}"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, fields[k]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
