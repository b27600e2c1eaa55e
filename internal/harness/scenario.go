package harness

import (
	"bytes"
	"fmt"
	"os"
	"sort"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/roach88/containersync/internal/engine"
	"github.com/roach88/containersync/internal/sheet"
)

// Scenario defines an end-to-end import scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario checks.
	Description string `yaml:"description"`

	// RepoID defaults to 2.
	RepoID int `yaml:"repo_id,omitempty"`

	// ChunkSize defaults to the importer's default.
	ChunkSize int `yaml:"chunk_size,omitempty"`

	// Backend is loaded before the first run.
	Backend Backend `yaml:"backend,omitempty"`

	// Runs execute in order against the same backend and the same log.
	Runs []RunSpec `yaml:"runs"`

	// Assertions are evaluated after the last run.
	// Supported types: trace_contains, trace_order, trace_count, final_state
	Assertions []Assertion `yaml:"assertions"`

	// RunID is written into every start_ingest. Defaults to "run-1".
	RunID string `yaml:"run_id,omitempty"`
}

// Backend describes the fake backend's records and failure injections.
type Backend struct {
	// NextID is the id the next created top container receives.
	NextID int `yaml:"next_id,omitempty"`

	ArchivalObjects []ArchivalObject `yaml:"archival_objects,omitempty"`
	TopContainers   []TopContainer   `yaml:"top_containers,omitempty"`

	// RejectContainers fails creation of containers by indicator.
	RejectContainers []Rejection `yaml:"reject_containers,omitempty"`

	// RejectUpdates fails posts to a record URI.
	RejectUpdates []Rejection `yaml:"reject_updates,omitempty"`

	// FailBatchFetch fails every archival object batch read.
	FailBatchFetch *Rejection `yaml:"fail_batch_fetch,omitempty"`
}

// ArchivalObject is a parent record with Instances pre-existing instances.
type ArchivalObject struct {
	Repo      int `yaml:"repo"`
	ID        int `yaml:"id"`
	Instances int `yaml:"instances,omitempty"`
}

// TopContainer is an existing container record.
type TopContainer struct {
	Repo      int    `yaml:"repo"`
	ID        int    `yaml:"id"`
	Indicator string `yaml:"indicator"`
}

// Rejection is an injected backend error response. Indicator applies to
// reject_containers and URI to reject_updates.
type Rejection struct {
	Indicator string `yaml:"indicator,omitempty"`
	URI       string `yaml:"uri,omitempty"`
	Status    int    `yaml:"status"`
	Body      string `yaml:"body,omitempty"`
}

// RunSpec is one import invocation.
type RunSpec struct {
	// Resume seeds the resolver from every event written by earlier runs.
	Resume bool `yaml:"resume,omitempty"`

	// Heal clears all failure injections before this run.
	Heal bool `yaml:"heal,omitempty"`

	// Backend is applied on top of the current backend before this run.
	Backend *Backend `yaml:"backend,omitempty"`

	// Containers and Instances are rows keyed by header.
	Containers []map[string]any `yaml:"containers,omitempty"`
	Instances  []map[string]any `yaml:"instances,omitempty"`

	// ExpectError is a substring the run error must contain. Empty means
	// the run must finish.
	ExpectError string `yaml:"expect_error,omitempty"`
}

// Assertion validates the combined event log or the final backend state.
type Assertion struct {
	// Type is one of: trace_contains, trace_order, trace_count, final_state
	Type string `yaml:"type"`

	// Event is the event kind for trace_contains and trace_count.
	Event string `yaml:"event,omitempty"`

	// Fields is a subset the matching event must carry (trace_contains).
	Fields map[string]any `yaml:"fields,omitempty"`

	// Count is the exact number of Event occurrences (trace_count).
	Count int `yaml:"count,omitempty"`

	// Events lists kinds in their required order (trace_order).
	Events []string `yaml:"events,omitempty"`

	// Record and Instances check a record's top container refs (final_state).
	Record    string   `yaml:"record,omitempty"`
	Instances []string `yaml:"instances,omitempty"`

	// Mutations, when set, is the exact number of mutating calls (final_state).
	Mutations *int `yaml:"mutations,omitempty"`
}

// Assertion type constants.
const (
	AssertTraceContains = "trace_contains"
	AssertTraceOrder    = "trace_order"
	AssertTraceCount    = "trace_count"
	AssertFinalState    = "final_state"
)

// LoadScenario loads and validates a scenario from a YAML file.
// Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}
	return ParseScenario(data)
}

// ParseScenario decodes and validates scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, errors.Wrap(err, "failed to parse YAML")
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if s.RepoID < 0 {
		return errors.New("repo_id must be positive")
	}
	if s.ChunkSize < 0 || s.ChunkSize > engine.MaxChunkSize {
		return errors.Newf("chunk_size must be between 1 and %d", engine.MaxChunkSize)
	}
	if len(s.Runs) == 0 {
		return errors.New("runs list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return errors.New("assertions list is required and must be non-empty")
	}

	if err := validateBackend("backend", &s.Backend); err != nil {
		return err
	}
	for i, run := range s.Runs {
		if run.Resume && i == 0 {
			return errors.New("runs[0]: resume needs an earlier run")
		}
		if run.Backend != nil {
			if err := validateBackend(fmt.Sprintf("runs[%d].backend", i), run.Backend); err != nil {
				return err
			}
		}
		for j, row := range append(append([]map[string]any(nil), run.Containers...), run.Instances...) {
			if len(row) == 0 {
				return errors.Newf("runs[%d]: row %d is empty", i, j)
			}
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateBackend(where string, b *Backend) error {
	for i, ao := range b.ArchivalObjects {
		if ao.Repo <= 0 || ao.ID <= 0 {
			return errors.Newf("%s.archival_objects[%d]: repo and id are required", where, i)
		}
	}
	for i, tc := range b.TopContainers {
		if tc.Repo <= 0 || tc.ID <= 0 {
			return errors.Newf("%s.top_containers[%d]: repo and id are required", where, i)
		}
	}
	for i, r := range b.RejectContainers {
		if r.Indicator == "" || r.Status == 0 {
			return errors.Newf("%s.reject_containers[%d]: indicator and status are required", where, i)
		}
	}
	for i, r := range b.RejectUpdates {
		if r.URI == "" || r.Status == 0 {
			return errors.Newf("%s.reject_updates[%d]: uri and status are required", where, i)
		}
	}
	if b.FailBatchFetch != nil && b.FailBatchFetch.Status == 0 {
		return errors.Newf("%s.fail_batch_fetch: status is required", where)
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return errors.Newf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertTraceContains:
		if a.Event == "" {
			return errors.Newf("assertions[%d]: event is required for trace_contains", index)
		}
	case AssertTraceOrder:
		if len(a.Events) == 0 {
			return errors.Newf("assertions[%d]: events list is required for trace_order", index)
		}
	case AssertTraceCount:
		if a.Event == "" {
			return errors.Newf("assertions[%d]: event is required for trace_count", index)
		}
		if a.Count < 0 {
			return errors.Newf("assertions[%d]: count must be non-negative for trace_count", index)
		}
	case AssertFinalState:
		if a.Record == "" && a.Mutations == nil {
			return errors.Newf("assertions[%d]: record or mutations is required for final_state", index)
		}
	default:
		return errors.Newf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// rows converts YAML row maps to sheet rows numbered from 2, as if read
// below a header line. Headers are ordered by name.
func rows(sheetName string, raw []map[string]any) []sheet.Row {
	out := make([]sheet.Row, 0, len(raw))
	for i, m := range raw {
		headers := make([]string, 0, len(m))
		for h := range m {
			headers = append(headers, h)
		}
		sort.Strings(headers)

		pairs := make([]any, 0, 2*len(m))
		for _, h := range headers {
			pairs = append(pairs, h, cell(m[h]))
		}
		out = append(out, sheet.NewRow(sheetName, i+2, pairs...))
	}
	return out
}

// cell maps a YAML scalar to a sheet value. Null stays empty.
func cell(v any) sheet.Value {
	switch x := v.(type) {
	case nil:
		return sheet.Empty
	case int:
		return sheet.IntValue(x)
	case string:
		return sheet.StringValue(x)
	default:
		return sheet.StringValue(fmt.Sprint(x))
	}
}
