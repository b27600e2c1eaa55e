package harness

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/sebdah/goldie/v2"
)

// Snapshot is the golden form of a scenario execution. Map keys marshal
// sorted, so the JSON is stable.
type Snapshot struct {
	Scenario  string           `json:"scenario"`
	Runs      []RunResult      `json:"runs"`
	Mutations int              `json:"mutations"`
	Events    []map[string]any `json:"events"`
}

// NewSnapshot builds the snapshot of a result.
func NewSnapshot(name string, result *Result) Snapshot {
	events := make([]map[string]any, 0, len(result.Events))
	for _, e := range result.Events {
		m := make(map[string]any, len(e.Fields)+2)
		for k, v := range e.Fields {
			m[k] = v
		}
		m["event"] = string(e.Kind)
		if !e.Timestamp.IsZero() {
			m["timestamp"] = e.Timestamp.UTC().Format(time.RFC3339)
		}
		events = append(events, m)
	}
	return Snapshot{
		Scenario:  name,
		Runs:      result.Runs,
		Mutations: result.Mutations,
		Events:    events,
	}
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns an error if the scenario could not be executed. A snapshot
// mismatch fails the test through goldie.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(t, scenario)
	if err != nil {
		return nil, err
	}

	data, err := json.MarshalIndent(NewSnapshot(scenario.Name, result), "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal snapshot")
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)
	return result, nil
}
