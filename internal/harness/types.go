package harness

import (
	"github.com/roach88/containersync/internal/engine"
	"github.com/roach88/containersync/internal/eventlog"
)

// RunResult is the outcome of one import run inside a scenario.
type RunResult struct {
	Stats engine.Stats `json:"stats"`

	// Err is the run error text, empty when the run finished.
	Err string `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every run behaved as declared and every assertion held.
	Pass bool `json:"pass"`

	// Events is the combined log of all runs, in write order.
	Events []eventlog.Event `json:"-"`

	Runs []RunResult `json:"runs"`

	// Errors holds assertion and run expectation failures.
	Errors []string `json:"errors,omitempty"`

	// Mutations is the number of mutating backend calls across all runs.
	Mutations int `json:"mutations"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Kinds returns the event kinds in write order.
func (r *Result) Kinds() []eventlog.Kind {
	kinds := make([]eventlog.Kind, 0, len(r.Events))
	for _, e := range r.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}
