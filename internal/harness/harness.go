package harness

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/cockroachdb/errors"

	"github.com/roach88/containersync/internal/aspace/aspacetest"
	"github.com/roach88/containersync/internal/engine"
	"github.com/roach88/containersync/internal/resolve"
	"github.com/roach88/containersync/internal/sheet"
	"github.com/roach88/containersync/internal/testutil"
)

const defaultRepoID = 2

// Harness executes one scenario against a fresh backend.
type Harness struct {
	server   *aspacetest.Server
	recorder *testutil.EventRecorder
	runIDs   *testutil.FixedRunID
	cfg      engine.Config
}

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Start an in-memory backend and load the scenario's records
//  2. Execute each run in order, sharing one event log
//  3. Evaluate assertions against the combined log and final backend state
//
// The returned error covers harness problems only; a run that misbehaves
// or a failed assertion is reported through Result.
func Run(t testing.TB, scenario *Scenario) (*Result, error) {
	t.Helper()

	repoID := scenario.RepoID
	if repoID == 0 {
		repoID = defaultRepoID
	}
	runID := scenario.RunID
	if runID == "" {
		runID = "run-1"
	}

	h := &Harness{
		server:   aspacetest.NewServer(t),
		recorder: testutil.NewEventRecorder(),
		runIDs:   testutil.NewFixedRunID(runID),
		cfg: engine.Config{
			RepoID:    repoID,
			ChunkSize: scenario.ChunkSize,
			Layout:    sheet.DefaultLayout(),
		},
	}
	h.loadBackend(scenario.Backend)

	ctx := context.Background()
	result := NewResult()
	for i, run := range scenario.Runs {
		rr, err := h.executeRun(ctx, t, run)
		if err != nil {
			return nil, errors.Wrapf(err, "runs[%d]", i)
		}
		result.Runs = append(result.Runs, rr)
		if msg := checkRunOutcome(run, rr); msg != "" {
			result.AddError(fmt.Sprintf("runs[%d]: %s", i, msg))
		}
	}

	result.Events = h.recorder.Events(t)
	result.Mutations = h.server.Mutations()

	actx := &AssertionContext{Server: h.server, Mutations: result.Mutations}
	for _, msg := range EvaluateAssertions(result, scenario.Assertions, actx) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) executeRun(ctx context.Context, t testing.TB, run RunSpec) (RunResult, error) {
	if run.Heal {
		h.server.Heal()
	}
	if run.Backend != nil {
		h.loadBackend(*run.Backend)
	}

	opts := []engine.Option{engine.WithRunIDGenerator(h.runIDs)}
	if run.Resume {
		r := resolve.New()
		if err := r.SeedFromLog(h.recorder.Events(t)); err != nil {
			return RunResult{}, errors.Wrap(err, "seed resolver")
		}
		opts = append(opts, engine.WithResolver(r))
	}

	im, err := engine.NewImporter(h.server.Client(t), h.recorder.Log, h.cfg, opts...)
	if err != nil {
		return RunResult{}, errors.Wrap(err, "create importer")
	}

	stats, err := im.Run(ctx, rows("Containers", run.Containers), rows("Instances", run.Instances))
	rr := RunResult{Stats: stats}
	if err != nil {
		rr.Err = err.Error()
	}
	return rr, nil
}

func (h *Harness) loadBackend(b Backend) {
	s := h.server
	if b.NextID > 0 {
		s.NextID(b.NextID)
	}
	for _, ao := range b.ArchivalObjects {
		s.AddArchivalObject(ao.Repo, ao.ID, ao.Instances)
	}
	for _, tc := range b.TopContainers {
		s.AddTopContainer(tc.Repo, tc.ID, tc.Indicator)
	}
	for _, r := range b.RejectContainers {
		s.RejectContainer(r.Indicator, r.Status, r.Body)
	}
	for _, r := range b.RejectUpdates {
		s.RejectUpdate(r.URI, r.Status, r.Body)
	}
	if b.FailBatchFetch != nil {
		s.FailBatchFetch(b.FailBatchFetch.Status, b.FailBatchFetch.Body)
	}
}

// checkRunOutcome compares a run's error against its expect_error.
func checkRunOutcome(run RunSpec, rr RunResult) string {
	switch {
	case run.ExpectError == "" && rr.Err != "":
		return fmt.Sprintf("unexpected error: %s", rr.Err)
	case run.ExpectError != "" && rr.Err == "":
		return fmt.Sprintf("expected error containing %q, run finished", run.ExpectError)
	case run.ExpectError != "" && !strings.Contains(rr.Err, run.ExpectError):
		return fmt.Sprintf("expected error containing %q, got %q", run.ExpectError, rr.Err)
	}
	return ""
}
