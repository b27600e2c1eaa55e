package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/containersync/internal/aspace/aspacetest"
	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/resolve"
	"github.com/roach88/containersync/internal/sheet"
	"github.com/roach88/containersync/internal/testutil"
)

const testRepo = 2

func setupImport(t *testing.T) (*aspacetest.Server, *testutil.EventRecorder) {
	t.Helper()
	return aspacetest.NewServer(t), testutil.NewEventRecorder()
}

func newTestImporter(t *testing.T, srv *aspacetest.Server, rec *testutil.EventRecorder, chunkSize int, opts ...Option) *Importer {
	t.Helper()
	opts = append([]Option{WithRunIDGenerator(testutil.NewFixedRunID("run-1"))}, opts...)
	im, err := NewImporter(srv.Client(t), rec.Log, Config{
		RepoID:    testRepo,
		ChunkSize: chunkSize,
		Layout:    sheet.DefaultLayout(),
	}, opts...)
	require.NoError(t, err)
	return im
}

// box is a valid container row.
func box(n int, tempID, indicator string, extra ...any) sheet.Row {
	pairs := append([]any{
		"TempContainerRecord", tempID,
		"Container Type", "box",
		"Container Indicator", indicator,
	}, extra...)
	return sheet.NewRow("Containers", n, pairs...)
}

// inst is an instance row.
func inst(n, aoID int, tempID string, extra ...any) sheet.Row {
	pairs := append([]any{
		"Object Record ID", aoID,
		"TempContainerRecord", tempID,
		"Instance Type", "mixed materials",
	}, extra...)
	return sheet.NewRow("Instances", n, pairs...)
}

func seededResolver(t *testing.T, events []eventlog.Event) *resolve.Resolver {
	t.Helper()
	r := resolve.New()
	require.NoError(t, r.SeedFromLog(events))
	return r
}

// instanceRefs returns the top container refs of a stored record, in order.
func instanceRefs(srv *aspacetest.Server, uri string) []string {
	var refs []string
	for _, i := range srv.Instances(uri) {
		m, _ := i.(map[string]any)
		sc, _ := m["sub_container"].(map[string]any)
		tc, _ := sc["top_container"].(map[string]any)
		ref, _ := tc["ref"].(string)
		refs = append(refs, ref)
	}
	return refs
}
