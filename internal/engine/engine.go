package engine

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/payload"
	"github.com/roach88/containersync/internal/resolve"
	"github.com/roach88/containersync/internal/sheet"
	"github.com/roach88/containersync/internal/validate"
)

// Remote is the subset of the backend API an import run needs.
// Implemented by *aspace.Client.
type Remote interface {
	CreateContainer(ctx context.Context, repoID int, tc payload.TopContainer) (int, error)
	FetchRecords(ctx context.Context, repoID int, ids []int) ([]*payload.Record, error)
	UpdateRecord(ctx context.Context, rec *payload.Record) error
}

// DefaultChunkSize is the number of parent records fetched per batch.
const DefaultChunkSize = 100

// MaxChunkSize bounds the id_set of one batch fetch.
const MaxChunkSize = 250

// Config holds per-run settings.
type Config struct {
	RepoID    int
	ChunkSize int
	Layout    sheet.Layout
}

// Stats counts outcomes of one run.
type Stats struct {
	ContainersCreated int `json:"containers_created"`
	ContainersSkipped int `json:"containers_skipped"`
	ContainersFailed  int `json:"containers_failed"`
	ParentsUpdated    int `json:"parents_updated"`
	ParentsSkipped    int `json:"parents_skipped"`
	ParentsFailed     int `json:"parents_failed"`
	ParentsUnchanged  int `json:"parents_unchanged"`
	InstancesAdded    int `json:"instances_added"`
	RowsFailed        int `json:"rows_failed"`
	RowsOmitted       int `json:"rows_omitted"`
}

// Importer runs a full import: containers, then records, bracketed by
// start_ingest and end_ingest.
type Importer struct {
	remote   Remote
	log      *eventlog.Log
	cfg      Config
	resolver *resolve.Resolver
	runIDs   RunIDGenerator
	logger   *zap.SugaredLogger
}

// Option configures an Importer.
type Option func(*Importer)

// WithResolver supplies a resolver, typically seeded from a prior log.
func WithResolver(r *resolve.Resolver) Option {
	return func(im *Importer) { im.resolver = r }
}

// WithRunIDGenerator overrides the UUIDv7 run id source.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(im *Importer) { im.runIDs = g }
}

// WithLogger sets the diagnostic logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(im *Importer) { im.logger = l }
}

// NewImporter validates cfg and returns an Importer.
func NewImporter(remote Remote, log *eventlog.Log, cfg Config, opts ...Option) (*Importer, error) {
	if remote == nil {
		return nil, errors.New("importer: remote is required")
	}
	if log == nil {
		return nil, errors.New("importer: event log is required")
	}
	if cfg.RepoID <= 0 {
		return nil, errors.Newf("importer: invalid repository id %d", cfg.RepoID)
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	if cfg.ChunkSize < 1 || cfg.ChunkSize > MaxChunkSize {
		return nil, errors.Newf("importer: chunk size %d out of range 1..%d", cfg.ChunkSize, MaxChunkSize)
	}
	if err := cfg.Layout.Validate(); err != nil {
		return nil, errors.Wrap(err, "importer: layout")
	}

	im := &Importer{
		remote: remote,
		log:    log,
		cfg:    cfg,
		runIDs: UUIDv7Generator{},
		logger: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(im)
	}
	if im.resolver == nil {
		im.resolver = resolve.New()
	}
	return im, nil
}

// Resolver returns the run's resolver.
func (im *Importer) Resolver() *resolve.Resolver {
	return im.resolver
}

// Run reconciles container rows, then instance rows. Either slice may be
// empty. The returned error is non-nil only for systemic failures (batch
// fetch, cancellation); in that case end_ingest is not written and the
// returned Stats cover the work done so far.
func (im *Importer) Run(ctx context.Context, containers, instances []sheet.Row) (Stats, error) {
	var stats Stats
	runID := im.runIDs.Generate()
	im.log.Info(eventlog.StartIngest, eventlog.RunID(runID))
	im.logger.Infow("Import started",
		"run_id", runID,
		"container_rows", len(containers),
		"instance_rows", len(instances),
		"seeded_containers", im.resolver.Len(),
	)

	v := validate.New(im.cfg.Layout, im.log, im.resolver)

	cr := &ContainerReconciler{
		remote:    im.remote,
		log:       im.log,
		layout:    im.cfg.Layout,
		repoID:    im.cfg.RepoID,
		resolver:  im.resolver,
		validator: v,
		stats:     &stats,
		logger:    im.logger,
	}
	if err := cr.Reconcile(ctx, containers); err != nil {
		return stats, err
	}

	rr := &RecordReconciler{
		remote:    im.remote,
		log:       im.log,
		layout:    im.cfg.Layout,
		repoID:    im.cfg.RepoID,
		chunkSize: im.cfg.ChunkSize,
		resolver:  im.resolver,
		validator: v,
		stats:     &stats,
		logger:    im.logger,
	}
	if err := rr.Reconcile(ctx, instances); err != nil {
		return stats, err
	}

	im.log.Info(eventlog.EndIngest, eventlog.RunID(runID))
	im.logger.Infow("Import finished", "run_id", runID, "stats", stats)
	return stats, nil
}
