package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/payload"
	"github.com/roach88/containersync/internal/resolve"
	"github.com/roach88/containersync/internal/sheet"
	"github.com/roach88/containersync/internal/validate"
)

// RecordReconciler attaches instances to parent records.
type RecordReconciler struct {
	remote    Remote
	log       *eventlog.Log
	layout    sheet.Layout
	repoID    int
	chunkSize int
	resolver  *resolve.Resolver
	validator *validate.Validator
	stats     *Stats
	logger    *zap.SugaredLogger
}

// NewRecordReconciler returns a reconciler sharing resolver and validator
// with the rest of the run. cfg.ChunkSize must already be in range.
func NewRecordReconciler(remote Remote, log *eventlog.Log, cfg Config, resolver *resolve.Resolver, v *validate.Validator) *RecordReconciler {
	chunk := cfg.ChunkSize
	if chunk == 0 {
		chunk = DefaultChunkSize
	}
	return &RecordReconciler{
		remote:    remote,
		log:       log,
		layout:    cfg.Layout,
		repoID:    cfg.RepoID,
		chunkSize: chunk,
		resolver:  resolver,
		validator: v,
		stats:     &Stats{},
		logger:    zap.NewNop().Sugar(),
	}
}

// Stats returns the counters updated by this reconciler.
func (r *RecordReconciler) Stats() Stats {
	return *r.stats
}

// parentGroup is the rows of one parent, in sheet order.
type parentGroup struct {
	id   int
	rows []sheet.Row
}

// Reconcile groups rows by parent, skips parents finished by an earlier
// run and processes the rest chunk by chunk. A failed batch fetch returns
// a *BatchFetchError and no later chunk is attempted.
func (r *RecordReconciler) Reconcile(ctx context.Context, rows []sheet.Row) error {
	groups := r.group(rows)

	pending := groups[:0]
	for _, g := range groups {
		if r.resolver.ParentProcessed(g.id) {
			r.log.Warn(eventlog.SkipAO, eventlog.AOID(g.id))
			r.stats.ParentsSkipped++
			continue
		}
		pending = append(pending, g)
	}

	for n, chunk := range chunks(pending, r.chunkSize) {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "record pass interrupted")
		}
		if err := r.chunk(ctx, n+1, chunk); err != nil {
			return err
		}
	}
	return nil
}

// group partitions rows by parent id, ascending. Rows without a usable
// parent id are handled here and not returned.
func (r *RecordReconciler) group(rows []sheet.Row) []parentGroup {
	byID := make(map[int][]sheet.Row)
	for _, row := range rows {
		cell := row.Get(r.layout.ParentID)
		id, ok := cell.Int()
		if ok && id > 0 {
			byID[id] = append(byID[id], row)
			continue
		}
		if !r.validator.SubContainerRow(row) {
			r.countRejected(row)
			continue
		}
		// Passed validation with a parent id that is not a record id.
		r.log.Error(eventlog.FailedMissingAO,
			eventlog.Value("ao_id", cell),
			eventlog.TempID(row.Get(r.layout.TempID).String()),
			eventlog.Result(fmt.Sprintf("%q is not a record id", cell.String())),
		)
		r.stats.RowsFailed++
	}

	ids := make([]int, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	groups := make([]parentGroup, 0, len(ids))
	for _, id := range ids {
		groups = append(groups, parentGroup{id: id, rows: byID[id]})
	}
	return groups
}

func (r *RecordReconciler) chunk(ctx context.Context, n int, groups []parentGroup) error {
	ids := make([]int, len(groups))
	for i, g := range groups {
		ids[i] = g.id
	}

	recs, err := r.remote.FetchRecords(ctx, r.repoID, ids)
	if err != nil {
		return newBatchFetchError(n, ids, err)
	}
	r.logger.Debugw("Fetched parent chunk", "chunk", n, "requested", len(ids), "returned", len(recs))

	byID := make(map[int]*payload.Record, len(recs))
	for _, rec := range recs {
		id, err := rec.ID()
		if err != nil {
			return newBatchFetchError(n, ids, err)
		}
		byID[id] = rec
	}

	for _, g := range groups {
		if err := r.parent(ctx, g, byID[g.id]); err != nil {
			return err
		}
	}
	return nil
}

// parent appends every resolvable row of g to rec and posts rec once if
// anything was appended.
func (r *RecordReconciler) parent(ctx context.Context, g parentGroup, rec *payload.Record) error {
	if rec == nil {
		r.log.Error(eventlog.FailedMissingAO, eventlog.AOID(g.id), eventlog.Result(nil))
		r.stats.ParentsFailed++
		return nil
	}

	rec.Drop("position")
	before := rec.InstanceCount()
	var added []eventlog.Added

	for _, row := range g.rows {
		if !r.validator.SubContainerRow(row) {
			r.countRejected(row)
			continue
		}
		tempID := row.Get(r.layout.TempID).String()
		containerID, ok := r.resolver.Resolve(tempID)
		if !ok {
			r.log.Error(eventlog.FailedUpdateAO,
				eventlog.AOID(g.id),
				eventlog.TempID(tempID),
				eventlog.Result(fmt.Sprintf("%q not present in temp id map", tempID)),
			)
			r.stats.RowsFailed++
			continue
		}
		if err := r.appendInstance(rec, row, containerID); err != nil {
			r.log.Error(eventlog.FailedUpdateAO,
				eventlog.AOID(g.id),
				eventlog.TempID(tempID),
				eventlog.Result(err),
			)
			r.stats.RowsFailed++
			continue
		}
		added = append(added, eventlog.Added{TempID: tempID, ContainerID: containerID})
	}

	if rec.InstanceCount() <= before {
		r.stats.ParentsUnchanged++
		r.logger.Debugw("Parent unchanged, not submitted", "ao_id", g.id, "rows", len(g.rows))
		return nil
	}

	if err := r.remote.UpdateRecord(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "updating %s", rec.URI())
		}
		r.log.Error(eventlog.FailedUpdateAO,
			eventlog.AOID(g.id),
			eventlog.RecordURI(rec.URI()),
			eventlog.Result(errorResult(err)),
		)
		r.stats.ParentsFailed++
		return nil
	}

	r.log.Info(eventlog.UpdateAO,
		eventlog.AOID(g.id),
		eventlog.RecordURI(rec.URI()),
		eventlog.InstancesAdded(added),
	)
	r.resolver.MarkProcessed(g.id)
	r.stats.ParentsUpdated++
	r.stats.InstancesAdded += len(added)
	return nil
}

func (r *RecordReconciler) appendInstance(rec *payload.Record, row sheet.Row, containerID int) error {
	inst, err := payload.NewInstance(payload.InstanceSpec{
		RepoID:         r.repoID,
		ContainerID:    containerID,
		InstanceType:   row.Get(r.layout.InstanceType).String(),
		ChildType:      row.Get(r.layout.ChildType).String(),
		ChildIndicator: row.Get(r.layout.ChildIndicator).String(),
	})
	if err != nil {
		return err
	}
	return rec.AppendInstance(inst)
}

func (r *RecordReconciler) countRejected(row sheet.Row) {
	if r.resolver.Poisoned(row.Get(r.layout.TempID).String()) {
		r.stats.RowsOmitted++
		return
	}
	r.stats.RowsFailed++
}

// chunks splits s into consecutive slices of at most size elements.
func chunks[T any](s []T, size int) [][]T {
	var out [][]T
	for len(s) > 0 {
		n := min(size, len(s))
		out = append(out, s[:n:n])
		s = s[n:]
	}
	return out
}
