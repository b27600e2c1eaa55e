package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/roach88/containersync/internal/aspace"
	"github.com/roach88/containersync/internal/eventlog"
	"github.com/roach88/containersync/internal/payload"
	"github.com/roach88/containersync/internal/sheet"
)

// Headers read by the repair sheets.
const (
	HeaderContainerRecordID = "Container Record ID"
	HeaderBarcode           = "Barcode"
	HeaderLocation          = "Location"
	HeaderLocationStartDate = "Location Start Date"

	HeaderArchivalObject     = "Archival Object"
	HeaderCurrentContainerID = "Current Container Record ID"
	HeaderNewContainerID     = "New Container Record ID"
	HeaderRepoID             = "Repo ID"
)

// ContainerUpdateRules are the integer headers of an update-containers sheet.
func ContainerUpdateRules() sheet.Rules {
	return sheet.NewRules(HeaderContainerRecordID, HeaderLocation)
}

// RepointRules are the integer headers of a repoint-instances sheet.
func RepointRules() sheet.Rules {
	return sheet.NewRules(HeaderArchivalObject, HeaderCurrentContainerID, HeaderNewContainerID, HeaderRepoID)
}

// MaintenanceRemote is the backend API the repair operations use.
// Implemented by *aspace.Client.
type MaintenanceRemote interface {
	GetRecord(ctx context.Context, uri string) (*payload.Record, error)
	FetchRecords(ctx context.Context, repoID int, ids []int) ([]*payload.Record, error)
	UpdateRecord(ctx context.Context, rec *payload.Record) error
	DeleteRecord(ctx context.Context, uri string) error
	ListRepositories(ctx context.Context) ([]aspace.Repository, error)
	ListJobs(ctx context.Context, repoURI string) ([]aspace.Job, error)
}

// MaintenanceStats counts outcomes of one repair run.
type MaintenanceStats struct {
	Updated   int `json:"updated"`
	Deleted   int `json:"deleted"`
	Failed    int `json:"failed"`
	Missing   int `json:"missing"`
	Unmatched int `json:"unmatched"`
}

// Repoint is one top container reference rewritten on a parent.
type Repoint struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// Maintenance runs the one-off repair operations against existing
// records. Every operation is bracketed by start_ingest and end_ingest.
type Maintenance struct {
	Remote MaintenanceRemote
	Log    *eventlog.Log
	RepoID int

	RunIDs RunIDGenerator     // nil = UUIDv7
	Logger *zap.SugaredLogger // nil = nop
}

func (m *Maintenance) logger() *zap.SugaredLogger {
	if m.Logger == nil {
		return zap.NewNop().Sugar()
	}
	return m.Logger
}

func (m *Maintenance) check() error {
	if m.Remote == nil {
		return errors.New("maintenance: remote is required")
	}
	if m.Log == nil {
		return errors.New("maintenance: event log is required")
	}
	return nil
}

func (m *Maintenance) bracket(fn func() error) error {
	if err := m.check(); err != nil {
		return err
	}
	ids := m.RunIDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	runID := ids.Generate()
	m.Log.Info(eventlog.StartIngest, eventlog.RunID(runID))
	if err := fn(); err != nil {
		return err
	}
	m.Log.Info(eventlog.EndIngest, eventlog.RunID(runID))
	return nil
}

// UpdateContainers sets the barcode of existing top containers and
// appends a current location when one is given. Rows are independent: a
// failure is logged and the next row is processed.
func (m *Maintenance) UpdateContainers(ctx context.Context, rows []sheet.Row) (MaintenanceStats, error) {
	var stats MaintenanceStats
	err := m.bracket(func() error {
		for _, row := range rows {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "container update interrupted")
			}
			if err := m.updateContainer(ctx, row, &stats); err != nil {
				return err
			}
		}
		return nil
	})
	return stats, err
}

func (m *Maintenance) updateContainer(ctx context.Context, row sheet.Row, stats *MaintenanceStats) error {
	fail := func(result any, extra ...eventlog.Field) {
		fields := append([]eventlog.Field{eventlog.Data(row)}, extra...)
		m.Log.Error(eventlog.FailedUpdateContainer, append(fields, eventlog.Result(result))...)
		stats.Failed++
	}

	id, ok := row.Get(HeaderContainerRecordID).Int()
	if !ok || id <= 0 {
		fail(fmt.Sprintf("row %d: %s is required", row.Number, HeaderContainerRecordID))
		return nil
	}
	uri := payload.ContainerURI(m.RepoID, id)

	rec, err := m.Remote.GetRecord(ctx, uri)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "reading %s", uri)
		}
		if aspace.IsNotFound(err) {
			m.Log.Error(eventlog.FailedUpdateContainer, eventlog.Data(row), eventlog.URI(uri), eventlog.Result(errorResult(err)))
			stats.Missing++
			return nil
		}
		fail(errorResult(err), eventlog.URI(uri))
		return nil
	}

	if barcode := row.Get(HeaderBarcode); barcode.Present() {
		if err := rec.Set("barcode", barcode.String()); err != nil {
			fail(err, eventlog.URI(uri))
			return nil
		}
	}
	if loc, ok := row.Get(HeaderLocation).Int(); ok && loc > 0 {
		start := row.Get(HeaderLocationStartDate).String()
		if err := rec.AppendContainerLocation(payload.NewCurrentLocation(loc, start)); err != nil {
			fail(err, eventlog.URI(uri))
			return nil
		}
	}

	if err := m.Remote.UpdateRecord(ctx, rec); err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "updating %s", uri)
		}
		fail(errorResult(err), eventlog.URI(uri))
		return nil
	}
	m.Log.Info(eventlog.UpdateContainer, eventlog.URI(uri), eventlog.Data(row))
	stats.Updated++
	return nil
}

// parentKey identifies a parent across repositories.
type parentKey struct {
	repo int
	id   int
}

type repointRow struct {
	row      sheet.Row
	key      parentKey
	from, to int
}

// RepointInstances moves instances from one top container to another.
// Parents are fetched per repository in chunks of MaxChunkSize; each
// changed parent is posted once with every repoint its rows asked for.
func (m *Maintenance) RepointInstances(ctx context.Context, rows []sheet.Row) (MaintenanceStats, error) {
	var stats MaintenanceStats
	err := m.bracket(func() error {
		return m.repoint(ctx, rows, &stats)
	})
	return stats, err
}

func (m *Maintenance) repoint(ctx context.Context, rows []sheet.Row, stats *MaintenanceStats) error {
	var pending []repointRow
	idsByRepo := make(map[int][]int)
	for _, row := range rows {
		r, err := m.parseRepointRow(row)
		if err != nil {
			m.Log.Error(eventlog.FailedUpdateAO, eventlog.Data(row), eventlog.Result(err))
			stats.Failed++
			continue
		}
		if !slices.Contains(idsByRepo[r.key.repo], r.key.id) {
			idsByRepo[r.key.repo] = append(idsByRepo[r.key.repo], r.key.id)
		}
		pending = append(pending, r)
	}

	repos := make([]int, 0, len(idsByRepo))
	for repo := range idsByRepo {
		repos = append(repos, repo)
	}
	slices.Sort(repos)

	records := make(map[parentKey]*payload.Record)
	n := 0
	for _, repo := range repos {
		ids := idsByRepo[repo]
		slices.Sort(ids)
		for _, chunk := range chunks(ids, MaxChunkSize) {
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "repoint interrupted")
			}
			n++
			recs, err := m.Remote.FetchRecords(ctx, repo, chunk)
			if err != nil {
				return newBatchFetchError(n, chunk, err)
			}
			for _, rec := range recs {
				id, err := rec.ID()
				if err != nil {
					return newBatchFetchError(n, chunk, err)
				}
				records[parentKey{repo, id}] = rec
			}
		}
	}

	var order []parentKey
	changes := make(map[parentKey][]Repoint)
	missing := make(map[parentKey]bool)
	for _, r := range pending {
		rec, ok := records[r.key]
		if !ok {
			if !missing[r.key] {
				m.Log.Error(eventlog.FailedMissingAO, eventlog.AOID(r.key.id), eventlog.Int("repo_id", r.key.repo), eventlog.Result(nil))
				stats.Missing++
				missing[r.key] = true
			}
			continue
		}
		if !rec.RepointInstance(r.from, r.to) {
			m.Log.Error(eventlog.FailedUpdateAO,
				eventlog.AOID(r.key.id),
				eventlog.RecordURI(rec.URI()),
				eventlog.Data(r.row),
				eventlog.Result(fmt.Sprintf("no instance references top container %d", r.from)),
			)
			stats.Unmatched++
			continue
		}
		if _, seen := changes[r.key]; !seen {
			order = append(order, r.key)
		}
		changes[r.key] = append(changes[r.key], Repoint{From: r.from, To: r.to})
	}

	for _, key := range order {
		rec := records[key]
		rec.Drop("position")
		repointed := eventlog.Reflect("repointed", changes[key])
		if err := m.Remote.UpdateRecord(ctx, rec); err != nil {
			if ctx.Err() != nil {
				return errors.Wrapf(ctx.Err(), "updating %s", rec.URI())
			}
			m.Log.Error(eventlog.FailedUpdateAO,
				eventlog.AOID(key.id),
				eventlog.RecordURI(rec.URI()),
				repointed,
				eventlog.Result(errorResult(err)),
			)
			stats.Failed++
			continue
		}
		m.Log.Info(eventlog.UpdateAO, eventlog.AOID(key.id), eventlog.RecordURI(rec.URI()), repointed)
		stats.Updated++
	}
	m.logger().Infow("Repoint finished", "parents", len(order), "stats", *stats)
	return nil
}

func (m *Maintenance) parseRepointRow(row sheet.Row) (repointRow, error) {
	r := repointRow{row: row, key: parentKey{repo: m.RepoID}}
	if repo, ok := row.Get(HeaderRepoID).Int(); ok && repo > 0 {
		r.key.repo = repo
	}
	var ok bool
	if r.key.id, ok = row.Get(HeaderArchivalObject).Int(); !ok || r.key.id <= 0 {
		return r, errors.Newf("row %d: %s is required", row.Number, HeaderArchivalObject)
	}
	if r.from, ok = row.Get(HeaderCurrentContainerID).Int(); !ok || r.from <= 0 {
		return r, errors.Newf("row %d: %s is required", row.Number, HeaderCurrentContainerID)
	}
	if r.to, ok = row.Get(HeaderNewContainerID).Int(); !ok || r.to <= 0 {
		return r, errors.Newf("row %d: %s is required", row.Number, HeaderNewContainerID)
	}
	return r, nil
}

// PurgeJobs deletes every job of jobType in every repository. Listing
// failures abort the run; a failed delete is logged and skipped.
func (m *Maintenance) PurgeJobs(ctx context.Context, jobType string) (MaintenanceStats, error) {
	var stats MaintenanceStats
	if jobType == "" {
		return stats, errors.New("purge: job type is required")
	}
	err := m.bracket(func() error {
		repos, err := m.Remote.ListRepositories(ctx)
		if err != nil {
			return errors.Wrap(err, "failed to list repositories")
		}
		for _, repo := range repos {
			jobs, err := m.Remote.ListJobs(ctx, repo.URI)
			if err != nil {
				return errors.Wrapf(err, "failed to list jobs of %s", repo.URI)
			}
			for _, job := range jobs {
				if job.JobType != jobType {
					continue
				}
				if err := m.Remote.DeleteRecord(ctx, job.URI); err != nil {
					if ctx.Err() != nil {
						return errors.Wrapf(ctx.Err(), "deleting %s", job.URI)
					}
					m.Log.Error(eventlog.FailedDeleteRecord, eventlog.URI(job.URI), eventlog.Result(errorResult(err)))
					stats.Failed++
					continue
				}
				m.Log.Info(eventlog.DeleteRecord, eventlog.URI(job.URI))
				stats.Deleted++
			}
		}
		m.logger().Infow("Purge finished", "job_type", jobType, "deleted", stats.Deleted, "failed", stats.Failed)
		return nil
	})
	return stats, err
}
