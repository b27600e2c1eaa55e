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

// ContainerReconciler creates top containers from container rows.
//
// Each row ends in exactly one state: skipped, failed validation, created,
// or failed remotely. No row is retried within a run.
type ContainerReconciler struct {
	remote    Remote
	log       *eventlog.Log
	layout    sheet.Layout
	repoID    int
	resolver  *resolve.Resolver
	validator *validate.Validator
	stats     *Stats
	logger    *zap.SugaredLogger
}

// NewContainerReconciler returns a reconciler sharing resolver and
// validator with the rest of the run.
func NewContainerReconciler(remote Remote, log *eventlog.Log, cfg Config, resolver *resolve.Resolver, v *validate.Validator) *ContainerReconciler {
	return &ContainerReconciler{
		remote:    remote,
		log:       log,
		layout:    cfg.Layout,
		repoID:    cfg.RepoID,
		resolver:  resolver,
		validator: v,
		stats:     &Stats{},
		logger:    zap.NewNop().Sugar(),
	}
}

// Stats returns the counters updated by this reconciler.
func (c *ContainerReconciler) Stats() Stats {
	return *c.stats
}

// Reconcile processes rows in order. It only returns an error when ctx is
// done.
func (c *ContainerReconciler) Reconcile(ctx context.Context, rows []sheet.Row) error {
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return errors.Wrap(err, "container pass interrupted")
		}
		if err := c.Row(ctx, row); err != nil {
			return err
		}
	}
	return nil
}

// Row processes a single container row.
func (c *ContainerReconciler) Row(ctx context.Context, row sheet.Row) error {
	tempID := row.Get(c.layout.TempID).String()

	if tempID != "" && c.resolver.Seeded(tempID) {
		c.validator.Observe(row)
		id, _ := c.resolver.Resolve(tempID)
		c.log.Warn(eventlog.SkipContainer, eventlog.TempID(tempID), eventlog.ID(id))
		c.stats.ContainersSkipped++
		return nil
	}

	if !c.validator.ContainerRow(row) {
		c.resolver.Poison(tempID)
		c.stats.ContainersFailed++
		return nil
	}

	tc, err := c.build(row)
	if err != nil {
		c.fail(tempID, err)
		return nil
	}

	id, err := c.remote.CreateContainer(ctx, c.repoID, tc)
	if err != nil {
		if ctx.Err() != nil {
			return errors.Wrapf(ctx.Err(), "creating container %q", tempID)
		}
		c.fail(tempID, err)
		return nil
	}

	if err := c.resolver.Register(tempID, id); err != nil {
		// The container exists remotely but cannot be tracked; stop before
		// instances are attached to the wrong container.
		return errors.Wrapf(err, "row %d", row.Number)
	}
	c.log.Info(eventlog.CreateContainer, eventlog.TempID(tempID), eventlog.ID(id))
	c.stats.ContainersCreated++
	c.logger.Debugw("Created container", "temp_id", tempID, "id", id, "row", row.Number)
	return nil
}

func (c *ContainerReconciler) fail(tempID string, err error) {
	c.resolver.Poison(tempID)
	c.log.Error(eventlog.FailedCreateContainer, eventlog.TempID(tempID), eventlog.Result(errorResult(err)))
	c.stats.ContainersFailed++
	c.logger.Debugw("Container creation failed", "temp_id", tempID, "error", err)
}

func (c *ContainerReconciler) build(row sheet.Row) (payload.TopContainer, error) {
	profile, err := refID(row, c.layout.Profile)
	if err != nil {
		return payload.TopContainer{}, err
	}
	location, err := refID(row, c.layout.Location)
	if err != nil {
		return payload.TopContainer{}, err
	}
	return payload.NewTopContainer(payload.ContainerSpec{
		Type:              row.Get(c.layout.ContainerType).String(),
		Indicator:         row.Get(c.layout.Indicator).String(),
		Barcode:           row.Get(c.layout.Barcode).String(),
		ProfileID:         profile,
		LocationID:        location,
		LocationStartDate: row.Get(c.layout.LocationStartDate).String(),
	})
}

// refID reads an optional record id cell. Empty is 0.
func refID(row sheet.Row, header string) (int, error) {
	if header == "" {
		return 0, nil
	}
	v := row.Get(header)
	if !v.Present() {
		return 0, nil
	}
	id, ok := v.Int()
	if !ok || id < 0 {
		return 0, errors.Newf("%s %q is not a record id", header, v.String())
	}
	return id, nil
}
