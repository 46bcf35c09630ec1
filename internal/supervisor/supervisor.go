// Package supervisor implements the hanging-journey detector: a
// background sweep that marks a running journey errored if it has
// gone too long without a node execution updating it. Adapted from
// the teacher's TimeoutDetector, which polls a database for runs
// stuck in RUNNING past an inactivity threshold.
//
// This is a supplemented feature, not part of the core engine
// contract: a journey can only hang if a node execution crashes the
// process between marking it running and persisting its next state,
// or an adapter call never returns. Both are operational failures the
// rest of the engine has no way to detect on its own.
package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/lyzr/journeyengine/internal/journey"
	"github.com/lyzr/journeyengine/internal/scheduler"
)

// Lister is the store capability the detector sweeps with. Satisfied
// by filestore.FileStore and pgstore.Store; kept narrow and
// package-local since it is not part of the core store.Store contract
// (§4.3 only requires per-user and per-deadline listing).
type Lister interface {
	ListAllRunning(ctx context.Context) ([]*journey.Journey, error)
	Save(ctx context.Context, j *journey.Journey) error
}

// Router is the subset of the event router a detector needs to stop
// waiting on a journey it is about to mark errored.
type Router interface {
	Unregister(journeyID string)
}

// Detector periodically scans for journeys stuck in StatusRunning and
// marks them errored.
type Detector struct {
	store         Lister
	scheduler     *scheduler.Scheduler
	router        Router
	log           *slog.Logger
	checkInterval time.Duration
	timeout       time.Duration
}

// New builds a Detector with the teacher's defaults: a 30s check
// interval and a 5-minute inactivity timeout. scheduler and router may
// be nil if this deployment doesn't use them.
func New(st Lister, sched *scheduler.Scheduler, router Router, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{
		store:         st,
		scheduler:     sched,
		router:        router,
		log:           log,
		checkInterval: 30 * time.Second,
		timeout:       5 * time.Minute,
	}
}

// WithCheckInterval overrides the sweep cadence.
func (d *Detector) WithCheckInterval(interval time.Duration) *Detector {
	d.checkInterval = interval
	return d
}

// WithTimeout overrides the inactivity threshold.
func (d *Detector) WithTimeout(timeout time.Duration) *Detector {
	d.timeout = timeout
	return d
}

// Start runs the sweep loop until ctx is cancelled.
func (d *Detector) Start(ctx context.Context) error {
	d.log.Info("hanging journey detector starting", "check_interval", d.checkInterval, "timeout", d.timeout)

	ticker := time.NewTicker(d.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.log.Info("hanging journey detector shutting down")
			return ctx.Err()
		case <-ticker.C:
			if err := d.sweep(ctx); err != nil {
				d.log.Error("hanging journey sweep failed", "error", err)
			}
		}
	}
}

func (d *Detector) sweep(ctx context.Context) error {
	running, err := d.store.ListAllRunning(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-d.timeout)
	var hangingCount int
	for _, j := range running {
		if j.UpdatedAt.After(cutoff) {
			continue
		}
		d.log.Warn("detected hanging journey",
			"journey_id", j.JourneyID.String(),
			"campaign_id", j.CampaignID,
			"updated_at", j.UpdatedAt,
			"inactive_duration", time.Since(j.UpdatedAt))

		if err := d.markErrored(ctx, j); err != nil {
			d.log.Error("failed to mark journey errored", "journey_id", j.JourneyID.String(), "error", err)
			continue
		}
		hangingCount++
	}

	if hangingCount > 0 {
		d.log.Info("marked hanging journeys errored", "count", hangingCount)
	}
	return nil
}

func (d *Detector) markErrored(ctx context.Context, j *journey.Journey) error {
	j.Status = journey.StatusErrored
	j.ExitReason = journey.ExitErrored
	j.ResumeAt = nil
	j.WaitConditions = nil
	if err := d.store.Save(ctx, j); err != nil {
		return err
	}

	id := j.JourneyID.String()
	if d.scheduler != nil {
		d.scheduler.Disarm(id)
	}
	if d.router != nil {
		d.router.Unregister(id)
	}
	return nil
}
