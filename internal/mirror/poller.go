package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bissquit/incident-mirror/internal/domain"
	"github.com/bissquit/incident-mirror/internal/pkg/ctxlog"
)

// Summary reports what one pass did.
type Summary struct {
	Total     int
	Created   int
	Updated   int
	Unchanged int
	Skipped   int
	Failed    int
	Duration  time.Duration
}

func (s *Summary) add(action Action) {
	switch action {
	case ActionCreated:
		s.Created++
	case ActionUpdated:
		s.Updated++
	case ActionUnchanged:
		s.Unchanged++
	case ActionSkipped:
		s.Skipped++
	}
}

// Poller runs reconciliation passes over the incident feed.
type Poller struct {
	feed        Feed
	reconciler  *Reconciler
	locker      Locker
	feedTimeout time.Duration
}

// NewPoller creates a new Poller. A nil locker disables the run guard.
func NewPoller(feed Feed, reconciler *Reconciler, locker Locker, feedTimeout time.Duration) *Poller {
	if locker == nil {
		locker = NopLocker{}
	}
	return &Poller{
		feed:        feed,
		reconciler:  reconciler,
		locker:      locker,
		feedTimeout: feedTimeout,
	}
}

// Run executes one full pass.
//
// Incidents are handled one at a time, oldest first. A failure on one
// incident is logged and counted; the pass continues. Run returns an error
// only for failures that make the whole pass unsafe: the run guard is held
// or its lease was lost, the feed could not be read, the mapping store
// failed, or ctx was cancelled.
func (p *Poller) Run(ctx context.Context) (Summary, error) {
	start := time.Now()
	logger := ctxlog.FromContext(ctx)

	acquired, err := p.locker.TryLock(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		logger.Warn("skipping pass, another pass holds the run lock")
		recordPass("locked", time.Since(start))
		return Summary{}, ErrPassInProgress
	}
	defer func() {
		// The pass context may already be cancelled; release regardless.
		if err := p.locker.Unlock(context.WithoutCancel(ctx)); err != nil {
			logger.Error("failed to release run lock", "error", err)
		}
	}()

	summary, err := p.run(ctx, logger)
	summary.Duration = time.Since(start)

	if err != nil {
		recordPass("failed", summary.Duration)
		return summary, err
	}

	recordPass("success", summary.Duration)
	logger.Info("done",
		"total", summary.Total,
		"created", summary.Created,
		"updated", summary.Updated,
		"unchanged", summary.Unchanged,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (p *Poller) run(ctx context.Context, logger *slog.Logger) (Summary, error) {
	var summary Summary

	incidents, err := p.fetchIncidents(ctx)
	if err != nil {
		return summary, err
	}
	summary.Total = len(incidents)

	// The feed is newest first; handle the oldest first so an interrupted
	// pass leaves older incidents settled.
	for i := len(incidents) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("pass interrupted: %w", err)
		}

		if err := p.extendLease(ctx); err != nil {
			logger.Error("run lock lost, aborting pass", "error", err)
			return summary, err
		}

		incident := incidents[i]
		incidentCtx := ctxlog.With(ctx, "incident_id", incident.ID)
		incidentLogger := ctxlog.FromContext(incidentCtx)
		action, err := p.reconcile(incidentCtx, incident)
		if errors.Is(err, ErrStore) {
			incidentLogger.Error("mapping store failed, aborting pass", "error", err)
			recordReconcile("failed")
			return summary, err
		}
		if err != nil {
			incidentLogger.Error("could not reconcile incident", "error", err)
			recordReconcile("failed")
			summary.Failed++
			continue
		}

		recordReconcile(string(action))
		summary.add(action)
	}

	return summary, nil
}

func (p *Poller) extendLease(ctx context.Context) error {
	extender, ok := p.locker.(LeaseExtender)
	if !ok {
		return nil
	}
	if err := extender.Extend(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrLockLost, err)
	}
	return nil
}

// reconcile turns a panic on one incident into an error so the pass can
// move on to the next one.
func (p *Poller) reconcile(ctx context.Context, incident domain.Incident) (action Action, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("reconcile panicked: %v", rec)
		}
	}()
	return p.reconciler.Reconcile(ctx, incident)
}

func (p *Poller) fetchIncidents(ctx context.Context) ([]domain.Incident, error) {
	fetchCtx, cancel := ctx, context.CancelFunc(func() {})
	if p.feedTimeout > 0 {
		fetchCtx, cancel = context.WithTimeout(ctx, p.feedTimeout)
	}
	defer cancel()

	incidents, err := p.feed.FetchIncidents(fetchCtx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFeed, err)
	}
	return incidents, nil
}
