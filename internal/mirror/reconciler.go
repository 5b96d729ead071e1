// Package mirror keeps one message per status page incident in sync with the
// incident feed.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bissquit/incident-mirror/internal/domain"
	"github.com/bissquit/incident-mirror/internal/pkg/ctxlog"
)

// Action is the outcome of reconciling one incident.
type Action string

// Reconcile actions.
const (
	ActionCreated   Action = "created"
	ActionUpdated   Action = "updated"
	ActionUnchanged Action = "unchanged"
	ActionSkipped   Action = "skipped"
)

// ReconcilerConfig contains reconciler configuration.
type ReconcilerConfig struct {
	// IgnoreWindow is the age past which an incident is no longer visited.
	IgnoreWindow time.Duration
	// CallTimeout bounds every store and messenger call.
	CallTimeout time.Duration
}

// DefaultReconcilerConfig returns default reconciler configuration.
func DefaultReconcilerConfig() ReconcilerConfig {
	return ReconcilerConfig{
		IgnoreWindow: 30 * 24 * time.Hour,
		CallTimeout:  15 * time.Second,
	}
}

// Reconciler decides and executes the create, update or skip action for a
// single incident.
type Reconciler struct {
	config    ReconcilerConfig
	store     Store
	messenger Messenger
	now       func() time.Time
}

// NewReconciler creates a new Reconciler.
func NewReconciler(config ReconcilerConfig, store Store, messenger Messenger) *Reconciler {
	return &Reconciler{
		config:    config,
		store:     store,
		messenger: messenger,
		now:       time.Now,
	}
}

// Reconcile brings the message for incident in line with the snapshot.
//
// The store is only written after a send succeeded. Errors wrapping ErrStore
// mean the mapping can no longer be trusted and the pass must stop.
func (r *Reconciler) Reconcile(ctx context.Context, incident domain.Incident) (Action, error) {
	logger := ctxlog.FromContext(ctx)

	if age := r.now().Sub(incident.UpdatedAt); age > r.config.IgnoreWindow {
		logger.Debug("skipping incident outside freshness window", "age", age)
		return ActionSkipped, nil
	}

	messageID, found, err := r.lookup(ctx, incident.ID)
	if err != nil {
		return "", err
	}
	if !found {
		return r.create(ctx, incident)
	}

	message, err := r.fetch(ctx, messageID)
	switch {
	case errors.Is(err, ErrMessageNotFound):
		logger.Info("tracked message is gone, recreating", "message_id", messageID)
		return r.create(ctx, incident)
	case err != nil:
		return "", fmt.Errorf("fetch message %s: %w", messageID, err)
	case message == nil:
		logger.Warn("tracked message has no content, recreating", "message_id", messageID)
		return r.create(ctx, incident)
	}

	if len(message.Payloads) > 0 && sameInstant(message.Payloads[0].Timestamp, incident.UpdatedAt) {
		return ActionUnchanged, nil
	}

	return r.update(ctx, incident, messageID)
}

func (r *Reconciler) create(ctx context.Context, incident domain.Incident) (Action, error) {
	callCtx, cancel := r.callContext(ctx)
	messageID, err := r.messenger.Send(callCtx, Render(incident))
	cancel()
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}

	callCtx, cancel = r.callContext(ctx)
	defer cancel()
	if err := r.store.Put(callCtx, incident.ID, messageID); err != nil {
		return "", fmt.Errorf("%w: record message %s: %w", ErrStore, messageID, err)
	}

	ctxlog.FromContext(ctx).Info("created message", "message_id", messageID)
	return ActionCreated, nil
}

func (r *Reconciler) update(ctx context.Context, incident domain.Incident, messageID string) (Action, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	if err := r.messenger.Edit(callCtx, messageID, Render(incident)); err != nil {
		return "", fmt.Errorf("edit message %s: %w", messageID, err)
	}

	ctxlog.FromContext(ctx).Info("updated message", "message_id", messageID)
	return ActionUpdated, nil
}

func (r *Reconciler) lookup(ctx context.Context, incidentID string) (string, bool, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	messageID, found, err := r.store.Get(callCtx, incidentID)
	if err != nil {
		return "", false, fmt.Errorf("%w: lookup: %w", ErrStore, err)
	}
	return messageID, found, nil
}

func (r *Reconciler) fetch(ctx context.Context, messageID string) (*Message, error) {
	callCtx, cancel := r.callContext(ctx)
	defer cancel()

	return r.messenger.Fetch(callCtx, messageID)
}

func (r *Reconciler) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.config.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.config.CallTimeout)
}

// sameInstant compares timestamps at millisecond precision, which is what
// both the feed and the messaging platform retain.
func sameInstant(a, b time.Time) bool {
	return a.Truncate(time.Millisecond).Equal(b.Truncate(time.Millisecond))
}
