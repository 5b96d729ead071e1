package mirror

import (
	"context"

	"github.com/bissquit/incident-mirror/internal/domain"
)

// Store persists the incident id to message id mapping.
type Store interface {
	// Get returns the message id for an incident. found is false when the
	// incident has never been sent.
	Get(ctx context.Context, incidentID string) (messageID string, found bool, err error)
	// Put records the message id for an incident, replacing any previous one.
	Put(ctx context.Context, incidentID, messageID string) error
}

// Messenger sends, fetches and edits messages on the messaging platform.
//
// Fetch must return an error wrapping ErrMessageNotFound when the message no
// longer exists, and an error wrapping ErrMessaging for any other failure.
type Messenger interface {
	Send(ctx context.Context, payload Payload) (messageID string, err error)
	Fetch(ctx context.Context, messageID string) (*Message, error)
	Edit(ctx context.Context, messageID string, payload Payload) error
}

// Feed produces the current incident snapshot.
type Feed interface {
	FetchIncidents(ctx context.Context) ([]domain.Incident, error)
}

// Locker guards a pass against overlapping runs.
type Locker interface {
	// TryLock acquires the lock without blocking. It returns false if the
	// lock is held by someone else.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// LeaseExtender is implemented by lockers whose hold expires. The poller
// extends the lease before each incident so a long pass keeps it.
type LeaseExtender interface {
	Extend(ctx context.Context) error
}

// NopLocker never refuses a pass.
type NopLocker struct{}

// TryLock always succeeds.
func (NopLocker) TryLock(context.Context) (bool, error) { return true, nil }

// Unlock does nothing.
func (NopLocker) Unlock(context.Context) error { return nil }
