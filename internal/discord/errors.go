package discord

import (
	"fmt"
	"net/http"

	"github.com/bissquit/incident-mirror/internal/mirror"
)

// Discord JSON error codes.
const (
	codeUnknownWebhook = 10015
	codeUnknownMessage = 10008
)

// APIError is a failed Discord webhook call. It unwraps to
// mirror.ErrMessageNotFound when the addressed message no longer exists and
// to mirror.ErrMessaging otherwise.
type APIError struct {
	Op      string
	Status  int    // HTTP status, 0 for transport failures
	Code    int    // Discord JSON error code, if any
	Message string
	Err     error // underlying transport error
}

func (e *APIError) Error() string {
	switch {
	case e.Status > 0 && e.Code > 0:
		return fmt.Sprintf("discord %s: status %d code %d: %s", e.Op, e.Status, e.Code, e.Message)
	case e.Status > 0:
		return fmt.Sprintf("discord %s: status %d: %s", e.Op, e.Status, e.Message)
	default:
		return fmt.Sprintf("discord %s: %s", e.Op, e.Message)
	}
}

// NotFound reports whether the message addressed by the call is gone. A
// missing webhook is a configuration problem, not a missing message.
func (e *APIError) NotFound() bool {
	if e.Status != http.StatusNotFound {
		return false
	}
	return e.Code != codeUnknownWebhook
}

// IsRetryable reports whether repeating the call later may succeed.
func (e *APIError) IsRetryable() bool {
	return e.Status == 0 || e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// Unwrap exposes the error kind and the transport cause.
func (e *APIError) Unwrap() []error {
	kind := mirror.ErrMessaging
	if e.NotFound() {
		kind = mirror.ErrMessageNotFound
	}
	if e.Err != nil {
		return []error{kind, e.Err}
	}
	return []error{kind}
}
