package mirror

import "errors"

// Messaging errors. Messenger implementations wrap one of these so the
// reconciler can tell a vanished message from a failing API.
var (
	ErrMessageNotFound = errors.New("message not found")
	ErrMessaging       = errors.New("messaging api error")
)

// Pass errors.
var (
	ErrStore          = errors.New("mapping store error")
	ErrFeed           = errors.New("incident feed error")
	ErrPassInProgress = errors.New("another pass is in progress")
	ErrLockLost       = errors.New("run lock lost")
)
