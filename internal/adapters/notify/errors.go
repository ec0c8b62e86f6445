package notify

import "errors"

// Sentinel kinds for notification errors.
var (
	ErrUnknownTemplate = errors.New("unknown notification template")
	ErrNoRecipient     = errors.New("notification has no recipient")
	ErrNotStarted      = errors.New("notification coordinator not started")
)
