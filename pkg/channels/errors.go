package channels

import "errors"

var (
	ErrNotInitialized   = errors.New("channel adapter not initialized")
	ErrNotConfigured    = errors.New("channel adapter missing provider credentials")
	ErrMissingRecipient = errors.New("delivery request missing recipient")
	ErrSendFailed       = errors.New("provider send failed")
	ErrUnknownChannel   = errors.New("no adapter registered for channel")
	ErrHubClosed        = errors.New("in-app hub is closed")
)
