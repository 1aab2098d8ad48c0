package notification

import "errors"

// Common errors
var (
	// ErrNotFound is returned when a notification record does not exist.
	ErrNotFound = errors.New("notification not found")

	// ErrInvalidState is returned when a state transition violates the
	// PENDING -> {DELIVERED, FAILED} machine.
	ErrInvalidState = errors.New("invalid notification state transition")

	// ErrRetryExhausted is returned when a retry is requested after the
	// record's retry budget is spent.
	ErrRetryExhausted = errors.New("notification retry limit exhausted")

	// ErrMissingRecipient is returned when a record carries neither a user ID
	// nor a raw address.
	ErrMissingRecipient = errors.New("notification requires a user id or raw address")

	// ErrMissingMessage is returned when a record has no message body.
	ErrMissingMessage = errors.New("notification message is required")

	// ErrDuplicateID is returned when creating a record whose ID already exists.
	ErrDuplicateID = errors.New("notification id already exists")
)
