package queue

import "errors"

// Common errors
var (
	// ErrStorageNil is returned when a nil storage is provided.
	ErrStorageNil = errors.New("storage cannot be nil")

	// ErrHandlerNil is returned when a worker is built without a handler.
	ErrHandlerNil = errors.New("handler cannot be nil")

	// ErrNotificationIDEmpty is returned when enqueueing without a record reference.
	ErrNotificationIDEmpty = errors.New("notification id cannot be empty")

	// ErrInvalidPriority is returned when priority is outside valid range.
	ErrInvalidPriority = errors.New("priority must be between 0 and 100")

	// ErrJobNotFound is returned for operations on unknown job IDs.
	ErrJobNotFound = errors.New("job not found")

	// ErrNoJobToClaim signals that no eligible job is waiting. Workers treat
	// it as a normal idle tick, not a failure.
	ErrNoJobToClaim = errors.New("no job to claim")

	// ErrJobNotRemovable is returned when removing a job that is already
	// being processed; there is no cancellation mid-delivery.
	ErrJobNotRemovable = errors.New("job is active and cannot be removed")

	// ErrJobNotRetryable is returned when an operator retry targets a job
	// that is not in the failed state.
	ErrJobNotRetryable = errors.New("job is not in a retryable state")

	// ErrJobCreate is returned when job creation in storage fails.
	ErrJobCreate = errors.New("failed to create job in storage")
)
