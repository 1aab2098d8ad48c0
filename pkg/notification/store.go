package notification

import (
	"context"
	"time"
)

// Store handles notification record persistence. All mutation goes through
// single-record updates; there are no multi-record transactions, so the
// consistency model is last-write-wins per record. Concurrent retries of the
// same record are prevented by the state-machine precondition, not locking.
type Store interface {
	// Create stores a new record. The record must be addressed and carry a
	// message; Status is forced to PENDING.
	Create(ctx context.Context, rec *Record) error

	// Get retrieves a record by ID.
	Get(ctx context.Context, id string) (*Record, error)

	// MarkDelivered transitions PENDING -> DELIVERED and sets SentAt and
	// DeliveredAt. Calling it on an already DELIVERED record is a no-op so a
	// duplicate worker ack cannot skew timestamps.
	MarkDelivered(ctx context.Context, id string, at time.Time) (*Record, error)

	// MarkFailed transitions PENDING -> FAILED, sets FailedAt and the error
	// message.
	MarkFailed(ctx context.Context, id string, at time.Time, errMsg string) (*Record, error)

	// ResetForRetry transitions FAILED -> PENDING for an explicit retry:
	// increments RetryCount, clears ErrorMessage. Returns ErrInvalidState
	// unless the record is FAILED, ErrRetryExhausted once the budget is spent.
	ResetForRetry(ctx context.Context, id string) (*Record, error)

	// MarkRead sets ReadAt for in-app consumption. Idempotent.
	MarkRead(ctx context.Context, id string, at time.Time) error

	// Query lists records matching the filter, newest first.
	Query(ctx context.Context, f Filter) ([]Record, error)
}

// DeliveryLog is the append-only action history per notification.
type DeliveryLog interface {
	// Append writes one log entry. Entries are immutable once written.
	Append(ctx context.Context, entry LogEntry) error

	// ListByNotification returns all entries for a record in append order.
	ListByNotification(ctx context.Context, notificationID string) ([]LogEntry, error)
}

// Filter narrows Query results. Zero values mean "no restriction".
type Filter struct {
	UserID  string
	Type    Type
	Channel Channel
	Status  Status
	Since   *time.Time
	Until   *time.Time
	Limit   int
	Offset  int
}
