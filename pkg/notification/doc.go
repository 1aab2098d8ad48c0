// Package notification defines the persisted data model of the delivery
// pipeline: notification records, their delivery state machine, and the
// append-only delivery log.
//
// A Record captures one notification intent for one channel. Its lifecycle is
// deliberately narrow:
//
//	PENDING -> DELIVERED
//	PENDING -> FAILED
//	FAILED  -> PENDING   (explicit operator retry only, bounded by MaxRetries)
//
// Every transition is paired with a LogEntry append; the log, not the record,
// is the source of truth for history, since the record only holds the latest
// state.
//
// Two Store implementations are provided: MemoryStore for development and
// testing, and PGStore backed by a pgx connection pool for production. Both
// also implement DeliveryLog.
//
// # Usage
//
//	store := notification.NewMemoryStore()
//
//	rec := &notification.Record{
//	    Type:    notification.TypeEmployeeWelcome,
//	    Channel: notification.ChannelEmail,
//	    Email:   "ann@example.com",
//	    Message: "Welcome aboard!",
//	}
//	if err := store.Create(ctx, rec); err != nil {
//	    // handle error
//	}
//
// Sentinel errors (ErrNotFound, ErrInvalidState, ErrRetryExhausted) signal
// state-machine violations and can be checked with errors.Is.
package notification
