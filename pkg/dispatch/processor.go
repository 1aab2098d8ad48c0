package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/google/uuid"

	"github.com/peoplehub/notify/pkg/channels"
	"github.com/peoplehub/notify/pkg/notification"
	"github.com/peoplehub/notify/pkg/queue"
)

// Processor is the queue handler that performs one delivery attempt per job.
// It loads the referenced record, hands it to the channel adapter, and
// settles the record's state: DELIVERED on success, FAILED once the job's
// attempt budget is spent. Intermediate failures leave the record PENDING so
// the queue's backoff drives the next attempt.
type Processor struct {
	store    notification.Store
	dlog     notification.DeliveryLog
	registry *channels.Registry
	logger   *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewProcessor creates a delivery processor.
func NewProcessor(
	store notification.Store,
	dlog notification.DeliveryLog,
	registry *channels.Registry,
	opts ...ProcessorOption,
) (*Processor, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if registry == nil {
		return nil, ErrRegistryNil
	}

	p := &Processor{
		store:    store,
		dlog:     dlog,
		registry: registry,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Handle implements queue.Handler.
func (p *Processor) Handle(ctx context.Context, job queue.Job) error {
	rec, err := p.store.Get(ctx, job.NotificationID)
	if err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			// The job references a record that no longer exists; retrying
			// cannot fix that, so drop the job.
			p.logger.Error("dispatch job references missing notification",
				slog.String("job_id", job.ID.String()),
				slog.String("notification_id", job.NotificationID))
			return nil
		}
		return fmt.Errorf("load notification %s: %w", job.NotificationID, err)
	}

	if rec.Status != notification.StatusPending {
		// A stale or duplicate job; the record already settled.
		p.logger.Warn("skipping job for settled notification",
			slog.String("notification_id", rec.ID),
			slog.String("status", string(rec.Status)))
		return nil
	}

	sendErr := p.deliver(ctx, rec)
	if sendErr == nil {
		now := time.Now()
		if _, err := p.store.MarkDelivered(ctx, rec.ID, now); err != nil {
			return fmt.Errorf("mark notification %s delivered: %w", rec.ID, err)
		}
		p.appendLog(ctx, rec.ID, notification.ActionDelivered,
			fmt.Sprintf("attempt %d via %s", job.Attempt, rec.Channel))

		p.logger.Info("notification delivered",
			slog.String("notification_id", rec.ID),
			slog.String("channel", string(rec.Channel)),
			slog.Int("attempt", job.Attempt))
		return nil
	}

	if job.Attempt >= job.MaxAttempts {
		// Final attempt; the record settles as failed alongside the job.
		if _, err := p.store.MarkFailed(ctx, rec.ID, time.Now(), sendErr.Error()); err != nil {
			p.logger.Error("failed to mark notification failed",
				slog.String("notification_id", rec.ID),
				slog.String("error", err.Error()))
		}
		p.appendLog(ctx, rec.ID, notification.ActionFailed,
			fmt.Sprintf("attempt %d of %d: %s", job.Attempt, job.MaxAttempts, sendErr))
	}

	return sendErr
}

func (p *Processor) deliver(ctx context.Context, rec *notification.Record) error {
	adapter, err := p.registry.Adapter(rec.Channel)
	if err != nil {
		return err
	}

	// The request gets its own copy: the record's payload may be shared with
	// sibling notifications fanned out from one event, and the stored record
	// must not pick up the delivery tag.
	data := maps.Clone(rec.Data)
	if data == nil {
		data = make(map[string]any, 1)
	}
	data["type"] = string(rec.Type)

	return adapter.Send(ctx, channels.Request{
		NotificationID: rec.ID,
		Recipient:      rec.Recipient(),
		Subject:        rec.Subject,
		Message:        rec.Message,
		Data:           data,
	})
}

func (p *Processor) appendLog(ctx context.Context, notificationID string, action notification.Action, details string) {
	if p.dlog == nil {
		return
	}
	err := p.dlog.Append(ctx, notification.LogEntry{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Action:         action,
		Details:        details,
		Timestamp:      time.Now(),
	})
	if err != nil {
		p.logger.Error("failed to append delivery log",
			slog.String("notification_id", notificationID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()))
	}
}
