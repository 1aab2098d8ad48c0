package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/peoplehub/notify/pkg/notification"
	"github.com/peoplehub/notify/pkg/preferences"
	"github.com/peoplehub/notify/pkg/queue"
	"github.com/peoplehub/notify/pkg/templates"
)

// Input describes one notification to dispatch. Either Message or TemplateID
// must be set; when both are present the rendered template wins.
type Input struct {
	Type     notification.Type
	Channel  notification.Channel
	Priority notification.Priority // empty means NORMAL

	UserID      string
	Email       string
	PhoneNumber string
	DeviceToken string

	Subject    string
	Message    string
	TemplateID string
	Data       map[string]any

	CorrelationID string
	Source        string
}

// Dispatcher runs the submission pipeline: validation, preference filtering,
// quiet-hours deferral, template rendering, persistence, and enqueueing.
// Submission is asynchronous; the returned record is PENDING and the queue
// worker settles its final state.
type Dispatcher struct {
	store    notification.Store
	dlog     notification.DeliveryLog
	filter   *preferences.Filter
	renderer *templates.Renderer
	enqueuer *queue.Enqueuer
	logger   *slog.Logger

	bulkConcurrency int
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithRenderer enables template rendering for inputs carrying a TemplateID.
func WithRenderer(r *templates.Renderer) DispatcherOption {
	return func(d *Dispatcher) { d.renderer = r }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithBulkConcurrency bounds parallel submissions inside SubmitBulk.
func WithBulkConcurrency(n int) DispatcherOption {
	return func(d *Dispatcher) {
		if n > 0 {
			d.bulkConcurrency = n
		}
	}
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(
	store notification.Store,
	dlog notification.DeliveryLog,
	filter *preferences.Filter,
	enqueuer *queue.Enqueuer,
	opts ...DispatcherOption,
) (*Dispatcher, error) {
	if store == nil {
		return nil, ErrStoreNil
	}
	if filter == nil {
		return nil, ErrFilterNil
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerNil
	}

	d := &Dispatcher{
		store:           store,
		dlog:            dlog,
		filter:          filter,
		enqueuer:        enqueuer,
		logger:          slog.Default(),
		bulkConcurrency: 8,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Submit runs one notification through the pipeline. A submission denied by
// the recipient's preferences returns (nil, nil): the denial is a successful
// outcome, not an error, and nothing is persisted for it.
func (d *Dispatcher) Submit(ctx context.Context, in Input) (*notification.Record, error) {
	in, err := normalize(in)
	if err != nil {
		return nil, err
	}

	if !d.filter.Allow(ctx, in.UserID, in.Type, in.Channel) {
		d.logger.Debug("notification skipped by user preferences",
			slog.String("user_id", in.UserID),
			slog.String("type", string(in.Type)),
			slog.String("channel", string(in.Channel)))
		return nil, nil
	}

	// Non-urgent notifications inside the recipient's quiet hours are
	// deferred to the end of the window, never dropped.
	var delay time.Duration
	now := d.filter.Now()
	if in.Priority != notification.PriorityUrgent {
		if qs := d.filter.QuietHoursStatus(ctx, in.UserID, now); qs.InWindow {
			delay = qs.ResumesAt.Sub(now)
		}
	}

	subject, message := in.Subject, in.Message
	if in.TemplateID != "" && d.renderer != nil {
		subject, message, err = d.renderer.Render(ctx, in.TemplateID, in.Data)
		if err != nil {
			return nil, fmt.Errorf("render template %q: %w", in.TemplateID, err)
		}
	}
	if message == "" {
		return nil, ErrEmptyMessage
	}

	rec := &notification.Record{
		ID:            uuid.NewString(),
		Type:          in.Type,
		Channel:       in.Channel,
		Priority:      in.Priority,
		UserID:        in.UserID,
		Email:         in.Email,
		PhoneNumber:   in.PhoneNumber,
		DeviceToken:   in.DeviceToken,
		Subject:       subject,
		Message:       message,
		Data:          in.Data,
		CorrelationID: in.CorrelationID,
		Source:        in.Source,
		MaxRetries:    notification.DefaultMaxRetries,
		CreatedAt:     now,
	}
	if err := d.store.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("persist notification: %w", err)
	}

	d.appendLog(ctx, rec.ID, notification.ActionQueued, queuedDetails(delay))

	enqueueOpts := []queue.EnqueueOption{queue.WithPriority(queuePriority(in.Priority))}
	if delay > 0 {
		enqueueOpts = append(enqueueOpts, queue.WithDelay(delay))
	}
	if _, err := d.enqueuer.Enqueue(ctx, rec.ID, enqueueOpts...); err != nil {
		// The record exists but no job does; park it as failed so an
		// operator retry can resurrect it.
		if _, markErr := d.store.MarkFailed(ctx, rec.ID, time.Now(), "enqueue failed: "+err.Error()); markErr != nil {
			d.logger.Error("failed to park unqueued notification",
				slog.String("notification_id", rec.ID),
				slog.String("error", markErr.Error()))
		}
		return nil, fmt.Errorf("enqueue notification %s: %w", rec.ID, err)
	}

	d.logger.Info("notification queued",
		slog.String("notification_id", rec.ID),
		slog.String("type", string(rec.Type)),
		slog.String("channel", string(rec.Channel)),
		slog.String("priority", string(rec.Priority)),
		slog.Duration("delay", delay))

	return rec, nil
}

// BulkOutcome is the per-input result of a bulk submission.
type BulkOutcome struct {
	Record *notification.Record // nil when skipped by preferences or on error
	Err    error
}

// BulkReport summarizes a bulk submission. A preference denial counts as
// successful: the system did exactly what the recipient asked for.
type BulkReport struct {
	Total      int
	Successful int
	Failed     int
	Outcomes   []BulkOutcome
}

// SubmitBulk submits each input independently with bounded concurrency. One
// failed submission never aborts the rest.
func (d *Dispatcher) SubmitBulk(ctx context.Context, inputs []Input) BulkReport {
	report := BulkReport{
		Total:    len(inputs),
		Outcomes: make([]BulkOutcome, len(inputs)),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.bulkConcurrency)

	for i, in := range inputs {
		g.Go(func() error {
			rec, err := d.Submit(gctx, in)
			report.Outcomes[i] = BulkOutcome{Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	for _, out := range report.Outcomes {
		if out.Err != nil {
			report.Failed++
		} else {
			report.Successful++
		}
	}
	return report
}

// Retry resets a failed notification for another delivery round. The retry
// budget is enforced here and in the store; a record that is not FAILED
// returns ErrInvalidState, an exhausted one ErrRetryExhausted.
func (d *Dispatcher) Retry(ctx context.Context, notificationID string) (*notification.Record, error) {
	rec, err := d.store.ResetForRetry(ctx, notificationID)
	if err != nil {
		return nil, err
	}

	d.appendLog(ctx, rec.ID, notification.ActionQueued,
		fmt.Sprintf("retry %d of %d", rec.RetryCount, rec.MaxRetries))

	if _, err := d.enqueuer.Enqueue(ctx, rec.ID, queue.WithPriority(queuePriority(rec.Priority))); err != nil {
		if _, markErr := d.store.MarkFailed(ctx, rec.ID, time.Now(), "enqueue failed: "+err.Error()); markErr != nil {
			d.logger.Error("failed to park unqueued retry",
				slog.String("notification_id", rec.ID),
				slog.String("error", markErr.Error()))
		}
		return nil, fmt.Errorf("enqueue retry for %s: %w", rec.ID, err)
	}

	d.logger.Info("notification retry queued",
		slog.String("notification_id", rec.ID),
		slog.Int("retry_count", rec.RetryCount))

	return rec, nil
}

func (d *Dispatcher) appendLog(ctx context.Context, notificationID string, action notification.Action, details string) {
	if d.dlog == nil {
		return
	}
	err := d.dlog.Append(ctx, notification.LogEntry{
		ID:             uuid.NewString(),
		NotificationID: notificationID,
		Action:         action,
		Details:        details,
		Timestamp:      time.Now(),
	})
	if err != nil {
		d.logger.Error("failed to append delivery log",
			slog.String("notification_id", notificationID),
			slog.String("action", string(action)),
			slog.String("error", err.Error()))
	}
}

func normalize(in Input) (Input, error) {
	if in.Type == "" {
		return in, ErrInvalidType
	}
	if !in.Channel.Valid() {
		return in, ErrInvalidChannel
	}

	switch in.Priority {
	case "":
		in.Priority = notification.PriorityNormal
	case notification.PriorityLow, notification.PriorityNormal,
		notification.PriorityHigh, notification.PriorityUrgent:
	default:
		return in, ErrInvalidPriority
	}

	if in.Message == "" && in.TemplateID == "" {
		return in, ErrEmptyMessage
	}

	rec := notification.Record{
		Channel:     in.Channel,
		UserID:      in.UserID,
		Email:       in.Email,
		PhoneNumber: in.PhoneNumber,
		DeviceToken: in.DeviceToken,
	}
	if rec.Recipient() == "" {
		return in, fmt.Errorf("%w: channel %s", notification.ErrMissingRecipient, in.Channel)
	}
	return in, nil
}

func queuedDetails(delay time.Duration) string {
	if delay > 0 {
		return fmt.Sprintf("deferred %s by quiet hours", delay.Round(time.Second))
	}
	return ""
}

// queuePriority maps notification priorities onto queue priorities.
func queuePriority(p notification.Priority) queue.Priority {
	switch p {
	case notification.PriorityLow:
		return queue.PriorityLow
	case notification.PriorityHigh:
		return queue.PriorityHigh
	case notification.PriorityUrgent:
		return queue.PriorityUrgent
	default:
		return queue.PriorityNormal
	}
}
