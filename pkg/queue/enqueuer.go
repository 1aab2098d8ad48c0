package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Enqueuer submits dispatch jobs to the queue.
type Enqueuer struct {
	storage         EnqueuerStorage
	defaultPriority Priority
	maxAttempts     int
}

// EnqueuerOption is a functional option for configuring an Enqueuer.
type EnqueuerOption func(*Enqueuer)

// WithDefaultPriority sets the priority applied when a job specifies none.
func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(e *Enqueuer) {
		if p.Valid() {
			e.defaultPriority = p
		}
	}
}

// WithDefaultMaxAttempts sets the transport retry budget for new jobs (1-10).
func WithDefaultMaxAttempts(n int) EnqueuerOption {
	return func(e *Enqueuer) {
		if n >= 1 && n <= 10 {
			e.maxAttempts = n
		}
	}
}

// NewEnqueuer creates a new Enqueuer.
func NewEnqueuer(storage EnqueuerStorage, opts ...EnqueuerOption) (*Enqueuer, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}

	e := &Enqueuer{
		storage:         storage,
		defaultPriority: PriorityDefault,
		maxAttempts:     DefaultRetryPolicy.MaxAttempts,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// EnqueueOption is a functional option for a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority    Priority
	prioritySet bool
	delay       time.Duration
	scheduledAt *time.Time
	maxAttempts int
}

// WithPriority sets the priority for the job.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = p
		o.prioritySet = true
	}
}

// WithDelay makes the job invisible to workers until the delay has elapsed.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if delay > 0 {
			o.delay = delay
		}
	}
}

// WithScheduledAt makes the job invisible to workers before the given time.
// Takes precedence over WithDelay.
func WithScheduledAt(at time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &at
	}
}

// WithMaxAttempts overrides the transport retry budget for this job (1-10).
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 1 && n <= 10 {
			o.maxAttempts = n
		}
	}
}

// Enqueue adds a dispatch job referencing the given notification record and
// returns it immediately; the job becomes visible to workers once its
// scheduled time has elapsed.
func (e *Enqueuer) Enqueue(ctx context.Context, notificationID string, opts ...EnqueueOption) (*Job, error) {
	if notificationID == "" {
		return nil, ErrNotificationIDEmpty
	}

	options := &enqueueOptions{
		priority:    e.defaultPriority,
		maxAttempts: e.maxAttempts,
	}
	for _, opt := range opts {
		opt(options)
	}

	if options.prioritySet && !options.priority.Valid() {
		return nil, ErrInvalidPriority
	}

	now := time.Now()
	scheduledAt := now
	if options.scheduledAt != nil {
		scheduledAt = *options.scheduledAt
	} else if options.delay > 0 {
		scheduledAt = now.Add(options.delay)
	}

	job := &Job{
		ID:             uuid.New(),
		NotificationID: notificationID,
		Status:         StatusWaiting,
		Priority:       options.priority,
		Attempt:        0,
		MaxAttempts:    options.maxAttempts,
		ScheduledAt:    scheduledAt,
		CreatedAt:      now,
	}

	if err := e.storage.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrJobCreate, err)
	}
	return job, nil
}

// EnqueueUrgent is sugar for Enqueue with high priority and no delay.
func (e *Enqueuer) EnqueueUrgent(ctx context.Context, notificationID string) (*Job, error) {
	return e.Enqueue(ctx, notificationID, WithPriority(PriorityHigh))
}
