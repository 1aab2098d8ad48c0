package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the queue-side lifecycle of a dispatch job. A job
// scheduled in the future is stored as waiting; Stats and Jobs report it as
// delayed until its time arrives.
type Status string

const (
	StatusWaiting   Status = "waiting"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusDelayed   Status = "delayed"
)

// Priority represents job priority (0-100, higher is more important).
// Using int8 provides sufficient range while keeping memory footprint minimal.
type Priority int8

const (
	PriorityLow    Priority = 25
	PriorityNormal Priority = 50
	PriorityHigh   Priority = 75
	PriorityUrgent Priority = 100

	PriorityDefault Priority = PriorityNormal
)

// Valid checks if the priority is within valid range.
func (p Priority) Valid() bool {
	return p >= 0 && p <= 100
}

// Job is the ephemeral queue entry referencing a notification record for
// delivery processing. Jobs are created when a record is first persisted or
// when a retry is triggered, and pruned after terminal processing.
type Job struct {
	ID             uuid.UUID  `json:"id"`
	NotificationID string     `json:"notification_id"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	Attempt        int        `json:"attempt"`
	MaxAttempts    int        `json:"max_attempts"`
	ScheduledAt    time.Time  `json:"scheduled_at"`
	LockedUntil    *time.Time `json:"locked_until,omitempty"`
	LockedBy       *uuid.UUID `json:"locked_by,omitempty"`
	Error          string     `json:"error,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ProcessedAt    *time.Time `json:"processed_at,omitempty"`
}

// Delayed reports whether the job is waiting on a future scheduled time.
func (j *Job) Delayed(now time.Time) bool {
	return j.Status == StatusWaiting && j.ScheduledAt.After(now)
}

// Stats is a non-authoritative snapshot of job counts per state.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// RetryPolicy defines the exponential backoff parameters applied to
// transport-level delivery retries. This is distinct from the notification
// record's own retry budget, which models business-level failure and is
// driven explicitly by the dispatcher, not by the queue.
type RetryPolicy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultRetryPolicy is 3 attempts with exponential backoff from a fixed base.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:   3,
	BaseDelay:     5 * time.Second,
	MaxDelay:      5 * time.Minute,
	BackoffFactor: 2.0,
}

// NextRetryDelay computes the delay before the next attempt using exponential
// backoff: delay = min(BaseDelay * BackoffFactor^attempt, MaxDelay).
func (p RetryPolicy) NextRetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delay := float64(p.BaseDelay)
	for range attempt {
		delay *= p.BackoffFactor
	}

	d := time.Duration(delay)
	if d > p.MaxDelay || d < 0 {
		// The negative branch guards against overflow.
		d = p.MaxDelay
	}
	return d
}
