package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EnqueuerStorage defines the interface for job creation.
type EnqueuerStorage interface {
	CreateJob(ctx context.Context, job *Job) error
}

// WorkerStorage defines the interface for worker operations. ClaimJob must be
// atomic per job: two workers never hold the same job concurrently.
type WorkerStorage interface {
	// ClaimJob atomically claims the highest-priority eligible job, marks it
	// active, and locks it for lockDuration. Returns ErrNoJobToClaim when
	// nothing is eligible.
	ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error)

	// CompleteJob marks an active job as completed.
	CompleteJob(ctx context.Context, jobID uuid.UUID) error

	// RescheduleJob returns an active job to waiting with a new scheduled
	// time, recording the attempt's error. Used for transport-level retries.
	RescheduleJob(ctx context.Context, jobID uuid.UUID, at time.Time, errMsg string) error

	// FailJob marks an active job as terminally failed.
	FailJob(ctx context.Context, jobID uuid.UUID, errMsg string) error
}

// InspectorStorage defines the operational introspection surface.
type InspectorStorage interface {
	// Stats returns a snapshot of job counts per state.
	Stats(ctx context.Context) (Stats, error)

	// Jobs lists jobs in the given state, newest first.
	Jobs(ctx context.Context, status Status, offset, limit int) ([]Job, error)

	// Job returns one job by ID.
	Job(ctx context.Context, jobID uuid.UUID) (*Job, error)

	// RetryJob resets a failed job to waiting for another delivery attempt.
	// Explicit operator action.
	RetryJob(ctx context.Context, jobID uuid.UUID) error

	// RemoveJob cancels a not-yet-processed job or deletes a finished one.
	// Active jobs cannot be removed; a started delivery runs to completion.
	RemoveJob(ctx context.Context, jobID uuid.UUID) error
}

// Storage combines all queue storage interfaces.
type Storage interface {
	EnqueuerStorage
	WorkerStorage
	InspectorStorage
}
