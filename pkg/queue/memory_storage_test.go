package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/notify/pkg/queue"
)

func newWaitingJob(priority queue.Priority, scheduledAt time.Time) *queue.Job {
	return &queue.Job{
		ID:             uuid.New(),
		NotificationID: uuid.NewString(),
		Status:         queue.StatusWaiting,
		Priority:       priority,
		MaxAttempts:    3,
		ScheduledAt:    scheduledAt,
		CreatedAt:      time.Now(),
	}
}

func TestMemoryStorage_ClaimJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("empty queue", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		job, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
		assert.Nil(t, job)
	})

	t.Run("highest priority wins", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		now := time.Now()
		low := newWaitingJob(queue.PriorityLow, now.Add(-2*time.Minute))
		urgent := newWaitingJob(queue.PriorityUrgent, now.Add(-time.Minute))
		require.NoError(t, storage.CreateJob(ctx, low))
		require.NoError(t, storage.CreateJob(ctx, urgent))

		claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, urgent.ID, claimed.ID)
	})

	t.Run("earliest scheduled wins within a tier", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		now := time.Now()
		newer := newWaitingJob(queue.PriorityNormal, now.Add(-time.Minute))
		older := newWaitingJob(queue.PriorityNormal, now.Add(-time.Hour))
		require.NoError(t, storage.CreateJob(ctx, newer))
		require.NoError(t, storage.CreateJob(ctx, older))

		claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, older.ID, claimed.ID)
	})

	t.Run("delayed job not claimable", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		delayed := newWaitingJob(queue.PriorityUrgent, time.Now().Add(time.Hour))
		require.NoError(t, storage.CreateJob(ctx, delayed))

		job, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
		assert.Nil(t, job)
	})

	t.Run("claim increments attempt and locks", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		workerID := uuid.New()
		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, time.Now())))

		claimed, err := storage.ClaimJob(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusActive, claimed.Status)
		assert.Equal(t, 1, claimed.Attempt)
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)
		require.NotNil(t, claimed.LockedUntil)

		// Claimed job is invisible to other workers.
		_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})
}

func TestMemoryStorage_Transitions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	claimOne := func(t *testing.T, storage *queue.MemoryStorage) *queue.Job {
		t.Helper()
		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, time.Now())))
		claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		return claimed
	}

	t.Run("complete", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		claimed := claimOne(t, storage)
		require.NoError(t, storage.CompleteJob(ctx, claimed.ID))

		job, err := storage.Job(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusCompleted, job.Status)
		require.NotNil(t, job.ProcessedAt)
		assert.Nil(t, job.LockedBy)
	})

	t.Run("reschedule returns job to waiting", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		claimed := claimOne(t, storage)
		retryAt := time.Now().Add(time.Hour)
		require.NoError(t, storage.RescheduleJob(ctx, claimed.ID, retryAt, "smtp timeout"))

		job, err := storage.Job(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusWaiting, job.Status)
		assert.Equal(t, 1, job.Attempt)
		assert.Equal(t, "smtp timeout", job.Error)
		assert.True(t, job.Delayed(time.Now()))
	})

	t.Run("fail is terminal", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		claimed := claimOne(t, storage)
		require.NoError(t, storage.FailJob(ctx, claimed.ID, "recipient rejected"))

		job, err := storage.Job(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusFailed, job.Status)
		assert.Equal(t, "recipient rejected", job.Error)

		_, err = storage.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, queue.ErrNoJobToClaim)
	})

	t.Run("complete requires active job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		err := storage.CompleteJob(ctx, uuid.New())
		assert.ErrorIs(t, err, queue.ErrJobNotFound)

		waiting := newWaitingJob(queue.PriorityNormal, time.Now())
		require.NoError(t, storage.CreateJob(ctx, waiting))
		err = storage.CompleteJob(ctx, waiting.ID)
		assert.Error(t, err)
	})
}

func TestMemoryStorage_Inspection(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("stats split waiting and delayed", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		now := time.Now()
		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, now.Add(-time.Minute))))
		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, now.Add(-time.Minute))))
		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, now.Add(time.Hour))))

		claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.CompleteJob(ctx, claimed.ID))

		stats, err := storage.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, queue.Stats{Waiting: 1, Completed: 1, Delayed: 1}, stats)
	})

	t.Run("retry failed job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, time.Now())))
		claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, storage.FailJob(ctx, claimed.ID, "boom"))

		require.NoError(t, storage.RetryJob(ctx, claimed.ID))

		job, err := storage.Job(ctx, claimed.ID)
		require.NoError(t, err)
		assert.Equal(t, queue.StatusWaiting, job.Status)
		assert.Empty(t, job.Error)
		assert.Equal(t, job.Attempt+1, job.MaxAttempts)

		// The retried job is claimable again.
		again, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, claimed.ID, again.ID)
	})

	t.Run("retry rejects non-failed job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		waiting := newWaitingJob(queue.PriorityNormal, time.Now())
		require.NoError(t, storage.CreateJob(ctx, waiting))

		err := storage.RetryJob(ctx, waiting.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotRetryable)
	})

	t.Run("remove rejects active job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, time.Now())))
		claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)

		err = storage.RemoveJob(ctx, claimed.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotRemovable)

		require.NoError(t, storage.CompleteJob(ctx, claimed.ID))
		require.NoError(t, storage.RemoveJob(ctx, claimed.ID))

		_, err = storage.Job(ctx, claimed.ID)
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
	})

	t.Run("finished jobs pruned beyond retention", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage(queue.WithFinishedRetention(2))
		defer storage.Close()

		var ids []uuid.UUID
		for range 4 {
			require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, time.Now().Add(-time.Minute))))
			claimed, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
			require.NoError(t, err)
			require.NoError(t, storage.CompleteJob(ctx, claimed.ID))
			ids = append(ids, claimed.ID)
		}

		stats, err := storage.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, stats.Completed)

		_, err = storage.Job(ctx, ids[0])
		assert.ErrorIs(t, err, queue.ErrJobNotFound)
		_, err = storage.Job(ctx, ids[3])
		assert.NoError(t, err)
	})

	t.Run("lock expiration recovers abandoned job", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		defer storage.Close()

		require.NoError(t, storage.CreateJob(ctx, newWaitingJob(queue.PriorityNormal, time.Now())))
		claimed, err := storage.ClaimJob(ctx, uuid.New(), 50*time.Millisecond)
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			job, err := storage.Job(ctx, claimed.ID)
			return err == nil && job.Status == queue.StatusWaiting
		}, 5*time.Second, 100*time.Millisecond, "lock should expire and job return to waiting")

		// Attempt history survives recovery.
		again, err := storage.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, 2, again.Attempt)
	})
}
