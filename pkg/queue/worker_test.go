package queue_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peoplehub/notify/pkg/queue"
)

// Mock storage for worker tests
type mockWorkerStorage struct {
	mu sync.Mutex

	claimFunc      func(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*queue.Job, error)
	completeFunc   func(ctx context.Context, jobID uuid.UUID) error
	rescheduleFunc func(ctx context.Context, jobID uuid.UUID, at time.Time, errMsg string) error
	failFunc       func(ctx context.Context, jobID uuid.UUID, errMsg string) error

	completed   []uuid.UUID
	rescheduled []uuid.UUID
	failed      []uuid.UUID
}

func (m *mockWorkerStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*queue.Job, error) {
	if m.claimFunc != nil {
		return m.claimFunc(ctx, workerID, lockDuration)
	}
	return nil, queue.ErrNoJobToClaim
}

func (m *mockWorkerStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.completeFunc != nil {
		return m.completeFunc(ctx, jobID)
	}
	m.completed = append(m.completed, jobID)
	return nil
}

func (m *mockWorkerStorage) RescheduleJob(ctx context.Context, jobID uuid.UUID, at time.Time, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rescheduleFunc != nil {
		return m.rescheduleFunc(ctx, jobID, at, errMsg)
	}
	m.rescheduled = append(m.rescheduled, jobID)
	return nil
}

func (m *mockWorkerStorage) FailJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFunc != nil {
		return m.failFunc(ctx, jobID, errMsg)
	}
	m.failed = append(m.failed, jobID)
	return nil
}

func (m *mockWorkerStorage) snapshot() (completed, rescheduled, failed int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.completed), len(m.rescheduled), len(m.failed)
}

// claimOnce returns the given job exactly once, then reports an empty queue.
func claimOnce(job queue.Job) func(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*queue.Job, error) {
	var once sync.Once
	return func(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*queue.Job, error) {
		var claimed *queue.Job
		once.Do(func() {
			cp := job
			cp.Status = queue.StatusActive
			cp.Attempt++
			claimed = &cp
		})
		if claimed == nil {
			return nil, queue.ErrNoJobToClaim
		}
		return claimed, nil
	}
}

func testJob() queue.Job {
	return queue.Job{
		ID:             uuid.New(),
		NotificationID: uuid.NewString(),
		Status:         queue.StatusWaiting,
		Priority:       queue.PriorityNormal,
		MaxAttempts:    3,
		ScheduledAt:    time.Now(),
		CreatedAt:      time.Now(),
	}
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	handler := queue.HandlerFunc(func(ctx context.Context, job queue.Job) error { return nil })

	t.Run("successful creation", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(&mockWorkerStorage{}, handler)
		require.NoError(t, err)
		require.NotNil(t, w)
	})

	t.Run("nil storage", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(nil, handler)
		assert.ErrorIs(t, err, queue.ErrStorageNil)
		assert.Nil(t, w)
	})

	t.Run("nil handler", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(&mockWorkerStorage{}, nil)
		assert.ErrorIs(t, err, queue.ErrHandlerNil)
		assert.Nil(t, w)
	})
}

func TestWorker_ProcessesJob(t *testing.T) {
	t.Parallel()

	job := testJob()
	storage := &mockWorkerStorage{claimFunc: claimOnce(job)}

	handled := make(chan queue.Job, 1)
	handler := queue.HandlerFunc(func(ctx context.Context, j queue.Job) error {
		handled <- j
		return nil
	})

	w, err := queue.NewWorker(storage, handler,
		queue.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	select {
	case got := <-handled:
		assert.Equal(t, job.ID, got.ID)
		assert.Equal(t, job.NotificationID, got.NotificationID)
	case <-time.After(5 * time.Second):
		t.Fatal("handler was not invoked")
	}

	require.Eventually(t, func() bool {
		completed, _, _ := storage.snapshot()
		return completed == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_ReschedulesFailure(t *testing.T) {
	t.Parallel()

	job := testJob() // claim makes Attempt=1, budget is 3
	storage := &mockWorkerStorage{claimFunc: claimOnce(job)}

	handler := queue.HandlerFunc(func(ctx context.Context, j queue.Job) error {
		return errors.New("provider unavailable")
	})

	w, err := queue.NewWorker(storage, handler,
		queue.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	require.Eventually(t, func() bool {
		_, rescheduled, _ := storage.snapshot()
		return rescheduled == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, _, failed := storage.snapshot()
	assert.Zero(t, failed)
}

func TestWorker_FailsExhaustedJob(t *testing.T) {
	t.Parallel()

	job := testJob()
	job.Attempt = 2 // claim makes it 3 of 3
	storage := &mockWorkerStorage{claimFunc: claimOnce(job)}

	handler := queue.HandlerFunc(func(ctx context.Context, j queue.Job) error {
		return errors.New("provider unavailable")
	})

	w, err := queue.NewWorker(storage, handler,
		queue.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	require.Eventually(t, func() bool {
		_, _, failed := storage.snapshot()
		return failed == 1
	}, 5*time.Second, 10*time.Millisecond)

	_, rescheduled, _ := storage.snapshot()
	assert.Zero(t, rescheduled)
}

func TestWorker_RecoversFromPanic(t *testing.T) {
	t.Parallel()

	job := testJob()
	storage := &mockWorkerStorage{claimFunc: claimOnce(job)}

	handler := queue.HandlerFunc(func(ctx context.Context, j queue.Job) error {
		panic("adapter blew up")
	})

	w, err := queue.NewWorker(storage, handler,
		queue.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)

	require.NoError(t, w.Start(context.Background()))
	defer func() { require.NoError(t, w.Stop()) }()

	// A panic counts as a failed attempt and is rescheduled.
	require.Eventually(t, func() bool {
		_, rescheduled, _ := storage.snapshot()
		return rescheduled == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestWorker_StopDrainsInFlight(t *testing.T) {
	t.Parallel()

	job := testJob()
	storage := &mockWorkerStorage{claimFunc: claimOnce(job)}

	started := make(chan struct{})
	release := make(chan struct{})
	handler := queue.HandlerFunc(func(ctx context.Context, j queue.Job) error {
		close(started)
		<-release
		return nil
	})

	w, err := queue.NewWorker(storage, handler,
		queue.WithPollInterval(10*time.Millisecond),
	)
	require.NoError(t, err)
	require.NoError(t, w.Start(context.Background()))

	<-started
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(release)
	}()

	require.NoError(t, w.Stop())

	completed, _, _ := storage.snapshot()
	assert.Equal(t, 1, completed, "in-flight job should finish and settle during drain")
}

func TestWorker_Lifecycle(t *testing.T) {
	t.Parallel()

	handler := queue.HandlerFunc(func(ctx context.Context, job queue.Job) error { return nil })

	t.Run("double start rejected", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(&mockWorkerStorage{}, handler)
		require.NoError(t, err)

		require.NoError(t, w.Start(context.Background()))
		assert.Error(t, w.Start(context.Background()))
		require.NoError(t, w.Stop())
	})

	t.Run("stop before start rejected", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(&mockWorkerStorage{}, handler)
		require.NoError(t, err)
		assert.Error(t, w.Stop())
	})

	t.Run("run stops on context cancel", func(t *testing.T) {
		t.Parallel()

		w, err := queue.NewWorker(&mockWorkerStorage{}, handler)
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- w.Run(ctx)() }()

		time.Sleep(50 * time.Millisecond)
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("worker did not stop after context cancellation")
		}
	})
}

func TestRetryPolicy_NextRetryDelay(t *testing.T) {
	t.Parallel()

	policy := queue.RetryPolicy{
		MaxAttempts:   5,
		BaseDelay:     time.Second,
		MaxDelay:      10 * time.Second,
		BackoffFactor: 2.0,
	}

	assert.Equal(t, time.Second, policy.NextRetryDelay(0))
	assert.Equal(t, 2*time.Second, policy.NextRetryDelay(1))
	assert.Equal(t, 4*time.Second, policy.NextRetryDelay(2))
	assert.Equal(t, 8*time.Second, policy.NextRetryDelay(3))
	assert.Equal(t, 10*time.Second, policy.NextRetryDelay(4), "capped at MaxDelay")
	assert.Equal(t, 10*time.Second, policy.NextRetryDelay(40), "large exponents stay capped")
	assert.Equal(t, time.Second, policy.NextRetryDelay(-1), "negative attempt clamped")
}
