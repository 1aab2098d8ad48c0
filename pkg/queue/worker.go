package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Handler processes one claimed dispatch job. Returning an error triggers the
// queue's transport-level retry with exponential backoff; the handler itself
// must not retry.
type Handler interface {
	Handle(ctx context.Context, job Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, job Job) error {
	return f(ctx, job)
}

// Worker is a fixed-size pool of concurrent consumers pulling jobs from the
// queue. At-most-one active worker per job is guaranteed by the storage's
// claim semantics; two independent jobs for the same user may still be
// processed concurrently on different channels.
type Worker struct {
	storage     WorkerStorage
	handler     Handler
	workerID    uuid.UUID
	sem         chan struct{}
	wg          sync.WaitGroup
	mu          sync.Mutex
	stopMu      sync.Mutex // protects stopping state and WaitGroup operations
	retryPolicy RetryPolicy

	pollInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	stopping atomic.Bool
}

// WorkerOption is a functional option for configuring a worker.
type WorkerOption func(*Worker)

// WithConcurrency sets the maximum number of jobs processed at once.
func WithConcurrency(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

// WithPollInterval sets how often the worker checks for new jobs.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLockTimeout sets the claim lock duration for jobs.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

// WithRetryPolicy sets the transport-level retry policy.
func WithRetryPolicy(p RetryPolicy) WorkerOption {
	return func(w *Worker) {
		if p.MaxAttempts > 0 {
			w.retryPolicy = p
		}
	}
}

// WithWorkerLogger sets the logger for the worker.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// NewWorker creates a new dispatch worker pool.
func NewWorker(storage WorkerStorage, handler Handler, opts ...WorkerOption) (*Worker, error) {
	if storage == nil {
		return nil, ErrStorageNil
	}
	if handler == nil {
		return nil, ErrHandlerNil
	}

	w := &Worker{
		storage:      storage,
		handler:      handler,
		workerID:     uuid.New(),
		sem:          make(chan struct{}, 10),
		retryPolicy:  DefaultRetryPolicy,
		pollInterval: time.Second,
		lockTimeout:  5 * time.Minute,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Start begins processing jobs in the background.
func (w *Worker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.cancel != nil {
		w.mu.Unlock()
		return fmt.Errorf("worker already started")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.stopping.Store(false)
	go w.run()

	w.logger.Info("dispatch worker started",
		slog.String("worker_id", w.workerID.String()),
		slog.Int("concurrency", cap(w.sem)))

	return nil
}

// Stop gracefully shuts down the worker, draining in-flight jobs.
func (w *Worker) Stop() error {
	w.mu.Lock()
	if w.cancel == nil {
		w.mu.Unlock()
		return fmt.Errorf("worker not started")
	}

	w.stopMu.Lock()
	w.stopping.Store(true)
	w.stopMu.Unlock()

	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	cancel()

	w.logger.Info("dispatch worker stopping, draining active jobs",
		slog.String("worker_id", w.workerID.String()))

	w.wg.Wait()

	w.logger.Info("dispatch worker stopped",
		slog.String("worker_id", w.workerID.String()))

	return nil
}

// Run starts the worker and returns a function suitable for errgroup.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		if err := w.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return w.Stop()
	}
}

// run is the main polling loop.
func (w *Worker) run() {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			// Drain as many slots as storage has eligible jobs for this tick.
			for w.spawnOne() {
			}
		}
	}
}

// spawnOne claims one slot and one job; reports whether another attempt this
// tick is worthwhile.
func (w *Worker) spawnOne() bool {
	select {
	case w.sem <- struct{}{}:
	default:
		// All slots busy.
		return false
	}

	w.stopMu.Lock()
	if w.stopping.Load() {
		w.stopMu.Unlock()
		<-w.sem
		return false
	}
	w.wg.Add(1)
	w.stopMu.Unlock()

	job, err := w.storage.ClaimJob(w.ctx, w.workerID, w.lockTimeout)
	if err != nil {
		w.wg.Done()
		<-w.sem
		if !errors.Is(err, ErrNoJobToClaim) && w.ctx.Err() == nil {
			w.logger.Error("failed to claim job",
				slog.String("worker_id", w.workerID.String()),
				slog.String("error", err.Error()))
		}
		return false
	}

	go func() {
		defer w.wg.Done()
		defer func() { <-w.sem }()
		w.processJob(job)
	}()

	return true
}

// processJob executes the handler for a claimed job and settles the outcome.
func (w *Worker) processJob(job *Job) {
	start := time.Now()

	var execErr error
	func() {
		defer func() {
			if r := recover(); r != nil {
				execErr = fmt.Errorf("panic in handler: %v", r)
				w.logger.Error("handler panicked",
					slog.String("worker_id", w.workerID.String()),
					slog.String("job_id", job.ID.String()),
					slog.Any("panic", r))
			}
		}()

		// Detach from the worker lifecycle so graceful shutdown lets the
		// job finish; the lock timeout bounds execution.
		ctx, cancel := context.WithTimeout(context.Background(), w.lockTimeout)
		defer cancel()

		execErr = w.handler.Handle(ctx, *job)
	}()

	duration := time.Since(start)

	// Settle on a detached context so outcomes of in-flight jobs are
	// recorded even while the worker is draining for shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if execErr != nil {
		w.settleFailure(ctx, job, execErr, duration)
		return
	}

	if err := w.storage.CompleteJob(ctx, job.ID); err != nil {
		w.logger.Error("failed to mark job completed",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.logger.Info("job completed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("notification_id", job.NotificationID),
		slog.Duration("duration", duration))
}

// settleFailure reschedules with backoff while attempts remain, otherwise
// marks the job terminally failed.
func (w *Worker) settleFailure(ctx context.Context, job *Job, execErr error, duration time.Duration) {
	w.logger.Error("job failed",
		slog.String("worker_id", w.workerID.String()),
		slog.String("job_id", job.ID.String()),
		slog.String("notification_id", job.NotificationID),
		slog.Int("attempt", job.Attempt),
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("duration", duration),
		slog.String("error", execErr.Error()))

	if job.Attempt >= job.MaxAttempts {
		if err := w.storage.FailJob(ctx, job.ID, execErr.Error()); err != nil {
			w.logger.Error("failed to mark job failed",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
		}
		return
	}

	delay := w.retryPolicy.NextRetryDelay(job.Attempt - 1)
	retryAt := time.Now().Add(delay)
	if err := w.storage.RescheduleJob(ctx, job.ID, retryAt, execErr.Error()); err != nil {
		w.logger.Error("failed to reschedule job",
			slog.String("job_id", job.ID.String()),
			slog.String("error", err.Error()))
		return
	}

	w.logger.Warn("job retry scheduled",
		slog.String("job_id", job.ID.String()),
		slog.Int("attempt", job.Attempt),
		slog.Duration("delay", delay))
}
