package queue

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultFinishedRetention bounds how many completed and failed jobs are kept
// for inspection before the oldest are pruned.
const DefaultFinishedRetention = 1000

// MemoryStorage implements all queue storage interfaces for testing and local
// development.
type MemoryStorage struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job

	byStatus map[Status][]uuid.UUID

	retention int

	lockTicker *time.Ticker
	done       chan struct{}
	closeOnce  sync.Once
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithFinishedRetention bounds the number of retained finished jobs.
func WithFinishedRetention(n int) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if n > 0 {
			ms.retention = n
		}
	}
}

// NewMemoryStorage creates a new in-memory queue storage.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		jobs:      make(map[uuid.UUID]*Job),
		byStatus:  make(map[Status][]uuid.UUID),
		retention: DefaultFinishedRetention,
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(ms)
	}

	// Recovers jobs locked by crashed workers.
	ms.lockTicker = time.NewTicker(time.Second)
	go ms.lockExpirationLoop()

	return ms
}

// Close stops the background lock-expiration goroutine.
func (ms *MemoryStorage) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.lockTicker.Stop()
	})
	return nil
}

// CreateJob implements EnqueuerStorage.
func (ms *MemoryStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	cp := *job
	ms.jobs[job.ID] = &cp
	ms.byStatus[StatusWaiting] = append(ms.byStatus[StatusWaiting], job.ID)
	return nil
}

// ClaimJob implements WorkerStorage. Selection is priority-first with
// earliest scheduled time breaking ties, so urgent work is preferred without
// starving older jobs within a tier.
func (ms *MemoryStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Job

	for _, id := range ms.byStatus[StatusWaiting] {
		job := ms.jobs[id]
		if job.ScheduledAt.After(now) {
			continue
		}
		if best == nil ||
			job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.ScheduledAt.Before(best.ScheduledAt)) {
			best = job
		}
	}

	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.Status = StatusActive
	best.Attempt++
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID

	ms.moveStatus(best.ID, StatusWaiting, StatusActive)

	cp := *best
	return &cp, nil
}

// CompleteJob implements WorkerStorage.
func (ms *MemoryStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.activeJob(jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = StatusCompleted
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.moveStatus(jobID, StatusActive, StatusCompleted)
	ms.pruneFinished(StatusCompleted)
	return nil
}

// RescheduleJob implements WorkerStorage.
func (ms *MemoryStorage) RescheduleJob(ctx context.Context, jobID uuid.UUID, at time.Time, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.activeJob(jobID)
	if err != nil {
		return err
	}

	job.Status = StatusWaiting
	job.ScheduledAt = at
	job.Error = errMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.moveStatus(jobID, StatusActive, StatusWaiting)
	return nil
}

// FailJob implements WorkerStorage.
func (ms *MemoryStorage) FailJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, err := ms.activeJob(jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = StatusFailed
	job.Error = errMsg
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.moveStatus(jobID, StatusActive, StatusFailed)
	ms.pruneFinished(StatusFailed)
	return nil
}

// Stats implements InspectorStorage.
func (ms *MemoryStorage) Stats(ctx context.Context) (Stats, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	stats := Stats{
		Active:    len(ms.byStatus[StatusActive]),
		Completed: len(ms.byStatus[StatusCompleted]),
		Failed:    len(ms.byStatus[StatusFailed]),
	}
	for _, id := range ms.byStatus[StatusWaiting] {
		if ms.jobs[id].ScheduledAt.After(now) {
			stats.Delayed++
		} else {
			stats.Waiting++
		}
	}
	return stats, nil
}

// Jobs implements InspectorStorage.
func (ms *MemoryStorage) Jobs(ctx context.Context, status Status, offset, limit int) ([]Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var out []Job
	for _, id := range ms.statusBucket(status) {
		job := ms.jobs[id]
		// Waiting and delayed are stored together; split on scheduled time.
		if status == StatusWaiting && job.ScheduledAt.After(now) {
			continue
		}
		if status == StatusDelayed && !job.ScheduledAt.After(now) {
			continue
		}
		out = append(out, *job)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if offset > 0 {
		if offset >= len(out) {
			return []Job{}, nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Job implements InspectorStorage.
func (ms *MemoryStorage) Job(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	cp := *job
	return &cp, nil
}

// RetryJob implements InspectorStorage.
func (ms *MemoryStorage) RetryJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status != StatusFailed {
		return ErrJobNotRetryable
	}

	job.Status = StatusWaiting
	job.ScheduledAt = time.Now()
	job.Error = ""
	job.ProcessedAt = nil
	// The operator grants one more attempt beyond the spent budget.
	job.MaxAttempts = job.Attempt + 1

	ms.moveStatus(jobID, StatusFailed, StatusWaiting)
	return nil
}

// RemoveJob implements InspectorStorage.
func (ms *MemoryStorage) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, ok := ms.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if job.Status == StatusActive {
		return ErrJobNotRemovable
	}

	ms.removeFromStatusIndex(jobID, job.Status)
	delete(ms.jobs, jobID)
	return nil
}

// Helper methods; callers hold the mutex.

func (ms *MemoryStorage) activeJob(jobID uuid.UUID) (*Job, error) {
	job, ok := ms.jobs[jobID]
	if !ok {
		return nil, ErrJobNotFound
	}
	if job.Status != StatusActive {
		return nil, fmt.Errorf("job %s is not active", jobID)
	}
	return job, nil
}

func (ms *MemoryStorage) statusBucket(status Status) []uuid.UUID {
	if status == StatusDelayed {
		return ms.byStatus[StatusWaiting]
	}
	return ms.byStatus[status]
}

func (ms *MemoryStorage) moveStatus(jobID uuid.UUID, from, to Status) {
	ms.removeFromStatusIndex(jobID, from)
	ms.byStatus[to] = append(ms.byStatus[to], jobID)
}

func (ms *MemoryStorage) removeFromStatusIndex(jobID uuid.UUID, status Status) {
	bucket := ms.byStatus[status]
	for i, id := range bucket {
		if id == jobID {
			ms.byStatus[status] = append(bucket[:i], bucket[i+1:]...)
			return
		}
	}
}

// pruneFinished drops the oldest finished jobs beyond the retention bound.
func (ms *MemoryStorage) pruneFinished(status Status) {
	bucket := ms.byStatus[status]
	for len(bucket) > ms.retention {
		oldest := bucket[0]
		bucket = bucket[1:]
		delete(ms.jobs, oldest)
	}
	ms.byStatus[status] = bucket
}

// lockExpirationLoop recovers jobs from dead workers. Without it, jobs locked
// by a crashed worker would be stuck active forever.
func (ms *MemoryStorage) lockExpirationLoop() {
	for {
		select {
		case <-ms.lockTicker.C:
			ms.expireLocks()
		case <-ms.done:
			return
		}
	}
}

// expireLocks resets active jobs whose locks have passed back to waiting,
// preserving their attempt history.
func (ms *MemoryStorage) expireLocks() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	for _, id := range append([]uuid.UUID(nil), ms.byStatus[StatusActive]...) {
		job := ms.jobs[id]
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			job.Status = StatusWaiting
			job.LockedUntil = nil
			job.LockedBy = nil
			ms.moveStatus(id, StatusActive, StatusWaiting)
		}
	}
}
