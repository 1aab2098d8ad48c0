package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// DefaultKeyPrefix namespaces all queue keys in Redis.
const DefaultKeyPrefix = "notify:queue:"

// RedisStorage implements all queue storage interfaces on top of Redis.
// Pending jobs live in one sorted set per priority tier, scored by their
// ready time. Active jobs live in a sorted set scored by lock expiry, which
// doubles as the recovery index for jobs abandoned by crashed workers.
// Finished jobs are retained in bounded sorted sets scored by completion
// time. Job bodies are JSON documents under their own keys.
type RedisStorage struct {
	client    redis.UniversalClient
	prefix    string
	retention int
}

// RedisStorageOption configures a RedisStorage.
type RedisStorageOption func(*RedisStorage)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisStorageOption {
	return func(rs *RedisStorage) {
		if prefix != "" {
			rs.prefix = prefix
		}
	}
}

// WithRedisFinishedRetention bounds the number of retained finished jobs.
func WithRedisFinishedRetention(n int) RedisStorageOption {
	return func(rs *RedisStorage) {
		if n > 0 {
			rs.retention = n
		}
	}
}

// NewRedisStorage creates a queue storage backed by the given Redis client.
func NewRedisStorage(client redis.UniversalClient, opts ...RedisStorageOption) (*RedisStorage, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	rs := &RedisStorage{
		client:    client,
		prefix:    DefaultKeyPrefix,
		retention: DefaultFinishedRetention,
	}
	for _, opt := range opts {
		opt(rs)
	}
	return rs, nil
}

func (rs *RedisStorage) jobKey(id uuid.UUID) string { return rs.prefix + "job:" + id.String() }
func (rs *RedisStorage) pendingKey(p Priority) string {
	return rs.prefix + "pending:" + strconv.Itoa(int(p))
}
func (rs *RedisStorage) tiersKey() string     { return rs.prefix + "tiers" }
func (rs *RedisStorage) activeKey() string    { return rs.prefix + "active" }
func (rs *RedisStorage) completedKey() string { return rs.prefix + "completed" }
func (rs *RedisStorage) failedKey() string    { return rs.prefix + "failed" }

// CreateJob implements EnqueuerStorage.
func (rs *RedisStorage) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", job.ID, err)
	}

	ok, err := rs.client.SetNX(ctx, rs.jobKey(job.ID), body, 0).Result()
	if err != nil {
		return fmt.Errorf("store job %s: %w", job.ID, err)
	}
	if !ok {
		return fmt.Errorf("job %s already exists", job.ID)
	}

	pipe := rs.client.TxPipeline()
	pipe.ZAdd(ctx, rs.tiersKey(), redis.Z{
		Score:  float64(job.Priority),
		Member: strconv.Itoa(int(job.Priority)),
	})
	pipe.ZAdd(ctx, rs.pendingKey(job.Priority), redis.Z{
		Score:  float64(job.ScheduledAt.UnixMilli()),
		Member: job.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index job %s: %w", job.ID, err)
	}
	return nil
}

// ClaimJob implements WorkerStorage. Tiers are scanned from highest priority
// down; within a tier the job with the earliest ready time wins. ZRem's
// return value arbitrates between competing workers, so a job is handed to
// at most one of them.
func (rs *RedisStorage) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	rs.recoverExpired(ctx)

	tiers, err := rs.client.ZRevRange(ctx, rs.tiersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list priority tiers: %w", err)
	}

	now := time.Now()
	maxScore := strconv.FormatInt(now.UnixMilli(), 10)

	for _, tier := range tiers {
		p, err := strconv.Atoi(tier)
		if err != nil {
			continue
		}
		key := rs.pendingKey(Priority(p))

		ids, err := rs.client.ZRangeByScore(ctx, key, &redis.ZRangeBy{
			Min: "-inf", Max: maxScore, Count: 10,
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("scan pending tier %d: %w", p, err)
		}

		for _, id := range ids {
			removed, err := rs.client.ZRem(ctx, key, id).Result()
			if err != nil {
				return nil, fmt.Errorf("claim job %s: %w", id, err)
			}
			if removed == 0 {
				continue // another worker got there first
			}
			return rs.activate(ctx, id, workerID, now.Add(lockDuration))
		}
	}

	return nil, ErrNoJobToClaim
}

func (rs *RedisStorage) activate(ctx context.Context, rawID string, workerID uuid.UUID, lockUntil time.Time) (*Job, error) {
	jobID, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse claimed job id %q: %w", rawID, err)
	}

	job, err := rs.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}

	job.Status = StatusActive
	job.Attempt++
	job.LockedUntil = &lockUntil
	job.LockedBy = &workerID

	pipe := rs.client.TxPipeline()
	rs.saveJob(ctx, pipe, job)
	pipe.ZAdd(ctx, rs.activeKey(), redis.Z{
		Score:  float64(lockUntil.UnixMilli()),
		Member: job.ID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("activate job %s: %w", job.ID, err)
	}
	return job, nil
}

// CompleteJob implements WorkerStorage.
func (rs *RedisStorage) CompleteJob(ctx context.Context, jobID uuid.UUID) error {
	return rs.finish(ctx, jobID, StatusCompleted, rs.completedKey(), "")
}

// FailJob implements WorkerStorage.
func (rs *RedisStorage) FailJob(ctx context.Context, jobID uuid.UUID, errMsg string) error {
	return rs.finish(ctx, jobID, StatusFailed, rs.failedKey(), errMsg)
}

func (rs *RedisStorage) finish(ctx context.Context, jobID uuid.UUID, status Status, setKey, errMsg string) error {
	if err := rs.deactivate(ctx, jobID); err != nil {
		return err
	}

	job, err := rs.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	now := time.Now()
	job.Status = status
	job.Error = errMsg
	job.ProcessedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	pipe := rs.client.TxPipeline()
	rs.saveJob(ctx, pipe, job)
	pipe.ZAdd(ctx, setKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: jobID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("finish job %s: %w", jobID, err)
	}

	return rs.pruneFinished(ctx, setKey)
}

// RescheduleJob implements WorkerStorage.
func (rs *RedisStorage) RescheduleJob(ctx context.Context, jobID uuid.UUID, at time.Time, errMsg string) error {
	if err := rs.deactivate(ctx, jobID); err != nil {
		return err
	}

	job, err := rs.loadJob(ctx, jobID)
	if err != nil {
		return err
	}

	job.Status = StatusWaiting
	job.ScheduledAt = at
	job.Error = errMsg
	job.LockedUntil = nil
	job.LockedBy = nil

	pipe := rs.client.TxPipeline()
	rs.saveJob(ctx, pipe, job)
	pipe.ZAdd(ctx, rs.pendingKey(job.Priority), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: jobID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reschedule job %s: %w", jobID, err)
	}
	return nil
}

func (rs *RedisStorage) deactivate(ctx context.Context, jobID uuid.UUID) error {
	removed, err := rs.client.ZRem(ctx, rs.activeKey(), jobID.String()).Result()
	if err != nil {
		return fmt.Errorf("deactivate job %s: %w", jobID, err)
	}
	if removed == 0 {
		return fmt.Errorf("job %s is not active", jobID)
	}
	return nil
}

// recoverExpired moves jobs whose worker lock has lapsed back to pending so
// another worker can pick them up. Attempt history is preserved.
func (rs *RedisStorage) recoverExpired(ctx context.Context) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	ids, err := rs.client.ZRangeByScore(ctx, rs.activeKey(), &redis.ZRangeBy{
		Min: "-inf", Max: now, Count: 100,
	}).Result()
	if err != nil || len(ids) == 0 {
		return
	}

	for _, id := range ids {
		removed, err := rs.client.ZRem(ctx, rs.activeKey(), id).Result()
		if err != nil || removed == 0 {
			continue
		}
		jobID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		job, err := rs.loadJob(ctx, jobID)
		if err != nil {
			continue
		}

		job.Status = StatusWaiting
		job.LockedUntil = nil
		job.LockedBy = nil

		pipe := rs.client.TxPipeline()
		rs.saveJob(ctx, pipe, job)
		pipe.ZAdd(ctx, rs.pendingKey(job.Priority), redis.Z{
			Score:  float64(job.ScheduledAt.UnixMilli()),
			Member: id,
		})
		_, _ = pipe.Exec(ctx)
	}
}

// Stats implements InspectorStorage.
func (rs *RedisStorage) Stats(ctx context.Context) (Stats, error) {
	var stats Stats

	tiers, err := rs.client.ZRange(ctx, rs.tiersKey(), 0, -1).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("list priority tiers: %w", err)
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	for _, tier := range tiers {
		p, err := strconv.Atoi(tier)
		if err != nil {
			continue
		}
		key := rs.pendingKey(Priority(p))

		ready, err := rs.client.ZCount(ctx, key, "-inf", now).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("count pending tier %d: %w", p, err)
		}
		delayed, err := rs.client.ZCount(ctx, key, "("+now, "+inf").Result()
		if err != nil {
			return Stats{}, fmt.Errorf("count delayed tier %d: %w", p, err)
		}
		stats.Waiting += int(ready)
		stats.Delayed += int(delayed)
	}

	counts := map[string]*int{
		rs.activeKey():    &stats.Active,
		rs.completedKey(): &stats.Completed,
		rs.failedKey():    &stats.Failed,
	}
	for key, dst := range counts {
		n, err := rs.client.ZCard(ctx, key).Result()
		if err != nil {
			return Stats{}, fmt.Errorf("count %s: %w", key, err)
		}
		*dst = int(n)
	}
	return stats, nil
}

// Jobs implements InspectorStorage.
func (rs *RedisStorage) Jobs(ctx context.Context, status Status, offset, limit int) ([]Job, error) {
	ids, err := rs.idsForStatus(ctx, status)
	if err != nil {
		return nil, err
	}

	if offset > 0 {
		if offset >= len(ids) {
			return []Job{}, nil
		}
		ids = ids[offset:]
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	out := make([]Job, 0, len(ids))
	for _, id := range ids {
		jobID, err := uuid.Parse(id)
		if err != nil {
			continue
		}
		job, err := rs.loadJob(ctx, jobID)
		if err != nil {
			if errors.Is(err, ErrJobNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, *job)
	}
	return out, nil
}

func (rs *RedisStorage) idsForStatus(ctx context.Context, status Status) ([]string, error) {
	switch status {
	case StatusActive:
		return rs.client.ZRevRange(ctx, rs.activeKey(), 0, -1).Result()
	case StatusCompleted:
		return rs.client.ZRevRange(ctx, rs.completedKey(), 0, -1).Result()
	case StatusFailed:
		return rs.client.ZRevRange(ctx, rs.failedKey(), 0, -1).Result()
	case StatusWaiting, StatusDelayed:
		// Pending tiers hold both; split on ready time.
	default:
		return nil, fmt.Errorf("unknown job status %q", status)
	}

	tiers, err := rs.client.ZRevRange(ctx, rs.tiersKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list priority tiers: %w", err)
	}

	now := strconv.FormatInt(time.Now().UnixMilli(), 10)
	var ids []string
	for _, tier := range tiers {
		p, err := strconv.Atoi(tier)
		if err != nil {
			continue
		}
		key := rs.pendingKey(Priority(p))

		rng := &redis.ZRangeBy{Min: "-inf", Max: now}
		if status == StatusDelayed {
			rng = &redis.ZRangeBy{Min: "(" + now, Max: "+inf"}
		}
		tierIDs, err := rs.client.ZRangeByScore(ctx, key, rng).Result()
		if err != nil {
			return nil, fmt.Errorf("scan pending tier %d: %w", p, err)
		}
		ids = append(ids, tierIDs...)
	}
	return ids, nil
}

// Job implements InspectorStorage.
func (rs *RedisStorage) Job(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	return rs.loadJob(ctx, jobID)
}

// RetryJob implements InspectorStorage.
func (rs *RedisStorage) RetryJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := rs.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status != StatusFailed {
		return ErrJobNotRetryable
	}

	removed, err := rs.client.ZRem(ctx, rs.failedKey(), jobID.String()).Result()
	if err != nil {
		return fmt.Errorf("retry job %s: %w", jobID, err)
	}
	if removed == 0 {
		return ErrJobNotRetryable
	}

	now := time.Now()
	job.Status = StatusWaiting
	job.ScheduledAt = now
	job.Error = ""
	job.ProcessedAt = nil
	// The operator grants one more attempt beyond the spent budget.
	job.MaxAttempts = job.Attempt + 1

	pipe := rs.client.TxPipeline()
	rs.saveJob(ctx, pipe, job)
	pipe.ZAdd(ctx, rs.tiersKey(), redis.Z{
		Score:  float64(job.Priority),
		Member: strconv.Itoa(int(job.Priority)),
	})
	pipe.ZAdd(ctx, rs.pendingKey(job.Priority), redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: jobID.String(),
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, err)
	}
	return nil
}

// RemoveJob implements InspectorStorage.
func (rs *RedisStorage) RemoveJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := rs.loadJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.Status == StatusActive {
		return ErrJobNotRemovable
	}

	pipe := rs.client.TxPipeline()
	pipe.ZRem(ctx, rs.pendingKey(job.Priority), jobID.String())
	pipe.ZRem(ctx, rs.completedKey(), jobID.String())
	pipe.ZRem(ctx, rs.failedKey(), jobID.String())
	pipe.Del(ctx, rs.jobKey(jobID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("remove job %s: %w", jobID, err)
	}
	return nil
}

func (rs *RedisStorage) pruneFinished(ctx context.Context, setKey string) error {
	total, err := rs.client.ZCard(ctx, setKey).Result()
	if err != nil {
		return fmt.Errorf("count %s: %w", setKey, err)
	}
	excess := total - int64(rs.retention)
	if excess <= 0 {
		return nil
	}

	oldest, err := rs.client.ZRange(ctx, setKey, 0, excess-1).Result()
	if err != nil {
		return fmt.Errorf("list oldest in %s: %w", setKey, err)
	}

	pipe := rs.client.TxPipeline()
	for _, id := range oldest {
		if jobID, err := uuid.Parse(id); err == nil {
			pipe.Del(ctx, rs.jobKey(jobID))
		}
	}
	pipe.ZRemRangeByRank(ctx, setKey, 0, excess-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("prune %s: %w", setKey, err)
	}
	return nil
}

func (rs *RedisStorage) loadJob(ctx context.Context, jobID uuid.UUID) (*Job, error) {
	body, err := rs.client.Get(ctx, rs.jobKey(jobID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("load job %s: %w", jobID, err)
	}

	var job Job
	if err := json.Unmarshal(body, &job); err != nil {
		return nil, fmt.Errorf("decode job %s: %w", jobID, err)
	}
	return &job, nil
}

func (rs *RedisStorage) saveJob(ctx context.Context, pipe redis.Pipeliner, job *Job) {
	body, err := json.Marshal(job)
	if err != nil {
		return
	}
	pipe.Set(ctx, rs.jobKey(job.ID), body, 0)
}
