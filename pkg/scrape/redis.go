package scrape

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisQueue.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"-"`
	DB       int    `yaml:"db"`
	// Name namespaces the queue keys.
	Name string `yaml:"name"`
	// Retention bounds how long job data and the pending marker live.
	Retention         time.Duration `yaml:"retention"`
	VisibilityTimeout time.Duration `yaml:"visibility_timeout"`
	MaxRetries        int           `yaml:"max_retries"`
}

// DefaultRedisConfig returns the defaults for a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:              "localhost:6379",
		Name:              "scrape",
		Retention:         24 * time.Hour,
		VisibilityTimeout: 5 * time.Minute,
		MaxRetries:        3,
	}
}

// Redis key prefixes.
const (
	keyPrefixQueue      = "vidq:queue:"      // pending job IDs, scored by ready time
	keyPrefixProcessing = "vidq:processing:" // dequeued job IDs, scored by visibility deadline
	keyPrefixJob        = "vidq:job:"        // job data
	keyPrefixPending    = "vidq:pending:"    // video ID -> job ID while queued or processing
	keyPrefixDLQ        = "vidq:dlq:"        // failed jobs
)

// RedisQueue implements Queue using Redis sorted sets.
type RedisQueue struct {
	client *redis.Client
	cfg    RedisConfig
	owned  bool
}

// NewRedisQueue creates a queue over an existing client.
func NewRedisQueue(client *redis.Client, cfg RedisConfig) *RedisQueue {
	def := DefaultRedisConfig()
	if cfg.Name == "" {
		cfg.Name = def.Name
	}
	if cfg.Retention <= 0 {
		cfg.Retention = def.Retention
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = def.VisibilityTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = def.MaxRetries
	}
	return &RedisQueue{client: client, cfg: cfg}
}

// OpenRedis connects to Redis and returns a queue that owns the client.
func OpenRedis(ctx context.Context, cfg RedisConfig) (*RedisQueue, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Addr, err)
	}
	q := NewRedisQueue(client, cfg)
	q.owned = true
	return q, nil
}

// Ping checks the Redis connection.
func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

func (q *RedisQueue) queueKey() string      { return keyPrefixQueue + q.cfg.Name }
func (q *RedisQueue) processingKey() string { return keyPrefixProcessing + q.cfg.Name }
func (q *RedisQueue) dlqKey() string        { return keyPrefixDLQ + q.cfg.Name }
func (q *RedisQueue) jobKey(id string) string {
	return keyPrefixJob + q.cfg.Name + ":" + id
}
func (q *RedisQueue) pendingKey(videoID string) string {
	return keyPrefixPending + q.cfg.Name + ":" + videoID
}

// Enqueue adds a job unless one for the same video is pending.
func (q *RedisQueue) Enqueue(ctx context.Context, job Job) (bool, error) {
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}

	ok, err := q.client.SetNX(ctx, q.pendingKey(job.VideoID), job.ID, q.cfg.Retention).Result()
	if err != nil {
		return false, fmt.Errorf("failed to mark pending: %w", err)
	}
	if !ok {
		return false, nil
	}

	data, err := json.Marshal(job)
	if err != nil {
		return false, fmt.Errorf("failed to marshal job: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.Set(ctx, q.jobKey(job.ID), data, q.cfg.Retention)
	pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: job.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		q.client.Del(ctx, q.pendingKey(job.VideoID))
		return false, fmt.Errorf("failed to enqueue job: %w", err)
	}
	return true, nil
}

// Dequeue pops up to max ready jobs, polling until wait elapses.
func (q *RedisQueue) Dequeue(ctx context.Context, max int, wait time.Duration) ([]Job, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	var jobs []Job

	for len(jobs) < max {
		now := float64(time.Now().UnixNano())
		ids, err := q.client.ZRangeByScore(ctx, q.queueKey(), &redis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%f", now),
			Count: 1,
		}).Result()
		if err != nil {
			return jobs, fmt.Errorf("failed to read queue: %w", err)
		}

		if len(ids) == 0 {
			if len(jobs) > 0 || !time.Now().Before(deadline) {
				return jobs, nil
			}
			select {
			case <-time.After(100 * time.Millisecond):
				continue
			case <-ctx.Done():
				return jobs, ctx.Err()
			}
		}

		// Another consumer may win the race for this ID.
		removed, err := q.client.ZRem(ctx, q.queueKey(), ids[0]).Result()
		if err != nil {
			return jobs, fmt.Errorf("failed to pop job: %w", err)
		}
		if removed == 0 {
			continue
		}

		job, err := q.load(ctx, ids[0])
		if errors.Is(err, ErrJobNotFound) {
			continue
		}
		if err != nil {
			return jobs, err
		}

		visibleAfter := time.Now().Add(q.cfg.VisibilityTimeout)
		if err := q.client.ZAdd(ctx, q.processingKey(), redis.Z{
			Score:  float64(visibleAfter.UnixNano()),
			Member: job.ID,
		}).Err(); err != nil {
			return jobs, fmt.Errorf("failed to move to processing: %w", err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *RedisQueue) load(ctx context.Context, id string) (Job, error) {
	data, err := q.client.Get(ctx, q.jobKey(id)).Bytes()
	if err == redis.Nil {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("failed to get job: %w", err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return job, nil
}

// Ack removes a finished job and clears its pending marker.
func (q *RedisQueue) Ack(ctx context.Context, job Job) error {
	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), job.ID)
	pipe.Del(ctx, q.jobKey(job.ID), q.pendingKey(job.VideoID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// Nack schedules a retry with exponential backoff, or moves the job to the
// dead letter set once it has used up its retries.
func (q *RedisQueue) Nack(ctx context.Context, job Job, reason string) error {
	stored, err := q.load(ctx, job.ID)
	if err != nil {
		return err
	}
	stored.Attempts++

	if stored.Attempts >= q.cfg.MaxRetries {
		return q.deadLetter(ctx, stored, reason)
	}

	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	ready := time.Now().Add(backoff(stored.Attempts))

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), stored.ID)
	pipe.Set(ctx, q.jobKey(stored.ID), data, q.cfg.Retention)
	pipe.ZAdd(ctx, q.queueKey(), redis.Z{Score: float64(ready.UnixNano()), Member: stored.ID})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to nack job: %w", err)
	}
	return nil
}

func (q *RedisQueue) deadLetter(ctx context.Context, job Job, reason string) error {
	entry, err := json.Marshal(map[string]interface{}{
		"job":      job,
		"reason":   reason,
		"moved_at": time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}

	pipe := q.client.TxPipeline()
	pipe.ZRem(ctx, q.processingKey(), job.ID)
	pipe.Del(ctx, q.jobKey(job.ID), q.pendingKey(job.VideoID))
	pipe.ZAdd(ctx, q.dlqKey(), redis.Z{Score: float64(time.Now().UnixNano()), Member: string(entry)})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to move to dead letter: %w", err)
	}
	return nil
}

// RecoverStale puts jobs whose visibility timeout expired back on the queue.
func (q *RedisQueue) RecoverStale(ctx context.Context) (int, error) {
	now := float64(time.Now().UnixNano())
	ids, err := q.client.ZRangeByScore(ctx, q.processingKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%f", now),
		Count: 100,
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to find stale jobs: %w", err)
	}

	recovered := 0
	for _, id := range ids {
		job, err := q.load(ctx, id)
		if errors.Is(err, ErrJobNotFound) {
			q.client.ZRem(ctx, q.processingKey(), id)
			continue
		}
		if err != nil {
			return recovered, err
		}
		if err := q.Nack(ctx, job, "visibility timeout exceeded"); err != nil {
			return recovered, err
		}
		recovered++
	}
	return recovered, nil
}

// Depth returns the number of jobs waiting.
func (q *RedisQueue) Depth(ctx context.Context) (int64, error) {
	return q.client.ZCard(ctx, q.queueKey()).Result()
}

// Close closes the client when the queue opened it.
func (q *RedisQueue) Close() error {
	if q.owned {
		return q.client.Close()
	}
	return nil
}

var _ Queue = (*RedisQueue)(nil)
