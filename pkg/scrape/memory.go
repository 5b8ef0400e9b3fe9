package scrape

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryQueue is an in-process Queue for single-binary use and tests.
type MemoryQueue struct {
	mu         sync.Mutex
	ready      []Job
	processing map[string]Job
	pending    map[string]bool
	dead       []Job
	maxRetries int
	closed     bool
}

// NewMemoryQueue creates an empty MemoryQueue.
func NewMemoryQueue(maxRetries int) *MemoryQueue {
	if maxRetries <= 0 {
		maxRetries = DefaultRedisConfig().MaxRetries
	}
	return &MemoryQueue{
		processing: make(map[string]Job),
		pending:    make(map[string]bool),
		maxRetries: maxRetries,
	}
}

// Enqueue implements Queue.
func (q *MemoryQueue) Enqueue(_ context.Context, job Job) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false, ErrQueueClosed
	}
	if q.pending[job.VideoID] {
		return false, nil
	}
	if job.ID == "" {
		job.ID = uuid.New().String()
	}
	if job.RequestedAt.IsZero() {
		job.RequestedAt = time.Now().UTC()
	}
	q.pending[job.VideoID] = true
	q.ready = append(q.ready, job)
	return true, nil
}

// Dequeue implements Queue.
func (q *MemoryQueue) Dequeue(ctx context.Context, max int, wait time.Duration) ([]Job, error) {
	if max <= 0 {
		max = 1
	}
	deadline := time.Now().Add(wait)
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, ErrQueueClosed
		}
		if n := len(q.ready); n > 0 {
			if n > max {
				n = max
			}
			jobs := append([]Job(nil), q.ready[:n]...)
			q.ready = q.ready[n:]
			for _, j := range jobs {
				q.processing[j.ID] = j
			}
			q.mu.Unlock()
			return jobs, nil
		}
		q.mu.Unlock()

		if !time.Now().Before(deadline) {
			return nil, nil
		}
		select {
		case <-time.After(10 * time.Millisecond):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Ack implements Queue.
func (q *MemoryQueue) Ack(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if _, ok := q.processing[job.ID]; !ok {
		return ErrJobNotFound
	}
	delete(q.processing, job.ID)
	delete(q.pending, job.VideoID)
	return nil
}

// Nack implements Queue. Retries go to the back of the queue without delay.
func (q *MemoryQueue) Nack(_ context.Context, job Job, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	stored, ok := q.processing[job.ID]
	if !ok {
		return ErrJobNotFound
	}
	delete(q.processing, job.ID)
	stored.Attempts++
	if stored.Attempts >= q.maxRetries {
		delete(q.pending, stored.VideoID)
		q.dead = append(q.dead, stored)
		return nil
	}
	q.ready = append(q.ready, stored)
	return nil
}

// Depth implements Queue.
func (q *MemoryQueue) Depth(context.Context) (int64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return int64(len(q.ready)), nil
}

// DeadLetters returns the jobs that ran out of retries.
func (q *MemoryQueue) DeadLetters() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Job(nil), q.dead...)
}

// Close implements Queue.
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	return nil
}

var _ Queue = (*MemoryQueue)(nil)
