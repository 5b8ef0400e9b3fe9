// Package scrape queues transcript fetches for videos that have no chunks
// yet. Requests for a video already waiting in the queue are dropped.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"time"

	vqerrors "github.com/otherjamesbrown/vidq/pkg/errors"
	"github.com/otherjamesbrown/vidq/pkg/logging"
	"github.com/otherjamesbrown/vidq/pkg/youtube"
)

// Queue errors.
var (
	ErrJobNotFound = errors.New("scrape job not found")
	ErrQueueClosed = errors.New("scrape queue is closed")
)

// Trigger starts a transcript fetch for a video URL.
type Trigger interface {
	TriggerScrape(ctx context.Context, url string) error
}

// Job is one queued transcript fetch.
type Job struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	URL         string    `json:"url"`
	RequestedAt time.Time `json:"requested_at"`
	Attempts    int       `json:"attempts"`
}

// Queue holds pending jobs. Enqueue reports false when a job for the same
// video is already pending.
type Queue interface {
	Enqueue(ctx context.Context, job Job) (bool, error)
	Dequeue(ctx context.Context, max int, wait time.Duration) ([]Job, error)
	Ack(ctx context.Context, job Job) error
	Nack(ctx context.Context, job Job, reason string) error
	Depth(ctx context.Context) (int64, error)
	Close() error
}

// QueueTrigger implements Trigger on top of a Queue.
type QueueTrigger struct {
	queue  Queue
	logger logging.Logger
}

// NewTrigger creates a QueueTrigger.
func NewTrigger(q Queue, logger logging.Logger) *QueueTrigger {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &QueueTrigger{queue: q, logger: logger}
}

// TriggerScrape queues a fetch for the video the URL points at.
func (t *QueueTrigger) TriggerScrape(ctx context.Context, url string) error {
	id := youtube.ExtractVideoID(url)
	if id == "" {
		return fmt.Errorf("%w: no video ID in %q", vqerrors.ErrValidation, url)
	}

	job := Job{VideoID: id, URL: youtube.WatchURL(id), RequestedAt: time.Now().UTC()}
	queued, err := t.queue.Enqueue(ctx, job)
	if err != nil {
		return vqerrors.ClassifyError(fmt.Errorf("enqueue scrape for %s: %w", id, err), vqerrors.StageScrape)
	}

	log := t.logger.WithContext(ctx)
	if queued {
		log.Info("Scrape queued", logging.F("video_id", id))
	} else {
		log.Debug("Scrape already pending", logging.F("video_id", id))
	}
	return nil
}

// backoff returns the retry delay for a job that has failed attempts times:
// 1s, 2s, 4s and so on, capped at five minutes.
func backoff(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > 9 {
		return 5 * time.Minute
	}
	d := time.Second << uint(attempts)
	if d > 5*time.Minute {
		d = 5 * time.Minute
	}
	return d
}
