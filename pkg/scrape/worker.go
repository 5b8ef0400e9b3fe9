package scrape

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// Handler fetches and stores the transcript for one job.
type Handler func(ctx context.Context, job Job) error

// WorkerConfig configures a Worker.
type WorkerConfig struct {
	BatchSize    int           `yaml:"batch_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	JobTimeout   time.Duration `yaml:"job_timeout"`

	// RecoverInterval is how often jobs whose visibility timeout lapsed are
	// returned to the queue. Only queues with a processing set support it.
	RecoverInterval time.Duration `yaml:"recover_interval"`
}

type staleRecoverer interface {
	RecoverStale(ctx context.Context) (int, error)
}

// DefaultWorkerConfig returns the worker defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:    1,
		PollInterval: time.Second,
		JobTimeout:   2 * time.Minute,

		RecoverInterval: time.Minute,
	}
}

// Worker drains a Queue through a Handler.
type Worker struct {
	queue   Queue
	handler Handler
	cfg     WorkerConfig
	logger  logging.Logger

	processed atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a Worker.
func NewWorker(q Queue, h Handler, cfg WorkerConfig, logger logging.Logger) *Worker {
	def := DefaultWorkerConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = def.JobTimeout
	}
	if cfg.RecoverInterval <= 0 {
		cfg.RecoverInterval = def.RecoverInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Worker{queue: q, handler: h, cfg: cfg, logger: logger}
}

// Run processes jobs until ctx is cancelled or the queue closes.
func (w *Worker) Run(ctx context.Context) error {
	var lastRecover time.Time
	for {
		if ctx.Err() != nil {
			return nil
		}
		if time.Since(lastRecover) >= w.cfg.RecoverInterval {
			w.recoverStale(ctx)
			lastRecover = time.Now()
		}
		jobs, err := w.queue.Dequeue(ctx, w.cfg.BatchSize, w.cfg.PollInterval)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, ErrQueueClosed) {
				return err
			}
			w.logger.Warn("Dequeue failed", logging.Err(err))
			select {
			case <-time.After(w.cfg.PollInterval):
			case <-ctx.Done():
				return nil
			}
			continue
		}
		for _, job := range jobs {
			w.process(ctx, job)
		}
	}
}

func (w *Worker) recoverStale(ctx context.Context) {
	r, ok := w.queue.(staleRecoverer)
	if !ok {
		return
	}
	n, err := r.RecoverStale(ctx)
	if err != nil {
		w.logger.Warn("Stale job recovery failed", logging.Err(err))
		return
	}
	if n > 0 {
		w.logger.Info("Requeued stale scrape jobs", logging.F("count", n))
	}
}

func (w *Worker) process(ctx context.Context, job Job) {
	log := w.logger.With(logging.F("video_id", job.VideoID), logging.F("job_id", job.ID))

	jobCtx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	if err := w.handler(jobCtx, job); err != nil {
		w.failed.Add(1)
		log.Warn("Scrape failed", logging.Err(err), logging.F("attempts", job.Attempts+1))
		if nerr := w.queue.Nack(ctx, job, err.Error()); nerr != nil {
			log.Error("Nack failed", logging.Err(nerr))
		}
		return
	}
	w.processed.Add(1)
	log.Info("Scrape complete")
	if err := w.queue.Ack(ctx, job); err != nil {
		log.Error("Ack failed", logging.Err(err))
	}
}

// Stats returns the processed and failed job counts.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}
