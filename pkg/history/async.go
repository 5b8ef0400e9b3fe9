package history

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/otherjamesbrown/vidq/pkg/logging"
)

// BatchWriter persists a batch of entries.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// Async buffers entries and writes them in batches from a background
// goroutine. Record never blocks: entries are dropped when the buffer is full.
type Async struct {
	writer    BatchWriter
	logger    logging.Logger
	entries   chan Entry
	batchSize int
	interval  time.Duration

	dropped atomic.Int64
	mu      sync.RWMutex
	closed  bool
	done    chan struct{}
}

// NewAsync starts a background writer.
func NewAsync(w BatchWriter, cfg Config, logger logging.Logger) *Async {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = def.FlushInterval
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	a := &Async{
		writer:    w,
		logger:    logger,
		entries:   make(chan Entry, cfg.BufferSize),
		batchSize: cfg.BatchSize,
		interval:  cfg.FlushInterval,
		done:      make(chan struct{}),
	}
	go a.run()
	return a
}

// Record queues an entry for writing.
func (a *Async) Record(_ context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.closed {
		return nil
	}
	select {
	case a.entries <- e:
	default:
		if a.dropped.Add(1) == 1 {
			a.logger.Warn("History buffer full, dropping entries")
		}
	}
	return nil
}

// Dropped returns how many entries were discarded because the buffer was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// Close flushes pending entries and stops the writer. It returns ctx's
// error if the flush does not finish in time.
func (a *Async) Close(ctx context.Context) error {
	a.mu.Lock()
	if !a.closed {
		a.closed = true
		close(a.entries)
	}
	a.mu.Unlock()
	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (a *Async) run() {
	defer close(a.done)

	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	batch := make([]Entry, 0, a.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.writer.WriteBatch(ctx, batch); err != nil {
			a.logger.Warn("Failed to write history",
				logging.Err(err),
				logging.F("entries", len(batch)),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-a.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= a.batchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

var (
	_ Recorder = (*Async)(nil)
	_ Recorder = (*Store)(nil)
)
