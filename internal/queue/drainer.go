package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// interItemPause is the cooperative delay between drained items, so a
// just-recovered embedding generator isn't immediately flooded.
const interItemPause = 100 * time.Millisecond

// HealthChecker reports whether the embedding service is currently
// healthy enough to accept requests. Satisfied by *health.Monitor.
type HealthChecker interface {
	IsAvailable() bool
}

// Processor re-attempts indexing of a single deferred item. Satisfied by
// the Indexer.
type Processor interface {
	Process(ctx context.Context, item Item) error
}

// Drainer drains a Queue in FIFO order once the Health Monitor reports
// recovery, re-checking health between items and stopping immediately if
// the service becomes unavailable again or ctx is cancelled. At most one
// drain runs at a time, enforced by an internal mutex.
type Drainer struct {
	queue     *Queue
	health    HealthChecker
	processor Processor
	logger    *slog.Logger

	mu       sync.Mutex
	draining bool
}

// NewDrainer constructs a Drainer over queue, consulting health before
// each item and delegating re-indexing to processor.
func NewDrainer(queue *Queue, health HealthChecker, processor Processor, logger *slog.Logger) *Drainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Drainer{queue: queue, health: health, processor: processor, logger: logger}
}

// Drain processes queued items in order until the queue is empty, the
// service reports unhealthy, or ctx is cancelled. If a drain is already
// in flight, Drain returns immediately without doing anything.
func (d *Drainer) Drain(ctx context.Context) {
	d.mu.Lock()
	if d.draining {
		d.mu.Unlock()
		return
	}
	d.draining = true
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.draining = false
		d.mu.Unlock()
	}()

	d.logger.Info("deferred queue drain starting", slog.Int("count", d.queue.Count()))

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("deferred queue drain stopped by cancellation")
			return
		default:
		}

		if !d.health.IsAvailable() {
			d.logger.Info("deferred queue drain paused, embedding service unhealthy")
			return
		}

		item, ok := d.queue.TryDequeue()
		if !ok {
			d.logger.Info("deferred queue drain finished, queue empty")
			return
		}

		if err := d.processor.Process(ctx, item); err != nil {
			d.logger.Warn("deferred item re-processing failed",
				slog.String("path", item.RelativePath),
				slog.String("error", err.Error()))
			d.queue.Requeue(item)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interItemPause):
		}
	}
}
