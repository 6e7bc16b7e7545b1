// Package queue implements the Deferred Queue: a bounded in-memory FIFO
// of change events that could not be indexed while the Embedding Client
// was unhealthy, drained once the Health Monitor reports recovery.
package queue

import (
	"container/list"
	"log/slog"
	"sync"

	"github.com/Aman-CERP/amanmcp/internal/tenant"
)

// DefaultCapacity bounds the queue before the oldest item is evicted.
const DefaultCapacity = 1000

// DefaultMaxRetryAttempts is how many times an item may be re-dequeued
// and re-enqueued before it is dropped.
const DefaultMaxRetryAttempts = 3

// ChangeKind classifies the file-system operation that produced an Item,
// mirroring the File Watcher's event taxonomy without importing it (the
// watcher is the one constructing Items, so the dependency would be
// circular).
type ChangeKind string

const (
	ChangeCreated  ChangeKind = "created"
	ChangeModified ChangeKind = "modified"
	ChangeDeleted  ChangeKind = "deleted"
)

// Item is a deferred change event, identified by tenant and relative
// path.
type Item struct {
	TenantKey    tenant.Key
	RelativePath string
	Kind         ChangeKind
	AttemptCount int
}

// Queue is a bounded, mutex-guarded FIFO. Not persisted: a process
// restart loses its contents, and start-up reconciliation is the
// recovery mechanism for whatever was in flight.
type Queue struct {
	logger *slog.Logger

	mu               sync.Mutex
	items            *list.List
	capacity         int
	maxRetryAttempts int

	droppedOverflow uint64
	droppedRetries  uint64
}

// Option configures a Queue at construction.
type Option func(*Queue)

// WithCapacity overrides DefaultCapacity.
func WithCapacity(n int) Option {
	return func(q *Queue) { q.capacity = n }
}

// WithMaxRetryAttempts overrides DefaultMaxRetryAttempts.
func WithMaxRetryAttempts(n int) Option {
	return func(q *Queue) { q.maxRetryAttempts = n }
}

// New creates an empty Queue. logger receives a warning on overflow
// eviction and an error on attempt-limit drop.
func New(logger *slog.Logger, opts ...Option) *Queue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &Queue{
		logger:           logger,
		items:            list.New(),
		capacity:         DefaultCapacity,
		maxRetryAttempts: DefaultMaxRetryAttempts,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends item to the back of the queue. It always returns true;
// if the queue is at capacity, the oldest item is dropped to make room,
// logged at warning level.
func (q *Queue) Enqueue(item Item) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.items.Len() >= q.capacity {
		front := q.items.Front()
		dropped := front.Value.(Item)
		q.items.Remove(front)
		q.droppedOverflow++
		q.logger.Warn("deferred queue full, dropping oldest item",
			slog.String("dropped_path", dropped.RelativePath),
			slog.Uint64("total_dropped_overflow", q.droppedOverflow))
	}

	q.items.PushBack(item)
	return true
}

// TryDequeue removes and returns the front item, or ok=false if empty.
func (q *Queue) TryDequeue() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items.Front()
	if front == nil {
		return Item{}, false
	}
	q.items.Remove(front)
	return front.Value.(Item), true
}

// TryPeek returns the front item without removing it, or ok=false if empty.
func (q *Queue) TryPeek() (item Item, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	front := q.items.Front()
	if front == nil {
		return Item{}, false
	}
	return front.Value.(Item), true
}

// Requeue reinserts item at the back with AttemptCount incremented. If
// the new attempt count exceeds MaxRetryAttempts, the item is dropped
// instead, logged at error level, and Requeue returns false.
func (q *Queue) Requeue(item Item) bool {
	item.AttemptCount++

	q.mu.Lock()
	defer q.mu.Unlock()

	if item.AttemptCount > q.maxRetryAttempts {
		q.droppedRetries++
		q.logger.Error("dropping item after exceeding max retry attempts",
			slog.String("path", item.RelativePath),
			slog.Int("attempt_count", item.AttemptCount),
			slog.Int("max_retry_attempts", q.maxRetryAttempts))
		return false
	}

	if q.items.Len() >= q.capacity {
		front := q.items.Front()
		dropped := front.Value.(Item)
		q.items.Remove(front)
		q.droppedOverflow++
		q.logger.Warn("deferred queue full, dropping oldest item",
			slog.String("dropped_path", dropped.RelativePath),
			slog.Uint64("total_dropped_overflow", q.droppedOverflow))
	}

	q.items.PushBack(item)
	return true
}

// Count returns the number of items currently queued.
func (q *Queue) Count() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Clear removes every queued item.
func (q *Queue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items.Init()
}
