// Package health tracks the Embedding Client's circuit-breaker state and
// publishes transition events to the File Watcher dispatch path and the
// Deferred Queue drainer.
package health

import (
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/errors"
)

// Snapshot is the point-in-time view of embedding-service health exposed
// to tool handlers and callers.
type Snapshot struct {
	Available         bool
	State             string
	RetryAfterSeconds int
	LastSuccess       time.Time
	FailureCount      int
	PlatformHint      string
}

// Monitor observes a *errors.CircuitBreaker and republishes its state
// transitions as Snapshots on a fan-out channel set.
type Monitor struct {
	breaker      *errors.CircuitBreaker
	platformHint string
	logger       *slog.Logger

	mu          sync.Mutex
	subscribers []chan Snapshot

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a Monitor over breaker. platformHint is an opaque string
// surfaced verbatim in Snapshot (e.g. which embedding backend is
// configured) for operator-facing diagnostics.
func New(breaker *errors.CircuitBreaker, platformHint string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		breaker:      breaker,
		platformHint: platformHint,
		logger:       logger,
		stopCh:       make(chan struct{}),
	}
}

// Start begins forwarding circuit-breaker transitions until Stop is
// called. Safe to call at most once.
func (m *Monitor) Start() {
	transitions := m.breaker.Subscribe()
	go func() {
		for {
			select {
			case <-m.stopCh:
				return
			case state, ok := <-transitions:
				if !ok {
					return
				}
				snap := m.snapshotFor(state)
				m.logger.Info("embedding circuit state changed",
					slog.String("state", snap.State),
					slog.Bool("available", snap.Available))
				m.publish(snap)
			}
		}
	}()
}

// Stop halts the forwarding goroutine started by Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

// Subscribe returns a channel that receives every future Snapshot
// transition. The channel is buffered (size 1); callers that fall behind
// only ever see the most recent transition.
func (m *Monitor) Subscribe() <-chan Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch := make(chan Snapshot, 1)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

func (m *Monitor) publish(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.subscribers {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Current returns the present Snapshot without waiting for a transition.
func (m *Monitor) Current() Snapshot {
	return m.snapshotFor(m.breaker.State())
}

// IsAvailable satisfies queue.HealthChecker: true iff the circuit is not
// open.
func (m *Monitor) IsAvailable() bool {
	return m.breaker.State() != errors.StateOpen
}

func (m *Monitor) snapshotFor(state errors.State) Snapshot {
	return Snapshot{
		Available:         state != errors.StateOpen,
		State:             state.String(),
		RetryAfterSeconds: m.breaker.RetryAfterSeconds(),
		LastSuccess:       m.breaker.LastSuccess(),
		FailureCount:      m.breaker.Failures(),
		PlatformHint:      m.platformHint,
	}
}
