package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

const sinkLogPrefix = "ledger:sink"

// Sink receives every outcome kept by a Ledger. Record is called with the ledger's
// write lock held: it must not block or call back into the ledger.
type Sink interface {
	Record(out *invocation.Outcome)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(out *invocation.Outcome)

// Record calls f.
func (f SinkFunc) Record(out *invocation.Outcome) { f(out) }

// Store persists outcomes outside the process.
type Store interface {
	SaveOutcome(ctx context.Context, out *invocation.Outcome) error
}

// Mirror copies outcomes to a Store from a background goroutine. When its buffer is
// full new outcomes are dropped with a warning; the in-memory ledger stays authoritative.
type Mirror struct {
	store   Store
	timeout time.Duration
	ch      chan *invocation.Outcome
	done    chan struct{}

	mu      sync.Mutex
	closed  bool
	dropped int
}

// NewMirror starts a mirror with a buffer of size outcomes.
func NewMirror(store Store, size int, timeout time.Duration) *Mirror {
	if size <= 0 {
		size = 64
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	m := &Mirror{
		store:   store,
		timeout: timeout,
		ch:      make(chan *invocation.Outcome, size),
		done:    make(chan struct{}),
	}
	go m.run()
	return m
}

// Record queues out for the store.
func (m *Mirror) Record(out *invocation.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	select {
	case m.ch <- out:
	default:
		m.dropped++
		slog.Warn(fmt.Sprintf("%s - Mirror buffer full, dropping outcome %s", sinkLogPrefix, out.Request.ID))
	}
}

// Dropped returns how many outcomes were not mirrored because the buffer was full.
func (m *Mirror) Dropped() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close flushes queued outcomes and stops the mirror.
func (m *Mirror) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	close(m.ch)
	m.mu.Unlock()
	<-m.done
}

func (m *Mirror) run() {
	defer close(m.done)
	for out := range m.ch {
		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		if err := m.store.SaveOutcome(ctx, out); err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to mirror outcome %s: %v", sinkLogPrefix, out.Request.ID, err))
		}
		cancel()
	}
}
