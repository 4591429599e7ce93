package session

import (
	"context"
	"sync"
)

// mailbox is the unbounded FIFO feeding the session worker.
//
// Pushes never block, so a notification handler or an HTTP caller can hand work to
// the worker without waiting for the invocation ahead of it. The buffered signal
// channel coalesces wakeups.
type mailbox struct {
	mu     sync.Mutex
	tasks  []task
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{
		tasks:  make([]task, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// push appends t. Returns false once the mailbox is closed.
func (m *mailbox) push(t task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return false
	}
	m.tasks = append(m.tasks, t)

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) tryPop() (task, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.tasks) == 0 {
		return nil, false
	}
	t := m.tasks[0]
	m.tasks[0] = nil
	m.tasks = m.tasks[1:]
	return t, true
}

// next blocks until a task is available or ctx is done.
func (m *mailbox) next(ctx context.Context) (task, bool) {
	for {
		if t, ok := m.tryPop(); ok {
			return t, true
		}
		select {
		case <-m.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// drain closes the mailbox and returns whatever was still queued, in order.
func (m *mailbox) drain() []task {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	rest := m.tasks
	m.tasks = nil
	return rest
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
