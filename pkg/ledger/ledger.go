// Package ledger keeps a bounded, in-memory history of invocation outcomes.
package ledger

import (
	"sync"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

// DefaultCapacity is the number of outcomes kept when none is configured.
const DefaultCapacity = 10

// Ledger is a fixed-capacity ring of outcomes ordered by completion time.
// When full, appending evicts the oldest entry.
type Ledger struct {
	mu    sync.RWMutex
	buf   []*invocation.Outcome
	start int
	n     int
	sinks []Sink
}

// New creates a Ledger holding at most capacity outcomes.
func New(capacity int, sinks ...Sink) *Ledger {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ledger{buf: make([]*invocation.Outcome, capacity), sinks: sinks}
}

// Append records out. Outcomes usually arrive in completion order and are placed
// at the end in O(1); one that completed earlier than entries already recorded is
// slotted in behind them. An outcome older than everything in a full ledger is
// dropped, since it would be evicted immediately.
//
// Sinks are called under the write lock, so they see kept outcomes in the order
// the ledger accepted them.
func (l *Ledger) Append(out *invocation.Outcome) {
	if out == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.insert(out) {
		return
	}
	for _, s := range l.sinks {
		s.Record(out)
	}
}

func (l *Ledger) insert(out *invocation.Outcome) bool {
	capacity := len(l.buf)

	// Position among existing entries, counted from the oldest.
	pos := l.n
	for pos > 0 && l.at(pos-1).CompletedAt.After(out.CompletedAt) {
		pos--
	}

	if l.n == capacity {
		if pos == 0 {
			return false
		}
		// Evict the oldest; everything shifts one slot towards the front.
		l.buf[l.start] = nil
		l.start = (l.start + 1) % capacity
		l.n--
		pos--
	}

	// Open a gap at pos by moving later entries back one slot.
	for i := l.n; i > pos; i-- {
		l.set(i, l.at(i-1))
	}
	l.set(pos, out)
	l.n++
	return true
}

func (l *Ledger) at(i int) *invocation.Outcome { return l.buf[(l.start+i)%len(l.buf)] }

func (l *Ledger) set(i int, out *invocation.Outcome) { l.buf[(l.start+i)%len(l.buf)] = out }

// Recent returns up to k outcomes, most recent first. k <= 0 returns everything.
func (l *Ledger) Recent(k int) []*invocation.Outcome {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if k <= 0 || k > l.n {
		k = l.n
	}
	out := make([]*invocation.Outcome, 0, k)
	for i := l.n - 1; i >= l.n-k; i-- {
		out = append(out, l.at(i))
	}
	return out
}

// Clear drops every recorded outcome.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.buf {
		l.buf[i] = nil
	}
	l.start, l.n = 0, 0
}

// Len returns the number of recorded outcomes.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.n
}

// Cap returns the capacity.
func (l *Ledger) Cap() int { return len(l.buf) }
