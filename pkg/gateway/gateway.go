// Package gateway is the blocking invocation facade over a session.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
)

const logPrefix = "gateway:gateway"

// DefaultTimeout applies when neither the gateway nor the call sets one.
const DefaultTimeout = 30 * time.Second

// Session is what the gateway needs from a transport session.
type Session interface {
	Catalog() *capability.Catalog
	Submit(req *invocation.Request, deliver func(*invocation.Outcome)) error
}

// Gateway validates calls against the current catalog and routes each outcome back
// to the caller that issued it, by invocation id.
type Gateway struct {
	sess    Session
	timeout time.Duration
	newID   func() string

	mu      sync.Mutex
	pending map[string]chan *invocation.Outcome
	late    int
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDefaultTimeout sets the per-call timeout used when a call sets none.
func WithDefaultTimeout(d time.Duration) Option {
	return func(g *Gateway) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithIDGenerator replaces the uuid generator.
func WithIDGenerator(fn func() string) Option {
	return func(g *Gateway) { g.newID = fn }
}

// New creates a Gateway over sess.
func New(sess Session, opts ...Option) *Gateway {
	g := &Gateway{
		sess:    sess,
		timeout: DefaultTimeout,
		newID:   uuid.NewString,
		pending: map[string]chan *invocation.Outcome{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type callConfig struct {
	timeout time.Duration
}

// CallOption configures one Invoke call.
type CallOption func(*callConfig)

// WithTimeout bounds one call. The earlier of this and the context deadline wins.
func WithTimeout(d time.Duration) CallOption {
	return func(c *callConfig) { c.timeout = d }
}

// Invoke calls the named capability and waits for its outcome.
//
// Unknown names and bad arguments fail before anything is sent; those return a nil
// outcome. Every other failure returns the failure outcome together with its error.
// A call that runs out of time gets a local INVOCATION_TIMEOUT outcome and the
// provider's answer, if it ever comes, is dropped.
func (g *Gateway) Invoke(ctx context.Context, name string, args map[string]interface{}, opts ...CallOption) (*invocation.Outcome, error) {
	desc, err := g.sess.Catalog().Lookup(name)
	if err != nil {
		return nil, err
	}
	if err := capability.ValidateArguments(desc, args); err != nil {
		return nil, err
	}

	cfg := callConfig{timeout: g.timeout}
	for _, opt := range opts {
		opt(&cfg)
	}

	req := invocation.NewRequest(g.newID(), name, args)
	ch := g.register(req.ID)

	started := time.Now()
	if err := g.sess.Submit(req, g.route); err != nil {
		g.unregister(req.ID)
		return invocation.Failed(req, started, err), err
	}

	timer := time.NewTimer(cfg.timeout)
	defer timer.Stop()

	select {
	case out := <-ch:
		if out.OK() {
			return out, nil
		}
		return out, out.Err
	case <-timer.C:
		g.unregister(req.ID)
		err := invocation.Errorf(invocation.CodeTimeout, "%s did not complete within %s", name, cfg.timeout)
		return invocation.Failed(req, started, err), err
	case <-ctx.Done():
		g.unregister(req.ID)
		err := invocation.Wrap(invocation.CodeTimeout, ctx.Err(), fmt.Sprintf("%s abandoned by caller", name))
		return invocation.Failed(req, started, err), err
	}
}

// Pending returns the number of calls waiting for an outcome.
func (g *Gateway) Pending() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.pending)
}

// Discarded returns how many outcomes arrived after their caller gave up.
func (g *Gateway) Discarded() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.late
}

func (g *Gateway) register(id string) chan *invocation.Outcome {
	ch := make(chan *invocation.Outcome, 1)
	g.mu.Lock()
	g.pending[id] = ch
	g.mu.Unlock()
	return ch
}

func (g *Gateway) unregister(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

// route hands an outcome to the caller waiting on its id, at most once.
func (g *Gateway) route(out *invocation.Outcome) {
	g.mu.Lock()
	ch, ok := g.pending[out.Request.ID]
	if ok {
		delete(g.pending, out.Request.ID)
	} else {
		g.late++
	}
	g.mu.Unlock()

	if !ok {
		slog.Debug(fmt.Sprintf("%s - Discarding late outcome for %s (%s)", logPrefix, out.Request.ID, out.Request.Capability))
		return
	}
	ch <- out
}
