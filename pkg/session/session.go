// Package session owns the long-lived connection to a capability provider.
//
// A Session serializes all provider traffic onto one worker goroutine: connecting,
// catalog refreshes and invocations are queued in arrival order and run one at a
// time. Catalog snapshots are published through an atomic pointer so readers never
// wait on the worker.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/morezero/capability-bridge/pkg/capability"
	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/wire"
)

const logPrefix = "session:session"

// Options tune a Session. Zero values fall back to defaults.
type Options struct {
	// ConnectTimeout bounds dialing plus the initial catalog fetch.
	ConnectTimeout time.Duration
	// RequestTimeout bounds one catalog listing.
	RequestTimeout time.Duration
	// InvokeTimeout bounds how long the worker waits on one invocation before
	// moving on to the next queued one.
	InvokeTimeout time.Duration
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
	defaultInvokeTimeout  = 60 * time.Second
)

// Session is the transport session. Create one with New.
type Session struct {
	dialer Dialer
	opts   Options

	mu       sync.Mutex // guards transitions, conn and attempt
	state    atomic.Int32
	conn     Conn
	attempt  *connectAttempt
	endpoint string

	catalog atomic.Pointer[capability.Catalog]

	queue      *mailbox
	ctx        context.Context
	cancel     context.CancelFunc
	workerDone chan struct{}
	closeOnce  sync.Once
}

// New creates a disconnected session and starts its worker.
func New(dialer Dialer, opts Options) *Session {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultConnectTimeout
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.InvokeTimeout <= 0 {
		opts.InvokeTimeout = defaultInvokeTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		dialer:     dialer,
		opts:       opts,
		queue:      newMailbox(),
		ctx:        ctx,
		cancel:     cancel,
		workerDone: make(chan struct{}),
	}
	s.catalog.Store(capability.Empty())

	go s.work()
	return s
}

// State returns the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Endpoint returns the endpoint of the last connect attempt.
func (s *Session) Endpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// Catalog returns the current catalog snapshot. It is never nil.
func (s *Session) Catalog() *capability.Catalog { return s.catalog.Load() }

// Connect opens the connection and fetches the catalog.
//
// It is a no-op when the session is Ready. While another attempt is in flight the
// call waits for that attempt and returns its result; endpoint is ignored then.
func (s *Session) Connect(ctx context.Context, endpoint string) error {
	s.mu.Lock()
	switch s.State() {
	case Ready:
		s.mu.Unlock()
		return nil
	case Closing, Closed:
		s.mu.Unlock()
		return invocation.Errorf(invocation.CodeSessionClosed, "session is closed")
	case Connecting:
		a := s.attempt
		s.mu.Unlock()
		return a.wait(ctx)
	}

	a := &connectAttempt{endpoint: endpoint, done: make(chan struct{})}
	s.attempt = a
	s.endpoint = endpoint
	s.moveLocked(Connecting)
	s.mu.Unlock()

	if !s.queue.push(&connectTask{attempt: a}) {
		a.finish(invocation.Errorf(invocation.CodeSessionClosed, "session is closed"))
	}
	return a.wait(ctx)
}

// RefreshCatalog re-lists the provider's capabilities and swaps in a new snapshot.
// On failure the previous snapshot stays current.
func (s *Session) RefreshCatalog(ctx context.Context) error {
	t := &refreshTask{ctx: ctx, done: make(chan error, 1)}
	if !s.queue.push(t) {
		return invocation.Errorf(invocation.CodeCatalogRefresh, "session is closed")
	}
	select {
	case err := <-t.done:
		return err
	case <-ctx.Done():
		return invocation.Wrap(invocation.CodeCatalogRefresh, ctx.Err(), "refresh abandoned")
	}
}

// Submit queues req behind every earlier submission. deliver is called exactly once
// from the worker with the outcome, unless Submit returns an error.
func (s *Session) Submit(req *invocation.Request, deliver func(*invocation.Outcome)) error {
	switch s.State() {
	case Closing, Closed:
		return invocation.Errorf(invocation.CodeSessionClosed, "session is closed")
	}
	if !s.queue.push(&invokeTask{req: req, deliver: deliver}) {
		return invocation.Errorf(invocation.CodeSessionClosed, "session is closed")
	}
	return nil
}

// SendInvocation submits req and waits for its outcome. Provider and transport
// failures are reported inside the outcome; the error is only set when the request
// could not be queued or ctx ended first.
func (s *Session) SendInvocation(ctx context.Context, req *invocation.Request) (*invocation.Outcome, error) {
	ch := make(chan *invocation.Outcome, 1)
	if err := s.Submit(req, func(o *invocation.Outcome) { ch <- o }); err != nil {
		return nil, err
	}
	select {
	case o := <-ch:
		return o, nil
	case <-ctx.Done():
		return nil, invocation.Wrap(invocation.CodeTimeout, ctx.Err(), fmt.Sprintf("no outcome for %s", req.ID))
	}
}

// Close shuts the session down. Queued work fails with a session-closed error.
// It is safe to call from any state and more than once.
func (s *Session) Close() error {
	var err error
	s.closeOnce.Do(func() {
		slog.Info(fmt.Sprintf("%s - Closing session", logPrefix))
		s.move(Closing)
		s.cancel()
		<-s.workerDone

		closedErr := invocation.Errorf(invocation.CodeSessionClosed, "session closed")
		for _, t := range s.queue.drain() {
			t.abort(closedErr)
		}

		s.mu.Lock()
		conn := s.conn
		s.conn = nil
		if s.attempt != nil {
			s.attempt.finish(closedErr)
		}
		s.moveLocked(Closed)
		s.mu.Unlock()

		if conn != nil {
			err = conn.Close()
		}
		slog.Info(fmt.Sprintf("%s - Session closed", logPrefix))
	})
	return err
}

func (s *Session) work() {
	defer close(s.workerDone)
	for {
		t, ok := s.queue.next(s.ctx)
		if !ok {
			return
		}
		if s.ctx.Err() != nil {
			t.abort(invocation.Errorf(invocation.CodeSessionClosed, "session closed"))
			continue
		}
		t.run(s)
	}
}

func (s *Session) move(next State) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.moveLocked(next)
}

func (s *Session) moveLocked(next State) bool {
	cur := s.State()
	if !cur.canMove(next) {
		return false
	}
	if cur != next {
		s.state.Store(int32(next))
		slog.Debug(fmt.Sprintf("%s - State %s -> %s", logPrefix, cur, next))
	}
	return true
}

func (s *Session) currentConn() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// markLost drops conn if it is still the current connection.
func (s *Session) markLost(conn Conn, cause error) {
	s.mu.Lock()
	if s.conn != conn {
		s.mu.Unlock()
		return
	}
	s.conn = nil
	moved := s.moveLocked(Disconnected)
	s.mu.Unlock()

	_ = conn.Close()
	if moved {
		slog.Warn(fmt.Sprintf("%s - Connection to provider lost: %v", logPrefix, cause))
	}
}

// watch turns connection events into worker tasks until conn goes away.
func (s *Session) watch(conn Conn) {
	for {
		select {
		case n, ok := <-conn.Notifications():
			if !ok {
				select {
				case <-conn.Done():
				case <-s.ctx.Done():
					return
				}
				s.queue.push(&lostTask{conn: conn})
				return
			}
			switch n.Type {
			case wire.NotificationListChanged:
				slog.Info(fmt.Sprintf("%s - Provider capabilities changed, refreshing", logPrefix))
				s.queue.push(&refreshTask{ctx: s.ctx})
			default:
				slog.Debug(fmt.Sprintf("%s - Ignoring notification %s", logPrefix, n.Type))
			}
		case <-conn.Done():
			s.queue.push(&lostTask{conn: conn})
			return
		case <-s.ctx.Done():
			return
		}
	}
}

// refresh runs on the worker.
func (s *Session) refresh(ctx context.Context) error {
	conn := s.currentConn()
	if conn == nil {
		return invocation.Errorf(invocation.CodeCatalogRefresh, "session is not connected")
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.RequestTimeout)
	defer cancel()

	var specs []wire.CapabilitySpec
	seen := map[string]bool{}
	cursor := ""
	for {
		page, err := conn.ListCapabilities(ctx, cursor)
		if err != nil {
			return invocation.Wrap(invocation.CodeCatalogRefresh, err, "list capabilities")
		}
		specs = append(specs, page.Capabilities...)
		if page.NextCursor == "" {
			break
		}
		if seen[page.NextCursor] {
			return invocation.Errorf(invocation.CodeCatalogRefresh, "provider repeated cursor %q", page.NextCursor)
		}
		seen[page.NextCursor] = true
		cursor = page.NextCursor
	}

	descs := make([]capability.Descriptor, 0, len(specs))
	for _, spec := range specs {
		descs = append(descs, capability.FromSpec(spec))
	}

	prev := s.catalog.Load()
	next, err := capability.NewCatalog(descs, prev.Version()+1, time.Now())
	if err != nil {
		return invocation.Wrap(invocation.CodeCatalogRefresh, err, "provider listed an invalid catalog")
	}
	s.catalog.Store(next)

	slog.Info(fmt.Sprintf("%s - Catalog version %d: %d capabilities", logPrefix, next.Version(), next.Len()))
	return nil
}

type connectAttempt struct {
	endpoint string
	once     sync.Once
	done     chan struct{}
	err      error
}

func (a *connectAttempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return invocation.Wrap(invocation.CodeConnection, ctx.Err(), "gave up waiting for connection")
	}
}
