package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/wire"
)

const tasksLogPrefix = "session:tasks"

// task is one unit of work for the session worker. abort is called instead of run
// when the session closes before the task is reached.
type task interface {
	run(s *Session)
	abort(err error)
}

type connectTask struct {
	attempt *connectAttempt
}

func (t *connectTask) run(s *Session) {
	ctx, cancel := context.WithTimeout(s.ctx, s.opts.ConnectTimeout)
	defer cancel()

	slog.Info(fmt.Sprintf("%s - Connecting to provider at %s", tasksLogPrefix, t.attempt.endpoint))
	conn, err := s.dialer.Dial(ctx, t.attempt.endpoint)
	if err != nil {
		s.move(Disconnected)
		t.attempt.finish(invocation.Wrap(invocation.CodeConnection, err, fmt.Sprintf("could not connect to %s", t.attempt.endpoint)))
		return
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	if err := s.refresh(ctx); err != nil {
		s.mu.Lock()
		s.conn = nil
		s.moveLocked(Disconnected)
		s.mu.Unlock()
		_ = conn.Close()
		t.attempt.finish(invocation.Wrap(invocation.CodeConnection, err, "initial catalog fetch"))
		return
	}

	s.mu.Lock()
	ready := s.moveLocked(Ready)
	if !ready {
		s.conn = nil
	}
	s.mu.Unlock()

	if !ready {
		_ = conn.Close()
		t.attempt.finish(invocation.Errorf(invocation.CodeSessionClosed, "session closed while connecting"))
		return
	}

	go s.watch(conn)
	slog.Info(fmt.Sprintf("%s - Session ready on %s", tasksLogPrefix, t.attempt.endpoint))
	t.attempt.finish(nil)
}

func (t *connectTask) abort(err error) { t.attempt.finish(err) }

type refreshTask struct {
	ctx  context.Context
	done chan error // nil for refreshes nobody waits on
}

func (t *refreshTask) run(s *Session) {
	ctx, cancel := context.WithCancel(t.ctx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	err := s.refresh(ctx)
	if err != nil {
		slog.Warn(fmt.Sprintf("%s - Catalog refresh failed, keeping version %d: %v", tasksLogPrefix, s.Catalog().Version(), err))
	}
	t.finish(err)
}

func (t *refreshTask) abort(err error) {
	t.finish(invocation.Wrap(invocation.CodeCatalogRefresh, err, "session closed before refresh"))
}

func (t *refreshTask) finish(err error) {
	if t.done != nil {
		t.done <- err
	}
}

type lostTask struct {
	conn Conn
}

func (t *lostTask) run(s *Session) {
	cause := t.conn.Err()
	if cause == nil {
		cause = ErrConnectionLost
	}
	s.markLost(t.conn, cause)
}

func (t *lostTask) abort(error) {}

type invokeTask struct {
	req     *invocation.Request
	deliver func(*invocation.Outcome)
}

type invokeReply struct {
	raw json.RawMessage
	err error
}

func (t *invokeTask) run(s *Session) {
	started := time.Now()

	switch s.State() {
	case Closing, Closed:
		t.deliver(invocation.Failed(t.req, started, invocation.Errorf(invocation.CodeSessionClosed, "session is closed")))
		return
	}
	conn := s.currentConn()
	if conn == nil || s.State() != Ready {
		t.deliver(invocation.Failed(t.req, started, invocation.Errorf(invocation.CodeConnection, "session is %s", s.State())))
		return
	}
	select {
	case <-conn.Done():
		s.markLost(conn, conn.Err())
		t.deliver(invocation.Failed(t.req, started, invocation.Errorf(invocation.CodeConnection, "session is %s", s.State())))
		return
	default:
	}

	ctx, cancel := context.WithTimeout(s.ctx, s.opts.InvokeTimeout)
	defer cancel()

	replies := make(chan invokeReply, 1)
	go func() {
		raw, err := conn.Invoke(ctx, t.req.ID, t.req.Capability, t.req.Arguments)
		replies <- invokeReply{raw: raw, err: err}
	}()

	var outcome *invocation.Outcome
	select {
	case r := <-replies:
		outcome = s.settle(conn, t.req, started, r)
	case <-conn.Done():
		s.markLost(conn, conn.Err())
		outcome = invocation.Failed(t.req, started, invocation.Wrap(invocation.CodeTransportLost, conn.Err(), fmt.Sprintf("%s was in flight", t.req.Capability)))
	case <-s.ctx.Done():
		outcome = invocation.Failed(t.req, started, invocation.Errorf(invocation.CodeSessionClosed, "session closed during %s", t.req.Capability))
	}

	slog.Debug(fmt.Sprintf("%s - Invocation %s of %s finished: %s in %s", tasksLogPrefix, t.req.ID, t.req.Capability, outcome.Status, outcome.Duration()))
	t.deliver(outcome)
}

func (t *invokeTask) abort(err error) {
	t.deliver(invocation.Failed(t.req, time.Now(), err))
}

// settle classifies the reply of one invocation.
func (s *Session) settle(conn Conn, req *invocation.Request, started time.Time, r invokeReply) *invocation.Outcome {
	if r.err == nil {
		return invocation.Succeeded(req, started, invocation.NormalizeResult(r.raw))
	}

	var remote *wire.RemoteError
	switch {
	case errors.As(r.err, &remote):
		return invocation.Failed(req, started, invocation.Wrap(invocation.CodeRemote, r.err, fmt.Sprintf("%s failed", req.Capability)))
	case errors.Is(r.err, ErrConnectionLost):
		s.markLost(conn, r.err)
		return invocation.Failed(req, started, invocation.Wrap(invocation.CodeTransportLost, r.err, fmt.Sprintf("%s was in flight", req.Capability)))
	case s.ctx.Err() != nil:
		return invocation.Failed(req, started, invocation.Errorf(invocation.CodeSessionClosed, "session closed during %s", req.Capability))
	case errors.Is(r.err, context.DeadlineExceeded):
		return invocation.Failed(req, started, invocation.Wrap(invocation.CodeTimeout, r.err, fmt.Sprintf("%s did not answer within %s", req.Capability, s.opts.InvokeTimeout)))
	default:
		return invocation.Failed(req, started, invocation.Wrap(invocation.CodeInternal, r.err, fmt.Sprintf("%s failed", req.Capability)))
	}
}
