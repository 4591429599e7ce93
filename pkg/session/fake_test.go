package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/morezero/capability-bridge/pkg/wire"
)

// fakeConn is an in-memory Conn. Pages are keyed by the cursor that requests them.
type fakeConn struct {
	mu      sync.Mutex
	pages   map[string]*wire.ListResult
	listErr error
	invoke  func(ctx context.Context, id, name string, args map[string]interface{}) (json.RawMessage, error)
	calls   []string

	active    atomic.Int32
	maxActive atomic.Int32

	notes     chan wire.Notification
	done      chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newFakeConn(names ...string) *fakeConn {
	specs := make([]wire.CapabilitySpec, 0, len(names))
	for _, n := range names {
		specs = append(specs, wire.CapabilitySpec{Name: n, Parameters: []wire.ParameterSpec{{Name: "path", Type: "string", Required: true}}})
	}
	return &fakeConn{
		pages: map[string]*wire.ListResult{"": {Capabilities: specs}},
		invoke: func(_ context.Context, _, name string, _ map[string]interface{}) (json.RawMessage, error) {
			return json.RawMessage(`{"content":"` + name + ` ok"}`), nil
		},
		notes: make(chan wire.Notification, 4),
		done:  make(chan struct{}),
	}
}

func (f *fakeConn) setPages(pages map[string]*wire.ListResult) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pages = pages
}

func (f *fakeConn) setListErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listErr = err
}

func (f *fakeConn) ListCapabilities(_ context.Context, cursor string) (*wire.ListResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	page, ok := f.pages[cursor]
	if !ok {
		return nil, errors.New("unknown cursor")
	}
	return page, nil
}

func (f *fakeConn) Invoke(ctx context.Context, id, name string, args map[string]interface{}) (json.RawMessage, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, id)
	fn := f.invoke
	f.mu.Unlock()
	return fn(ctx, id, name, args)
}

func (f *fakeConn) callIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *fakeConn) Notifications() <-chan wire.Notification { return f.notes }

func (f *fakeConn) Done() <-chan struct{} { return f.done }

func (f *fakeConn) Err() error {
	select {
	case <-f.done:
		return ErrConnectionLost
	default:
		return nil
	}
}

func (f *fakeConn) Close() error {
	f.closed.Store(true)
	f.drop()
	return nil
}

// drop simulates the transport going away.
func (f *fakeConn) drop() {
	f.closeOnce.Do(func() { close(f.done) })
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	err   error
	gate  chan struct{}
	dials atomic.Int32
}

func (d *fakeDialer) Dial(ctx context.Context, _ string) (Conn, error) {
	d.dials.Add(1)
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	if len(d.conns) == 0 {
		return nil, errors.New("no connection available")
	}
	c := d.conns[0]
	d.conns = d.conns[1:]
	return c, nil
}
