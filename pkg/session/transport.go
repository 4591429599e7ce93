package session

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/morezero/capability-bridge/pkg/wire"
)

// ErrConnectionLost is returned by a Conn whose underlying transport went away.
var ErrConnectionLost = errors.New("connection to provider lost")

// Conn is an established connection to a capability provider. The handshake has
// already completed when a Dialer hands one out.
type Conn interface {
	// ListCapabilities fetches one page of the provider's capabilities.
	ListCapabilities(ctx context.Context, cursor string) (*wire.ListResult, error)
	// Invoke calls a capability and returns the provider's raw result. A failure
	// reported by the provider is a *wire.RemoteError.
	Invoke(ctx context.Context, id, name string, args map[string]interface{}) (json.RawMessage, error)
	// Notifications delivers unsolicited provider notifications.
	Notifications() <-chan wire.Notification
	// Done is closed when the connection is lost or closed.
	Done() <-chan struct{}
	// Err explains why Done was closed.
	Err() error
	Close() error
}

// Dialer opens connections to provider endpoints.
type Dialer interface {
	Dial(ctx context.Context, endpoint string) (Conn, error)
}

// DialerFunc adapts a function to Dialer.
type DialerFunc func(ctx context.Context, endpoint string) (Conn, error)

// Dial calls f.
func (f DialerFunc) Dial(ctx context.Context, endpoint string) (Conn, error) {
	return f(ctx, endpoint)
}
