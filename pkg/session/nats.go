package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/capability-bridge/pkg/commsutil"
	"github.com/morezero/capability-bridge/pkg/semver"
	"github.com/morezero/capability-bridge/pkg/wire"
)

const natsLogPrefix = "session:nats"

// NATSDialer connects to a provider serving the wire protocol on a COMMS subject.
type NATSDialer struct {
	// ClientName identifies this client to the broker and the provider.
	ClientName string
	// ClientVersion is sent in the handshake.
	ClientVersion string
	// Subject is the provider's request subject.
	Subject string
	// ProtocolRange is the SemVer range the provider's protocol version must satisfy.
	ProtocolRange string
	// Timeout bounds the broker connect.
	Timeout time.Duration
}

// Dial connects to the broker at endpoint, subscribes to provider notifications and
// performs the initialize handshake. The connection never reconnects on its own.
func (d *NATSDialer) Dial(ctx context.Context, endpoint string) (Conn, error) {
	subject := d.Subject
	if subject == "" {
		subject = commsutil.SubjectProvider
	}
	name := d.ClientName
	if name == "" {
		name = "capability-bridge"
	}

	c := &natsConn{
		subject: subject,
		done:    make(chan struct{}),
		notes:   make(chan wire.Notification, 16),
	}

	nc, err := commsutil.ConnectOnce(endpoint, name, d.Timeout, c.lose)
	if err != nil {
		return nil, err
	}
	c.nc = nc

	if _, err := nc.Subscribe(commsutil.EventsSubject(subject), c.onEvent); err != nil {
		c.Close()
		return nil, fmt.Errorf("%s - subscribe to provider events: %w", natsLogPrefix, err)
	}
	if err := nc.FlushWithContext(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("%s - flush subscription: %w", natsLogPrefix, err)
	}

	if err := c.initialize(ctx, name, d.ClientVersion, d.ProtocolRange); err != nil {
		c.Close()
		return nil, err
	}
	return c, nil
}

type natsConn struct {
	nc      *comms.Conn
	subject string
	notes   chan wire.Notification

	once sync.Once
	done chan struct{}
	err  error
}

func (c *natsConn) initialize(ctx context.Context, name, version, protocolRange string) error {
	req, err := wire.NewRequest(uuid.NewString(), wire.MethodInitialize, wire.InitializeParams{
		ProtocolVersion:   wire.ProtocolVersion,
		SupportedVersions: wire.SupportedVersions,
		ClientInfo:        wire.ClientInfo{Name: name, Version: version},
	})
	if err != nil {
		return fmt.Errorf("%s - %w", natsLogPrefix, err)
	}

	resp, err := commsutil.RequestEnvelope(ctx, c.nc, c.subject, req)
	if err != nil {
		return fmt.Errorf("%s - handshake with %s: %w", natsLogPrefix, c.subject, err)
	}
	var result wire.InitializeResult
	if err := resp.Decode(req.ID, &result); err != nil {
		return fmt.Errorf("%s - handshake rejected: %w", natsLogPrefix, err)
	}
	if err := semver.CheckProtocol(result.ProtocolVersion, protocolRange); err != nil {
		return fmt.Errorf("%s - handshake: %w", natsLogPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Handshake complete with %s %s (protocol %s)", natsLogPrefix, result.ServerInfo.Name, result.ServerInfo.Version, result.ProtocolVersion))
	return nil
}

func (c *natsConn) ListCapabilities(ctx context.Context, cursor string) (*wire.ListResult, error) {
	req, err := wire.NewRequest(uuid.NewString(), wire.MethodListCapabilities, wire.ListParams{Cursor: cursor})
	if err != nil {
		return nil, err
	}
	resp, err := commsutil.RequestEnvelope(ctx, c.nc, c.subject, req)
	if err != nil {
		return nil, c.classify(err)
	}
	var page wire.ListResult
	if err := resp.Decode(req.ID, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (c *natsConn) Invoke(ctx context.Context, id, name string, args map[string]interface{}) (json.RawMessage, error) {
	req, err := wire.NewRequest(id, wire.MethodCall, wire.CallParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	resp, err := commsutil.RequestEnvelope(ctx, c.nc, c.subject, req)
	if err != nil {
		return nil, c.classify(err)
	}
	var raw json.RawMessage
	if err := resp.Decode(id, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (c *natsConn) Notifications() <-chan wire.Notification { return c.notes }

func (c *natsConn) Done() <-chan struct{} { return c.done }

func (c *natsConn) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

func (c *natsConn) Close() error {
	c.lose(errors.New("closed by client"))
	if c.nc != nil {
		c.nc.Close()
	}
	return nil
}

func (c *natsConn) lose(cause error) {
	c.once.Do(func() {
		if cause == nil {
			cause = comms.ErrConnectionClosed
		}
		c.err = fmt.Errorf("%w: %v", ErrConnectionLost, cause)
		close(c.done)
	})
}

func (c *natsConn) onEvent(msg *comms.Msg) {
	var n wire.Notification
	if err := commsutil.DecodePayload(msg.Data, &n); err != nil {
		slog.Warn(fmt.Sprintf("%s - Ignoring malformed notification: %v", natsLogPrefix, err))
		return
	}

	if n.Type == wire.NotificationDisconnect {
		slog.Warn(fmt.Sprintf("%s - Provider announced disconnect: %s", natsLogPrefix, n.Reason))
		c.lose(fmt.Errorf("provider disconnected: %s", n.Reason))
		go c.nc.Close()
		return
	}

	select {
	case c.notes <- n:
	default:
		slog.Warn(fmt.Sprintf("%s - Notification buffer full, dropping %s", natsLogPrefix, n.Type))
	}
}

// classify maps broker errors onto the errors a Session understands.
func (c *natsConn) classify(err error) error {
	switch {
	case errors.Is(err, comms.ErrConnectionClosed),
		errors.Is(err, comms.ErrNoResponders),
		errors.Is(err, comms.ErrDisconnected):
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	case errors.Is(err, comms.ErrTimeout):
		return fmt.Errorf("%w: %v", context.DeadlineExceeded, err)
	}
	select {
	case <-c.done:
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	default:
		return err
	}
}
