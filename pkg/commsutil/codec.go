package commsutil

import (
	"context"
	"encoding/json"
	"fmt"

	comms "github.com/nats-io/nats.go"

	"github.com/morezero/capability-bridge/pkg/wire"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// RequestEnvelope sends req on subject and decodes the reply envelope.
// The context bounds the wait; nats errors are returned unwrapped so callers can
// tell a timeout from a lost connection.
func RequestEnvelope(ctx context.Context, nc *comms.Conn, subject string, req *wire.Request) (*wire.Response, error) {
	data, err := EncodePayload(req)
	if err != nil {
		return nil, fmt.Errorf("%s - encode %s request: %w", codecLogPrefix, req.Method, err)
	}

	msg, err := nc.RequestWithContext(ctx, subject, data)
	if err != nil {
		return nil, err
	}

	var resp wire.Response
	if err := DecodePayload(msg.Data, &resp); err != nil {
		return nil, fmt.Errorf("%s - decode %s response: %w", codecLogPrefix, req.Method, err)
	}
	return &resp, nil
}

// Reply encodes resp and responds to msg. Messages without a reply subject are ignored.
func Reply(msg *comms.Msg, resp *wire.Response) error {
	if msg.Reply == "" {
		return nil
	}
	data, err := EncodePayload(resp)
	if err != nil {
		return fmt.Errorf("%s - encode response %s: %w", codecLogPrefix, resp.ID, err)
	}
	return msg.Respond(data)
}

const codecLogPrefix = "commsutil:codec"
