package provider

import (
	"context"
	"fmt"

	"github.com/morezero/capability-bridge/pkg/wire"
)

// Handler runs one capability call. The returned value is encoded as the call result.
type Handler func(ctx context.Context, args map[string]interface{}) (interface{}, error)

// Capability pairs a listed descriptor with the handler that serves it.
type Capability struct {
	Spec    wire.CapabilitySpec
	Handler Handler
}

// HandlerError is a failure a handler wants reported with a specific wire code.
type HandlerError struct {
	Code      string
	Message   string
	Retryable bool
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Failf builds a CAPABILITY_FAILED handler error.
func Failf(format string, args ...interface{}) *HandlerError {
	return &HandlerError{Code: wire.CodeCapabilityFailed, Message: fmt.Sprintf(format, args...)}
}

// TextResult is the content-block result shape most handlers return.
func TextResult(text string) map[string]interface{} {
	return map[string]interface{}{
		"content": []map[string]interface{}{{"type": "text", "text": text}},
	}
}
