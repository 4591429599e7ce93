// Package events defines the invocation-recorded event and the publishers that
// carry it to NATS or Kafka.
package events

import (
	"time"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

// EventTypeRecorded is the type carried by every InvocationRecordedEvent.
const EventTypeRecorded = "invocation.recorded"

// InvocationRecordedEvent is emitted when an outcome is kept by the history ledger.
type InvocationRecordedEvent struct {
	Type        string                 `json:"type"`
	ID          string                 `json:"id"`
	Capability  string                 `json:"capability"`
	Arguments   map[string]interface{} `json:"arguments"`
	Status      string                 `json:"status"`
	ErrorCode   string                 `json:"errorCode,omitempty"`
	ErrorDetail string                 `json:"errorDetail,omitempty"`
	DurationMs  int64                  `json:"durationMs"`
	Timestamp   string                 `json:"timestamp"`
	Source      string                 `json:"source,omitempty"`
}

// NewRecordedEvent builds the event for out. Result content is left out; the
// event says what ran and how it ended.
func NewRecordedEvent(out *invocation.Outcome, source string) *InvocationRecordedEvent {
	return &InvocationRecordedEvent{
		Type:        EventTypeRecorded,
		ID:          out.Request.ID,
		Capability:  out.Request.Capability,
		Arguments:   invocation.CloneArguments(out.Request.Arguments),
		Status:      string(out.Status),
		ErrorCode:   string(out.ErrorCode),
		ErrorDetail: out.ErrorDetail,
		DurationMs:  out.Duration().Milliseconds(),
		Timestamp:   out.CompletedAt.UTC().Format(time.RFC3339Nano),
		Source:      source,
	}
}
