package events

import (
	"context"
	"errors"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

// EventPublisher is the interface for publishing invocation-recorded events.
type EventPublisher interface {
	PublishRecorded(ctx context.Context, event *InvocationRecordedEvent) error
}

// NoOpPublisher is an EventPublisher that does nothing (for in-process usage without events).
type NoOpPublisher struct{}

// PublishRecorded is a no-op.
func (p *NoOpPublisher) PublishRecorded(_ context.Context, _ *InvocationRecordedEvent) error {
	return nil
}

// CallbackPublisher is an EventPublisher that calls a callback function (for testing).
type CallbackPublisher struct {
	callback func(ctx context.Context, event *InvocationRecordedEvent) error
}

// NewCallbackPublisher creates a new CallbackPublisher.
func NewCallbackPublisher(cb func(ctx context.Context, event *InvocationRecordedEvent) error) *CallbackPublisher {
	return &CallbackPublisher{callback: cb}
}

// PublishRecorded calls the callback.
func (p *CallbackPublisher) PublishRecorded(ctx context.Context, event *InvocationRecordedEvent) error {
	return p.callback(ctx, event)
}

// MultiPublisher publishes to every publisher in turn and joins their errors.
type MultiPublisher []EventPublisher

// PublishRecorded publishes event to all publishers.
func (m MultiPublisher) PublishRecorded(ctx context.Context, event *InvocationRecordedEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.PublishRecorded(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// OutcomeStore adapts an EventPublisher to ledger.Store so it can sit behind a
// ledger.Mirror and publish off the caller's goroutine.
type OutcomeStore struct {
	Publisher EventPublisher
	Source    string
}

// SaveOutcome publishes the recorded event for out.
func (s *OutcomeStore) SaveOutcome(ctx context.Context, out *invocation.Outcome) error {
	return s.Publisher.PublishRecorded(ctx, NewRecordedEvent(out, s.Source))
}
