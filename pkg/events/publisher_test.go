package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/morezero/capability-bridge/pkg/invocation"
	"github.com/morezero/capability-bridge/pkg/ledger"
)

func TestNoOpPublisher(t *testing.T) {
	pub := &NoOpPublisher{}
	err := pub.PublishRecorded(context.Background(), &InvocationRecordedEvent{
		ID:         "inv-1",
		Capability: "echo",
	})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
}

func TestCallbackPublisher(t *testing.T) {
	var captured *InvocationRecordedEvent

	pub := NewCallbackPublisher(func(_ context.Context, event *InvocationRecordedEvent) error {
		captured = event
		return nil
	})

	err := pub.PublishRecorded(context.Background(), &InvocationRecordedEvent{ID: "inv-5", Capability: "read_file"})
	if err != nil {
		t.Errorf("events:publisher_test - expected no error, got %v", err)
	}
	if captured == nil {
		t.Fatal("events:publisher_test - expected callback to be called")
	}
	if captured.ID != "inv-5" {
		t.Errorf("events:publisher_test - expected id inv-5, got %s", captured.ID)
	}
}

func TestMultiPublisher(t *testing.T) {
	calls := 0
	ok := NewCallbackPublisher(func(context.Context, *InvocationRecordedEvent) error { calls++; return nil })
	bad := NewCallbackPublisher(func(context.Context, *InvocationRecordedEvent) error { calls++; return errors.New("broker down") })

	err := MultiPublisher{ok, bad, ok}.PublishRecorded(context.Background(), &InvocationRecordedEvent{})
	if err == nil || err.Error() != "broker down" {
		t.Errorf("events:publisher_test - err = %v, want broker down", err)
	}
	if calls != 3 {
		t.Errorf("events:publisher_test - calls = %d, want 3", calls)
	}
	if err := (MultiPublisher{}).PublishRecorded(context.Background(), &InvocationRecordedEvent{}); err != nil {
		t.Errorf("events:publisher_test - empty multi publisher returned %v", err)
	}
}

func TestNewRecordedEvent(t *testing.T) {
	start := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	req := invocation.NewRequest("inv-9", "read_file", map[string]interface{}{"path": "a.txt"})
	out := invocation.Failed(req, start, invocation.Errorf(invocation.CodeTimeout, "too slow"))
	out.CompletedAt = start.Add(1500 * time.Millisecond)

	ev := NewRecordedEvent(out, "bridge-1")
	if ev.Type != EventTypeRecorded || ev.ID != "inv-9" || ev.Capability != "read_file" {
		t.Errorf("events:publisher_test - identity fields wrong: %+v", ev)
	}
	if ev.Status != "failure" || ev.ErrorCode != string(invocation.CodeTimeout) {
		t.Errorf("events:publisher_test - failure fields wrong: %+v", ev)
	}
	if ev.DurationMs != 1500 || ev.Timestamp != "2026-05-01T08:00:01.5Z" || ev.Source != "bridge-1" {
		t.Errorf("events:publisher_test - timing fields wrong: %+v", ev)
	}
	ev.Arguments["path"] = "changed"
	if out.Request.Arguments["path"] != "a.txt" {
		t.Errorf("events:publisher_test - event shares arguments with the outcome")
	}
}

func TestOutcomeStore_BehindLedgerMirror(t *testing.T) {
	got := make(chan *InvocationRecordedEvent, 1)
	store := &OutcomeStore{
		Publisher: NewCallbackPublisher(func(_ context.Context, e *InvocationRecordedEvent) error {
			got <- e
			return nil
		}),
		Source: "test",
	}
	mirror := ledger.NewMirror(store, 4, time.Second)
	l := ledger.New(5, mirror)

	req := invocation.NewRequest("inv-1", "echo", map[string]interface{}{"message": "hi"})
	l.Append(invocation.Succeeded(req, time.Now(), &invocation.Result{Content: "hi"}))
	mirror.Close()

	select {
	case e := <-got:
		if e.ID != "inv-1" || e.Status != "success" || e.Source != "test" {
			t.Errorf("events:publisher_test - unexpected event %+v", e)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("events:publisher_test - event never published")
	}
}
