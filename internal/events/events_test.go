package events

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestEventBus(t *testing.T) {
	bus := NewEventBus()

	var received *Event
	var callCount int

	bus.Subscribe(EventRunCompleted, func(event *Event) error {
		received = event
		callCount++
		return nil
	})

	err := bus.PublishJSON(EventRunCompleted, RunEventPayload{RunID: "r1", Flow: "meetings", TotalRequested: 3, TotalSuccess: 2, TotalFailed: 1})
	if err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	if callCount != 1 {
		t.Errorf("expected 1 call, got %d", callCount)
	}
	if received.Type != EventRunCompleted {
		t.Errorf("expected type %s, got %s", EventRunCompleted, received.Type)
	}
	if received.ID != 1 {
		t.Errorf("expected first event id 1, got %d", received.ID)
	}

	var decoded RunEventPayload
	if err := json.Unmarshal(received.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode payload: %v", err)
	}
	if decoded.RunID != "r1" || decoded.TotalFailed != 1 {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	bus := NewEventBus()
	var count1, count2 int

	bus.Subscribe(EventEntryFailed, func(_ *Event) error { count1++; return nil })
	bus.Subscribe(EventEntryFailed, func(_ *Event) error { count2++; return nil })

	if err := bus.Publish(&Event{Type: EventEntryFailed}); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	if count1 != 1 || count2 != 1 {
		t.Errorf("expected both handlers to be called once, got %d and %d", count1, count2)
	}
}

func TestEventBusHandlerErrors(t *testing.T) {
	bus := NewEventBus()
	errA := errors.New("a failed")
	var reached bool

	bus.Subscribe(EventRunAborted, func(_ *Event) error { return errA })
	bus.Subscribe(EventRunAborted, func(_ *Event) error { reached = true; return nil })

	err := bus.PublishJSON(EventRunAborted, RunEventPayload{RunID: "r2", Aborted: true})
	if !errors.Is(err, errA) {
		t.Errorf("expected handler error, got %v", err)
	}
	if !reached {
		t.Errorf("expected second handler to run after the first failed")
	}
}

func TestEventBusNoSubscribers(t *testing.T) {
	bus := NewEventBus()
	// Should not panic
	if err := bus.Publish(&Event{Type: "unknown"}); err != nil {
		t.Errorf("Publish failed: %v", err)
	}
	if err := bus.PublishJSON("unknown", nil); err != nil {
		t.Errorf("PublishJSON failed: %v", err)
	}

	var nilBus *EventBus
	if err := nilBus.PublishJSON(EventRunCompleted, nil); err != nil {
		t.Errorf("nil bus should be a no-op, got %v", err)
	}
}

func TestNewJSONEvent(t *testing.T) {
	event, err := NewJSONEvent(EventEntryFailed, EntryFailedPayload{RunID: "r3", Description: "Standup"})
	if err != nil {
		t.Fatalf("NewJSONEvent failed: %v", err)
	}

	if event.Type != EventEntryFailed {
		t.Errorf("expected %s, got %s", EventEntryFailed, event.Type)
	}
	if event.CreatedAt.IsZero() {
		t.Errorf("expected CreatedAt to be set")
	}

	var decoded EntryFailedPayload
	if err := json.Unmarshal(event.Payload, &decoded); err != nil {
		t.Fatalf("failed to decode: %v", err)
	}
	if decoded.Description != "Standup" {
		t.Errorf("expected Standup, got %s", decoded.Description)
	}
}
