package event

import (
	"context"
	"testing"
	"time"
)

func TestEventCollectorCollectsEvents(t *testing.T) {
	collector := NewEventCollector[int]()
	collector.Collect(1)
	collector.Collect(2)

	events := collector.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0] != 1 || events[1] != 2 {
		t.Fatalf("unexpected events: %#v", events)
	}
}

func TestEventCollectorDrainsSubscription(t *testing.T) {
	bus := NewBus[ScanEvent](context.Background(), BusOptions{Name: "scan"})
	ch, cancel := bus.Subscribe()
	defer cancel()

	collector := NewEventCollector[ScanEvent]()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for scanEvent := range ch {
			collector.Collect(scanEvent)
		}
	}()

	bus.Publish(NewScanStarted("/src"))
	bus.Publish(NewScanCompleted("/src", 3))
	bus.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscription to drain")
	}

	events := collector.Events()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Type() != TypeScanStarted || events[1].Type() != TypeScanCompleted {
		t.Fatalf("unexpected event order: %q, %q", events[0].Type(), events[1].Type())
	}
}

func TestReceiveWithTimeoutReceivesBusEvent(t *testing.T) {
	bus := NewBus[string](context.Background(), BusOptions{})
	defer bus.Close()

	events, cancel := bus.Subscribe()
	defer cancel()

	bus.Publish("ok")
	received := ReceiveWithTimeout(t, events, 100*time.Millisecond)
	if received != "ok" {
		t.Fatalf("expected ok, got %q", received)
	}
}

func TestNilEventCollectorIsSafe(t *testing.T) {
	var collector *EventCollector[int]
	collector.Collect(1)
	if events := collector.Events(); events != nil {
		t.Fatalf("expected nil events, got %#v", events)
	}
}
