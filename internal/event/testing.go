package event

import (
	"sync"
	"testing"
	"time"
)

// EventCollector stores events received from callbacks or subscriptions.
type EventCollector[T any] struct {
	mu     sync.Mutex
	events []T
}

func NewEventCollector[T any]() *EventCollector[T] {
	return &EventCollector[T]{}
}

func (collector *EventCollector[T]) Collect(value T) {
	if collector == nil {
		return
	}
	collector.mu.Lock()
	collector.events = append(collector.events, value)
	collector.mu.Unlock()
}

func (collector *EventCollector[T]) Events() []T {
	if collector == nil {
		return nil
	}
	collector.mu.Lock()
	defer collector.mu.Unlock()
	copyEvents := make([]T, len(collector.events))
	copy(copyEvents, collector.events)
	return copyEvents
}

// ReceiveWithTimeout waits for a single event or fails the test.
func ReceiveWithTimeout[T any](t *testing.T, ch <-chan T, timeout time.Duration) T {
	t.Helper()
	select {
	case value, ok := <-ch:
		if !ok {
			t.Fatal("event channel closed")
		}
		return value
	case <-time.After(timeout):
		t.Fatalf("timed out waiting for event after %s", timeout)
	}
	var zero T
	return zero
}
