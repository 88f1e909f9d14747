package main

import (
	"context"
	"errors"
	"os"
	"reflect"
	"testing"
	"time"
)

func TestShutdownCoordinatorRunsInOrder(t *testing.T) {
	coordinator := newShutdownCoordinator(nil)
	order := []string{}

	coordinator.Add("first", func(context.Context) error {
		order = append(order, "first")
		return nil
	})
	coordinator.Add("second", func(context.Context) error {
		order = append(order, "second")
		return errors.New("fail")
	})
	coordinator.Add("third", func(context.Context) error {
		order = append(order, "third")
		return nil
	})

	if err := coordinator.Run(context.Background()); err == nil {
		t.Fatalf("expected shutdown error")
	}

	expected := []string{"first", "second", "third"}
	if !reflect.DeepEqual(order, expected) {
		t.Fatalf("expected order %v, got %v", expected, order)
	}
}

func TestShutdownCoordinatorRunsOnce(t *testing.T) {
	coordinator := newShutdownCoordinator(nil)
	calls := 0
	coordinator.Add("phase", func(context.Context) error {
		calls++
		return nil
	})

	if err := coordinator.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if err := coordinator.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected a single invocation, got %d", calls)
	}
}

func TestWatchShutdownSignalsCancelsOnFirstSignal(t *testing.T) {
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	defer shutdownCancel()

	signalCh := make(chan os.Signal, 2)
	stop := watchShutdownSignals(nil, shutdownCancel, signalCh)
	defer stop()

	signalCh <- os.Interrupt
	select {
	case <-shutdownCtx.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("expected shutdown context to cancel")
	}

	// A repeat signal is absorbed without further effect.
	signalCh <- os.Interrupt
	time.Sleep(10 * time.Millisecond)
}

func TestWatchShutdownSignalsNilChannel(t *testing.T) {
	stop := watchShutdownSignals(nil, nil, nil)
	stop()
}
