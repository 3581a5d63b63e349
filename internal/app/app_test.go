package app

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRunStopsOnContextCancel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.OutboxPollInterval = 10 * time.Millisecond
	cfg.IdempotencyCleanupInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, cfg)
	}()

	// Даём серверу подняться и отменяем контекст.
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after context cancellation")
	}
}

func TestRunFailsOnBusyPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HTTPAddr = "256.0.0.1:0" // заведомо невалидный адрес
	cfg.MetricsAddr = "127.0.0.1:0"

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := Run(ctx, cfg); err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run must fail fast on an unusable listen address, got %v", err)
	}
}
