// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package timeout

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRaceSuccess(t *testing.T) {
	g := NewGuard()

	val, err := Race(g, context.Background(), "fast-op", Config{Deadline: time.Second, Enabled: true},
		func(context.Context) (string, error) {
			return "done", nil
		})

	if err != nil {
		t.Fatalf("Expected success, got %v", err)
	}
	if val != "done" {
		t.Errorf("Expected 'done', got %q", val)
	}
	if g.PendingCount() != 0 {
		t.Error("Operation record should be removed after the race settles")
	}
}

func TestRaceOperationError(t *testing.T) {
	g := NewGuard()
	opErr := errors.New("acquisition refused")

	_, err := Race(g, context.Background(), "failing-op", Config{Deadline: time.Second, Enabled: true},
		func(context.Context) (string, error) {
			return "", opErr
		})

	if !errors.Is(err, opErr) {
		t.Errorf("Expected operation error to propagate, got %v", err)
	}
	if IsTimeout(err) {
		t.Error("Operation failure must not be classified as a timeout")
	}
}

func TestRaceTimeout(t *testing.T) {
	g := NewGuard()

	start := time.Now()
	_, err := Race(g, context.Background(), "stuck-op", Config{Deadline: 50 * time.Millisecond, Enabled: true},
		func(ctx context.Context) (string, error) {
			<-make(chan struct{}) // never settles
			return "", nil
		})
	elapsed := time.Since(start)

	if !IsTimeout(err) {
		t.Fatalf("Expected timeout failure, got %v", err)
	}
	// Generous slack for slow CI schedulers.
	if elapsed > 500*time.Millisecond {
		t.Errorf("Timeout took %v, expected ~50ms", elapsed)
	}

	var f *Failure
	errors.As(err, &f)
	if f.Context != "stuck-op" {
		t.Errorf("Expected context 'stuck-op', got %q", f.Context)
	}
	if f.Elapsed <= 0 {
		t.Error("Failure should report positive elapsed time")
	}
	if g.PendingCount() != 0 {
		t.Error("Timed-out operation should not remain pending")
	}
}

func TestRaceDisabled(t *testing.T) {
	g := NewGuard()

	// Deadline shorter than the operation, but the guard is disabled.
	val, err := Race(g, context.Background(), "slow-op", Config{Deadline: time.Nanosecond, Enabled: false},
		func(context.Context) (int, error) {
			time.Sleep(20 * time.Millisecond)
			return 42, nil
		})

	if err != nil || val != 42 {
		t.Errorf("Disabled guard should await directly, got (%d, %v)", val, err)
	}
	if g.PendingCount() != 0 {
		t.Error("Disabled races should not be tracked")
	}
}

func TestRaceContextCancel(t *testing.T) {
	g := NewGuard()
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Race(g, ctx, "cancelled-op", Config{Deadline: time.Minute, Enabled: true},
		func(ctx context.Context) (string, error) {
			<-make(chan struct{})
			return "", nil
		})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestRaceCustomMessage(t *testing.T) {
	g := NewGuard()

	_, err := Race(g, context.Background(), "op", Config{
		Deadline: 10 * time.Millisecond,
		Enabled:  true,
		Message:  "engine load taking longer than usual",
	}, func(context.Context) (string, error) {
		<-make(chan struct{})
		return "", nil
	})

	var f *Failure
	if !errors.As(err, &f) {
		t.Fatalf("Expected *Failure, got %v", err)
	}
	if f.Message != "engine load taking longer than usual" {
		t.Errorf("Custom message not carried: %q", f.Message)
	}
}

func TestPendingAndElapsed(t *testing.T) {
	g := NewGuard()
	started := make(chan struct{})
	release := make(chan struct{})

	go func() {
		_, _ = Race(g, context.Background(), "observed-op", Config{
			Deadline:    time.Minute,
			Enabled:     true,
			OperationID: "op-123",
		}, func(context.Context) (string, error) {
			close(started)
			<-release
			return "ok", nil
		})
	}()

	<-started
	if !g.Pending("op-123") {
		t.Error("Operation should be pending while in flight")
	}
	if elapsed, ok := g.Elapsed("op-123"); !ok || elapsed < 0 {
		t.Errorf("Expected elapsed reading, got (%v, %v)", elapsed, ok)
	}

	close(release)

	// The record is removed once the race settles.
	deadline := time.After(time.Second)
	for g.Pending("op-123") {
		select {
		case <-deadline:
			t.Fatal("Operation still pending after completion")
		default:
			time.Sleep(time.Millisecond)
		}
	}

	if _, ok := g.Elapsed("op-123"); ok {
		t.Error("Elapsed should report not-found after settlement")
	}
}

func TestLateResultDiscarded(t *testing.T) {
	g := NewGuard()
	release := make(chan struct{})

	_, err := Race(g, context.Background(), "late-op", Config{Deadline: 10 * time.Millisecond, Enabled: true},
		func(context.Context) (string, error) {
			<-release
			return "too late", nil
		})

	if !IsTimeout(err) {
		t.Fatalf("Expected timeout, got %v", err)
	}

	// Let the loser finish; nothing should blow up and nothing re-enters
	// the pending set.
	close(release)
	time.Sleep(20 * time.Millisecond)
	if g.PendingCount() != 0 {
		t.Error("Late result must not resurrect a pending record")
	}
}
