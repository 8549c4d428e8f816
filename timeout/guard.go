// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package timeout provides a generic race between an operation and a deadline.
//
// The guard does not cancel the underlying operation on timeout: module
// acquisition and engine renders are not guaranteed cancellable, so the guard
// only stops waiting for them. A result that arrives after the deadline has
// fired is discarded.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CONFIG AND FAILURE
// =============================================================================

// Config controls a single guarded race.
type Config struct {
	// Deadline is how long to wait before giving up on the operation.
	Deadline time.Duration

	// Enabled toggles the guard. When false, Race awaits the operation
	// directly with no timer and no operation tracking.
	Enabled bool

	// Message overrides the default timeout message, if set.
	Message string

	// OperationID tags the in-flight operation. Generated when empty.
	OperationID string
}

// Failure is returned when an operation loses the race against its deadline.
type Failure struct {
	// Context names the guarded operation (e.g. the capability being loaded).
	Context string

	// Elapsed is how long the guard waited before giving up.
	Elapsed time.Duration

	// Message is the human-readable timeout description.
	Message string
}

// Error implements the error interface.
func (f *Failure) Error() string {
	return fmt.Sprintf("%s (after %v)", f.Message, f.Elapsed.Round(time.Millisecond))
}

// IsTimeout reports whether err is (or wraps) a timeout Failure.
func IsTimeout(err error) bool {
	var f *Failure
	return errors.As(err, &f)
}

// =============================================================================
// GUARD
// =============================================================================

// operation tracks one in-flight guarded race for observability.
type operation struct {
	id        string
	deadline  time.Duration
	startedAt time.Time
	expired   atomic.Bool // set when the deadline fired first
}

// Guard runs operations against deadlines and tracks the ones in flight.
// A Guard is safe for concurrent use. The pending set only ever contains
// operations whose race has not settled: records are removed the instant
// the operation succeeds, fails, or times out.
type Guard struct {
	mu      sync.RWMutex
	pending map[string]*operation
}

// NewGuard creates an empty guard.
func NewGuard() *Guard {
	return &Guard{pending: make(map[string]*operation)}
}

// Pending reports whether the given operation ID is still racing.
func (g *Guard) Pending(id string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.pending[id]
	return ok
}

// Elapsed returns how long the given operation has been in flight.
// The second return is false if the operation is not pending.
func (g *Guard) Elapsed(id string) (time.Duration, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	op, ok := g.pending[id]
	if !ok {
		return 0, false
	}
	return time.Since(op.startedAt), true
}

// PendingCount returns the number of races currently in flight.
func (g *Guard) PendingCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.pending)
}

func (g *Guard) track(id string, deadline time.Duration) *operation {
	op := &operation{id: id, deadline: deadline, startedAt: time.Now()}
	g.mu.Lock()
	g.pending[id] = op
	g.mu.Unlock()
	return op
}

func (g *Guard) untrack(id string) {
	g.mu.Lock()
	delete(g.pending, id)
	g.mu.Unlock()
}

// =============================================================================
// RACE
// =============================================================================

// Race runs op against cfg.Deadline and returns whichever settles first.
//
// On timeout the returned error is a *Failure carrying the operation context
// and elapsed time. The operation itself keeps running; its eventual result
// goes nowhere (the result channel is buffered so the goroutine can exit).
// Cancelling ctx also ends the wait, propagating ctx.Err().
func Race[T any](g *Guard, ctx context.Context, name string, cfg Config, op func(context.Context) (T, error)) (T, error) {
	var zero T

	if !cfg.Enabled {
		return op(ctx)
	}

	id := cfg.OperationID
	if id == "" {
		id = uuid.NewString()
	}
	rec := g.track(id, cfg.Deadline)
	defer g.untrack(id)

	type outcome struct {
		val T
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		val, err := op(ctx)
		if rec.expired.Load() {
			// The deadline already fired; this result is no longer relevant.
			return
		}
		done <- outcome{val: val, err: err}
	}()

	timer := time.NewTimer(cfg.Deadline)
	defer timer.Stop()

	select {
	case out := <-done:
		return out.val, out.err
	case <-ctx.Done():
		rec.expired.Store(true)
		return zero, ctx.Err()
	case <-timer.C:
		rec.expired.Store(true)
		msg := cfg.Message
		if msg == "" {
			msg = fmt.Sprintf("operation %q timed out", name)
		}
		return zero, &Failure{
			Context: name,
			Elapsed: time.Since(rec.startedAt),
			Message: msg,
		}
	}
}
