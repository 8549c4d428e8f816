// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capability

import (
	"context"
	"sync"
)

// =============================================================================
// ENGINE HANDLE
// =============================================================================

// RenderOptions carries per-render hints from the caller.
type RenderOptions struct {
	// Theme overrides the engine's default theme for this render only.
	// Empty means the engine's current theme. Engines resolve the override
	// locally and never mutate their shared default styles for it.
	Theme string

	// Width is the target render width in cells. Zero means engine default.
	Width int

	// Height is the target render height in rows. Zero means engine default.
	Height int
}

// Engine is a loaded rendering engine for one diagram family. The registry
// owns the engine; callers borrow it read-only via Ensure and must not
// retain it across a registry Reset. Implementations must be safe for
// concurrent Render and SetTheme calls: the loader rethemes loaded engines
// while renders may be in flight.
type Engine interface {
	// Name returns the capability name this engine serves.
	Name() string

	// SetTheme sets the engine's default theme. Called once after
	// acquisition, before any caller can observe the engine as loaded,
	// and again on app-wide theme changes.
	SetTheme(theme string) error

	// Render produces output for one diagram. Invalid content returns an
	// error without affecting the engine's loaded status.
	Render(ctx context.Context, content string, opts RenderOptions) (string, error)
}

// =============================================================================
// STATUS
// =============================================================================

// Status is the load state of one capability.
type Status int

const (
	// StatusUnloaded means no acquisition has been attempted.
	StatusUnloaded Status = iota

	// StatusLoading means exactly one acquisition is in flight.
	StatusLoading

	// StatusLoaded means the engine is ready for use.
	StatusLoaded

	// StatusFailed means the last acquisition failed; Ensure may retry.
	StatusFailed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case StatusUnloaded:
		return "unloaded"
	case StatusLoading:
		return "loading"
	case StatusLoaded:
		return "loaded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

// State is a read-only snapshot of one capability's registry entry.
type State struct {
	Name   string
	Status Status
	Error  string
}

// capState is the mutable registry record for one capability.
type capState struct {
	status Status
	engine Engine
	err    string
}

// Registry is the shared table of per-capability load status. It is created
// once at application start and mutated only by the Loader; everything else
// reads snapshots. Safe for concurrent use.
//
// Transitions are total: an illegal call (e.g. SetLoaded on a capability that
// is not loading) is a no-op, not an error. This is what makes a late
// acquisition result harmless — by the time it arrives the capability has
// already left the loading state and the write simply does not apply.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]*capState
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]*capState)}
}

// State returns the capability's current status, engine, and error message.
// Unknown names report StatusUnloaded.
func (r *Registry) State(name string) (Status, Engine, string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cs, ok := r.caps[name]
	if !ok {
		return StatusUnloaded, nil, ""
	}
	return cs.status, cs.engine, cs.err
}

// SetLoading transitions unloaded|failed -> loading. Returns true if the
// transition applied.
func (r *Registry) SetLoading(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.ensureLocked(name)
	if cs.status == StatusLoading || cs.status == StatusLoaded {
		return false
	}
	cs.status = StatusLoading
	cs.err = ""
	return true
}

// SetLoaded transitions loading -> loaded with the engine handle.
// A no-op from any other state.
func (r *Registry) SetLoaded(name string, engine Engine) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.ensureLocked(name)
	if cs.status != StatusLoading {
		return false
	}
	cs.status = StatusLoaded
	cs.engine = engine
	cs.err = ""
	return true
}

// SetFailed transitions loading -> failed with the captured message.
// A no-op from any other state.
func (r *Registry) SetFailed(name, message string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	cs := r.ensureLocked(name)
	if cs.status != StatusLoading {
		return false
	}
	cs.status = StatusFailed
	cs.engine = nil
	cs.err = message
	return true
}

// Snapshot returns a read-only copy of every capability's state for UI
// consumption. Mutating the returned map affects nothing.
func (r *Registry) Snapshot() map[string]State {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap := make(map[string]State, len(r.caps))
	for name, cs := range r.caps {
		snap[name] = State{Name: name, Status: cs.status, Error: cs.err}
	}
	return snap
}

// Reset drops every capability back to unloaded. Used on logout and in
// test teardown.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps = make(map[string]*capState)
}

// ensureLocked returns the record for name, creating it if needed.
// Must hold the write lock.
func (r *Registry) ensureLocked(name string) *capState {
	cs, ok := r.caps[name]
	if !ok {
		cs = &capState{status: StatusUnloaded}
		r.caps[name] = cs
	}
	return cs
}
