// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capability

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jeranaias/rigrun-diagrams/timeout"
)

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrUnknownCapability is returned for names with no registered acquirer.
	ErrUnknownCapability = errors.New("unknown capability")
)

// =============================================================================
// LOADER
// =============================================================================

// AcquireFunc constructs an engine. Go has no dynamic import, so acquisition
// is a static plugin table of constructors; the dedup/timeout contract around
// them is the same regardless.
type AcquireFunc func(ctx context.Context) (Engine, error)

// LoaderConfig tunes acquisition behavior. Zero values fall back to defaults.
type LoaderConfig struct {
	// EngineDeadline bounds a single engine acquisition (default 10s).
	EngineDeadline time.Duration

	// AggregateDeadline bounds a LoadAll call (default 30s).
	AggregateDeadline time.Duration

	// Theme is applied to each engine after acquisition, before it is
	// marked loaded (default "default").
	Theme string
}

const (
	defaultEngineDeadline    = 10 * time.Second
	defaultAggregateDeadline = 30 * time.Second
)

// Loader acquires capabilities exactly once under concurrency and records
// the outcome in the shared registry.
//
// Concurrent Ensure calls for the same capability join one underlying
// acquisition via singleflight: the registry transitions loading -> loaded
// or loading -> failed exactly once per attempt, and every joined caller
// observes that one outcome. Theme initialization happens inside the
// attempt, so no caller can see a loaded engine that is not yet themed.
type Loader struct {
	registry  *Registry
	acquirers map[string]AcquireFunc
	guard     *timeout.Guard
	group     singleflight.Group

	engineDeadline    time.Duration
	aggregateDeadline time.Duration

	themeMu sync.RWMutex
	theme   string
}

// NewLoader creates a loader over the given registry and acquirer table.
func NewLoader(registry *Registry, acquirers map[string]AcquireFunc, cfg LoaderConfig) *Loader {
	if cfg.EngineDeadline <= 0 {
		cfg.EngineDeadline = defaultEngineDeadline
	}
	if cfg.AggregateDeadline <= 0 {
		cfg.AggregateDeadline = defaultAggregateDeadline
	}
	if cfg.Theme == "" {
		cfg.Theme = "default"
	}
	return &Loader{
		registry:          registry,
		acquirers:         acquirers,
		guard:             timeout.NewGuard(),
		engineDeadline:    cfg.EngineDeadline,
		aggregateDeadline: cfg.AggregateDeadline,
		theme:             cfg.Theme,
	}
}

// Guard exposes the loader's timeout guard for observability queries.
func (l *Loader) Guard() *timeout.Guard {
	return l.guard
}

// Names returns the registered capability names in stable order.
func (l *Loader) Names() []string {
	names := make([]string, 0, len(l.acquirers))
	for name := range l.acquirers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// ENSURE
// =============================================================================

// Ensure returns the engine for name, acquiring it if necessary.
//
// Already loaded: returns the handle immediately. Loading: joins the
// in-flight attempt. Unloaded or failed: starts a fresh attempt guarded by
// the engine deadline. Failure and timeout are recorded in the registry and
// returned; a later Ensure retries from scratch.
func (l *Loader) Ensure(ctx context.Context, name string) (Engine, error) {
	if status, engine, _ := l.registry.State(name); status == StatusLoaded {
		return engine, nil
	}

	v, err, _ := l.group.Do(name, func() (any, error) {
		return l.attempt(ctx, name)
	})
	if err != nil {
		return nil, err
	}
	return v.(Engine), nil
}

// attempt performs one acquisition. Only one attempt per name runs at a
// time (singleflight), so the check-then-act on the registry is atomic
// with respect to other loaders of the same capability.
func (l *Loader) attempt(ctx context.Context, name string) (Engine, error) {
	// A caller may win the singleflight slot just after the previous
	// attempt finished; don't re-acquire a loaded engine.
	if status, engine, _ := l.registry.State(name); status == StatusLoaded {
		return engine, nil
	}

	acquire, ok := l.acquirers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCapability, name)
	}

	l.registry.SetLoading(name)

	engine, err := l.acquireGuarded(ctx, name, acquire)
	if err != nil {
		l.registry.SetFailed(name, err.Error())
		return nil, err
	}

	// Post-load initialization happens before anyone can observe loaded.
	if err := engine.SetTheme(l.Theme()); err != nil {
		err = fmt.Errorf("theme init for %q: %w", name, err)
		l.registry.SetFailed(name, err.Error())
		return nil, err
	}

	l.registry.SetLoaded(name, engine)
	return engine, nil
}

// acquireGuarded runs the acquirer under the timeout guard, converting a
// synchronous panic into a failure so the registry is never stranded in
// loading.
func (l *Loader) acquireGuarded(ctx context.Context, name string, acquire AcquireFunc) (Engine, error) {
	return timeout.Race(l.guard, ctx, name, timeout.Config{
		Deadline: l.engineDeadline,
		Enabled:  true,
		Message:  fmt.Sprintf("loading %s timed out", name),
	}, func(ctx context.Context) (eng Engine, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("acquiring %q panicked: %v", name, r)
			}
		}()
		return acquire(ctx)
	})
}

// =============================================================================
// AGGREGATE LOADING
// =============================================================================

// LoadAll ensures every named capability, bounded as a whole by the
// aggregate deadline. Idempotent and safe to call repeatedly: capabilities
// already loaded are skipped, in-flight attempts are joined.
//
// Failures are collected per capability rather than aborting the rest; the
// returned error joins them all, nil when everything loaded.
func (l *Loader) LoadAll(ctx context.Context, names []string) error {
	if len(names) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, l.aggregateDeadline)
	defer cancel()

	var failures []string
	for _, name := range names {
		if _, err := l.Ensure(ctx, name); err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}

// Theme returns the theme applied to newly acquired engines.
func (l *Loader) Theme() string {
	l.themeMu.RLock()
	defer l.themeMu.RUnlock()
	return l.theme
}

// SetTheme re-themes every loaded engine and makes the new theme the
// default for engines loaded later.
func (l *Loader) SetTheme(theme string) error {
	if theme == "" {
		theme = "default"
	}
	l.themeMu.Lock()
	l.theme = theme
	l.themeMu.Unlock()

	var failures []string
	for _, name := range l.Names() {
		if status, engine, _ := l.registry.State(name); status == StatusLoaded {
			if err := engine.SetTheme(theme); err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			}
		}
	}
	if len(failures) > 0 {
		return errors.New(strings.Join(failures, "; "))
	}
	return nil
}
