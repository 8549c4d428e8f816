// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diagrams

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeranaias/rigrun-diagrams/capability"
	"github.com/jeranaias/rigrun-diagrams/config"
	"github.com/jeranaias/rigrun-diagrams/rendercache"
	"github.com/jeranaias/rigrun-diagrams/scan"
	"github.com/jeranaias/rigrun-diagrams/timeout"
	"github.com/jeranaias/rigrun-diagrams/viewport"
)

// =============================================================================
// RENDER OPTIONS
// =============================================================================

// Options carries per-render hints from the caller.
type Options struct {
	// Theme selects the visual theme for this render only. Empty means the
	// configured default.
	Theme string

	// Width and Height hint the target size in cells. Zero means engine
	// default.
	Width  int
	Height int
}

// cacheKey serializes the dimensional options deterministically for cache
// key derivation. Theme is keyed separately.
func (o Options) cacheKey() string {
	if o.Width == 0 && o.Height == 0 {
		return ""
	}
	return fmt.Sprintf("w=%d;h=%d", o.Width, o.Height)
}

// CapabilityFor maps a diagram type to the capability that renders it.
func CapabilityFor(t scan.Type) string {
	return string(t) + "-engine"
}

// =============================================================================
// READINESS SURFACE
// =============================================================================

// TypeReadiness is the load state for one diagram type, for UI display.
type TypeReadiness struct {
	// HasContent is true if the current content needs this type.
	HasContent bool

	IsLoading bool
	IsLoaded  bool

	// Error is the last load failure message, empty when none.
	Error string
}

// Readiness is the aggregate state the UI polls for spinner and error
// display.
type Readiness struct {
	// HasDiagrams is true if the current content contains any diagram.
	HasDiagrams bool

	// PerType holds one entry per known diagram type.
	PerType map[scan.Type]TypeReadiness

	// IsLoading is true while any required engine is still loading.
	IsLoading bool

	// AllRequiredLoaded is true once every engine the content needs is
	// loaded. Vacuously true for content without diagrams.
	AllRequiredLoaded bool

	// Errors collects load failure messages across required types.
	Errors []string
}

// =============================================================================
// MANAGER
// =============================================================================

// Manager is the composition root of the diagram subsystem. One Manager is
// created at application start and shared; it owns the capability registry
// and render cache, and hands out per-element viewport gates.
type Manager struct {
	cfg      config.Config
	registry *capability.Registry
	loader   *capability.Loader
	cache    *rendercache.Cache

	mu        sync.RWMutex
	content   string
	detection scan.Detection
}

// New creates a Manager with the built-in engines.
func New(cfg config.Config) *Manager {
	return NewWithAcquirers(cfg, capability.DefaultAcquirers())
}

// NewWithAcquirers creates a Manager over a custom engine table. Tests and
// alternative engine builds use this.
func NewWithAcquirers(cfg config.Config, acquirers map[string]capability.AcquireFunc) *Manager {
	registry := capability.NewRegistry()
	loader := capability.NewLoader(registry, acquirers, capability.LoaderConfig{
		EngineDeadline:    cfg.EngineTimeout(),
		AggregateDeadline: cfg.AggregateTimeout(),
		Theme:             cfg.Load.Theme,
	})
	return &Manager{
		cfg:      cfg,
		registry: registry,
		loader:   loader,
		cache: rendercache.New(rendercache.Options{
			MaxEntries:   cfg.Cache.MaxEntries,
			MaxSizeBytes: cfg.Cache.MaxSizeBytes,
			TTL:          cfg.CacheTTL(),
		}),
		detection: scan.Scan(""),
	}
}

// =============================================================================
// CONTENT AND READINESS
// =============================================================================

// SetContent scans new content and, when it introduces diagram types whose
// engines are not loaded yet, kicks off their acquisition in the background.
// Engines for types absent from the content are never loaded.
func (m *Manager) SetContent(content string) scan.Detection {
	det := scan.Scan(content)

	m.mu.Lock()
	m.content = content
	m.detection = det
	m.mu.Unlock()

	if det.HasDiagrams && !m.Readiness().AllRequiredLoaded {
		go func() {
			_ = m.LoadRequiredLibraries(context.Background())
		}()
	}
	return det.Clone()
}

// Detection returns the scan result for the current content. The result is
// a snapshot: mutating it does not affect the manager.
func (m *Manager) Detection() scan.Detection {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.detection.Clone()
}

// Readiness reports aggregate load state for the current content.
func (m *Manager) Readiness() Readiness {
	m.mu.RLock()
	det := m.detection
	m.mu.RUnlock()

	snap := m.registry.Snapshot()

	r := Readiness{
		HasDiagrams:       det.HasDiagrams,
		PerType:           make(map[scan.Type]TypeReadiness, len(scan.Types())),
		AllRequiredLoaded: true,
	}
	for _, t := range scan.Types() {
		st := snap[CapabilityFor(t)]
		tr := TypeReadiness{
			HasContent: det.Count(t) > 0,
			IsLoading:  st.Status == capability.StatusLoading,
			IsLoaded:   st.Status == capability.StatusLoaded,
			Error:      st.Error,
		}
		r.PerType[t] = tr

		if !tr.HasContent {
			continue
		}
		if !tr.IsLoaded {
			r.AllRequiredLoaded = false
		}
		if tr.IsLoading {
			r.IsLoading = true
		}
		if tr.Error != "" {
			r.Errors = append(r.Errors, fmt.Sprintf("%s: %s", t, tr.Error))
		}
	}
	return r
}

// LoadRequiredLibraries ensures every engine the current content needs.
// Idempotent and safe to call repeatedly: loaded engines are skipped and
// concurrent calls share in-flight acquisitions. Bounded as a whole by the
// aggregate deadline.
func (m *Manager) LoadRequiredLibraries(ctx context.Context) error {
	var names []string
	for _, t := range m.Detection().RequiredTypes() {
		names = append(names, CapabilityFor(t))
	}
	return m.loader.LoadAll(ctx, names)
}

// =============================================================================
// RENDERING
// =============================================================================

// Render produces output for one diagram block. The cache is consulted
// before any capability work: a hit short-circuits the loader entirely.
// On a miss the engine is ensured (loading it if needed), the render runs
// under its own deadline, and the result is cached.
//
// A non-nil Failure isolates this diagram: the registry and cache are
// untouched by render failures and sibling diagrams are unaffected.
func (m *Manager) Render(ctx context.Context, content string, diagramType scan.Type, opts Options) (string, *Failure) {
	theme := opts.Theme
	if theme == "" {
		theme = m.loader.Theme()
	}
	optKey := opts.cacheKey()

	if payload, ok := m.cache.Get(content, string(diagramType), theme, optKey); ok {
		return payload, nil
	}

	engine, err := m.loader.Ensure(ctx, CapabilityFor(diagramType))
	if err != nil {
		return "", failureFrom(err, KindLoadFailure)
	}

	// A theme in the options is resolved inside the engine for this render
	// only; the engine's default styles stay untouched, so concurrent
	// renders with different themes never contend.
	rendered, err := timeout.Race(m.loader.Guard(), ctx, "render "+string(diagramType), timeout.Config{
		Deadline: m.cfg.RenderTimeout(),
		Enabled:  true,
		Message:  fmt.Sprintf("rendering %s diagram timed out", diagramType),
	}, func(ctx context.Context) (string, error) {
		return engine.Render(ctx, content, capability.RenderOptions{
			Theme:  opts.Theme,
			Width:  opts.Width,
			Height: opts.Height,
		})
	})
	if err != nil {
		return "", failureFrom(err, KindRenderFailure)
	}

	m.cache.Set(content, string(diagramType), theme, optKey, rendered)
	return rendered, nil
}

// =============================================================================
// LIFECYCLE AND OBSERVABILITY
// =============================================================================

// NewGate creates a viewport gate configured from the manager's settings.
// Each message component owns its gate and drops it with the component.
func (m *Manager) NewGate() *viewport.Gate {
	return viewport.New(viewport.Config{
		MarginRows:  m.cfg.Viewport.MarginRows,
		Threshold:   m.cfg.Viewport.Threshold,
		Lazy:        m.cfg.Viewport.Lazy,
		Performance: m.cfg.Viewport.Performance,
	})
}

// ClearCache empties the render cache (logout, test teardown).
func (m *Manager) ClearCache() {
	m.cache.Clear()
}

// Reset clears the cache and drops every capability back to unloaded.
func (m *Manager) Reset() {
	m.cache.Clear()
	m.registry.Reset()

	m.mu.Lock()
	m.content = ""
	m.detection = scan.Scan("")
	m.mu.Unlock()
}

// CacheStats returns render cache statistics.
func (m *Manager) CacheStats() rendercache.Stats {
	return m.cache.Stats()
}

// CapabilitySnapshot returns the registry state for diagnostics.
func (m *Manager) CapabilitySnapshot() map[string]capability.State {
	return m.registry.Snapshot()
}
