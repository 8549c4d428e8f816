// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package viewport gates diagram rendering on element visibility.
//
// Rendering every diagram in a long conversation up front wastes work the
// user may never scroll to. A Gate delays rendering until its element has
// been near the visible region at least once, then keeps it rendered for
// good: the latch is one-way. Each message component owns its own Gate and
// tears it down with the component.
package viewport

import (
	"sync"
	"time"
)

// =============================================================================
// CONFIG
// =============================================================================

// Config controls one gate.
type Config struct {
	// MarginRows extends the visible region by this many rows in each
	// direction, so elements start rendering slightly before they scroll
	// into view. Default 3.
	MarginRows int

	// Threshold is the fraction of the element that must be inside the
	// (margin-extended) region to count as visible. Default 0.1.
	Threshold float64

	// Lazy enables visibility gating. When false, ShouldRender is always
	// true and observations only feed metrics.
	Lazy bool

	// Performance additionally records entry latency and visible time.
	// It never changes ShouldRender semantics.
	Performance bool
}

// DefaultConfig returns the gate defaults used by the chat layer.
func DefaultConfig() Config {
	return Config{MarginRows: 3, Threshold: 0.1, Lazy: true}
}

// normalize fills zero values with defaults.
func (c Config) normalize() Config {
	if c.MarginRows <= 0 {
		c.MarginRows = 3
	}
	if c.Threshold <= 0 {
		c.Threshold = 0.1
	}
	return c
}

// Visible reports whether an element spanning rows [elemTop, elemTop+elemHeight)
// counts as visible against a view spanning [viewTop, viewTop+viewHeight).
// The view is extended by MarginRows in each direction and at least a
// Threshold fraction of the element must fall inside the extended region.
// Scroll handlers implementing a VisibilityProbe use this so their notion of
// visible matches the gate's.
func (c Config) Visible(elemTop, elemHeight, viewTop, viewHeight int) bool {
	if elemHeight <= 0 || viewHeight <= 0 {
		return false
	}
	regionTop := viewTop - c.MarginRows
	regionBottom := viewTop + viewHeight + c.MarginRows

	overlap := min(elemTop+elemHeight, regionBottom) - max(elemTop, regionTop)
	if overlap <= 0 {
		return false
	}
	return float64(overlap) >= c.Threshold*float64(elemHeight)
}

// =============================================================================
// VISIBILITY PROBE
// =============================================================================

// VisibilityProbe reports whether the observed element is currently inside
// the scroll region. The chat view backs this with its viewport offsets;
// tests use a plain closure. Terminals have no intersection observer, so
// the gate polls the probe (or is driven by explicit Observe calls from
// the scroll handler).
type VisibilityProbe func() bool

// =============================================================================
// GATE
// =============================================================================

// Metrics is the performance-mode diagnostic record.
type Metrics struct {
	// FirstEntryLatency is the time from gate creation to first entry.
	// Zero until the element has entered.
	FirstEntryLatency time.Duration

	// VisibleTime is the cumulative time the element has spent visible.
	VisibleTime time.Duration

	// EnterCount is how many times the element has entered the region.
	EnterCount int
}

// Gate is the one-way lazy-activation latch for a single element.
// Safe for concurrent use; a Gate shares nothing with other gates.
type Gate struct {
	mu    sync.Mutex
	cfg   Config
	probe VisibilityProbe

	visible bool
	entered bool // one-way: never reverts
	forced  bool

	createdAt    time.Time
	visibleSince time.Time
	metrics      Metrics
	now          func() time.Time
}

// New creates a gate with the given config.
func New(cfg Config) *Gate {
	g := &Gate{cfg: cfg.normalize(), now: time.Now}
	g.createdAt = g.now()
	return g
}

// NewWithProbe creates a gate that Poll reads visibility from.
func NewWithProbe(cfg Config, probe VisibilityProbe) *Gate {
	g := New(cfg)
	g.probe = probe
	return g
}

// Observe feeds one visibility observation into the gate.
func (g *Gate) Observe(visible bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observeLocked(visible)
}

// ObserveRegion feeds element and view geometry into the gate, applying the
// configured margin and threshold. Scroll handlers that track row offsets
// call this instead of computing visibility themselves.
func (g *Gate) ObserveRegion(elemTop, elemHeight, viewTop, viewHeight int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observeLocked(g.cfg.Visible(elemTop, elemHeight, viewTop, viewHeight))
}

// Config returns the gate's normalized configuration, so probe implementors
// can honor the same margin and threshold the gate applies.
func (g *Gate) Config() Config {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.cfg
}

// Poll reads the probe, if any, and feeds the result into the gate.
func (g *Gate) Poll() {
	if g.probe == nil {
		return
	}
	visible := g.probe()
	g.mu.Lock()
	defer g.mu.Unlock()
	g.observeLocked(visible)
}

func (g *Gate) observeLocked(visible bool) {
	now := g.now()

	if visible && !g.visible {
		// Entering.
		if !g.entered {
			g.entered = true
			if g.cfg.Performance {
				g.metrics.FirstEntryLatency = now.Sub(g.createdAt)
			}
		}
		if g.cfg.Performance {
			g.metrics.EnterCount++
			g.visibleSince = now
		}
	}
	if !visible && g.visible && g.cfg.Performance {
		// Leaving: bank the visible span.
		g.metrics.VisibleTime += now.Sub(g.visibleSince)
	}
	g.visible = visible
}

// ShouldRender reports whether a render may proceed: lazy rendering is
// disabled, or the element has ever entered the region, or the caller
// forced it.
func (g *Gate) ShouldRender() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return !g.cfg.Lazy || g.entered || g.forced
}

// ForceRender overrides the latch so the next ShouldRender is true
// regardless of visibility history.
func (g *Gate) ForceRender() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.forced = true
}

// InViewport reports the most recent visibility observation.
func (g *Gate) InViewport() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.visible
}

// HasEnteredOnce reports whether the element has ever been visible.
func (g *Gate) HasEnteredOnce() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.entered
}

// Metrics returns performance-mode diagnostics. The currently-visible span
// is included up to now.
func (g *Gate) Metrics() Metrics {
	g.mu.Lock()
	defer g.mu.Unlock()

	m := g.metrics
	if g.cfg.Performance && g.visible {
		m.VisibleTime += g.now().Sub(g.visibleSince)
	}
	return m
}
