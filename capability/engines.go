// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package capability

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// CAPABILITY NAMES
// =============================================================================

const (
	// FlowEngineName is the capability serving flowchart-style diagrams.
	FlowEngineName = "flow-engine"

	// ChartEngineName is the capability serving chart-style diagrams.
	ChartEngineName = "chart-engine"
)

// DefaultAcquirers returns the built-in engine constructor table.
// Construction is the heavyweight step: it resolves the terminal color
// profile and builds the engine's full style table.
func DefaultAcquirers() map[string]AcquireFunc {
	return map[string]AcquireFunc{
		FlowEngineName: func(ctx context.Context) (Engine, error) {
			return NewFlowEngine(), nil
		},
		ChartEngineName: func(ctx context.Context) (Engine, error) {
			return NewChartEngine(), nil
		},
	}
}

// =============================================================================
// THEMES
// =============================================================================

// palette holds the colors an engine theme draws with.
type palette struct {
	node   lipgloss.Color
	border lipgloss.Color
	edge   lipgloss.Color
	accent lipgloss.Color
}

// themePalettes maps theme names to palettes. Theme names mirror the ones
// the chat layer exposes to users.
var themePalettes = map[string]palette{
	"default": {node: "15", border: "69", edge: "244", accent: "69"},
	"dark":    {node: "252", border: "61", edge: "240", accent: "61"},
	"forest":  {node: "157", border: "29", edge: "242", accent: "29"},
	"neutral": {node: "250", border: "245", edge: "243", accent: "245"},
}

// paletteFor resolves a theme name, erroring on names the layer does not
// ship.
func paletteFor(theme string) (palette, error) {
	p, ok := themePalettes[theme]
	if !ok {
		return palette{}, fmt.Errorf("unknown theme %q", theme)
	}
	return p, nil
}

// =============================================================================
// FLOW ENGINE
// =============================================================================

// flowStyles is one resolved style table for the flow engine. Render works
// from a value copy, so a concurrent retheme never touches an in-flight
// render.
type flowStyles struct {
	node lipgloss.Style
	edge lipgloss.Style
}

// flowEngine renders edge-list flowcharts ("A --> B") as boxed nodes
// connected vertically. Safe for concurrent use: the default style table is
// mutex-guarded and per-render theme overrides resolve a fresh table instead
// of mutating the shared one.
type flowEngine struct {
	profile termenv.Profile

	mu     sync.RWMutex
	styles flowStyles
}

// NewFlowEngine constructs the flow engine with an unthemed style table.
func NewFlowEngine() Engine {
	return &flowEngine{profile: termenv.ColorProfile()}
}

// Name implements Engine.
func (e *flowEngine) Name() string { return FlowEngineName }

// stylesFor builds the style table for a theme. Monochrome terminals keep
// the box drawing but skip the palette (NO_COLOR, piped output).
func (e *flowEngine) stylesFor(theme string) (flowStyles, error) {
	p, err := paletteFor(theme)
	if err != nil {
		return flowStyles{}, err
	}
	node := lipgloss.NewStyle().
		BorderStyle(lipgloss.RoundedBorder()).
		Padding(0, 1)
	edge := lipgloss.NewStyle()
	if e.profile != termenv.Ascii {
		node = node.Foreground(p.node).BorderForeground(p.border)
		edge = edge.Foreground(p.edge)
	}
	return flowStyles{node: node, edge: edge}, nil
}

// SetTheme implements Engine. It replaces the default style table used by
// renders without a theme override.
func (e *flowEngine) SetTheme(theme string) error {
	s, err := e.stylesFor(theme)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.styles = s
	e.mu.Unlock()
	return nil
}

// renderStyles picks the style table for one render: the override theme
// when set, otherwise a snapshot of the default.
func (e *flowEngine) renderStyles(override string) (flowStyles, error) {
	if override != "" {
		return e.stylesFor(override)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.styles, nil
}

// Render implements Engine. The content is an edge list, one "A --> B" (or
// "A -> B") per line; "graph"/"flowchart" header lines are skipped. Content
// with no edges at all is a render failure.
func (e *flowEngine) Render(ctx context.Context, content string, opts RenderOptions) (string, error) {
	styles, err := e.renderStyles(opts.Theme)
	if err != nil {
		return "", err
	}

	var order []string
	seen := make(map[string]bool)

	for _, line := range strings.Split(content, "\n") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "graph") || strings.HasPrefix(line, "flowchart") {
			continue
		}

		from, to, ok := splitEdge(line)
		if !ok {
			continue
		}
		for _, node := range []string{from, to} {
			if !seen[node] {
				seen[node] = true
				order = append(order, node)
			}
		}
	}

	if len(order) == 0 {
		return "", fmt.Errorf("no flow edges found in diagram")
	}

	arrow := styles.edge.Render("  │\n  ▼")
	var blocks []string
	for i, node := range order {
		blocks = append(blocks, styles.node.Render(node))
		if i < len(order)-1 {
			blocks = append(blocks, arrow)
		}
	}
	return strings.Join(blocks, "\n"), nil
}

// splitEdge parses one "A --> B" edge. Longer arrows are tried first so
// "-->" is not misread as "->" with a stray dash.
func splitEdge(line string) (from, to string, ok bool) {
	for _, sep := range []string{"-->", "->"} {
		if idx := strings.Index(line, sep); idx > 0 {
			from = strings.TrimSpace(line[:idx])
			to = strings.TrimSpace(line[idx+len(sep):])
			if from != "" && to != "" {
				return from, to, true
			}
		}
	}
	return "", "", false
}

// =============================================================================
// CHART ENGINE
// =============================================================================

// chartStyles is one resolved style table for the chart engine.
type chartStyles struct {
	label lipgloss.Style
	bar   lipgloss.Style
}

// chartEngine renders "label: value" series as horizontal bar rows.
// Concurrency contract matches flowEngine.
type chartEngine struct {
	profile termenv.Profile

	mu     sync.RWMutex
	styles chartStyles
}

// NewChartEngine constructs the chart engine with an unthemed style table.
func NewChartEngine() Engine {
	return &chartEngine{profile: termenv.ColorProfile()}
}

// Name implements Engine.
func (e *chartEngine) Name() string { return ChartEngineName }

func (e *chartEngine) stylesFor(theme string) (chartStyles, error) {
	p, err := paletteFor(theme)
	if err != nil {
		return chartStyles{}, err
	}
	label := lipgloss.NewStyle().Width(12)
	bar := lipgloss.NewStyle()
	if e.profile != termenv.Ascii {
		label = label.Foreground(p.node)
		bar = bar.Foreground(p.accent)
	}
	return chartStyles{label: label, bar: bar}, nil
}

// SetTheme implements Engine.
func (e *chartEngine) SetTheme(theme string) error {
	s, err := e.stylesFor(theme)
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.styles = s
	e.mu.Unlock()
	return nil
}

func (e *chartEngine) renderStyles(override string) (chartStyles, error) {
	if override != "" {
		return e.stylesFor(override)
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.styles, nil
}

// Render implements Engine. Each non-empty line is "label: value"; values
// must be non-negative numbers. A series with no parseable rows is a
// render failure.
func (e *chartEngine) Render(ctx context.Context, content string, opts RenderOptions) (string, error) {
	styles, err := e.renderStyles(opts.Theme)
	if err != nil {
		return "", err
	}

	type row struct {
		label string
		value float64
	}
	var rows []row
	max := 0.0

	for _, line := range strings.Split(content, "\n") {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ":")
		if idx <= 0 {
			return "", fmt.Errorf("invalid chart row %q", line)
		}
		value, err := strconv.ParseFloat(strings.TrimSpace(line[idx+1:]), 64)
		if err != nil || value < 0 {
			return "", fmt.Errorf("invalid chart value in row %q", line)
		}
		rows = append(rows, row{label: strings.TrimSpace(line[:idx]), value: value})
		if value > max {
			max = value
		}
	}

	if len(rows) == 0 {
		return "", fmt.Errorf("no chart rows found in diagram")
	}

	barWidth := opts.Width - 20
	if barWidth < 10 {
		barWidth = 40
	}

	var out []string
	for _, r := range rows {
		cells := 0
		if max > 0 {
			cells = int(r.value / max * float64(barWidth))
		}
		bar := styles.bar.Render(strings.Repeat("█", cells))
		out = append(out, fmt.Sprintf("%s %s %g", styles.label.Render(r.label), bar, r.value))
	}
	return strings.Join(out, "\n"), nil
}
