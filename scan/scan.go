// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package scan classifies streamed message content into diagram occurrences.
//
// The scanner is a pure function over text: it never fails, never touches a
// rendering engine, and calling it twice on the same input yields identical
// counts. It exists so the loading layer can decide which engines a message
// actually needs before paying for any of them.
package scan

import "strings"

// =============================================================================
// DIAGRAM TYPES
// =============================================================================

// Type identifies a diagram family detected in content.
type Type string

const (
	// TypeFlow covers flowchart-style diagrams (mermaid, flowchart, graph fences).
	TypeFlow Type = "flow"

	// TypeChart covers chart-style diagrams (chart, chartjs, vega fences).
	TypeChart Type = "chart"
)

// Types lists every diagram family the scanner knows about, in stable order.
func Types() []Type {
	return []Type{TypeFlow, TypeChart}
}

// fenceLanguages maps a fenced code block's language tag to a diagram type.
var fenceLanguages = map[string]Type{
	"mermaid":   TypeFlow,
	"flowchart": TypeFlow,
	"flow":      TypeFlow,
	"graph":     TypeFlow,
	"chart":     TypeChart,
	"chartjs":   TypeChart,
	"vega":      TypeChart,
	"vega-lite": TypeChart,
}

// =============================================================================
// DETECTION RESULT
// =============================================================================

// Detection is the result of scanning one content string.
type Detection struct {
	// Total is the number of diagram blocks found, across all types.
	Total int

	// PerType counts blocks per diagram family. Types with zero occurrences
	// are present with a zero count so callers can range over all types.
	PerType map[Type]int

	// HasDiagrams is true if Total > 0.
	HasDiagrams bool
}

// Count returns the number of blocks detected for the given type.
func (d Detection) Count(t Type) int {
	return d.PerType[t]
}

// Clone returns a Detection with its own PerType map, so a caller mutating
// the copy cannot reach the original's counts.
func (d Detection) Clone() Detection {
	per := make(map[Type]int, len(d.PerType))
	for t, n := range d.PerType {
		per[t] = n
	}
	d.PerType = per
	return d
}

// RequiredTypes returns the diagram types that actually occur in the content.
func (d Detection) RequiredTypes() []Type {
	var required []Type
	for _, t := range Types() {
		if d.PerType[t] > 0 {
			required = append(required, t)
		}
	}
	return required
}

// =============================================================================
// SCANNER
// =============================================================================

// Scan walks the content's fenced code blocks and counts diagram occurrences.
//
// A block opens at a line starting with ``` followed by a language tag and
// closes at the next line starting with ```. An unterminated trailing fence
// still counts: streamed content arrives incrementally and the closing fence
// may simply not have arrived yet.
func Scan(content string) Detection {
	det := Detection{PerType: make(map[Type]int, len(fenceLanguages))}
	for _, t := range Types() {
		det.PerType[t] = 0
	}
	if content == "" {
		return det
	}

	inBlock := false
	for _, line := range strings.Split(content, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		if inBlock {
			inBlock = false
			continue
		}
		inBlock = true

		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))
		// Tags like "mermaid {init: ...}" carry attributes after the name.
		if idx := strings.IndexAny(lang, " \t{"); idx >= 0 {
			lang = lang[:idx]
		}
		if t, ok := fenceLanguages[lang]; ok {
			det.PerType[t]++
			det.Total++
		}
	}

	det.HasDiagrams = det.Total > 0
	return det
}
