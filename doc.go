// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diagrams provisions rendering engines for diagrams embedded in
// streamed chat content.
//
// Diagram engines are heavyweight and optional: most messages contain none,
// so nothing is loaded until the scanner finds diagram blocks in content.
// Acquisition is deduplicated (concurrent requests share one attempt),
// deadline-bounded, and retryable on failure. Rendered output is memoized in
// a bounded, TTL-aware cache so identical content never renders twice, and
// per-element viewport gates defer rendering until the user scrolls near.
//
// # Key Types
//
//   - Manager: composition root wiring scanner, loader, cache, and gates
//   - Readiness: aggregate per-type load state polled by the UI
//   - Failure: structured timeout / load-failure / render-failure value
//
// # Usage
//
// Construct one Manager at application start:
//
//	mgr := diagrams.New(config.Default())
//	mgr.SetContent(message) // scans and auto-triggers required engine loads
//
// Render on demand:
//
//	out, fail := mgr.Render(ctx, block, scan.TypeFlow, diagrams.Options{Width: 80})
//	if fail != nil {
//	    // fail.Kind tells the UI what to show; siblings keep rendering
//	}
//
// The surrounding chat UI, session management, and transport are external:
// they hand this package raw content strings and consume rendered output or
// error text.
package diagrams
