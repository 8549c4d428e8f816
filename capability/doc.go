// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package capability manages lazily-acquired diagram rendering engines.
//
// Engines are heavyweight: building their style tables and layout machinery
// is deliberately deferred until content actually needs them. This package
// coordinates that acquisition so it happens at most once per engine at a
// time, under a deadline, with failures recorded for retry rather than
// cached forever.
//
// # Key Types
//
//   - Engine: a loaded rendering engine for one diagram family
//   - Registry: shared table of per-capability load status
//   - Loader: deduplicated, timeout-guarded acquisition
//   - AcquireFunc: pluggable constructor for an engine (static plugin table)
//
// # Usage
//
// Construct the shared registry and loader once at application start:
//
//	reg := capability.NewRegistry()
//	loader := capability.NewLoader(reg, capability.DefaultAcquirers(), capability.LoaderConfig{})
//
// Ensure an engine before rendering:
//
//	eng, err := loader.Ensure(ctx, "flow-engine")
//	if err != nil {
//	    // recorded in the registry; a later Ensure retries
//	}
package capability
