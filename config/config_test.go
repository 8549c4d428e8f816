// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Cache.MaxEntries != 100 {
		t.Errorf("Expected 100 max entries, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.MaxSizeBytes != 10*1024*1024 {
		t.Errorf("Expected 10 MiB size budget, got %d", cfg.Cache.MaxSizeBytes)
	}
	if cfg.CacheTTL() != 30*time.Minute {
		t.Errorf("Expected 30m TTL, got %v", cfg.CacheTTL())
	}
	if cfg.EngineTimeout() != 10*time.Second {
		t.Errorf("Expected 10s engine timeout, got %v", cfg.EngineTimeout())
	}
	if cfg.AggregateTimeout() != 30*time.Second {
		t.Errorf("Expected 30s aggregate timeout, got %v", cfg.AggregateTimeout())
	}
	if !cfg.Viewport.Lazy {
		t.Error("Lazy rendering should default on")
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults should validate, got %v", err)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Missing file should not error, got %v", err)
	}
	if cfg.Cache.MaxEntries != 100 {
		t.Error("Missing file should yield defaults")
	}
}

func TestLoadFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "diagrams.toml")
	content := `
[cache]
max_entries = 50
ttl_minutes = 5

[load]
theme = "forest"

[viewport]
lazy = false
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.MaxEntries != 50 {
		t.Errorf("Expected 50 from file, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Cache.TTLMinutes != 5 {
		t.Errorf("Expected TTL 5 from file, got %d", cfg.Cache.TTLMinutes)
	}
	if cfg.Load.Theme != "forest" {
		t.Errorf("Expected theme forest, got %q", cfg.Load.Theme)
	}
	if cfg.Viewport.Lazy {
		t.Error("File should disable lazy rendering")
	}
	// Unset file values keep defaults.
	if cfg.Load.EngineTimeoutSeconds != 10 {
		t.Errorf("Unset value should keep default, got %d", cfg.Load.EngineTimeoutSeconds)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RIGRUN_DIAGRAMS_CACHE_MAX_ENTRIES", "7")
	t.Setenv("RIGRUN_DIAGRAMS_THEME", "dark")
	t.Setenv("RIGRUN_DIAGRAMS_LAZY", "false")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Cache.MaxEntries != 7 {
		t.Errorf("Env should override max entries, got %d", cfg.Cache.MaxEntries)
	}
	if cfg.Load.Theme != "dark" {
		t.Errorf("Env should override theme, got %q", cfg.Load.Theme)
	}
	if cfg.Viewport.Lazy {
		t.Error("Env should disable lazy rendering")
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []func(*Config){
		func(c *Config) { c.Cache.MaxEntries = 0 },
		func(c *Config) { c.Cache.MaxSizeBytes = -1 },
		func(c *Config) { c.Cache.TTLMinutes = 0 },
		func(c *Config) { c.Load.EngineTimeoutSeconds = 0 },
		func(c *Config) { c.Load.RenderTimeoutSeconds = -5 },
		func(c *Config) { c.Viewport.Threshold = 1.5 },
	}
	for i, mutate := range cases {
		cfg := Default()
		mutate(&cfg)
		if err := cfg.Validate(); err == nil {
			t.Errorf("Case %d should fail validation", i)
		}
	}
}
