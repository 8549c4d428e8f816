// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration for the diagram rendering subsystem.
//
// Settings load from TOML with sensible defaults and RIGRUN_DIAGRAMS_*
// environment overrides, the same way the rest of the application family
// configures itself.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config is the complete diagram subsystem configuration.
type Config struct {
	// Cache bounds the render cache.
	Cache CacheConfig `toml:"cache"`

	// Load tunes capability acquisition.
	Load LoadConfig `toml:"load"`

	// Viewport controls lazy activation.
	Viewport ViewportConfig `toml:"viewport"`
}

// CacheConfig bounds the render cache.
type CacheConfig struct {
	// MaxEntries is the maximum number of cached renders.
	MaxEntries int `toml:"max_entries"`

	// MaxSizeBytes is the total payload budget in bytes.
	MaxSizeBytes int64 `toml:"max_size_bytes"`

	// TTLMinutes is how long an entry stays servable, in minutes.
	TTLMinutes int `toml:"ttl_minutes"`
}

// LoadConfig tunes capability acquisition.
type LoadConfig struct {
	// EngineTimeoutSeconds bounds a single engine acquisition.
	EngineTimeoutSeconds int `toml:"engine_timeout_seconds"`

	// AggregateTimeoutSeconds bounds a load-everything request.
	AggregateTimeoutSeconds int `toml:"aggregate_timeout_seconds"`

	// RenderTimeoutSeconds bounds one diagram render.
	RenderTimeoutSeconds int `toml:"render_timeout_seconds"`

	// Theme is the visual theme applied to engines after acquisition.
	Theme string `toml:"theme"`
}

// ViewportConfig controls lazy activation.
type ViewportConfig struct {
	// Lazy delays rendering until an element nears the visible region.
	Lazy bool `toml:"lazy"`

	// MarginRows extends the visible region for early activation.
	MarginRows int `toml:"margin_rows"`

	// Threshold is the visible fraction that counts as "in view".
	Threshold float64 `toml:"threshold"`

	// Performance records entry latency and visible-time diagnostics.
	Performance bool `toml:"performance"`
}

// =============================================================================
// DEFAULTS AND LOADING
// =============================================================================

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Cache: CacheConfig{
			MaxEntries:   100,
			MaxSizeBytes: 10 * 1024 * 1024,
			TTLMinutes:   30,
		},
		Load: LoadConfig{
			EngineTimeoutSeconds:    10,
			AggregateTimeoutSeconds: 30,
			RenderTimeoutSeconds:    5,
			Theme:                   "default",
		},
		Viewport: ViewportConfig{
			Lazy:       true,
			MarginRows: 3,
			Threshold:  0.1,
		},
	}
}

// Load reads configuration from the given TOML file, layered over defaults
// and under environment overrides. A missing file is not an error: defaults
// apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides layers RIGRUN_DIAGRAMS_* variables over the config.
func (c *Config) applyEnvOverrides() {
	if v, ok := envInt("RIGRUN_DIAGRAMS_CACHE_MAX_ENTRIES"); ok {
		c.Cache.MaxEntries = v
	}
	if v, ok := envInt("RIGRUN_DIAGRAMS_CACHE_TTL_MINUTES"); ok {
		c.Cache.TTLMinutes = v
	}
	if v, ok := envInt("RIGRUN_DIAGRAMS_ENGINE_TIMEOUT_SECONDS"); ok {
		c.Load.EngineTimeoutSeconds = v
	}
	if v := os.Getenv("RIGRUN_DIAGRAMS_THEME"); v != "" {
		c.Load.Theme = v
	}
	if v := os.Getenv("RIGRUN_DIAGRAMS_LAZY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Viewport.Lazy = b
		}
	}
}

func envInt(name string) (int, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Cache.MaxEntries <= 0 {
		return fmt.Errorf("cache.max_entries must be positive, got %d", c.Cache.MaxEntries)
	}
	if c.Cache.MaxSizeBytes <= 0 {
		return fmt.Errorf("cache.max_size_bytes must be positive, got %d", c.Cache.MaxSizeBytes)
	}
	if c.Cache.TTLMinutes <= 0 {
		return fmt.Errorf("cache.ttl_minutes must be positive, got %d", c.Cache.TTLMinutes)
	}
	if c.Load.EngineTimeoutSeconds <= 0 || c.Load.AggregateTimeoutSeconds <= 0 {
		return fmt.Errorf("load timeouts must be positive")
	}
	if c.Load.RenderTimeoutSeconds <= 0 {
		return fmt.Errorf("load.render_timeout_seconds must be positive, got %d", c.Load.RenderTimeoutSeconds)
	}
	if c.Viewport.Threshold < 0 || c.Viewport.Threshold > 1 {
		return fmt.Errorf("viewport.threshold must be in [0,1], got %f", c.Viewport.Threshold)
	}
	return nil
}

// =============================================================================
// DERIVED DURATIONS
// =============================================================================

// CacheTTL returns the cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLMinutes) * time.Minute
}

// EngineTimeout returns the per-engine acquisition deadline.
func (c *Config) EngineTimeout() time.Duration {
	return time.Duration(c.Load.EngineTimeoutSeconds) * time.Second
}

// AggregateTimeout returns the load-everything deadline.
func (c *Config) AggregateTimeout() time.Duration {
	return time.Duration(c.Load.AggregateTimeoutSeconds) * time.Second
}

// RenderTimeout returns the per-render deadline.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.Load.RenderTimeoutSeconds) * time.Second
}
