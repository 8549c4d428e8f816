// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package rendercache provides a content-addressed cache of rendered diagrams.
//
// Rendering a diagram is expensive and chat content is frequently re-displayed
// (scrollback, conversation switches, window resizes). The cache memoizes
// rendered output keyed by (content, type, theme, options) so identical input
// is never rendered twice while the entry is fresh.
//
// Bounds: entry count, total payload bytes, and age (TTL) are all enforced.
// Expired entries are purged lazily on every Get/Set; when the cache is still
// over budget it evicts least-frequently-used entries first, breaking ties by
// least-recently-used.
package rendercache

import (
	"strconv"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	// DefaultMaxEntries bounds the number of cached renders.
	DefaultMaxEntries = 100

	// DefaultMaxSizeBytes bounds the total payload size (10 MiB).
	DefaultMaxSizeBytes = 10 * 1024 * 1024

	// DefaultTTL is how long an entry stays servable after creation.
	DefaultTTL = 30 * time.Minute
)

// =============================================================================
// KEY DERIVATION
// =============================================================================

// Key is an xxhash64 digest over (type, theme, content hash, options hash).
//
// Hash equality stands in for input equality: a collision would serve the
// wrong render. That trade-off is accepted — the cache is a best-effort memo
// for a chat UI, not a correctness authority, and no full-content
// verification is performed on hit.
type Key uint64

// DeriveKey computes the cache key for one render input. Equal inputs always
// derive the same key within a process. An empty theme means "default";
// options is the caller's pre-serialized option string ("" when absent).
func DeriveKey(content, diagramType, theme, options string) Key {
	if theme == "" {
		theme = "default"
	}

	var d xxhash.Digest
	d.Reset()
	_, _ = d.WriteString(diagramType)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(theme)
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatUint(xxhash.Sum64String(content), 16))
	_, _ = d.WriteString("|")
	_, _ = d.WriteString(strconv.FormatUint(xxhash.Sum64String(options), 16))
	return Key(d.Sum64())
}

// =============================================================================
// ENTRIES AND STATS
// =============================================================================

// entry is one cached render.
type entry struct {
	key            Key
	payload        string
	createdAt      time.Time
	lastAccessedAt time.Time
	accessCount    uint64
	sizeBytes      int64
}

// Stats is a point-in-time snapshot of cache state and effectiveness.
type Stats struct {
	Entries      int
	SizeBytes    int64
	MaxEntries   int
	MaxSizeBytes int64
	Hits         uint64
	Misses       uint64
	Evictions    uint64
	HitRate      float64
}

// Options configures a Cache. Zero values fall back to defaults.
type Options struct {
	MaxEntries   int
	MaxSizeBytes int64
	TTL          time.Duration
}

// =============================================================================
// CACHE
// =============================================================================

// Cache is a bounded, TTL-aware render cache. Safe for concurrent use.
//
// Payloads are returned by shared reference: every reader of a key sees the
// same payload until it is evicted. Callers must treat it as read-only.
type Cache struct {
	mu          sync.RWMutex
	entries     map[Key]*entry
	maxEntries  int
	maxSize     int64
	ttl         time.Duration
	currentSize int64

	hits      uint64
	misses    uint64
	evictions uint64

	now func() time.Time // overridable in tests
}

// New creates a render cache with the given options.
func New(opts Options) *Cache {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultMaxEntries
	}
	if opts.MaxSizeBytes <= 0 {
		opts.MaxSizeBytes = DefaultMaxSizeBytes
	}
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	return &Cache{
		entries:    make(map[Key]*entry, opts.MaxEntries),
		maxEntries: opts.MaxEntries,
		maxSize:    opts.MaxSizeBytes,
		ttl:        opts.TTL,
		now:        time.Now,
	}
}

// Get returns the cached render for the input, if present and fresh.
// A hit bumps the entry's access count and recency before returning.
func (c *Cache) Get(content, diagramType, theme, options string) (string, bool) {
	key := DeriveKey(content, diagramType, theme, options)

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()

	e, ok := c.entries[key]
	if !ok {
		c.misses++
		return "", false
	}

	e.accessCount++
	e.lastAccessedAt = c.now()
	c.hits++
	return e.payload, true
}

// Has reports whether a fresh entry exists for the input without touching
// its access statistics.
func (c *Cache) Has(content, diagramType, theme, options string) bool {
	key := DeriveKey(content, diagramType, theme, options)

	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	return c.now().Sub(e.createdAt) <= c.ttl
}

// Set stores a rendered payload for the input, overwriting any existing
// entry for the same key and then enforcing all bounds.
func (c *Cache) Set(content, diagramType, theme, options, payload string) {
	key := DeriveKey(content, diagramType, theme, options)
	size := int64(len(payload))

	c.mu.Lock()
	defer c.mu.Unlock()

	c.purgeExpiredLocked()

	// A payload that alone exceeds the byte budget can never be held
	// without violating the bound; don't thrash the rest of the cache.
	if size > c.maxSize {
		return
	}

	now := c.now()
	if existing, ok := c.entries[key]; ok {
		// Overwrite: adjust the running total by the delta, keep one entry.
		c.currentSize += size - existing.sizeBytes
		existing.payload = payload
		existing.sizeBytes = size
		existing.createdAt = now
		existing.lastAccessedAt = now
	} else {
		c.entries[key] = &entry{
			key:            key,
			payload:        payload,
			createdAt:      now,
			lastAccessedAt: now,
			sizeBytes:      size,
		}
		c.currentSize += size
	}

	c.evictOverBudgetLocked()
}

// Clear removes every entry. Access statistics are kept.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[Key]*entry, c.maxEntries)
	c.currentSize = 0
}

// Len returns the current entry count.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache state.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	hitRate := 0.0
	if total := c.hits + c.misses; total > 0 {
		hitRate = float64(c.hits) / float64(total)
	}
	return Stats{
		Entries:      len(c.entries),
		SizeBytes:    c.currentSize,
		MaxEntries:   c.maxEntries,
		MaxSizeBytes: c.maxSize,
		Hits:         c.hits,
		Misses:       c.misses,
		Evictions:    c.evictions,
		HitRate:      hitRate,
	}
}

// =============================================================================
// EVICTION
// =============================================================================

// purgeExpiredLocked drops entries older than the TTL. Must hold the lock.
func (c *Cache) purgeExpiredLocked() {
	cutoff := c.now().Add(-c.ttl)
	for key, e := range c.entries {
		if e.createdAt.Before(cutoff) {
			c.removeLocked(key)
		}
	}
}

// evictOverBudgetLocked evicts entries in ascending (accessCount,
// lastAccessedAt) order until both the entry and byte bounds hold.
// Must hold the lock.
func (c *Cache) evictOverBudgetLocked() {
	for len(c.entries) > c.maxEntries || c.currentSize > c.maxSize {
		victim := c.victimLocked()
		if victim == nil {
			return
		}
		c.removeLocked(victim.key)
		c.evictions++
	}
}

// victimLocked finds the entry with the lowest (accessCount, lastAccessedAt).
// A linear scan is fine at this scale; the entry bound defaults to 100.
func (c *Cache) victimLocked() *entry {
	var victim *entry
	for _, e := range c.entries {
		if victim == nil {
			victim = e
			continue
		}
		if e.accessCount < victim.accessCount ||
			(e.accessCount == victim.accessCount && e.lastAccessedAt.Before(victim.lastAccessedAt)) {
			victim = e
		}
	}
	return victim
}

// removeLocked deletes one entry and adjusts the size total. Must hold the lock.
func (c *Cache) removeLocked(key Key) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	c.currentSize -= e.sizeBytes
	delete(c.entries, key)
}
