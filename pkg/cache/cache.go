// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package cache provides the bounded translation-result cache. Entries
// are keyed by (agent id, source format, target format), expire after a
// TTL, and are evicted at capacity by lowest hit count — a cheap
// approximation of recency that needs no access-order bookkeeping.
//
// The cache is sharded so eviction and TTL sweeps never block unrelated
// lookups. The background sweeper is owned by the cache lifecycle:
// started by New, stopped by Close. Tests drive time deterministically
// through the injectable clock and SweepNow.
package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

// Key identifies one cached translation.
type Key struct {
	AgentID      string
	SourceFormat string
	TargetFormat string
}

// Entry is one cached value with its bookkeeping.
type Entry struct {
	Value     any
	Timestamp time.Time
	TTL       time.Duration
	HitCount  int64
}

// Config tunes the cache.
type Config struct {
	// CapacityPerShard bounds each shard; 0 means unbounded.
	CapacityPerShard int

	// DefaultTTL applies when Set is called with ttl 0.
	DefaultTTL time.Duration

	// Shards must be >= 1. Defaults to 8.
	Shards int

	// SweepInterval is how often the background sweeper purges expired
	// entries. Zero disables the background sweeper (tests call
	// SweepNow instead).
	SweepInterval time.Duration

	// Now is the clock; defaults to time.Now.
	Now func() time.Time
}

type shard struct {
	mu      sync.Mutex
	entries map[Key]*Entry
}

// Cache is the sharded TTL/hit-count cache. Safe for concurrent use.
type Cache struct {
	cfg    Config
	shards []*shard
	stop   chan struct{}
	once   sync.Once
}

// New constructs a cache and starts its sweeper if configured.
func New(cfg Config) *Cache {
	if cfg.Shards < 1 {
		cfg.Shards = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	c := &Cache{cfg: cfg, stop: make(chan struct{})}
	c.shards = make([]*shard, cfg.Shards)
	for i := range c.shards {
		c.shards[i] = &shard{entries: make(map[Key]*Entry)}
	}
	if cfg.SweepInterval > 0 {
		go c.sweepLoop()
	}
	return c
}

// Close stops the background sweeper. Idempotent.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.stop) })
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(c.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.SweepNow()
		case <-c.stop:
			return
		}
	}
}

// SweepNow purges every TTL-expired entry, shard by shard.
func (c *Cache) SweepNow() {
	now := c.cfg.Now()
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k, e := range sh.entries {
			if expired(e, now) {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}

func expired(e *Entry, now time.Time) bool {
	return e.TTL > 0 && now.Sub(e.Timestamp) >= e.TTL
}

func (c *Cache) shardFor(key Key) *shard {
	h := fnv.New32a()
	h.Write([]byte(key.AgentID))
	h.Write([]byte{0})
	h.Write([]byte(key.SourceFormat))
	h.Write([]byte{0})
	h.Write([]byte(key.TargetFormat))
	return c.shards[int(h.Sum32())%len(c.shards)]
}

// Get returns the cached value and increments its hit count. Expired
// entries read as misses even before the sweeper runs.
func (c *Cache) Get(key Key) (any, bool) {
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.entries[key]
	if !ok {
		return nil, false
	}
	if expired(e, c.cfg.Now()) {
		delete(sh.entries, key)
		return nil, false
	}
	e.HitCount++
	return e.Value, true
}

// Set stores a value. ttl 0 uses the configured default. When the shard
// is at capacity the entry with the fewest hits is evicted first.
func (c *Cache) Set(key Key, value any, ttl time.Duration) {
	if ttl == 0 {
		ttl = c.cfg.DefaultTTL
	}
	sh := c.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	if _, exists := sh.entries[key]; !exists &&
		c.cfg.CapacityPerShard > 0 && len(sh.entries) >= c.cfg.CapacityPerShard {
		evictColdest(sh)
	}
	sh.entries[key] = &Entry{Value: value, Timestamp: c.cfg.Now(), TTL: ttl}
}

// evictColdest removes the entry with the fewest hits. Caller holds the
// shard lock.
func evictColdest(sh *shard) {
	var coldest Key
	var coldestHits int64 = -1
	for k, e := range sh.entries {
		if coldestHits < 0 || e.HitCount < coldestHits {
			coldest, coldestHits = k, e.HitCount
		}
	}
	if coldestHits >= 0 {
		delete(sh.entries, coldest)
	}
}

// Invalidate removes every entry scoped to an agent, across all source
// and target formats. Callers must invoke this after any mutating store
// operation on that agent.
func (c *Cache) Invalidate(agentID string) {
	for _, sh := range c.shards {
		sh.mu.Lock()
		for k := range sh.entries {
			if k.AgentID == agentID {
				delete(sh.entries, k)
			}
		}
		sh.mu.Unlock()
	}
}

// Len returns the total number of live entries.
func (c *Cache) Len() int {
	total := 0
	for _, sh := range c.shards {
		sh.mu.Lock()
		total += len(sh.entries)
		sh.mu.Unlock()
	}
	return total
}
