package sources

import (
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// Default cache sizing. Entries past their TTL are treated as misses and
// reclaimed lazily; when full, the oldest entry is evicted.
const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 1000
)

// cacheEntry holds one cached result. Payloads are msgpack-encoded so a
// read always decodes a fresh copy - cached rows never alias caller state.
type cacheEntry struct {
	payload   []byte
	cachedAt  time.Time
	expiresAt time.Time
}

// CacheStats reports cache performance counters.
type CacheStats struct {
	Entries     int   `json:"entries"`
	TotalHits   int64 `json:"total_hits"`
	TotalMisses int64 `json:"total_misses"`
	TotalSets   int64 `json:"total_sets"`
	Evictions   int64 `json:"evictions"`
}

// ResultCache is the router's mutex-guarded TTL cache, keyed by
// (capability, normalized args).
type ResultCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int

	hits      int64
	misses    int64
	sets      int64
	evictions int64
}

// NewResultCache creates a cache with the given TTL and capacity.
// Non-positive arguments fall back to the defaults.
func NewResultCache(ttl time.Duration, maxEntries int) *ResultCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	return &ResultCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// Get decodes the cached value for key into dest.
// Expired entries count as misses and are removed.
func (c *ResultCache) Get(key string, dest interface{}) bool {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && time.Now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	if !ok {
		c.misses++
		c.mu.Unlock()
		return false
	}
	c.hits++
	c.mu.Unlock()

	// Decode outside the lock; payload bytes are immutable once stored
	if err := msgpack.Unmarshal(entry.payload, dest); err != nil {
		return false
	}
	return true
}

// Set encodes and stores a value. Encoding failures drop the entry silently;
// the cache is an optimization, never a source of truth.
func (c *ResultCache) Set(key string, value interface{}) {
	payload, err := msgpack.Marshal(value)
	if err != nil {
		return
	}

	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{
		payload:   payload,
		cachedAt:  now,
		expiresAt: now.Add(c.ttl),
	}
	c.sets++
}

// evictOldestLocked removes the entry with the earliest cachedAt.
func (c *ResultCache) evictOldestLocked() {
	var oldestKey string
	var oldestAt time.Time
	first := true
	for key, entry := range c.entries {
		if first || entry.cachedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.cachedAt
			first = false
		}
	}
	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.evictions++
	}
}

// Stats returns a snapshot of the cache counters.
func (c *ResultCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries:     len(c.entries),
		TotalHits:   c.hits,
		TotalMisses: c.misses,
		TotalSets:   c.sets,
		Evictions:   c.evictions,
	}
}
