package resolve

import (
	"sync"
	"time"
)

const (
	// DefaultCacheSize caps the number of cached names.
	DefaultCacheSize = 65536
	// sweepEvery is the number of puts between expired-entry sweeps.
	sweepEvery = 1024
)

// cache holds resolved addresses until their TTL expires. Expired entries
// are dropped on lookup and by a sweep every sweepEvery puts; at maxEntries
// a sweep runs first and, if the cache is still full, an arbitrary entry is
// evicted.
type cache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	maxTTL     time.Duration
	maxEntries int
	puts       int
	now        func() time.Time
}

type cacheEntry struct {
	addrs     []Address
	expiresAt time.Time
}

// newCache returns a cache capping entry lifetimes at maxTTL and its size
// at maxEntries (DefaultCacheSize when <= 0). A non-positive maxTTL
// disables caching.
func newCache(maxTTL time.Duration, maxEntries int) *cache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &cache{
		entries:    make(map[string]cacheEntry),
		maxTTL:     maxTTL,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *cache) get(name string) ([]Address, bool) {
	if c.maxTTL <= 0 {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[name]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, name)
		return nil, false
	}
	return append([]Address(nil), e.addrs...), true
}

func (c *cache) put(name string, addrs []Address, ttl time.Duration) {
	if c.maxTTL <= 0 || ttl <= 0 {
		return
	}
	ttl = min(ttl, c.maxTTL)

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.puts++
	if c.puts%sweepEvery == 0 {
		c.sweep(now)
	}
	if _, exists := c.entries[name]; !exists && len(c.entries) >= c.maxEntries {
		c.sweep(now)
		if len(c.entries) >= c.maxEntries {
			for k := range c.entries {
				delete(c.entries, k)
				break
			}
		}
	}
	c.entries[name] = cacheEntry{
		addrs:     append([]Address(nil), addrs...),
		expiresAt: now.Add(ttl),
	}
}

// sweep drops expired entries. c.mu must be held.
func (c *cache) sweep(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}

func (c *cache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
