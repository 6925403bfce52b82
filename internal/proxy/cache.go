// Package proxy implements the edge router: per-client routing cache,
// LB query on miss, reverse-proxy forwarding, failure invalidation,
// and metrics recording.
package proxy

import (
	"sync"
	"time"
)

// CacheEntry is a cached routing decision for one (app hostname,
// client IP) pair.
type CacheEntry struct {
	TargetHost  string
	TargetPort  int
	ContainerID string
	ImageID     string
	expiresAt   time.Time
}

type cacheKey struct {
	appHostname string
	clientIP    string
}

// RoutingCache is the edge router's in-process routing cache, a single
// mutex guarding a map with expiry checked on read.
type RoutingCache struct {
	mu      sync.Mutex
	entries map[cacheKey]CacheEntry
	now     func() time.Time
}

// NewRoutingCache builds an empty cache.
func NewRoutingCache() *RoutingCache {
	return &RoutingCache{
		entries: make(map[cacheKey]CacheEntry),
		now:     time.Now,
	}
}

// Get returns the cached entry for (appHostname, clientIP) if present
// and not expired. An entry read exactly at its expiry is treated as
// expired: every read requires now < expiry.
func (c *RoutingCache) Get(appHostname, clientIP string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := cacheKey{appHostname, clientIP}
	entry, ok := c.entries[key]
	if !ok {
		return CacheEntry{}, false
	}
	if !c.now().Before(entry.expiresAt) {
		delete(c.entries, key)
		return CacheEntry{}, false
	}
	return entry, true
}

// Put inserts or replaces the entry for (appHostname, clientIP) with
// the given TTL.
func (c *RoutingCache) Put(appHostname, clientIP string, entry CacheEntry, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry.expiresAt = c.now().Add(ttl)
	c.entries[cacheKey{appHostname, clientIP}] = entry
}

// Invalidate removes the entry for (appHostname, clientIP), if any —
// called on backend failure so the next request re-resolves routing.
func (c *RoutingCache) Invalidate(appHostname, clientIP string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, cacheKey{appHostname, clientIP})
}
