package lb

import (
	"sync"
	"time"

	"edgemesh/internal/backend"
)

// FallbackCache holds the last-known-good healthy backend list per
// hostname, consulted only when the live discovery call fails or the
// breaker is open.
type FallbackCache struct {
	mu      sync.Mutex
	entries map[string]fallbackEntry
}

type fallbackEntry struct {
	backends []backend.Backend
	at       time.Time
}

func newFallbackCache() *FallbackCache {
	return &FallbackCache{entries: make(map[string]fallbackEntry)}
}

// Put records the last successful healthy snapshot for hostname.
func (f *FallbackCache) Put(hostname string, backends []backend.Backend) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[hostname] = fallbackEntry{backends: backends, at: time.Now()}
}

// Get returns the cached snapshot for hostname and whether it is
// within freshness of now.
func (f *FallbackCache) Get(hostname string, freshness time.Duration) ([]backend.Backend, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.entries[hostname]
	if !ok {
		return nil, false
	}
	if time.Since(e.at) > freshness {
		return nil, false
	}
	return e.backends, true
}
