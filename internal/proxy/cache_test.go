package proxy

import (
	"testing"
	"time"
)

func TestRoutingCacheMissOnEmpty(t *testing.T) {
	c := NewRoutingCache()
	if _, ok := c.Get("demo", "1.2.3.4"); ok {
		t.Fatal("expected miss on empty cache")
	}
}

func TestRoutingCachePutThenGet(t *testing.T) {
	c := NewRoutingCache()
	c.Put("demo", "1.2.3.4", CacheEntry{TargetHost: "10.0.0.5", TargetPort: 30001}, time.Minute)

	entry, ok := c.Get("demo", "1.2.3.4")
	if !ok || entry.TargetHost != "10.0.0.5" {
		t.Fatalf("got %+v ok=%v", entry, ok)
	}
}

func TestRoutingCacheExpiresExactlyAtExpiry(t *testing.T) {
	c := NewRoutingCache()
	fixedNow := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixedNow }
	c.Put("demo", "1.2.3.4", CacheEntry{TargetHost: "10.0.0.5"}, time.Minute)

	c.now = func() time.Time { return fixedNow.Add(time.Minute) }
	if _, ok := c.Get("demo", "1.2.3.4"); ok {
		t.Fatal("expected entry exactly at expiry to be treated as expired")
	}
}

func TestRoutingCacheInvalidateRemovesEntry(t *testing.T) {
	c := NewRoutingCache()
	c.Put("demo", "1.2.3.4", CacheEntry{TargetHost: "10.0.0.5"}, time.Minute)
	c.Invalidate("demo", "1.2.3.4")

	if _, ok := c.Get("demo", "1.2.3.4"); ok {
		t.Fatal("expected entry removed after invalidate")
	}
}

func TestRoutingCacheKeysAreIndependentPerClientIP(t *testing.T) {
	c := NewRoutingCache()
	c.Put("demo", "1.2.3.4", CacheEntry{TargetHost: "10.0.0.5"}, time.Minute)

	if _, ok := c.Get("demo", "5.6.7.8"); ok {
		t.Fatal("expected different client IP to miss")
	}
}
