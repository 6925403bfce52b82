package lb

import (
	"testing"
	"time"

	"edgemesh/internal/backend"
)

func TestFallbackCacheGetMissingIsNotFresh(t *testing.T) {
	f := newFallbackCache()
	if _, fresh := f.Get("demo", time.Minute); fresh {
		t.Fatal("expected miss to be not fresh")
	}
}

func TestFallbackCachePutThenGetFresh(t *testing.T) {
	f := newFallbackCache()
	backends := []backend.Backend{{ContainerID: "c1"}}
	f.Put("demo", backends)

	got, fresh := f.Get("demo", time.Minute)
	if !fresh || len(got) != 1 || got[0].ContainerID != "c1" {
		t.Fatalf("got %v fresh=%v", got, fresh)
	}
}

func TestFallbackCacheExpiresPastFreshness(t *testing.T) {
	f := newFallbackCache()
	f.Put("demo", []backend.Backend{{ContainerID: "c1"}})

	time.Sleep(15 * time.Millisecond)
	if _, fresh := f.Get("demo", 5*time.Millisecond); fresh {
		t.Fatal("expected entry to be stale")
	}
}
