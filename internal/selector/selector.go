// Package selector chooses one backend among several healthy
// candidates for a given app hostname, as a pluggable selection
// strategy (round-robin by default).
package selector

import (
	"sync"

	"edgemesh/internal/backend"
	"edgemesh/internal/enum"
)

// Selector picks one backend from candidates. An empty candidate list
// yields an enum.ErrNoCapacity error.
type Selector interface {
	Select(appHostname string, candidates []backend.Backend) (backend.Backend, error)
}

// RoundRobin cycles through candidates per app hostname, keeping a
// separate cursor for each so one hostname's traffic pattern doesn't
// skew another's.
type RoundRobin struct {
	mu      sync.Mutex
	cursors map[string]int
}

// NewRoundRobin builds a ready-to-use round-robin selector.
func NewRoundRobin() *RoundRobin {
	return &RoundRobin{cursors: make(map[string]int)}
}

// Select returns the next candidate in rotation for appHostname.
func (r *RoundRobin) Select(appHostname string, candidates []backend.Backend) (backend.Backend, error) {
	if len(candidates) == 0 {
		return backend.Backend{}, enum.NewError(enum.ErrNoCapacity, "no healthy candidates for "+appHostname)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx := r.cursors[appHostname] % len(candidates)
	r.cursors[appHostname] = (idx + 1) % len(candidates)
	return candidates[idx], nil
}

// Random picks an unweighted random candidate using a supplied index
// function, kept separate from math/rand so callers control the
// entropy source and tests stay deterministic.
type Random struct {
	Intn func(n int) int
}

// Select returns candidates[Intn(len(candidates))].
func (r Random) Select(appHostname string, candidates []backend.Backend) (backend.Backend, error) {
	if len(candidates) == 0 {
		return backend.Backend{}, enum.NewError(enum.ErrNoCapacity, "no healthy candidates for "+appHostname)
	}
	return candidates[r.Intn(len(candidates))], nil
}
