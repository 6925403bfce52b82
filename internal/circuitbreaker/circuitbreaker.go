// Package circuitbreaker maintains one sony/gobreaker circuit breaker
// per key (closed/open/half-open, default 3-failure threshold, 15s
// reset timeout) behind a small arena keyed by a caller-chosen string
// (the load balancer core uses the app hostname), so the load balancer
// core can look one up without wiring breaker construction into its
// hot path.
package circuitbreaker

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"edgemesh/internal/enum"
)

const (
	// DefaultFailureThreshold is consecutive failures before a target
	// trips open.
	DefaultFailureThreshold = 3
	// DefaultResetTimeout is how long a tripped breaker stays open
	// before allowing a half-open probe.
	DefaultResetTimeout = 15 * time.Second
)

// Arena lazily creates and caches one breaker per key (the LB core
// keys it by normalized app hostname).
type Arena struct {
	failureThreshold uint32
	resetTimeout     time.Duration

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewArena builds an Arena. A zero failureThreshold or resetTimeout
// falls back to the package defaults.
func NewArena(failureThreshold uint32, resetTimeout time.Duration) *Arena {
	if failureThreshold == 0 {
		failureThreshold = DefaultFailureThreshold
	}
	if resetTimeout <= 0 {
		resetTimeout = DefaultResetTimeout
	}
	return &Arena{
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		breakers:         make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the breaker for key, creating it closed on first use.
func (a *Arena) Get(key string) *gobreaker.CircuitBreaker {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b, ok := a.breakers[key]; ok {
		return b
	}

	settings := gobreaker.Settings{
		Name:        key,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     a.resetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= a.failureThreshold
		},
	}
	b := gobreaker.NewCircuitBreaker(settings)
	a.breakers[key] = b
	return b
}

// State reports the current state of key's breaker without creating
// one if absent, for admin/debug snapshots.
func (a *Arena) State(key string) (gobreaker.State, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	b, ok := a.breakers[key]
	if !ok {
		return 0, false
	}
	return b.State(), true
}

// Remove drops a breaker from the arena, e.g. when a target is
// deregistered and should not linger with stale counts.
func (a *Arena) Remove(key string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.breakers, key)
}

// Execute runs fn through key's breaker. An open or saturated
// half-open breaker yields an enum.ErrCircuitOpen error without
// calling fn; any other error from fn is returned as-is so the caller
// can classify it.
func (a *Arena) Execute(key string, fn func() (interface{}, error)) (interface{}, error) {
	result, err := a.Get(key).Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, enum.Wrap(enum.ErrCircuitOpen, "circuit open for "+key, err)
	}
	return result, err
}
