// Package registry implements the authoritative backend registry and
// its long-poll watch API: a map of container id to Backend plus
// secondary indices by app hostname and image id, guarded by a single
// mutex, with a monotonic version counter that increments on every
// mutation.
package registry

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"edgemesh/internal/backend"
	"edgemesh/internal/enum"
)

// DefaultMaxWait is the long-poll ceiling when a caller doesn't
// specify one.
const DefaultMaxWait = 60 * time.Second

// DefaultDeregisterCriticalAfter is how long a backend may remain
// critical before it is automatically deregistered.
const DefaultDeregisterCriticalAfter = 60 * time.Second

// Registry holds the live backend set. Zero value is not usable; build
// with New.
type Registry struct {
	deregisterCriticalAfter time.Duration
	logger                  *zap.Logger

	mu            sync.Mutex
	version       uint64
	backends      map[string]backend.Backend
	byAppHostname map[string]map[string]struct{}
	byImageID     map[string]map[string]struct{}

	changed chan struct{} // closed and replaced on every version bump
}

// New builds an empty Registry. deregisterCriticalAfter falls back to
// DefaultDeregisterCriticalAfter when zero.
func New(deregisterCriticalAfter time.Duration, logger *zap.Logger) *Registry {
	if deregisterCriticalAfter <= 0 {
		deregisterCriticalAfter = DefaultDeregisterCriticalAfter
	}
	return &Registry{
		deregisterCriticalAfter: deregisterCriticalAfter,
		logger:                  logger,
		backends:                make(map[string]backend.Backend),
		byAppHostname:           make(map[string]map[string]struct{}),
		byImageID:               make(map[string]map[string]struct{}),
		changed:                 make(chan struct{}),
	}
}

// bump must be called with mu held. It increments the version and
// wakes any blocked watchers.
func (r *Registry) bump() {
	r.version++
	close(r.changed)
	r.changed = make(chan struct{})
}

func (r *Registry) indexInsert(index map[string]map[string]struct{}, key, containerID string) {
	if key == "" {
		return
	}
	set, ok := index[key]
	if !ok {
		set = make(map[string]struct{})
		index[key] = set
	}
	set[containerID] = struct{}{}
}

func (r *Registry) indexRemove(index map[string]map[string]struct{}, key, containerID string) {
	set, ok := index[key]
	if !ok {
		return
	}
	delete(set, containerID)
	if len(set) == 0 {
		delete(index, key)
	}
}

// Register idempotently upserts b keyed by ContainerID: health is
// (re)set to passing and the registration timestamp refreshed. Callers
// are responsible for (re)starting the health probe for this backend.
func (r *Registry) Register(b backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.backends[b.ContainerID]; ok {
		r.indexRemove(r.byAppHostname, existing.Labels.AppHostname, b.ContainerID)
		r.indexRemove(r.byImageID, existing.Labels.ImageID, b.ContainerID)
	}

	b.Health = enum.HealthPassing
	b.ConsecutiveFailures = 0
	b.CriticalSince = time.Time{}
	if b.RegisteredAt.IsZero() {
		b.RegisteredAt = time.Now().UTC()
	}

	r.backends[b.ContainerID] = b
	r.indexInsert(r.byAppHostname, b.Labels.AppHostname, b.ContainerID)
	r.indexInsert(r.byImageID, b.Labels.ImageID, b.ContainerID)
	r.bump()
}

// Deregister removes containerID's record. No-op if absent.
func (r *Registry) Deregister(containerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deregisterLocked(containerID)
}

func (r *Registry) deregisterLocked(containerID string) {
	b, ok := r.backends[containerID]
	if !ok {
		return
	}
	delete(r.backends, containerID)
	r.indexRemove(r.byAppHostname, b.Labels.AppHostname, containerID)
	r.indexRemove(r.byImageID, b.Labels.ImageID, containerID)
	r.bump()
}

// SetHealth applies a probe outcome for containerID. It is a no-op for
// an already-removed backend. Three consecutive non-passing results
// already collapse into "critical" upstream (healthcheck.Prober owns
// the consecutive-failure count); SetHealth tracks how long a backend
// has been continuously critical and deregisters it once that reaches
// deregisterCriticalAfter. A change of health status bumps the version.
func (r *Registry) SetHealth(containerID string, status enum.HealthStatus, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b, ok := r.backends[containerID]
	if !ok {
		return
	}

	if status != enum.HealthCritical {
		changed := b.Health != status
		b.Health = status
		b.CriticalSince = time.Time{}
		r.backends[containerID] = b
		if changed {
			r.bump()
		}
		return
	}

	if b.Health != enum.HealthCritical || b.CriticalSince.IsZero() {
		b.CriticalSince = at
	}
	changed := b.Health != enum.HealthCritical
	b.Health = enum.HealthCritical
	r.backends[containerID] = b

	if at.Sub(b.CriticalSince) >= r.deregisterCriticalAfter {
		r.logger.Info("registry: deregistering backend critical past threshold",
			zap.String("container_id", containerID), zap.Duration("critical_for", at.Sub(b.CriticalSince)))
		r.deregisterLocked(containerID)
		return
	}
	if changed {
		r.bump()
	}
}

// Version returns the current registry version.
func (r *Registry) Version() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version
}

// QueryHealthy returns the current version and the passing backends
// for appHostname. Non-blocking.
func (r *Registry) QueryHealthy(appHostname string) (uint64, []backend.Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version, r.healthyLocked(appHostname)
}

func (r *Registry) healthyLocked(appHostname string) []backend.Backend {
	ids := r.byAppHostname[appHostname]
	out := make([]backend.Backend, 0, len(ids))
	for id := range ids {
		b := r.backends[id]
		if b.Healthy() {
			out = append(out, b.Clone())
		}
	}
	return out
}

// Get returns a single backend by container id.
func (r *Registry) Get(containerID string) (backend.Backend, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[containerID]
	return b, ok
}

// Watch blocks until the registry version exceeds lastVersion or
// maxWait elapses (default DefaultMaxWait), then returns the current
// version and healthy snapshot for appHostname. A lastVersion strictly
// below the current version returns immediately with the current
// snapshot (no blocking on a warm start).
func (r *Registry) Watch(ctx context.Context, appHostname string, lastVersion uint64, maxWait time.Duration) (uint64, []backend.Backend) {
	if maxWait <= 0 {
		maxWait = DefaultMaxWait
	}

	r.mu.Lock()
	if r.version > lastVersion {
		v, snap := r.version, r.healthyLocked(appHostname)
		r.mu.Unlock()
		return v, snap
	}
	waitCh := r.changed
	r.mu.Unlock()

	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-waitCh:
	case <-timer.C:
	case <-ctx.Done():
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	return r.version, r.healthyLocked(appHostname)
}

// Snapshot returns every registered backend, for the admin/debug
// surface.
func (r *Registry) Snapshot() []backend.Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]backend.Backend, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b.Clone())
	}
	return out
}
