// Package backend defines the Backend and BackendSet types shared by
// the service registry and the load balancer core.
package backend

import (
	"time"

	"edgemesh/internal/enum"
)

// Address is a reachable instance's network location. Host is the
// container-host hostname or IP; InternalPort is the advertised
// application port; ExternalPort is the host-mapped port used for
// health probing and actual traffic forwarding, since the registry
// must be able to reach the probe target from outside the container.
type Address struct {
	Host         string
	InternalPort int
	ExternalPort int
}

// Labels carry the metadata a backend is selected and billed by.
type Labels struct {
	ImageID     string
	OwnerUserID string
	AppHostname string
}

// Backend is one running container instance, the unit of load-balanced
// target.
type Backend struct {
	ContainerID string
	Address     Address
	Labels      Labels
	Health      enum.HealthStatus

	// ConsecutiveFailures is reset to zero by the registry on
	// Register; the running count of failed TCP probes (three of which
	// turn a backend critical) is kept by healthcheck.Prober, not here.
	ConsecutiveFailures int

	// CriticalSince is when Health first became critical, used to
	// drive automatic deregistration after DeregisterCriticalAfter.
	CriticalSince time.Time

	RegisteredAt time.Time
}

// Healthy reports whether this backend should be included in routing
// decisions. Only "passing" backends are; any other status excludes it.
func (b Backend) Healthy() bool {
	return b.Health == enum.HealthPassing
}

// Clone returns a value copy, used whenever a snapshot must be handed
// out without letting the caller mutate registry-owned state.
func (b Backend) Clone() Backend {
	return b
}
