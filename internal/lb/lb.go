// Package lb implements the load balancer selection core: routing a
// hostname resolves healthy backends from the service registry behind
// a circuit breaker, selects one via a pluggable Selector, and falls
// back to a stale snapshot cache when the registry call fails or the
// breaker is open.
package lb

import (
	"context"
	"time"

	"go.uber.org/zap"

	"edgemesh/internal/apphost"
	"edgemesh/internal/backend"
	"edgemesh/internal/circuitbreaker"
	"edgemesh/internal/enum"
	"edgemesh/internal/selector"
)

// DefaultRoutingTTL is the TTL handed to the edge router's cache
// entries.
const DefaultRoutingTTL = 1800 * time.Second

// DefaultFallbackFreshness bounds how old a FallbackCache entry may be
// before it is considered stale: 5x a 60s default watch wait gives
// 300s.
const DefaultFallbackFreshness = 300 * time.Second

// RoutingInfo is the LB's answer for a routable hostname.
type RoutingInfo struct {
	TargetHost  string
	TargetPort  int
	ContainerID string
	ImageID     string
	TTL         time.Duration
}

// Discovery resolves the healthy backend set for a hostname, normally
// an HTTP client against the registry's Consul-shaped watch endpoint.
type Discovery interface {
	QueryHealthy(ctx context.Context, appHostname string) ([]backend.Backend, error)
}

// Core is the load balancer's routing engine.
type Core struct {
	discovery         Discovery
	breakers          *circuitbreaker.Arena
	sel               selector.Selector
	fallback          *FallbackCache
	fallbackFreshness time.Duration
	routingTTL        time.Duration
	logger            *zap.Logger
}

// New builds a Core. A nil sel defaults to round-robin. Zero
// durations fall back to package defaults.
func New(discovery Discovery, breakers *circuitbreaker.Arena, sel selector.Selector, routingTTL, fallbackFreshness time.Duration, logger *zap.Logger) *Core {
	if sel == nil {
		sel = selector.NewRoundRobin()
	}
	if routingTTL <= 0 {
		routingTTL = DefaultRoutingTTL
	}
	if fallbackFreshness <= 0 {
		fallbackFreshness = DefaultFallbackFreshness
	}
	return &Core{
		discovery:         discovery,
		breakers:          breakers,
		sel:               sel,
		fallback:          newFallbackCache(),
		fallbackFreshness: fallbackFreshness,
		routingTTL:        routingTTL,
		logger:            logger,
	}
}

// Route resolves appHostname to a RoutingInfo.
func (c *Core) Route(ctx context.Context, rawHostname string) (RoutingInfo, error) {
	hostname, err := apphost.Validate(rawHostname)
	if err != nil {
		return RoutingInfo{}, err
	}

	result, breakerErr := c.breakers.Execute(hostname, func() (interface{}, error) {
		return c.discovery.QueryHealthy(ctx, hostname)
	})

	if breakerErr == nil {
		backends := result.([]backend.Backend)
		c.fallback.Put(hostname, backends)
		return c.pick(hostname, backends)
	}

	c.logger.Warn("lb: discovery call failed, consulting fallback cache",
		zap.String("app_hostname", hostname), zap.Error(breakerErr))

	snapshot, fresh := c.fallback.Get(hostname, c.fallbackFreshness)
	if !fresh {
		return RoutingInfo{}, classify(breakerErr)
	}
	return c.pick(hostname, snapshot)
}

func (c *Core) pick(hostname string, backends []backend.Backend) (RoutingInfo, error) {
	chosen, err := c.sel.Select(hostname, backends)
	if err != nil {
		return RoutingInfo{}, err
	}
	return RoutingInfo{
		TargetHost:  chosen.Address.Host,
		TargetPort:  chosen.Address.ExternalPort,
		ContainerID: chosen.ContainerID,
		ImageID:     chosen.Labels.ImageID,
		TTL:         c.routingTTL,
	}, nil
}

// classify maps a discovery-path error to the LB error taxonomy when
// no fallback is available.
func classify(err error) error {
	switch enum.KindOf(err) {
	case enum.ErrCircuitOpen, enum.ErrTimeout, enum.ErrTransport:
		return err
	default:
		return enum.Wrap(enum.ErrUnavailable, "discovery unavailable and no fresh fallback", err)
	}
}
