package registry

import (
	"context"
	"time"

	"go.uber.org/zap"

	"edgemesh/internal/backend"
	"edgemesh/internal/dockerhost"
	"edgemesh/internal/enum"
	"edgemesh/internal/healthcheck"
	"edgemesh/internal/lifecycle"
)

// Ingest wires a Registry to the container-lifecycle event stream and
// to the health prober: container.created registers a backend and
// schedules its probe, container.deleted deregisters it and cancels
// the probe, container.started/stopped only affect probe status
// indirectly by leaving the registration untouched (the probe keeps
// running either way; health reflects reality, not the declared
// lifecycle phase).
type Ingest struct {
	registry *Registry
	engine   dockerhost.Host
	prober   *healthcheck.Prober
	logger   *zap.Logger
}

// NewIngest builds an Ingest bound to registry and prober. engine is
// the resolved container host endpoint used to build probe addresses
// for backends published on a wildcard host.
func NewIngest(registry *Registry, engine dockerhost.Host, prober *healthcheck.Prober, logger *zap.Logger) *Ingest {
	return &Ingest{registry: registry, engine: engine, prober: prober, logger: logger}
}

// Dispatcher builds a lifecycle.Dispatcher wired to this ingest's
// handlers, with an unknown-event logger.
func (i *Ingest) Dispatcher() *lifecycle.Dispatcher {
	d := lifecycle.NewDispatcher(i.onCreated, nil, nil, i.onDeleted)
	d.OnUnknown(func(eventType string) {
		i.logger.Warn("registry: unknown lifecycle event type, skipping", zap.String("event", eventType))
	})
	return d
}

func (i *Ingest) onCreated(e lifecycle.Event) error {
	b := backend.Backend{
		ContainerID: e.ContainerID,
		Address: backend.Address{
			Host:         e.ContainerIP,
			InternalPort: e.InternalPort,
			ExternalPort: e.ExternalPort,
		},
		Labels: backend.Labels{
			ImageID:     e.ImageID,
			OwnerUserID: e.UserID,
			AppHostname: e.AppHostname,
		},
	}

	i.registry.Register(b)

	addr := dockerhost.ProbeAddress(i.engine, e.ContainerIP, e.ExternalPort)
	i.prober.Upsert(healthcheck.Target{ContainerID: e.ContainerID, Address: addr})

	i.logger.Info("registry: backend registered",
		zap.String("container_id", e.ContainerID), zap.String("app_hostname", e.AppHostname), zap.String("probe_address", addr))
	return nil
}

func (i *Ingest) onDeleted(e lifecycle.Event) error {
	i.prober.Remove(e.ContainerID)
	i.registry.Deregister(e.ContainerID)
	i.logger.Info("registry: backend deregistered", zap.String("container_id", e.ContainerID))
	return nil
}

// ReportHealth implements healthcheck.Sink, applying a probe result to
// the registry.
func (i *Ingest) ReportHealth(ctx context.Context, result healthcheck.Result) {
	status := result.Status
	if status == "" {
		status = enum.HealthWarning
	}
	i.registry.SetHealth(result.ContainerID, status, time.Now().UTC())
}
