// Package healthcheck runs a TCP active health probe against every
// registered backend: dial on an interval, track consecutive
// failures, and flip status at the passing/critical thresholds.
// Targets are polled on a ticker and every probe result (not only
// status changes) is reported to a sink rather than mutating shared
// state directly.
package healthcheck

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"edgemesh/internal/enum"
)

const (
	// DefaultInterval is how often each backend is probed.
	DefaultInterval = 10 * time.Second
	// DefaultTimeout bounds a single dial attempt.
	DefaultTimeout = 2 * time.Second
	// DefaultCriticalThreshold is the number of consecutive failures
	// before a backend flips to critical.
	DefaultCriticalThreshold = 3
)

// Dialer opens a TCP connection; exists so tests can substitute a fake
// without binding real sockets.
type Dialer interface {
	DialTimeout(network, address string, timeout time.Duration) (net.Conn, error)
}

type netDialer struct{}

func (netDialer) DialTimeout(network, address string, timeout time.Duration) (net.Conn, error) {
	return net.DialTimeout(network, address, timeout)
}

// Result is one probe outcome delivered to a Sink.
type Result struct {
	ContainerID string
	Status      enum.HealthStatus
	Err         error
}

// Sink receives probe results. Implemented by the registry to apply
// setHealth transitions.
type Sink interface {
	ReportHealth(ctx context.Context, result Result)
}

// Target is one backend to keep probing until removed.
type Target struct {
	ContainerID string
	Address     string // host:port
}

// Prober runs TCP probes against a dynamic set of targets on its own
// ticker, independent from registration churn.
type Prober struct {
	dialer             Dialer
	interval           time.Duration
	timeout            time.Duration
	criticalThreshold  int
	logger             *zap.Logger
	sink               Sink

	mu       chan struct{} // binary semaphore guarding targets/failures
	targets  map[string]Target
	failures map[string]int
}

// NewProber builds a Prober reporting to sink. interval/timeout/
// criticalThreshold fall back to the package defaults when zero.
func NewProber(sink Sink, interval, timeout time.Duration, criticalThreshold int, logger *zap.Logger) *Prober {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if criticalThreshold <= 0 {
		criticalThreshold = DefaultCriticalThreshold
	}
	p := &Prober{
		dialer:            netDialer{},
		interval:          interval,
		timeout:           timeout,
		criticalThreshold: criticalThreshold,
		logger:            logger,
		sink:              sink,
		mu:                make(chan struct{}, 1),
		targets:           make(map[string]Target),
		failures:          make(map[string]int),
	}
	p.mu <- struct{}{}
	return p
}

// WithDialer overrides the dialer, for tests.
func (p *Prober) WithDialer(d Dialer) *Prober {
	p.dialer = d
	return p
}

// Upsert adds or updates the probe target for a container.
func (p *Prober) Upsert(t Target) {
	<-p.mu
	p.targets[t.ContainerID] = t
	p.mu <- struct{}{}
}

// Remove stops probing a container and clears its failure count.
func (p *Prober) Remove(containerID string) {
	<-p.mu
	delete(p.targets, containerID)
	delete(p.failures, containerID)
	p.mu <- struct{}{}
}

// Run probes every target once per interval until ctx is cancelled.
func (p *Prober) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	<-p.mu
	snapshot := make([]Target, 0, len(p.targets))
	for _, t := range p.targets {
		snapshot = append(snapshot, t)
	}
	p.mu <- struct{}{}

	for _, t := range snapshot {
		p.probeOne(ctx, t)
	}
}

func (p *Prober) probeOne(ctx context.Context, t Target) {
	conn, err := p.dialer.DialTimeout("tcp", t.Address, p.timeout)
	if err == nil {
		conn.Close()
	}

	<-p.mu
	if _, ok := p.targets[t.ContainerID]; !ok {
		p.mu <- struct{}{}
		return
	}
	var status enum.HealthStatus
	if err == nil {
		p.failures[t.ContainerID] = 0
		status = enum.HealthPassing
	} else {
		p.failures[t.ContainerID]++
		if p.failures[t.ContainerID] >= p.criticalThreshold {
			status = enum.HealthCritical
		} else {
			status = enum.HealthWarning
		}
	}
	p.mu <- struct{}{}

	p.logger.Debug("healthcheck: probe complete",
		zap.String("container_id", t.ContainerID),
		zap.String("address", t.Address),
		zap.String("status", string(status)),
		zap.Error(err))

	p.sink.ReportHealth(ctx, Result{ContainerID: t.ContainerID, Status: status, Err: err})
}
