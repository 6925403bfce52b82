// Package etcdcoord coordinates multiple instances of a core service
// (registry, LB, billing) over etcd: each instance registers a
// lease-backed roster entry and heartbeats it, and one instance per
// service wins a leader election for duties that must run exactly
// once (e.g. the registry's health-probe loop).
package etcdcoord

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"edgemesh/internal/etcd"
)

const (
	rosterPrefix    = "/edgemesh/instances/"
	electionPrefix  = "/edgemesh/leader/"
	defaultLeaseTTL = 15 // seconds
)

// Coordinator manages this process's roster membership and, if asked,
// contends in leader election for one service.
type Coordinator struct {
	client     *etcd.Client
	instanceID string
	logger     *zap.Logger
}

// New builds a Coordinator over an already-dialed etcd client.
func New(client *etcd.Client, instanceID string, logger *zap.Logger) *Coordinator {
	return &Coordinator{client: client, instanceID: instanceID, logger: logger}
}

// Join registers this instance under service's roster with a
// heartbeat lease, and keeps it alive until ctx is cancelled. Call it
// in its own goroutine; it returns when the keepalive channel closes.
func (c *Coordinator) Join(ctx context.Context, service string) error {
	leaseID, err := c.client.GrantLease(ctx, defaultLeaseTTL)
	if err != nil {
		return fmt.Errorf("granting roster lease: %w", err)
	}

	key := rosterPrefix + service + "/" + c.instanceID
	if err := c.client.PutWithLease(ctx, key, time.Now().UTC().Format(time.RFC3339), leaseID); err != nil {
		return fmt.Errorf("registering roster entry: %w", err)
	}

	keepAlive, err := c.client.KeepAlive(ctx, leaseID)
	if err != nil {
		return fmt.Errorf("starting keepalive: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-keepAlive:
			if !ok {
				c.logger.Warn("etcdcoord: keepalive channel closed, roster entry will expire",
					zap.String("service", service), zap.String("instance_id", c.instanceID))
				return nil
			}
		}
	}
}

// Roster lists every live instance id registered for service.
func (c *Coordinator) Roster(ctx context.Context, service string) ([]string, error) {
	entries, err := c.client.GetWithPrefix(ctx, rosterPrefix+service+"/")
	if err != nil {
		return nil, err
	}
	prefix := rosterPrefix + service + "/"
	ids := make([]string, 0, len(entries))
	for k := range entries {
		ids = append(ids, k[len(prefix):])
	}
	return ids, nil
}

// Elected runs onLeader exactly once across every instance contending
// for service's leadership, for as long as this instance holds the
// election campaign. It blocks until ctx is cancelled or onLeader
// returns.
func (c *Coordinator) Elected(ctx context.Context, service string, onLeader func(ctx context.Context)) error {
	session, err := c.client.NewSession(ctx, defaultLeaseTTL)
	if err != nil {
		return fmt.Errorf("creating election session: %w", err)
	}
	defer session.Close()

	election := c.client.NewElection(session, electionPrefix+service)
	if err := election.Campaign(ctx, c.instanceID); err != nil {
		return fmt.Errorf("campaigning for leadership: %w", err)
	}
	defer election.Resign(context.Background())

	c.logger.Info("etcdcoord: elected leader", zap.String("service", service), zap.String("instance_id", c.instanceID))
	onLeader(ctx)
	return nil
}
