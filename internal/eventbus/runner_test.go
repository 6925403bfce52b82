package eventbus

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"edgemesh/internal/enum"
	"edgemesh/internal/lifecycle"
)

func TestConsumerLoopDispatchesAndAcks(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	if err := bus.Publish(ctx, "container-lifecycle", "c1",
		[]byte(`{"event":"container.created","container_id":"c1"}`)); err != nil {
		t.Fatal(err)
	}
	// Poison message: must not block the group.
	if err := bus.Publish(ctx, "container-lifecycle", "c1", []byte(`not json`)); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, "container-lifecycle", "c2",
		[]byte(`{"event":"container.deleted","container_id":"c2"}`)); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	var seen []string
	dispatcher := lifecycle.NewDispatcher(
		func(e lifecycle.Event) error {
			mu.Lock()
			seen = append(seen, "created:"+e.ContainerID)
			mu.Unlock()
			return nil
		},
		nil, nil,
		func(e lifecycle.Event) error {
			mu.Lock()
			seen = append(seen, "deleted:"+e.ContainerID)
			mu.Unlock()
			return nil
		},
	)

	consumer, err := bus.Subscribe(ctx, "container-lifecycle", "registry", "registry-1")
	if err != nil {
		t.Fatal(err)
	}

	loop := NewConsumerLoop(consumer, dispatcher, zaptest.NewLogger(t))
	runCtx, cancel := context.WithCancel(ctx)
	go loop.Run(runCtx)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(seen)
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for dispatch")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	loop.Stop()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != "created:c1" || seen[1] != "deleted:c2" {
		t.Errorf("unexpected dispatch order/content: %v", seen)
	}
}

func TestConsumerLoopUnknownEventTypeLogsAndSkips(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	if err := bus.Publish(ctx, "t", "c1", []byte(`{"event":"container.migrated","container_id":"c1"}`)); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, "t", "c1", []byte(`{"event":"container.created","container_id":"c1"}`)); err != nil {
		t.Fatal(err)
	}

	var gotCreated bool
	var unknownKind enum.EventType
	dispatcher := lifecycle.NewDispatcher(
		func(e lifecycle.Event) error { gotCreated = true; return nil },
		nil, nil, nil,
	)
	dispatcher.OnUnknown(func(et string) { unknownKind = enum.EventType(et) })

	consumer, _ := bus.Subscribe(ctx, "t", "group", "1")
	loop := NewConsumerLoop(consumer, dispatcher, zaptest.NewLogger(t))

	runCtx, cancel := context.WithCancel(ctx)
	go loop.Run(runCtx)

	deadline := time.After(2 * time.Second)
	for !gotCreated {
		select {
		case <-deadline:
			t.Fatal("timed out")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	loop.Stop()

	if unknownKind != "container.migrated" {
		t.Errorf("expected unknown callback for container.migrated, got %q", unknownKind)
	}
}
