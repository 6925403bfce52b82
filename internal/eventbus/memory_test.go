package eventbus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBusOrderingPerKey(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	if err := bus.Publish(ctx, "t", "c1", []byte("1")); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, "t", "c1", []byte("2")); err != nil {
		t.Fatal(err)
	}
	if err := bus.Publish(ctx, "t", "c2", []byte("3")); err != nil {
		t.Fatal(err)
	}

	consumer, err := bus.Subscribe(ctx, "t", "group-a", "consumer-1")
	if err != nil {
		t.Fatal(err)
	}
	defer consumer.Close()

	for _, want := range []string{"1", "2", "3"} {
		msg, err := consumer.Next(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if string(msg.Value) != want {
			t.Errorf("got %q, want %q", msg.Value, want)
		}
	}
}

func TestMemoryBusIndependentGroups(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	if err := bus.Publish(ctx, "t", "c1", []byte("x")); err != nil {
		t.Fatal(err)
	}

	consA, _ := bus.Subscribe(ctx, "t", "group-a", "1")
	consB, _ := bus.Subscribe(ctx, "t", "group-b", "1")

	msgA, err := consA.Next(ctx)
	if err != nil || string(msgA.Value) != "x" {
		t.Fatalf("group-a: got %+v err %v", msgA, err)
	}
	msgB, err := consB.Next(ctx)
	if err != nil || string(msgB.Value) != "x" {
		t.Fatalf("group-b: got %+v err %v", msgB, err)
	}
}

func TestMemoryBusBlocksUntilPublish(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx := context.Background()

	consumer, _ := bus.Subscribe(ctx, "t", "group", "1")
	defer consumer.Close()

	result := make(chan Message, 1)
	go func() {
		msg, err := consumer.Next(ctx)
		if err == nil {
			result <- msg
		}
	}()

	time.Sleep(20 * time.Millisecond)
	if err := bus.Publish(ctx, "t", "c1", []byte("late")); err != nil {
		t.Fatal(err)
	}

	select {
	case msg := <-result:
		if string(msg.Value) != "late" {
			t.Errorf("got %q, want late", msg.Value)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMemoryBusNextCancelled(t *testing.T) {
	bus := NewMemoryBus()
	defer bus.Close()
	ctx, cancel := context.WithCancel(context.Background())

	consumer, _ := bus.Subscribe(context.Background(), "t", "group", "1")
	defer consumer.Close()

	cancel()
	if _, err := consumer.Next(ctx); err == nil {
		t.Fatal("expected error after context cancellation")
	}
}
