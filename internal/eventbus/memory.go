package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryBus implements Bus entirely in-process: an ordered log per
// topic, with an independent read offset per consumer group. Useful
// for single-instance deployments and tests.
type MemoryBus struct {
	mu     sync.Mutex
	topics map[string]*memoryTopic
	closed bool
}

type memoryTopic struct {
	log    []Message
	groups map[string]*memoryGroupState
}

type memoryGroupState struct {
	offset  int // next unread index into log
	waiters []chan struct{}
}

// NewMemoryBus creates a new in-memory event bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{topics: make(map[string]*memoryTopic)}
}

func (b *MemoryBus) topic(name string) *memoryTopic {
	t, ok := b.topics[name]
	if !ok {
		t = &memoryTopic{groups: make(map[string]*memoryGroupState)}
		b.topics[name] = t
	}
	return t
}

// Publish appends value to the topic's in-memory log and wakes any
// consumers currently blocked waiting for new entries.
func (b *MemoryBus) Publish(ctx context.Context, topicName, key string, value []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("eventbus: closed")
	}

	t := b.topic(topicName)
	id := fmt.Sprintf("%d-0", len(t.log)+1)
	t.log = append(t.log, Message{ID: id, Key: key, Value: value})

	for _, g := range t.groups {
		for _, w := range g.waiters {
			close(w)
		}
		g.waiters = nil
	}
	return nil
}

// Subscribe returns a Consumer tracking its own offset into the
// topic's log, starting at the beginning (earliest) the first time a
// group is seen.
func (b *MemoryBus) Subscribe(ctx context.Context, topicName, group, consumerName string) (Consumer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	t := b.topic(topicName)
	if _, ok := t.groups[group]; !ok {
		t.groups[group] = &memoryGroupState{}
	}

	return &memoryConsumer{bus: b, topic: topicName, group: group}, nil
}

// Close marks the bus closed; further Publish calls fail.
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type memoryConsumer struct {
	bus   *MemoryBus
	topic string
	group string
}

// Next returns the next unread message for this consumer's group,
// waiting (subject to ctx cancellation, with a 1s re-check tick) for
// one to be published if the log is caught up.
func (c *memoryConsumer) Next(ctx context.Context) (Message, error) {
	for {
		c.bus.mu.Lock()
		t := c.bus.topic(c.topic)
		g := t.groups[c.group]
		if g.offset < len(t.log) {
			msg := t.log[g.offset]
			g.offset++
			c.bus.mu.Unlock()
			return msg, nil
		}
		wait := make(chan struct{})
		g.waiters = append(g.waiters, wait)
		c.bus.mu.Unlock()

		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		case <-wait:
		case <-time.After(time.Second):
		}
	}
}

// Ack is a no-op: MemoryBus commits the offset eagerly in Next, since
// there is no separate durable store to lag behind it.
func (c *memoryConsumer) Ack(ctx context.Context, msg Message) error {
	return nil
}

// Close is a no-op; the consumer holds no resources of its own.
func (c *memoryConsumer) Close() error {
	return nil
}
