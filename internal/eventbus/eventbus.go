// Package eventbus abstracts the ordered, partitioned event stream that
// the registry and billing ledger both consume: a durable,
// consumer-group log where messages are retained until acknowledged,
// each consumer group sees every message at least once, and delivery
// order within a topic is preserved.
package eventbus

import "context"

// Message is one event-bus entry delivered to a consumer.
type Message struct {
	// ID is the bus-assigned offset/entry id, opaque to callers.
	ID string
	// Key is the partition/ordering key (container id for the
	// container-lifecycle topic); same-key messages are delivered in
	// publish order.
	Key   string
	Value []byte
}

// Bus is the event-bus abstraction. Implementations must be safe for
// concurrent use.
type Bus interface {
	// Publish appends value to topic under the given partition key.
	Publish(ctx context.Context, topic, key string, value []byte) error

	// Subscribe returns a Consumer bound to (topic, group). Two
	// subscribers with the same group share delivery (each message
	// goes to exactly one of them, at-least-once); subscribers with
	// different groups each see every message independently — the
	// same fan-out semantics a Kafka consumer group gives.
	Subscribe(ctx context.Context, topic, group, consumerName string) (Consumer, error)

	// Close releases all resources held by the bus client.
	Close() error
}

// Consumer reads and acknowledges messages from one (topic, group).
type Consumer interface {
	// Next blocks (up to an implementation-defined tick, default 1s)
	// until a message is available or ctx is cancelled. It returns
	// (Message{}, ctx.Err()) on cancellation.
	Next(ctx context.Context) (Message, error)

	// Ack commits the message's offset for this consumer group.
	// Auto-commit happens on successful handler return; a poison
	// message is still Ack'd after being logged so it does not block
	// the group.
	Ack(ctx context.Context, msg Message) error

	// Close stops the consumer and releases its resources.
	Close() error
}
