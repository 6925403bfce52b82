package eventbus

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisBus implements Bus on Redis Streams: XADD for publish,
// consumer-group XREADGROUP/XACK for subscribe, giving durable
// at-least-once delivery per consumer group rather than the
// fire-and-forget fan-out of plain channel PUBLISH.
type RedisBus struct {
	client *redis.Client
}

// NewRedisBus creates a new Redis Streams-backed event bus.
func NewRedisBus(client *redis.Client) *RedisBus {
	return &RedisBus{client: client}
}

// streamKey maps a topic name onto the Redis key holding its stream.
func streamKey(topic string) string {
	return "stream:" + topic
}

// Publish appends an entry to the topic's stream. The partition key is
// stored as a field so a multi-partition implementation could shard on
// it later; a single Redis stream already preserves total order, which
// subsumes per-key ordering.
func (b *RedisBus) Publish(ctx context.Context, topic, key string, value []byte) error {
	return b.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamKey(topic),
		Values: map[string]interface{}{
			"key":   key,
			"value": value,
		},
	}).Err()
}

// Subscribe creates the consumer group if absent (auto-offset-reset =
// earliest: MKSTREAM + start "0") and returns a Consumer reading from
// it.
func (b *RedisBus) Subscribe(ctx context.Context, topic, group, consumerName string) (Consumer, error) {
	stream := streamKey(topic)

	err := b.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		// BUSYGROUP means the group already exists, which is fine.
		if !isBusyGroupErr(err) {
			return nil, err
		}
	}

	return &redisConsumer{
		client:   b.client,
		stream:   stream,
		group:    group,
		consumer: consumerName,
	}, nil
}

// Close closes the underlying Redis client.
func (b *RedisBus) Close() error {
	return b.client.Close()
}

func isBusyGroupErr(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}

type redisConsumer struct {
	client   *redis.Client
	stream   string
	group    string
	consumer string
}

// Next reads one new message for this group, blocking up to 1s per
// poll tick.
func (c *redisConsumer) Next(ctx context.Context) (Message, error) {
	for {
		select {
		case <-ctx.Done():
			return Message{}, ctx.Err()
		default:
		}

		res, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    c.group,
			Consumer: c.consumer,
			Streams:  []string{c.stream, ">"},
			Count:    1,
			Block:    time.Second,
		}).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return Message{}, ctx.Err()
			}
			return Message{}, err
		}

		for _, s := range res {
			for _, m := range s.Messages {
				return toMessage(m), nil
			}
		}
	}
}

func toMessage(m redis.XMessage) Message {
	var key string
	var value []byte
	if k, ok := m.Values["key"].(string); ok {
		key = k
	}
	switch v := m.Values["value"].(type) {
	case string:
		value = []byte(v)
	case []byte:
		value = v
	}
	return Message{ID: m.ID, Key: key, Value: value}
}

// Ack acknowledges the message, committing the group's offset past it.
func (c *redisConsumer) Ack(ctx context.Context, msg Message) error {
	return c.client.XAck(ctx, c.stream, c.group, msg.ID).Err()
}

// Close is a no-op: the underlying Redis client is shared and owned by
// the Bus, not the individual consumer.
func (c *redisConsumer) Close() error {
	return nil
}
