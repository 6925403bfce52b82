package eventbus

import (
	"context"

	"go.uber.org/zap"

	"edgemesh/internal/lifecycle"
)

// ConsumerLoop drives one Consumer against a lifecycle.Dispatcher:
// at-least-once delivery, auto-commit on successful handler return,
// malformed/schema-invalid messages logged and committed rather than
// blocking the group, and a blocking poll with a short tick so Stop
// can drain in flight.
type ConsumerLoop struct {
	consumer   Consumer
	dispatcher *lifecycle.Dispatcher
	logger     *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// NewConsumerLoop builds a loop over consumer, dispatching parsed
// events to dispatcher.
func NewConsumerLoop(consumer Consumer, dispatcher *lifecycle.Dispatcher, logger *zap.Logger) *ConsumerLoop {
	return &ConsumerLoop{
		consumer:   consumer,
		dispatcher: dispatcher,
		logger:     logger,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Run polls the consumer until Stop is called or ctx is cancelled.
// Call it in its own goroutine; it returns once the current in-flight
// message (if any) has been handled and acknowledged.
func (l *ConsumerLoop) Run(ctx context.Context) {
	defer close(l.done)

	for {
		select {
		case <-l.stop:
			return
		case <-ctx.Done():
			return
		default:
		}

		msg, err := l.consumer.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.logger.Warn("eventbus: consumer read failed", zap.Error(err))
			continue
		}

		event, parseErr := lifecycle.Parse(msg.Value)
		if parseErr != nil {
			l.logger.Warn("eventbus: dropping malformed message", zap.String("id", msg.ID), zap.Error(parseErr))
			l.ack(ctx, msg)
			continue
		}

		if dispatchErr := l.dispatcher.Dispatch(event); dispatchErr != nil {
			l.logger.Warn("eventbus: handler returned error, committing anyway",
				zap.String("id", msg.ID), zap.String("container_id", event.ContainerID), zap.Error(dispatchErr))
		}
		l.ack(ctx, msg)
	}
}

func (l *ConsumerLoop) ack(ctx context.Context, msg Message) {
	ackCtx := ctx
	if ackCtx.Err() != nil {
		ackCtx = context.Background()
	}
	if err := l.consumer.Ack(ackCtx, msg); err != nil {
		l.logger.Warn("eventbus: ack failed", zap.String("id", msg.ID), zap.Error(err))
	}
}

// Stop signals Run to return after its current message finishes, waits
// for it, then closes the underlying consumer. Stop must be called at
// most once.
func (l *ConsumerLoop) Stop() {
	close(l.stop)
	<-l.done
	_ = l.consumer.Close()
}
