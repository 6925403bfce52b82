// Package lifecycle defines the container lifecycle event schema
// consumed from the event bus and the dispatch-table pattern used to
// route an event to its handler.
package lifecycle

import (
	"encoding/json"
	"time"

	"edgemesh/internal/enum"
)

// Event is one container lifecycle event as published on the
// "container-lifecycle" topic. Ordering per ContainerID is preserved by
// the publisher's partition key.
type Event struct {
	Type          enum.EventType `json:"event"`
	ContainerID   string         `json:"container_id"`
	ContainerName string         `json:"container_name"`
	ContainerIP   string         `json:"container_ip"`
	ImageID       string         `json:"image_id"`
	InternalPort  int            `json:"internal_port"`
	ExternalPort  int            `json:"external_port"`
	AppHostname   string         `json:"app_hostname"`
	UserID        string         `json:"user_id,omitempty"`
	Timestamp     *time.Time     `json:"timestamp,omitempty"`
}

// TimestampOrNow returns Timestamp if set (coerced to UTC), else now in
// UTC. Billing and registry both substitute "now" for a missing
// timestamp.
func (e Event) TimestampOrNow(now func() time.Time) time.Time {
	if e.Timestamp != nil {
		return e.Timestamp.UTC()
	}
	return now().UTC()
}

// Parse decodes a raw JSON event-bus message into an Event. Malformed
// payloads return a *enum.KindedError tagged ErrParse; the caller (the
// event bus consumer loop) logs and skips rather than propagating.
func Parse(raw []byte) (Event, error) {
	var e Event
	if err := json.Unmarshal(raw, &e); err != nil {
		return Event{}, enum.Wrap(enum.ErrParse, "malformed lifecycle event", err)
	}
	return e, nil
}

// Handler processes one event. Handlers are short and synchronous;
// they return an error only for logging purposes — the event bus
// consumer always commits the offset (at-least-once, poison messages
// must not block the group).
type Handler func(e Event) error

// Dispatcher maps event type to handler: a closed finite-enum dispatch
// table in place of an open plugin registry.
type Dispatcher struct {
	handlers map[enum.EventType]Handler
	unknown  func(eventType string)
}

// NewDispatcher builds a Dispatcher with the table:
// container.created -> onCreated, started -> onStarted,
// stopped -> onStopped, deleted -> onDeleted. Any of the four handlers
// may be nil, in which case that event type is a no-op.
func NewDispatcher(onCreated, onStarted, onStopped, onDeleted Handler) *Dispatcher {
	d := &Dispatcher{handlers: make(map[enum.EventType]Handler, 4)}
	if onCreated != nil {
		d.handlers[enum.EventContainerCreated] = onCreated
	}
	if onStarted != nil {
		d.handlers[enum.EventContainerStarted] = onStarted
	}
	if onStopped != nil {
		d.handlers[enum.EventContainerStopped] = onStopped
	}
	if onDeleted != nil {
		d.handlers[enum.EventContainerDeleted] = onDeleted
	}
	return d
}

// OnUnknown registers a callback invoked for event types outside the
// closed set (logged and skipped).
func (d *Dispatcher) OnUnknown(f func(eventType string)) {
	d.unknown = f
}

// Dispatch routes e to its handler. It returns nil for unknown event
// types after invoking the unknown callback, matching "unknown events
// are logged and skipped" rather than treated as an error.
func (d *Dispatcher) Dispatch(e Event) error {
	h, ok := d.handlers[e.Type]
	if !ok {
		if d.unknown != nil {
			d.unknown(string(e.Type))
		}
		return nil
	}
	return h(e)
}
