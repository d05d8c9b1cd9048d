package queue

import (
	"context"
)

// Publisher publishes tracking events to the broker.
type Publisher interface {
	PublishOpen(ctx context.Context, event OpenEvent) error
	Close() error
}

const (
	// EventsExchange is the topic exchange all tracking events go through.
	EventsExchange = "tracking.events"
	// OpenedRoutingKey routes open events.
	OpenedRoutingKey = "tracking.opened"
	// OpenedQueue is the durable queue bound to OpenedRoutingKey for
	// downstream consumers.
	OpenedQueue = "tracking.opened"
)
