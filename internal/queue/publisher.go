package queue

import (
	"context"
	"encoding/json"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

// RabbitMQPublisher publishes open events on the broker's shared channel.
// PublishOpen blocks for as long as ctx allows while the broker is down.
type RabbitMQPublisher struct {
	client *RabbitMQ
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client}
}

func (p *RabbitMQPublisher) PublishOpen(ctx context.Context, event OpenEvent) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	publishing, err := openEventPublishing(event)
	if err != nil {
		return err
	}

	ch, err := p.client.publishChannel(ctx)
	if err != nil {
		return err
	}

	if err := ch.PublishWithContext(ctx, EventsExchange, OpenedRoutingKey, false, false, publishing); err != nil {
		p.client.discardChannel(ch)
		return fmt.Errorf("failed to publish open event for %q: %w", event.TrackingID, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}

func openEventPublishing(event OpenEvent) (amqp.Publishing, error) {
	if err := event.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid open event: %w", err)
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal open event: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     event.OpenedAt.UTC(),
		MessageId:     fmt.Sprintf("%s:%d", event.TrackingID, event.OpenCount),
		CorrelationId: event.RequestID,
		Type:          OpenedRoutingKey,
		Body:          payload,
	}, nil
}
