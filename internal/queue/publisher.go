package queue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes stage messages to the pipeline exchange. Messages are
// persistent so they survive a broker restart; publisher confirms make the
// publish durable before the caller acks its own input.
type Publisher struct {
	channel  *amqp.Channel
	exchange string
}

// NewPublisher creates a publisher on its own channel and declares the
// pipeline topology.
func NewPublisher(conn *amqp.Connection) (*Publisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareExchanges(ch); err != nil {
		return nil, err
	}
	// Confirm mode: PublishWithDeferredConfirm blocks ack-side until the
	// broker has taken ownership of the message.
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	return &Publisher{channel: ch, exchange: Exchange}, nil
}

// Publish sends a persistent JSON message and waits for broker confirmation.
func (p *Publisher) Publish(ctx context.Context, routingKey string, body []byte) error {
	return p.publish(ctx, p.exchange, routingKey, body, nil)
}

func (p *Publisher) publish(ctx context.Context, exchange, routingKey string, body []byte, headers amqp.Table) error {
	confirm, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Headers:      headers,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish to %s/%s: %w", exchange, routingKey, err)
	}
	ok, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirmation failed: %w", err)
	}
	if !ok {
		return fmt.Errorf("broker rejected publish to %s/%s", exchange, routingKey)
	}
	return nil
}

// Close closes the publisher channel.
func (p *Publisher) Close() error {
	return p.channel.Close()
}
