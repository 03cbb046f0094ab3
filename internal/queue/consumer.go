package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// RetryPolicy bounds redelivery for one stage consumer. Redelivery is the
// system's only retry mechanism, so the policy is explicit configuration
// rather than ambient broker behavior.
type RetryPolicy struct {
	// MaxAttempts is the total delivery budget including the first attempt.
	MaxAttempts int `mapstructure:"max_attempts"`

	// Backoff is the delay before a failed message is republished for
	// another attempt.
	Backoff time.Duration `mapstructure:"backoff"`
}

// DefaultRetryPolicy covers transient infra failures without holding a
// poisoned message forever.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxAttempts: 4, Backoff: 5 * time.Second}
}

// Exhausted reports whether a message with the given prior attempt count has
// used up its budget.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return attempts+1 >= p.MaxAttempts
}

// Handler processes one raw stage message. Returning nil acks the message;
// returning an error schedules redelivery under the consumer's RetryPolicy.
type Handler func(ctx context.Context, body []byte) error

// ConsumerConfig configures a stage consumer.
type ConsumerConfig struct {
	Queue      string
	RoutingKey string
	Retry      RetryPolicy
	Logger     *slog.Logger
}

// Consumer delivers messages from one stage queue to a Handler, one at a
// time. Ack happens only after the handler's side effects are durable; a
// crash mid-handler leaves the message unacked for redelivery.
type Consumer struct {
	channel   *amqp.Channel
	publisher *Publisher
	cfg       ConsumerConfig
	logger    *slog.Logger
}

// NewConsumer creates a consumer on its own channel and declares the stage
// queue plus its dead-letter parking queue.
func NewConsumer(conn *amqp.Connection, cfg ConsumerConfig) (*Consumer, error) {
	if cfg.Queue == "" || cfg.RoutingKey == "" {
		return nil, fmt.Errorf("consumer requires queue and routing key")
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = DefaultRetryPolicy()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	if err := declareExchanges(ch); err != nil {
		return nil, err
	}
	if err := declareStageQueue(ch, cfg.Queue, cfg.RoutingKey); err != nil {
		return nil, err
	}
	// One unacked message at a time: processing a stage can take as long as
	// an LLM round trip, and fairness across replicas matters more than
	// per-replica throughput.
	if err := ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("failed to set QoS: %w", err)
	}

	publisher, err := NewPublisher(conn)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		channel:   ch,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger.With("queue", cfg.Queue),
	}, nil
}

// Start consumes until the context is cancelled or the channel closes.
func (c *Consumer) Start(ctx context.Context, handler Handler) error {
	deliveries, err := c.channel.Consume(c.cfg.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming %s: %w", c.cfg.Queue, err)
	}

	c.logger.Info("consumer started", "routing_key", c.cfg.RoutingKey, "max_attempts", c.cfg.Retry.MaxAttempts)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("consumer shutting down")
			return nil
		case msg, ok := <-deliveries:
			if !ok {
				c.logger.Warn("delivery channel closed")
				return nil
			}
			c.handleDelivery(ctx, msg, handler)
		}
	}
}

func (c *Consumer) handleDelivery(ctx context.Context, msg amqp.Delivery, handler Handler) {
	attempts := AttemptCount(msg.Headers)

	err := handler(ctx, msg.Body)
	if err == nil {
		if ackErr := msg.Ack(false); ackErr != nil {
			c.logger.Error("failed to ack message", "error", ackErr)
		}
		return
	}

	if c.cfg.Retry.Exhausted(attempts) {
		c.logger.Error("retry budget exhausted, dead-lettering message",
			"attempts", attempts+1, "error", err)
		// Nack without requeue routes to the dead-letter exchange.
		if nackErr := msg.Nack(false, false); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
		}
		return
	}

	c.logger.Warn("handler failed, scheduling redelivery",
		"attempt", attempts+1, "backoff", c.cfg.Retry.Backoff, "error", err)

	select {
	case <-ctx.Done():
		// Shutdown mid-retry: leave the message unacked so the broker
		// redelivers it to another replica.
		return
	case <-time.After(c.cfg.Retry.Backoff):
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}
	headers[retryCountHeader] = int64(attempts + 1)

	if pubErr := c.publisher.publish(ctx, Exchange, c.cfg.RoutingKey, msg.Body, headers); pubErr != nil {
		c.logger.Error("failed to republish for retry, leaving unacked", "error", pubErr)
		return
	}
	if ackErr := msg.Ack(false); ackErr != nil {
		c.logger.Error("failed to ack after republish", "error", ackErr)
	}
}

// Close closes the consumer and its republish channel.
func (c *Consumer) Close() error {
	if err := c.publisher.Close(); err != nil {
		return err
	}
	return c.channel.Close()
}
