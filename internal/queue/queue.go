// Package queue provides the durable at-least-once message backbone between
// pipeline stages, built on RabbitMQ. Each stage hop is a durable queue bound
// to a shared topic exchange; message ownership (unacked delivery) is the only
// mutual-exclusion primitive in the system.
package queue

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names. One exchange carries all stage traffic; each stage owns a
// durable queue. Exhausted messages dead-letter to a per-queue parking queue
// for manual reprocessing.
const (
	Exchange           = "shelfscan.pipeline"
	DeadLetterExchange = "shelfscan.pipeline.dlx"

	SegmentQueue      = "shelfscan.segment"
	SegmentRoutingKey = "stage.segment"

	ValidateQueue      = "shelfscan.validate"
	ValidateRoutingKey = "stage.validate"
)

// Dial opens a connection to the broker.
func Dial(url string) (*amqp.Connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}
	return conn, nil
}

// declareExchanges declares the pipeline and dead-letter exchanges on the
// given channel. Idempotent.
func declareExchanges(ch *amqp.Channel) error {
	if err := ch.ExchangeDeclare(Exchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", Exchange, err)
	}
	if err := ch.ExchangeDeclare(DeadLetterExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead-letter exchange: %w", err)
	}
	return nil
}

// declareStageQueue declares a durable stage queue bound to the pipeline
// exchange, with its dead-letter parking queue alongside.
func declareStageQueue(ch *amqp.Channel, queue, routingKey string) error {
	args := amqp.Table{
		"x-dead-letter-exchange": DeadLetterExchange,
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", queue, err)
	}
	if err := ch.QueueBind(queue, routingKey, Exchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind queue %s: %w", queue, err)
	}

	deadQueue := queue + ".dead"
	if _, err := ch.QueueDeclare(deadQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare dead queue %s: %w", deadQueue, err)
	}
	if err := ch.QueueBind(deadQueue, routingKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("failed to bind dead queue %s: %w", deadQueue, err)
	}
	return nil
}

// retryCountHeader carries the explicit redelivery count across republishes.
// Broker-side x-death bookkeeping only counts dead-letter cycles, so the
// consumer tracks its own attempt count instead.
const retryCountHeader = "x-retry-count"

// AttemptCount returns how many delivery attempts a message has already had.
// A fresh message reports 0.
func AttemptCount(headers amqp.Table) int {
	switch v := headers[retryCountHeader].(type) {
	case int64:
		return int(v)
	case int32:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
