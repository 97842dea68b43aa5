package queue

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// AMQP publishes to a durable direct exchange bound to one durable queue. Deliveries are
// acked once handed to the consumer channel, not after the notification is delivered: the
// broker gives at-most-once hand-off, and the worker's sweep of undelivered rows is what
// makes delivery at-least-once.
type AMQP struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
	log      zerolog.Logger
}

// NewAMQP dials url and declares the exchange, the queue and their binding.
func NewAMQP(url, exchange, queue string, log zerolog.Logger) (*AMQP, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	q := &AMQP{conn: conn, ch: ch, exchange: exchange, queue: queue, log: log.With().Str("component", "amqp").Logger()}
	if err := q.declare(); err != nil {
		_ = q.Close()
		return nil, err
	}
	return q, nil
}

func (q *AMQP) declare() error {
	if err := q.ch.ExchangeDeclare(
		q.exchange, // name
		"direct",   // kind
		true,       // durable
		false,      // auto-deleted
		false,      // internal
		false,      // no-wait
		nil,        // arguments
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", q.exchange, err)
	}
	if _, err := q.ch.QueueDeclare(
		q.queue, // name
		true,    // durable
		false,   // delete when unused
		false,   // exclusive
		false,   // no-wait
		nil,     // arguments
	); err != nil {
		return fmt.Errorf("declare queue %s: %w", q.queue, err)
	}
	if err := q.ch.QueueBind(q.queue, q.queue, q.exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", q.queue, err)
	}
	return nil
}

// Publish sends a persistent message routed to the queue.
func (q *AMQP) Publish(ctx context.Context, msg Message) error {
	return q.ch.PublishWithContext(ctx, q.exchange, q.queue, false, false, amqp.Publishing{
		ContentType:  "text/plain",
		DeliveryMode: amqp.Persistent,
		Type:         msg.Type,
		Body:         msg.Body,
	})
}

// Consume streams deliveries one at a time until ctx is done. A delivery not yet handed off
// when ctx ends is requeued.
func (q *AMQP) Consume(ctx context.Context) (<-chan Message, error) {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return nil, err
	}
	deliveries, err := q.ch.Consume(q.queue, "", false, false, false, false, nil)
	if err != nil {
		return nil, err
	}
	out := make(chan Message)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					q.log.Warn().Msg("RabbitMQ delivery channel closed")
					return
				}
				select {
				case out <- Message{Type: d.Type, Body: d.Body}:
					if err := d.Ack(false); err != nil {
						q.log.Warn().Err(err).Msg("ack failed")
					}
				case <-ctx.Done():
					_ = d.Nack(false, true)
					return
				}
			}
		}
	}()
	return out, nil
}

// Close closes the channel and connection.
func (q *AMQP) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
