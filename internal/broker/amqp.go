package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	// ErrUnavailable covers dial, channel, queue declaration and publish failures.
	ErrUnavailable = errors.New("broker unavailable")
	// ErrEncode is returned when the payload cannot be serialized.
	ErrEncode = errors.New("encode message")
)

type connection interface {
	Channel() (channel, error)
	Close() error
}

type channel interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// dialer opens a broker connection.
type dialer func(url string) (connection, error)

type amqpConnection struct {
	conn *amqp.Connection
}

func (c amqpConnection) Channel() (channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c amqpConnection) Close() error {
	return c.conn.Close()
}

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn: conn}, nil
}

// AMQPPublisher publishes JSON messages to one durable queue through the
// default exchange. Every Publish opens and closes its own connection and
// channel; nothing is pooled and nothing is retried.
type AMQPPublisher struct {
	url    string
	queue  string
	dial   dialer
	logger *slog.Logger
}

func NewAMQPPublisher(url, queue string, logger *slog.Logger) *AMQPPublisher {
	return &AMQPPublisher{
		url:    url,
		queue:  queue,
		dial:   dialAMQP,
		logger: logger,
	}
}

// Publish serializes payload and publishes it as a persistent message routed
// to the queue, declaring the queue first.
func (p *AMQPPublisher) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	conn, err := p.dial(p.url)
	if err != nil {
		return fmt.Errorf("%w: dial: %w", ErrUnavailable, err)
	}
	defer p.release("connection", conn)

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open channel: %w", ErrUnavailable, err)
	}
	defer p.release("channel", ch)

	if _, err := ch.QueueDeclare(p.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: declare queue %s: %w", ErrUnavailable, p.queue, err)
	}

	err = ch.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %w", ErrUnavailable, p.queue, err)
	}

	p.logger.Info("event published", slog.String("queue", p.queue), slog.String("body", string(body)))
	return nil
}

func (p *AMQPPublisher) release(what string, c io.Closer) {
	if err := c.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		p.logger.Warn("failed to close amqp "+what, slog.Any("error", err))
	}
}
