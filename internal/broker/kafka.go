package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// Keyer is implemented by payloads that carry a partitioning key.
type Keyer interface {
	Key() string
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes JSON messages to a topic. Unlike AMQPPublisher it
// keeps one writer for its lifetime; call Close when done.
type KafkaPublisher struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

func NewKafkaPublisher(brokers []string, topic string, logger *slog.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
		topic:  topic,
		logger: logger,
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrEncode, err)
	}

	msg := kafka.Message{Value: body}
	if k, ok := payload.(Keyer); ok {
		msg.Key = []byte(k.Key())
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("%w: write to %s: %w", ErrUnavailable, p.topic, err)
	}

	p.logger.Info("event published", slog.String("topic", p.topic), slog.String("key", string(msg.Key)))
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
