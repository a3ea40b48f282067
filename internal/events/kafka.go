package events

import (
	"context"
	"time"

	"monositi/internal/config"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer the forwarder needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaForwarder republishes every bus event to a Kafka topic. The event type
// travels in a header; the key is the event type so consumers keep per-type order.
type KafkaForwarder struct {
	writer  MessageWriter
	logger  *zerolog.Logger
	timeout time.Duration
}

// NewKafkaWriter builds the writer for the configured brokers and topic.
func NewKafkaWriter(cfg config.KafkaConfig) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        true,
	}
}

func NewKafkaForwarder(writer MessageWriter, logger *zerolog.Logger) *KafkaForwarder {
	return &KafkaForwarder{writer: writer, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the forwarder to every event on bus.
func (f *KafkaForwarder) Attach(bus *EventBus) {
	bus.SubscribeAll(f.Handle)
}

// Handle writes one event. Failures are logged and returned; they never block
// the publisher beyond the write timeout.
func (f *KafkaForwarder) Handle(event *Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.Type),
		Value: event.Payload,
		Time:  event.CreatedAt,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.Type)},
		},
	}
	if err := f.writer.WriteMessages(ctx, msg); err != nil {
		f.logger.Warn().Err(err).Str("event", event.Type).Msg("Kafka publish failed")
		return err
	}
	return nil
}

func (f *KafkaForwarder) Close() error {
	return f.writer.Close()
}
