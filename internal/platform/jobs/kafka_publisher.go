package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/voltmart/storefront/internal/services"
)

const defaultKafkaWriteTimeout = 10 * time.Second

// MessageWriter is the subset of *kafka.Writer used by the publisher.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaOrderEventPublisher publishes order lifecycle events to a Kafka topic keyed by order id,
// keeping events of one order on one partition.
type KafkaOrderEventPublisher struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer for the topic using hash balancing on the message key.
func NewKafkaWriter(brokers []string, topic string) (*kafka.Writer, error) {
	var addrs []string
	for _, broker := range brokers {
		if b := strings.TrimSpace(broker); b != "" {
			addrs = append(addrs, b)
		}
	}
	if len(addrs) == 0 {
		return nil, errors.New("kafka order event publisher: at least one broker is required")
	}
	if strings.TrimSpace(topic) == "" {
		return nil, errors.New("kafka order event publisher: topic is required")
	}
	return &kafka.Writer{
		Addr:         kafka.TCP(addrs...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		WriteTimeout: defaultKafkaWriteTimeout,
	}, nil
}

// NewKafkaOrderEventPublisher wraps a message writer.
func NewKafkaOrderEventPublisher(writer MessageWriter) (*KafkaOrderEventPublisher, error) {
	if writer == nil {
		return nil, errors.New("kafka order event publisher: writer is required")
	}
	return &KafkaOrderEventPublisher{writer: writer}, nil
}

// PublishOrderEvent writes the event synchronously.
func (p *KafkaOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.writer == nil {
		return errors.New("kafka order event publisher: not initialised")
	}

	msg, data, err := encodeOrderEvent(event)
	if err != nil {
		return fmt.Errorf("marshal order event: %w", err)
	}

	attrs := msg.attributes()
	headers := make([]kafka.Header, 0, len(attrs))
	for _, key := range []string{"eventType", "orderId", "currentStatus"} {
		if value, ok := attrs[key]; ok {
			headers = append(headers, kafka.Header{Key: key, Value: []byte(value)})
		}
	}

	if err := p.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(msg.OrderID),
		Value:   data,
		Headers: headers,
		Time:    msg.OccurredAt,
	}); err != nil {
		return fmt.Errorf("write order event: %w", err)
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaOrderEventPublisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
