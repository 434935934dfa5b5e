package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/voltmart/storefront/internal/services"
)

type recordingWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *recordingWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *recordingWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaOrderEventPublisherKeysByOrder(t *testing.T) {
	writer := &recordingWriter{}
	publisher, err := NewKafkaOrderEventPublisher(writer)
	if err != nil {
		t.Fatalf("NewKafkaOrderEventPublisher: %v", err)
	}

	occurred := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{
		Type:          "order.placed",
		OrderID:       "ord_1",
		UserID:        "user_1",
		CurrentStatus: "placed",
		OccurredAt:    occurred,
	})
	if err != nil {
		t.Fatalf("PublishOrderEvent: %v", err)
	}

	if len(writer.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(writer.messages))
	}
	msg := writer.messages[0]
	if string(msg.Key) != "ord_1" || !msg.Time.Equal(occurred) {
		t.Fatalf("unexpected message key/time: %q %s", msg.Key, msg.Time)
	}
	var payload OrderEventMessage
	if err := json.Unmarshal(msg.Value, &payload); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if payload.Type != "order.placed" || payload.UserID != "user_1" {
		t.Fatalf("unexpected payload %#v", payload)
	}
	if len(msg.Headers) != 3 || msg.Headers[0].Key != "eventType" {
		t.Fatalf("unexpected headers %+v", msg.Headers)
	}

	if err := publisher.Close(); err != nil || !writer.closed {
		t.Fatalf("expected writer closed, err=%v", err)
	}
}

func TestKafkaOrderEventPublisherWrapsWriteError(t *testing.T) {
	boom := errors.New("broker down")
	publisher, err := NewKafkaOrderEventPublisher(&recordingWriter{err: boom})
	if err != nil {
		t.Fatalf("NewKafkaOrderEventPublisher: %v", err)
	}
	err = publisher.PublishOrderEvent(context.Background(), services.OrderEvent{Type: "order.cancelled", OrderID: "ord_2"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped writer error, got %v", err)
	}
}

func TestNewKafkaWriterValidatesConfig(t *testing.T) {
	if _, err := NewKafkaWriter([]string{" "}, "events"); err == nil {
		t.Fatal("expected error without brokers")
	}
	if _, err := NewKafkaWriter([]string{"localhost:9092"}, ""); err == nil {
		t.Fatal("expected error without topic")
	}
	writer, err := NewKafkaWriter([]string{"localhost:9092", ""}, "events")
	if err != nil {
		t.Fatalf("NewKafkaWriter: %v", err)
	}
	if writer.Topic != "events" || writer.Addr.String() != "localhost:9092" {
		t.Fatalf("unexpected writer %+v", writer)
	}
}
