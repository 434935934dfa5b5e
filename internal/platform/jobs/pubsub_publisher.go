package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/voltmart/storefront/internal/services"
)

const defaultPublishTimeout = 10 * time.Second

// PubSubOrderEventPublisher publishes order events to a Pub/Sub topic and waits for the ack.
type PubSubOrderEventPublisher struct {
	topic   *pubsub.Topic
	ordered bool
	timeout time.Duration
}

type PubSubOption func(*PubSubOrderEventPublisher)

// WithOrderingByOrder keys messages by order id so subscribers see one order's transitions in
// sequence. The topic is switched to ordered publishing.
func WithOrderingByOrder() PubSubOption {
	return func(p *PubSubOrderEventPublisher) { p.ordered = true }
}

func WithPublishTimeout(d time.Duration) PubSubOption {
	return func(p *PubSubOrderEventPublisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func NewPubSubOrderEventPublisher(topic *pubsub.Topic, opts ...PubSubOption) (*PubSubOrderEventPublisher, error) {
	if topic == nil {
		return nil, errors.New("pubsub order event publisher: topic is required")
	}
	p := &PubSubOrderEventPublisher{topic: topic, timeout: defaultPublishTimeout}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	if p.ordered {
		topic.EnableMessageOrdering = true
	}
	return p, nil
}

// PublishOrderEvent implements services.OrderEventPublisher. A failed ordered publish pauses the
// order's key inside the client, so the key is resumed before returning the error.
func (p *PubSubOrderEventPublisher) PublishOrderEvent(ctx context.Context, event services.OrderEvent) error {
	if p == nil || p.topic == nil {
		return errors.New("pubsub order event publisher: not initialised")
	}
	msg, data, err := encodeOrderEvent(event)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}

	message := &pubsub.Message{Data: data, Attributes: msg.attributes()}
	if p.ordered {
		message.OrderingKey = msg.OrderID
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.topic.Publish(ctx, message).Get(ctx); err != nil {
		if message.OrderingKey != "" {
			p.topic.ResumePublish(message.OrderingKey)
		}
		return fmt.Errorf("publish order event %s: %w", msg.OrderID, err)
	}
	return nil
}

// Close flushes pending messages and stops the topic's background goroutines.
func (p *PubSubOrderEventPublisher) Close() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}
