package jobs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/voltmart/storefront/internal/services"
)

// OrderEventMessage is the wire form of an order lifecycle event shared by all transports.
type OrderEventMessage struct {
	Type           string         `json:"type"`
	OrderID        string         `json:"orderId"`
	UserID         string         `json:"userId,omitempty"`
	PreviousStatus string         `json:"previousStatus,omitempty"`
	CurrentStatus  string         `json:"currentStatus,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	OccurredAt     time.Time      `json:"occurredAt"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func newOrderEventMessage(event services.OrderEvent) OrderEventMessage {
	occurred := event.OccurredAt
	if occurred.IsZero() {
		occurred = time.Now()
	}
	return OrderEventMessage{
		Type:           strings.TrimSpace(event.Type),
		OrderID:        strings.TrimSpace(event.OrderID),
		UserID:         strings.TrimSpace(event.UserID),
		PreviousStatus: event.PreviousStatus,
		CurrentStatus:  event.CurrentStatus,
		ActorID:        strings.TrimSpace(event.ActorID),
		OccurredAt:     occurred.UTC(),
		Metadata:       event.Metadata,
	}
}

func (m OrderEventMessage) attributes() map[string]string {
	attrs := make(map[string]string)
	setAttr(attrs, "eventType", m.Type)
	setAttr(attrs, "orderId", m.OrderID)
	setAttr(attrs, "currentStatus", m.CurrentStatus)
	return attrs
}

func encodeOrderEvent(event services.OrderEvent) (OrderEventMessage, []byte, error) {
	msg := newOrderEventMessage(event)
	data, err := json.Marshal(msg)
	return msg, data, err
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
