package notifications

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/voltmart/storefront/internal/services"
)

const (
	defaultTimeout    = 5 * time.Second
	defaultRetryCount = 2
)

// ErrDispatchRejected is returned when the dispatch endpoint answers with a non-2xx status.
var ErrDispatchRejected = errors.New("notifications: dispatch rejected")

// dispatchRequest is the JSON body posted to the email dispatch webhook.
type dispatchRequest struct {
	Template string         `json:"template"`
	UserID   string         `json:"userId"`
	OrderID  string         `json:"orderId,omitempty"`
	Data     map[string]any `json:"data,omitempty"`
}

// HTTPNotifier delivers notifications to an email dispatch webhook.
type HTTPNotifier struct {
	client   *resty.Client
	endpoint string
}

// HTTPNotifierOption customises the notifier.
type HTTPNotifierOption func(*HTTPNotifier)

// WithAuthToken sends the token as a bearer credential.
func WithAuthToken(token string) HTTPNotifierOption {
	return func(n *HTTPNotifier) {
		if token = strings.TrimSpace(token); token != "" {
			n.client.SetAuthToken(token)
		}
	}
}

// WithTimeout bounds each dispatch attempt.
func WithTimeout(d time.Duration) HTTPNotifierOption {
	return func(n *HTTPNotifier) {
		if d > 0 {
			n.client.SetTimeout(d)
		}
	}
}

// WithRetryCount overrides how often transport errors and 5xx responses are retried.
func WithRetryCount(count int) HTTPNotifierOption {
	return func(n *HTTPNotifier) {
		if count >= 0 {
			n.client.SetRetryCount(count)
		}
	}
}

// NewHTTPNotifier constructs a notifier posting to endpoint.
func NewHTTPNotifier(endpoint string, opts ...HTTPNotifierOption) (*HTTPNotifier, error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return nil, errors.New("notifications: endpoint is required")
	}

	client := resty.New().
		SetTimeout(defaultTimeout).
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(200 * time.Millisecond).
		SetHeader("Accept", "application/json").
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			return err != nil || (resp != nil && resp.StatusCode() >= 500)
		})

	n := &HTTPNotifier{client: client, endpoint: endpoint}
	for _, opt := range opts {
		if opt != nil {
			opt(n)
		}
	}
	return n, nil
}

// Notify posts the notification. Callers treat failures as non-fatal.
func (n *HTTPNotifier) Notify(ctx context.Context, notification services.Notification) error {
	if n == nil || n.client == nil {
		return errors.New("notifications: notifier not initialised")
	}
	if strings.TrimSpace(notification.UserID) == "" || notification.Kind == "" {
		return errors.New("notifications: user id and kind are required")
	}

	resp, err := n.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(dispatchRequest{
			Template: string(notification.Kind),
			UserID:   notification.UserID,
			OrderID:  notification.OrderID,
			Data:     notification.Data,
		}).
		Post(n.endpoint)
	if err != nil {
		return fmt.Errorf("notifications: dispatch %s: %w", notification.Kind, err)
	}
	if resp.IsError() {
		return fmt.Errorf("%w: status %d: %s", ErrDispatchRejected, resp.StatusCode(), truncate(resp.String(), 256))
	}
	return nil
}

func truncate(value string, limit int) string {
	value = strings.TrimSpace(value)
	if len(value) <= limit {
		return value
	}
	return value[:limit]
}
