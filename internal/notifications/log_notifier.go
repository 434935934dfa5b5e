package notifications

import (
	"context"

	"go.uber.org/zap"

	"github.com/voltmart/storefront/internal/services"
)

// LogNotifier records notifications in the structured log instead of sending them. Used when no
// dispatch endpoint is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the notification and never fails.
func (n *LogNotifier) Notify(_ context.Context, notification services.Notification) error {
	n.logger.Info("notification",
		zap.String("kind", string(notification.Kind)),
		zap.String("userId", notification.UserID),
		zap.String("orderId", notification.OrderID),
		zap.Any("data", notification.Data),
	)
	return nil
}
