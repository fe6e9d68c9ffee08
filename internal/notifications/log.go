package notifications

import (
	"context"

	"go.uber.org/zap"

	domain "github.com/back-orders/api/internal/domain"
)

// LogNotifier writes notifications to the structured log. It backs local runs
// where no Pub/Sub topic is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier constructs a log-backed Notifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// NotifyPaymentConfirmed logs a payment-confirmed notification.
func (n *LogNotifier) NotifyPaymentConfirmed(_ context.Context, order domain.Order) error {
	n.logger.Info("notification sent",
		zap.String("event", EventPaymentConfirmed),
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID),
	)
	return nil
}

// NotifyDeliveryConfirmed logs a delivery-confirmed notification.
func (n *LogNotifier) NotifyDeliveryConfirmed(_ context.Context, order domain.Order) error {
	n.logger.Info("notification sent",
		zap.String("event", EventDeliveryConfirmed),
		zap.Int64("order_id", order.ID),
		zap.String("user_id", order.UserID),
	)
	return nil
}
