package notifications

import (
	"context"

	domain "github.com/back-orders/api/internal/domain"
)

// Event names attached to outgoing notification messages.
const (
	EventPaymentConfirmed  = "order.payment.confirmed"
	EventDeliveryConfirmed = "order.delivery.confirmed"
)

// Notifier delivers user-facing order notifications. Delivery is fire and
// forget: the lifecycle engine logs failures and never lets them block or
// abort a transition.
type Notifier interface {
	NotifyPaymentConfirmed(ctx context.Context, order domain.Order) error
	NotifyDeliveryConfirmed(ctx context.Context, order domain.Order) error
}
