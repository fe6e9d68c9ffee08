package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"

	domain "github.com/back-orders/api/internal/domain"
	"github.com/back-orders/api/internal/platform/textutil"
)

// orderNotification is the message body published for downstream consumers
// (mailers, push services) to act on.
type orderNotification struct {
	Event      string    `json:"event"`
	OrderID    int64     `json:"orderId"`
	UserID     string    `json:"userId"`
	Status     string    `json:"status"`
	Total      int64     `json:"total"`
	OccurredAt time.Time `json:"occurredAt"`
}

// PubSubNotifier publishes order notifications to a Pub/Sub topic.
type PubSubNotifier struct {
	topic   *pubsub.Topic
	clock   func() time.Time
	marshal func(any) ([]byte, error)
}

// NewPubSubNotifier constructs a Pub/Sub backed Notifier.
func NewPubSubNotifier(topic *pubsub.Topic) (*PubSubNotifier, error) {
	if topic == nil {
		return nil, errors.New("pubsub notifier: topic is required")
	}
	return &PubSubNotifier{
		topic:   topic,
		clock:   time.Now,
		marshal: json.Marshal,
	}, nil
}

// NotifyPaymentConfirmed publishes a payment-confirmed message for the order.
func (n *PubSubNotifier) NotifyPaymentConfirmed(ctx context.Context, order domain.Order) error {
	return n.publish(ctx, EventPaymentConfirmed, order)
}

// NotifyDeliveryConfirmed publishes a delivery-confirmed message for the order.
func (n *PubSubNotifier) NotifyDeliveryConfirmed(ctx context.Context, order domain.Order) error {
	return n.publish(ctx, EventDeliveryConfirmed, order)
}

func (n *PubSubNotifier) publish(ctx context.Context, event string, order domain.Order) error {
	if n == nil || n.topic == nil {
		return errors.New("pubsub notifier: not initialised")
	}

	body := orderNotification{
		Event:      event,
		OrderID:    order.ID,
		UserID:     order.UserID,
		Status:     string(order.Status),
		Total:      order.TotalAmount,
		OccurredAt: n.clock().UTC(),
	}

	data, err := n.marshal(body)
	if err != nil {
		return fmt.Errorf("marshal order notification: %w", err)
	}

	result := n.topic.Publish(ctx, &pubsub.Message{
		Data: data,
		Attributes: textutil.NormalizeStringMap(map[string]string{
			"event":   event,
			"orderId": strconv.FormatInt(order.ID, 10),
			"userId":  order.UserID,
		}),
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish order notification: %w", err)
	}
	return nil
}
