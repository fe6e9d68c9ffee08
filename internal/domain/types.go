package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates valid lifecycle states for orders.
type OrderStatus string

const (
	// OrderStatusPending indicates the order exists but has not been paid or cancelled.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusPaid indicates the payment gateway confirmed the charge.
	OrderStatusPaid OrderStatus = "paid"
	// OrderStatusInDelivery indicates the order left the warehouse and is on its way.
	OrderStatusInDelivery OrderStatus = "in_delivery"
	// OrderStatusPendingDelivery indicates the order awaits a delivery slot or pickup.
	OrderStatusPendingDelivery OrderStatus = "pending_delivery"
	// OrderStatusDelivered indicates the owner confirmed reception.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCompleted indicates all post-delivery processing finished.
	OrderStatusCompleted OrderStatus = "completed"
	// OrderStatusCancelled indicates the order was cancelled and its stock restituted.
	OrderStatusCancelled OrderStatus = "cancelled"
)

var orderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:         {},
	OrderStatusPaid:            {},
	OrderStatusInDelivery:      {},
	OrderStatusPendingDelivery: {},
	OrderStatusDelivered:       {},
	OrderStatusCompleted:       {},
	OrderStatusCancelled:       {},
}

// ParseOrderStatus normalises a raw status string against the closed enumeration.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	status := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := orderStatuses[status]
	return status, ok
}

// Order is the aggregate root for a purchase order. IDs are allocated by the
// order store on insert and immutable afterwards, as are UserID, CreatedAt,
// and the item list; only Status (and the derived timestamps) change over the
// order's lifetime.
type Order struct {
	ID          int64
	UserID      string
	Status      OrderStatus
	TotalAmount int64
	Items       []OrderItem
	CreatedAt   time.Time
	UpdatedAt   time.Time
	PaidAt      *time.Time
	DeliveredAt *time.Time
	CancelledAt *time.Time
}

// OrderItem is a line of an order. UnitPrice is snapshotted at creation time
// and never re-read from the live product.
type OrderItem struct {
	ProductID int64
	Quantity  int
	UnitPrice int64
}

// Product is the external catalog entity referenced by order items. Only the
// fields the order core touches are modeled.
type Product struct {
	ID        int64
	Name      string
	Price     int64
	Stock     int
	UpdatedAt time.Time
}

// OrderSummary is the read-only projection returned by history queries.
// It is derived per request and never persisted.
type OrderSummary struct {
	OrderID   int64
	CreatedAt time.Time
	Status    OrderStatus
	Total     int64
	Items     []OrderSummaryItem
}

// OrderSummaryItem carries the (product, quantity, price) triple of a summary line.
type OrderSummaryItem struct {
	ProductID int64
	Quantity  int
	UnitPrice int64
}

// ReceiptData is the structured payload a receipt renderer consumes. The core
// assembles it; formatting and PDF generation live outside this module.
type ReceiptData struct {
	OrderID   int64
	IssuedAt  time.Time
	CreatedAt time.Time
	Status    OrderStatus
	Total     int64
	Lines     []ReceiptLine
}

// ReceiptLine is one row of the receipt's line-item table. ProductName falls
// back to a sentinel when the referenced product can no longer be resolved.
type ReceiptLine struct {
	ProductName string
	Quantity    int
	UnitPrice   int64
}

// Page packages offset-paginated list results with total-count metadata.
type Page[T any] struct {
	Items      []T
	TotalCount int64
	Page       int
	PageSize   int
}

// Summarize projects an order into its read-only summary form.
func (o Order) Summarize() OrderSummary {
	items := make([]OrderSummaryItem, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, OrderSummaryItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return OrderSummary{
		OrderID:   o.ID,
		CreatedAt: o.CreatedAt,
		Status:    o.Status,
		Total:     o.TotalAmount,
		Items:     items,
	}
}

// CloneItems returns a defensive copy of the order's line items.
func (o Order) CloneItems() []OrderItem {
	if o.Items == nil {
		return nil
	}
	cloned := make([]OrderItem, len(o.Items))
	copy(cloned, o.Items)
	return cloned
}
