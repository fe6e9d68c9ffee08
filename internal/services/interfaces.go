package services

import (
	"context"
	"errors"
	"fmt"

	domain "github.com/back-orders/api/internal/domain"
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located, or the
	// caller is not allowed to see it (ownership checks fail closed).
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderNotCancellable is the expected alternative returned when a
	// cancel request targets an order that is no longer pending. It maps
	// to an empty result at the transport layer, not a server fault.
	ErrOrderNotCancellable = errors.New("order: not cancellable")
	// ErrOrderStateConflict matches StateError values via errors.Is.
	ErrOrderStateConflict = errors.New("order: state conflict")
	// ErrOrderConflict indicates optimistic concurrency conflicts in the store.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrInsufficientStock indicates a product cannot cover a requested quantity.
	ErrInsufficientStock = errors.New("order: insufficient stock")

	// ErrReceiptForbidden indicates the requesting identity does not own the order.
	ErrReceiptForbidden = errors.New("receipt: forbidden")
	// ErrReceiptNotPaid indicates the order is not in a receipt-eligible state.
	ErrReceiptNotPaid = errors.New("receipt: order not paid yet")
)

// Required-state labels used by StateError values.
const (
	RequiredStatePending  = "pending"
	RequiredStateActive   = "active"
	RequiredStateDelivery = "in_delivery or pending_delivery"
)

// StateError reports a lifecycle transition whose precondition on the current
// status is not met. It always carries both states so callers can render a
// precise message, and matches ErrOrderStateConflict under errors.Is.
type StateError struct {
	Current  domain.OrderStatus
	Required string
}

// Error implements the error interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("order is in state %q, state %q is required", e.Current, e.Required)
}

// Is reports whether target is the state-conflict sentinel.
func (e *StateError) Is(target error) bool {
	return target == ErrOrderStateConflict
}

// OrderService is the order lifecycle engine: it enforces the state machine
// and orchestrates the transactional side effects of each transition.
type OrderService interface {
	Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error)
	GetOrder(ctx context.Context, orderID int64) (domain.Order, error)
	Cancel(ctx context.Context, orderID int64) (domain.Order, error)
	ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (domain.Order, error)
	ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (domain.Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error)
}

// OrderQueryService builds read-only summaries from stored orders. All
// operations are side-effect free.
type OrderQueryService interface {
	History(ctx context.Context, userID string) ([]domain.OrderSummary, error)
	HistoryPage(ctx context.Context, query HistoryPageQuery) (domain.Page[domain.OrderSummary], error)
	Report(ctx context.Context, query ReportQuery) ([]domain.OrderSummary, error)
}

// ReceiptService validates receipt eligibility and assembles the structured
// data a renderer needs. Rendering itself is an external collaborator.
type ReceiptService interface {
	AssembleReceipt(ctx context.Context, cmd ReceiptCommand) (domain.ReceiptData, error)
}

// CreateOrderCommand describes a new pending order for a user.
type CreateOrderCommand struct {
	UserID string
	Lines  []CreateOrderLine
}

// CreateOrderLine is one requested product/quantity pair.
type CreateOrderLine struct {
	ProductID int64
	Quantity  int
}

// ProcessPaymentCommand triggers the pay transition for an order.
type ProcessPaymentCommand struct {
	OrderID int64
	// IdempotencyKey dedupes the gateway charge across retries. When
	// blank the engine generates one per attempt.
	IdempotencyKey string
}

// ConfirmDeliveryCommand records the acting user confirming reception.
type ConfirmDeliveryCommand struct {
	OrderID int64
	UserID  string
}

// UpdateStatusCommand is the administrative escape hatch that sets a status
// directly, bypassing the transition table.
type UpdateStatusCommand struct {
	OrderID int64
	Status  string
	ActorID string
}

// HistoryPageQuery narrows and paginates a user's order history. Status is
// matched case-insensitively; Since is a plain yyyy-mm-dd date string and
// unparseable or blank input means "no filter".
type HistoryPageQuery struct {
	UserID   string
	Status   string
	Since    string
	Page     int
	PageSize int
}

// ReportQuery filters orders by status and an inclusive date range for
// administrative reporting. Invalid date strings are validation errors.
type ReportQuery struct {
	Status string
	Start  string
	End    string
}

// ReceiptCommand identifies the order and the identity requesting its receipt.
type ReceiptCommand struct {
	OrderID     int64
	RequestedBy string
}
