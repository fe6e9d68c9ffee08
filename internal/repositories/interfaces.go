package repositories

import (
	"context"
	"time"

	domain "github.com/back-orders/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// UnitOfWork groups repository operations into one atomic boundary. Every
// lifecycle transition (cancel, pay, confirm-delivery, status update) runs its
// writes inside a single RunInTx call: either all of them land or none do.
type UnitOfWork interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// OrderListFilter narrows the owner-scoped history query. Zero values mean
// "match all" for that dimension; Status comparison is case-insensitive.
type OrderListFilter struct {
	Status   string
	Since    *time.Time
	Page     int
	PageSize int
}

// OrderReportFilter narrows the administrative status/date-range query.
// Both bounds are inclusive.
type OrderReportFilter struct {
	Status string
	Start  *time.Time
	End    *time.Time
}

// OrderRepository persists order aggregates keyed by their numeric ID.
type OrderRepository interface {
	// Insert stores a new order, allocating its ID, and returns the stored aggregate.
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)

	// Save replaces the stored aggregate for an existing order.
	Save(ctx context.Context, order domain.Order) error

	// FindByID returns the order or a not-found RepositoryError.
	FindByID(ctx context.Context, orderID int64) (domain.Order, error)

	// ListByOwner returns all orders owned by userID, newest first.
	ListByOwner(ctx context.Context, userID string) ([]domain.Order, error)

	// ListByOwnerFiltered returns one page of the owner's orders, newest
	// first, along with the total count matching the filter.
	ListByOwnerFiltered(ctx context.Context, userID string, filter OrderListFilter) ([]domain.Order, int64, error)

	// ListByStatusAndDateRange returns all orders matching the report
	// filter regardless of owner, newest first.
	ListByStatusAndDateRange(ctx context.Context, filter OrderReportFilter) ([]domain.Order, error)
}

// ProductRepository persists the per-product stock counts mutated during
// order creation and cancellation.
type ProductRepository interface {
	FindByID(ctx context.Context, productID int64) (domain.Product, error)
	Save(ctx context.Context, product domain.Product) error
}

// CounterRepository allocates monotonically increasing numeric identifiers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string) (int64, error)
}
