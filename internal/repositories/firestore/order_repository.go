package firestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/back-orders/api/internal/domain"
	pfirestore "github.com/back-orders/api/internal/platform/firestore"
	"github.com/back-orders/api/internal/repositories"
)

const (
	ordersCollection = "orders"
	orderCounterID   = "orders"
)

type orderItemDocument struct {
	ProductID int64 `firestore:"productId"`
	Quantity  int   `firestore:"quantity"`
	UnitPrice int64 `firestore:"unitPrice"`
}

type orderDocument struct {
	OrderID     int64               `firestore:"orderId"`
	UserID      string              `firestore:"userId"`
	Status      string              `firestore:"status"`
	TotalAmount int64               `firestore:"totalAmount"`
	Items       []orderItemDocument `firestore:"items"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	UpdatedAt   time.Time           `firestore:"updatedAt"`
	PaidAt      *time.Time          `firestore:"paidAt,omitempty"`
	DeliveredAt *time.Time          `firestore:"deliveredAt,omitempty"`
	CancelledAt *time.Time          `firestore:"cancelledAt,omitempty"`
}

func encodeOrder(order domain.Order) orderDocument {
	items := make([]orderItemDocument, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemDocument{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orderDocument{
		OrderID:     order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Items:       items,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
		PaidAt:      order.PaidAt,
		DeliveredAt: order.DeliveredAt,
		CancelledAt: order.CancelledAt,
	}
}

func (d orderDocument) toDomain() domain.Order {
	items := make([]domain.OrderItem, 0, len(d.Items))
	for _, item := range d.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return domain.Order{
		ID:          d.OrderID,
		UserID:      d.UserID,
		Status:      domain.OrderStatus(d.Status),
		TotalAmount: d.TotalAmount,
		Items:       items,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
		PaidAt:      d.PaidAt,
		DeliveredAt: d.DeliveredAt,
		CancelledAt: d.CancelledAt,
	}
}

// OrderRepository implements repositories.OrderRepository backed by Firestore.
// Documents are keyed by the decimal numeric order ID; insertion allocates
// the ID from the shared counter.
type OrderRepository struct {
	provider *pfirestore.Provider
	counters repositories.CounterRepository
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider, counters repositories.CounterRepository) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	if counters == nil {
		return nil, errors.New("order repository requires counter repository")
	}
	return &OrderRepository{provider: provider, counters: counters}, nil
}

func (r *OrderRepository) collection(ctx context.Context) (*firestore.CollectionRef, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(ordersCollection), nil
}

func (r *OrderRepository) docRef(ctx context.Context, orderID int64) (*firestore.DocumentRef, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	return coll.Doc(strconv.FormatInt(orderID, 10)), nil
}

// Insert stores a new order. When the order carries no ID one is allocated
// from the counter; Create fails on collisions instead of overwriting.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == 0 {
		id, err := r.counters.Next(ctx, orderCounterID)
		if err != nil {
			return domain.Order{}, err
		}
		order.ID = id
	}

	ref, err := r.docRef(ctx, order.ID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := pfirestore.CreateDoc(ctx, ref, encodeOrder(order)); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.insert", err)
	}
	return order, nil
}

// Save replaces the stored document for an existing order.
func (r *OrderRepository) Save(ctx context.Context, order domain.Order) error {
	ref, err := r.docRef(ctx, order.ID)
	if err != nil {
		return err
	}
	if err := pfirestore.SetDoc(ctx, ref, encodeOrder(order)); err != nil {
		return pfirestore.WrapError("orders.save", err)
	}
	return nil
}

// FindByID returns the order or a not-found repository error.
func (r *OrderRepository) FindByID(ctx context.Context, orderID int64) (domain.Order, error) {
	ref, err := r.docRef(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}

	snap, err := pfirestore.GetDoc(ctx, ref)
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}

	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.find", err)
	}
	return doc.toDomain(), nil
}

// ListByOwner returns all orders owned by userID, newest first.
func (r *OrderRepository) ListByOwner(ctx context.Context, userID string) ([]domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Where("userId", "==", userID).OrderBy("createdAt", firestore.Desc)
	snaps, err := pfirestore.QueryDocs(ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("orders.list", err)
	}
	return decodeOrders(snaps)
}

// ListByOwnerFiltered narrows the owner's orders by status and creation date
// and returns one offset page plus the total match count. The full match set
// is materialised before slicing; owner-scoped histories stay small enough
// for that to hold.
func (r *OrderRepository) ListByOwnerFiltered(ctx context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, int64, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, 0, err
	}

	query := coll.Where("userId", "==", userID)
	if filter.Status != "" {
		query = query.Where("status", "==", filter.Status)
	}
	if filter.Since != nil {
		query = query.Where("createdAt", ">=", *filter.Since)
	}
	query = query.OrderBy("createdAt", firestore.Desc)

	snaps, err := pfirestore.QueryDocs(ctx, query)
	if err != nil {
		return nil, 0, pfirestore.WrapError("orders.list_filtered", err)
	}
	orders, err := decodeOrders(snaps)
	if err != nil {
		return nil, 0, err
	}

	total := int64(len(orders))

	page := filter.Page
	if page < 0 {
		page = 0
	}
	size := filter.PageSize
	if size < 1 {
		size = len(orders)
	}
	offset := page * size
	if offset >= len(orders) {
		return []domain.Order{}, total, nil
	}
	end := offset + size
	if end > len(orders) {
		end = len(orders)
	}
	return orders[offset:end], total, nil
}

// ListByStatusAndDateRange returns all orders matching the report filter,
// newest first, regardless of owner.
func (r *OrderRepository) ListByStatusAndDateRange(ctx context.Context, filter repositories.OrderReportFilter) ([]domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}

	query := coll.Query
	if filter.Status != "" {
		query = query.Where("status", "==", filter.Status)
	}
	if filter.Start != nil {
		query = query.Where("createdAt", ">=", *filter.Start)
	}
	if filter.End != nil {
		query = query.Where("createdAt", "<=", *filter.End)
	}
	query = query.OrderBy("createdAt", firestore.Desc)

	snaps, err := pfirestore.QueryDocs(ctx, query)
	if err != nil {
		return nil, pfirestore.WrapError("orders.list_range", err)
	}
	return decodeOrders(snaps)
}

func decodeOrders(snaps []*firestore.DocumentSnapshot) ([]domain.Order, error) {
	orders := make([]domain.Order, 0, len(snaps))
	for _, snap := range snaps {
		var doc orderDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("orders.decode", err)
		}
		orders = append(orders, doc.toDomain())
	}
	return orders, nil
}
