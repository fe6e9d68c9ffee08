// Package memory provides map-backed repositories useful for testing and
// local development. A single Store owns all collections so the unit of work
// can roll every write back together.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/back-orders/api/internal/domain"
	"github.com/back-orders/api/internal/repositories"
)

// Store is the shared in-memory backend behind the repository views.
type Store struct {
	mu sync.Mutex
	// txMu serializes transactions so snapshot and restore see a stable world.
	txMu sync.Mutex

	orders      map[int64]domain.Order
	products    map[int64]domain.Product
	counters    map[string]int64
	nextOrderID int64
}

// NewStore constructs an empty in-memory store.
func NewStore() *Store {
	return &Store{
		orders:      make(map[int64]domain.Order),
		products:    make(map[int64]domain.Product),
		counters:    make(map[string]int64),
		nextOrderID: 1,
	}
}

// Orders returns the order repository view over the store.
func (s *Store) Orders() repositories.OrderRepository { return &orderRepo{store: s} }

// Products returns the product repository view over the store.
func (s *Store) Products() repositories.ProductRepository { return &productRepo{store: s} }

// Counters returns the counter repository view over the store.
func (s *Store) Counters() repositories.CounterRepository { return &counterRepo{store: s} }

// SeedProduct inserts or replaces a product, used to arrange test fixtures.
func (s *Store) SeedProduct(product domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
}

// RunInTx implements repositories.UnitOfWork by snapshotting all collections
// and restoring them when fn fails. Transactions are serialized; individual
// repository calls inside fn still take the store lock per operation.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snapshot := s.snapshot()
	if err := fn(ctx); err != nil {
		s.restore(snapshot)
		return err
	}
	return nil
}

type storeSnapshot struct {
	orders      map[int64]domain.Order
	products    map[int64]domain.Product
	counters    map[string]int64
	nextOrderID int64
}

func (s *Store) snapshot() storeSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := storeSnapshot{
		orders:      make(map[int64]domain.Order, len(s.orders)),
		products:    make(map[int64]domain.Product, len(s.products)),
		counters:    make(map[string]int64, len(s.counters)),
		nextOrderID: s.nextOrderID,
	}
	for id, order := range s.orders {
		order.Items = order.CloneItems()
		snap.orders[id] = order
	}
	for id, product := range s.products {
		snap.products[id] = product
	}
	for id, value := range s.counters {
		snap.counters[id] = value
	}
	return snap
}

func (s *Store) restore(snap storeSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = snap.orders
	s.products = snap.products
	s.counters = snap.counters
	s.nextOrderID = snap.nextOrderID
}

type orderRepo struct {
	store *Store
}

func (r *orderRepo) Insert(_ context.Context, order domain.Order) (domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == 0 {
		order.ID = s.nextOrderID
		s.nextOrderID++
	} else if _, exists := s.orders[order.ID]; exists {
		return domain.Order{}, repositories.NewConflict("memory.orders.insert",
			fmt.Sprintf("order %d already exists", order.ID))
	} else if order.ID >= s.nextOrderID {
		s.nextOrderID = order.ID + 1
	}

	order.Items = order.CloneItems()
	s.orders[order.ID] = order

	order.Items = order.CloneItems()
	return order, nil
}

func (r *orderRepo) Save(_ context.Context, order domain.Order) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[order.ID]; !exists {
		return repositories.NewNotFound("memory.orders.save",
			fmt.Sprintf("order %d not found", order.ID))
	}
	order.Items = order.CloneItems()
	s.orders[order.ID] = order
	return nil
}

func (r *orderRepo) FindByID(_ context.Context, orderID int64) (domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewNotFound("memory.orders.find",
			fmt.Sprintf("order %d not found", orderID))
	}
	order.Items = order.CloneItems()
	return order, nil
}

func (r *orderRepo) ListByOwner(_ context.Context, userID string) ([]domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.collect(func(order domain.Order) bool {
		return order.UserID == userID
	})
	return matched, nil
}

func (r *orderRepo) ListByOwnerFiltered(_ context.Context, userID string, filter repositories.OrderListFilter) ([]domain.Order, int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.collect(func(order domain.Order) bool {
		if order.UserID != userID {
			return false
		}
		if filter.Status != "" && string(order.Status) != filter.Status {
			return false
		}
		if filter.Since != nil && order.CreatedAt.Before(*filter.Since) {
			return false
		}
		return true
	})

	total := int64(len(matched))

	page := filter.Page
	if page < 0 {
		page = 0
	}
	size := filter.PageSize
	if size < 1 {
		size = len(matched)
	}
	offset := page * size
	if offset >= len(matched) {
		return []domain.Order{}, total, nil
	}
	end := offset + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[offset:end], total, nil
}

func (r *orderRepo) ListByStatusAndDateRange(_ context.Context, filter repositories.OrderReportFilter) ([]domain.Order, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := s.collect(func(order domain.Order) bool {
		if filter.Status != "" && string(order.Status) != filter.Status {
			return false
		}
		if filter.Start != nil && order.CreatedAt.Before(*filter.Start) {
			return false
		}
		if filter.End != nil && order.CreatedAt.After(*filter.End) {
			return false
		}
		return true
	})
	return matched, nil
}

// collect copies matching orders sorted newest first. Callers must hold mu.
func (s *Store) collect(match func(domain.Order) bool) []domain.Order {
	matched := make([]domain.Order, 0)
	for _, order := range s.orders {
		if match(order) {
			order.Items = order.CloneItems()
			matched = append(matched, order)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})
	return matched
}

type productRepo struct {
	store *Store
}

func (r *productRepo) FindByID(_ context.Context, productID int64) (domain.Product, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewNotFound("memory.products.find",
			fmt.Sprintf("product %d not found", productID))
	}
	return product, nil
}

func (r *productRepo) Save(_ context.Context, product domain.Product) error {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

type counterRepo struct {
	store *Store
}

func (r *counterRepo) Next(_ context.Context, counterID string) (int64, error) {
	s := r.store
	s.mu.Lock()
	defer s.mu.Unlock()

	s.counters[counterID]++
	return s.counters[counterID], nil
}
