package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/back-orders/api/internal/domain"
	"github.com/back-orders/api/internal/repositories"
)

func TestStoreOrderRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := store.Orders()

	stored, err := orders.Insert(ctx, domain.Order{
		UserID:      "user-1",
		Status:      domain.OrderStatusPending,
		TotalAmount: 300,
		Items:       []domain.OrderItem{{ProductID: 1, Quantity: 3, UnitPrice: 100}},
	})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if stored.ID == 0 {
		t.Fatalf("expected allocated id")
	}

	found, err := orders.FindByID(ctx, stored.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.TotalAmount != 300 || len(found.Items) != 1 {
		t.Fatalf("unexpected order %+v", found)
	}

	// Mutating the returned copy must not leak into the store.
	found.Items[0].Quantity = 99
	again, err := orders.FindByID(ctx, stored.ID)
	if err != nil {
		t.Fatalf("find again: %v", err)
	}
	if again.Items[0].Quantity != 3 {
		t.Fatalf("store leaked a mutable reference")
	}

	second, err := orders.Insert(ctx, domain.Order{UserID: "user-1"})
	if err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if second.ID != stored.ID+1 {
		t.Fatalf("expected sequential ids got %d after %d", second.ID, stored.ID)
	}
}

func TestStoreOrderNotFound(t *testing.T) {
	ctx := context.Background()
	store := NewStore()

	_, err := store.Orders().FindByID(ctx, 12345)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not-found repository error got %v", err)
	}

	if err := store.Orders().Save(ctx, domain.Order{ID: 12345}); err == nil {
		t.Fatalf("saving an unknown order must fail")
	}
}

func TestStoreListByOwnerFiltered(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := store.Orders()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		status := domain.OrderStatusPending
		if i%2 == 0 {
			status = domain.OrderStatusPaid
		}
		if _, err := orders.Insert(ctx, domain.Order{
			UserID:    "user-1",
			Status:    status,
			CreatedAt: base.AddDate(0, 0, i),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}
	if _, err := orders.Insert(ctx, domain.Order{UserID: "user-2", Status: domain.OrderStatusPaid, CreatedAt: base}); err != nil {
		t.Fatalf("insert foreign: %v", err)
	}

	items, total, err := orders.ListByOwnerFiltered(ctx, "user-1", repositories.OrderListFilter{Status: "paid"})
	if err != nil {
		t.Fatalf("list filtered: %v", err)
	}
	if total != 3 || len(items) != 3 {
		t.Fatalf("expected 3 paid orders got total=%d len=%d", total, len(items))
	}
	for i := 1; i < len(items); i++ {
		if items[i].CreatedAt.After(items[i-1].CreatedAt) {
			t.Fatalf("expected newest first ordering")
		}
	}

	since := base.AddDate(0, 0, 3)
	items, total, err = orders.ListByOwnerFiltered(ctx, "user-1", repositories.OrderListFilter{Since: &since})
	if err != nil {
		t.Fatalf("list since: %v", err)
	}
	if total != 2 {
		t.Fatalf("expected 2 orders since day 3 got %d", total)
	}

	// Zero-based paging: page 0 holds the newest orders, page 2 of size 2
	// holds the single remaining oldest order.
	items, total, err = orders.ListByOwnerFiltered(ctx, "user-1", repositories.OrderListFilter{Page: 0, PageSize: 2})
	if err != nil {
		t.Fatalf("list first page: %v", err)
	}
	if total != 5 || len(items) != 2 {
		t.Fatalf("expected first page of 2 from 5 got total=%d len=%d", total, len(items))
	}
	firstOfPageZero := items[0].ID

	items, _, err = orders.ListByOwnerFiltered(ctx, "user-1", repositories.OrderListFilter{Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list second page: %v", err)
	}
	if len(items) != 2 || items[0].ID == firstOfPageZero {
		t.Fatalf("expected a distinct second page got len=%d first=%d", len(items), items[0].ID)
	}

	items, total, err = orders.ListByOwnerFiltered(ctx, "user-1", repositories.OrderListFilter{Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("list last page: %v", err)
	}
	if total != 5 || len(items) != 1 {
		t.Fatalf("expected trailing page of 1 got total=%d len=%d", total, len(items))
	}

	items, total, err = orders.ListByOwnerFiltered(ctx, "user-1", repositories.OrderListFilter{Page: 9, PageSize: 2})
	if err != nil {
		t.Fatalf("list beyond: %v", err)
	}
	if total != 5 || len(items) != 0 {
		t.Fatalf("expected empty page past the end got total=%d len=%d", total, len(items))
	}
}

func TestStoreListByStatusAndDateRange(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	orders := store.Orders()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		if _, err := orders.Insert(ctx, domain.Order{
			UserID:    "user-1",
			Status:    domain.OrderStatusDelivered,
			CreatedAt: base.AddDate(0, 0, i),
		}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	start := base.AddDate(0, 0, 1)
	end := base.AddDate(0, 0, 2)
	matched, err := orders.ListByStatusAndDateRange(ctx, repositories.OrderReportFilter{
		Status: "delivered",
		Start:  &start,
		End:    &end,
	})
	if err != nil {
		t.Fatalf("list range: %v", err)
	}
	if len(matched) != 2 {
		t.Fatalf("expected 2 orders in range got %d", len(matched))
	}
}

func TestStoreRunInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	store.SeedProduct(domain.Product{ID: 1, Name: "Widget", Stock: 5})

	boom := errors.New("boom")
	err := store.RunInTx(ctx, func(txCtx context.Context) error {
		product, err := store.Products().FindByID(txCtx, 1)
		if err != nil {
			return err
		}
		product.Stock = 0
		if err := store.Products().Save(txCtx, product); err != nil {
			return err
		}
		if _, err := store.Orders().Insert(txCtx, domain.Order{UserID: "user-1"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom got %v", err)
	}

	product, err := store.Products().FindByID(ctx, 1)
	if err != nil {
		t.Fatalf("find product: %v", err)
	}
	if product.Stock != 5 {
		t.Fatalf("expected rollback to stock 5 got %d", product.Stock)
	}
	if _, err := store.Orders().FindByID(ctx, 1); err == nil {
		t.Fatalf("expected inserted order to be rolled back")
	}

	// A second transaction must start from the restored state, including
	// the ID sequence.
	stored, err := store.Orders().Insert(ctx, domain.Order{UserID: "user-1"})
	if err != nil {
		t.Fatalf("insert after rollback: %v", err)
	}
	if stored.ID != 1 {
		t.Fatalf("expected id sequence restored got %d", stored.ID)
	}
}

func TestStoreCounters(t *testing.T) {
	ctx := context.Background()
	store := NewStore()
	counters := store.Counters()

	for want := int64(1); want <= 3; want++ {
		got, err := counters.Next(ctx, "orders")
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d got %d", want, got)
		}
	}
	if got, _ := counters.Next(ctx, "receipts"); got != 1 {
		t.Fatalf("counters must be independent, got %d", got)
	}
}
