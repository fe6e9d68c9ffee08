package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/back-orders/api/internal/domain"
	"github.com/back-orders/api/internal/repositories"
)

// ReceiptFallbackProductName is used for a line whose product no longer exists.
const ReceiptFallbackProductName = "N/A"

// ReceiptServiceDeps bundles the collaborators of the receipt assembler.
type ReceiptServiceDeps struct {
	Orders   repositories.OrderRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type receiptService struct {
	orders   repositories.OrderRepository
	products repositories.ProductRepository
	clock    func() time.Time
	logger   func(context.Context, string, map[string]any)
}

// NewReceiptService wires dependencies into a concrete ReceiptService.
func NewReceiptService(deps ReceiptServiceDeps) (ReceiptService, error) {
	if deps.Orders == nil {
		return nil, errors.New("receipt service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("receipt service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &receiptService{
		orders:   deps.Orders,
		products: deps.Products,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// AssembleReceipt builds the renderer payload for a paid order. Quantities
// and prices come from the order's own snapshot; only the display name is
// resolved against the live catalog, with a fallback for products that no
// longer exist.
func (s *receiptService) AssembleReceipt(ctx context.Context, cmd ReceiptCommand) (domain.ReceiptData, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.ReceiptData{}, mapRepositoryError(err)
	}

	requestedBy := strings.TrimSpace(cmd.RequestedBy)
	if requestedBy == "" || order.UserID != requestedBy {
		return domain.ReceiptData{}, fmt.Errorf("%w: order %d", ErrReceiptForbidden, cmd.OrderID)
	}
	// Receipts are issued for the paid state only. Later states already
	// shipped a receipt with the payment; earlier ones have nothing to bill.
	if order.Status != domain.OrderStatusPaid {
		return domain.ReceiptData{}, fmt.Errorf("%w: order %d is %q", ErrReceiptNotPaid, order.ID, order.Status)
	}

	lines := make([]domain.ReceiptLine, 0, len(order.Items))
	for _, item := range order.Items {
		name := ReceiptFallbackProductName
		product, err := s.products.FindByID(ctx, item.ProductID)
		switch {
		case err == nil:
			name = product.Name
		case isRepoNotFound(err):
			s.logger(ctx, "receipt.product.missing", map[string]any{
				"order":   order.ID,
				"product": item.ProductID,
			})
		default:
			return domain.ReceiptData{}, mapRepositoryError(err)
		}
		lines = append(lines, domain.ReceiptLine{
			ProductName: name,
			Quantity:    item.Quantity,
			UnitPrice:   item.UnitPrice,
		})
	}

	return domain.ReceiptData{
		OrderID:   order.ID,
		IssuedAt:  s.clock(),
		CreatedAt: order.CreatedAt,
		Status:    order.Status,
		Total:     order.TotalAmount,
		Lines:     lines,
	}, nil
}
