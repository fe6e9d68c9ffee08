package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/back-orders/api/internal/domain"
	"github.com/back-orders/api/internal/notifications"
	"github.com/back-orders/api/internal/payments"
	"github.com/back-orders/api/internal/repositories"
)

// OrderServiceDeps bundles collaborators required to construct the lifecycle engine.
type OrderServiceDeps struct {
	Orders     repositories.OrderRepository
	Products   repositories.ProductRepository
	Gateway    payments.Gateway
	Notifier   notifications.Notifier
	UnitOfWork repositories.UnitOfWork
	Clock      func() time.Time
	ChargeKey  func() string
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	products  repositories.ProductRepository
	gateway   payments.Gateway
	notifier  notifications.Notifier
	unit      repositories.UnitOfWork
	clock     func() time.Time
	chargeKey func() string
	logger    func(context.Context, string, map[string]any)
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("order service: product repository is required")
	}
	if deps.Gateway == nil {
		return nil, errors.New("order service: payment gateway is required")
	}

	unit := deps.UnitOfWork
	if unit == nil {
		unit = noopUnitOfWork{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	chargeKey := deps.ChargeKey
	if chargeKey == nil {
		chargeKey = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:   deps.Orders,
		products: deps.Products,
		gateway:  deps.Gateway,
		notifier: deps.Notifier,
		unit:     unit,
		clock: func() time.Time {
			return clock().UTC()
		},
		chargeKey: chargeKey,
		logger:    logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (domain.Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if len(cmd.Lines) == 0 {
		return domain.Order{}, fmt.Errorf("%w: order must contain at least one item", ErrOrderInvalidInput)
	}
	for _, line := range cmd.Lines {
		if line.Quantity <= 0 {
			return domain.Order{}, fmt.Errorf("%w: quantity must be positive for product %d", ErrOrderInvalidInput, line.ProductID)
		}
	}

	now := s.clock()
	var created domain.Order

	// All reads happen before the first write: firestore transactions
	// reject Get calls once a write is buffered, and Insert itself reads
	// the ID counter before writing the order document.
	err := s.runInTx(ctx, func(txCtx context.Context) error {
		reserved := make([]domain.Product, 0, len(cmd.Lines))
		items := make([]domain.OrderItem, 0, len(cmd.Lines))
		var total int64

		for _, line := range cmd.Lines {
			product, err := s.products.FindByID(txCtx, line.ProductID)
			if err != nil {
				if isRepoNotFound(err) {
					return fmt.Errorf("%w: unknown product %d", ErrOrderInvalidInput, line.ProductID)
				}
				return s.mapRepositoryError(err)
			}
			if product.Stock < line.Quantity {
				return fmt.Errorf("%w: product %d has %d in stock, %d requested",
					ErrInsufficientStock, product.ID, product.Stock, line.Quantity)
			}

			product.Stock -= line.Quantity
			product.UpdatedAt = now
			reserved = append(reserved, product)

			items = append(items, domain.OrderItem{
				ProductID: product.ID,
				Quantity:  line.Quantity,
				UnitPrice: product.Price,
			})
			total += product.Price * int64(line.Quantity)
		}

		order := domain.Order{
			UserID:      userID,
			Status:      domain.OrderStatusPending,
			TotalAmount: total,
			Items:       items,
			CreatedAt:   now,
			UpdatedAt:   now,
		}

		stored, err := s.orders.Insert(txCtx, order)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		for _, product := range reserved {
			if err := s.products.Save(txCtx, product); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		created = stored
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.created", map[string]any{
		"order": created.ID,
		"user":  created.UserID,
		"total": created.TotalAmount,
	})
	return created, nil
}

func (s *orderService) GetOrder(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}
	return order, nil
}

// Cancel moves a pending order to cancelled, restituting every item's
// quantity to its product stock. Orders in any other state yield
// ErrOrderNotCancellable and no mutation at all. Restitution and the status
// change commit as one unit; a product that can no longer be resolved is
// skipped so it cannot block the remaining items or the cancellation itself.
func (s *orderService) Cancel(ctx context.Context, orderID int64) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, fmt.Errorf("%w: order %d is %q", ErrOrderNotCancellable, order.ID, order.Status)
	}

	now := s.clock()

	// The transaction re-reads the order and re-checks the precondition so a
	// transition committed between the lookup above and this body cannot be
	// overwritten. Reads happen before the first write: firestore
	// transactions reject Get calls once a write is buffered.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Status != domain.OrderStatusPending {
			return fmt.Errorf("%w: order %d is %q", ErrOrderNotCancellable, current.ID, current.Status)
		}

		restocked := make([]domain.Product, 0, len(current.Items))
		for _, item := range current.Items {
			product, err := s.products.FindByID(txCtx, item.ProductID)
			if err != nil {
				if isRepoNotFound(err) {
					s.logger(txCtx, "order.cancel.restitution.skipped", map[string]any{
						"order":   current.ID,
						"product": item.ProductID,
					})
					continue
				}
				return s.mapRepositoryError(err)
			}
			product.Stock += item.Quantity
			product.UpdatedAt = now
			restocked = append(restocked, product)
		}

		current.Status = domain.OrderStatusCancelled
		current.CancelledAt = &now
		current.UpdatedAt = now

		for _, product := range restocked {
			if err := s.products.Save(txCtx, product); err != nil {
				return s.mapRepositoryError(err)
			}
		}
		if err := s.orders.Save(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.cancelled", map[string]any{
		"order": order.ID,
		"items": len(order.Items),
	})
	return order, nil
}

// ProcessPayment charges the order's total through the gateway and marks the
// order paid. Gateway failures surface as *payments.GatewayError without
// mutating the order; unknown failures are folded into the unreachable kind.
func (s *orderService) ProcessPayment(ctx context.Context, cmd ProcessPaymentCommand) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusCancelled {
		return domain.Order{}, &StateError{Current: order.Status, Required: RequiredStateActive}
	}
	if order.Status != domain.OrderStatusPending {
		return domain.Order{}, &StateError{Current: order.Status, Required: RequiredStatePending}
	}

	key := strings.TrimSpace(cmd.IdempotencyKey)
	if key == "" {
		key = s.chargeKey()
	}

	if err := s.gateway.Charge(ctx, payments.ChargeRequest{
		OrderID:        order.ID,
		Amount:         order.TotalAmount,
		IdempotencyKey: key,
	}); err != nil {
		return domain.Order{}, payments.WrapUnknown(err)
	}

	now := s.clock()

	// Re-read and re-check inside the transaction: a cancel committed after
	// the charge must win over a blind paid write, even at the price of a
	// charge that then needs refunding out of band.
	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, order.ID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Status == domain.OrderStatusCancelled {
			return &StateError{Current: current.Status, Required: RequiredStateActive}
		}
		if current.Status != domain.OrderStatusPending {
			return &StateError{Current: current.Status, Required: RequiredStatePending}
		}

		current.Status = domain.OrderStatusPaid
		current.PaidAt = &now
		current.UpdatedAt = now
		if err := s.orders.Save(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.notify(ctx, "payment", order, func(nctx context.Context) error {
		return s.notifier.NotifyPaymentConfirmed(nctx, order)
	})
	return order, nil
}

// ConfirmDelivery marks an in-flight order delivered on behalf of its owner.
// A missing order and a non-owning caller are indistinguishable to the
// caller: both yield ErrOrderNotFound.
func (s *orderService) ConfirmDelivery(ctx context.Context, cmd ConfirmDeliveryCommand) (domain.Order, error) {
	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" || order.UserID != userID {
		return domain.Order{}, fmt.Errorf("%w: order %d", ErrOrderNotFound, cmd.OrderID)
	}

	if order.Status != domain.OrderStatusInDelivery && order.Status != domain.OrderStatusPendingDelivery {
		return domain.Order{}, &StateError{Current: order.Status, Required: RequiredStateDelivery}
	}

	now := s.clock()

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.UserID != userID {
			return fmt.Errorf("%w: order %d", ErrOrderNotFound, cmd.OrderID)
		}
		if current.Status != domain.OrderStatusInDelivery && current.Status != domain.OrderStatusPendingDelivery {
			return &StateError{Current: current.Status, Required: RequiredStateDelivery}
		}

		current.Status = domain.OrderStatusDelivered
		current.DeliveredAt = &now
		current.UpdatedAt = now
		if err := s.orders.Save(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.notify(ctx, "delivery", order, func(nctx context.Context) error {
		return s.notifier.NotifyDeliveryConfirmed(nctx, order)
	})
	return order, nil
}

// UpdateStatus sets the order's status directly. It validates the target
// against the closed enumeration and refuses cancelled orders, but it does
// NOT enforce the transition table: it exists for administrative correction.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) (domain.Order, error) {
	target, ok := domain.ParseOrderStatus(cmd.Status)
	if !ok {
		return domain.Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}

	order, err := s.orders.FindByID(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, s.mapRepositoryError(err)
	}

	if order.Status == domain.OrderStatusCancelled {
		return domain.Order{}, &StateError{Current: order.Status, Required: RequiredStateActive}
	}

	now := s.clock()
	previous := order.Status

	err = s.runInTx(ctx, func(txCtx context.Context) error {
		current, err := s.orders.FindByID(txCtx, cmd.OrderID)
		if err != nil {
			return s.mapRepositoryError(err)
		}
		if current.Status == domain.OrderStatusCancelled {
			return &StateError{Current: current.Status, Required: RequiredStateActive}
		}

		previous = current.Status
		current.Status = target
		current.UpdatedAt = now
		switch target {
		case domain.OrderStatusPaid:
			current.PaidAt = &now
		case domain.OrderStatusDelivered:
			current.DeliveredAt = &now
		case domain.OrderStatusCancelled:
			current.CancelledAt = &now
		}

		if err := s.orders.Save(txCtx, current); err != nil {
			return s.mapRepositoryError(err)
		}
		order = current
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.logger(ctx, "order.status.updated", map[string]any{
		"order": order.ID,
		"from":  string(previous),
		"to":    string(target),
		"actor": cmd.ActorID,
	})
	return order, nil
}

// notify fires a notification without letting failures reach the caller.
func (s *orderService) notify(ctx context.Context, kind string, order domain.Order, fn func(context.Context) error) {
	if s.notifier == nil {
		return
	}
	if err := fn(ctx); err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"kind":  kind,
			"order": order.ID,
			"error": err.Error(),
		})
	}
}

func (s *orderService) runInTx(ctx context.Context, fn func(context.Context) error) error {
	if s.unit == nil {
		return fn(ctx)
	}
	return s.unit.RunInTx(ctx, fn)
}

func (s *orderService) mapRepositoryError(err error) error {
	return mapRepositoryError(err)
}

func mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("order: repository unavailable: %w", err)
		}
	}
	return err
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

type noopUnitOfWork struct{}

func (noopUnitOfWork) RunInTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}
