package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/back-orders/api/internal/domain"
	"github.com/back-orders/api/internal/payments"
	"github.com/back-orders/api/internal/platform/auth"
	"github.com/back-orders/api/internal/platform/httpx"
	"github.com/back-orders/api/internal/services"
)

const (
	maxOrderBodySize        = 16 * 1024
	maxStatusUpdateBodySize = 4 * 1024
)

type createOrderRequest struct {
	Items []createOrderItemRequest `json:"items"`
}

type createOrderItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

// OrderHandlers exposes the order lifecycle endpoints.
type OrderHandlers struct {
	authn        *auth.Authenticator
	orders       services.OrderService
	queries      services.OrderQueryService
	receipts     services.ReceiptService
	paymentGuard func(http.Handler) http.Handler
}

// OrderHandlersDeps bundles the collaborators for OrderHandlers.
type OrderHandlersDeps struct {
	Authenticator *auth.Authenticator
	Orders        services.OrderService
	Queries       services.OrderQueryService
	Receipts      services.ReceiptService
	// PaymentGuard wraps the payment endpoint, typically with the
	// idempotency middleware. Optional.
	PaymentGuard func(http.Handler) http.Handler
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(deps OrderHandlersDeps) *OrderHandlers {
	return &OrderHandlers{
		authn:        deps.Authenticator,
		orders:       deps.Orders,
		queries:      deps.Queries,
		receipts:     deps.Receipts,
		paymentGuard: deps.PaymentGuard,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth())
		}
		g.Post("/", h.createOrder)
		g.Get("/", h.listOrders)
		g.Get("/{orderID}", h.getOrder)
		g.Post("/{orderID}:cancel", h.cancelOrder)
		g.Post("/{orderID}/delivery-confirmation", h.confirmDelivery)
		g.Get("/{orderID}/receipt", h.getReceipt)

		payment := g
		if h.paymentGuard != nil {
			payment = g.With(h.paymentGuard)
		}
		payment.Post("/{orderID}/payment", h.processPayment)
	})

	r.Group(func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(auth.RoleStaff, auth.RoleAdmin))
		}
		g.Get("/report", h.getReport)
		g.Patch("/{orderID}/status", h.updateStatus)
	})
}

func (h *OrderHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxOrderBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	lines := make([]services.CreateOrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, services.CreateOrderLine{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orders.Create(ctx, services.CreateOrderCommand{
		UserID: identity.Subject,
		Lines:  lines,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	query := r.URL.Query()

	page := 0
	if raw := strings.TrimSpace(query.Get("page")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page must be an integer", http.StatusBadRequest))
			return
		}
		page = parsed
	}

	pageSize := 0
	if raw := strings.TrimSpace(query.Get("page_size")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "page_size must be an integer", http.StatusBadRequest))
			return
		}
		pageSize = parsed
	}

	result, err := h.queries.HistoryPage(ctx, services.HistoryPageQuery{
		UserID:   identity.Subject,
		Status:   strings.TrimSpace(query.Get("status")),
		Since:    strings.TrimSpace(query.Get("since")),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(result.Items))
	for _, summary := range result.Items {
		items = append(items, buildSummaryPayload(summary))
	}

	writeJSONResponse(w, http.StatusOK, historyResponse{
		Items:      items,
		TotalCount: result.TotalCount,
		Page:       result.Page,
		PageSize:   result.PageSize,
	})
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	if !canViewOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !canViewOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	cancelled, err := h.orders.Cancel(ctx, orderID)
	if err != nil {
		// A non-pending order is not cancellable; the request is
		// acknowledged without touching the order.
		if errors.Is(err, services.ErrOrderNotCancellable) {
			writeJSONResponse(w, http.StatusOK, cancelResponse{Cancelled: false})
			return
		}
		writeOrderError(ctx, w, err)
		return
	}

	payload := buildOrderPayload(cancelled)
	writeJSONResponse(w, http.StatusOK, cancelResponse{Cancelled: true, Order: &payload})
}

func (h *OrderHandlers) processPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	if !canViewOrder(identity, order) {
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
		return
	}

	paid, err := h.orders.ProcessPayment(ctx, services.ProcessPaymentCommand{
		OrderID:        orderID,
		IdempotencyKey: strings.TrimSpace(r.Header.Get("Idempotency-Key")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(paid)})
}

func (h *OrderHandlers) confirmDelivery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(ctx, w, r)
	if !ok {
		return
	}

	order, err := h.orders.ConfirmDelivery(ctx, services.ConfirmDeliveryCommand{
		OrderID: orderID,
		UserID:  identity.Subject,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(ctx, w, r)
	if !ok {
		return
	}

	body, err := readLimitedBody(r, maxStatusUpdateBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req updateStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON body", http.StatusBadRequest))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateStatusCommand{
		OrderID: orderID,
		Status:  req.Status,
		ActorID: identity.Subject,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponse{Order: buildOrderPayload(order)})
}

func (h *OrderHandlers) getReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	summaries, err := h.queries.Report(ctx, services.ReportQuery{
		Status: strings.TrimSpace(query.Get("status")),
		Start:  strings.TrimSpace(query.Get("start")),
		End:    strings.TrimSpace(query.Get("end")),
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	items := make([]orderSummaryPayload, 0, len(summaries))
	for _, summary := range summaries {
		items = append(items, buildSummaryPayload(summary))
	}

	writeJSONResponse(w, http.StatusOK, reportResponse{Items: items})
}

func (h *OrderHandlers) getReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := requireIdentity(ctx, w)
	if !ok {
		return
	}

	orderID, ok := parseOrderID(ctx, w, r)
	if !ok {
		return
	}

	receipt, err := h.receipts.AssembleReceipt(ctx, services.ReceiptCommand{
		OrderID:     orderID,
		RequestedBy: identity.Subject,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, receiptResponse{Receipt: buildReceiptPayload(receipt)})
}

type orderResponse struct {
	Order orderPayload `json:"order"`
}

type cancelResponse struct {
	Cancelled bool          `json:"cancelled"`
	Order     *orderPayload `json:"order,omitempty"`
}

type historyResponse struct {
	Items      []orderSummaryPayload `json:"items"`
	TotalCount int64                 `json:"total_count"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
}

type reportResponse struct {
	Items []orderSummaryPayload `json:"items"`
}

type receiptResponse struct {
	Receipt receiptPayload `json:"receipt"`
}

type orderPayload struct {
	ID          int64              `json:"id"`
	UserID      string             `json:"user_id"`
	Status      string             `json:"status"`
	TotalAmount int64              `json:"total_amount"`
	Items       []orderItemPayload `json:"items"`
	CreatedAt   string             `json:"created_at"`
	UpdatedAt   string             `json:"updated_at,omitempty"`
	PaidAt      string             `json:"paid_at,omitempty"`
	DeliveredAt string             `json:"delivered_at,omitempty"`
	CancelledAt string             `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	UnitPrice int64 `json:"unit_price"`
}

type orderSummaryPayload struct {
	OrderID   int64              `json:"order_id"`
	CreatedAt string             `json:"created_at"`
	Status    string             `json:"status"`
	Total     int64              `json:"total"`
	Items     []orderItemPayload `json:"items"`
}

type receiptPayload struct {
	OrderID   int64                `json:"order_id"`
	IssuedAt  string               `json:"issued_at"`
	CreatedAt string               `json:"created_at"`
	Status    string               `json:"status"`
	Total     int64                `json:"total"`
	Lines     []receiptLinePayload `json:"lines"`
}

type receiptLinePayload struct {
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
}

func buildOrderPayload(order domain.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orderPayload{
		ID:          order.ID,
		UserID:      order.UserID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount,
		Items:       items,
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
		PaidAt:      formatTimePtr(order.PaidAt),
		DeliveredAt: formatTimePtr(order.DeliveredAt),
		CancelledAt: formatTimePtr(order.CancelledAt),
	}
}

func buildSummaryPayload(summary domain.OrderSummary) orderSummaryPayload {
	items := make([]orderItemPayload, 0, len(summary.Items))
	for _, item := range summary.Items {
		items = append(items, orderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return orderSummaryPayload{
		OrderID:   summary.OrderID,
		CreatedAt: formatTime(summary.CreatedAt),
		Status:    string(summary.Status),
		Total:     summary.Total,
		Items:     items,
	}
}

func buildReceiptPayload(receipt domain.ReceiptData) receiptPayload {
	lines := make([]receiptLinePayload, 0, len(receipt.Lines))
	for _, line := range receipt.Lines {
		lines = append(lines, receiptLinePayload{
			ProductName: line.ProductName,
			Quantity:    line.Quantity,
			UnitPrice:   line.UnitPrice,
		})
	}
	return receiptPayload{
		OrderID:   receipt.OrderID,
		IssuedAt:  formatTime(receipt.IssuedAt),
		CreatedAt: formatTime(receipt.CreatedAt),
		Status:    string(receipt.Status),
		Total:     receipt.Total,
		Lines:     lines,
	}
}

func requireIdentity(ctx context.Context, w http.ResponseWriter) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil || strings.TrimSpace(identity.Subject) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func parseOrderID(ctx context.Context, w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := strings.TrimSpace(chi.URLParam(r, "orderID"))
	if raw == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id is required", http.StatusBadRequest))
		return 0, false
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id must be a positive integer", http.StatusBadRequest))
		return 0, false
	}
	return id, true
}

func canViewOrder(identity *auth.Identity, order domain.Order) bool {
	if identity == nil {
		return false
	}
	if strings.EqualFold(strings.TrimSpace(order.UserID), strings.TrimSpace(identity.Subject)) {
		return true
	}
	return identity.HasAnyRole(auth.RoleStaff, auth.RoleAdmin)
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "unable to read request body", http.StatusBadRequest))
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	var stateErr *services.StateError
	if errors.As(err, &stateErr) {
		httpx.WriteError(ctx, w, httpx.NewError("order_state_conflict", stateErr.Error(), http.StatusConflict).
			WithDetails(map[string]any{
				"current_status": string(stateErr.Current),
				"required_state": stateErr.Required,
			}))
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrReceiptForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("receipt_forbidden", "receipt belongs to another user", http.StatusForbidden))
	case errors.Is(err, services.ErrReceiptNotPaid):
		httpx.WriteError(ctx, w, httpx.NewError("receipt_not_available", "receipt is only available for paid orders", http.StatusConflict))
	case errors.Is(err, payments.ErrInsufficientFunds):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_funds", "payment declined for insufficient funds", http.StatusPaymentRequired))
	case errors.Is(err, payments.ErrDuplicatePayment):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_payment", "payment already processed for this order", http.StatusConflict))
	case errors.Is(err, payments.ErrUnreachable):
		httpx.WriteError(ctx, w, httpx.NewError("payment_gateway_unreachable", "payment gateway unreachable, try again later", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}
