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

const (
	historyDateLayout  = "2006-01-02"
	defaultHistorySize = 20
	maxHistorySize     = 100
)

// OrderQueryServiceDeps bundles the collaborators of the read side.
type OrderQueryServiceDeps struct {
	Orders repositories.OrderRepository
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderQueryService struct {
	orders repositories.OrderRepository
	logger func(context.Context, string, map[string]any)
}

// NewOrderQueryService wires dependencies into a concrete OrderQueryService.
func NewOrderQueryService(deps OrderQueryServiceDeps) (OrderQueryService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order query service: order repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderQueryService{orders: deps.Orders, logger: logger}, nil
}

func (s *orderQueryService) History(ctx context.Context, userID string) ([]domain.OrderSummary, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListByOwner(ctx, userID)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return summarizeAll(orders), nil
}

// HistoryPage narrows a user's history by status and creation date and pages
// through the result. Filter inputs are forgiving: an unknown status or an
// unparseable date silently widens the query instead of failing it.
func (s *orderQueryService) HistoryPage(ctx context.Context, query HistoryPageQuery) (domain.Page[domain.OrderSummary], error) {
	userID := strings.TrimSpace(query.UserID)
	if userID == "" {
		return domain.Page[domain.OrderSummary]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}

	filter := repositories.OrderListFilter{
		Page:     query.Page,
		PageSize: query.PageSize,
	}
	// The page index is zero-based: page 0 is the newest slice.
	if filter.Page < 0 {
		filter.Page = 0
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultHistorySize
	}
	if filter.PageSize > maxHistorySize {
		filter.PageSize = maxHistorySize
	}

	if status, ok := domain.ParseOrderStatus(query.Status); ok {
		filter.Status = string(status)
	}
	if raw := strings.TrimSpace(query.Since); raw != "" {
		since, err := time.Parse(historyDateLayout, raw)
		if err != nil {
			s.logger(ctx, "order.history.since.ignored", map[string]any{
				"user":  userID,
				"since": raw,
			})
		} else {
			since = since.UTC()
			filter.Since = &since
		}
	}

	orders, total, err := s.orders.ListByOwnerFiltered(ctx, userID, filter)
	if err != nil {
		return domain.Page[domain.OrderSummary]{}, mapRepositoryError(err)
	}

	return domain.Page[domain.OrderSummary]{
		Items:      summarizeAll(orders),
		TotalCount: total,
		Page:       filter.Page,
		PageSize:   filter.PageSize,
	}, nil
}

// Report lists orders across all users by status and an inclusive creation
// date range. Unlike history filtering, bad date input here is an error:
// reports feed downstream accounting and must not silently widen.
func (s *orderQueryService) Report(ctx context.Context, query ReportQuery) ([]domain.OrderSummary, error) {
	filter := repositories.OrderReportFilter{}

	if status, ok := domain.ParseOrderStatus(query.Status); ok {
		filter.Status = string(status)
	} else if strings.TrimSpace(query.Status) != "" {
		return nil, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, query.Status)
	}

	if raw := strings.TrimSpace(query.Start); raw != "" {
		start, err := time.Parse(historyDateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: start date must match %s", ErrOrderInvalidInput, historyDateLayout)
		}
		start = start.UTC()
		filter.Start = &start
	}
	if raw := strings.TrimSpace(query.End); raw != "" {
		end, err := time.Parse(historyDateLayout, raw)
		if err != nil {
			return nil, fmt.Errorf("%w: end date must match %s", ErrOrderInvalidInput, historyDateLayout)
		}
		// Inclusive range: extend to the last instant of the end day.
		end = end.UTC().Add(24*time.Hour - time.Nanosecond)
		filter.End = &end
	}
	if filter.Start != nil && filter.End != nil && filter.End.Before(*filter.Start) {
		return nil, fmt.Errorf("%w: end date precedes start date", ErrOrderInvalidInput)
	}

	orders, err := s.orders.ListByStatusAndDateRange(ctx, filter)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	return summarizeAll(orders), nil
}

func summarizeAll(orders []domain.Order) []domain.OrderSummary {
	summaries := make([]domain.OrderSummary, 0, len(orders))
	for _, order := range orders {
		summaries = append(summaries, order.Summarize())
	}
	return summaries
}
