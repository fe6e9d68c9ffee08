package payments

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind enumerates the closed set of charge failure categories callers
// may observe. Anything a gateway implementation reports outside this set is
// wrapped into FailureUnreachable before surfacing.
type FailureKind string

const (
	// FailureUnreachable covers transient connectivity or gateway-side
	// outages. An external caller may retry with backoff.
	FailureUnreachable FailureKind = "unreachable"
	// FailureInsufficientFunds indicates the charge was declined for lack
	// of funds. Terminal for this attempt.
	FailureInsufficientFunds FailureKind = "insufficient_funds"
	// FailureDuplicatePayment indicates the gateway detected the charge as
	// a duplicate of an earlier one. Terminal for this attempt.
	FailureDuplicatePayment FailureKind = "duplicate_payment"
)

var (
	// ErrUnreachable matches GatewayErrors of kind FailureUnreachable via errors.Is.
	ErrUnreachable = &GatewayError{Kind: FailureUnreachable}
	// ErrInsufficientFunds matches GatewayErrors of kind FailureInsufficientFunds.
	ErrInsufficientFunds = &GatewayError{Kind: FailureInsufficientFunds}
	// ErrDuplicatePayment matches GatewayErrors of kind FailureDuplicatePayment.
	ErrDuplicatePayment = &GatewayError{Kind: FailureDuplicatePayment}
)

// GatewayError categorises a failed charge attempt.
type GatewayError struct {
	Kind FailureKind
	Err  error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("payments: charge failed (%s): %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("payments: charge failed (%s)", e.Kind)
}

// Unwrap returns the underlying cause when present.
func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports kind equality so callers can match with errors.Is against the
// exported sentinels.
func (e *GatewayError) Is(target error) bool {
	var other *GatewayError
	if !errors.As(target, &other) {
		return false
	}
	return e != nil && e.Kind == other.Kind
}

// WrapUnknown folds an arbitrary gateway failure into the closed taxonomy.
// GatewayErrors pass through untouched; everything else becomes unreachable.
func WrapUnknown(err error) error {
	if err == nil {
		return nil
	}
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr
	}
	return &GatewayError{Kind: FailureUnreachable, Err: err}
}

// ChargeRequest describes a single charge attempt for an order's total.
type ChargeRequest struct {
	OrderID        int64
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Gateway is the pluggable payment-processing capability invoked during the
// pay transition. Charge returns nil on success or a *GatewayError carrying
// one of the three failure kinds.
type Gateway interface {
	Charge(ctx context.Context, req ChargeRequest) error
}
