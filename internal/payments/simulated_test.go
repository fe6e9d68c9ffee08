package payments

import (
	"context"
	"errors"
	"testing"
)

func TestSimulatedGatewayRules(t *testing.T) {
	ctx := context.Background()
	gw := NewSimulatedGateway()

	cases := []struct {
		name    string
		orderID int64
		amount  int64
		want    error
	}{
		{name: "plain success", orderID: 1, amount: 100, want: nil},
		{name: "multiple of seven", orderID: 7, amount: 100, want: ErrUnreachable},
		{name: "over funds limit", orderID: 3, amount: 10001, want: ErrInsufficientFunds},
		{name: "multiple of five", orderID: 5, amount: 100, want: ErrDuplicatePayment},
		// 35 trips both divisibility rules; the connection rule wins.
		{name: "seven beats five", orderID: 35, amount: 100, want: ErrUnreachable},
		// 14 is unreachable even though the amount also exceeds the limit.
		{name: "seven beats funds limit", orderID: 14, amount: 20000, want: ErrUnreachable},
		// The funds rule outranks the duplicate rule.
		{name: "funds limit beats five", orderID: 5, amount: 20000, want: ErrInsufficientFunds},
		{name: "at the funds limit", orderID: 2, amount: 10000, want: nil},
		{name: "negative amount", orderID: 1, amount: -1, want: ErrUnreachable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := gw.Charge(ctx, ChargeRequest{OrderID: tc.orderID, Amount: tc.amount})
			if tc.want == nil {
				if err != nil {
					t.Fatalf("expected success got %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v got %v", tc.want, err)
			}
		})
	}
}

func TestGatewayErrorMatching(t *testing.T) {
	err := &GatewayError{Kind: FailureInsufficientFunds, Err: errors.New("declined")}

	if !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected kind match")
	}
	if errors.Is(err, ErrUnreachable) || errors.Is(err, ErrDuplicatePayment) {
		t.Fatalf("kinds must not cross-match")
	}

	var gwErr *GatewayError
	if !errors.As(err, &gwErr) || gwErr.Kind != FailureInsufficientFunds {
		t.Fatalf("expected *GatewayError extraction")
	}
}

func TestWrapUnknown(t *testing.T) {
	if WrapUnknown(nil) != nil {
		t.Fatalf("nil must stay nil")
	}

	plain := errors.New("dial tcp: connection refused")
	wrapped := WrapUnknown(plain)
	if !errors.Is(wrapped, ErrUnreachable) {
		t.Fatalf("unknown errors must fold into unreachable, got %v", wrapped)
	}
	if !errors.Is(wrapped, plain) {
		t.Fatalf("cause must stay reachable through Unwrap")
	}

	dup := &GatewayError{Kind: FailureDuplicatePayment}
	if got := WrapUnknown(dup); !errors.Is(got, ErrDuplicatePayment) {
		t.Fatalf("tagged gateway errors must pass through, got %v", got)
	}
}
