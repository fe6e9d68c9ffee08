package payments

import (
	"context"
	"errors"
)

const (
	// simulatedFundsLimit is the charge amount above which the simulated
	// gateway reports insufficient funds.
	simulatedFundsLimit = 10000
)

// SimulatedGateway is a deterministic, rule-based gateway for local runs and
// tests. Outcomes depend only on the order ID and amount:
//
//   - id divisible by 7 (nonzero)  -> unreachable
//   - amount above the funds limit -> insufficient funds
//   - id divisible by 5 (nonzero)  -> duplicate payment
//   - otherwise                    -> success
//
// The rules are evaluated in that order, matching the behaviour integration
// suites assert against.
type SimulatedGateway struct{}

// NewSimulatedGateway constructs the rule-based gateway.
func NewSimulatedGateway() *SimulatedGateway {
	return &SimulatedGateway{}
}

// Charge applies the simulation rules to the request.
func (g *SimulatedGateway) Charge(_ context.Context, req ChargeRequest) error {
	if req.Amount < 0 {
		return &GatewayError{Kind: FailureUnreachable, Err: errors.New("negative charge amount")}
	}

	if req.OrderID != 0 && req.OrderID%7 == 0 {
		return &GatewayError{Kind: FailureUnreachable, Err: errors.New("simulated gateway connection error")}
	}
	if req.Amount > simulatedFundsLimit {
		return &GatewayError{Kind: FailureInsufficientFunds}
	}
	if req.OrderID != 0 && req.OrderID%5 == 0 {
		return &GatewayError{Kind: FailureDuplicatePayment}
	}
	return nil
}
