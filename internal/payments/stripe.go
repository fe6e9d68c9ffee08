package payments

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// StripeLogger defines the logging contract for Stripe gateway operations.
type StripeLogger func(ctx context.Context, event string, fields map[string]any)

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeGatewayConfig configures the StripeGateway.
type StripeGatewayConfig struct {
	APIKey string
	// PaymentMethod is the reusable payment method charged off-session.
	PaymentMethod string
	// Currency applies when a charge request leaves its currency blank.
	Currency string
	Logger   StripeLogger
	Clock    func() time.Time
	// Intents overrides the PaymentIntents client, used by tests.
	Intents stripePaymentIntentAPI
}

// StripeGateway implements Gateway over Stripe PaymentIntents: each charge
// creates and immediately confirms an off-session intent for the order total.
type StripeGateway struct {
	intents       stripePaymentIntentAPI
	paymentMethod string
	currency      string
	clock         func() time.Time
	logger        StripeLogger
}

// NewStripeGateway constructs a Stripe-backed Gateway from the configuration.
func NewStripeGateway(cfg StripeGatewayConfig) (*StripeGateway, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		sc := client.New(apiKey, nil)
		intents = sc.PaymentIntents
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	currency := strings.ToLower(strings.TrimSpace(cfg.Currency))
	if currency == "" {
		currency = "usd"
	}

	return &StripeGateway{
		intents:       intents,
		paymentMethod: strings.TrimSpace(cfg.PaymentMethod),
		currency:      currency,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Charge creates and confirms a PaymentIntent for the order total. Stripe
// failures are mapped onto the closed gateway taxonomy.
func (g *StripeGateway) Charge(ctx context.Context, req ChargeRequest) error {
	if g == nil || g.intents == nil {
		return &GatewayError{Kind: FailureUnreachable, Err: errors.New("stripe: gateway not initialised")}
	}

	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = g.currency
	}

	params := &stripe.PaymentIntentParams{
		Amount:     stripe.Int64(req.Amount),
		Currency:   stripe.String(currency),
		Confirm:    stripe.Bool(true),
		OffSession: stripe.Bool(true),
		Metadata: map[string]string{
			"order_id": strconv.FormatInt(req.OrderID, 10),
		},
	}
	params.Context = ctx
	if g.paymentMethod != "" {
		params.PaymentMethod = stripe.String(g.paymentMethod)
	}
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	intent, err := g.intents.New(params)
	if err != nil {
		mapped := mapStripeChargeError(err)
		g.logger(ctx, "payments.stripe.charge.failed", map[string]any{
			"orderId": req.OrderID,
			"amount":  req.Amount,
			"error":   err.Error(),
		})
		return mapped
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusSucceeded, stripe.PaymentIntentStatusProcessing:
		g.logger(ctx, "payments.stripe.charge.succeeded", map[string]any{
			"orderId":       req.OrderID,
			"paymentIntent": intent.ID,
			"amount":        intent.Amount,
		})
		return nil
	default:
		return &GatewayError{
			Kind: FailureUnreachable,
			Err:  errors.New("stripe: unexpected intent status " + string(intent.Status)),
		}
	}
}

func mapStripeChargeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return WrapUnknown(err)
	}

	if stripeErr.DeclineCode == stripe.DeclineCodeInsufficientFunds {
		return &GatewayError{Kind: FailureInsufficientFunds, Err: err}
	}
	if stripeErr.DeclineCode == stripe.DeclineCodeDuplicateTransaction {
		return &GatewayError{Kind: FailureDuplicatePayment, Err: err}
	}

	switch stripeErr.Code {
	case stripe.ErrorCodeCardDeclined:
		return &GatewayError{Kind: FailureInsufficientFunds, Err: err}
	case stripe.ErrorCodeIdempotencyKeyInUse:
		return &GatewayError{Kind: FailureDuplicatePayment, Err: err}
	}

	switch stripeErr.Type {
	case stripe.ErrorTypeIdempotency:
		return &GatewayError{Kind: FailureDuplicatePayment, Err: err}
	default:
		// API, connection, rate-limit, and authentication failures all
		// surface as the retryable category.
		return &GatewayError{Kind: FailureUnreachable, Err: err}
	}
}
