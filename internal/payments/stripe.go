package payments

import (
	"context"
	"fmt"
	"math"

	stripe "github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"
)

// Processor holds funds when an order is placed and settles the hold when
// the order reaches a terminal status.
type Processor interface {
	Hold(ctx context.Context, h Hold) (string, error)
	Capture(ctx context.Context, paymentIntentID string) error
	Cancel(ctx context.Context, paymentIntentID string) error
}

// Hold describes the amount to reserve for one order.
type Hold struct {
	OrderID    string
	CustomerID string
	Amount     float64 // major units, e.g. 12.99
	Currency   string
}

// Cents converts a major-unit amount to the smallest currency unit.
func Cents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// StripeClient runs the PaymentIntent hold/capture/cancel flow.
type StripeClient struct {
	api *client.API
}

func NewStripeClient(apiKey string) *StripeClient {
	return &StripeClient{api: client.New(apiKey, nil)}
}

// Hold creates a PaymentIntent with capture_method=manual and returns its id.
func (s *StripeClient) Hold(ctx context.Context, h Hold) (string, error) {
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(Cents(h.Amount)),
		Currency:      stripe.String(h.Currency),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	params.AddMetadata("order_id", h.OrderID)
	params.AddMetadata("customer_id", h.CustomerID)
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return "", fmt.Errorf("hold order %s: %w", h.OrderID, err)
	}
	return pi.ID, nil
}

func (s *StripeClient) Capture(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Capture(paymentIntentID, params); err != nil {
		return fmt.Errorf("capture %s: %w", paymentIntentID, err)
	}
	return nil
}

// Cancel releases the hold.
func (s *StripeClient) Cancel(ctx context.Context, paymentIntentID string) error {
	params := &stripe.PaymentIntentCancelParams{}
	params.Context = ctx
	if _, err := s.api.PaymentIntents.Cancel(paymentIntentID, params); err != nil {
		return fmt.Errorf("cancel %s: %w", paymentIntentID, err)
	}
	return nil
}
