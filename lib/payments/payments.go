// Package payments charges cards through Stripe.
package payments

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/medleyhq/medley/lib/breaker"
	"github.com/medleyhq/medley/lib/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/charge"
)

// Messages shown to shoppers when a charge fails.
const (
	MsgCardError      = "There was a card error."
	MsgRateLimited    = "Too many requests to Stripe."
	MsgInvalidRequest = "Invalid parameters."
	MsgAuthentication = "Authentication with Stripe failed."
	MsgConnection     = "Network communication with Stripe failed."
	MsgStripeError    = "Something went wrong. You were not charged. Please try again."
	MsgUnknown        = "A serious error occurred. We have been notified."
)

// Charger creates a one-off card charge and returns its id.
type Charger interface {
	Charge(ctx context.Context, amountCents int64, source, description string) (string, error)
}

type Stripe struct {
	client charge.Client
	cb     *gobreaker.CircuitBreaker[*stripe.Charge]
	logger *slog.Logger
}

func NewStripe(secretKey string, logger *slog.Logger) *Stripe {
	return &Stripe{
		client: charge.Client{B: stripe.GetBackend(stripe.APIBackend), Key: secretKey},
		cb:     breaker.NewWithFilter[*stripe.Charge]("stripe", logger, isCallerError),
		logger: logger,
	}
}

func (s *Stripe) Charge(ctx context.Context, amountCents int64, source, description string) (string, error) {
	params := &stripe.ChargeParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(string(stripe.CurrencyUSD)),
		Description: stripe.String(description),
	}
	params.Context = ctx
	if err := params.SetSource(source); err != nil {
		return "", fmt.Errorf("invalid payment source: %w", err)
	}

	start := time.Now()
	ch, err := s.cb.Execute(func() (*stripe.Charge, error) {
		return s.client.New(params)
	})
	metrics.ObserveExternal("stripe", start, err)
	if err != nil {
		return "", err
	}

	s.logger.Info("Charged card", slog.String("charge_id", ch.ID), slog.Int64("amount", amountCents))
	return ch.ID, nil
}

// isCallerError reports declines and bad requests, which say nothing about
// Stripe's availability.
func isCallerError(err error) bool {
	if err == nil {
		return true
	}
	var se *stripe.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Type == stripe.ErrorTypeCard || se.Type == stripe.ErrorTypeInvalidRequest
}

// Classify maps a charge error to the message shown to the shopper.
func Classify(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return MsgConnection
	}

	var se *stripe.Error
	if !errors.As(err, &se) {
		if errors.Is(err, context.DeadlineExceeded) || isNetError(err) {
			return MsgConnection
		}
		return MsgUnknown
	}

	switch {
	case se.Type == stripe.ErrorTypeCard:
		return MsgCardError
	case se.HTTPStatusCode == http.StatusTooManyRequests:
		return MsgRateLimited
	case se.HTTPStatusCode == http.StatusUnauthorized:
		return MsgAuthentication
	case se.Type == stripe.ErrorTypeInvalidRequest:
		return MsgInvalidRequest
	default:
		return MsgStripeError
	}
}

// ToCents converts a dollar amount to whole cents, truncating like int(x*100).
func ToCents(amount float64) int64 {
	return int64(math.Floor(amount*100 + 1e-9))
}

func isNetError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
