package payments

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/stripe/stripe-go/v76"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"card", &stripe.Error{Type: stripe.ErrorTypeCard, HTTPStatusCode: http.StatusPaymentRequired}, MsgCardError},
		{"rate limit", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusTooManyRequests}, MsgRateLimited},
		{"invalid request", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusBadRequest}, MsgInvalidRequest},
		{"authentication", &stripe.Error{Type: stripe.ErrorTypeInvalidRequest, HTTPStatusCode: http.StatusUnauthorized}, MsgAuthentication},
		{"api", &stripe.Error{Type: stripe.ErrorTypeAPI, HTTPStatusCode: http.StatusInternalServerError}, MsgStripeError},
		{"wrapped card", fmt.Errorf("charge: %w", &stripe.Error{Type: stripe.ErrorTypeCard}), MsgCardError},
		{"network", &net.OpError{Op: "dial", Err: errors.New("refused")}, MsgConnection},
		{"timeout", context.DeadlineExceeded, MsgConnection},
		{"breaker open", gobreaker.ErrOpenState, MsgConnection},
		{"unknown", errors.New("nil pointer"), MsgUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsCallerError(t *testing.T) {
	if !isCallerError(&stripe.Error{Type: stripe.ErrorTypeCard}) {
		t.Error("card decline should not count against the breaker")
	}
	if isCallerError(&stripe.Error{Type: stripe.ErrorTypeAPI}) {
		t.Error("api error should count against the breaker")
	}
	if isCallerError(errors.New("dial tcp")) {
		t.Error("network error should count against the breaker")
	}
}

func TestToCents(t *testing.T) {
	tests := map[float64]int64{
		0:      0,
		19.99:  1999,
		0.1:    10,
		123.45: 12345,
		10.005: 1000,
	}
	for in, want := range tests {
		if got := ToCents(in); got != want {
			t.Errorf("ToCents(%v) = %d, want %d", in, got, want)
		}
	}
}
