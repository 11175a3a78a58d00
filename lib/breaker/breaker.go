// Package breaker builds circuit breakers for calls to third-party APIs.
package breaker

import (
	"log/slog"
	"time"

	"github.com/medleyhq/medley/lib/metrics"
	gobreaker "github.com/sony/gobreaker/v2"
)

// New returns a breaker that opens once at least 5 of the calls in the
// last minute were made and 60% of them failed.
func New[T any](name string, logger *slog.Logger) *gobreaker.CircuitBreaker[T] {
	return NewWithFilter[T](name, logger, nil)
}

// NewWithFilter is New with errors for which isSuccessful reports true
// counted as successes, so caller mistakes do not open the breaker.
func NewWithFilter[T any](name string, logger *slog.Logger, isSuccessful func(error) bool) *gobreaker.CircuitBreaker[T] {
	metrics.CircuitState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:         name,
		MaxRequests:  3,
		Interval:     time.Minute,
		Timeout:      30 * time.Second,
		IsSuccessful: isSuccessful,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Circuit breaker state changed",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
			metrics.CircuitState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})
}

func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
