package upstream

import (
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/metrics"
)

// newBreaker opens after at least 10 requests in a minute with a failure
// rate of 60% or more, and retries after 30 seconds.
// Not-found and bad-request answers are healthy responses.
func newBreaker(name string) *gobreaker.CircuitBreaker[*response] {
	metrics.CircuitBreakerState.WithLabelValues(name).Set(0)

	return gobreaker.NewCircuitBreaker[*response](gobreaker.Settings{
		Name:        name,
		MaxRequests: 2,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("provider", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state change")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound) || errors.Is(err, ErrBadRequest)
		},
	})
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// BreakerState reports the circuit state for health output.
func (c *Client) BreakerState() string {
	return c.breaker.State().String()
}
