// Package upstream implements outbound calls to metadata providers: the
// error taxonomy, the retry wrapper and the rate limited HTTP client.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

var (
	// ErrNotFound means the provider has no such entity. Never retried.
	ErrNotFound = errors.New("upstream: not found")
	// ErrRateLimited means retries were exhausted on HTTP 429.
	ErrRateLimited = errors.New("upstream: rate limited")
	// ErrUpstreamUnavailable means retries were exhausted on timeouts,
	// socket errors or 5xx, or the circuit breaker is open.
	ErrUpstreamUnavailable = errors.New("upstream: unavailable")
	// ErrPartialData means the response lacked required fields.
	ErrPartialData = errors.New("upstream: partial data")
	// ErrBadRequest means the provider rejected the request with a 4xx.
	ErrBadRequest = errors.New("upstream: bad request")
)

// StatusError carries a non-success HTTP status from a provider.
type StatusError struct {
	Provider   string
	StatusCode int
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream %s: http status %d", e.Provider, e.StatusCode)
}

// Is lets errors.Is match a 404 StatusError against ErrNotFound and other
// 4xx (except 429) against ErrBadRequest.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrBadRequest:
		return e.StatusCode >= 400 && e.StatusCode < 500 &&
			e.StatusCode != http.StatusNotFound && e.StatusCode != http.StatusTooManyRequests
	}
	return false
}

// parseRetryAfter reads a Retry-After header given in seconds or as an
// HTTP date. Zero means absent or unparseable.
func parseRetryAfter(v string, now time.Time) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Exhausted folds the errors of every provider in a chain into one caller
// facing error: ErrNotFound when all said not found, ErrRateLimited when
// any was rate limited, otherwise ErrUpstreamUnavailable. Only the chosen
// sentinel and a rate limit cause stay matchable with errors.Is.
func Exhausted(errs []error) error {
	if len(errs) == 0 {
		return fmt.Errorf("%w: no provider configured", ErrUpstreamUnavailable)
	}
	joined := errors.Join(errs...)
	allNotFound := true
	for _, err := range errs {
		if errors.Is(err, ErrRateLimited) {
			return fmt.Errorf("%w: %w", ErrRateLimited, err)
		}
		if !errors.Is(err, ErrNotFound) {
			allNotFound = false
		}
	}
	if allNotFound {
		return fmt.Errorf("%w: %v", ErrNotFound, joined)
	}
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, joined)
}
