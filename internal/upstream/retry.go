package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/vrsandeep/anime-sync/internal/logging"
	"github.com/vrsandeep/anime-sync/internal/metrics"
	"github.com/vrsandeep/anime-sync/internal/urlsafe"
)

// Policy configures Retry.
type Policy struct {
	MaxAttempts   int
	RateLimitWait time.Duration
	TransientWait time.Duration
	// MaxRetryAfter caps a provider supplied Retry-After.
	MaxRetryAfter time.Duration
}

// DefaultPolicy is three attempts, 1.5s after a 429 and 1s after
// timeouts, socket errors and 5xx.
var DefaultPolicy = Policy{
	MaxAttempts:   3,
	RateLimitWait: 1500 * time.Millisecond,
	TransientWait: time.Second,
	MaxRetryAfter: 30 * time.Second,
}

type failureKind int

const (
	terminal failureKind = iota
	rateLimited
	transient
)

func (k failureKind) String() string {
	switch k {
	case rateLimited:
		return "rate_limited"
	case transient:
		return "transient"
	default:
		return "terminal"
	}
}

// classify decides whether err is worth another attempt and how long to wait.
func (p Policy) classify(err error) (failureKind, time.Duration) {
	var se *StatusError
	if errors.As(err, &se) {
		switch {
		case se.StatusCode == http.StatusTooManyRequests:
			wait := p.RateLimitWait
			if se.RetryAfter > 0 {
				wait = min(se.RetryAfter, p.MaxRetryAfter)
			}
			return rateLimited, wait
		case se.StatusCode >= 500:
			return transient, p.TransientWait
		default:
			return terminal, 0
		}
	}

	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrBadRequest),
		errors.Is(err, ErrPartialData),
		errors.Is(err, gobreaker.ErrOpenState),
		errors.Is(err, gobreaker.ErrTooManyRequests),
		errors.Is(err, urlsafe.ErrPrivateAddr),
		errors.Is(err, urlsafe.ErrScheme),
		errors.Is(err, urlsafe.ErrHost),
		errors.Is(err, context.Canceled):
		return terminal, 0
	case errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, io.EOF),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ECONNREFUSED),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, context.DeadlineExceeded):
		return transient, p.TransientWait
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return transient, p.TransientWait
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return transient, p.TransientWait
	}
	return terminal, 0
}

// policyBackOff hands backoff the wait chosen for the most recent failure.
type policyBackOff struct {
	next time.Duration
}

func (b *policyBackOff) NextBackOff() time.Duration { return b.next }
func (b *policyBackOff) Reset()                     { b.next = 0 }

// Retry runs op up to p.MaxAttempts times. Terminal failures return at once;
// exhausted retries are reported as ErrRateLimited (last failure was a 429)
// or ErrUpstreamUnavailable, wrapping the last cause.
func Retry[T any](ctx context.Context, p Policy, provider string, op func(ctx context.Context) (T, error)) (T, error) {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	bo := &policyBackOff{}
	var lastKind failureKind
	attempt := 0

	wrapped := func() (T, error) {
		attempt++
		v, err := op(ctx)
		if err == nil {
			return v, nil
		}
		if ctx.Err() != nil {
			return v, backoff.Permanent(ctx.Err())
		}
		kind, wait := p.classify(err)
		lastKind = kind
		if kind == terminal {
			return v, backoff.Permanent(err)
		}
		bo.next = wait
		return v, err
	}

	notify := func(err error, wait time.Duration) {
		metrics.ProviderRetries.WithLabelValues(lastKind.String()).Inc()
		logging.Warn().
			Err(err).
			Str("provider", provider).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("upstream call failed, retrying")
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.MaxAttempts-1)), ctx)
	v, err := backoff.RetryNotifyWithData(wrapped, policy, notify)
	if err == nil {
		return v, nil
	}
	if ctx.Err() != nil {
		return v, ctx.Err()
	}

	switch lastKind {
	case rateLimited:
		return v, fmt.Errorf("%w: %s after %d attempts: %w", ErrRateLimited, provider, attempt, err)
	case transient:
		return v, fmt.Errorf("%w: %s after %d attempts: %w", ErrUpstreamUnavailable, provider, attempt, err)
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return v, fmt.Errorf("%w: %s circuit open: %w", ErrUpstreamUnavailable, provider, err)
	}
	return v, err
}

// RetryAfter returns the wait a caller should advertise for err, or zero.
func RetryAfter(err error) time.Duration {
	var se *StatusError
	if errors.As(err, &se) && se.RetryAfter > 0 {
		return se.RetryAfter
	}
	return 0
}
