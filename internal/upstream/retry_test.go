package upstream

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastPolicy = Policy{
	MaxAttempts:   3,
	RateLimitWait: time.Millisecond,
	TransientWait: time.Millisecond,
	MaxRetryAfter: 5 * time.Millisecond,
}

func failing(errs ...error) (func(ctx context.Context) (string, error), *int) {
	calls := 0
	return func(ctx context.Context) (string, error) {
		i := calls
		calls++
		if i < len(errs) && errs[i] != nil {
			return "", errs[i]
		}
		return "ok", nil
	}, &calls
}

func TestRetrySucceedsAfterTransientFailures(t *testing.T) {
	op, calls := failing(&StatusError{StatusCode: 503}, io.ErrUnexpectedEOF)
	v, err := Retry(context.Background(), fastPolicy, "jikan", op)
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, 3, *calls)
}

func TestRetryNotFoundIsTerminal(t *testing.T) {
	op, calls := failing(&StatusError{StatusCode: http.StatusNotFound})
	_, err := Retry(context.Background(), fastPolicy, "jikan", op)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, 1, *calls)
}

func TestRetryBadRequestIsTerminal(t *testing.T) {
	op, calls := failing(&StatusError{StatusCode: http.StatusBadRequest})
	_, err := Retry(context.Background(), fastPolicy, "jikan", op)
	assert.ErrorIs(t, err, ErrBadRequest)
	assert.Equal(t, 1, *calls)
}

func TestRetryPartialDataIsTerminal(t *testing.T) {
	op, calls := failing(ErrPartialData)
	_, err := Retry(context.Background(), fastPolicy, "anilist", op)
	assert.ErrorIs(t, err, ErrPartialData)
	assert.Equal(t, 1, *calls)
}

func TestRetryExhaustedOnRateLimit(t *testing.T) {
	rl := &StatusError{StatusCode: http.StatusTooManyRequests}
	op, calls := failing(rl, rl, rl, rl)
	_, err := Retry(context.Background(), fastPolicy, "jikan", op)
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.False(t, errors.Is(err, ErrUpstreamUnavailable))
	assert.Equal(t, 3, *calls)
}

func TestRetryExhaustedOnTransient(t *testing.T) {
	timeout := context.DeadlineExceeded
	op, calls := failing(timeout, &StatusError{StatusCode: 502}, io.ErrUnexpectedEOF, nil)
	_, err := Retry(context.Background(), fastPolicy, "jikan", op)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF, "last cause is wrapped")
	assert.Equal(t, 3, *calls)
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	_, err := Retry(ctx, fastPolicy, "jikan", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, &StatusError{StatusCode: 503}
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestClassifyWaits(t *testing.T) {
	p := DefaultPolicy

	kind, wait := p.classify(&StatusError{StatusCode: 429})
	assert.Equal(t, rateLimited, kind)
	assert.Equal(t, 1500*time.Millisecond, wait)

	kind, wait = p.classify(&StatusError{StatusCode: 429, RetryAfter: 4 * time.Second})
	assert.Equal(t, rateLimited, kind)
	assert.Equal(t, 4*time.Second, wait)

	_, wait = p.classify(&StatusError{StatusCode: 429, RetryAfter: time.Hour})
	assert.Equal(t, 30*time.Second, wait, "retry-after is capped")

	kind, wait = p.classify(&StatusError{StatusCode: 500})
	assert.Equal(t, transient, kind)
	assert.Equal(t, time.Second, wait)

	kind, _ = p.classify(errors.New("json: cannot unmarshal"))
	assert.Equal(t, terminal, kind)
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 7*time.Second, parseRetryAfter("7", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("", now))
	assert.Equal(t, time.Duration(0), parseRetryAfter("soon", now))
	assert.Equal(t, 90*time.Second, parseRetryAfter(now.Add(90*time.Second).Format(http.TimeFormat), now))
}
