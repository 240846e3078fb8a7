package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/vrsandeep/anime-sync/internal/metrics"
	"github.com/vrsandeep/anime-sync/internal/urlsafe"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultReadTimeout    = 15 * time.Second
	DefaultUserAgent      = "AnimeSync/1.0"

	maxJSONBody = 8 << 20
)

// response is what one attempt yields once the body has been read.
type response struct {
	status      int
	header      http.Header
	body        []byte
	contentType string
}

// Client performs rate limited, circuit-broken calls against one provider.
// Only 200, 404 and 429 are expected statuses; anything else is a failure.
type Client struct {
	name        string
	http        *http.Client
	resolver    urlsafe.Resolver
	limiter     *rate.Limiter
	breaker     *gobreaker.CircuitBreaker[*response]
	policy      Policy
	headers     http.Header
	userAgent   string
	readTimeout time.Duration
	now         func() time.Time
}

// Options configure a Client.
type Options struct {
	ConnectTimeout    time.Duration
	ReadTimeout       time.Duration
	UserAgent         string
	RequestsPerSecond float64
	Policy            Policy
	AllowPrivateHosts bool
	Resolver          urlsafe.Resolver
	Headers           http.Header
	// HTTPClient replaces the default transport; used by tests.
	HTTPClient *http.Client
}

// NewClient builds a Client for the named provider.
func NewClient(name string, opts Options) *Client {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Policy.MaxAttempts == 0 {
		opts.Policy = DefaultPolicy
	}
	if opts.Policy.MaxRetryAfter == 0 {
		opts.Policy.MaxRetryAfter = DefaultPolicy.MaxRetryAfter
	}
	if opts.Resolver == nil {
		opts.Resolver = urlsafe.New(opts.AllowPrivateHosts)
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		dialer := &net.Dialer{
			Timeout: opts.ConnectTimeout,
			Control: urlsafe.DialControl(opts.AllowPrivateHosts),
		}
		httpClient = &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				DialContext:           dialer.DialContext,
				TLSHandshakeTimeout:   opts.ConnectTimeout,
				ResponseHeaderTimeout: opts.ReadTimeout,
				MaxIdleConnsPerHost:   4,
				IdleConnTimeout:       90 * time.Second,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return errors.New("too many redirects")
				}
				_, err := opts.Resolver.Resolve(req.Context(), req.URL.String())
				return err
			},
		}
	}

	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}

	headers := opts.Headers.Clone()
	if headers == nil {
		headers = http.Header{}
	}

	return &Client{
		name:        name,
		http:        httpClient,
		resolver:    opts.Resolver,
		limiter:     rate.NewLimiter(limit, 1),
		breaker:     newBreaker(name),
		policy:      opts.Policy,
		headers:     headers,
		userAgent:   opts.UserAgent,
		readTimeout: opts.ReadTimeout,
		now:         time.Now,
	}
}

// Name returns the provider name the client was built for.
func (c *Client) Name() string { return c.name }

// Policy returns the retry policy the client applies.
func (c *Client) Policy() Policy { return c.policy }

// GetJSON fetches rawURL with query appended and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, rawURL string, query url.Values, out any) error {
	if len(query) > 0 {
		rawURL = rawURL + "?" + query.Encode()
	}
	_, err := Retry(ctx, c.policy, c.name, func(ctx context.Context) (struct{}, error) {
		resp, err := c.do(ctx, http.MethodGet, rawURL, nil, maxJSONBody)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, decode(resp.body, out)
	})
	return err
}

// PostJSON sends body as JSON and decodes the response into out.
func (c *Client) PostJSON(ctx context.Context, rawURL string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", c.name, err)
	}
	_, err = Retry(ctx, c.policy, c.name, func(ctx context.Context) (struct{}, error) {
		resp, err := c.do(ctx, http.MethodPost, rawURL, payload, maxJSONBody)
		if err != nil {
			return struct{}{}, err
		}
		return struct{}{}, decode(resp.body, out)
	})
	return err
}

// GetBytes downloads rawURL, failing if the body exceeds maxBytes.
func (c *Client) GetBytes(ctx context.Context, rawURL string, maxBytes int64) ([]byte, string, error) {
	resp, err := Retry(ctx, c.policy, c.name, func(ctx context.Context) (*response, error) {
		return c.do(ctx, http.MethodGet, rawURL, nil, maxBytes)
	})
	if err != nil {
		return nil, "", err
	}
	return resp.body, resp.contentType, nil
}

func decode(body []byte, out any) error {
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode: %v", ErrPartialData, err)
	}
	return nil
}

// do performs a single attempt. It is the unit the circuit breaker counts.
func (c *Client) do(ctx context.Context, method, rawURL string, payload []byte, maxBytes int64) (*response, error) {
	if _, err := c.resolver.Resolve(ctx, rawURL); err != nil {
		metrics.ProviderRequests.WithLabelValues(c.name, "rejected").Inc()
		return nil, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := c.now()
	resp, err := c.breaker.Execute(func() (*response, error) {
		return c.roundTrip(ctx, method, rawURL, payload, maxBytes)
	})
	metrics.ProviderLatency.WithLabelValues(c.name).Observe(time.Since(start).Seconds())

	switch {
	case err == nil:
		metrics.ProviderRequests.WithLabelValues(c.name, "ok").Inc()
	case errors.Is(err, ErrNotFound):
		metrics.ProviderRequests.WithLabelValues(c.name, "not_found").Inc()
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.ProviderRequests.WithLabelValues(c.name, "rejected").Inc()
	default:
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusTooManyRequests {
			metrics.ProviderRequests.WithLabelValues(c.name, "rate_limited").Inc()
		} else {
			metrics.ProviderRequests.WithLabelValues(c.name, "error").Inc()
		}
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, rawURL string, payload []byte, maxBytes int64) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.readTimeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	req.Header = c.headers.Clone()
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, &StatusError{Provider: c.name, StatusCode: res.StatusCode}
	case http.StatusTooManyRequests:
		return nil, &StatusError{
			Provider:   c.name,
			StatusCode: res.StatusCode,
			RetryAfter: parseRetryAfter(res.Header.Get("Retry-After"), c.now()),
		}
	default:
		return nil, &StatusError{Provider: c.name, StatusCode: res.StatusCode}
	}

	data, err := io.ReadAll(io.LimitReader(res.Body, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w: %s response exceeds %d bytes", ErrBadRequest, c.name, maxBytes)
	}
	return &response{
		status:      res.StatusCode,
		header:      res.Header,
		body:        data,
		contentType: res.Header.Get("Content-Type"),
	}, nil
}
