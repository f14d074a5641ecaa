package httpx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"
)

const defaultUserAgent = "Mozilla/5.0 (compatible; NewsDigest/1.0)"

// StatusError is returned for responses that are not usable.
type StatusError struct {
	Method string
	URL    string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status %d", e.Method, e.URL, e.Code)
}

// Options configures a retrying client.
type Options struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	UserAgent      string
	Transport      http.RoundTripper
	Logger         *slog.Logger
}

// Client issues idempotent GET/HEAD requests with exponential backoff on transient failures.
type Client struct {
	http       *http.Client
	userAgent  string
	maxRetries int
	initial    time.Duration
	logger     *slog.Logger
}

// New builds a client; zero options fall back to a 10s timeout and 3 retries.
func New(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &Client{
		http:       &http.Client{Timeout: opts.Timeout, Transport: opts.Transport},
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		initial:    opts.InitialBackoff,
		logger:     opts.Logger,
	}
}

// HTTPClient exposes the underlying client for libraries that take one.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// UserAgent is the header value sent with every request.
func (c *Client) UserAgent() string {
	return c.userAgent
}

// Get fetches target. The caller must close the body.
func (c *Client) Get(ctx context.Context, target string) (*http.Response, error) {
	return c.do(ctx, http.MethodGet, target)
}

// Head probes target without a body.
func (c *Client) Head(ctx context.Context, target string) (*http.Response, error) {
	resp, err := c.do(ctx, http.MethodHead, target)
	if err != nil {
		return nil, err
	}
	_ = resp.Body.Close()
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, target string) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, method, target, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("User-Agent", c.userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}

		if resp.StatusCode < http.StatusBadRequest {
			return resp, nil
		}

		discard(resp)
		statusErr := &StatusError{Method: method, URL: target, Code: resp.StatusCode}
		if Retryable(resp.StatusCode) {
			return nil, statusErr
		}
		return nil, backoff.Permanent(statusErr)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initial

	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.maxRetries+1)),
		backoff.WithNotify(func(err error, next time.Duration) {
			if c.logger != nil {
				c.logger.Debug("retrying request", "method", method, "url", target, "error", err, "backoff", next)
			}
		}),
	)
}

// Retryable reports whether a status is a transient server condition.
func Retryable(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
