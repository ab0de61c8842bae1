// Package httpx executes platform API calls with a finite timeout and bounded
// retries for transient failures of reads. Writes are sent exactly once.
package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// Config configures the executor.
type Config struct {
	// Timeout bounds a single attempt, including reading the body.
	Timeout time.Duration

	// MaxRetries is the number of additional attempts after a 5xx response
	// or network failure of a GET, HEAD or OPTIONS request.
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultConfig returns the executor defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:    30 * time.Second,
		MaxRetries: 2,
		BaseDelay:  200 * time.Millisecond,
		MaxDelay:   3 * time.Second,
	}
}

func (c Config) normalize() Config {
	d := DefaultConfig()
	if c.Timeout <= 0 {
		c.Timeout = d.Timeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = d.BaseDelay
	}
	if c.MaxDelay < c.BaseDelay {
		c.MaxDelay = c.BaseDelay
	}
	return c
}

// Response is a fully read HTTP response.
type Response struct {
	// Method is the method of the request that produced the response.
	Method     string
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client runs requests through a failsafe retry policy.
type Client struct {
	hc       *http.Client
	executor failsafe.Executor[*Response]
}

// New returns a client with its own http.Client.
func New(cfg Config) *Client {
	cfg = cfg.normalize()
	return NewWithHTTPClient(&http.Client{Timeout: cfg.Timeout}, cfg)
}

// NewWithHTTPClient returns a client that sends requests through hc, e.g. an
// oauth2 client.
func NewWithHTTPClient(hc *http.Client, cfg Config) *Client {
	cfg = cfg.normalize()
	if hc.Timeout == 0 {
		hc.Timeout = cfg.Timeout
	}
	return &Client{hc: hc, executor: failsafe.With(newRetryPolicy(cfg))}
}

//nolint:bodyclose // Response is not an http.Response; bodies are closed in attempt
func newRetryPolicy(cfg Config) retrypolicy.RetryPolicy[*Response] {
	return retrypolicy.NewBuilder[*Response]().
		WithBackoff(cfg.BaseDelay, cfg.MaxDelay).
		WithMaxRetries(cfg.MaxRetries).
		WithJitterFactor(0.1).
		HandleIf(ShouldRetry).
		ReturnLastFailure().
		Build()
}

// ShouldRetry reports whether an attempt of an idempotent read failed
// transiently. A write that fails may already have taken effect, so it is
// never re-sent. Rate limits (429) are not retried here; callers surface them
// to the retry queue.
func ShouldRetry(resp *Response, err error) bool {
	if err != nil {
		var be *buildError
		if errors.As(err, &be) || errors.Is(err, context.Canceled) {
			return false
		}
		var se *sendError
		if errors.As(err, &se) {
			return idempotent(se.method)
		}
		return false
	}
	return resp != nil && resp.StatusCode >= 500 && idempotent(resp.Method)
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	}
	return false
}

type buildError struct{ err error }

func (e *buildError) Error() string { return e.err.Error() }
func (e *buildError) Unwrap() error { return e.err }

// sendError is a transport failure after the request was built.
type sendError struct {
	method string
	err    error
}

func (e *sendError) Error() string { return e.err.Error() }
func (e *sendError) Unwrap() error { return e.err }

// Do builds and sends a request, retrying transient failures of reads. build
// is called once per attempt. The returned error is non-nil only when no
// response was received; callers inspect StatusCode.
func (c *Client) Do(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	resp, err := c.executor.WithContext(ctx).Get(func() (*Response, error) {
		return c.attempt(ctx, build)
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) attempt(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*Response, error) {
	req, err := build(ctx)
	if err != nil {
		return nil, &buildError{fmt.Errorf("build request: %w", err)}
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, &sendError{method: req.Method, err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &sendError{method: req.Method, err: fmt.Errorf("read response: %w", err)}
	}
	return &Response{Method: req.Method, StatusCode: resp.StatusCode, Header: resp.Header, Body: body}, nil
}

// RetryAfter reads a rate-limit hint from the first present header in names.
// Values are either delta seconds, unix epoch seconds or an HTTP date.
func RetryAfter(h http.Header, now time.Time, names ...string) time.Duration {
	for _, name := range names {
		v := strings.TrimSpace(h.Get(name))
		if v == "" {
			continue
		}
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			if n > 1_000_000_000 {
				return max(time.Unix(n, 0).Sub(now), 0)
			}
			return time.Duration(max(n, 0)) * time.Second
		}
		if t, err := http.ParseTime(v); err == nil {
			return max(t.Sub(now), 0)
		}
	}
	return 0
}

// Snippet returns the start of a response body for error messages.
func Snippet(body []byte) string {
	const n = 200
	s := strings.TrimSpace(string(body))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
