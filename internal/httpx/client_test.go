package httpx

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	return Config{Timeout: 5 * time.Second, MaxRetries: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func get(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	}
}

func post(url string) func(ctx context.Context) (*http.Request, error) {
	return func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(`{"text":"hello"}`))
	}
}

func TestClient_RetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if atomic.AddInt32(&calls, 1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	resp, err := New(testConfig()).Do(context.Background(), get(srv.URL))

	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryWrites(t *testing.T) {
	for _, status := range []int{http.StatusServiceUnavailable, http.StatusBadGateway} {
		var calls int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			atomic.AddInt32(&calls, 1)
			w.WriteHeader(status)
		}))

		resp, err := New(testConfig()).Do(context.Background(), post(srv.URL))
		srv.Close()

		require.NoError(t, err)
		assert.Equal(t, status, resp.StatusCode)
		assert.Equal(t, int32(1), atomic.LoadInt32(&calls), "status %d", status)
	}
}

func TestClient_NetworkFailureRetriesOnlyReads(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		conn, _, err := w.(http.Hijacker).Hijack()
		if !assert.NoError(t, err) {
			return
		}
		_ = conn.Close()
	}))
	defer srv.Close()
	c := New(testConfig())

	_, err := c.Do(context.Background(), post(srv.URL))
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	atomic.StoreInt32(&calls, 0)
	_, err = c.Do(context.Background(), get(srv.URL))
	require.Error(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_ReturnsLastServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	resp, err := New(testConfig()).Do(context.Background(), get(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryRateLimit(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	resp, err := New(testConfig()).Do(context.Background(), get(srv.URL))

	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 30*time.Second, RetryAfter(resp.Header, time.Now(), "Retry-After"))
}

func TestRetryAfter(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	h := http.Header{}
	h.Set("x-rate-limit-reset", "1700000120")
	h.Set("Retry-After", "5")

	assert.Equal(t, 2*time.Minute, RetryAfter(h, now, "x-rate-limit-reset", "Retry-After"))
	assert.Equal(t, 5*time.Second, RetryAfter(h, now, "ratelimit-reset", "Retry-After"))
	assert.Zero(t, RetryAfter(http.Header{}, now, "Retry-After"))

	past := http.Header{}
	past.Set("ratelimit-reset", "1600000000")
	assert.Zero(t, RetryAfter(past, now, "ratelimit-reset"))
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(&Response{Method: http.MethodGet, StatusCode: 200}, nil))
	assert.False(t, ShouldRetry(&Response{Method: http.MethodGet, StatusCode: 429}, nil))
	assert.True(t, ShouldRetry(&Response{Method: http.MethodGet, StatusCode: 500}, nil))
	assert.False(t, ShouldRetry(&Response{Method: http.MethodPost, StatusCode: 500}, nil))
	assert.True(t, ShouldRetry(nil, &sendError{method: http.MethodGet, err: io.ErrUnexpectedEOF}))
	assert.False(t, ShouldRetry(nil, &sendError{method: http.MethodPost, err: io.ErrUnexpectedEOF}))
	assert.False(t, ShouldRetry(nil, &buildError{context.Canceled}))
	assert.False(t, ShouldRetry(nil, context.Canceled))
}
