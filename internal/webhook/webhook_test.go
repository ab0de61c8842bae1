package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/httpx"
)

func TestSink_Notify(t *testing.T) {
	var got payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	err := New(srv.URL, nil).Notify(context.Background(), "3 new likes")

	require.NoError(t, err)
	assert.Equal(t, "*Social Monitor*\n3 new likes", got.Text)
}

func TestSink_NotifyRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("invalid_token"))
	}))
	defer srv.Close()

	hc := httpx.New(httpx.Config{Timeout: time.Second, BaseDelay: time.Millisecond})
	err := New(srv.URL, hc).Notify(context.Background(), "x")

	assert.ErrorContains(t, err, "webhook returned status 403: invalid_token")
}

func TestSink_NotifyDeliversOnceOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL, nil).Notify(context.Background(), "x")

	assert.ErrorContains(t, err, "webhook returned status 502")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}
