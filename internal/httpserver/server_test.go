package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
	"github.com/blackmichael/social-engage/internal/firehose"
)

type fakeStatus struct {
	rep *engagement.StatusReport
	err error
}

func (f fakeStatus) Status(context.Context) (*engagement.StatusReport, error) {
	return f.rep, f.err
}

type fakeStream struct{ stats firehose.Stats }

func (f fakeStream) Stats() firehose.Stats { return f.stats }

func newTestServer(status StatusProvider, stream StreamStats) *httptest.Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httptest.NewServer(NewServer(0, status, stream, logger).Handler())
}

func TestHealth(t *testing.T) {
	srv := newTestServer(fakeStatus{}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}

func TestStatus(t *testing.T) {
	at := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	rep := &engagement.StatusReport{
		StoreLocation: "/tmp/state.json",
		Records:       3,
		Outcomes:      map[domain.Outcome]int{domain.OutcomeDone: 2, domain.OutcomeSeen: 1},
		Pending:       []domain.PendingAction{{ID: "x:1:reply"}},
		Cursors:       map[string]domain.Cursor{"jetstream": {At: at, LastID: "1"}},
	}
	srv := newTestServer(fakeStatus{rep: rep}, fakeStream{stats: firehose.Stats{Connected: true, PostsMatched: 4}})
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body statusResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "/tmp/state.json", body.Store)
	assert.Equal(t, 3, body.Records)
	assert.Equal(t, 2, body.Outcomes[domain.OutcomeDone])
	assert.Equal(t, 1, body.Pending)
	assert.Equal(t, "1", body.Cursors["jetstream"].LastID)
	require.NotNil(t, body.Stream)
	assert.True(t, body.Stream.Connected)
	assert.Equal(t, int64(4), body.Stream.PostsMatched)
}

func TestStatus_StoreError(t *testing.T) {
	srv := newTestServer(fakeStatus{err: errors.New("disk gone")}, nil)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestUnknownRoute(t *testing.T) {
	srv := newTestServer(fakeStatus{}, nil)
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/health", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
