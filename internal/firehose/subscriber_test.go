package firehose

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/domain"
)

type memCursors struct {
	mu      sync.Mutex
	cursors map[string]domain.Cursor
}

func (m *memCursors) LoadCursor(_ context.Context, name string) (domain.Cursor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.cursors[name]
	return c, ok, nil
}

func (m *memCursors) SaveCursor(_ context.Context, name string, c domain.Cursor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cursors[name] = c
	return nil
}

const watched = "did:plc:watched"

var events = []string{
	// Top-level post by the watched account.
	`{"did":"did:plc:watched","time_us":1700000000000001,"kind":"commit","commit":{"rev":"a","operation":"create","collection":"app.bsky.feed.post","rkey":"3k1","cid":"bafy1","record":{"$type":"app.bsky.feed.post","text":"Claude Code release","createdAt":"2026-03-10T14:00:00Z"}}}`,
	// Reply by the watched account.
	`{"did":"did:plc:watched","time_us":1700000000000002,"kind":"commit","commit":{"rev":"b","operation":"create","collection":"app.bsky.feed.post","rkey":"3k2","cid":"bafy2","record":{"text":"thanks","createdAt":"2026-03-10T14:01:00Z","reply":{"root":{"uri":"at://x","cid":"c"},"parent":{"uri":"at://x","cid":"c"}}}}}`,
	// Post by someone else.
	`{"did":"did:plc:other","time_us":1700000000000003,"kind":"commit","commit":{"rev":"c","operation":"create","collection":"app.bsky.feed.post","rkey":"3k3","cid":"bafy3","record":{"text":"hello","createdAt":"2026-03-10T14:02:00Z"}}}`,
	// Delete by the watched account.
	`{"did":"did:plc:watched","time_us":1700000000000004,"kind":"commit","commit":{"rev":"d","operation":"delete","collection":"app.bsky.feed.post","rkey":"3k1"}}`,
	`not json`,
	`{"did":"did:plc:watched","time_us":1700000000000005,"kind":"identity"}`,
}

func jetstreamServer(t *testing.T, query chan<- url.Values) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case query <- r.URL.Query():
		default:
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, e := range events {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(e)); err != nil {
				return
			}
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
}

func TestSubscriber_HandlesTopLevelPostsByWatchedAccounts(t *testing.T) {
	query := make(chan url.Values, 1)
	srv := jetstreamServer(t, query)
	defer srv.Close()

	cursors := &memCursors{cursors: map[string]domain.Cursor{
		CursorName: {At: time.UnixMicro(1699999999000000)},
	}}
	var got []Post
	handler := func(_ context.Context, p Post) error {
		got = append(got, p)
		return nil
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sub := NewSubscriber("ws"+strings.TrimPrefix(srv.URL, "http"), []string{watched}, handler, cursors, logger)

	err := sub.subscribe(context.Background())
	require.Error(t, err)

	q := <-query
	assert.Equal(t, []string{postCollection}, q["wantedCollections"])
	assert.Equal(t, []string{watched}, q["wantedDids"])
	assert.Equal(t, "1699999999000000", q.Get("cursor"))

	require.Len(t, got, 1)
	assert.Equal(t, "at://did:plc:watched/app.bsky.feed.post/3k1", got[0].URI)
	assert.Equal(t, "bafy1", got[0].CID)
	assert.Equal(t, "Claude Code release", got[0].Text)
	assert.True(t, got[0].CreatedAt.Equal(time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)))

	stats := sub.Stats()
	assert.Equal(t, int64(5), stats.EventsReceived)
	assert.Equal(t, int64(1), stats.PostsMatched)
	assert.False(t, stats.Connected)

	c, ok, _ := cursors.LoadCursor(context.Background(), CursorName)
	require.True(t, ok)
	assert.Equal(t, "1700000000000005", c.LastID)
	assert.Equal(t, int64(1700000000000005), c.At.UnixMicro())
}

func TestSubscriber_StartStopsOnCancel(t *testing.T) {
	query := make(chan url.Values, 10)
	srv := jetstreamServer(t, query)
	defer srv.Close()

	handler := func(context.Context, Post) error {
		return assert.AnError
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	sub := NewSubscriber("ws"+strings.TrimPrefix(srv.URL, "http"), []string{watched}, handler, &memCursors{cursors: map[string]domain.Cursor{}}, logger)
	sub.reconnectDelay = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	err := sub.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	assert.GreaterOrEqual(t, sub.Stats().HandlerErrors, int64(1))
}

func TestParseEvent_TopLevel(t *testing.T) {
	e, err := parseEvent([]byte(events[0]))
	require.NoError(t, err)
	require.NotNil(t, e.Commit)
	require.NotNil(t, e.Commit.Record)
	assert.True(t, e.Commit.Record.isTopLevel())

	e, err = parseEvent([]byte(events[1]))
	require.NoError(t, err)
	assert.False(t, e.Commit.Record.isTopLevel())

	_, err = parseEvent([]byte(events[4]))
	assert.Error(t, err)
}

func TestToPost_FallsBackToEventTime(t *testing.T) {
	e := &jetstreamEvent{
		DID:    watched,
		TimeUS: 1700000000000000,
		Commit: &jetstreamCommit{Collection: postCollection, RKey: "r", Record: &postRecord{Text: "x", CreatedAt: "yesterday"}},
	}
	assert.True(t, e.toPost().CreatedAt.Equal(time.UnixMicro(1700000000000000)))
}

func TestLoadCursor_PrefersExactMicroseconds(t *testing.T) {
	const us = int64(1700000000123456)
	tests := []struct {
		name   string
		cursor domain.Cursor
		want   int64
	}{
		{"exact id", domain.Cursor{At: time.UnixMilli(us / 1000).UTC(), LastID: "1700000000123456"}, us},
		{"no id", domain.Cursor{At: time.UnixMicro(us).UTC()}, us},
		{"bad id", domain.Cursor{At: time.UnixMilli(us / 1000).UTC(), LastID: "3k1"}, 1700000000123000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cursors := &memCursors{cursors: map[string]domain.Cursor{CursorName: tt.cursor}}
			s := NewSubscriber("ws://unused", []string{watched}, nil, cursors, slog.New(slog.NewTextHandler(io.Discard, nil)))

			assert.Equal(t, tt.want, s.loadCursor(context.Background()))
		})
	}
}
