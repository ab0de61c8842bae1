// Package firehose watches the Bluesky Jetstream for new posts by a set of
// accounts and hands each one to a callback.
package firehose

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/blackmichael/social-engage/internal/domain"
)

const (
	// CursorName is the state cursor holding the last processed event time.
	CursorName = "jetstream"

	postCollection     = "app.bsky.feed.post"
	cursorSaveInterval = 5 * time.Second
	statsInterval      = 30 * time.Second
)

// CursorStore persists the stream position.
type CursorStore interface {
	LoadCursor(ctx context.Context, name string) (domain.Cursor, bool, error)
	SaveCursor(ctx context.Context, name string, c domain.Cursor) error
}

// Handler is called for each new top-level post by a watched account.
// Errors are logged and the stream continues.
type Handler func(ctx context.Context, post Post) error

// Stats describe the subscriber's progress.
type Stats struct {
	Connected      bool      `json:"connected"`
	EventsReceived int64     `json:"eventsReceived"`
	PostsMatched   int64     `json:"postsMatched"`
	HandlerErrors  int64     `json:"handlerErrors"`
	LastEventAt    time.Time `json:"lastEventAt,omitzero"`
	Cursor         int64     `json:"cursor"`
}

// Subscriber connects to Jetstream and processes events.
type Subscriber struct {
	url            string
	dids           map[string]bool
	handler        Handler
	cursors        CursorStore
	logger         *slog.Logger
	reconnectDelay time.Duration

	mu    sync.Mutex
	stats Stats
}

// NewSubscriber creates a subscriber for posts by dids.
func NewSubscriber(
	jetstreamURL string,
	dids []string,
	handler Handler,
	cursors CursorStore,
	logger *slog.Logger,
) *Subscriber {
	set := make(map[string]bool, len(dids))
	for _, d := range dids {
		set[d] = true
	}
	return &Subscriber{
		url:            jetstreamURL,
		dids:           set,
		handler:        handler,
		cursors:        cursors,
		logger:         logger,
		reconnectDelay: 5 * time.Second,
	}
}

// Stats returns a snapshot of the subscriber's counters.
func (s *Subscriber) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Start connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("firehose connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(s.reconnectDelay):
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) string {
	u, _ := url.Parse(s.url)
	q := u.Query()
	q.Add("wantedCollections", postCollection)
	for did := range s.dids {
		q.Add("wantedDids", did)
	}
	if cursor > 0 {
		q.Set("cursor", strconv.FormatInt(cursor, 10))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) loadCursor(ctx context.Context) int64 {
	c, ok, err := s.cursors.LoadCursor(ctx, CursorName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
		return 0
	}
	if !ok {
		return 0
	}
	// LastID keeps the exact microsecond cursor; At may have been truncated
	// by the store.
	if us, err := strconv.ParseInt(c.LastID, 10, 64); err == nil && us > 0 {
		return us
	}
	return c.At.UnixMicro()
}

func (s *Subscriber) saveCursor(ctx context.Context, us int64) error {
	return s.cursors.SaveCursor(ctx, CursorName, domain.Cursor{
		At:     time.UnixMicro(us).UTC(),
		LastID: strconv.FormatInt(us, 10),
	})
}

func (s *Subscriber) setConnected(v bool) {
	s.mu.Lock()
	s.stats.Connected = v
	s.mu.Unlock()
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	wsURL := s.buildURL(s.loadCursor(ctx))
	s.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context ends.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	s.setConnected(true)
	defer s.setConnected(false)
	s.logger.Info("connected to firehose", "watched_dids", len(s.dids))

	var latest, saved int64
	lastCursorSave := time.Now()
	lastStatsLog := time.Now()

	// Flush the position reached on this connection before reconnecting.
	defer func() {
		if latest > saved {
			if err := s.saveCursor(context.WithoutCancel(ctx), latest); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			}
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(message)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}
		latest = event.TimeUS
		s.mu.Lock()
		s.stats.EventsReceived++
		s.stats.LastEventAt = time.UnixMicro(event.TimeUS).UTC()
		s.stats.Cursor = event.TimeUS
		s.mu.Unlock()

		if post, ok := s.match(event); ok {
			s.handle(ctx, post)
		}

		if time.Since(lastStatsLog) >= statsInterval {
			st := s.Stats()
			s.logger.Info("firehose stats",
				"events_received", st.EventsReceived,
				"posts_matched", st.PostsMatched,
				"handler_errors", st.HandlerErrors,
			)
			lastStatsLog = time.Now()
		}

		if time.Since(lastCursorSave) >= cursorSaveInterval && latest > saved {
			if err := s.saveCursor(ctx, latest); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				saved = latest
				lastCursorSave = time.Now()
			}
		}
	}
}

// match reports whether event is a new top-level post by a watched account.
func (s *Subscriber) match(event *jetstreamEvent) (Post, bool) {
	c := event.Commit
	if event.Kind != "commit" || c == nil {
		return Post{}, false
	}
	if c.Operation != "create" || c.Collection != postCollection || c.Record == nil {
		return Post{}, false
	}
	if !s.dids[event.DID] || !c.Record.isTopLevel() {
		return Post{}, false
	}
	return event.toPost(), true
}

func (s *Subscriber) handle(ctx context.Context, post Post) {
	s.mu.Lock()
	s.stats.PostsMatched++
	s.mu.Unlock()

	s.logger.Info("watched account posted", "uri", post.URI, "text_preview", domain.Excerpt(post.Text, 100))
	if err := s.handler(ctx, post); err != nil {
		s.mu.Lock()
		s.stats.HandlerErrors++
		s.mu.Unlock()
		s.logger.Error("post handler failed", "uri", post.URI, "error", err)
	}
}
