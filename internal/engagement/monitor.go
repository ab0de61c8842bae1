package engagement

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/social-engage/internal/domain"
)

// MonitorOptions configure a notification check.
type MonitorOptions struct {
	Platforms []domain.Platform

	// Since overrides the stored cursors with now-Since when positive.
	Since time.Duration

	// Notify forwards a non-empty digest to the configured Notifier.
	Notify bool

	DryRun bool
}

// MonitorReport is the result of a notification check.
type MonitorReport struct {
	// Items holds the new notifications, grouped by platform in processing
	// order, newest first within a platform.
	Items  []domain.Notification
	Digest string

	// Errors holds the platforms whose fetch failed and was skipped.
	Errors map[domain.Platform]string

	Cursors  map[domain.Platform]domain.Cursor
	Notified bool
	Pruned   int
}

// Count returns how many items have type t.
func (r *MonitorReport) Count(t domain.NotificationType) int {
	n := 0
	for _, it := range r.Items {
		if it.Type == t {
			n++
		}
	}
	return n
}

// Monitor fetches notifications newer than each platform's cursor,
// concurrently, and advances the cursors to the newest item seen. A platform
// whose fetch fails is skipped; an authentication failure aborts.
func (s *Service) Monitor(ctx context.Context, opts MonitorOptions) (*MonitorReport, error) {
	platforms, err := s.platforms(opts.Platforms)
	if err != nil {
		return nil, err
	}

	rep := &MonitorReport{
		Errors:  make(map[domain.Platform]string),
		Cursors: make(map[domain.Platform]domain.Cursor),
	}
	rep.Pruned, err = s.withState(ctx, opts.DryRun, func(st *domain.State) error {
		now := s.now()
		since := make([]domain.Cursor, len(platforms))
		for i, p := range platforms {
			since[i] = s.since(st, p, now, opts.Since)
		}

		fetched := make([][]domain.Notification, len(platforms))
		failed := make([]error, len(platforms))
		g, gctx := errgroup.WithContext(ctx)
		for i, p := range platforms {
			g.Go(func() error {
				items, err := s.cfg.Adapters[p].FetchNotifications(gctx, since[i])
				if errors.Is(err, domain.ErrAuth) {
					return err
				}
				fetched[i], failed[i] = items, err
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			s.logger.Error("authentication failed, aborting", "error", err)
			return err
		}

		for i, p := range platforms {
			log := s.logger.With("platform", p)
			if failed[i] != nil {
				rep.Errors[p] = failed[i].Error()
				if errors.Is(failed[i], domain.ErrRateLimited) {
					log.Warn("rate limited, skipping notifications", "retry_after", domain.RetryAfter(failed[i]))
				} else {
					log.Error("failed to fetch notifications", "error", failed[i])
				}
				continue
			}

			var newest domain.Cursor
			kept := 0
			for _, n := range fetched[i] {
				if !n.CreatedAt.After(since[i].At) {
					continue
				}
				rep.Items = append(rep.Items, n)
				kept++
				if n.CreatedAt.After(newest.At) {
					newest = domain.Cursor{At: n.CreatedAt, LastID: n.NativeID}
				}
			}
			if kept > 0 {
				st.AdvanceCursor(string(p), newest)
			}
			cur, _ := st.Cursor(string(p))
			rep.Cursors[p] = cur
			log.Info("checked notifications", "since", since[i].At, "new", kept)
		}

		rep.Digest = Digest(rep.Items)
		return nil
	})
	if err != nil {
		return rep, err
	}

	if opts.Notify && len(rep.Items) > 0 {
		rep.Notified = s.notify(ctx, rep.Digest, opts.DryRun)
	}
	return rep, nil
}

// since resolves the lower bound for p: the override, else the stored
// cursor, else the default lookback.
func (s *Service) since(st *domain.State, p domain.Platform, now time.Time, override time.Duration) domain.Cursor {
	if override > 0 {
		return domain.Cursor{At: now.Add(-override)}
	}
	if c, ok := st.Cursor(string(p)); ok {
		return c
	}
	return domain.Cursor{At: now.Add(-DefaultMonitorLookback)}
}

// notify delivers the digest. Failures are logged, never returned.
func (s *Service) notify(ctx context.Context, digest string, dryRun bool) bool {
	if s.cfg.Notifier == nil {
		s.logger.Warn("no webhook configured, skipping notification")
		return false
	}
	if dryRun {
		s.logger.Info("dry run: would send digest to webhook")
		return false
	}
	if err := s.cfg.Notifier.Notify(ctx, digest); err != nil {
		s.logger.Error("failed to send digest", "error", err)
		return false
	}
	s.logger.Info("digest sent to webhook")
	return true
}

// Digest renders notifications as the human-readable summary: replies,
// mentions and new followers listed, likes and reposts counted.
func Digest(items []domain.Notification) string {
	if len(items) == 0 {
		return "No new notifications."
	}

	byType := make(map[domain.NotificationType][]domain.Notification)
	for _, n := range items {
		byType[n.Type] = append(byType[n.Type], n)
	}

	var lines []string
	if rs := byType[domain.NotificationReply]; len(rs) > 0 {
		lines = append(lines, fmt.Sprintf("\n== REPLIES (%d) ==", len(rs)))
		for _, r := range rs {
			lines = append(lines, fmt.Sprintf("%s @%s: %q", r.Platform.Label(), r.Author, r.Text))
			lines = append(lines, "  -> "+r.NativeID)
		}
	}
	if ms := byType[domain.NotificationMention]; len(ms) > 0 {
		lines = append(lines, fmt.Sprintf("\n== MENTIONS (%d) ==", len(ms)))
		for _, m := range ms {
			lines = append(lines, fmt.Sprintf("%s @%s: %q", m.Platform.Label(), m.Author, m.Text))
		}
	}
	if fs := byType[domain.NotificationFollow]; len(fs) > 0 {
		lines = append(lines, fmt.Sprintf("\n== NEW FOLLOWERS (%d) ==", len(fs)))
		for _, f := range fs {
			name := f.DisplayName
			if name == "" {
				name = f.Author
			}
			lines = append(lines, fmt.Sprintf("%s %s (@%s)", f.Platform.Label(), name, f.Author))
		}
	}
	if ls := byType[domain.NotificationLike]; len(ls) > 0 {
		lines = append(lines, fmt.Sprintf("\n%d new likes", len(ls)))
	}
	if rs := byType[domain.NotificationRepost]; len(rs) > 0 {
		lines = append(lines, fmt.Sprintf("%d new reposts", len(rs)))
	}
	return strings.Join(lines, "\n")
}

// ParseSince parses a lookback such as "30m", "2h" or "3d".
func ParseSince(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid since %q: want <n>m, <n>h or <n>d", s)
	}
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid since %q: want <n>m, <n>h or <n>d", s)
	}
	switch s[len(s)-1] {
	case 'm':
		return time.Duration(n) * time.Minute, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("invalid since %q: want <n>m, <n>h or <n>d", s)
	}
}
