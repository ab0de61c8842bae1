package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
	"github.com/blackmichael/social-engage/internal/firehose"
	"github.com/blackmichael/social-engage/internal/httpserver"
)

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		target        int
		flushInterval time.Duration
	)
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run the amplify flow whenever a watched account posts on Bluesky",
		Long: `Subscribes to the Bluesky Jetstream for the roster's Bluesky accounts (or only
--target) and runs one amplify pass for the author whenever a new top-level post
arrives. Pending actions are flushed every --flush-interval and /health and
/status are served on PORT.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, rootOpts, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.Close()
			return a.watch(ctx, target, flushInterval)
		},
	}
	cmd.Flags().IntVar(&target, "target", -1, "roster index to watch (default: every target with a Bluesky handle)")
	cmd.Flags().DurationVar(&flushInterval, "flush-interval", 15*time.Minute, "how often to flush pending actions (0 disables)")
	return cmd
}

// daemon serializes the watch daemon's state cycles; the stores' locks do
// not wait.
type daemon struct {
	mu      sync.Mutex
	service *engagement.Service
	logger  *slog.Logger

	// targets maps a watched DID to its roster index.
	targets map[string]int
}

func (d *daemon) LoadCursor(ctx context.Context, name string) (domain.Cursor, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.service.LoadCursor(ctx, name)
}

func (d *daemon) SaveCursor(ctx context.Context, name string, c domain.Cursor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.service.SaveCursor(ctx, name, c)
}

func (d *daemon) Status(ctx context.Context) (*engagement.StatusReport, error) {
	return d.service.Status(ctx)
}

// onPost runs one amplify pass for the post's author.
func (d *daemon) onPost(ctx context.Context, post firehose.Post) error {
	idx, ok := d.targets[post.DID]
	if !ok {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	rep, err := d.service.Amplify(ctx, engagement.RunOptions{Target: idx})
	if err != nil {
		return fmt.Errorf("amplify: %w", err)
	}
	if rep.Amplified != nil {
		d.logger.Info("amplified post", "source", rep.Amplified.Source.ID, "pending", len(rep.PendingIDs()))
	}
	return nil
}

// flushLoop flushes pending actions on a fixed interval until ctx is done.
func (d *daemon) flushLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.mu.Lock()
			rep, err := d.service.Flush(ctx, engagement.FlushOptions{})
			d.mu.Unlock()
			if err != nil {
				d.logger.Error("scheduled flush failed", "error", err)
				continue
			}
			if len(rep.Results) > 0 {
				d.logger.Info("scheduled flush", "sent", rep.Count(engagement.FlushSent), "remaining", rep.Remaining)
			}
		}
	}
}

// resolveTargets maps the DIDs of the watched targets' Bluesky handles to
// their roster indexes.
func (a *app) resolveTargets(ctx context.Context, only int) (map[string]int, error) {
	if a.bluesky == nil {
		return nil, errors.New("watch requires Bluesky credentials (BSKY_HANDLE, BSKY_APP_PASSWORD)")
	}
	out := make(map[string]int)
	for i, t := range a.roster.Targets {
		if only >= 0 && i != only {
			continue
		}
		handle, ok := t.Handle(domain.PlatformBluesky)
		if !ok {
			continue
		}
		did, err := a.bluesky.ResolveHandle(ctx, handle)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				a.logger.Warn("cannot resolve target handle, not watching", "target", t.Name, "handle", handle)
				continue
			}
			return nil, fmt.Errorf("resolve %s: %w", handle, err)
		}
		out[did] = i
		a.logger.Info("watching target", "target", t.Name, "handle", handle, "did", did)
	}
	if len(out) == 0 {
		return nil, errors.New("no target with a resolvable Bluesky handle to watch")
	}
	return out, nil
}

func (a *app) watch(ctx context.Context, only int, flushInterval time.Duration) error {
	targets, err := a.resolveTargets(ctx, only)
	if err != nil {
		return err
	}
	d := &daemon{service: a.service, logger: a.logger, targets: targets}

	dids := make([]string, 0, len(targets))
	for did := range targets {
		dids = append(dids, did)
	}
	sub := firehose.NewSubscriber(a.cfg.JetstreamURL, dids, d.onPost, d, a.logger)
	server := httpserver.NewServer(a.cfg.Port, d, sub, a.logger)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := sub.Start(gctx); err != nil && gctx.Err() == nil {
			return fmt.Errorf("firehose: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if flushInterval > 0 {
		g.Go(func() error {
			d.flushLoop(gctx, flushInterval)
			return nil
		})
	}

	a.logger.Info("watch daemon started", "port", a.cfg.Port, "watched", len(dids))
	err = g.Wait()
	a.logger.Info("watch daemon stopped")
	return err
}
