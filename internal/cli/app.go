package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/blackmichael/social-engage/internal/bluesky"
	"github.com/blackmichael/social-engage/internal/config"
	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/engagement"
	"github.com/blackmichael/social-engage/internal/httpx"
	"github.com/blackmichael/social-engage/internal/postgres"
	"github.com/blackmichael/social-engage/internal/sqlite"
	"github.com/blackmichael/social-engage/internal/store"
	"github.com/blackmichael/social-engage/internal/webhook"
	"github.com/blackmichael/social-engage/internal/xapi"
)

// app is the wired service graph for one command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	roster  *config.Roster
	service *engagement.Service
	bluesky *bluesky.Client
	closers []func() error
}

func newLogger(opts *RootOptions, level string, w io.Writer) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	if opts.Verbose {
		lvl = slog.LevelDebug
	}
	ho := &slog.HandlerOptions{Level: lvl}
	if opts.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, ho))
	}
	return slog.New(slog.NewTextHandler(w, ho))
}

// newApp loads configuration and wires adapters, the state store and the
// service. Platforms without credentials are left out.
func newApp(ctx context.Context, opts *RootOptions, logOut io.Writer) (*app, error) {
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(opts, cfg.LogLevel, logOut)

	roster, err := config.LoadRoster(cfg.TargetsFile)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, roster: roster}

	st, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}

	httpCfg := httpx.DefaultConfig()
	httpCfg.Timeout = cfg.HTTPTimeout

	adapters := make(map[domain.Platform]domain.Adapter)
	if cfg.BlueskyEnabled() {
		a.bluesky = bluesky.NewClient(bluesky.Config{
			PDS:        cfg.BlueskyPDS,
			Identifier: cfg.BlueskyHandle,
			Password:   cfg.BlueskyPassword,
		}, httpx.New(httpCfg), logger)
		adapters[domain.PlatformBluesky] = a.bluesky
	} else {
		logger.Debug("bluesky credentials not set, platform disabled")
	}
	if cfg.XEnabled() {
		adapters[domain.PlatformX] = xapi.NewClient(ctx, xapi.Config{
			BaseURL:      cfg.XAPIURL,
			AccessToken:  cfg.XAccessToken,
			RefreshToken: cfg.XRefreshToken,
			ClientID:     cfg.XClientID,
			ClientSecret: cfg.XClientSecret,
		}, httpCfg, logger)
	} else {
		logger.Debug("x credentials not set, platform disabled")
	}

	var notifier engagement.Notifier
	if cfg.WebhookURL != "" {
		hookCfg := httpCfg
		hookCfg.MaxRetries = 0
		notifier = webhook.New(cfg.WebhookURL, httpx.New(hookCfg))
	}

	a.service, err = engagement.NewService(engagement.Config{
		Targets:      roster.Targets,
		Adapters:     adapters,
		Store:        st,
		Logger:       logger,
		Notifier:     notifier,
		Retention:    cfg.Retention,
		NewsKeywords: roster.NewsKeywords,
		Retry: engagement.RetryPolicy{
			MaxRetries:  cfg.PendingMaxRetries,
			BaseBackoff: cfg.PendingBackoff,
		},
	})
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("create service: %w", err)
	}
	return a, nil
}

func (a *app) openStore(ctx context.Context) (domain.StateStore, error) {
	switch a.cfg.StateBackend {
	case config.BackendSQLite:
		s, err := sqlite.Open(a.cfg.StatePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite state: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.BackendPostgres:
		s, err := postgres.NewStore(a.cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open postgres state: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if err := s.Migrate(ctx); err != nil {
			a.Close()
			return nil, err
		}
		return s, nil
	default:
		return store.NewFileStore(a.cfg.StatePath), nil
	}
}

// Close releases the state store.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	a.closers = nil
	return errors.Join(errs...)
}
