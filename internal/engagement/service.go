// Package engagement runs the engine's invocations: the engage and amplify
// passes, the pending-action flush, the notification monitor and manual
// posts. Each invocation is one load-mutate-save cycle on the StateStore.
package engagement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// Defaults applied by NewService.
const (
	DefaultRetention       = 7 * 24 * time.Hour
	DefaultFetchLimit      = 10
	DefaultMaxItems        = 5
	DefaultRepostThreshold = 50
	DefaultEngageWindow    = 48 * time.Hour
	DefaultAmplifyWindow   = 12 * time.Hour
	DefaultMonitorLookback = 24 * time.Hour

	excerptLength = 200
)

// ErrNoPlatforms is returned when no requested platform has credentials.
var ErrNoPlatforms = errors.New("no platform credentials configured")

// Notifier receives digest text. *webhook.Sink implements it.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Config wires the service.
type Config struct {
	Targets []domain.Target

	// Adapters holds the enabled platforms; a platform without credentials
	// is simply absent.
	Adapters map[domain.Platform]domain.Adapter

	Store  domain.StateStore
	Logger *slog.Logger
	Now    domain.Clock

	// Replies picks reply texts. Tests inject a seeded picker.
	Replies *domain.ReplyPicker

	// Notifier receives the monitor digest when notification is requested.
	Notifier Notifier

	Retention       time.Duration
	FetchLimit      int
	MaxItems        int
	RepostThreshold int

	// NewsKeywords decide newsworthiness in the amplify flow.
	NewsKeywords []string

	Retry RetryPolicy
}

// Service executes invocations against the configured adapters and store.
type Service struct {
	cfg    Config
	logger *slog.Logger
	now    domain.Clock
	news   *domain.Classifier
}

// NewService validates cfg and fills in defaults.
func NewService(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, errors.New("state store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Replies == nil {
		cfg.Replies = domain.NewRandomReplyPicker()
	}
	if cfg.Adapters == nil {
		cfg.Adapters = map[domain.Platform]domain.Adapter{}
	}
	if cfg.Retention <= 0 {
		cfg.Retention = DefaultRetention
	}
	if cfg.FetchLimit <= 0 {
		cfg.FetchLimit = DefaultFetchLimit
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.RepostThreshold <= 0 {
		cfg.RepostThreshold = DefaultRepostThreshold
	}
	if len(cfg.NewsKeywords) == 0 {
		cfg.NewsKeywords = domain.DefaultNewsKeywords
	}
	cfg.Retry = cfg.Retry.normalize()

	return &Service{
		cfg:    cfg,
		logger: cfg.Logger,
		now:    cfg.Now,
		news:   domain.NewClassifier(cfg.NewsKeywords),
	}, nil
}

// RunOptions are the invocation flags shared by the engage and amplify flows.
type RunOptions struct {
	// Target is an explicit roster index; negative selects by hour of day.
	Target int

	// Platforms restricts the run; empty means every enabled platform.
	Platforms []domain.Platform

	DryRun bool

	// Force bypasses dedup checks.
	Force bool

	// Window overrides the recency window.
	Window time.Duration
}

// StoreLocation describes where state (and pending payloads) are kept.
func (s *Service) StoreLocation() string {
	if str, ok := s.cfg.Store.(fmt.Stringer); ok {
		return str.String()
	}
	return fmt.Sprintf("%T", s.cfg.Store)
}

func (s *Service) target(explicit int) (domain.Target, error) {
	idx, err := domain.SelectTarget(s.cfg.Targets, explicit, s.now().Hour())
	if err != nil {
		return domain.Target{}, err
	}
	return s.cfg.Targets[idx], nil
}

// platforms returns the enabled subset of requested in processing order.
func (s *Service) platforms(requested []domain.Platform) ([]domain.Platform, error) {
	if len(requested) == 0 {
		requested = domain.AllPlatforms
	}
	want := make(map[domain.Platform]bool, len(requested))
	for _, p := range requested {
		want[p] = true
	}
	var out []domain.Platform
	for _, p := range domain.AllPlatforms {
		if _, ok := s.cfg.Adapters[p]; ok && want[p] {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil, ErrNoPlatforms
	}
	return out, nil
}

// withState runs fn inside one load-mutate-save cycle. Stores that implement
// domain.Locker are locked for the whole cycle. Records past retention are
// pruned every time; dry runs never save. fn's error wins over a save error,
// but state is saved either way so work done before an abort is kept.
func (s *Service) withState(ctx context.Context, dryRun bool, fn func(*domain.State) error) (pruned int, err error) {
	if l, ok := s.cfg.Store.(domain.Locker); ok && !dryRun {
		unlock, err := l.Lock(ctx)
		if err != nil {
			return 0, fmt.Errorf("lock state: %w", err)
		}
		defer func() {
			if err := unlock(); err != nil {
				s.logger.Warn("failed to release state lock", "error", err)
			}
		}()
	}

	st, err := s.cfg.Store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load state: %w", err)
	}

	runErr := fn(st)

	pruned = st.Prune(s.now(), s.cfg.Retention)
	if pruned > 0 {
		s.logger.Info("pruned engagement records", "count", pruned, "retention", s.cfg.Retention)
	}

	if dryRun {
		s.logger.Info("dry run: state not saved")
		return pruned, runErr
	}
	if err := s.cfg.Store.Save(ctx, st); err != nil {
		err = fmt.Errorf("save state: %w", err)
		if runErr != nil {
			return pruned, errors.Join(runErr, err)
		}
		return pruned, err
	}
	return pruned, runErr
}

// readFailed records a failed read on pr. Only authentication failures are
// returned; every other kind is reported and the platform is skipped.
func (s *Service) readFailed(pr *PlatformReport, op string, err error) error {
	pr.Error = err.Error()
	log := s.logger.With("platform", pr.Platform, "op", op, "error", err)
	switch {
	case errors.Is(err, domain.ErrAuth):
		log.Error("authentication failed, aborting")
		return err
	case errors.Is(err, domain.ErrNotFound):
		pr.Skipped = "account not found"
		log.Warn("account not found, skipping platform")
	case errors.Is(err, domain.ErrRateLimited):
		pr.Skipped = "rate limited"
		log.Warn("rate limited, skipping platform for this run", "retry_after", domain.RetryAfter(err))
	default:
		log.Error("read failed, skipping platform")
	}
	return nil
}

// recent keeps the target's own posts created within window, capped at
// MaxItems, preserving fetch order.
func (s *Service) recent(posts []domain.PlatformPost, handle string, window time.Duration) []domain.PlatformPost {
	now := s.now()
	var out []domain.PlatformPost
	for _, p := range posts {
		if p.AuthorHandle != "" && !equalHandle(p.AuthorHandle, handle) {
			continue
		}
		if p.CreatedAt.IsZero() || now.Sub(p.CreatedAt) > window {
			continue
		}
		out = append(out, p)
		if len(out) == s.cfg.MaxItems {
			break
		}
	}
	return out
}
