package engagement

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// Amplify runs the amplification flow for one target. Fresh posts are liked
// and recorded like in the engage flow; newsworthy posts not yet covered are
// collected across every platform and only the most recent one is amplified
// to each enabled platform. The others are left uncovered for a later run.
func (s *Service) Amplify(ctx context.Context, opts RunOptions) (*Report, error) {
	target, err := s.target(opts.Target)
	if err != nil {
		return nil, err
	}
	platforms, err := s.platforms(opts.Platforms)
	if err != nil {
		return nil, err
	}
	window := opts.Window
	if window <= 0 {
		window = DefaultAmplifyWindow
	}

	rep := &Report{Flow: "amplify", Target: target, DryRun: opts.DryRun, StoreLocation: s.StoreLocation()}
	s.logger.Info("starting amplify run", "target", target.Name, "platforms", platforms, "window", window, "dry_run", opts.DryRun, "force", opts.Force)

	rep.Pruned, err = s.withState(ctx, opts.DryRun, func(st *domain.State) error {
		var candidates []domain.PlatformPost
		for _, p := range platforms {
			pr := rep.platform(p)
			found, err := s.collect(ctx, st, target, pr, opts, window)
			if err != nil {
				return err
			}
			candidates = append(candidates, found...)
		}
		if len(candidates) == 0 {
			s.logger.Info("no newsworthy posts to amplify", "target", target.Name)
			return nil
		}

		sort.SliceStable(candidates, func(i, j int) bool {
			return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
		})
		chosen := candidates[0]
		rep.Amplified = &AmplifiedPost{Source: chosen, Classification: s.news.Classify(chosen.Text)}
		rep.Deferred = candidates[1:]
		for _, d := range rep.Deferred {
			s.logger.Info("newsworthy post deferred to a later run", "platform", d.Platform, "post", d.ID, "created_at", d.CreatedAt)
		}

		return s.deliver(ctx, st, rep, target, chosen, platforms, opts)
	})
	return rep, err
}

// collect likes and records the target's fresh posts on one platform and
// returns the newsworthy ones that are not yet covered.
func (s *Service) collect(
	ctx context.Context,
	st *domain.State,
	target domain.Target,
	pr *PlatformReport,
	opts RunOptions,
	window time.Duration,
) ([]domain.PlatformPost, error) {
	adapter := s.cfg.Adapters[pr.Platform]
	handle, ok := target.Handle(pr.Platform)
	if !ok {
		pr.Skipped = "target has no account"
		s.logger.Info("target has no account on platform, skipping", "platform", pr.Platform, "target", target.Name)
		return nil, nil
	}

	posts, err := adapter.FetchRecent(ctx, handle, s.cfg.FetchLimit)
	if err != nil {
		return nil, s.readFailed(pr, "fetch recent", err)
	}
	pr.Fetched = len(posts)
	fresh := s.recent(posts, handle, window)

	var out []domain.PlatformPost
	for _, post := range fresh {
		pr.Considered++
		if (opts.Force || !st.Has(post.Key())) && !post.ViewerLiked {
			if err := s.like(ctx, adapter, pr, post, opts); err != nil {
				return nil, err
			}
		}
		st.Mark(post.Key(), s.now(), domain.Excerpt(post.Text, excerptLength), domain.OutcomeSeen)

		coverKey := domain.EngagementKey(post.Platform, post.ID, domain.ActionAmplify)
		if s.news.Matches(post.Text) && (opts.Force || !st.Has(coverKey)) {
			out = append(out, post)
		}
	}
	s.logger.Info("collected amplification candidates", "platform", pr.Platform, "fresh", len(fresh), "newsworthy", len(out))
	return out, nil
}

// deliver posts the amplification of chosen to each destination platform and
// marks it covered. Destinations that already received it are skipped.
func (s *Service) deliver(
	ctx context.Context,
	st *domain.State,
	rep *Report,
	target domain.Target,
	chosen domain.PlatformPost,
	platforms []domain.Platform,
	opts RunOptions,
) error {
	amplifier := domain.NewAmplifier(target, s.now)
	for _, dest := range platforms {
		pr := rep.platform(dest)
		key := domain.AmplifyDeliveryKey(chosen, dest)
		log := s.logger.With("platform", dest, "source", chosen.ID, "key", key)
		if st.Has(key) && !opts.Force {
			log.Info("amplification already delivered")
			continue
		}

		text := amplifier.Generate(chosen.Text, dest)
		excerpt := domain.Excerpt(text, excerptLength)
		pr.Posts.Attempted++
		if opts.DryRun {
			pr.Posts.Simulated++
			st.Mark(key, s.now(), excerpt, domain.OutcomeDryRun)
			log.Info("dry run: would post amplification", "text", text)
			continue
		}

		ref, err := s.cfg.Adapters[dest].Post(ctx, text, domain.PostOptions{})
		switch {
		case err == nil:
			pr.Posts.Succeeded++
			st.Mark(key, s.now(), excerpt, domain.OutcomeDone)
			log.Info("posted amplification", "ref", ref.ID)
		case errors.Is(err, domain.ErrAuth):
			pr.Posts.Failed++
			log.Error("authentication failed, aborting", "error", err)
			return err
		case errors.Is(err, domain.ErrRateLimited):
			s.enqueue(st, pr, domain.PendingAction{
				ID:       key,
				Platform: dest,
				Kind:     domain.PendingPost,
				Text:     text,
			}, err)
			pr.Posts.Pending++
		default:
			pr.Posts.Failed++
			st.Mark(key, s.now(), excerpt, domain.OutcomeFailed)
			log.Error("amplification post failed", "error", err)
		}
	}

	coverKey := domain.EngagementKey(chosen.Platform, chosen.ID, domain.ActionAmplify)
	st.Mark(coverKey, s.now(), domain.Excerpt(chosen.Text, excerptLength), domain.OutcomeCovered)
	return nil
}
