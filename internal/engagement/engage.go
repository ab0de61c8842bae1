package engagement

import (
	"context"
	"errors"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// Engage runs the engage flow for one target: follow once, like every fresh
// unliked post, repost popular ones and reply to at most one keyword match
// per platform. Read failures are reported per platform; only an
// authentication failure aborts the invocation.
func (s *Service) Engage(ctx context.Context, opts RunOptions) (*Report, error) {
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
		window = DefaultEngageWindow
	}

	rep := &Report{Flow: "engage", Target: target, DryRun: opts.DryRun, StoreLocation: s.StoreLocation()}
	s.logger.Info("starting engage run", "target", target.Name, "platforms", platforms, "window", window, "dry_run", opts.DryRun, "force", opts.Force)

	classifier := domain.NewClassifier(target.Keywords)
	rep.Pruned, err = s.withState(ctx, opts.DryRun, func(st *domain.State) error {
		for _, p := range platforms {
			pr := rep.platform(p)
			if err := s.engagePlatform(ctx, st, target, pr, classifier, opts, window); err != nil {
				return err
			}
		}
		return nil
	})
	return rep, err
}

func (s *Service) engagePlatform(
	ctx context.Context,
	st *domain.State,
	target domain.Target,
	pr *PlatformReport,
	classifier *domain.Classifier,
	opts RunOptions,
	window time.Duration,
) error {
	p := pr.Platform
	adapter := s.cfg.Adapters[p]
	log := s.logger.With("platform", p, "target", target.Name)

	handle, ok := target.Handle(p)
	if !ok {
		pr.Skipped = "target has no account"
		log.Info("target has no account on platform, skipping")
		return nil
	}

	if err := s.follow(ctx, st, adapter, pr, handle, opts); err != nil {
		return err
	}

	posts, err := adapter.FetchRecent(ctx, handle, s.cfg.FetchLimit)
	if err != nil {
		return s.readFailed(pr, "fetch recent", err)
	}
	pr.Fetched = len(posts)
	fresh := s.recent(posts, handle, window)
	log.Info("fetched recent posts", "fetched", len(posts), "fresh", len(fresh))

	replied := false
	for _, post := range fresh {
		pr.Considered++
		seen := st.Has(post.Key()) && !opts.Force

		if !seen && !post.ViewerLiked {
			if err := s.like(ctx, adapter, pr, post, opts); err != nil {
				return err
			}
		}

		if post.Metrics.Likes > s.cfg.RepostThreshold {
			if err := s.repost(ctx, st, adapter, pr, post, opts); err != nil {
				return err
			}
		}

		replyKey := domain.EngagementKey(p, post.ID, domain.ActionReply)
		if !replied && classifier.Matches(post.Text) && (opts.Force || !st.Has(replyKey)) {
			replied = true
			if err := s.reply(ctx, st, adapter, pr, target, post, opts); err != nil {
				return err
			}
		}

		st.Mark(post.Key(), s.now(), domain.Excerpt(post.Text, excerptLength), domain.OutcomeSeen)
	}
	return nil
}

// follow follows the target once per platform. Failures other than
// authentication are logged and retried on a later run.
func (s *Service) follow(ctx context.Context, st *domain.State, adapter domain.Adapter, pr *PlatformReport, handle string, opts RunOptions) error {
	key := domain.FollowKey(pr.Platform, handle)
	if st.Has(key) && !opts.Force {
		return nil
	}
	pr.Follows.Attempted++
	if opts.DryRun {
		pr.Follows.Simulated++
		s.logger.Info("dry run: would follow", "platform", pr.Platform, "handle", handle)
		st.Mark(key, s.now(), "", domain.OutcomeDryRun)
		return nil
	}
	if err := adapter.Follow(ctx, handle); err != nil {
		return s.bestEffortFailed(&pr.Follows, pr.Platform, "follow", err)
	}
	pr.Follows.Succeeded++
	st.Mark(key, s.now(), "", domain.OutcomeDone)
	s.logger.Info("followed target", "platform", pr.Platform, "handle", handle)
	return nil
}

// like is best-effort; the base key is recorded by the caller either way.
func (s *Service) like(ctx context.Context, adapter domain.Adapter, pr *PlatformReport, post domain.PlatformPost, opts RunOptions) error {
	pr.Likes.Attempted++
	if opts.DryRun {
		pr.Likes.Simulated++
		s.logger.Info("dry run: would like", "platform", pr.Platform, "post", post.ID)
		return nil
	}
	if err := adapter.Like(ctx, post.Ref()); err != nil {
		return s.bestEffortFailed(&pr.Likes, pr.Platform, "like", err)
	}
	pr.Likes.Succeeded++
	s.logger.Info("liked post", "platform", pr.Platform, "post", post.ID)
	return nil
}

func (s *Service) repost(ctx context.Context, st *domain.State, adapter domain.Adapter, pr *PlatformReport, post domain.PlatformPost, opts RunOptions) error {
	key := domain.EngagementKey(pr.Platform, post.ID, domain.ActionRepost)
	if st.Has(key) && !opts.Force {
		return nil
	}
	pr.Reposts.Attempted++
	if opts.DryRun {
		pr.Reposts.Simulated++
		s.logger.Info("dry run: would repost", "platform", pr.Platform, "post", post.ID, "likes", post.Metrics.Likes)
		st.Mark(key, s.now(), "", domain.OutcomeDryRun)
		return nil
	}
	if err := adapter.Repost(ctx, post.Ref()); err != nil {
		return s.bestEffortFailed(&pr.Reposts, pr.Platform, "repost", err)
	}
	pr.Reposts.Succeeded++
	st.Mark(key, s.now(), "", domain.OutcomeDone)
	s.logger.Info("reposted post", "platform", pr.Platform, "post", post.ID, "likes", post.Metrics.Likes)
	return nil
}

// bestEffortFailed swallows a like/follow/repost failure unless it is an
// authentication failure.
func (s *Service) bestEffortFailed(c *ActionCounts, p domain.Platform, op string, err error) error {
	c.Failed++
	if errors.Is(err, domain.ErrAuth) {
		s.logger.Error("authentication failed, aborting", "platform", p, "op", op, "error", err)
		return err
	}
	s.logger.Warn("best-effort action failed", "platform", p, "op", op, "error", err)
	return nil
}

// reply sends one reply. A rate-limited reply is queued for flush; any other
// failure is recorded terminally.
func (s *Service) reply(ctx context.Context, st *domain.State, adapter domain.Adapter, pr *PlatformReport, target domain.Target, post domain.PlatformPost, opts RunOptions) error {
	text, ok := s.cfg.Replies.Pick(target)
	if !ok {
		s.logger.Info("target has no reply texts, skipping reply", "target", target.Name)
		return nil
	}
	key := domain.EngagementKey(pr.Platform, post.ID, domain.ActionReply)
	excerpt := domain.Excerpt(text, excerptLength)
	log := s.logger.With("platform", pr.Platform, "post", post.ID, "key", key)

	pr.Replies.Attempted++
	if opts.DryRun {
		pr.Replies.Simulated++
		log.Info("dry run: would reply", "text", text)
		st.Mark(key, s.now(), excerpt, domain.OutcomeDryRun)
		return nil
	}

	ref, err := adapter.Reply(ctx, post.Ref(), text)
	switch {
	case err == nil:
		pr.Replies.Succeeded++
		st.Mark(key, s.now(), excerpt, domain.OutcomeDone)
		log.Info("replied to post", "reply", ref.ID)
	case errors.Is(err, domain.ErrAuth):
		pr.Replies.Failed++
		log.Error("authentication failed, aborting", "error", err)
		return err
	case errors.Is(err, domain.ErrRateLimited):
		parent := post.Ref()
		s.enqueue(st, pr, domain.PendingAction{
			ID:       key,
			Platform: pr.Platform,
			Kind:     domain.PendingReply,
			Text:     text,
			Parent:   &parent,
		}, err)
		pr.Replies.Pending++
	default:
		pr.Replies.Failed++
		st.Mark(key, s.now(), excerpt, domain.OutcomeFailed)
		log.Error("reply failed", "error", err)
	}
	return nil
}
