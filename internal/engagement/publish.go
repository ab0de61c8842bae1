package engagement

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"github.com/blackmichael/social-engage/internal/domain"
)

// PublishOptions describe a manual post.
type PublishOptions struct {
	Text string
	URL  string

	Platforms []domain.Platform
	DryRun    bool
}

// PublishResult is the outcome of a manual post on one platform.
type PublishResult struct {
	Platform domain.Platform
	Ref      domain.PostRef

	// PendingID is set when the post was queued after a rate limit.
	PendingID string
	Error     string
}

// Publish posts the same text to every enabled platform. Each adapter
// truncates to its own limit. Rate-limited platforms get a pending entry;
// other failures are reported and do not stop the remaining platforms.
func (s *Service) Publish(ctx context.Context, opts PublishOptions) ([]PublishResult, error) {
	if strings.TrimSpace(opts.Text) == "" {
		return nil, errors.New("post text is required")
	}
	platforms, err := s.platforms(opts.Platforms)
	if err != nil {
		return nil, err
	}

	var results []PublishResult
	_, err = s.withState(ctx, opts.DryRun, func(st *domain.State) error {
		for _, p := range platforms {
			res := PublishResult{Platform: p}
			log := s.logger.With("platform", p)
			if opts.DryRun {
				log.Info("dry run: would post", "text", opts.Text, "url", opts.URL)
				results = append(results, res)
				continue
			}

			ref, err := s.cfg.Adapters[p].Post(ctx, opts.Text, domain.PostOptions{URL: opts.URL})
			switch {
			case err == nil:
				res.Ref = ref
				log.Info("posted", "ref", ref.ID)
			case errors.Is(err, domain.ErrAuth):
				log.Error("authentication failed, aborting", "error", err)
				res.Error = err.Error()
				results = append(results, res)
				return err
			case errors.Is(err, domain.ErrRateLimited):
				res.PendingID = "post:" + uuid.NewString()
				res.Error = err.Error()
				s.enqueue(st, nil, domain.PendingAction{
					ID:       res.PendingID,
					Platform: p,
					Kind:     domain.PendingPost,
					Text:     opts.Text,
					URL:      opts.URL,
				}, err)
			default:
				res.Error = err.Error()
				log.Error("post failed", "error", err)
			}
			results = append(results, res)
		}
		return nil
	})
	return results, err
}
