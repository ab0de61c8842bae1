package engagement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// Retry defaults.
const (
	DefaultMaxRetries  = 5
	DefaultBaseBackoff = 15 * time.Minute
	DefaultMaxBackoff  = 6 * time.Hour
)

// RetryPolicy bounds how often a rate-limited write is re-attempted.
type RetryPolicy struct {
	// MaxRetries is the number of rate-limited re-attempts after which a
	// pending action is abandoned.
	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
}

func (p RetryPolicy) normalize() RetryPolicy {
	if p.MaxRetries <= 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.BaseBackoff <= 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	if p.MaxBackoff < p.BaseBackoff {
		p.MaxBackoff = p.BaseBackoff
	}
	return p
}

// Backoff is the delay before the next attempt once retries re-attempts have
// been rate limited: BaseBackoff doubled per retry, at least the platform's
// hint, at most MaxBackoff.
func (p RetryPolicy) Backoff(retries int, hint time.Duration) time.Duration {
	d := p.BaseBackoff
	for i := 1; i < retries && d < p.MaxBackoff; i++ {
		d *= 2
	}
	return min(max(d, hint), p.MaxBackoff)
}

// enqueue persists a rate-limited write and records its key as pending.
func (s *Service) enqueue(st *domain.State, pr *PlatformReport, pa domain.PendingAction, cause error) {
	now := s.now()
	pa.CreatedAt = now
	pa.NextAttemptAt = now.Add(domain.RetryAfter(cause))
	pa.LastError = cause.Error()
	st.Enqueue(pa)
	st.Mark(pa.ID, now, domain.Excerpt(pa.Text, excerptLength), domain.OutcomePending)
	if pr != nil {
		pr.PendingIDs = append(pr.PendingIDs, pa.ID)
	}
	s.logger.Warn("rate limited, action queued for retry",
		"platform", pa.Platform,
		"key", pa.ID,
		"kind", pa.Kind,
		"store", s.StoreLocation(),
		"next_attempt_at", pa.NextAttemptAt,
	)
}

// FlushOptions configure a flush.
type FlushOptions struct {
	DryRun bool

	// Platforms restricts the flush; empty means all.
	Platforms []domain.Platform
}

// FlushOutcome is what happened to one pending action.
type FlushOutcome string

const (
	FlushSent        FlushOutcome = "sent"
	FlushDeferred    FlushOutcome = "deferred"
	FlushRescheduled FlushOutcome = "rescheduled"
	FlushAbandoned   FlushOutcome = "abandoned"
	FlushFailed      FlushOutcome = "failed"
	FlushSimulated   FlushOutcome = "dry_run"
)

// FlushResult reports one pending action.
type FlushResult struct {
	ID            string
	Platform      domain.Platform
	Kind          domain.PendingKind
	Outcome       FlushOutcome
	Retries       int
	Ref           domain.PostRef
	NextAttemptAt time.Time
	Error         string
}

// FlushReport is the result of a flush.
type FlushReport struct {
	Results []FlushResult

	// Remaining is the queue length after the flush.
	Remaining int
	Pruned    int
}

// Count returns how many results had outcome o.
func (r *FlushReport) Count(o FlushOutcome) int {
	n := 0
	for _, res := range r.Results {
		if res.Outcome == o {
			n++
		}
	}
	return n
}

// Flush re-attempts due pending actions, oldest first. After a platform
// rate-limits once, its remaining entries wait for the next flush. Successes
// are removed; rate-limited entries are rescheduled with backoff until
// MaxRetries, then abandoned; other failures are removed and recorded as
// failed. An authentication failure stops the flush and keeps the entry.
func (s *Service) Flush(ctx context.Context, opts FlushOptions) (*FlushReport, error) {
	want := make(map[domain.Platform]bool)
	for _, p := range opts.Platforms {
		want[p] = true
	}

	rep := &FlushReport{}
	var err error
	rep.Pruned, err = s.withState(ctx, opts.DryRun, func(st *domain.State) error {
		now := s.now()
		limited := make(map[domain.Platform]bool)
		queue := st.PendingActions()
		s.logger.Info("flushing pending actions", "count", len(queue), "dry_run", opts.DryRun)

		for _, pa := range queue {
			if len(want) > 0 && !want[pa.Platform] {
				continue
			}
			res := FlushResult{ID: pa.ID, Platform: pa.Platform, Kind: pa.Kind, Retries: pa.Retries, NextAttemptAt: pa.NextAttemptAt}
			log := s.logger.With("platform", pa.Platform, "key", pa.ID, "retries", pa.Retries)

			adapter, ok := s.cfg.Adapters[pa.Platform]
			switch {
			case !ok:
				res.Outcome = FlushDeferred
				res.Error = "platform not configured"
			case limited[pa.Platform] || pa.NextAttemptAt.After(now):
				res.Outcome = FlushDeferred
			case opts.DryRun:
				res.Outcome = FlushSimulated
				log.Info("dry run: would re-attempt", "kind", pa.Kind, "text", pa.Text)
			}
			if res.Outcome != "" {
				rep.Results = append(rep.Results, res)
				continue
			}

			ref, sendErr := s.send(ctx, adapter, pa)
			switch {
			case sendErr == nil:
				st.RemovePending(pa.ID)
				st.Mark(pa.ID, now, "", domain.OutcomeDone)
				res.Outcome = FlushSent
				res.Ref = ref
				log.Info("pending action sent", "ref", ref.ID)

			case errors.Is(sendErr, domain.ErrAuth):
				log.Error("authentication failed, aborting flush", "error", sendErr)
				res.Outcome = FlushDeferred
				res.Error = sendErr.Error()
				rep.Results = append(rep.Results, res)
				rep.Remaining = len(st.Pending)
				return sendErr

			case errors.Is(sendErr, domain.ErrRateLimited):
				limited[pa.Platform] = true
				pa.Retries++
				pa.LastError = sendErr.Error()
				res.Retries = pa.Retries
				res.Error = pa.LastError
				if pa.Retries >= s.cfg.Retry.MaxRetries {
					st.RemovePending(pa.ID)
					st.Mark(pa.ID, now, "", domain.OutcomeAbandoned)
					res.Outcome = FlushAbandoned
					log.Error("pending action abandoned after max retries", "max_retries", s.cfg.Retry.MaxRetries)
					break
				}
				pa.NextAttemptAt = now.Add(s.cfg.Retry.Backoff(pa.Retries, domain.RetryAfter(sendErr)))
				st.Enqueue(pa)
				res.Outcome = FlushRescheduled
				res.NextAttemptAt = pa.NextAttemptAt
				log.Warn("still rate limited, rescheduled", "next_attempt_at", pa.NextAttemptAt)

			default:
				st.RemovePending(pa.ID)
				st.Mark(pa.ID, now, "", domain.OutcomeFailed)
				res.Outcome = FlushFailed
				res.Error = sendErr.Error()
				log.Error("pending action failed, dropped", "error", sendErr)
			}
			rep.Results = append(rep.Results, res)
		}

		rep.Remaining = len(st.Pending)
		return nil
	})
	return rep, err
}

func (s *Service) send(ctx context.Context, adapter domain.Adapter, pa domain.PendingAction) (domain.PostRef, error) {
	switch pa.Kind {
	case domain.PendingReply:
		if pa.Parent == nil {
			return domain.PostRef{}, fmt.Errorf("pending reply %s has no parent", pa.ID)
		}
		return adapter.Reply(ctx, *pa.Parent, pa.Text)
	case domain.PendingPost:
		return adapter.Post(ctx, pa.Text, domain.PostOptions{URL: pa.URL})
	default:
		return domain.PostRef{}, fmt.Errorf("unknown pending kind %q", pa.Kind)
	}
}
