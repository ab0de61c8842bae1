package engagement

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/store"
	"github.com/blackmichael/social-engage/internal/testutil"
)

func TestRetryPolicy_Backoff(t *testing.T) {
	p := RetryPolicy{}.normalize()

	tests := []struct {
		retries int
		hint    time.Duration
		want    time.Duration
	}{
		{1, 0, 15 * time.Minute},
		{2, 0, 30 * time.Minute},
		{3, 0, time.Hour},
		{1, 40 * time.Minute, 40 * time.Minute},
		{10, 0, 6 * time.Hour},
		{1, 8 * time.Hour, 6 * time.Hour},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, p.Backoff(tt.retries, tt.hint), "retries=%d hint=%s", tt.retries, tt.hint)
	}
}

func pendingReply(id string, p domain.Platform, created time.Time) domain.PendingAction {
	return domain.PendingAction{
		ID:            id,
		Platform:      p,
		Kind:          domain.PendingReply,
		Text:          "Nice work.",
		Parent:        &domain.PostRef{ID: "parent-" + id},
		CreatedAt:     created,
		NextAttemptAt: created,
	}
}

func seeded(t *testing.T, pending ...domain.PendingAction) *store.MemoryStore {
	t.Helper()
	st := domain.NewState()
	for _, pa := range pending {
		st.Enqueue(pa)
		st.Mark(pa.ID, pa.CreatedAt, "", domain.OutcomePending)
	}
	mem, err := store.NewMemoryStoreWith(st)
	require.NoError(t, err)
	return mem
}

func TestFlush_RescheduleThenAbandon(t *testing.T) {
	mem := seeded(t, pendingReply("x:1:reply", domain.PlatformX, t0.Add(-time.Hour)))
	f := newFixture(t, func(c *Config) {
		c.Store = mem
		c.Retry = RetryPolicy{MaxRetries: 2}
	})
	f.store = mem
	f.x.FailNext(testutil.OpReply,
		testutil.RateLimited(domain.PlatformX, "reply", 0),
		testutil.RateLimited(domain.PlatformX, "reply", 0),
	)

	rep, err := f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)
	require.Len(t, rep.Results, 1)
	assert.Equal(t, FlushRescheduled, rep.Results[0].Outcome)
	assert.Equal(t, 1, rep.Results[0].Retries)

	pa := f.state(t).Pending["x:1:reply"]
	assert.Equal(t, 1, pa.Retries)
	assert.True(t, pa.NextAttemptAt.Equal(t0.Add(15*time.Minute)))

	// Not due yet.
	rep, err = f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(FlushDeferred))
	assert.Len(t, f.x.CallsOf(testutil.OpReply), 1)

	f.clock.Advance(15 * time.Minute)
	rep, err = f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(FlushAbandoned))
	assert.Equal(t, 0, rep.Remaining)

	st := f.state(t)
	assert.Empty(t, st.Pending)
	assert.Equal(t, domain.OutcomeAbandoned, st.Records["x:1:reply"].Outcome)
	assert.Len(t, f.x.CallsOf(testutil.OpReply), 2)
}

func TestFlush_OneAttemptPerRateLimitedPlatform(t *testing.T) {
	mem := seeded(t,
		pendingReply("x:1:reply", domain.PlatformX, t0.Add(-2*time.Hour)),
		pendingReply("x:2:reply", domain.PlatformX, t0.Add(-time.Hour)),
		pendingReply("bsky:3:reply", domain.PlatformBluesky, t0.Add(-time.Hour)),
	)
	f := newFixture(t, func(c *Config) { c.Store = mem })
	f.x.FailNext(testutil.OpReply, testutil.RateLimited(domain.PlatformX, "reply", time.Hour))

	rep, err := f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)

	assert.Equal(t, 1, rep.Count(FlushRescheduled))
	assert.Equal(t, 1, rep.Count(FlushDeferred))
	assert.Equal(t, 1, rep.Count(FlushSent))
	assert.Equal(t, 2, rep.Remaining)
	require.Len(t, f.x.CallsOf(testutil.OpReply), 1)
	assert.Equal(t, "parent-x:1:reply", f.x.CallsOf(testutil.OpReply)[0].Ref.ID)

	st, err := mem.Load(context.Background())
	require.NoError(t, err)
	// The platform hint exceeds the base backoff.
	assert.True(t, st.Pending["x:1:reply"].NextAttemptAt.Equal(t0.Add(time.Hour)))
	assert.Equal(t, domain.OutcomeDone, st.Records["bsky:3:reply"].Outcome)
}

func TestFlush_AuthFailureKeepsEntry(t *testing.T) {
	mem := seeded(t, pendingReply("x:1:reply", domain.PlatformX, t0))
	f := newFixture(t, func(c *Config) { c.Store = mem })
	f.x.FailNext(testutil.OpReply, testutil.AuthFailed(domain.PlatformX, "reply"))

	_, err := f.svc.Flush(context.Background(), FlushOptions{})
	require.ErrorIs(t, err, domain.ErrAuth)

	st, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Contains(t, st.Pending, "x:1:reply")
	assert.Equal(t, 1, mem.Saves())
}

func TestFlush_OtherFailureDropsEntry(t *testing.T) {
	mem := seeded(t, pendingReply("x:1:reply", domain.PlatformX, t0))
	f := newFixture(t, func(c *Config) { c.Store = mem })
	f.x.FailNext(testutil.OpReply, testutil.Failed(domain.PlatformX, "reply", "duplicate content"))

	rep, err := f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(FlushFailed))

	st, err := mem.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, st.Pending)
	assert.Equal(t, domain.OutcomeFailed, st.Records["x:1:reply"].Outcome)
}

func TestFlush_UnconfiguredPlatformIsKept(t *testing.T) {
	mem := seeded(t, pendingReply("x:1:reply", domain.PlatformX, t0))
	f := newFixture(t, func(c *Config) {
		c.Store = mem
		delete(c.Adapters, domain.PlatformX)
	})

	rep, err := f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(FlushDeferred))
	assert.Equal(t, 1, rep.Remaining)
}

func TestFlush_PendingPostReplaysURL(t *testing.T) {
	pa := domain.PendingAction{
		ID:        "post:1",
		Platform:  domain.PlatformBluesky,
		Kind:      domain.PendingPost,
		Text:      "hello",
		URL:       "https://example.com",
		CreatedAt: t0,
	}
	mem := seeded(t, pa)
	f := newFixture(t, func(c *Config) { c.Store = mem })

	rep, err := f.svc.Flush(context.Background(), FlushOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, rep.Count(FlushSent))
	assert.Equal(t, "bsky-new-1", rep.Results[0].Ref.ID)

	posts := f.bsky.CallsOf(testutil.OpPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "https://example.com", posts[0].Opts.URL)
}

func TestFlush_DryRun(t *testing.T) {
	mem := seeded(t, pendingReply("x:1:reply", domain.PlatformX, t0))
	f := newFixture(t, func(c *Config) { c.Store = mem })

	rep, err := f.svc.Flush(context.Background(), FlushOptions{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Count(FlushSimulated))
	assert.Empty(t, f.x.Calls())
	assert.Equal(t, 0, mem.Saves())
}
