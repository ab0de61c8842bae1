package engagement

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/domain"
	"github.com/blackmichael/social-engage/internal/testutil"
)

func TestPublish_PostsToEveryPlatform(t *testing.T) {
	f := newFixture(t)

	results, err := f.svc.Publish(context.Background(), PublishOptions{Text: "Shipped", URL: "https://example.com"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "bsky-new-1", results[0].Ref.ID)
	assert.Equal(t, "x-new-1", results[1].Ref.ID)

	posts := f.x.CallsOf(testutil.OpPost)
	require.Len(t, posts, 1)
	assert.Equal(t, "https://example.com", posts[0].Opts.URL)
}

func TestPublish_RateLimitedPlatformIsQueued(t *testing.T) {
	f := newFixture(t)
	f.x.FailNext(testutil.OpPost, testutil.RateLimited(domain.PlatformX, "post", time.Minute))

	results, err := f.svc.Publish(context.Background(), PublishOptions{Text: "Shipped"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Empty(t, results[0].PendingID)
	require.True(t, strings.HasPrefix(results[1].PendingID, "post:"))

	st := f.state(t)
	pa, ok := st.Pending[results[1].PendingID]
	require.True(t, ok)
	assert.Equal(t, domain.PendingPost, pa.Kind)
	assert.Equal(t, domain.PlatformX, pa.Platform)
	assert.Equal(t, "Shipped", pa.Text)
}

func TestPublish_FailureDoesNotStopOtherPlatforms(t *testing.T) {
	f := newFixture(t)
	f.bsky.FailNext(testutil.OpPost, testutil.Failed(domain.PlatformBluesky, "post", "boom"))

	results, err := f.svc.Publish(context.Background(), PublishOptions{Text: "Shipped"})
	require.NoError(t, err)
	assert.NotEmpty(t, results[0].Error)
	assert.Equal(t, "x-new-1", results[1].Ref.ID)
	assert.Empty(t, f.state(t).Pending)
}

func TestPublish_RequiresText(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Publish(context.Background(), PublishOptions{Text: "  "})
	require.Error(t, err)
	assert.Empty(t, f.x.Calls())
}

func TestPublish_DryRun(t *testing.T) {
	f := newFixture(t)

	results, err := f.svc.Publish(context.Background(), PublishOptions{Text: "Shipped", DryRun: true, Platforms: []domain.Platform{domain.PlatformX}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Empty(t, f.x.Calls())
	assert.Equal(t, 0, f.store.Saves())
}
