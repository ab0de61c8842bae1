package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

func TestState_PruneRetentionWindow(t *testing.T) {
	st := NewState()
	st.Mark("bsky:old", testNow.Add(-8*24*time.Hour), "", OutcomeSeen)
	st.Mark("bsky:recent", testNow.Add(-6*24*time.Hour), "", OutcomeSeen)

	pruned := st.Prune(testNow, 7*24*time.Hour)

	assert.Equal(t, 1, pruned)
	assert.False(t, st.Has("bsky:old"))
	assert.True(t, st.Has("bsky:recent"))
}

func TestState_MarkKeepsFirstHandledTime(t *testing.T) {
	st := NewState()
	first := testNow.Add(-time.Hour)
	st.Mark("x:1:reply", first, "hello", OutcomePending)
	st.Mark("x:1:reply", testNow, "", OutcomeDone)

	rec := st.Records["x:1:reply"]
	assert.Equal(t, first, rec.At)
	assert.Equal(t, "hello", rec.Excerpt)
	assert.Equal(t, OutcomeDone, rec.Outcome)
}

func TestState_AdvanceCursorNeverRewinds(t *testing.T) {
	st := NewState()
	require.True(t, st.AdvanceCursor("bsky", Cursor{At: testNow, LastID: "b"}))
	assert.False(t, st.AdvanceCursor("bsky", Cursor{At: testNow.Add(-time.Minute), LastID: "a"}))
	assert.False(t, st.AdvanceCursor("bsky", Cursor{At: testNow, LastID: "c"}))

	c, ok := st.Cursor("bsky")
	require.True(t, ok)
	assert.Equal(t, "b", c.LastID)

	assert.True(t, st.AdvanceCursor("bsky", Cursor{At: testNow.Add(time.Second), LastID: "d"}))
}

func TestState_PendingActionsOldestFirst(t *testing.T) {
	st := NewState()
	st.Enqueue(PendingAction{ID: "b", CreatedAt: testNow})
	st.Enqueue(PendingAction{ID: "c", CreatedAt: testNow.Add(-time.Hour)})
	st.Enqueue(PendingAction{ID: "a", CreatedAt: testNow})

	var ids []string
	for _, p := range st.PendingActions() {
		ids = append(ids, p.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)

	st.RemovePending("a")
	assert.Len(t, st.Pending, 2)
}

func TestState_NormalizeAfterDecode(t *testing.T) {
	st := &State{}
	st.Normalize()
	st.Enqueue(PendingAction{ID: "p"})
	assert.NotNil(t, st.Records)
	assert.NotNil(t, st.Cursors)
	assert.Len(t, st.Pending, 1)
}

func TestEngagementKey(t *testing.T) {
	assert.Equal(t, "x:123", EngagementKey(PlatformX, "123", ActionSeen))
	assert.Equal(t, "x:123:reply", EngagementKey(PlatformX, "123", ActionReply))
	assert.Equal(t, "bsky:at://did:plc:abc/app.bsky.feed.post/1:rt",
		EngagementKey(PlatformBluesky, "at://did:plc:abc/app.bsky.feed.post/1", ActionRepost))
	assert.Equal(t, "bsky:@bcherny.bsky.social:follow", FollowKey(PlatformBluesky, "BCherny.bsky.social"))

	post := PlatformPost{Platform: PlatformX, ID: "9"}
	assert.Equal(t, "x:9", post.Key())
	assert.Equal(t, "x:9:amplify@bsky", AmplifyDeliveryKey(post, PlatformBluesky))
}

func TestExcerpt(t *testing.T) {
	assert.Equal(t, "héll", Excerpt("héllo", 4))
	assert.Equal(t, "hi", Excerpt("hi", 4))
}
