package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blackmichael/social-engage/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	st := domain.NewState()
	st.Mark("bsky:at://p/1", now, "Claude Code release", domain.OutcomeSeen)
	st.Mark("bsky:at://p/1:reply", now, "", domain.OutcomePending)
	st.AdvanceCursor("x", domain.Cursor{At: now, LastID: "900"})
	st.Enqueue(domain.PendingAction{
		ID: "bsky:at://p/1:reply", Platform: domain.PlatformBluesky, Kind: domain.PendingReply,
		Text: "nice", Parent: &domain.PostRef{ID: "at://p/1", CID: "c1"}, CreatedAt: now,
	})
	require.NoError(t, s.Save(ctx, st))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, st, got)
}

func TestStore_SaveReplacesDocument(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	now := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)

	first := domain.NewState()
	first.Mark("x:1", now, "", domain.OutcomeSeen)
	first.Enqueue(domain.PendingAction{ID: "x:1:reply", CreatedAt: now})
	require.NoError(t, s.Save(ctx, first))

	second := domain.NewState()
	second.Mark("x:2", now, "", domain.OutcomeSeen)
	require.NoError(t, s.Save(ctx, second))

	got, err := s.Load(ctx)
	require.NoError(t, err)
	assert.False(t, got.Has("x:1"))
	assert.True(t, got.Has("x:2"))
	assert.Empty(t, got.Pending)
}

func TestOpen_IsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.db")
	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, "sqlite:"+path, s2.String())
	require.NoError(t, s2.Close())
}
