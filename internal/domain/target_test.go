package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectTarget(t *testing.T) {
	targets := DefaultTargets()
	tests := []struct {
		name     string
		explicit int
		hour     int
		want     int
	}{
		{"midnight", -1, 0, 0},
		{"early morning", -1, 5, 0},
		{"morning", -1, 6, 1},
		{"noon", -1, 12, 2},
		{"evening", -1, 18, 3},
		{"late night", -1, 23, 3},
		{"explicit", 2, 0, 2},
		{"explicit clamped", 9, 0, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectTarget(targets, tt.explicit, tt.hour)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSelectTarget_SingleTarget(t *testing.T) {
	got, err := SelectTarget([]Target{{Name: "only"}}, -1, 23)
	require.NoError(t, err)
	assert.Equal(t, 0, got)
}

func TestSelectTarget_Empty(t *testing.T) {
	_, err := SelectTarget(nil, -1, 3)
	assert.ErrorIs(t, err, ErrNoTargets)
}

func TestTarget_Handle(t *testing.T) {
	target := DefaultTargets()[1]

	h, ok := target.Handle(PlatformX)
	assert.True(t, ok)
	assert.Equal(t, "claudeai", h)

	_, ok = target.Handle(PlatformBluesky)
	assert.False(t, ok)
}

func TestParsePlatforms(t *testing.T) {
	got, err := ParsePlatforms("both")
	require.NoError(t, err)
	assert.Equal(t, []Platform{PlatformBluesky, PlatformX}, got)

	got, err = ParsePlatforms("bsky")
	require.NoError(t, err)
	assert.Equal(t, []Platform{PlatformBluesky}, got)

	_, err = ParsePlatforms("mastodon")
	assert.Error(t, err)
}
