package domain

import (
	"context"
	"time"
)

// Adapter is the normalized capability set of one social platform. The core
// never sees platform-native shapes.
//
// Adapters do not deduplicate: callers track prior success in the State
// Store. Outbound text is truncated to the platform's length limit. Failures
// are *PlatformError values.
type Adapter interface {
	// Platform identifies the network this adapter talks to.
	Platform() Platform

	// FetchRecent returns up to limit recent posts of the account,
	// most recent first.
	FetchRecent(ctx context.Context, handle string, limit int) ([]PlatformPost, error)

	// FetchNotifications returns notifications newer than since, newest
	// first. An empty result is not an error.
	FetchNotifications(ctx context.Context, since Cursor) ([]Notification, error)

	Like(ctx context.Context, post PostRef) error
	Repost(ctx context.Context, post PostRef) error
	Follow(ctx context.Context, handle string) error

	// Post creates a top-level post and returns its reference.
	Post(ctx context.Context, text string, opts PostOptions) (PostRef, error)

	// Reply creates a threaded reply to parent and returns its reference.
	Reply(ctx context.Context, parent PostRef, text string) (PostRef, error)
}

// StateStore persists the State document. Load returns an empty state when
// nothing has been saved yet. Save replaces the stored document.
type StateStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Locker is implemented by stores that can guard a whole load-mutate-save
// cycle against a concurrent invocation.
type Locker interface {
	Lock(ctx context.Context) (unlock func() error, err error)
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time
