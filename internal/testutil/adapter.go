// Package testutil provides a scriptable platform adapter and a fake clock.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// Adapter operation names used by FailNext and CallsOf.
const (
	OpFetchRecent        = "fetch recent"
	OpFetchNotifications = "fetch notifications"
	OpLike               = "like"
	OpRepost             = "repost"
	OpFollow             = "follow"
	OpPost               = "post"
	OpReply              = "reply"
)

// Call records one adapter invocation.
type Call struct {
	Op     string
	Ref    domain.PostRef
	Handle string
	Text   string
	Opts   domain.PostOptions
	Since  domain.Cursor
}

// FakeAdapter is an in-memory domain.Adapter. Errors queued with FailNext
// are returned in order by the named operation before it succeeds again.
type FakeAdapter struct {
	mu            sync.Mutex
	platform      domain.Platform
	posts         map[string][]domain.PlatformPost
	notifications []domain.Notification
	errs          map[string][]error
	calls         []Call
	seq           int
}

var _ domain.Adapter = (*FakeAdapter)(nil)

// NewFakeAdapter returns an adapter for platform p with no content.
func NewFakeAdapter(p domain.Platform) *FakeAdapter {
	return &FakeAdapter{
		platform: p,
		posts:    make(map[string][]domain.PlatformPost),
		errs:     make(map[string][]error),
	}
}

// SetPosts sets what FetchRecent returns for handle.
func (f *FakeAdapter) SetPosts(handle string, posts ...domain.PlatformPost) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posts[strings.ToLower(handle)] = posts
}

// SetNotifications sets what FetchNotifications returns, newest first.
func (f *FakeAdapter) SetNotifications(n ...domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notifications = n
}

// FailNext queues errors for op.
func (f *FakeAdapter) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[op] = append(f.errs[op], errs...)
}

// Calls returns every recorded call.
func (f *FakeAdapter) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

// CallsOf returns the recorded calls of op.
func (f *FakeAdapter) CallsOf(op string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// record logs the call and pops the next queued error for its op.
func (f *FakeAdapter) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	if q := f.errs[c.Op]; len(q) > 0 {
		f.errs[c.Op] = q[1:]
		return q[0]
	}
	return nil
}

func (f *FakeAdapter) Platform() domain.Platform {
	return f.platform
}

func (f *FakeAdapter) FetchRecent(_ context.Context, handle string, limit int) ([]domain.PlatformPost, error) {
	if err := f.record(Call{Op: OpFetchRecent, Handle: handle}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	posts := f.posts[strings.ToLower(handle)]
	if limit > 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return append([]domain.PlatformPost(nil), posts...), nil
}

func (f *FakeAdapter) FetchNotifications(_ context.Context, since domain.Cursor) ([]domain.Notification, error) {
	if err := f.record(Call{Op: OpFetchNotifications, Since: since}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Notification(nil), f.notifications...), nil
}

func (f *FakeAdapter) Like(_ context.Context, post domain.PostRef) error {
	return f.record(Call{Op: OpLike, Ref: post})
}

func (f *FakeAdapter) Repost(_ context.Context, post domain.PostRef) error {
	return f.record(Call{Op: OpRepost, Ref: post})
}

func (f *FakeAdapter) Follow(_ context.Context, handle string) error {
	return f.record(Call{Op: OpFollow, Handle: handle})
}

func (f *FakeAdapter) Post(_ context.Context, text string, opts domain.PostOptions) (domain.PostRef, error) {
	if err := f.record(Call{Op: OpPost, Text: text, Opts: opts}); err != nil {
		return domain.PostRef{}, err
	}
	return f.newRef(), nil
}

func (f *FakeAdapter) Reply(_ context.Context, parent domain.PostRef, text string) (domain.PostRef, error) {
	if err := f.record(Call{Op: OpReply, Ref: parent, Text: text}); err != nil {
		return domain.PostRef{}, err
	}
	return f.newRef(), nil
}

func (f *FakeAdapter) newRef() domain.PostRef {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	return domain.PostRef{ID: fmt.Sprintf("%s-new-%d", f.platform, f.seq)}
}

// RateLimited returns a rate-limit error carrying retryAfter.
func RateLimited(p domain.Platform, op string, retryAfter time.Duration) error {
	pe := domain.NewPlatformError(domain.KindRateLimited, p, op, nil)
	pe.Status = 429
	pe.RetryAfter = retryAfter
	return pe
}

// AuthFailed returns an authentication error.
func AuthFailed(p domain.Platform, op string) error {
	pe := domain.NewPlatformError(domain.KindAuth, p, op, nil)
	pe.Status = 401
	return pe
}

// Failed returns a generic platform error.
func Failed(p domain.Platform, op string, msg string) error {
	pe := domain.NewPlatformError(domain.KindPlatform, p, op, errors.New(msg))
	pe.Status = 500
	return pe
}

// NotFound returns a not-found error.
func NotFound(p domain.Platform, op string) error {
	return domain.NewPlatformError(domain.KindNotFound, p, op, errors.New("not found"))
}
