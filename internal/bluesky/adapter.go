package bluesky

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// MaxPostLength is the Bluesky post limit in characters.
const MaxPostLength = 300

const (
	notificationPageSize = 50
	maxNotificationPages = 10
)

// FetchRecent returns the account's latest posts, most recent first.
// Reposts of other accounts' posts are skipped.
func (c *Client) FetchRecent(ctx context.Context, handle string, limit int) ([]domain.PlatformPost, error) {
	params := url.Values{}
	params.Set("actor", strings.TrimPrefix(handle, "@"))
	params.Set("limit", strconv.Itoa(clampLimit(limit, 1, 100)))

	var resp authorFeedResponse
	if err := c.get(ctx, "fetch recent", "app.bsky.feed.getAuthorFeed", params, &resp); err != nil {
		return nil, err
	}

	posts := make([]domain.PlatformPost, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		if item.Reason != nil {
			continue
		}
		posts = append(posts, toPlatformPost(item.Post))
		if len(posts) == limit {
			break
		}
	}
	return posts, nil
}

func toPlatformPost(p postView) domain.PlatformPost {
	created := parseTime(p.Record.CreatedAt)
	if created.IsZero() {
		created = parseTime(p.IndexedAt)
	}
	return domain.PlatformPost{
		Platform:     domain.PlatformBluesky,
		ID:           p.URI,
		CID:          p.CID,
		AuthorID:     p.Author.DID,
		AuthorHandle: p.Author.Handle,
		Text:         p.Record.Text,
		CreatedAt:    created,
		Metrics: domain.Metrics{
			Likes:   p.LikeCount,
			Reposts: p.RepostCount,
			Replies: p.ReplyCount,
		},
		ViewerLiked: p.Viewer != nil && p.Viewer.Like != "",
	}
}

// FetchNotifications returns notifications indexed after since.At, newest
// first. Pages are followed until one reaches since.At, up to
// maxNotificationPages. A zero since reads a single page.
func (c *Client) FetchNotifications(ctx context.Context, since domain.Cursor) ([]domain.Notification, error) {
	var out []domain.Notification
	cursor := ""
	for page := 0; page < maxNotificationPages; page++ {
		params := url.Values{}
		params.Set("limit", strconv.Itoa(notificationPageSize))
		if cursor != "" {
			params.Set("cursor", cursor)
		}

		var resp listNotificationsResponse
		if err := c.get(ctx, "fetch notifications", "app.bsky.notification.listNotifications", params, &resp); err != nil {
			return nil, err
		}

		reached := since.At.IsZero()
		for _, n := range resp.Notifications {
			at := parseTime(n.IndexedAt)
			if !since.At.IsZero() && !at.After(since.At) {
				reached = true
				continue
			}
			if item, ok := toNotification(n, at); ok {
				out = append(out, item)
			}
		}
		if reached || resp.Cursor == "" || len(resp.Notifications) == 0 {
			return out, nil
		}
		cursor = resp.Cursor
	}
	c.logger.Warn("notification backlog exceeds page limit, older items skipped", "pages", maxNotificationPages)
	return out, nil
}

func toNotification(n notificationView, at time.Time) (domain.Notification, bool) {
	typ, ok := notificationType(n.Reason)
	if !ok {
		return domain.Notification{}, false
	}
	display := n.Author.DisplayName
	if display == "" {
		display = n.Author.Handle
	}
	item := domain.Notification{
		Platform:    domain.PlatformBluesky,
		Type:        typ,
		Author:      n.Author.Handle,
		DisplayName: display,
		NativeID:    n.URI,
		CID:         n.CID,
		CreatedAt:   at,
	}
	if typ == domain.NotificationReply || typ == domain.NotificationMention {
		item.Text = n.Record.Text
	}
	return item, true
}

func notificationType(reason string) (domain.NotificationType, bool) {
	switch reason {
	case "reply":
		return domain.NotificationReply, true
	case "mention", "quote":
		return domain.NotificationMention, true
	case "follow":
		return domain.NotificationFollow, true
	case "like":
		return domain.NotificationLike, true
	case "repost":
		return domain.NotificationRepost, true
	}
	return "", false
}

// Like creates an app.bsky.feed.like record for post.
func (c *Client) Like(ctx context.Context, post domain.PostRef) error {
	return c.subjectRecord(ctx, "like", "app.bsky.feed.like", post)
}

// Repost creates an app.bsky.feed.repost record for post.
func (c *Client) Repost(ctx context.Context, post domain.PostRef) error {
	return c.subjectRecord(ctx, "repost", "app.bsky.feed.repost", post)
}

func (c *Client) subjectRecord(ctx context.Context, op, collection string, post domain.PostRef) error {
	if post.CID == "" {
		view, err := c.thread(ctx, op, post.ID)
		if err != nil {
			return err
		}
		post.CID = view.CID
	}
	_, err := c.createRecord(ctx, op, collection, subjectRecord{
		Type:      collection,
		Subject:   strongRef{URI: post.ID, CID: post.CID},
		CreatedAt: c.timestamp(),
	})
	return err
}

// Follow resolves handle and creates an app.bsky.graph.follow record.
func (c *Client) Follow(ctx context.Context, handle string) error {
	did, err := c.ResolveHandle(ctx, handle)
	if err != nil {
		return err
	}
	_, err = c.createRecord(ctx, "follow", "app.bsky.graph.follow", followRecord{
		Type:      "app.bsky.graph.follow",
		Subject:   did,
		CreatedAt: c.timestamp(),
	})
	return err
}

// ResolveHandle returns the DID of a handle.
func (c *Client) ResolveHandle(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	if strings.HasPrefix(handle, "did:") {
		return handle, nil
	}
	params := url.Values{}
	params.Set("handle", handle)

	var resp resolveHandleResponse
	if err := c.get(ctx, "resolve handle", "com.atproto.identity.resolveHandle", params, &resp); err != nil {
		return "", err
	}
	return resp.DID, nil
}

// Post creates a top-level post. A URL in opts is appended to the text and
// attached as an external link card.
func (c *Client) Post(ctx context.Context, text string, opts domain.PostOptions) (domain.PostRef, error) {
	record := c.newPost(ctx, domain.Compose(text, opts.URL, MaxPostLength))
	if opts.URL != "" {
		title := opts.LinkTitle
		if title == "" {
			title = opts.URL
		}
		record.Embed = &embed{
			Type:     "app.bsky.embed.external",
			External: &external{URI: opts.URL, Title: title},
		}
	}
	return c.createRecord(ctx, "post", "app.bsky.feed.post", record)
}

// Reply posts text as a threaded reply to parent. The thread root is taken
// from the parent's own reply reference when it has one.
func (c *Client) Reply(ctx context.Context, parent domain.PostRef, text string) (domain.PostRef, error) {
	view, err := c.thread(ctx, "reply", parent.ID)
	if err != nil {
		return domain.PostRef{}, err
	}
	if parent.CID == "" {
		parent.CID = view.CID
	}
	parentRef := strongRef{URI: parent.ID, CID: parent.CID}
	root := parentRef
	if view.Record.Reply != nil && view.Record.Reply.Root.URI != "" {
		root = view.Record.Reply.Root
	}

	record := c.newPost(ctx, domain.Truncate(text, MaxPostLength))
	record.Reply = &replyRef{Root: root, Parent: parentRef}
	return c.createRecord(ctx, "reply", "app.bsky.feed.post", record)
}

func (c *Client) newPost(ctx context.Context, text string) postRecord {
	return postRecord{
		Type:      "app.bsky.feed.post",
		Text:      text,
		CreatedAt: c.timestamp(),
		Facets:    detectFacets(ctx, text, c.ResolveHandle),
		Langs:     []string{"en"},
	}
}

func (c *Client) thread(ctx context.Context, op, uri string) (postView, error) {
	params := url.Values{}
	params.Set("uri", uri)
	params.Set("depth", "0")

	var resp postThreadResponse
	if err := c.get(ctx, op, "app.bsky.feed.getPostThread", params, &resp); err != nil {
		return postView{}, fmt.Errorf("get post thread: %w", err)
	}
	return resp.Thread.Post, nil
}

func (c *Client) createRecord(ctx context.Context, op, collection string, record any) (domain.PostRef, error) {
	if err := c.ensureSession(ctx); err != nil {
		return domain.PostRef{}, err
	}
	body := createRecordRequest{
		Repo:       c.DID(),
		Collection: collection,
		Record:     record,
	}

	var resp createRecordResponse
	if err := c.post(ctx, op, "com.atproto.repo.createRecord", body, &resp); err != nil {
		return domain.PostRef{}, err
	}
	return domain.PostRef{ID: resp.URI, CID: resp.CID}, nil
}

func (c *Client) timestamp() string {
	return c.now().UTC().Format(time.RFC3339Nano)
}

// PostURL returns the public web URL of a post URI.
func PostURL(handle, uri string) string {
	rkey := uri[strings.LastIndex(uri, "/")+1:]
	return fmt.Sprintf("https://bsky.app/profile/%s/post/%s", handle, rkey)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func clampLimit(n, lo, hi int) int {
	return min(max(n, lo), hi)
}
