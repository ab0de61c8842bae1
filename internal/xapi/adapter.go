package xapi

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/blackmichael/social-engage/internal/domain"
)

// MaxPostLength is the X post limit in characters.
const MaxPostLength = 280

const mentionPageSize = 20

type user struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

type userResponse struct {
	Data *user `json:"data"`
}

type tweet struct {
	ID              string `json:"id"`
	Text            string `json:"text"`
	AuthorID        string `json:"author_id"`
	CreatedAt       string `json:"created_at"`
	InReplyToUserID string `json:"in_reply_to_user_id,omitempty"`
	PublicMetrics   struct {
		LikeCount    int `json:"like_count"`
		RetweetCount int `json:"retweet_count"`
		ReplyCount   int `json:"reply_count"`
	} `json:"public_metrics"`
}

type timelineResponse struct {
	Data     []tweet `json:"data"`
	Includes struct {
		Users []user `json:"users"`
	} `json:"includes"`
	Meta struct {
		NewestID string `json:"newest_id"`
	} `json:"meta"`
}

type createTweetRequest struct {
	Text  string      `json:"text"`
	Reply *replyField `json:"reply,omitempty"`
}

type replyField struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createTweetResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// Me returns the authenticated account's user ID, cached after the first call.
func (c *Client) Me(ctx context.Context) (string, error) {
	c.mu.Lock()
	id := c.meID
	c.mu.Unlock()
	if id != "" {
		return id, nil
	}

	var resp userResponse
	if err := c.get(ctx, "me", "/2/users/me", nil, &resp); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", domain.NewPlatformError(domain.KindAuth, domain.PlatformX, "me", fmt.Errorf("no user in response"))
	}

	c.mu.Lock()
	c.meID = resp.Data.ID
	c.mu.Unlock()
	return resp.Data.ID, nil
}

// UserID resolves a username to its user ID.
func (c *Client) UserID(ctx context.Context, handle string) (string, error) {
	handle = strings.TrimPrefix(strings.TrimSpace(handle), "@")
	var resp userResponse
	if err := c.get(ctx, "resolve user", "/2/users/by/username/"+url.PathEscape(handle), nil, &resp); err != nil {
		return "", err
	}
	if resp.Data == nil || resp.Data.ID == "" {
		return "", domain.NewPlatformError(domain.KindNotFound, domain.PlatformX, "resolve user", fmt.Errorf("user %q not found", handle))
	}
	return resp.Data.ID, nil
}

// FetchRecent returns the account's latest original tweets, most recent first.
func (c *Client) FetchRecent(ctx context.Context, handle string, limit int) ([]domain.PlatformPost, error) {
	uid, err := c.UserID(ctx, handle)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(min(max(limit, 5), 100)))
	params.Set("exclude", "retweets,replies")
	params.Set("tweet.fields", "created_at,public_metrics,author_id")

	var resp timelineResponse
	if err := c.get(ctx, "fetch recent", "/2/users/"+uid+"/tweets", params, &resp); err != nil {
		return nil, err
	}

	posts := make([]domain.PlatformPost, 0, len(resp.Data))
	for _, t := range resp.Data {
		posts = append(posts, domain.PlatformPost{
			Platform:     domain.PlatformX,
			ID:           t.ID,
			AuthorID:     t.AuthorID,
			AuthorHandle: strings.TrimPrefix(handle, "@"),
			Text:         t.Text,
			CreatedAt:    parseTime(t.CreatedAt),
			Metrics: domain.Metrics{
				Likes:   t.PublicMetrics.LikeCount,
				Reposts: t.PublicMetrics.RetweetCount,
				Replies: t.PublicMetrics.ReplyCount,
			},
		})
		if len(posts) == limit {
			break
		}
	}
	return posts, nil
}

// FetchNotifications returns mentions of the authenticated account newer
// than since. A mention that answers one of our tweets is a reply.
func (c *Client) FetchNotifications(ctx context.Context, since domain.Cursor) ([]domain.Notification, error) {
	me, err := c.Me(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("max_results", strconv.Itoa(mentionPageSize))
	params.Set("tweet.fields", "created_at,author_id,in_reply_to_user_id,conversation_id")
	params.Set("user.fields", "username,name")
	params.Set("expansions", "author_id")
	switch {
	case since.LastID != "":
		params.Set("since_id", since.LastID)
	case !since.At.IsZero():
		params.Set("start_time", since.At.UTC().Format(time.RFC3339))
	}

	var resp timelineResponse
	if err := c.get(ctx, "fetch notifications", "/2/users/"+me+"/mentions", params, &resp); err != nil {
		return nil, err
	}

	users := make(map[string]user, len(resp.Includes.Users))
	for _, u := range resp.Includes.Users {
		users[u.ID] = u
	}

	var out []domain.Notification
	for _, t := range resp.Data {
		at := parseTime(t.CreatedAt)
		if since.LastID == "" && !since.At.IsZero() && !at.After(since.At) {
			continue
		}
		author, ok := users[t.AuthorID]
		if !ok {
			author = user{Username: "unknown", Name: "Unknown"}
		}
		typ := domain.NotificationMention
		if t.InReplyToUserID != "" {
			typ = domain.NotificationReply
		}
		out = append(out, domain.Notification{
			Platform:    domain.PlatformX,
			Type:        typ,
			Author:      author.Username,
			DisplayName: author.Name,
			Text:        t.Text,
			NativeID:    t.ID,
			CreatedAt:   at,
		})
	}
	return out, nil
}

// Like likes a tweet as the authenticated account.
func (c *Client) Like(ctx context.Context, post domain.PostRef) error {
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	return c.post(ctx, "like", "/2/users/"+me+"/likes", map[string]string{"tweet_id": post.ID}, nil)
}

// Repost retweets a tweet.
func (c *Client) Repost(ctx context.Context, post domain.PostRef) error {
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	return c.post(ctx, "repost", "/2/users/"+me+"/retweets", map[string]string{"tweet_id": post.ID}, nil)
}

// Follow follows the account with the given username.
func (c *Client) Follow(ctx context.Context, handle string) error {
	me, err := c.Me(ctx)
	if err != nil {
		return err
	}
	uid, err := c.UserID(ctx, handle)
	if err != nil {
		return err
	}
	return c.post(ctx, "follow", "/2/users/"+me+"/following", map[string]string{"target_user_id": uid}, nil)
}

// Post creates a tweet. A URL in opts is appended and kept whole.
func (c *Client) Post(ctx context.Context, text string, opts domain.PostOptions) (domain.PostRef, error) {
	return c.createTweet(ctx, "post", createTweetRequest{Text: domain.Compose(text, opts.URL, MaxPostLength)})
}

// Reply posts text in reply to parent.
func (c *Client) Reply(ctx context.Context, parent domain.PostRef, text string) (domain.PostRef, error) {
	return c.createTweet(ctx, "reply", createTweetRequest{
		Text:  domain.Truncate(text, MaxPostLength),
		Reply: &replyField{InReplyToTweetID: parent.ID},
	})
}

func (c *Client) createTweet(ctx context.Context, op string, req createTweetRequest) (domain.PostRef, error) {
	var resp createTweetResponse
	if err := c.post(ctx, op, "/2/tweets", req, &resp); err != nil {
		return domain.PostRef{}, err
	}
	return domain.PostRef{ID: resp.Data.ID}, nil
}

// PostURL returns the public web URL of a tweet.
func PostURL(handle, id string) string {
	return fmt.Sprintf("https://x.com/%s/status/%s", strings.TrimPrefix(handle, "@"), id)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
