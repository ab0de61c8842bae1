package domain

import (
	"fmt"
	"strings"
	"time"
)

// Platform identifies a supported social network.
type Platform string

const (
	PlatformBluesky Platform = "bsky"
	PlatformX       Platform = "x"
)

// AllPlatforms lists every supported network in processing order.
var AllPlatforms = []Platform{PlatformBluesky, PlatformX}

// Label returns the short tag used in console output and digests.
func (p Platform) Label() string {
	switch p {
	case PlatformBluesky:
		return "[BSky]"
	case PlatformX:
		return "[X]"
	default:
		return "[" + string(p) + "]"
	}
}

// ParsePlatforms turns a --platform flag value ("bsky", "x" or "both") into
// the list of platforms to process.
func ParsePlatforms(s string) ([]Platform, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "both", "all":
		return append([]Platform(nil), AllPlatforms...), nil
	case "bsky", "bluesky":
		return []Platform{PlatformBluesky}, nil
	case "x", "twitter":
		return []Platform{PlatformX}, nil
	default:
		return nil, fmt.Errorf("unknown platform %q: must be one of bsky, x, both", s)
	}
}

// Metrics are the public engagement counts of a post. Missing counts are zero.
type Metrics struct {
	Likes   int
	Reposts int
	Replies int
}

// PostRef points at a post for write operations. CID is only meaningful on
// Bluesky, where likes and replies must reference a specific record version.
type PostRef struct {
	ID  string `json:"id"`
	CID string `json:"cid,omitempty"`
}

// PlatformPost is the normalized read model of a post fetched from a
// platform. It is never persisted in full; state only references it by key.
type PlatformPost struct {
	Platform Platform

	// ID is the platform-native identifier (AT-URI on Bluesky, tweet ID on X).
	ID string

	// CID is the content identifier of the record (Bluesky only).
	CID string

	AuthorID     string
	AuthorHandle string
	Text         string
	CreatedAt    time.Time
	Metrics      Metrics

	// ViewerLiked reports whether the authenticated account already liked
	// the post, when the platform exposes it.
	ViewerLiked bool
}

// Ref returns the write reference for the post.
func (p PlatformPost) Ref() PostRef {
	return PostRef{ID: p.ID, CID: p.CID}
}

// Key returns the base engagement key of the post.
func (p PlatformPost) Key() string {
	return EngagementKey(p.Platform, p.ID, ActionSeen)
}

// NotificationType classifies an inbound notification.
type NotificationType string

const (
	NotificationReply   NotificationType = "reply"
	NotificationMention NotificationType = "mention"
	NotificationFollow  NotificationType = "follow"
	NotificationLike    NotificationType = "like"
	NotificationRepost  NotificationType = "repost"
)

// Notification is the normalized form of an inbound notification.
type Notification struct {
	Platform    Platform         `json:"platform"`
	Type        NotificationType `json:"type"`
	Author      string           `json:"author"`
	DisplayName string           `json:"displayName,omitempty"`
	Text        string           `json:"text,omitempty"`
	NativeID    string           `json:"nativeId"`
	CID         string           `json:"cid,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// PostOptions carries optional data for a new top-level post.
type PostOptions struct {
	// URL is appended to the text when not already present and, where the
	// platform supports it, attached as a link card.
	URL string

	// LinkTitle is the card title for URL.
	LinkTitle string
}
