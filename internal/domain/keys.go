package domain

import "strings"

// Action distinguishes independent engagement types on the same post.
type Action string

const (
	// ActionSeen is the base key: the post was evaluated (and liked if needed).
	ActionSeen    Action = ""
	ActionReply   Action = "reply"
	ActionRepost  Action = "rt"
	ActionFollow  Action = "follow"
	ActionAmplify Action = "amplify"
)

// EngagementKey builds the dedup key "platform:postId[:action]".
func EngagementKey(p Platform, id string, a Action) string {
	var b strings.Builder
	b.Grow(len(p) + len(id) + len(a) + 2)
	b.WriteString(string(p))
	b.WriteByte(':')
	b.WriteString(id)
	if a != ActionSeen {
		b.WriteByte(':')
		b.WriteString(string(a))
	}
	return b.String()
}

// FollowKey is the key recording that an account was followed.
func FollowKey(p Platform, handle string) string {
	return EngagementKey(p, "@"+strings.ToLower(handle), ActionFollow)
}

// AmplifyDeliveryKey identifies the amplification of source on one destination
// platform. It doubles as the pending-action ID when that delivery is rate
// limited.
func AmplifyDeliveryKey(source PlatformPost, dest Platform) string {
	return EngagementKey(source.Platform, source.ID, ActionAmplify+"@"+Action(dest))
}
