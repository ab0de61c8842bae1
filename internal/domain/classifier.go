package domain

import "strings"

// Topic is the headline category assigned to a newsworthy post.
type Topic string

const (
	TopicRelease     Topic = "release"
	TopicModel       Topic = "model"
	TopicAgentic     Topic = "agentic"
	TopicTooling     Topic = "tooling"
	TopicPerformance Topic = "performance"
	TopicContext     Topic = "context"
	TopicFeature     Topic = "feature"
	TopicInsight     Topic = "insight"
)

// DefaultNewsKeywords decide whether a watched account's post is newsworthy.
var DefaultNewsKeywords = []string{
	"claude code", "claude", "anthropic", "agent", "release", "launch",
	"ship", "update", "feature", "model", "opus", "sonnet", "haiku",
	"mcp", "tool use", "coding", "developer", "sdk", "api",
	"benchmark", "context", "autonomous", "agentic", "vibe cod",
}

type topicRule struct {
	topic   Topic
	terms   []string
	subject string
	angle   string
}

// topicRules is evaluated in order; the first rule with a matching term wins.
var topicRules = []topicRule{
	{TopicRelease, []string{"release", "launch", "ship", "just dropped"}, "a new release", "just dropped news"},
	{TopicModel, []string{"model", "opus", "sonnet", "haiku"}, "model improvements", "model update"},
	{TopicAgentic, []string{"agent", "autonomous", "agentic"}, "agent workflows", "agentic capabilities"},
	{TopicTooling, []string{"mcp", "tool"}, "developer tooling", "tooling update"},
	{TopicPerformance, []string{"benchmark", "performance"}, "performance gains", "performance news"},
	{TopicContext, []string{"context", "window"}, "context handling", "context improvements"},
	{TopicFeature, []string{"feature", "update"}, "new capabilities", "feature update"},
}

var insightRule = topicRule{TopicInsight, nil, "building with Claude Code", "development insight"}

// Classification is the result of classifying a post.
type Classification struct {
	Newsworthy bool
	Topic      Topic

	// Subject is the phrase used in templates ("a new release").
	Subject string

	// Angle is the headline framing ("just dropped news").
	Angle string
}

// Classifier decides newsworthiness by case-insensitive keyword substring
// match.
type Classifier struct {
	keywords []string
}

// NewClassifier returns a classifier over keywords.
func NewClassifier(keywords []string) *Classifier {
	lowered := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			lowered = append(lowered, kw)
		}
	}
	return &Classifier{keywords: lowered}
}

// Matches reports whether text contains at least one keyword.
func (c *Classifier) Matches(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range c.keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Classify reports newsworthiness and, for newsworthy text, the topic.
func (c *Classifier) Classify(text string) Classification {
	if !c.Matches(text) {
		return Classification{}
	}
	r := matchTopic(text)
	return Classification{Newsworthy: true, Topic: r.topic, Subject: r.subject, Angle: r.angle}
}

func matchTopic(text string) topicRule {
	lower := strings.ToLower(text)
	for _, r := range topicRules {
		for _, term := range r.terms {
			if strings.Contains(lower, term) {
				return r
			}
		}
	}
	return insightRule
}
