package domain

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"
)

type templateData struct {
	name    string
	title   string
	mention string
	summary string
	rule    topicRule
}

// amplificationTemplates are rotated by hour of day.
var amplificationTemplates = []func(templateData) string{
	func(d templateData) string {
		return fmt.Sprintf("Big news from %s (%s):\n\n\"%s\"\n\nThis is huge for everyone building with Claude Code. The %s space keeps accelerating.\n\n#ClaudeCode #Anthropic #BuildInPublic",
			d.mention, d.title, d.summary, d.rule.subject)
	},
	func(d templateData) string {
		closing := "The pace of improvement is incredible."
		if d.rule.topic == TopicRelease {
			closing = "Go check it out."
		}
		return fmt.Sprintf("%s, %s, just shared something worth paying attention to:\n\n\"%s\"\n\nIf you're building with Claude Code, this matters. %s\n\n#ClaudeCode #AI #BuildInPublic",
			d.name, d.title, d.summary, closing)
	},
	func(d templateData) string {
		return fmt.Sprintf("Heads up builders: %s just posted about %s:\n\n\"%s\"\n\nBuilding with Claude Code daily and these updates compound fast. Credit to the team at Anthropic.\n\n#ClaudeCode #BuildInPublic",
			d.mention, d.rule.subject, d.summary)
	},
}

// Amplifier writes "big news" posts crediting a watched account.
type Amplifier struct {
	subject Target
	now     Clock
}

// NewAmplifier returns an amplifier for subject. A nil clock uses time.Now.
func NewAmplifier(subject Target, now Clock) *Amplifier {
	if now == nil {
		now = time.Now
	}
	return &Amplifier{subject: subject, now: now}
}

// TemplateIndex is the template used at the current hour.
func (a *Amplifier) TemplateIndex() int {
	return a.now().Hour() % len(amplificationTemplates)
}

// Generate builds the amplification text for a post, addressed to the
// audience on platform. The template is chosen by hour of day.
func (a *Amplifier) Generate(text string, platform Platform) string {
	d := templateData{
		name:    a.subject.Name,
		title:   a.subject.Title,
		mention: a.mention(platform),
		summary: Summarize(text),
		rule:    matchTopic(text),
	}
	if d.title == "" {
		d.title = "worth following"
	}
	return amplificationTemplates[a.TemplateIndex()](d)
}

// mention prefers the subject's handle on the destination platform and falls
// back to any handle, then the display name.
func (a *Amplifier) mention(p Platform) string {
	if h, ok := a.subject.Handle(p); ok {
		return "@" + h
	}
	for _, other := range AllPlatforms {
		if h, ok := a.subject.Handle(other); ok {
			return "@" + h
		}
	}
	return a.subject.Name
}

// ReplyPicker chooses reply texts uniformly at random from a seedable source.
type ReplyPicker struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewReplyPicker returns a picker with a fixed seed. The same seed yields the
// same sequence of choices.
func NewReplyPicker(seed uint64) *ReplyPicker {
	return &ReplyPicker{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandomReplyPicker returns a picker seeded from the runtime's random source.
func NewRandomReplyPicker() *ReplyPicker {
	return NewReplyPicker(rand.Uint64())
}

// Pick returns one of t's candidate replies. It reports false when the target
// has none.
func (p *ReplyPicker) Pick(t Target) (string, bool) {
	if len(t.Replies) == 0 {
		return "", false
	}
	p.mu.Lock()
	i := p.rng.IntN(len(t.Replies))
	p.mu.Unlock()
	return t.Replies[i], true
}
