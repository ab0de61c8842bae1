package domain

import (
	"errors"
	"strings"
)

// Target is an external account the engine watches and engages with.
type Target struct {
	Name  string `yaml:"name"`
	Title string `yaml:"title"`

	// Handles maps each platform to the account handle; a missing entry means
	// the account does not exist there.
	Handles map[Platform]string `yaml:"handles"`

	// Keywords gate the reply action (substring match, case-insensitive).
	Keywords []string `yaml:"keywords"`

	// Replies are the candidate reply texts.
	Replies []string `yaml:"replies"`
}

// Handle returns the target's handle on p.
func (t Target) Handle(p Platform) (string, bool) {
	h := strings.TrimSpace(t.Handles[p])
	return h, h != ""
}

// ErrNoTargets is returned when the roster is empty.
var ErrNoTargets = errors.New("no targets configured")

// SelectTarget resolves the target index for a run. A non-negative explicit
// index is clamped to the roster; otherwise the hour of day is split into
// len(targets) equal slots.
func SelectTarget(targets []Target, explicit, hour int) (int, error) {
	n := len(targets)
	if n == 0 {
		return 0, ErrNoTargets
	}
	idx := explicit
	if idx < 0 {
		idx = hour * n / 24
	}
	return min(max(idx, 0), n-1), nil
}

// DefaultTargets is the built-in roster used when no targets file is given.
func DefaultTargets() []Target {
	return []Target{
		{
			Name:  "Boris Cherny",
			Title: "Head of Claude Code at Anthropic",
			Handles: map[Platform]string{
				PlatformX:       "bcherny",
				PlatformBluesky: "bcherny.bsky.social",
			},
			Keywords: []string{"claude code", "claude", "anthropic", "agent", "vibe coding", "coding agent"},
			Replies: []string{
				"Letting the agents cook pays off. Shipping beats talking about shipping.",
				"Autonomous loops compound. Every cycle starts from a better place than the last.",
				"Claude Code keeps moving the bar. Using it every day and the difference shows.",
				"Running multi-agent workflows on Claude Code and the reliability gains are real.",
			},
		},
		{
			Name:     "Claude",
			Title:    "Anthropic's official Claude account",
			Handles:  map[Platform]string{PlatformX: "claudeai"},
			Keywords: []string{"claude", "anthropic", "model", "update", "launch", "coding"},
			Replies: []string{
				"The agent pipeline keeps getting better. We run multi-agent stacks on this around the clock.",
				"Shipping faster than ever with Claude Code. Agent-to-agent handoffs are clean now.",
				"Agents that understand context and ship code. This is where development is going.",
				"Each update tightens the autonomous workflow a little more.",
			},
		},
		{
			Name:     "Nick Dobos",
			Handles:  map[Platform]string{PlatformX: "NickADobos"},
			Keywords: []string{"claude", "claude code", "agent", "opus", "sonnet", "coding", "vibe"},
			Replies: []string{
				"Once you go multi-agent, single-shot prompting feels primitive.",
				"Claude Code plus autonomous loops means shipping while you sleep.",
				"We run a fleet of agents on Claude Code, each owning one domain. The compounding is wild.",
				"Ship, test, iterate, repeat. Nothing iterates faster than Claude Code right now.",
			},
		},
		{
			Name:     "Claude Code Community",
			Handles:  map[Platform]string{PlatformX: "claude_code"},
			Keywords: []string{"claude code", "extension", "mcp", "feature", "release", "tool", "agent"},
			Replies: []string{
				"Great drop. Already running it across our agents and the MCP integrations are excellent.",
				"The community keeps shipping. Open agent infrastructure at its best.",
				"Tried it right away. Slots straight into our multi-agent pipeline.",
				"Love watching the Claude Code ecosystem grow. More tools, more leverage.",
			},
		},
	}
}
