package engagement

import (
	"strings"

	"github.com/blackmichael/social-engage/internal/domain"
)

// ActionCounts tallies one action type on one platform.
type ActionCounts struct {
	Attempted int
	Succeeded int
	Simulated int
	Pending   int
	Failed    int
}

// Zero reports whether nothing was tallied.
func (c *ActionCounts) Zero() bool {
	return *c == ActionCounts{}
}

// PlatformReport summarizes an invocation on one platform.
type PlatformReport struct {
	Platform domain.Platform

	// Skipped is set when the platform was not processed.
	Skipped string

	// Error is the read failure that caused a skip, if any.
	Error string

	Fetched    int
	Considered int

	Follows ActionCounts
	Likes   ActionCounts
	Reposts ActionCounts
	Replies ActionCounts
	Posts   ActionCounts

	// PendingIDs are the retry-queue entries created on this platform.
	PendingIDs []string
}

// Report is the result of an engage or amplify invocation.
type Report struct {
	Flow   string
	Target domain.Target
	DryRun bool

	Platforms []*PlatformReport

	// Amplified is the post chosen by the amplify flow, if any.
	Amplified *AmplifiedPost

	// Deferred lists newsworthy posts left for a later invocation.
	Deferred []domain.PlatformPost

	Pruned        int
	StoreLocation string
}

// AmplifiedPost describes the amplify flow's chosen post.
type AmplifiedPost struct {
	Source         domain.PlatformPost
	Classification domain.Classification
}

// platform returns the report for p, creating it on first use.
func (r *Report) platform(p domain.Platform) *PlatformReport {
	for _, pr := range r.Platforms {
		if pr.Platform == p {
			return pr
		}
	}
	pr := &PlatformReport{Platform: p}
	r.Platforms = append(r.Platforms, pr)
	return pr
}

// PendingIDs returns every retry-queue entry created by the invocation.
func (r *Report) PendingIDs() []string {
	var ids []string
	for _, pr := range r.Platforms {
		ids = append(ids, pr.PendingIDs...)
	}
	return ids
}

func equalHandle(a, b string) bool {
	return strings.EqualFold(strings.TrimPrefix(a, "@"), strings.TrimPrefix(b, "@"))
}
