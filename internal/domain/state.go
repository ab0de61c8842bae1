package domain

import (
	"sort"
	"time"
	"unicode/utf8"
)

// Outcome records what happened to an engagement key.
type Outcome string

const (
	OutcomeSeen      Outcome = "seen"
	OutcomeDone      Outcome = "done"
	OutcomeDryRun    Outcome = "dry_run"
	OutcomePending   Outcome = "pending"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
	OutcomeCovered   Outcome = "covered"
)

// EngagementRecord is the value stored per engagement key.
type EngagementRecord struct {
	// At is when the key was first handled. Pruning compares against it.
	At      time.Time `json:"at"`
	Excerpt string    `json:"excerpt,omitempty"`
	Outcome Outcome   `json:"outcome,omitempty"`
}

// Cursor bounds notification and stream queries to "new since last check".
type Cursor struct {
	At     time.Time `json:"at"`
	LastID string    `json:"lastId,omitempty"`
}

// PendingKind is the write a PendingAction replays.
type PendingKind string

const (
	PendingPost  PendingKind = "post"
	PendingReply PendingKind = "reply"
)

// PendingAction is a rate-limited write persisted for a later flush.
type PendingAction struct {
	ID       string      `json:"id"`
	Platform Platform    `json:"platform"`
	Kind     PendingKind `json:"kind"`
	Text     string      `json:"text"`
	URL      string      `json:"url,omitempty"`

	// Parent is the post being replied to (PendingReply only).
	Parent *PostRef `json:"parent,omitempty"`

	CreatedAt     time.Time `json:"createdAt"`
	Retries       int       `json:"retries"`
	NextAttemptAt time.Time `json:"nextAttemptAt,omitzero"`
	LastError     string    `json:"lastError,omitempty"`
}

// State is the whole persisted document: engagement records, cursors and the
// pending-retry queue. It is loaded at the start of an invocation, mutated in
// memory and saved back in one piece.
type State struct {
	Records map[string]EngagementRecord `json:"records"`
	Cursors map[string]Cursor           `json:"cursors"`
	Pending map[string]PendingAction    `json:"pending"`
}

// NewState returns an empty state document.
func NewState() *State {
	return &State{
		Records: make(map[string]EngagementRecord),
		Cursors: make(map[string]Cursor),
		Pending: make(map[string]PendingAction),
	}
}

// Normalize allocates any nil maps, e.g. after decoding an older document.
func (s *State) Normalize() {
	if s.Records == nil {
		s.Records = make(map[string]EngagementRecord)
	}
	if s.Cursors == nil {
		s.Cursors = make(map[string]Cursor)
	}
	if s.Pending == nil {
		s.Pending = make(map[string]PendingAction)
	}
}

// Has reports whether key has been recorded.
func (s *State) Has(key string) bool {
	_, ok := s.Records[key]
	return ok
}

// Mark records key. The first-handled timestamp of an existing record is
// kept; outcome and excerpt are updated.
func (s *State) Mark(key string, at time.Time, excerpt string, outcome Outcome) {
	s.Normalize()
	rec, ok := s.Records[key]
	if !ok {
		rec.At = at
	}
	if excerpt != "" {
		rec.Excerpt = excerpt
	}
	rec.Outcome = outcome
	s.Records[key] = rec
}

// Prune deletes records older than retention and returns how many were removed.
func (s *State) Prune(now time.Time, retention time.Duration) int {
	cutoff := now.Add(-retention)
	pruned := 0
	for key, rec := range s.Records {
		if rec.At.Before(cutoff) {
			delete(s.Records, key)
			pruned++
		}
	}
	return pruned
}

// Cursor returns the named cursor.
func (s *State) Cursor(name string) (Cursor, bool) {
	c, ok := s.Cursors[name]
	return c, ok
}

// AdvanceCursor moves the named cursor to c if c is newer. Cursors never
// move backward. Reports whether the cursor changed.
func (s *State) AdvanceCursor(name string, c Cursor) bool {
	s.Normalize()
	cur, ok := s.Cursors[name]
	if ok && !c.At.After(cur.At) {
		return false
	}
	s.Cursors[name] = c
	return true
}

// Enqueue stores or replaces a pending action.
func (s *State) Enqueue(p PendingAction) {
	s.Normalize()
	s.Pending[p.ID] = p
}

// RemovePending deletes a pending action.
func (s *State) RemovePending(id string) {
	delete(s.Pending, id)
}

// PendingActions returns the queue oldest first.
func (s *State) PendingActions() []PendingAction {
	out := make([]PendingAction, 0, len(s.Pending))
	for _, p := range s.Pending {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Excerpt returns at most n runes of text for audit records.
func Excerpt(text string, n int) string {
	if utf8.RuneCountInString(text) <= n {
		return text
	}
	return string([]rune(text)[:n])
}
