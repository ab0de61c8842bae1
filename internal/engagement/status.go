package engagement

import (
	"context"
	"fmt"
	"sort"

	"github.com/blackmichael/social-engage/internal/domain"
)

// StatusReport summarizes the persisted state.
type StatusReport struct {
	StoreLocation string
	Records       int

	// Outcomes counts records per outcome.
	Outcomes map[domain.Outcome]int
	Pending  []domain.PendingAction
	Cursors  map[string]domain.Cursor
}

// CursorNames returns the cursor names in sorted order.
func (r *StatusReport) CursorNames() []string {
	names := make([]string, 0, len(r.Cursors))
	for name := range r.Cursors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Status loads the state without modifying it.
func (s *Service) Status(ctx context.Context) (*StatusReport, error) {
	st, err := s.cfg.Store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	rep := &StatusReport{
		StoreLocation: s.StoreLocation(),
		Records:       len(st.Records),
		Outcomes:      make(map[domain.Outcome]int),
		Pending:       st.PendingActions(),
		Cursors:       st.Cursors,
	}
	for _, rec := range st.Records {
		rep.Outcomes[rec.Outcome]++
	}
	return rep, nil
}
