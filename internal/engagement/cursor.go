package engagement

import (
	"context"
	"fmt"

	"github.com/blackmichael/social-engage/internal/domain"
)

// LoadCursor returns the named cursor from the store.
func (s *Service) LoadCursor(ctx context.Context, name string) (domain.Cursor, bool, error) {
	st, err := s.cfg.Store.Load(ctx)
	if err != nil {
		return domain.Cursor{}, false, fmt.Errorf("load state: %w", err)
	}
	c, ok := st.Cursor(name)
	return c, ok, nil
}

// SaveCursor advances the named cursor in its own load-mutate-save cycle.
// An older position than the stored one is ignored.
func (s *Service) SaveCursor(ctx context.Context, name string, c domain.Cursor) error {
	_, err := s.withState(ctx, false, func(st *domain.State) error {
		st.AdvanceCursor(name, c)
		return nil
	})
	return err
}
