package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/blackmichael/social-engage/internal/domain"
)

// MemoryStore holds the state document in memory. Load and Save copy the
// document so callers never share maps with the store.
type MemoryStore struct {
	mu    sync.Mutex
	data  []byte
	saves int
}

var _ domain.StateStore = (*MemoryStore)(nil)

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith returns a store seeded with st.
func NewMemoryStoreWith(st *domain.State) (*MemoryStore, error) {
	m := &MemoryStore{}
	if err := m.Save(context.Background(), st); err != nil {
		return nil, err
	}
	m.saves = 0
	return m, nil
}

func (m *MemoryStore) Load(_ context.Context) (*domain.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := domain.NewState()
	if m.data == nil {
		return st, nil
	}
	if err := json.Unmarshal(m.data, st); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	st.Normalize()
	return st, nil
}

func (m *MemoryStore) Save(_ context.Context, st *domain.State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	m.mu.Lock()
	m.data = data
	m.saves++
	m.mu.Unlock()
	return nil
}

// Saves reports how many times Save has been called.
func (m *MemoryStore) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}
