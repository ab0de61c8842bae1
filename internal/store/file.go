package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/blackmichael/social-engage/internal/domain"
)

// FileStore keeps the whole State document in one JSON file.
type FileStore struct {
	path string
}

var (
	_ domain.StateStore = (*FileStore)(nil)
	_ domain.Locker     = (*FileStore)(nil)
)

// NewFileStore returns a store backed by path. The file is created on first
// Save.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (s *FileStore) String() string {
	return s.path
}

// Load reads the state document. A missing file yields an empty state; an
// unreadable or corrupt file is an error so it is never silently replaced.
func (s *FileStore) Load(_ context.Context) (*domain.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.NewState(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read state %s: %w", s.path, err)
	}

	st := domain.NewState()
	if len(data) == 0 {
		return st, nil
	}
	if err := json.Unmarshal(data, st); err != nil {
		return nil, fmt.Errorf("decode state %s: %w", s.path, err)
	}
	st.Normalize()
	return st, nil
}

// Save writes the document to a temporary file and renames it over the old
// one, so readers never observe a partial write.
func (s *FileStore) Save(_ context.Context, st *domain.State) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp state: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync temp state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp state: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace state %s: %w", s.path, err)
	}
	return nil
}

// Lock takes an advisory lock on the lock file next to the state file.
func (s *FileStore) Lock(ctx context.Context) (func() error, error) {
	return acquireLock(ctx, s.path+".lock")
}
