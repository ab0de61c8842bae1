// Package sqlite stores the State document in a local SQLite database. Save
// replaces all rows inside one transaction.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blackmichael/social-engage/internal/domain"
)

//go:embed schema.sql
var schemaSQL string

// Store is a StateStore backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

var _ domain.StateStore = (*Store)(nil)

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) String() string {
	return "sqlite:" + s.path
}

// Load reads every table into a State document.
func (s *Store) Load(ctx context.Context) (*domain.State, error) {
	st := domain.NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT key, at_ms, excerpt, outcome FROM records`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key  string
			atMs int64
			rec  domain.EngagementRecord
		)
		if err := rows.Scan(&key, &atMs, &rec.Excerpt, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.At = fromMillis(atMs)
		st.Records[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	crows, err := s.db.QueryContext(ctx, `SELECT name, at_ms, last_id FROM cursors`)
	if err != nil {
		return nil, fmt.Errorf("query cursors: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			name string
			atMs int64
			c    domain.Cursor
		)
		if err := crows.Scan(&name, &atMs, &c.LastID); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		c.At = fromMillis(atMs)
		st.Cursors[name] = c
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM pending`)
	if err != nil {
		return nil, fmt.Errorf("query pending: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			id      string
			payload string
			pa      domain.PendingAction
		)
		if err := prows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan pending: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &pa); err != nil {
			return nil, fmt.Errorf("decode pending %s: %w", id, err)
		}
		st.Pending[id] = pa
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending: %w", err)
	}

	return st, nil
}

// Save replaces the stored document in a single transaction.
func (s *Store) Save(ctx context.Context, st *domain.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "cursors", "pending"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}

	for key, rec := range st.Records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO records (key, at_ms, excerpt, outcome) VALUES (?, ?, ?, ?)`,
			key, rec.At.UnixMilli(), rec.Excerpt, string(rec.Outcome),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", key, err)
		}
	}

	for name, c := range st.Cursors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cursors (name, at_ms, last_id) VALUES (?, ?, ?)`,
			name, c.At.UnixMilli(), c.LastID,
		); err != nil {
			return fmt.Errorf("insert cursor %s: %w", name, err)
		}
	}

	for id, pa := range st.Pending {
		payload, err := json.Marshal(pa)
		if err != nil {
			return fmt.Errorf("encode pending %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending (id, created_ms, payload) VALUES (?, ?, ?)`,
			id, pa.CreatedAt.UnixMilli(), string(payload),
		); err != nil {
			return fmt.Errorf("insert pending %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
