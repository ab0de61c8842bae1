package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/blackmichael/social-engage/internal/domain"
)

// lockKey is the pg_advisory_lock key guarding a load-mutate-save cycle.
const lockKey int64 = 0x656e67616765

// ErrLocked is returned when another invocation holds the advisory lock.
var ErrLocked = errors.New("state is locked by another invocation")

const schema = `
CREATE TABLE IF NOT EXISTS engagement_records (
	key        TEXT PRIMARY KEY,
	handled_at TIMESTAMPTZ NOT NULL,
	excerpt    TEXT NOT NULL DEFAULT '',
	outcome    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS cursors (
	name       TEXT PRIMARY KEY,
	cursor_at  TIMESTAMPTZ NOT NULL,
	last_id    TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS pending_actions (
	id         TEXT PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL,
	payload    JSONB NOT NULL
);`

// Store implements domain.StateStore and domain.Locker using PostgreSQL.
type Store struct {
	db *sql.DB
}

var (
	_ domain.StateStore = (*Store)(nil)
	_ domain.Locker     = (*Store)(nil)
)

// NewStore connects to PostgreSQL at the given URL, verifies the connection,
// and returns a new Store. The caller should call Close when the store is no
// longer needed.
func NewStore(databaseURL string) (*Store, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// NewFromDB wraps an existing connection pool.
func NewFromDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) String() string {
	return "postgres"
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Load reads the whole state document.
func (s *Store) Load(ctx context.Context) (*domain.State, error) {
	st := domain.NewState()

	rows, err := s.db.QueryContext(ctx, `SELECT key, handled_at, excerpt, outcome FROM engagement_records`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key string
			rec domain.EngagementRecord
		)
		if err := rows.Scan(&key, &rec.At, &rec.Excerpt, &rec.Outcome); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec.At = rec.At.UTC()
		st.Records[key] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}

	crows, err := s.db.QueryContext(ctx, `SELECT name, cursor_at, last_id FROM cursors`)
	if err != nil {
		return nil, fmt.Errorf("query cursors: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var (
			name string
			c    domain.Cursor
		)
		if err := crows.Scan(&name, &c.At, &c.LastID); err != nil {
			return nil, fmt.Errorf("scan cursor: %w", err)
		}
		c.At = c.At.UTC()
		st.Cursors[name] = c
	}
	if err := crows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cursors: %w", err)
	}

	prows, err := s.db.QueryContext(ctx, `SELECT id, payload FROM pending_actions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query pending actions: %w", err)
	}
	defer prows.Close()
	for prows.Next() {
		var (
			id      string
			payload []byte
			pa      domain.PendingAction
		)
		if err := prows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan pending action: %w", err)
		}
		if err := json.Unmarshal(payload, &pa); err != nil {
			return nil, fmt.Errorf("decode pending action %s: %w", id, err)
		}
		st.Pending[id] = pa
	}
	if err := prows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending actions: %w", err)
	}

	return st, nil
}

// Save replaces the stored document in one transaction.
func (s *Store) Save(ctx context.Context, st *domain.State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `TRUNCATE engagement_records, cursors, pending_actions`); err != nil {
		return fmt.Errorf("truncate state: %w", err)
	}

	for key, rec := range st.Records {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO engagement_records (key, handled_at, excerpt, outcome) VALUES ($1, $2, $3, $4)`,
			key, rec.At, rec.Excerpt, string(rec.Outcome),
		); err != nil {
			return fmt.Errorf("insert record %s: %w", key, err)
		}
	}

	for name, c := range st.Cursors {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO cursors (name, cursor_at, last_id) VALUES ($1, $2, $3)`,
			name, c.At, c.LastID,
		); err != nil {
			return fmt.Errorf("insert cursor %s: %w", name, err)
		}
	}

	for id, pa := range st.Pending {
		payload, err := json.Marshal(pa)
		if err != nil {
			return fmt.Errorf("encode pending action %s: %w", id, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO pending_actions (id, created_at, payload) VALUES ($1, $2, $3)`,
			id, pa.CreatedAt, payload,
		); err != nil {
			return fmt.Errorf("insert pending action %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Lock takes a session-level advisory lock on a dedicated connection. The
// returned func releases it and returns the connection to the pool.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, lockKey).Scan(&ok); err != nil {
		conn.Close()
		return nil, fmt.Errorf("try advisory lock: %w", err)
	}
	if !ok {
		conn.Close()
		return nil, ErrLocked
	}

	return func() error {
		defer conn.Close()
		if _, err := conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, lockKey); err != nil {
			return fmt.Errorf("advisory unlock: %w", err)
		}
		return nil
	}, nil
}
