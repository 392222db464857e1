package checkpoint

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists checkpoints to PostgreSQL with the same two-table
// schema semantics as SQLiteStore (JSONB columns instead of TEXT).
//
// The store accepts an externally-owned *pgxpool.Pool via constructor
// injection; the caller creates and closes the pool.
type PostgresStore struct {
	pool *pgxpool.Pool
	mu   sync.RWMutex

	closed bool
}

// NewPostgresStore creates a store over an existing pool. Call Init once to
// create the schema.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the tables if they do not exist. Safe to call multiple times.
func (p *PostgresStore) Init(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			concurrency_limit INTEGER NOT NULL,
			last_step INTEGER NOT NULL,
			last_state_json JSONB NOT NULL,
			last_frontier_json JSONB NOT NULL,
			last_versions_seen_json JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS steps (
			session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			step INTEGER NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			state_json JSONB NOT NULL,
			frontier_json JSONB NOT NULL,
			versions_seen_json JSONB NOT NULL,
			ran_nodes_json JSONB NOT NULL,
			skipped_nodes_json JSONB NOT NULL,
			updated_channels_json JSONB NOT NULL,
			PRIMARY KEY (session_id, step)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return &Error{Op: "init", SessionID: "", Err: err}
		}
	}
	return nil
}

// Save implements Store.
func (p *PostgresStore) Save(ctx context.Context, cp Checkpoint) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStoreClosed
	}

	enc, err := encodeCheckpoint(cp)
	if err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}
	now := time.Now().UTC()
	created := cp.CreatedAt
	if created.IsZero() {
		created = now
	}

	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, concurrency_limit,
			last_step, last_state_json, last_frontier_json, last_versions_seen_json)
		VALUES ($1, $2, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			updated_at = EXCLUDED.updated_at,
			concurrency_limit = EXCLUDED.concurrency_limit,
			last_step = EXCLUDED.last_step,
			last_state_json = EXCLUDED.last_state_json,
			last_frontier_json = EXCLUDED.last_frontier_json,
			last_versions_seen_json = EXCLUDED.last_versions_seen_json
	`, cp.SessionID, now, cp.ConcurrencyLimit, cp.Step,
		enc.stateJSON, enc.frontierJSON, enc.versionsSeenJSON); err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO steps (session_id, step, created_at, state_json,
			frontier_json, versions_seen_json, ran_nodes_json,
			skipped_nodes_json, updated_channels_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (session_id, step) DO UPDATE SET
			created_at = EXCLUDED.created_at,
			state_json = EXCLUDED.state_json,
			frontier_json = EXCLUDED.frontier_json,
			versions_seen_json = EXCLUDED.versions_seen_json,
			ran_nodes_json = EXCLUDED.ran_nodes_json,
			skipped_nodes_json = EXCLUDED.skipped_nodes_json,
			updated_channels_json = EXCLUDED.updated_channels_json
	`, cp.SessionID, cp.Step, created, enc.stateJSON, enc.frontierJSON,
		enc.versionsSeenJSON, enc.ranJSON, enc.skippedJSON, enc.updatedJSON); err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}

	if err := tx.Commit(ctx); err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}
	return nil
}

// LoadLatest implements Store.
func (p *PostgresStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrStoreClosed
	}

	var (
		limit   int
		step    int
		created time.Time
		raw     rawCheckpoint
	)
	err := p.pool.QueryRow(ctx, `
		SELECT s.concurrency_limit, s.last_step,
			st.created_at, st.state_json::TEXT, st.frontier_json::TEXT,
			st.versions_seen_json::TEXT, st.ran_nodes_json::TEXT,
			st.skipped_nodes_json::TEXT, st.updated_channels_json::TEXT
		FROM sessions s
		JOIN steps st ON st.session_id = s.id AND st.step = s.last_step
		WHERE s.id = $1
	`, sessionID).Scan(&limit, &step, &created, &raw.stateJSON, &raw.frontierJSON,
		&raw.versionsSeenJSON, &raw.ranJSON, &raw.skippedJSON, &raw.updatedJSON)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "load", SessionID: sessionID, Err: err}
	}

	cp, err := decodeCheckpoint(sessionID, step, limit, created.Format(time.RFC3339Nano), raw)
	if err != nil {
		return nil, &Error{Op: "load", SessionID: sessionID, Err: err}
	}
	return cp, nil
}

// ListSteps implements Store.
func (p *PostgresStore) ListSteps(ctx context.Context, sessionID string, from, to int) ([]Checkpoint, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return nil, ErrStoreClosed
	}

	query := `
		SELECT st.step, st.created_at, st.state_json::TEXT, st.frontier_json::TEXT,
			st.versions_seen_json::TEXT, st.ran_nodes_json::TEXT,
			st.skipped_nodes_json::TEXT, st.updated_channels_json::TEXT,
			s.concurrency_limit
		FROM steps st
		JOIN sessions s ON s.id = st.session_id
		WHERE st.session_id = $1 AND st.step >= $2`
	args := []any{sessionID, from}
	if to > 0 {
		query += ` AND st.step <= $3`
		args = append(args, to)
	}
	query += ` ORDER BY st.step`

	rows, err := p.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "list", SessionID: sessionID, Err: err}
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var (
			step    int
			created time.Time
			limit   int
			raw     rawCheckpoint
		)
		if err := rows.Scan(&step, &created, &raw.stateJSON, &raw.frontierJSON,
			&raw.versionsSeenJSON, &raw.ranJSON, &raw.skippedJSON,
			&raw.updatedJSON, &limit); err != nil {
			return nil, &Error{Op: "list", SessionID: sessionID, Err: err}
		}
		cp, err := decodeCheckpoint(sessionID, step, limit, created.Format(time.RFC3339Nano), raw)
		if err != nil {
			return nil, &Error{Op: "list", SessionID: sessionID, Err: err}
		}
		out = append(out, *cp)
	}
	if err := rows.Err(); err != nil {
		return nil, &Error{Op: "list", SessionID: sessionID, Err: err}
	}
	return out, nil
}

// DeleteSession implements Store.
func (p *PostgresStore) DeleteSession(ctx context.Context, sessionID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrStoreClosed
	}
	if _, err := p.pool.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID); err != nil {
		return &Error{Op: "delete", SessionID: sessionID, Err: err}
	}
	return nil
}

// Close implements Store. The pool itself belongs to the caller and is not
// closed here.
func (p *PostgresStore) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}
