package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// SQLiteStore persists checkpoints to SQLite. Suitable for single-process
// production use.
//
// Two tables: `sessions` is the denormalized latest pointer for O(1) resume,
// `steps` the full per-step history. The latest pointer is updated in the
// same transaction as the step insert, so resume always lands on the last
// committed step.
type SQLiteStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	closed bool
}

// NewSQLiteStore opens (and if necessary initializes) a SQLite store at
// path. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// An in-memory database exists per connection; pin the pool to one so
	// every statement sees the same schema.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// WAL for concurrent readers; foreign keys for the cascade delete.
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL,
			concurrency_limit INTEGER NOT NULL,
			last_step INTEGER NOT NULL,
			last_state_json TEXT NOT NULL,
			last_frontier_json TEXT NOT NULL,
			last_versions_seen_json TEXT NOT NULL
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create sessions table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS steps (
			session_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			created_at TEXT NOT NULL,
			state_json TEXT NOT NULL,
			frontier_json TEXT NOT NULL,
			versions_seen_json TEXT NOT NULL,
			ran_nodes_json TEXT NOT NULL,
			skipped_nodes_json TEXT NOT NULL,
			updated_channels_json TEXT NOT NULL,
			PRIMARY KEY (session_id, step),
			FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
		)
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("create steps table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Save implements Store.
func (s *SQLiteStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	enc, err := encodeCheckpoint(cp)
	if err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	created := cp.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (id, created_at, updated_at, concurrency_limit,
			last_step, last_state_json, last_frontier_json, last_versions_seen_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			updated_at = excluded.updated_at,
			concurrency_limit = excluded.concurrency_limit,
			last_step = excluded.last_step,
			last_state_json = excluded.last_state_json,
			last_frontier_json = excluded.last_frontier_json,
			last_versions_seen_json = excluded.last_versions_seen_json
	`, cp.SessionID, now, now, cp.ConcurrencyLimit,
		cp.Step, enc.stateJSON, enc.frontierJSON, enc.versionsSeenJSON); err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO steps (session_id, step, created_at, state_json,
			frontier_json, versions_seen_json, ran_nodes_json,
			skipped_nodes_json, updated_channels_json)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, cp.SessionID, cp.Step, created.Format(time.RFC3339Nano), enc.stateJSON,
		enc.frontierJSON, enc.versionsSeenJSON, enc.ranJSON,
		enc.skippedJSON, enc.updatedJSON); err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &Error{Op: "save", SessionID: cp.SessionID, Err: err}
	}
	return nil
}

// LoadLatest implements Store.
func (s *SQLiteStore) LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT s.concurrency_limit, s.last_step,
			st.created_at, st.state_json, st.frontier_json, st.versions_seen_json,
			st.ran_nodes_json, st.skipped_nodes_json, st.updated_channels_json
		FROM sessions s
		JOIN steps st ON st.session_id = s.id AND st.step = s.last_step
		WHERE s.id = ?
	`, sessionID)

	var (
		limit   int
		step    int
		created string
		raw     rawCheckpoint
	)
	err := row.Scan(&limit, &step, &created, &raw.stateJSON, &raw.frontierJSON,
		&raw.versionsSeenJSON, &raw.ranJSON, &raw.skippedJSON, &raw.updatedJSON)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &Error{Op: "load", SessionID: sessionID, Err: err}
	}

	cp, err := decodeCheckpoint(sessionID, step, limit, created, raw)
	if err != nil {
		return nil, &Error{Op: "load", SessionID: sessionID, Err: err}
	}
	return cp, nil
}

// ListSteps implements Store.
func (s *SQLiteStore) ListSteps(ctx context.Context, sessionID string, from, to int) ([]Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	query := `
		SELECT st.step, st.created_at, st.state_json, st.frontier_json,
			st.versions_seen_json, st.ran_nodes_json, st.skipped_nodes_json,
			st.updated_channels_json, s.concurrency_limit
		FROM steps st
		JOIN sessions s ON s.id = st.session_id
		WHERE st.session_id = ? AND st.step >= ?`
	args := []any{sessionID, from}
	if to > 0 {
		query += ` AND st.step <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY st.step`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &Error{Op: "list", SessionID: sessionID, Err: err}
	}
	defer rows.Close()

	var out []Checkpoint
	for rows.Next() {
		var (
			step    int
			created string
			limit   int
			raw     rawCheckpoint
		)
		if err := rows.Scan(&step, &created, &raw.stateJSON, &raw.frontierJSON,
			&raw.versionsSeenJSON, &raw.ranJSON, &raw.skippedJSON,
			&raw.updatedJSON, &limit); err != nil {
			return nil, &Error{Op: "list", SessionID: sessionID, Err: err}
		}
		cp, err := decodeCheckpoint(sessionID, step, limit, created, raw)
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

// DeleteSession implements Store. Step history goes with the session via
// the FK cascade.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, sessionID); err != nil {
		return &Error{Op: "delete", SessionID: sessionID, Err: err}
	}
	return nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

// encodedCheckpoint carries the JSON columns of one checkpoint.
type encodedCheckpoint struct {
	stateJSON        string
	frontierJSON     string
	versionsSeenJSON string
	ranJSON          string
	skippedJSON      string
	updatedJSON      string
}

type rawCheckpoint = encodedCheckpoint

// encodeCheckpoint serializes the JSON columns shared by the SQL backends.
func encodeCheckpoint(cp Checkpoint) (encodedCheckpoint, error) {
	var enc encodedCheckpoint
	cols := []struct {
		name string
		v    any
		dst  *string
	}{
		{"state", cp.State, &enc.stateJSON},
		{"frontier", emptyIfNil(cp.Frontier), &enc.frontierJSON},
		{"versions_seen", cp.VersionsSeen, &enc.versionsSeenJSON},
		{"ran_nodes", emptyIfNil(cp.RanNodes), &enc.ranJSON},
		{"skipped_nodes", emptyIfNil(cp.SkippedNodes), &enc.skippedJSON},
		{"updated_channels", emptyIfNil(cp.UpdatedChannels), &enc.updatedJSON},
	}
	for _, col := range cols {
		data, err := json.Marshal(col.v)
		if err != nil {
			return enc, fmt.Errorf("marshal %s: %w", col.name, err)
		}
		*col.dst = string(data)
	}
	return enc, nil
}

// decodeCheckpoint rebuilds a checkpoint from its JSON columns.
func decodeCheckpoint(sessionID string, step, limit int, created string, raw rawCheckpoint) (*Checkpoint, error) {
	cp := &Checkpoint{
		SessionID:        sessionID,
		Step:             step,
		ConcurrencyLimit: limit,
		VersionsSeen:     state.NewVersionsSeen(),
	}
	cp.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)

	cols := []struct {
		name string
		data string
		dst  any
	}{
		{"state", raw.stateJSON, &cp.State},
		{"frontier", raw.frontierJSON, &cp.Frontier},
		{"versions_seen", raw.versionsSeenJSON, &cp.VersionsSeen},
		{"ran_nodes", raw.ranJSON, &cp.RanNodes},
		{"skipped_nodes", raw.skippedJSON, &cp.SkippedNodes},
		{"updated_channels", raw.updatedJSON, &cp.UpdatedChannels},
	}
	for _, col := range cols {
		if err := json.Unmarshal([]byte(col.data), col.dst); err != nil {
			return nil, fmt.Errorf("unmarshal %s: %w", col.name, err)
		}
	}
	return cp, nil
}

// emptyIfNil keeps nil slices from serializing as JSON null.
func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
