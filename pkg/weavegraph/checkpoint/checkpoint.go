// Package checkpoint persists per-step session checkpoints so workflows can
// resume after a crash or an explicit pause. Three backends share one
// interface: an in-memory store for tests and ephemeral runs, SQLite for
// single-process durability, and PostgreSQL for shared infrastructure.
package checkpoint

import (
	"context"
	"errors"
	"time"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// SchemaVersion is the current checkpoint format version. Bump on breaking
// changes to the persisted shape.
const SchemaVersion = 1

// Checkpoint is a durable record of a session at one step boundary. It holds
// everything needed to resume: the state, the next frontier, and the
// versions-seen map driving node re-execution.
type Checkpoint struct {
	SessionID        string               `json:"session_id"`
	Step             int                  `json:"step"`
	State            state.VersionedState `json:"state"`
	Frontier         []string             `json:"frontier"`
	VersionsSeen     state.VersionsSeen   `json:"versions_seen"`
	RanNodes         []string             `json:"ran_nodes"`
	SkippedNodes     []string             `json:"skipped_nodes"`
	UpdatedChannels  []string             `json:"updated_channels"`
	ConcurrencyLimit int                  `json:"concurrency_limit"`
	CreatedAt        time.Time            `json:"created_at"`
}

// Store persists checkpoints. Operations on a single session are serialized
// by the runner; implementations must additionally be safe for concurrent
// use across sessions.
type Store interface {
	// Save persists a checkpoint and atomically updates the session's
	// latest pointer. Step monotonicity is the caller's responsibility.
	Save(ctx context.Context, cp Checkpoint) error

	// LoadLatest returns the most recent checkpoint for a session.
	// Returns ErrNotFound if the session has none.
	LoadLatest(ctx context.Context, sessionID string) (*Checkpoint, error)

	// ListSteps returns checkpoints for steps in [from, to], ascending.
	// A to of <= 0 means "through the latest step".
	ListSteps(ctx context.Context, sessionID string, from, to int) ([]Checkpoint, error)

	// DeleteSession removes a session and all its step history.
	DeleteSession(ctx context.Context, sessionID string) error

	// Close releases backend resources.
	Close() error
}

// Sentinel errors for checkpoint operations.
var (
	// ErrNotFound indicates no checkpoint exists for the session.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrStoreClosed indicates the store has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)

// Error wraps a backend failure with the operation and session that hit it.
type Error struct {
	// Op is the operation that failed ("save", "load", "list", "delete").
	Op string
	// SessionID is the affected session.
	SessionID string
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return "checkpoint " + e.Op + " for session " + e.SessionID + ": " + e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Err }
