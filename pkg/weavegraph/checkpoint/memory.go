package checkpoint

import (
	"context"
	"sync"
)

// MemoryStore keeps only the latest checkpoint per session. It backs tests
// and ephemeral runs; history queries see at most one step.
type MemoryStore struct {
	mu     sync.RWMutex
	latest map[string]Checkpoint
	closed bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{latest: make(map[string]Checkpoint)}
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, cp Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	m.latest[cp.SessionID] = deepCopy(cp)
	return nil
}

// LoadLatest implements Store.
func (m *MemoryStore) LoadLatest(_ context.Context, sessionID string) (*Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	cp, ok := m.latest[sessionID]
	if !ok {
		return nil, ErrNotFound
	}
	out := deepCopy(cp)
	return &out, nil
}

// ListSteps implements Store. Only the latest checkpoint is retained, so the
// result has at most one element.
func (m *MemoryStore) ListSteps(_ context.Context, sessionID string, from, to int) ([]Checkpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrStoreClosed
	}
	cp, ok := m.latest[sessionID]
	if !ok {
		return nil, nil
	}
	if cp.Step < from || (to > 0 && cp.Step > to) {
		return nil, nil
	}
	return []Checkpoint{deepCopy(cp)}, nil
}

// DeleteSession implements Store.
func (m *MemoryStore) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrStoreClosed
	}
	delete(m.latest, sessionID)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.latest = nil
	return nil
}

// Len returns the number of sessions with a stored checkpoint. Useful for
// tests.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.latest)
}

// deepCopy detaches a checkpoint from caller-owned memory.
func deepCopy(cp Checkpoint) Checkpoint {
	out := cp
	out.State = *cp.State.Clone()
	out.VersionsSeen = cp.VersionsSeen.Clone()
	out.Frontier = append([]string(nil), cp.Frontier...)
	out.RanNodes = append([]string(nil), cp.RanNodes...)
	out.SkippedNodes = append([]string(nil), cp.SkippedNodes...)
	out.UpdatedChannels = append([]string(nil), cp.UpdatedChannels...)
	return out
}
