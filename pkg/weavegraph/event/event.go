// Package event provides the broadcast hub that streams workflow progress:
// typed events, a bounded fan-out bus that never blocks the pipeline on slow
// consumers, pluggable sinks with per-sink health tracking, and a diagnostics
// stream for sink failures.
package event

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates event payloads.
type Kind string

// Event kinds.
const (
	// KindNode marks node lifecycle events (start/complete).
	KindNode Kind = "node"
	// KindDiagnostic marks scoped diagnostic messages from the runtime.
	KindDiagnostic Kind = "diagnostic"
	// KindLLM marks opaque model-streaming payloads; the core does not
	// interpret them.
	KindLLM Kind = "llm"
)

// Node event phases.
const (
	PhaseStart    = "start"
	PhaseComplete = "complete"
)

// StreamEndScope is the reserved diagnostic scope emitted exactly once when
// a workflow run completes. Streaming consumers use it as a terminator.
const StreamEndScope = "__stream_end__"

// Event is a single record on the bus. The JSON field set is stable; new
// fields may be added but existing ones keep their names and meaning.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	SessionID string    `json:"session_id,omitempty"`
	NodeID    string    `json:"node_id,omitempty"`
	Step      int       `json:"step,omitempty"`
	Phase     string    `json:"phase,omitempty"`
	Scope     string    `json:"scope,omitempty"`
	Message   string    `json:"message,omitempty"`
	Payload   any       `json:"payload,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Lagged is non-zero only on synthetic lag markers: the number of
	// events this subscriber missed since its last delivery.
	Lagged uint64 `json:"lagged,omitempty"`
}

// NewNode creates a node lifecycle event.
func NewNode(sessionID, nodeID string, step int, phase string) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      KindNode,
		SessionID: sessionID,
		NodeID:    nodeID,
		Step:      step,
		Phase:     phase,
		Timestamp: time.Now().UTC(),
	}
}

// NewDiagnostic creates a scoped diagnostic event.
func NewDiagnostic(scope, msg string) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      KindDiagnostic,
		Scope:     scope,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
}

// NewLLM creates an opaque model-streaming event.
func NewLLM(sessionID, nodeID string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      KindLLM,
		SessionID: sessionID,
		NodeID:    nodeID,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}

// NewStreamEnd creates the terminal sentinel for a session's event stream.
func NewStreamEnd(sessionID string) Event {
	e := NewDiagnostic(StreamEndScope, "workflow complete")
	e.SessionID = sessionID
	return e
}

// IsLagMarker reports whether the event is a synthetic marker injected after
// this subscriber dropped events.
func (e Event) IsLagMarker() bool { return e.Lagged > 0 }

// IsStreamEnd reports whether the event is the stream-end sentinel.
func (e Event) IsStreamEnd() bool {
	return e.Kind == KindDiagnostic && e.Scope == StreamEndScope
}

// lagMarker builds the marker delivered to a subscriber that fell behind.
func lagMarker(missed uint64) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      KindDiagnostic,
		Scope:     "__lag__",
		Message:   "subscriber lagged; events dropped",
		Timestamp: time.Now().UTC(),
		Lagged:    missed,
	}
}
