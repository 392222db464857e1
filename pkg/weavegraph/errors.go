package weavegraph

import (
	"errors"
	"fmt"
)

// Sentinel errors for graph building and compilation. Compile aggregates
// every detected violation with errors.Join, so errors.Is works against the
// joined result.
var (
	// ErrMissingEntry indicates no edge from Start exists.
	ErrMissingEntry = errors.New("no entry edge from Start")

	// ErrUnknownNode indicates an edge endpoint or predicate source
	// references an unregistered node.
	ErrUnknownNode = errors.New("unknown node")

	// ErrDuplicateNode indicates the same kind was added twice.
	ErrDuplicateNode = errors.New("duplicate node")

	// ErrDuplicateEdge indicates an identical static edge was added twice.
	ErrDuplicateEdge = errors.New("duplicate edge")

	// ErrUnreachableNode indicates a custom node has no path from Start.
	ErrUnreachableNode = errors.New("node unreachable from Start")

	// ErrNoTerminal indicates a custom node has no path to End.
	ErrNoTerminal = errors.New("no path to End")

	// ErrCycle indicates a cycle made entirely of static edges. Cycles are
	// allowed only when at least one conditional edge can break them.
	ErrCycle = errors.New("static cycle")
)

// Sentinel errors for session management.
var (
	// ErrSessionExists indicates CreateSession was called for an existing id.
	ErrSessionExists = errors.New("session already exists")

	// ErrSessionNotFound indicates the session id is unknown to the runner.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionTerminal indicates the session already finished, failed, or
	// was aborted.
	ErrSessionTerminal = errors.New("session is terminal")

	// ErrMaxSteps indicates the step loop exceeded the configured limit.
	ErrMaxSteps = errors.New("exceeded maximum steps")
)

// NodeErrorKind classifies fatal node errors.
type NodeErrorKind string

// Node error kinds.
const (
	NodeErrMissingInput     NodeErrorKind = "missing_input"
	NodeErrValidationFailed NodeErrorKind = "validation_failed"
	NodeErrProvider         NodeErrorKind = "provider"
	NodeErrInternal         NodeErrorKind = "internal"
)

// NodeError is a fatal error returned from a node's Run. Under the default
// continue fail mode it becomes a synthetic ErrorEvent on the errors
// channel; under abort it surfaces as a RunnerError and terminates the
// session.
type NodeError struct {
	// Kind classifies the failure.
	Kind NodeErrorKind
	// Reason is a human-readable description for validation-style failures.
	Reason string
	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *NodeError) Error() string {
	switch {
	case e.Reason != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	case e.Reason != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return string(e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *NodeError) Unwrap() error { return e.Err }

// MissingInput reports that a required input was absent from the snapshot.
func MissingInput(reason string) *NodeError {
	return &NodeError{Kind: NodeErrMissingInput, Reason: reason}
}

// ValidationFailed reports that the node's input or configuration was
// invalid.
func ValidationFailed(reason string) *NodeError {
	return &NodeError{Kind: NodeErrValidationFailed, Reason: reason}
}

// ProviderError wraps a failure from an external dependency the node calls.
func ProviderError(err error) *NodeError {
	return &NodeError{Kind: NodeErrProvider, Err: err}
}

// InternalError wraps an unexpected failure inside the node.
func InternalError(err error) *NodeError {
	return &NodeError{Kind: NodeErrInternal, Err: err}
}

// PanicError captures panic information from node execution. Panics never
// cross the library boundary; they are converted to an internal NodeError
// wrapping a PanicError.
type PanicError struct {
	// NodeID is the node that panicked.
	NodeID string
	// Value is the value passed to panic().
	Value any
	// Stack is the stack trace at the point of panic.
	Stack string
}

// Error implements the error interface.
func (e *PanicError) Error() string {
	return fmt.Sprintf("node %s panicked: %v", e.NodeID, e.Value)
}

// RunnerErrorKind classifies runtime failures surfaced by the runner.
type RunnerErrorKind string

// Runner error kinds.
const (
	RunnerNodeFailed       RunnerErrorKind = "node_failed"
	RunnerBarrierFailed    RunnerErrorKind = "barrier_failed"
	RunnerCheckpointFailed RunnerErrorKind = "checkpoint_failed"
	RunnerCancelled        RunnerErrorKind = "cancelled"
	RunnerTimeout          RunnerErrorKind = "timeout"
)

// RunnerError is the structured failure a session run terminates with. It
// carries the diagnostic context needed to locate the failure: session,
// step, and the offending node where applicable.
type RunnerError struct {
	// Kind classifies the failure.
	Kind RunnerErrorKind
	// SessionID is the affected session.
	SessionID string
	// NodeID is the offending node, when one exists.
	NodeID string
	// Step is the superstep at which the failure occurred.
	Step int
	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *RunnerError) Error() string {
	if e.NodeID != "" {
		return fmt.Sprintf("session %s step %d: %s at node %s: %v", e.SessionID, e.Step, e.Kind, e.NodeID, e.Err)
	}
	return fmt.Sprintf("session %s step %d: %s: %v", e.SessionID, e.Step, e.Kind, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *RunnerError) Unwrap() error { return e.Err }
