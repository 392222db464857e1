package weavegraph

import (
	"context"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/event"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// Node is the unit of computation in a workflow. Run receives an immutable
// snapshot of the shared state and returns the node's contribution as a
// NodePartial, or a fatal error (use the NodeError constructors).
//
// Nodes within the same superstep execute concurrently and share one
// snapshot; an implementation must not rely on ordering between sibling
// nodes and must not mutate the snapshot. Cooperative cancellation arrives
// through ctx; a result returned after cancellation is discarded.
type Node interface {
	Run(ctx context.Context, snap state.Snapshot, nc NodeContext) (state.NodePartial, error)
}

// NodeFunc adapts a plain function to the Node interface.
type NodeFunc func(ctx context.Context, snap state.Snapshot, nc NodeContext) (state.NodePartial, error)

// Run implements Node.
func (f NodeFunc) Run(ctx context.Context, snap state.Snapshot, nc NodeContext) (state.NodePartial, error) {
	return f(ctx, snap, nc)
}

// NodeContext carries per-invocation metadata and the event emitter into a
// node. Emission is best-effort fire-and-forget: a full bus or absent bus
// never fails the node.
type NodeContext struct {
	// SessionID identifies the running session.
	SessionID string
	// NodeID is this node's id.
	NodeID string
	// Step is the superstep counter at invocation time.
	Step int

	bus *event.Bus
}

// Emit publishes a diagnostic event scoped to this node invocation.
func (nc NodeContext) Emit(scope, msg string) {
	if nc.bus == nil {
		return
	}
	e := event.NewDiagnostic(scope, msg)
	e.SessionID = nc.SessionID
	e.NodeID = nc.NodeID
	e.Step = nc.Step
	nc.bus.Publish(e)
}

// EmitLLM publishes an opaque model-streaming payload. The core does not
// interpret it; integrators define the shape.
func (nc NodeContext) EmitLLM(payload any) {
	if nc.bus == nil {
		return
	}
	e := event.NewLLM(nc.SessionID, nc.NodeID, payload)
	e.Step = nc.Step
	nc.bus.Publish(e)
}
