package weavegraph

import (
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// Predicate decides the targets of a conditional edge at runtime. It is
// evaluated against the post-barrier snapshot and returns zero or more
// target node names ("End" terminates the session). Predicates must be pure
// and deterministic; returned names that match no registered node are
// skipped with a warning event.
type Predicate func(snap state.Snapshot) []string

// Edge is a static connection between two kinds. Static edges always fire:
// when the source node ran in a superstep, every static target joins the
// next frontier.
type Edge struct {
	From NodeKind
	To   NodeKind
}
