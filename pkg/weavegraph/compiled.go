package weavegraph

import (
	"github.com/weavegraph/weavegraph/pkg/weavegraph/reducer"
)

// CompiledGraph is an immutable, executable graph produced by Compile. It is
// safe for concurrent use: any number of sessions may execute against the
// same compiled graph.
type CompiledGraph struct {
	nodes         map[string]Node
	edges         map[string][]string
	conditional   map[string][]Predicate
	entry         []string
	entryTerminal bool
	predecessors  map[string][]string
	reducers      *reducer.Registry
}

// EntryFrontier returns the initial frontier (targets of Start's edges,
// sorted) and whether Start routes directly to End.
func (cg *CompiledGraph) EntryFrontier() ([]string, bool) {
	out := make([]string, len(cg.entry))
	copy(out, cg.entry)
	return out, cg.entryTerminal
}

// NodeIDs returns all registered node ids, sorted.
func (cg *CompiledGraph) NodeIDs() []string {
	return sortedKeys(cg.nodes)
}

// HasNode reports whether a custom node with the given id is registered.
func (cg *CompiledGraph) HasNode(id string) bool {
	_, ok := cg.nodes[id]
	return ok
}

// Successors returns the static edge targets of the given node, sorted.
// Conditional targets are runtime-determined and not included.
func (cg *CompiledGraph) Successors(id string) []string {
	targets := cg.edges[id]
	out := make([]string, len(targets))
	copy(out, targets)
	return out
}

// Predecessors returns the nodes with a static edge into the given node,
// sorted. Entry nodes have no recorded predecessor.
func (cg *CompiledGraph) Predecessors(id string) []string {
	preds := cg.predecessors[id]
	out := make([]string, len(preds))
	copy(out, preds)
	return out
}

// IsConditional reports whether the node carries at least one conditional
// edge.
func (cg *CompiledGraph) IsConditional(id string) bool {
	return len(cg.conditional[id]) > 0
}

// Reducers returns the frozen reducer registry the barrier consults.
func (cg *CompiledGraph) Reducers() *reducer.Registry {
	return cg.reducers
}

// getNode returns the node implementation for the given id.
func (cg *CompiledGraph) getNode(id string) (Node, bool) {
	n, ok := cg.nodes[id]
	return n, ok
}
