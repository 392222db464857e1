package weavegraph

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/reducer"
)

// Graph is a mutable builder for workflow graphs. Chain AddNode, AddEdge,
// AddConditionalEdge, and SetEntry calls to define the workflow, then call
// Compile to produce an immutable CompiledGraph that can be shared across
// sessions.
//
// Validation is deferred: invalid registrations are recorded while building
// and surfaced, aggregated, by Compile. The exception is registering a node
// under Start or End, which is warned about and ignored on the spot.
//
// Example:
//
//	g := weavegraph.NewGraph().
//	    AddNodeFunc("fetch", fetchNode).
//	    AddNodeFunc("process", processNode).
//	    SetEntry("fetch").
//	    AddEdge(weavegraph.Custom("fetch"), weavegraph.Custom("process")).
//	    AddEdge(weavegraph.Custom("process"), weavegraph.End)
//
//	compiled, err := g.Compile()
type Graph struct {
	mu          sync.RWMutex
	logger      *slog.Logger
	nodes       map[string]Node
	edges       []Edge
	conditional map[string][]Predicate
	reducers    *reducer.Registry
	buildErrs   []error
}

// NewGraph creates an empty graph builder with the default reducers
// registered for the messages, errors, and extras channels.
func NewGraph() *Graph {
	return &Graph{
		logger:      slog.Default(),
		nodes:       make(map[string]Node),
		conditional: make(map[string][]Predicate),
		reducers:    reducer.NewRegistry(),
	}
}

// WithLogger sets the logger used for build-time warnings.
// Returns the graph for method chaining.
func (g *Graph) WithLogger(logger *slog.Logger) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()
	if logger != nil {
		g.logger = logger
	}
	return g
}

// AddNode registers a node under a custom kind.
// Returns the graph for method chaining.
//
// Registering under Start or End is warned about and ignored. An empty
// name, a nil node, or a duplicate kind is recorded and reported by
// Compile.
func (g *Graph) AddNode(kind NodeKind, n Node) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	if kind.IsVirtual() {
		g.logger.Warn("attempted to register a virtual node, ignoring",
			slog.String("kind", kind.String()),
		)
		return g
	}

	id := kind.Name()
	if id == "" {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: node name cannot be empty", ErrUnknownNode))
		return g
	}
	if id == Start.Name() || id == End.Name() {
		g.logger.Warn("attempted to register a virtual node, ignoring",
			slog.String("kind", kind.String()),
		)
		return g
	}
	if n == nil {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("node %s: nil implementation", id))
		return g
	}
	if _, exists := g.nodes[id]; exists {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("%w: %s", ErrDuplicateNode, id))
		return g
	}

	g.nodes[id] = n
	return g
}

// AddNodeFunc registers a plain function as a node under the given name.
// Returns the graph for method chaining.
func (g *Graph) AddNodeFunc(name string, fn NodeFunc) *Graph {
	return g.AddNode(Custom(name), fn)
}

// AddEdge adds a static edge. Endpoint validation happens at Compile time,
// so edges may be added in any order relative to their nodes.
// Returns the graph for method chaining.
func (g *Graph) AddEdge(from, to NodeKind) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.edges = append(g.edges, Edge{From: from, To: to})
	return g
}

// AddConditionalEdge attaches a predicate to a source node. The predicate
// is evaluated after every superstep in which the source ran; its returned
// names join the next frontier. A node may carry several predicates and
// static edges at once.
// Returns the graph for method chaining.
func (g *Graph) AddConditionalEdge(from NodeKind, pred Predicate) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	id := from.Name()
	if pred == nil {
		g.buildErrs = append(g.buildErrs, fmt.Errorf("node %s: nil predicate", id))
		return g
	}
	g.conditional[id] = append(g.conditional[id], pred)
	return g
}

// SetEntry marks the named node as the workflow entry. Shorthand for
// AddEdge(Start, Custom(name)); multiple entry edges are allowed and form
// the initial frontier together.
// Returns the graph for method chaining.
func (g *Graph) SetEntry(name string) *Graph {
	return g.AddEdge(Start, Custom(name))
}

// RegisterReducer installs a custom reducer for a channel name, replacing
// the default. Compile freezes the registry; registrations after Compile do
// not affect already-compiled graphs.
// Returns the graph for method chaining.
func (g *Graph) RegisterReducer(channel string, r reducer.Reducer) *Graph {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.reducers.Register(channel, r)
	return g
}
