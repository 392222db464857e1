package weavegraph

import (
	"errors"
	"fmt"
	"sort"
)

// Compile validates the graph and freezes it into an executable
// CompiledGraph. All detected violations are aggregated with errors.Join.
//
// Validation checks:
//  1. At least one entry edge from Start exists.
//  2. Every edge endpoint references a registered node, Start (sources
//     only), or End (targets only).
//  3. No kind was registered twice and no identical static edge repeats.
//  4. Every custom node is reachable from Start.
//  5. Every custom node has a path to End.
//  6. No cycle consists purely of static edges. Cycles broken by a
//     conditional edge are allowed; whether the predicate actually fires is
//     a runtime property, so this check is a heuristic by construction.
//
// Reachability treats a node carrying conditional edges as potentially
// routing anywhere, including End: predicate targets are unknowable at
// compile time.
func (g *Graph) Compile() (*CompiledGraph, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	errs := append([]error(nil), g.buildErrs...)

	entrySet := make(map[string]bool)
	entryTerminal := false
	adj := make(map[string][]string)
	seenEdges := make(map[Edge]bool)

	for _, e := range g.edges {
		if seenEdges[e] {
			errs = append(errs, fmt.Errorf("%w: %s -> %s", ErrDuplicateEdge, e.From.Name(), e.To.Name()))
			continue
		}
		seenEdges[e] = true

		if e.From == End {
			errs = append(errs, fmt.Errorf("%w: End cannot be an edge source", ErrUnknownNode))
			continue
		}
		if e.To == Start {
			errs = append(errs, fmt.Errorf("%w: Start cannot be an edge target", ErrUnknownNode))
			continue
		}
		if e.From != Start {
			if _, ok := g.nodes[e.From.Name()]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge source %q", ErrUnknownNode, e.From.Name()))
				continue
			}
		}
		if e.To != End {
			if _, ok := g.nodes[e.To.Name()]; !ok {
				errs = append(errs, fmt.Errorf("%w: edge target %q", ErrUnknownNode, e.To.Name()))
				continue
			}
		}

		if e.From == Start {
			if e.To == End {
				entryTerminal = true
			} else {
				entrySet[e.To.Name()] = true
			}
			continue
		}
		adj[e.From.Name()] = append(adj[e.From.Name()], e.To.Name())
	}

	if len(entrySet) == 0 && !entryTerminal {
		errs = append(errs, ErrMissingEntry)
	}

	for _, src := range sortedKeys(g.conditional) {
		if _, ok := g.nodes[src]; !ok {
			errs = append(errs, fmt.Errorf("%w: conditional edge source %q", ErrUnknownNode, src))
		}
	}

	entry := sortedKeys(entrySet)

	reachable := g.reachableFrom(entry, adj)
	for _, id := range sortedKeys(g.nodes) {
		if !reachable[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrUnreachableNode, id))
		}
	}

	canEnd := g.canReachEnd(adj)
	for _, id := range sortedKeys(g.nodes) {
		if reachable[id] && !canEnd[id] {
			errs = append(errs, fmt.Errorf("%w: %s", ErrNoTerminal, id))
		}
	}

	if cycle := findStaticCycle(adj); cycle != nil {
		errs = append(errs, fmt.Errorf("%w: %v", ErrCycle, cycle))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return g.freeze(entry, entryTerminal, adj), nil
}

// reachableFrom computes the nodes reachable from the entry frontier. A node
// with conditional edges may route to any registered node, so reaching one
// marks everything reachable.
func (g *Graph) reachableFrom(entry []string, adj map[string][]string) map[string]bool {
	reachable := make(map[string]bool)
	queue := make([]string, 0, len(entry))
	for _, id := range entry {
		if _, ok := g.nodes[id]; ok && !reachable[id] {
			reachable[id] = true
			queue = append(queue, id)
		}
	}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		for _, to := range adj[current] {
			if to != End.Name() && !reachable[to] {
				reachable[to] = true
				queue = append(queue, to)
			}
		}
		if len(g.conditional[current]) > 0 {
			for id := range g.nodes {
				if !reachable[id] {
					reachable[id] = true
					queue = append(queue, id)
				}
			}
		}
	}
	return reachable
}

// canReachEnd computes which nodes have some path to End. Static edges
// propagate backwards; a node with a conditional edge is assumed able to
// route to End directly.
func (g *Graph) canReachEnd(adj map[string][]string) map[string]bool {
	can := make(map[string]bool)
	for src := range g.conditional {
		can[src] = true
	}
	for from, targets := range adj {
		for _, to := range targets {
			if to == End.Name() {
				can[from] = true
			}
		}
	}

	changed := true
	for changed {
		changed = false
		for from, targets := range adj {
			if can[from] {
				continue
			}
			for _, to := range targets {
				if can[to] {
					can[from] = true
					changed = true
					break
				}
			}
		}
	}
	return can
}

// findStaticCycle looks for a cycle made only of static edges and returns
// its node path, or nil. Conditional edges are absent from adj, so any back
// edge found here is a pure static cycle.
func findStaticCycle(adj map[string][]string) []string {
	const (
		unvisited = 0
		inStack   = 1
		done      = 2
	)
	color := make(map[string]int)
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = inStack
		stack = append(stack, id)
		for _, to := range adj[id] {
			if to == End.Name() {
				continue
			}
			switch color[to] {
			case inStack:
				for i, n := range stack {
					if n == to {
						cycle = append([]string(nil), stack[i:]...)
						return true
					}
				}
				cycle = append([]string(nil), stack...)
				return true
			case unvisited:
				if visit(to) {
					return true
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[id] = done
		return false
	}

	for _, id := range sortedKeys(adj) {
		if color[id] == unvisited {
			if visit(id) {
				return cycle
			}
		}
	}
	return nil
}

// freeze builds the immutable CompiledGraph from the validated builder.
func (g *Graph) freeze(entry []string, entryTerminal bool, adj map[string][]string) *CompiledGraph {
	nodes := make(map[string]Node, len(g.nodes))
	for id, n := range g.nodes {
		nodes[id] = n
	}

	edges := make(map[string][]string, len(adj))
	predecessors := make(map[string][]string)
	for from, targets := range adj {
		dst := make([]string, len(targets))
		copy(dst, targets)
		sort.Strings(dst)
		edges[from] = dst
		for _, to := range dst {
			if to != End.Name() {
				predecessors[to] = append(predecessors[to], from)
			}
		}
	}
	for _, preds := range predecessors {
		sort.Strings(preds)
	}

	conditional := make(map[string][]Predicate, len(g.conditional))
	for src, preds := range g.conditional {
		conditional[src] = append([]Predicate(nil), preds...)
	}

	return &CompiledGraph{
		nodes:         nodes,
		edges:         edges,
		conditional:   conditional,
		entry:         entry,
		entryTerminal: entryTerminal,
		predecessors:  predecessors,
		reducers:      g.reducers.Clone(),
	}
}

// sortedKeys returns the map's keys in ascending order.
func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
