package weavegraph

import (
	"fmt"
	"sort"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// NextFrontier computes the frontier that follows a completed superstep: the
// static targets of every just-ran node plus whatever each of their
// conditional predicates returns for the given snapshot. Targets are
// deduplicated; predicate names that match no registered node are skipped
// through the warn callback. Routing is a pure function of (snapshot,
// just-ran set): the returned frontier is sorted and terminal is true when
// any target resolved to End, which ends the session.
func (cg *CompiledGraph) NextFrontier(snap state.Snapshot, justRan []string, warn func(msg string)) (frontier []string, terminal bool) {
	set := make(map[string]bool)

	for _, id := range justRan {
		for _, to := range cg.edges[id] {
			if to == End.Name() {
				terminal = true
				continue
			}
			set[to] = true
		}
		for _, pred := range cg.conditional[id] {
			for _, name := range pred(snap) {
				if name == End.Name() {
					terminal = true
					continue
				}
				if !cg.HasNode(name) {
					if warn != nil {
						warn(fmt.Sprintf("conditional edge from %s returned unknown target %q, skipping", id, name))
					}
					continue
				}
				set[name] = true
			}
		}
	}

	frontier = make([]string, 0, len(set))
	for id := range set {
		frontier = append(frontier, id)
	}
	sort.Strings(frontier)
	return frontier, terminal
}
