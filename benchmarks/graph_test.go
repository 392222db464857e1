package benchmarks

import (
	"context"
	"fmt"
	"testing"

	"github.com/weavegraph/weavegraph/pkg/weavegraph"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// noopNode does minimal work to measure framework overhead.
func noopNode(_ context.Context, _ state.Snapshot, _ weavegraph.NodeContext) (state.NodePartial, error) {
	return state.NewPartial(), nil
}

func nodeID(i int) string {
	return fmt.Sprintf("node-%d", i)
}

// buildLinearGraph chains n nodes from entry to End.
func buildLinearGraph(n int) *weavegraph.Graph {
	g := weavegraph.NewGraph()
	for i := 0; i < n; i++ {
		g.AddNodeFunc(nodeID(i), noopNode)
	}
	g.SetEntry(nodeID(0))
	for i := 0; i < n-1; i++ {
		g.AddEdge(weavegraph.Custom(nodeID(i)), weavegraph.Custom(nodeID(i+1)))
	}
	g.AddEdge(weavegraph.Custom(nodeID(n-1)), weavegraph.End)
	return g
}

func mustCompile(b *testing.B, g *weavegraph.Graph) *weavegraph.CompiledGraph {
	b.Helper()
	compiled, err := g.Compile()
	if err != nil {
		b.Fatal(err)
	}
	return compiled
}

// BenchmarkNewGraph measures builder creation overhead.
func BenchmarkNewGraph(b *testing.B) {
	for i := 0; i < b.N; i++ {
		weavegraph.NewGraph()
	}
}

// BenchmarkAddNode_10 measures registering 10 nodes.
func BenchmarkAddNode_10(b *testing.B) {
	for i := 0; i < b.N; i++ {
		g := weavegraph.NewGraph()
		for j := 0; j < 10; j++ {
			g.AddNodeFunc(nodeID(j), noopNode)
		}
	}
}

// BenchmarkAddNode_100 measures registering 100 nodes.
func BenchmarkAddNode_100(b *testing.B) {
	for i := 0; i < b.N; i++ {
		g := weavegraph.NewGraph()
		for j := 0; j < 100; j++ {
			g.AddNodeFunc(nodeID(j), noopNode)
		}
	}
}

// BenchmarkCompile_Linear_5 compiles a 5-node linear graph.
func BenchmarkCompile_Linear_5(b *testing.B) {
	g := buildLinearGraph(5)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Compile()
	}
}

// BenchmarkCompile_Linear_50 compiles a 50-node linear graph.
func BenchmarkCompile_Linear_50(b *testing.B) {
	g := buildLinearGraph(50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = g.Compile()
	}
}
