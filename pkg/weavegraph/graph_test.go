package weavegraph

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

func noopNode(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
	return state.NewPartial(), nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCompile_LinearGraph(t *testing.T) {
	g := NewGraph().
		AddNodeFunc("fetch", noopNode).
		AddNodeFunc("process", noopNode).
		SetEntry("fetch").
		AddEdge(Custom("fetch"), Custom("process")).
		AddEdge(Custom("process"), End)

	compiled, err := g.Compile()
	require.NoError(t, err)

	entry, terminal := compiled.EntryFrontier()
	assert.Equal(t, []string{"fetch"}, entry)
	assert.False(t, terminal)

	assert.Equal(t, []string{"fetch", "process"}, compiled.NodeIDs())
	assert.True(t, compiled.HasNode("fetch"))
	assert.False(t, compiled.HasNode("missing"))
	assert.Equal(t, []string{"process"}, compiled.Successors("fetch"))
	assert.Equal(t, []string{"fetch"}, compiled.Predecessors("process"))
	assert.False(t, compiled.IsConditional("fetch"))
}

func TestCompile_MultipleEntries(t *testing.T) {
	g := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("b", noopNode).
		SetEntry("b").
		SetEntry("a").
		AddEdge(Custom("a"), End).
		AddEdge(Custom("b"), End)

	compiled, err := g.Compile()
	require.NoError(t, err)

	entry, _ := compiled.EntryFrontier()
	assert.Equal(t, []string{"a", "b"}, entry)
}

func TestCompile_StartDirectlyToEnd(t *testing.T) {
	compiled, err := NewGraph().AddEdge(Start, End).Compile()
	require.NoError(t, err)

	entry, terminal := compiled.EntryFrontier()
	assert.Empty(t, entry)
	assert.True(t, terminal)
}

func TestCompile_MissingEntry(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		AddEdge(Custom("a"), End).
		Compile()
	assert.ErrorIs(t, err, ErrMissingEntry)
}

func TestCompile_UnknownEndpoints(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), Custom("ghost")).
		Compile()
	assert.ErrorIs(t, err, ErrUnknownNode)

	_, err = NewGraph().
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("ghost"), Custom("a")).
		AddEdge(Custom("a"), End).
		Compile()
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestCompile_EndAsSourceStartAsTarget(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), End).
		AddEdge(End, Custom("a")).
		Compile()
	assert.ErrorIs(t, err, ErrUnknownNode)

	_, err = NewGraph().
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), End).
		AddEdge(Custom("a"), Start).
		Compile()
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestCompile_DuplicateNode(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), End).
		Compile()
	assert.ErrorIs(t, err, ErrDuplicateNode)
}

func TestCompile_DuplicateEdge(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("b", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), Custom("b")).
		AddEdge(Custom("a"), Custom("b")).
		AddEdge(Custom("b"), End).
		Compile()
	assert.ErrorIs(t, err, ErrDuplicateEdge)
}

func TestCompile_UnreachableNode(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("orphan", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), End).
		AddEdge(Custom("orphan"), End).
		Compile()
	assert.ErrorIs(t, err, ErrUnreachableNode)
}

func TestCompile_NoTerminal(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		Compile()
	assert.ErrorIs(t, err, ErrNoTerminal)
}

func TestCompile_StaticCycle(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("b", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), Custom("b")).
		AddEdge(Custom("b"), Custom("a")).
		AddEdge(Custom("a"), End).
		Compile()
	assert.ErrorIs(t, err, ErrCycle)
}

func TestCompile_ConditionalBreaksCycle(t *testing.T) {
	// The back edge lives in a predicate, so no static cycle exists.
	g := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("b", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), Custom("b")).
		AddConditionalEdge(Custom("b"), func(_ state.Snapshot) []string {
			return []string{"a"}
		})

	compiled, err := g.Compile()
	require.NoError(t, err)
	assert.True(t, compiled.IsConditional("b"))
}

func TestCompile_ConditionalSourceMustExist(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), End).
		AddConditionalEdge(Custom("ghost"), func(_ state.Snapshot) []string { return nil }).
		Compile()
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestCompile_AggregatesViolations(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("a", noopNode).
		AddNodeFunc("a", noopNode).
		AddEdge(Custom("a"), Custom("ghost")).
		Compile()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDuplicateNode)
	assert.ErrorIs(t, err, ErrUnknownNode)
	assert.ErrorIs(t, err, ErrMissingEntry)
}

func TestAddNode_VirtualIgnored(t *testing.T) {
	g := NewGraph().WithLogger(discardLogger()).
		AddNode(Start, NodeFunc(noopNode)).
		AddNode(End, NodeFunc(noopNode)).
		AddNodeFunc("a", noopNode).
		SetEntry("a").
		AddEdge(Custom("a"), End)

	compiled, err := g.Compile()
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, compiled.NodeIDs())
}

func TestAddNode_InvalidRegistrations(t *testing.T) {
	_, err := NewGraph().
		AddNodeFunc("", noopNode).
		AddNode(Custom("nilimpl"), nil).
		Compile()
	require.Error(t, err)
}
