// Package weavegraph is a framework for graph-structured, stateful,
// concurrent workflows. A workflow is a directed graph of nodes connected by
// static or conditional edges; a runtime executes it in discrete supersteps:
// each superstep runs the frontier of ready nodes in parallel, merges their
// output fragments into versioned shared state through a deterministic
// barrier, and routes the next frontier.
//
// Build a graph, compile it, and run it through an App:
//
//	g := weavegraph.NewGraph().
//	    AddNodeFunc("hello", func(ctx context.Context, snap state.Snapshot, nc weavegraph.NodeContext) (state.NodePartial, error) {
//	        return state.NewPartial().WithMessages(message.Assistant("Hi")), nil
//	    }).
//	    SetEntry("hello").
//	    AddEdge(weavegraph.Custom("hello"), weavegraph.End)
//
//	compiled, err := g.Compile()
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	app := weavegraph.NewApp(compiled)
//	defer app.Close()
//
//	final, err := app.Invoke(ctx, state.NewWithUserMessage("hello"))
//
// Sessions persist through a pluggable checkpointer (in-memory, SQLite, or
// PostgreSQL) and can resume after a crash; progress streams over a bounded
// event bus that never back-pressures the pipeline.
package weavegraph
