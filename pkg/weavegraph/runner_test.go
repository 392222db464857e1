package weavegraph

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/checkpoint"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/config"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// greetGraph is the minimal linear workflow: one node appending a reply.
func greetGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	compiled, err := NewGraph().
		AddNodeFunc("hello", func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			return state.NewPartial().WithMessages(message.Assistant("Hello!")), nil
		}).
		SetEntry("hello").
		AddEdge(Custom("hello"), End).
		Compile()
	require.NoError(t, err)
	return compiled
}

func TestRunner_LinearWorkflow(t *testing.T) {
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", state.NewWithUserMessage("hi")))

	final, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)

	require.Len(t, final.Messages.Items, 2)
	assert.Equal(t, "hi", final.Messages.Items[0].Content)
	assert.Equal(t, "Hello!", final.Messages.Items[1].Content)
	assert.Equal(t, uint64(2), final.Messages.Version)

	status, err := r.Status("s1")
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, status)
}

func TestRunner_SessionLifecycleErrors(t *testing.T) {
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()))

	assert.Error(t, r.CreateSession("", nil))
	require.NoError(t, r.CreateSession("s1", nil))
	assert.ErrorIs(t, r.CreateSession("s1", nil), ErrSessionExists)

	_, err := r.Status("ghost")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)
	_, err = r.RunUntilComplete(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrSessionTerminal)

	assert.Equal(t, []string{"s1"}, r.Sessions())
}

func TestRunner_FanOutDeterministic(t *testing.T) {
	setter := func(v int) NodeFunc {
		return func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			return state.NewPartial().WithExtra("x", v), nil
		}
	}
	compiled, err := NewGraph().
		AddNodeFunc("a", setter(1)).
		AddNodeFunc("b", setter(2)).
		SetEntry("a").
		SetEntry("b").
		AddEdge(Custom("a"), End).
		AddEdge(Custom("b"), End).
		Compile()
	require.NoError(t, err)

	// Same input, same result, regardless of which goroutine finishes first:
	// colliding extras writes resolve in lexicographic node order, b last.
	r := NewRunner(compiled, WithLogger(discardLogger()))
	for i := 0; i < 25; i++ {
		id := fmt.Sprintf("run-%d", i)
		require.NoError(t, r.CreateSession(id, nil))
		final, err := r.RunUntilComplete(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, 2, final.Extras.Values["x"])
		assert.Equal(t, uint64(1), final.Extras.Version)
	}
}

func TestRunner_CycleRerunsWriter(t *testing.T) {
	assistantCount := func(snap state.Snapshot) int {
		n := 0
		for _, m := range snap.Messages {
			if m.Role == message.RoleAssistant {
				n++
			}
		}
		return n
	}
	compiled, err := NewGraph().
		AddNodeFunc("worker", func(_ context.Context, snap state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			reply := fmt.Sprintf("pass %d", assistantCount(snap)+1)
			return state.NewPartial().WithMessages(message.Assistant(reply)), nil
		}).
		SetEntry("worker").
		AddConditionalEdge(Custom("worker"), func(snap state.Snapshot) []string {
			if assistantCount(snap) < 3 {
				return []string{"worker"}
			}
			return []string{End.Name()}
		}).
		Compile()
	require.NoError(t, err)

	r := NewRunner(compiled, WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", state.NewWithUserMessage("go")))

	final, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)

	// The node's own writes keep re-qualifying it: three passes, one version
	// bump each on top of the seeded message.
	require.Len(t, final.Messages.Items, 4)
	assert.Equal(t, "pass 3", final.Messages.Items[3].Content)
	assert.Equal(t, uint64(4), final.Messages.Version)
}

func TestRunner_SkipsNodeWithoutFreshInput(t *testing.T) {
	visits := 0
	compiled, err := NewGraph().
		AddNodeFunc("idle", func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			visits++
			return state.NewPartial(), nil
		}).
		SetEntry("idle").
		AddConditionalEdge(Custom("idle"), func(_ state.Snapshot) []string {
			return []string{"idle"}
		}).
		Compile()
	require.NoError(t, err)

	r := NewRunner(compiled, WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", nil))
	ctx := context.Background()

	report, err := r.RunOneSuperstep(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"idle"}, report.Ran)
	assert.Empty(t, report.Skipped)

	// The node wrote nothing, so the rerouted frontier has no fresh input.
	report, err = r.RunOneSuperstep(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, report.Ran)
	assert.Equal(t, []string{"idle"}, report.Skipped)

	// Nothing ran, so routing starves and the session completes.
	report, err = r.RunOneSuperstep(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, report.Terminal)
	assert.Equal(t, 1, visits)

	status, _ := r.Status("s1")
	assert.Equal(t, StatusFinished, status)
}

func TestRunner_RecoverableErrorEvent(t *testing.T) {
	compiled, err := NewGraph().
		AddNodeFunc("flaky", func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			evt := message.NewErrorEvent("node:flaky", "retry budget exhausted").WithTag("attempts", "3")
			return state.NewPartial().WithErrors(evt), nil
		}).
		SetEntry("flaky").
		AddEdge(Custom("flaky"), End).
		Compile()
	require.NoError(t, err)

	r := NewRunner(compiled, WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", nil))

	final, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)

	require.Len(t, final.Errors.Items, 1)
	assert.Equal(t, "node:flaky", final.Errors.Items[0].Scope)
	assert.Equal(t, uint64(1), final.Errors.Version)
}

func failingGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	compiled, err := NewGraph().
		AddNodeFunc("bad", func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			return state.NodePartial{}, ProviderError(errors.New("upstream down"))
		}).
		SetEntry("bad").
		AddEdge(Custom("bad"), End).
		Compile()
	require.NoError(t, err)
	return compiled
}

func TestRunner_FailModeContinue(t *testing.T) {
	r := NewRunner(failingGraph(t), WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", nil))

	final, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)

	// The fatal error became a recoverable event scoped to the node.
	require.Len(t, final.Errors.Items, 1)
	assert.Equal(t, "node:bad", final.Errors.Items[0].Scope)
	assert.Contains(t, final.Errors.Items[0].Message, "upstream down")

	status, _ := r.Status("s1")
	assert.Equal(t, StatusFinished, status)
}

func TestRunner_FailModeAbort(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	r := NewRunner(failingGraph(t),
		WithLogger(discardLogger()),
		WithFailMode(config.FailModeAbort),
		WithCheckpointer(store),
	)
	require.NoError(t, r.CreateSession("s1", nil))

	_, err := r.RunUntilComplete(context.Background(), "s1")
	require.Error(t, err)

	var re *RunnerError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, RunnerNodeFailed, re.Kind)
	assert.Equal(t, "bad", re.NodeID)
	assert.Equal(t, "s1", re.SessionID)

	status, _ := r.Status("s1")
	assert.Equal(t, StatusFailed, status)

	// The failed step was never checkpointed.
	_, err = store.LoadLatest(context.Background(), "s1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestRunner_MaxSteps(t *testing.T) {
	compiled, err := NewGraph().
		AddNodeFunc("spin", func(_ context.Context, snap state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			return state.NewPartial().WithMessages(message.Assistant("again")), nil
		}).
		SetEntry("spin").
		AddConditionalEdge(Custom("spin"), func(_ state.Snapshot) []string {
			return []string{"spin"}
		}).
		Compile()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.MaxSteps = 3
	r := NewRunner(compiled, WithLogger(discardLogger()), WithConfig(cfg))
	require.NoError(t, r.CreateSession("s1", nil))

	_, err = r.RunUntilComplete(context.Background(), "s1")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMaxSteps)

	var re *RunnerError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, RunnerTimeout, re.Kind)
	assert.Equal(t, 3, re.Step)
}

func TestRunner_StepTimeout(t *testing.T) {
	compiled, err := NewGraph().
		AddNodeFunc("slow", func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			time.Sleep(150 * time.Millisecond)
			return state.NewPartial(), nil
		}).
		SetEntry("slow").
		AddEdge(Custom("slow"), End).
		Compile()
	require.NoError(t, err)

	cfg := config.Default()
	cfg.StepTimeout = 30 * time.Millisecond
	cfg.GracePeriod = 500 * time.Millisecond
	r := NewRunner(compiled, WithLogger(discardLogger()), WithConfig(cfg))
	require.NoError(t, r.CreateSession("s1", nil))

	_, err = r.RunUntilComplete(context.Background(), "s1")
	require.Error(t, err)

	var re *RunnerError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, RunnerTimeout, re.Kind)

	status, _ := r.Status("s1")
	assert.Equal(t, StatusFailed, status)
}

func TestRunner_AbortDuringRun(t *testing.T) {
	started := make(chan struct{})
	compiled, err := NewGraph().
		AddNodeFunc("block", func(ctx context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			close(started)
			<-ctx.Done()
			return state.NodePartial{}, ctx.Err()
		}).
		SetEntry("block").
		AddEdge(Custom("block"), End).
		Compile()
	require.NoError(t, err)

	r := NewRunner(compiled, WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", nil))

	errCh := make(chan error, 1)
	go func() {
		_, err := r.RunUntilComplete(context.Background(), "s1")
		errCh <- err
	}()

	<-started
	require.NoError(t, r.Abort("s1"))

	select {
	case err := <-errCh:
		var re *RunnerError
		require.ErrorAs(t, err, &re)
		assert.Equal(t, RunnerCancelled, re.Kind)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after abort")
	}

	status, _ := r.Status("s1")
	assert.Equal(t, StatusAborted, status)
}

func TestRunner_AbortIdleSession(t *testing.T) {
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", nil))
	require.NoError(t, r.Abort("s1"))

	status, _ := r.Status("s1")
	assert.Equal(t, StatusAborted, status)

	// Aborting a terminal session is a no-op.
	require.NoError(t, r.Abort("s1"))

	_, err := r.RunUntilComplete(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

func TestRunner_AutosaveCheckpoints(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	require.NoError(t, r.CreateSession("s1", state.NewWithUserMessage("hi")))

	_, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)

	cp, err := store.LoadLatest(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, cp.Step)
	assert.Equal(t, []string{"hello"}, cp.RanNodes)
	assert.Equal(t, []string{"Custom:hello"}, cp.Frontier)
	assert.Equal(t, []string{state.ChannelMessages}, cp.UpdatedChannels)
	assert.Len(t, cp.State.Messages.Items, 2)

	v, ok := cp.VersionsSeen.Seen("hello", state.ChannelMessages)
	require.True(t, ok)
	assert.Equal(t, uint64(1), v)
}

func TestRunner_TerminalFlushWithoutAutosave(t *testing.T) {
	store := checkpoint.NewMemoryStore()
	cfg := config.Default()
	cfg.AutosaveEveryStep = false
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()), WithCheckpointer(store), WithConfig(cfg))
	require.NoError(t, r.CreateSession("s1", nil))

	_, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)

	cp, err := store.LoadLatest(context.Background(), "s1")
	require.NoError(t, err)
	assert.Contains(t, cp.Frontier, End.String())

	// Resuming a terminal checkpoint lands the session in Finished.
	r2 := NewRunner(greetGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	require.NoError(t, r2.Resume(context.Background(), "s1"))
	status, _ := r2.Status("s1")
	assert.Equal(t, StatusFinished, status)
	_, err = r2.RunUntilComplete(context.Background(), "s1")
	assert.ErrorIs(t, err, ErrSessionTerminal)
}

// multiStepGraph builds a three-stage pipeline for resume tests.
func multiStepGraph(t *testing.T) *CompiledGraph {
	t.Helper()
	stage := func(name string) NodeFunc {
		return func(_ context.Context, _ state.Snapshot, _ NodeContext) (state.NodePartial, error) {
			return state.NewPartial().WithMessages(message.Assistant(name + " done")), nil
		}
	}
	compiled, err := NewGraph().
		AddNodeFunc("extract", stage("extract")).
		AddNodeFunc("transform", stage("transform")).
		AddNodeFunc("load", stage("load")).
		SetEntry("extract").
		AddEdge(Custom("extract"), Custom("transform")).
		AddEdge(Custom("transform"), Custom("load")).
		AddEdge(Custom("load"), End).
		Compile()
	require.NoError(t, err)
	return compiled
}

func TestRunner_ResumeMatchesUninterruptedRun(t *testing.T) {
	ctx := context.Background()
	store := checkpoint.NewMemoryStore()

	// Reference: an uninterrupted run.
	ref := NewRunner(multiStepGraph(t), WithLogger(discardLogger()))
	require.NoError(t, ref.CreateSession("ref", state.NewWithUserMessage("start")))
	want, err := ref.RunUntilComplete(ctx, "ref")
	require.NoError(t, err)

	// Interrupted: two supersteps, then a fresh runner resumes from the
	// checkpoint as if the process restarted.
	r1 := NewRunner(multiStepGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	require.NoError(t, r1.CreateSession("crashy", state.NewWithUserMessage("start")))
	_, err = r1.RunOneSuperstep(ctx, "crashy")
	require.NoError(t, err)
	_, err = r1.RunOneSuperstep(ctx, "crashy")
	require.NoError(t, err)

	r2 := NewRunner(multiStepGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	require.NoError(t, r2.Resume(ctx, "crashy"))
	got, err := r2.RunUntilComplete(ctx, "crashy")
	require.NoError(t, err)

	assert.Equal(t, want.Messages.Items, got.Messages.Items)
	assert.Equal(t, want.Messages.Version, got.Messages.Version)
	assert.Equal(t, want.Errors.Version, got.Errors.Version)
	assert.Equal(t, want.Extras.Version, got.Extras.Version)
}

func TestRunner_ResumeFromSQLite(t *testing.T) {
	ctx := context.Background()
	store, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "resume.db"))
	require.NoError(t, err)
	defer store.Close()

	r1 := NewRunner(multiStepGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	require.NoError(t, r1.CreateSession("s1", state.NewWithUserMessage("start")))
	_, err = r1.RunOneSuperstep(ctx, "s1")
	require.NoError(t, err)

	r2 := NewRunner(multiStepGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	require.NoError(t, r2.Resume(ctx, "s1"))
	final, err := r2.RunUntilComplete(ctx, "s1")
	require.NoError(t, err)

	require.Len(t, final.Messages.Items, 4)
	assert.Equal(t, "load done", final.Messages.Items[3].Content)
}

func TestRunner_ResumeRequiresStore(t *testing.T) {
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()))
	assert.Error(t, r.Resume(context.Background(), "s1"))

	store := checkpoint.NewMemoryStore()
	r = NewRunner(greetGraph(t), WithLogger(discardLogger()), WithCheckpointer(store))
	assert.ErrorIs(t, r.Resume(context.Background(), "ghost"), checkpoint.ErrNotFound)
}

// brokenStore fails every write.
type brokenStore struct{ checkpoint.Store }

func (brokenStore) Save(context.Context, checkpoint.Checkpoint) error {
	return errors.New("disk full")
}

func TestRunner_DegradedOnCheckpointFailure(t *testing.T) {
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()), WithCheckpointer(brokenStore{}))
	require.NoError(t, r.CreateSession("s1", nil))

	final, err := r.RunUntilComplete(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, final.Messages.Items, 1)

	degraded, err := r.Degraded("s1")
	require.NoError(t, err)
	assert.True(t, degraded)
}

func TestRunner_FailOnCheckpointError(t *testing.T) {
	cfg := config.Default()
	cfg.FailOnCheckpointError = true
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()), WithCheckpointer(brokenStore{}), WithConfig(cfg))
	require.NoError(t, r.CreateSession("s1", nil))

	_, err := r.RunUntilComplete(context.Background(), "s1")
	require.Error(t, err)

	var re *RunnerError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, RunnerCheckpointFailed, re.Kind)
	assert.True(t, strings.Contains(re.Err.Error(), "disk full"))
}

func TestRunner_StepReportShape(t *testing.T) {
	r := NewRunner(greetGraph(t), WithLogger(discardLogger()))
	require.NoError(t, r.CreateSession("s1", state.NewWithUserMessage("hi")))

	report, err := r.RunOneSuperstep(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", report.SessionID)
	assert.Equal(t, 1, report.Step)
	assert.Equal(t, []string{"hello"}, report.Ran)
	assert.Equal(t, []string{state.ChannelMessages}, report.UpdatedChannels)
	assert.Equal(t, uint64(2), report.ChannelVersions[state.ChannelMessages])
	assert.False(t, report.Terminal)

	status, _ := r.Status("s1")
	assert.Equal(t, StatusIdle, status)

	report, err = r.RunOneSuperstep(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, report.Terminal)

	status, _ = r.Status("s1")
	assert.Equal(t, StatusFinished, status)
}
