package weavegraph

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/event"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/observability"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// nodeFailure pairs a failed node with its fatal error.
type nodeFailure struct {
	NodeID string
	Err    error
}

// stepOutcome is the raw result of one superstep fan-out, before the
// barrier. Ran and Skipped partition the frontier; Partials holds the
// output of every node that completed successfully.
type stepOutcome struct {
	Ran       []string
	Skipped   []string
	Partials  map[string]state.NodePartial
	Failures  []nodeFailure
	Cancelled bool
}

// nodeResult is one node task's report back to the collector.
type nodeResult struct {
	id      string
	partial state.NodePartial
	err     error
}

// scheduler executes single supersteps: it filters the frontier against the
// versions-seen map, fans the ran set out under a bounded semaphore, and
// collects the partials. It never touches shared state; the barrier does.
type scheduler struct {
	graph   *CompiledGraph
	limit   int
	grace   time.Duration
	bus     *event.Bus
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
}

// shouldRun reports whether a frontier node has fresh input: it has never
// run, or at least one channel advanced past the version it last observed.
func shouldRun(id string, versions map[string]uint64, seen state.VersionsSeen) bool {
	if !seen.HasRun(id) {
		return true
	}
	for ch, v := range versions {
		last, ok := seen.Seen(id, ch)
		if !ok || v > last {
			return true
		}
	}
	return false
}

// run executes one superstep. All spawned tasks share snap by value (slice
// headers only); results arriving after cancellation are discarded along
// with the rest of the cancelled outcome.
func (s *scheduler) run(ctx context.Context, sessionID string, step int, frontier []string, snap state.Snapshot, seen state.VersionsSeen) stepOutcome {
	out := stepOutcome{Partials: make(map[string]state.NodePartial)}
	versions := snap.ChannelVersions()

	ids := make([]string, len(frontier))
	copy(ids, frontier)
	sort.Strings(ids)

	for _, id := range ids {
		if shouldRun(id, versions, seen) {
			out.Ran = append(out.Ran, id)
		} else {
			out.Skipped = append(out.Skipped, id)
		}
	}
	if len(out.Ran) == 0 {
		return out
	}

	sem := make(chan struct{}, s.limit)
	results := make(chan nodeResult, len(out.Ran))
	var wg sync.WaitGroup

	spawned := 0
	for _, id := range out.Ran {
		select {
		case <-ctx.Done():
			out.Cancelled = true
		case sem <- struct{}{}:
		}
		if out.Cancelled {
			break
		}
		spawned++
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			results <- s.execute(ctx, sessionID, step, id, snap)
		}(id)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	if !out.Cancelled {
		select {
		case <-done:
		case <-ctx.Done():
			out.Cancelled = true
		}
	}
	if out.Cancelled {
		select {
		case <-done:
		case <-time.After(s.grace):
			s.logger.Warn("node tasks still running after grace period, orphaning",
				slog.String("session_id", sessionID),
				slog.Int("step", step),
			)
		}
		// Cancelled partials are never checkpointed; drop them.
		out.Partials = map[string]state.NodePartial{}
		return out
	}

	for i := 0; i < spawned; i++ {
		r := <-results
		if r.err != nil {
			out.Failures = append(out.Failures, nodeFailure{NodeID: r.id, Err: r.err})
			continue
		}
		out.Partials[r.id] = r.partial
	}
	sort.Slice(out.Failures, func(i, j int) bool {
		return out.Failures[i].NodeID < out.Failures[j].NodeID
	})
	return out
}

// execute runs a single node with panic recovery, span, metrics, and
// lifecycle events.
func (s *scheduler) execute(ctx context.Context, sessionID string, step int, id string, snap state.Snapshot) (res nodeResult) {
	res.id = id
	node, ok := s.graph.getNode(id)
	if !ok {
		res.err = InternalError(fmt.Errorf("%w: %s", ErrUnknownNode, id))
		return res
	}

	nodeCtx, span := s.spans.StartNodeSpan(ctx, id)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res.err = InternalError(&PanicError{
				NodeID: id,
				Value:  r,
				Stack:  string(debug.Stack()),
			})
			observability.LogNodeError(s.logger, sessionID, id, step, res.err)
		}
		s.metrics.RecordNodeExecution(nodeCtx, id, time.Since(start), res.err)
		s.spans.EndSpanWithError(span, res.err)
	}()

	if s.bus != nil {
		s.bus.Publish(event.NewNode(sessionID, id, step, event.PhaseStart))
	}
	observability.LogNodeStart(s.logger, sessionID, id, step)

	nc := NodeContext{SessionID: sessionID, NodeID: id, Step: step, bus: s.bus}
	partial, err := node.Run(nodeCtx, snap, nc)
	if err != nil {
		res.err = err
		observability.LogNodeError(s.logger, sessionID, id, step, err)
		return res
	}

	res.partial = partial
	observability.LogNodeComplete(s.logger, sessionID, id, step, float64(time.Since(start).Milliseconds()))
	if s.bus != nil {
		s.bus.Publish(event.NewNode(sessionID, id, step, event.PhaseComplete))
	}
	return res
}
