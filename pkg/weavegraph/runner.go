package weavegraph

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/checkpoint"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/config"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/event"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/observability"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// SessionStatus is a session's position in its lifecycle.
type SessionStatus string

// Session statuses. Finished, Failed, and Aborted are terminal.
const (
	StatusIdle     SessionStatus = "idle"
	StatusRunning  SessionStatus = "running"
	StatusFinished SessionStatus = "finished"
	StatusFailed   SessionStatus = "failed"
	StatusAborted  SessionStatus = "aborted"
)

// IsTerminal reports whether the status admits no further steps.
func (s SessionStatus) IsTerminal() bool {
	return s == StatusFinished || s == StatusFailed || s == StatusAborted
}

// session is the runner's per-session bookkeeping. runMu serializes step
// execution and checkpointing; mu guards the mutable fields for concurrent
// Status/Abort callers.
type session struct {
	id string

	runMu sync.Mutex

	mu             sync.Mutex
	status         SessionStatus
	state          *state.VersionedState
	seen           state.VersionsSeen
	step           int
	started        bool
	justRan        []string
	frontier       []string
	degraded       bool
	streamEnded    bool
	abortRequested bool
	cancel         context.CancelFunc
}

// Runner drives sessions of a compiled graph through the superstep loop:
// route, filter, fan out, barrier, checkpoint. Sessions are fully isolated
// from each other; a Runner may drive any number of them concurrently.
type Runner struct {
	graph   *CompiledGraph
	name    string
	cfg     config.RuntimeConfig
	store   checkpoint.Store
	bus     *event.Bus
	logger  *slog.Logger
	metrics observability.MetricsRecorder
	spans   observability.SpanManager
	sched   *scheduler

	mu       sync.Mutex
	sessions map[string]*session
}

// NewRunner creates a runner for the compiled graph.
func NewRunner(graph *CompiledGraph, opts ...Option) *Runner {
	o := applyOptions(opts)
	r := &Runner{
		graph:    graph,
		name:     o.name,
		cfg:      o.cfg,
		store:    o.store,
		bus:      o.bus,
		logger:   o.logger,
		metrics:  o.metrics,
		spans:    o.spans,
		sessions: make(map[string]*session),
	}
	r.sched = &scheduler{
		graph:   graph,
		limit:   o.cfg.ConcurrencyLimit,
		grace:   o.cfg.GracePeriod,
		bus:     o.bus,
		logger:  o.logger,
		metrics: o.metrics,
		spans:   o.spans,
	}
	return r
}

// Config returns the runner's normalized runtime configuration.
func (r *Runner) Config() config.RuntimeConfig { return r.cfg }

// CreateSession registers a new session seeded with a deep copy of the
// initial state. A nil initial state starts empty.
func (r *Runner) CreateSession(sessionID string, initial *state.VersionedState) error {
	if sessionID == "" {
		return fmt.Errorf("session id cannot be empty")
	}

	st := state.New()
	if initial != nil {
		st = initial.Clone()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.sessions[sessionID]; exists {
		return fmt.Errorf("%w: %s", ErrSessionExists, sessionID)
	}
	r.sessions[sessionID] = &session{
		id:     sessionID,
		status: StatusIdle,
		state:  st,
		seen:   state.NewVersionsSeen(),
	}
	return nil
}

// Resume rebuilds a session from its latest checkpoint. The next run
// recomputes the frontier from the checkpointed ran set; routing is
// deterministic, so the continuation matches an uninterrupted run.
func (r *Runner) Resume(ctx context.Context, sessionID string) error {
	if r.store == nil {
		return fmt.Errorf("resume %s: no checkpointer configured", sessionID)
	}

	cp, err := r.store.LoadLatest(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resume %s: %w", sessionID, err)
	}

	frontier, terminal := decodeFrontier(cp.Frontier)

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.sessions[sessionID]; ok {
		existing.mu.Lock()
		running := existing.status == StatusRunning
		existing.mu.Unlock()
		if running {
			return fmt.Errorf("resume %s: session is running", sessionID)
		}
	}

	s := &session{
		id:       sessionID,
		status:   StatusIdle,
		state:    cp.State.Clone(),
		seen:     cp.VersionsSeen.Clone(),
		step:     cp.Step,
		started:  true,
		justRan:  append([]string(nil), cp.RanNodes...),
		frontier: frontier,
	}
	if terminal {
		s.status = StatusFinished
		s.streamEnded = true
	}
	r.sessions[sessionID] = s
	return nil
}

// Abort requests cancellation of a session. A running session's node tasks
// receive cooperative cancellation and are drained up to the grace period;
// an idle session transitions to Aborted immediately.
func (r *Runner) Abort(sessionID string) error {
	s, err := r.get(sessionID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return nil
	}
	s.abortRequested = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.status != StatusRunning {
		s.status = StatusAborted
		r.emitStreamEndLocked(s)
	}
	return nil
}

// Status returns the session's lifecycle status.
func (r *Runner) Status(sessionID string) (SessionStatus, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, nil
}

// State returns a deep copy of the session's current state.
func (r *Runner) State(sessionID string) (*state.VersionedState, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()
	return s.state.Clone(), nil
}

// Degraded reports whether a checkpoint write failed and the session has
// been continuing in memory only.
func (r *Runner) Degraded(sessionID string) (bool, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded, nil
}

// Sessions returns the known session ids, sorted.
func (r *Runner) Sessions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return sortedKeys(r.sessions)
}

// RunUntilComplete drives the session until the router produces End or an
// empty frontier, returning a deep copy of the final state.
func (r *Runner) RunUntilComplete(ctx context.Context, sessionID string) (*state.VersionedState, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return nil, err
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runCtx, err := r.beginRun(ctx, s)
	if err != nil {
		return nil, err
	}

	observability.LogSessionStart(r.logger, sessionID)
	sessCtx, span := r.spans.StartSessionSpan(runCtx, r.name, sessionID)
	start := time.Now()

	var runErr error
	for {
		_, done, err := r.step(sessCtx, s)
		if err != nil {
			runErr = err
			break
		}
		if done {
			break
		}
	}

	r.spans.EndSpanWithError(span, runErr)
	elapsed := time.Since(start)

	s.mu.Lock()
	if runErr != nil {
		if isCancelled(runErr) {
			s.status = StatusAborted
		} else {
			s.status = StatusFailed
		}
	} else {
		s.status = StatusFinished
	}
	s.cancel = nil
	r.emitStreamEndLocked(s)
	finalStep := s.step
	s.mu.Unlock()

	if runErr != nil {
		observability.LogSessionError(r.logger, sessionID, runErr, finalStep)
		r.metrics.RecordSessionRun(sessCtx, false, finalStep, elapsed)
		return nil, runErr
	}
	observability.LogSessionComplete(r.logger, sessionID, finalStep, float64(elapsed.Milliseconds()))
	r.metrics.RecordSessionRun(sessCtx, true, finalStep, elapsed)
	return s.state.Clone(), nil
}

// RunOneSuperstep executes a single superstep and returns its report. Used
// by tests and UI-driven steppers; the session parks back in Idle between
// calls and finishes when the report is terminal.
func (r *Runner) RunOneSuperstep(ctx context.Context, sessionID string) (StepReport, error) {
	s, err := r.get(sessionID)
	if err != nil {
		return StepReport{}, err
	}
	s.runMu.Lock()
	defer s.runMu.Unlock()

	runCtx, err := r.beginRun(ctx, s)
	if err != nil {
		return StepReport{}, err
	}

	report, done, stepErr := r.step(runCtx, s)
	report.SessionID = sessionID

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancel = nil
	if stepErr != nil {
		if isCancelled(stepErr) {
			s.status = StatusAborted
		} else {
			s.status = StatusFailed
		}
		r.emitStreamEndLocked(s)
		return report, stepErr
	}
	if done {
		report.Terminal = true
		s.status = StatusFinished
		r.emitStreamEndLocked(s)
	} else {
		s.status = StatusIdle
	}
	return report, nil
}

// beginRun transitions the session into Running and installs the
// cancellation hook Abort uses.
func (r *Runner) beginRun(ctx context.Context, s *session) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status.IsTerminal() {
		return nil, fmt.Errorf("%w: %s is %s", ErrSessionTerminal, s.id, s.status)
	}
	if s.abortRequested {
		s.status = StatusAborted
		r.emitStreamEndLocked(s)
		return nil, &RunnerError{Kind: RunnerCancelled, SessionID: s.id, Step: s.step, Err: context.Canceled}
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.status = StatusRunning
	return runCtx, nil
}

// step executes one iteration of the superstep loop: route the frontier,
// fan out, commit the barrier, checkpoint, and publish the step diagnostic.
// done is true when the session reached End or ran out of frontier.
func (r *Runner) step(ctx context.Context, s *session) (StepReport, bool, error) {
	if s.step >= r.cfg.MaxSteps {
		return StepReport{}, false, &RunnerError{
			Kind:      RunnerTimeout,
			SessionID: s.id,
			Step:      s.step,
			Err:       fmt.Errorf("%w (%d)", ErrMaxSteps, r.cfg.MaxSteps),
		}
	}

	snap := s.state.Snapshot()

	var frontier []string
	var terminal bool
	if !s.started {
		frontier, terminal = r.graph.EntryFrontier()
		s.started = true
	} else {
		frontier, terminal = r.graph.NextFrontier(snap, s.justRan, func(msg string) {
			r.logger.Warn("router warning", slog.String("session_id", s.id), slog.String("detail", msg))
			r.publishDiagnostic(s.id, s.step, "router", msg)
		})
	}
	s.mu.Lock()
	s.frontier = frontier
	s.mu.Unlock()

	if terminal || len(frontier) == 0 {
		if r.store != nil && !r.cfg.AutosaveEveryStep {
			if err := r.saveCheckpoint(ctx, s, StepReport{Step: s.step, Ran: s.justRan}, frontier, true); err != nil {
				return StepReport{}, false, err
			}
		}
		return StepReport{SessionID: s.id, Step: s.step, Terminal: true, ChannelVersions: s.state.ChannelVersions()}, true, nil
	}

	stepCtx := ctx
	var cancelStep context.CancelFunc
	if r.cfg.StepTimeout > 0 {
		stepCtx, cancelStep = context.WithTimeout(ctx, r.cfg.StepTimeout)
		defer cancelStep()
	}

	stepStart := time.Now()
	outcome := r.sched.run(stepCtx, s.id, s.step, frontier, snap, s.seen)
	if outcome.Cancelled {
		if stepCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return StepReport{}, false, &RunnerError{
				Kind:      RunnerTimeout,
				SessionID: s.id,
				Step:      s.step,
				Err:       fmt.Errorf("superstep exceeded %s", r.cfg.StepTimeout),
			}
		}
		return StepReport{}, false, &RunnerError{
			Kind:      RunnerCancelled,
			SessionID: s.id,
			Step:      s.step,
			Err:       context.Canceled,
		}
	}

	if len(outcome.Failures) > 0 && r.cfg.FailMode == config.FailModeAbort {
		f := outcome.Failures[0]
		return StepReport{}, false, &RunnerError{
			Kind:      RunnerNodeFailed,
			SessionID: s.id,
			NodeID:    f.NodeID,
			Step:      s.step,
			Err:       f.Err,
		}
	}
	for _, f := range outcome.Failures {
		// Continue mode: the fatal error becomes a recoverable ErrorEvent.
		evt := message.NewErrorEvent("node:"+f.NodeID, f.Err.Error())
		outcome.Partials[f.NodeID] = outcome.Partials[f.NodeID].WithErrors(evt)
	}

	barrierStart := time.Now()
	updated, berr := applyBarrier(s.state, outcome.Partials, r.graph.Reducers(), s.seen, outcome.Ran, snap.ChannelVersions())
	if berr != nil {
		return StepReport{}, false, &RunnerError{
			Kind:      RunnerBarrierFailed,
			SessionID: s.id,
			Step:      s.step,
			Err:       berr,
		}
	}
	r.metrics.RecordBarrier(ctx, len(updated), time.Since(barrierStart))

	s.step++
	s.justRan = outcome.Ran

	report := StepReport{
		SessionID:       s.id,
		Step:            s.step,
		Ran:             outcome.Ran,
		Skipped:         outcome.Skipped,
		UpdatedChannels: updated,
		ChannelVersions: s.state.ChannelVersions(),
	}

	if r.store != nil && r.cfg.AutosaveEveryStep {
		if err := r.saveCheckpoint(ctx, s, report, frontier, false); err != nil {
			return report, false, err
		}
	}

	r.metrics.RecordSuperstep(ctx, len(outcome.Ran), len(outcome.Skipped), time.Since(stepStart))
	observability.LogStep(r.logger, s.id, report.Step, len(outcome.Ran), len(outcome.Skipped), updated)
	r.publishDiagnostic(s.id, report.Step, "step",
		fmt.Sprintf("step %d: ran=%d skipped=%d updated=%v", report.Step, len(outcome.Ran), len(outcome.Skipped), updated))

	// The barrier already committed; cancellation arriving now still keeps
	// the checkpointed step.
	if ctx.Err() != nil {
		return report, false, &RunnerError{
			Kind:      RunnerCancelled,
			SessionID: s.id,
			Step:      s.step,
			Err:       context.Canceled,
		}
	}
	return report, false, nil
}

// saveCheckpoint persists the session at the current step boundary. When
// fail_on_checkpoint_error is unset, a write failure only degrades the
// session: later steps proceed in memory.
func (r *Runner) saveCheckpoint(ctx context.Context, s *session, report StepReport, frontier []string, terminal bool) error {
	cp := checkpoint.Checkpoint{
		SessionID:        s.id,
		Step:             s.step,
		State:            *s.state.Clone(),
		Frontier:         encodeFrontier(frontier, terminal),
		VersionsSeen:     s.seen.Clone(),
		RanNodes:         report.Ran,
		SkippedNodes:     report.Skipped,
		UpdatedChannels:  report.UpdatedChannels,
		ConcurrencyLimit: r.cfg.ConcurrencyLimit,
		CreatedAt:        time.Now().UTC(),
	}
	if err := r.store.Save(ctx, cp); err != nil {
		observability.LogCheckpointError(r.logger, s.id, s.step, err)
		if r.cfg.FailOnCheckpointError {
			return &RunnerError{
				Kind:      RunnerCheckpointFailed,
				SessionID: s.id,
				Step:      s.step,
				Err:       err,
			}
		}
		s.mu.Lock()
		s.degraded = true
		s.mu.Unlock()
		r.publishDiagnostic(s.id, s.step, "checkpoint", "checkpoint write failed, continuing in memory: "+err.Error())
		return nil
	}

	observability.LogCheckpoint(r.logger, s.id, s.step)
	if encoded, err := json.Marshal(cp); err == nil {
		r.metrics.RecordCheckpoint(ctx, s.id, int64(len(encoded)))
	}
	return nil
}

// publishDiagnostic emits a scoped diagnostic on the bus, if one is wired.
func (r *Runner) publishDiagnostic(sessionID string, step int, scope, msg string) {
	if r.bus == nil {
		return
	}
	e := event.NewDiagnostic(scope, msg)
	e.SessionID = sessionID
	e.Step = step
	r.bus.Publish(e)
}

// emitStreamEndLocked publishes the stream-end sentinel exactly once per
// session. Callers hold s.mu.
func (r *Runner) emitStreamEndLocked(s *session) {
	if s.streamEnded {
		return
	}
	s.streamEnded = true
	if r.bus != nil {
		r.bus.Publish(event.NewStreamEnd(s.id))
	}
}

// get looks a session up by id.
func (r *Runner) get(sessionID string) (*session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// isCancelled reports whether the run error is a cancellation.
func isCancelled(err error) bool {
	var re *RunnerError
	if errors.As(err, &re) {
		return re.Kind == RunnerCancelled
	}
	return false
}

// encodeFrontier serializes a frontier as canonical node-kind strings,
// appending End when the frontier was terminal.
func encodeFrontier(frontier []string, terminal bool) []string {
	out := make([]string, 0, len(frontier)+1)
	for _, id := range frontier {
		out = append(out, Custom(id).String())
	}
	if terminal {
		out = append(out, End.String())
	}
	return out
}

// decodeFrontier reverses encodeFrontier, tolerating unknown encodings by
// skipping them.
func decodeFrontier(encoded []string) (frontier []string, terminal bool) {
	for _, raw := range encoded {
		kind, err := ParseKind(raw)
		if err != nil {
			continue
		}
		if kind == End {
			terminal = true
			continue
		}
		if kind.IsCustom() {
			frontier = append(frontier, kind.Name())
		}
	}
	return frontier, terminal
}
