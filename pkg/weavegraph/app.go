package weavegraph

import (
	"context"

	"github.com/google/uuid"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/event"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// App is the one-shot entry point over a compiled graph: it owns an event
// bus and a runner and exposes invoke-style helpers that create a session,
// drive it to completion, and hand back the final state or a live event
// stream.
type App struct {
	runner  *Runner
	bus     *event.Bus
	ownsBus bool
}

// NewApp wires a compiled graph into an App. Unless WithBus supplies one,
// the app creates and owns an event bus sized by the runtime configuration;
// Close shuts an owned bus down.
func NewApp(graph *CompiledGraph, opts ...Option) *App {
	o := applyOptions(opts)

	bus := o.bus
	ownsBus := false
	if bus == nil {
		bus = event.NewBus(
			event.WithCapacity(o.cfg.EventBusCapacity),
			event.WithLogger(o.logger),
		)
		ownsBus = true
		opts = append(opts, WithBus(bus))
	}

	return &App{
		runner:  NewRunner(graph, opts...),
		bus:     bus,
		ownsBus: ownsBus,
	}
}

// Runner exposes the underlying session runner for stepping, resume, and
// abort.
func (a *App) Runner() *Runner { return a.runner }

// Bus exposes the event bus for sink attachment and health inspection.
func (a *App) Bus() *event.Bus { return a.bus }

// EventStream subscribes to the app's event bus.
func (a *App) EventStream() *event.Subscription {
	return a.bus.Subscribe()
}

// Close releases the app's resources. Only a bus the app created itself is
// closed; an injected bus stays with its owner.
func (a *App) Close() {
	if a.ownsBus {
		a.bus.Close()
	}
}

// Invoke runs the graph once: it creates a fresh session with a generated
// id, drives it to completion, and returns the final state.
func (a *App) Invoke(ctx context.Context, initial *state.VersionedState) (*state.VersionedState, error) {
	sessionID := uuid.New().String()
	if err := a.runner.CreateSession(sessionID, initial); err != nil {
		return nil, err
	}
	return a.runner.RunUntilComplete(ctx, sessionID)
}

// InvokeStreaming starts the run in a background goroutine and returns a
// handle plus a live event subscription. The subscription delivers every
// event of the run and terminates with the stream-end sentinel; use
// Join to collect the final state.
func (a *App) InvokeStreaming(ctx context.Context, initial *state.VersionedState) (*WorkflowHandle, *event.Subscription, error) {
	sessionID := uuid.New().String()
	if err := a.runner.CreateSession(sessionID, initial); err != nil {
		return nil, nil, err
	}

	sub := a.bus.Subscribe()
	h := &WorkflowHandle{
		SessionID: sessionID,
		runner:    a.runner,
		sub:       sub,
		done:      make(chan struct{}),
	}
	go func() {
		defer close(h.done)
		h.final, h.err = a.runner.RunUntilComplete(ctx, sessionID)
	}()
	return h, sub, nil
}

// InvokeWithChannel is InvokeStreaming with the subscription unwrapped to a
// plain receive channel for select-based consumers.
func (a *App) InvokeWithChannel(ctx context.Context, initial *state.VersionedState) (*WorkflowHandle, <-chan event.Event, error) {
	h, sub, err := a.InvokeStreaming(ctx, initial)
	if err != nil {
		return nil, nil, err
	}
	return h, sub.Events(), nil
}

// InvokeWithSinks attaches the sinks to the bus, then runs synchronously
// like Invoke. Sinks keep receiving events from later runs on the same app.
func (a *App) InvokeWithSinks(ctx context.Context, initial *state.VersionedState, sinks ...event.Sink) (*state.VersionedState, error) {
	for _, s := range sinks {
		a.bus.AttachSink(s)
	}
	return a.Invoke(ctx, initial)
}

// WorkflowHandle tracks a run started by InvokeStreaming.
type WorkflowHandle struct {
	// SessionID identifies the run's session.
	SessionID string

	runner *Runner
	sub    *event.Subscription
	done   chan struct{}
	final  *state.VersionedState
	err    error
}

// Join waits for the run to finish and returns its result. The event
// subscription is closed on return.
func (h *WorkflowHandle) Join(ctx context.Context) (*state.VersionedState, error) {
	select {
	case <-h.done:
		h.sub.Close()
		return h.final, h.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Abort requests cancellation of the run. Join still returns afterwards,
// with the cancellation error.
func (h *WorkflowHandle) Abort() {
	_ = h.runner.Abort(h.SessionID)
}

// Done exposes completion for select-based waiting.
func (h *WorkflowHandle) Done() <-chan struct{} { return h.done }
