package event

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"
)

// Sink consumes events off the bus, typically to forward them somewhere
// durable or human-visible. Handle errors are counted per sink and surfaced
// on the diagnostics stream; they never abort the pipeline.
type Sink interface {
	// Handle processes one event.
	Handle(e *Event) error
	// Name labels the sink in health snapshots and diagnostics.
	Name() string
}

// SinkFailure is one record on the diagnostics stream.
type SinkFailure struct {
	Sink       string    `json:"sink"`
	Occurrence uint64    `json:"occurrence"`
	Error      string    `json:"error"`
	When       time.Time `json:"when"`
}

// SinkHealth is a point-in-time view of one sink's failure history.
type SinkHealth struct {
	Sink        string    `json:"sink"`
	ErrorCount  uint64    `json:"error_count"`
	LastError   string    `json:"last_error,omitempty"`
	LastErrorAt time.Time `json:"last_error_at,omitzero"`
}

// sinkState tracks failures for one attached sink.
type sinkState struct {
	mu          sync.Mutex
	errorCount  uint64
	lastError   string
	lastErrorAt time.Time
}

// AttachSink subscribes the sink to the bus on its own goroutine. The sink
// sees every event in publish order (minus any it lags past); lag markers
// are not handed to sinks.
func (b *Bus) AttachSink(s Sink) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	st := &sinkState{}
	b.sinks[s.Name()] = st
	b.mu.Unlock()

	sub := b.Subscribe()
	b.sinkWG.Add(1)
	go func() {
		defer b.sinkWG.Done()
		for e := range sub.ch {
			if e.IsLagMarker() {
				continue
			}
			if err := s.Handle(&e); err != nil {
				b.recordSinkFailure(s.Name(), st, err)
			}
		}
	}()
}

// recordSinkFailure counts a sink error and emits a diagnostics record.
func (b *Bus) recordSinkFailure(name string, st *sinkState, err error) {
	st.mu.Lock()
	st.errorCount++
	st.lastError = err.Error()
	st.lastErrorAt = time.Now().UTC()
	occurrence := st.errorCount
	st.mu.Unlock()

	b.logger.Warn("event sink failed",
		slog.String("sink", name),
		slog.Uint64("occurrence", occurrence),
		slog.String("error", err.Error()),
	)

	select {
	case b.diag <- SinkFailure{
		Sink:       name,
		Occurrence: occurrence,
		Error:      err.Error(),
		When:       time.Now().UTC(),
	}:
	default:
		// Diagnostics consumer is behind; drop rather than block.
	}
}

// SinkHealthSnapshot returns the current health of every attached sink,
// sorted by name.
func (b *Bus) SinkHealthSnapshot() []SinkHealth {
	b.mu.RLock()
	names := make([]string, 0, len(b.sinks))
	states := make(map[string]*sinkState, len(b.sinks))
	for name, st := range b.sinks {
		names = append(names, name)
		states[name] = st
	}
	b.mu.RUnlock()

	sort.Strings(names)
	out := make([]SinkHealth, 0, len(names))
	for _, name := range names {
		st := states[name]
		st.mu.Lock()
		out = append(out, SinkHealth{
			Sink:        name,
			ErrorCount:  st.errorCount,
			LastError:   st.lastError,
			LastErrorAt: st.lastErrorAt,
		})
		st.mu.Unlock()
	}
	return out
}

// formatEvent renders one event for human-readable sinks.
func formatEvent(e *Event) string {
	switch e.Kind {
	case KindNode:
		return fmt.Sprintf("[%s] step=%d node=%s %s", e.Kind, e.Step, e.NodeID, e.Phase)
	case KindDiagnostic:
		return fmt.Sprintf("[%s] %s: %s", e.Kind, e.Scope, e.Message)
	default:
		return fmt.Sprintf("[%s] session=%s node=%s", e.Kind, e.SessionID, e.NodeID)
	}
}
