package event

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

// StdoutSink writes a human-readable line per event. The writer defaults to
// os.Stdout.
type StdoutSink struct {
	W io.Writer
}

// Name implements Sink.
func (s *StdoutSink) Name() string { return "stdout" }

// Handle implements Sink.
func (s *StdoutSink) Handle(e *Event) error {
	w := s.W
	if w == nil {
		w = os.Stdout
	}
	_, err := fmt.Fprintln(w, formatEvent(e))
	return err
}

// MemorySink captures events for test assertions.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

// NewMemorySink creates an empty capture sink.
func NewMemorySink() *MemorySink { return &MemorySink{} }

// Name implements Sink.
func (s *MemorySink) Name() string { return "memory" }

// Handle implements Sink.
func (s *MemorySink) Handle(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *e)
	return nil
}

// Events returns a copy of everything captured so far.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Len returns the number of captured events.
func (s *MemorySink) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// ChannelSink forwards events into a user-owned channel. Sends are
// non-blocking: a full channel yields a handle error, which the bus counts
// against the sink rather than stalling the pipeline.
type ChannelSink struct {
	C chan<- Event
}

// NewChannelSink wraps ch as a sink.
func NewChannelSink(ch chan<- Event) *ChannelSink { return &ChannelSink{C: ch} }

// Name implements Sink.
func (s *ChannelSink) Name() string { return "channel" }

// Handle implements Sink.
func (s *ChannelSink) Handle(e *Event) error {
	select {
	case s.C <- *e:
		return nil
	default:
		return fmt.Errorf("channel sink full, event %s dropped", e.ID)
	}
}

// JSONLSink writes one JSON object per line, for machine consumption.
type JSONLSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLSink creates a JSON-Lines sink over w.
func NewJSONLSink(w io.Writer) *JSONLSink {
	return &JSONLSink{enc: json.NewEncoder(w)}
}

// Name implements Sink.
func (s *JSONLSink) Name() string { return "jsonl" }

// Handle implements Sink.
func (s *JSONLSink) Handle(e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}
