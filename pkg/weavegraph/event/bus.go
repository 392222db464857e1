package event

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultCapacity is the per-subscriber buffer size when none is configured.
const DefaultCapacity = 1024

// diagnosticsBuffer bounds the sink-failure stream. It is deliberately much
// smaller than the event buffer: consumers that care about sink health read
// it promptly, and the bus never blocks on it.
const diagnosticsBuffer = 64

// Bus is a bounded broadcast hub. Publishing never blocks: each subscriber
// owns a buffered channel, and a subscriber that falls behind loses events
// and receives a lag marker on its next delivery instead of back-pressuring
// the pipeline.
//
// Sinks attach via AttachSink and run on their own goroutines; a failing
// sink is counted and reported on the diagnostics stream but never aborts
// the workflow.
type Bus struct {
	capacity int
	logger   *slog.Logger

	mu     sync.RWMutex
	subs   map[int64]*Subscription
	sinks  map[string]*sinkState
	closed bool

	nextID  atomic.Int64
	dropped atomic.Uint64

	diag chan SinkFailure

	sinkWG sync.WaitGroup
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithCapacity sets the per-subscriber buffer size. Values <= 0 keep the
// default.
func WithCapacity(n int) BusOption {
	return func(b *Bus) {
		if n > 0 {
			b.capacity = n
		}
	}
}

// WithLogger sets the logger used for drop warnings and sink failures.
func WithLogger(logger *slog.Logger) BusOption {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBus creates a broadcast bus.
func NewBus(opts ...BusOption) *Bus {
	b := &Bus{
		capacity: DefaultCapacity,
		logger:   slog.Default(),
		subs:     make(map[int64]*Subscription),
		sinks:    make(map[string]*sinkState),
		diag:     make(chan SinkFailure, diagnosticsBuffer),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish fans the event out to every subscriber. It never blocks; slow
// subscribers drop the event and are marked lagged.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for _, sub := range b.subs {
		b.deliver(sub, e)
	}
}

// deliver pushes an event to one subscriber, injecting a lag marker first if
// the subscriber previously dropped events.
func (b *Bus) deliver(sub *Subscription, e Event) {
	if missed := sub.lagged.Load(); missed > 0 {
		select {
		case sub.ch <- lagMarker(missed):
			sub.lagged.Store(0)
		default:
			// Still full; the real event below will count as dropped too.
		}
	}
	select {
	case sub.ch <- e:
	default:
		sub.lagged.Add(1)
		b.dropped.Add(1)
		b.logger.Warn("event dropped for slow subscriber",
			slog.String("event_id", e.ID),
			slog.String("kind", string(e.Kind)),
		)
	}
}

// Dropped returns the total number of events dropped across all subscribers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Subscribe registers a new subscriber receiving every subsequent event.
func (b *Bus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Subscription{
		id:  b.nextID.Add(1),
		ch:  make(chan Event, b.capacity),
		bus: b,
	}
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.id] = sub
	return sub
}

// Diagnostics returns the sink-failure stream. The channel is bounded;
// records are dropped, not blocked on, when nobody reads it.
func (b *Bus) Diagnostics() <-chan SinkFailure {
	return b.diag
}

// Close shuts the bus down: subscriber channels are closed after all prior
// publishes, sink goroutines drain and exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subs
	b.subs = make(map[int64]*Subscription)
	b.mu.Unlock()

	for _, sub := range subs {
		close(sub.ch)
	}
	b.sinkWG.Wait()
	close(b.diag)
}

// Subscription is one consumer's view of the bus. Events arrive in publish
// order; gaps caused by lag are announced with lag markers.
type Subscription struct {
	id     int64
	ch     chan Event
	bus    *Bus
	lagged atomic.Uint64
	closed atomic.Bool
}

// Events exposes the raw channel for select-based consumption. Lag markers
// are delivered on this channel; use Next to have them skipped.
func (s *Subscription) Events() <-chan Event { return s.ch }

// Next polls for the next event, skipping lag markers, until the timeout
// elapses or the subscription ends. Returns false when nothing arrived.
func (s *Subscription) Next(timeout time.Duration) (Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		select {
		case e, ok := <-s.ch:
			if !ok {
				return Event{}, false
			}
			if e.IsLagMarker() {
				continue
			}
			return e, true
		case <-deadline.C:
			return Event{}, false
		}
	}
}

// Each blocks, invoking fn for every event in order, until fn returns false,
// the stream-end sentinel is consumed, or the subscription ends. The sentinel
// is passed to fn before iteration stops.
func (s *Subscription) Each(fn func(Event) bool) {
	for e := range s.ch {
		if !fn(e) {
			return
		}
		if e.IsStreamEnd() {
			return
		}
	}
}

// Close unsubscribes. Pending buffered events are discarded.
func (s *Subscription) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.bus.mu.Lock()
	_, present := s.bus.subs[s.id]
	if present {
		delete(s.bus.subs, s.id)
	}
	s.bus.mu.Unlock()
	if present {
		close(s.ch)
	}
}
