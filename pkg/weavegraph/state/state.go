// Package state holds the versioned shared state of a weavegraph session:
// the default channels (messages, errors, extras), immutable snapshots handed
// to concurrent nodes, node output fragments, and the versions-seen map used
// by the scheduler to skip nodes that have observed no new data.
package state

import (
	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
)

// Default channel names. Custom reducers may be registered under these names
// to replace the built-in merge behavior.
const (
	ChannelMessages = "messages"
	ChannelErrors   = "errors"
	ChannelExtras   = "extras"
)

// DefaultChannels lists the channel names present in every VersionedState,
// in canonical order.
var DefaultChannels = []string{ChannelMessages, ChannelErrors, ChannelExtras}

// Channel is a single ordered slot in shared state with a monotonically
// increasing version counter. The version is bumped only at barrier
// boundaries, and only when the contents actually changed.
type Channel[T any] struct {
	Items   []T    `json:"items"`
	Version uint64 `json:"version"`
}

// Append adds items to the channel without touching the version.
// Version bumps are the barrier's job.
func (c *Channel[T]) Append(items ...T) {
	c.Items = append(c.Items, items...)
}

// Len returns the number of items in the channel.
func (c *Channel[T]) Len() int { return len(c.Items) }

// MapChannel is the extras channel: a string-keyed map of opaque JSON-like
// values with last-writer-wins merge semantics.
type MapChannel struct {
	Values  map[string]any `json:"values"`
	Version uint64         `json:"version"`
}

// Set stores a value without touching the version.
func (c *MapChannel) Set(key string, value any) {
	if c.Values == nil {
		c.Values = make(map[string]any)
	}
	c.Values[key] = value
}

// VersionedState is the full shared state for one session. It is owned by
// the runner and mutated only inside the barrier; during a superstep every
// node sees the same immutable Snapshot.
type VersionedState struct {
	Messages Channel[message.Message]    `json:"messages"`
	Errors   Channel[message.ErrorEvent] `json:"errors"`
	Extras   MapChannel                  `json:"extras"`
}

// New returns an empty state with all channel versions at zero.
func New() *VersionedState {
	return &VersionedState{
		Extras: MapChannel{Values: make(map[string]any)},
	}
}

// NewWithMessages returns a state seeded with the given messages. Seeding
// counts as the initial write: the messages version starts at 1 when any
// message is supplied.
func NewWithMessages(msgs ...message.Message) *VersionedState {
	s := New()
	if len(msgs) > 0 {
		s.Messages.Append(msgs...)
		s.Messages.Version = 1
	}
	return s
}

// NewWithUserMessage is shorthand for seeding a session with a single user
// message, the common entry point for chat-style workflows.
func NewWithUserMessage(content string) *VersionedState {
	return NewWithMessages(message.User(content))
}

// Snapshot produces a deep-copied, immutable view of the state. All nodes of
// a superstep share one snapshot; mutating the live state afterwards does not
// leak into it.
func (s *VersionedState) Snapshot() Snapshot {
	snap := Snapshot{
		Messages:        make([]message.Message, len(s.Messages.Items)),
		MessagesVersion: s.Messages.Version,
		Errors:          make([]message.ErrorEvent, len(s.Errors.Items)),
		ErrorsVersion:   s.Errors.Version,
		Extras:          make(map[string]any, len(s.Extras.Values)),
		ExtrasVersion:   s.Extras.Version,
	}
	copy(snap.Messages, s.Messages.Items)
	copy(snap.Errors, s.Errors.Items)
	for k, v := range s.Extras.Values {
		snap.Extras[k] = v
	}
	return snap
}

// Clone deep-copies the state itself. Used when seeding sessions so the
// caller's value cannot alias runner-owned memory.
func (s *VersionedState) Clone() *VersionedState {
	c := &VersionedState{
		Messages: Channel[message.Message]{
			Items:   make([]message.Message, len(s.Messages.Items)),
			Version: s.Messages.Version,
		},
		Errors: Channel[message.ErrorEvent]{
			Items:   make([]message.ErrorEvent, len(s.Errors.Items)),
			Version: s.Errors.Version,
		},
		Extras: MapChannel{
			Values:  make(map[string]any, len(s.Extras.Values)),
			Version: s.Extras.Version,
		},
	}
	copy(c.Messages.Items, s.Messages.Items)
	copy(c.Errors.Items, s.Errors.Items)
	for k, v := range s.Extras.Values {
		c.Extras.Values[k] = v
	}
	return c
}

// ChannelVersions returns the current version of every default channel.
func (s *VersionedState) ChannelVersions() map[string]uint64 {
	return map[string]uint64{
		ChannelMessages: s.Messages.Version,
		ChannelErrors:   s.Errors.Version,
		ChannelExtras:   s.Extras.Version,
	}
}

// Snapshot is the read-only view of a VersionedState handed to nodes and
// conditional-edge predicates. It is a value type: passing it around copies
// only slice headers, and the invariant that nodes never mutate it is part
// of the node contract.
type Snapshot struct {
	Messages        []message.Message
	MessagesVersion uint64
	Errors          []message.ErrorEvent
	ErrorsVersion   uint64
	Extras          map[string]any
	ExtrasVersion   uint64
}

// ChannelVersions returns the version of every default channel at snapshot
// time. The scheduler compares these against versions-seen to decide which
// frontier nodes actually run.
func (s Snapshot) ChannelVersions() map[string]uint64 {
	return map[string]uint64{
		ChannelMessages: s.MessagesVersion,
		ChannelErrors:   s.ErrorsVersion,
		ChannelExtras:   s.ExtrasVersion,
	}
}

// LastMessage returns the most recent message and true, or a zero message
// and false if the channel is empty.
func (s Snapshot) LastMessage() (message.Message, bool) {
	if len(s.Messages) == 0 {
		return message.Message{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Extra returns the extras value for key.
func (s Snapshot) Extra(key string) (any, bool) {
	v, ok := s.Extras[key]
	return v, ok
}
