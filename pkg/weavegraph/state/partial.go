package state

import (
	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
)

// NodePartial is a node's output fragment: its contribution to zero or more
// channels. A nil/empty field means "no contribution to that channel".
// Partials are produced exclusively by node tasks and consumed exactly once
// by the barrier.
//
// Construction is fluent:
//
//	p := state.NewPartial().
//	    WithMessages(message.Assistant("done")).
//	    WithExtra("score", 0.9)
type NodePartial struct {
	Messages []message.Message    `json:"messages,omitempty"`
	Errors   []message.ErrorEvent `json:"errors,omitempty"`
	Extras   map[string]any       `json:"extras,omitempty"`
}

// NewPartial returns an empty partial contributing to no channel.
func NewPartial() NodePartial {
	return NodePartial{}
}

// WithMessages returns a copy of the partial with messages appended to its
// messages contribution.
func (p NodePartial) WithMessages(msgs ...message.Message) NodePartial {
	out := make([]message.Message, 0, len(p.Messages)+len(msgs))
	out = append(out, p.Messages...)
	out = append(out, msgs...)
	p.Messages = out
	return p
}

// WithErrors returns a copy of the partial with error events appended to its
// errors contribution.
func (p NodePartial) WithErrors(evts ...message.ErrorEvent) NodePartial {
	out := make([]message.ErrorEvent, 0, len(p.Errors)+len(evts))
	out = append(out, p.Errors...)
	out = append(out, evts...)
	p.Errors = out
	return p
}

// WithExtra returns a copy of the partial with the extras key set.
func (p NodePartial) WithExtra(key string, value any) NodePartial {
	extras := make(map[string]any, len(p.Extras)+1)
	for k, v := range p.Extras {
		extras[k] = v
	}
	extras[key] = value
	p.Extras = extras
	return p
}

// IsEmpty reports whether the partial contributes to no channel at all.
// A step in which every ran node returns an empty partial bumps no versions.
func (p NodePartial) IsEmpty() bool {
	return len(p.Messages) == 0 && len(p.Errors) == 0 && len(p.Extras) == 0
}
