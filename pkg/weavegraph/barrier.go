package weavegraph

import (
	"fmt"
	"sort"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/reducer"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// StepReport summarizes one superstep after the barrier committed.
type StepReport struct {
	// SessionID is the session this step belongs to.
	SessionID string `json:"session_id"`
	// Step is the step counter after the barrier (1-based).
	Step int `json:"step"`
	// Ran and Skipped partition the frontier of this step.
	Ran     []string `json:"ran"`
	Skipped []string `json:"skipped"`
	// UpdatedChannels lists the channels whose version was bumped.
	UpdatedChannels []string `json:"updated_channels"`
	// ChannelVersions holds the post-barrier version of every channel.
	ChannelVersions map[string]uint64 `json:"channel_versions"`
	// Terminal is true when the session finished with this report.
	Terminal bool `json:"terminal"`
}

// applyBarrier merges the collected partials into the live state. Node
// contributions are folded per channel in lexicographic node-id order, the
// sole tie-break for colliding writes. A channel's version is bumped by
// exactly 1 iff its reducer reported a change. For every ran node the
// versions-seen map records the channel versions the node observed through
// its snapshot, so a node whose own write advanced a channel stays
// re-runnable when a cycle routes back to it.
//
// Reducer panics and errors are returned to the caller; the runner treats
// them as fatal.
func applyBarrier(st *state.VersionedState, partials map[string]state.NodePartial, reg *reducer.Registry, seen state.VersionsSeen, ran []string, observed map[string]uint64) (updated []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("reducer panic: %v", r)
		}
	}()

	ids := sortedKeys(partials)

	var msgUpdates []any
	var errUpdates []any
	var extraUpdates []any
	for _, id := range ids {
		p := partials[id]
		if len(p.Messages) > 0 {
			msgUpdates = append(msgUpdates, p.Messages)
		}
		if len(p.Errors) > 0 {
			errUpdates = append(errUpdates, p.Errors)
		}
		if len(p.Extras) > 0 {
			extraUpdates = append(extraUpdates, p.Extras)
		}
	}

	if len(msgUpdates) > 0 {
		next, changed, rerr := reduceChannel(reg, state.ChannelMessages, st.Messages.Items, msgUpdates)
		if rerr != nil {
			return nil, rerr
		}
		if changed {
			items, ok := next.([]message.Message)
			if !ok {
				return nil, fmt.Errorf("reducer for %s returned %T, want []message.Message", state.ChannelMessages, next)
			}
			st.Messages.Items = items
			st.Messages.Version++
			updated = append(updated, state.ChannelMessages)
		}
	}

	if len(errUpdates) > 0 {
		next, changed, rerr := reduceChannel(reg, state.ChannelErrors, st.Errors.Items, errUpdates)
		if rerr != nil {
			return nil, rerr
		}
		if changed {
			items, ok := next.([]message.ErrorEvent)
			if !ok {
				return nil, fmt.Errorf("reducer for %s returned %T, want []message.ErrorEvent", state.ChannelErrors, next)
			}
			st.Errors.Items = items
			st.Errors.Version++
			updated = append(updated, state.ChannelErrors)
		}
	}

	if len(extraUpdates) > 0 {
		next, changed, rerr := reduceChannel(reg, state.ChannelExtras, st.Extras.Values, extraUpdates)
		if rerr != nil {
			return nil, rerr
		}
		if changed {
			values, ok := next.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("reducer for %s returned %T, want map[string]any", state.ChannelExtras, next)
			}
			st.Extras.Values = values
			st.Extras.Version++
			updated = append(updated, state.ChannelExtras)
		}
	}

	for _, id := range ran {
		for ch, v := range observed {
			seen.Observe(id, ch, v)
		}
	}

	sort.Strings(updated)
	return updated, nil
}

// reduceChannel looks up and invokes the reducer for one channel.
func reduceChannel(reg *reducer.Registry, channel string, current any, updates []any) (any, bool, error) {
	red, ok := reg.Lookup(channel)
	if !ok {
		return nil, false, fmt.Errorf("no reducer registered for channel %s", channel)
	}
	next, changed, err := red.Reduce(current, updates)
	if err != nil {
		return nil, false, fmt.Errorf("reducer %s for channel %s: %w", red.Name(), channel, err)
	}
	return next, changed, nil
}
