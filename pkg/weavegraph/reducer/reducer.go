// Package reducer implements the pure merge functions the barrier uses to
// fold parallel node contributions into a channel, plus the registry that
// maps channel names to reducers.
//
// A reducer must be pure, deterministic, and total on valid inputs, and must
// report changed=false if and only if the resulting channel value is
// observationally equal to the input. The barrier feeds updates in canonical
// sorted-node order, which is the sole tie-break for colliding writes.
package reducer

import (
	"fmt"
	"reflect"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
)

// Reducer merges a batch of per-node channel updates into the current
// channel value. current and the elements of updates are channel-shaped
// values; each built-in reducer documents the concrete types it accepts.
type Reducer interface {
	// Name labels the reducer for diagnostics.
	Name() string

	// Reduce returns the next channel value and whether it differs from
	// current. Implementations must not mutate current in place.
	Reduce(current any, updates []any) (next any, changed bool, err error)
}

// AppendMessages is the default messages reducer: it appends every update
// in order. current is []message.Message, each update is []message.Message.
// An empty update batch short-circuits with no change.
type AppendMessages struct{}

// Name implements Reducer.
func (AppendMessages) Name() string { return "append_messages" }

// Reduce implements Reducer.
func (AppendMessages) Reduce(current any, updates []any) (any, bool, error) {
	cur, ok := current.([]message.Message)
	if current != nil && !ok {
		return nil, false, fmt.Errorf("append_messages: unexpected channel type %T", current)
	}
	total := 0
	for _, u := range updates {
		batch, ok := u.([]message.Message)
		if !ok {
			return nil, false, fmt.Errorf("append_messages: unexpected update type %T", u)
		}
		total += len(batch)
	}
	if total == 0 {
		return cur, false, nil
	}
	next := make([]message.Message, 0, len(cur)+total)
	next = append(next, cur...)
	for _, u := range updates {
		next = append(next, u.([]message.Message)...)
	}
	return next, true, nil
}

// AppendErrors is the default errors reducer: append-only, same semantics
// as AppendMessages but over []message.ErrorEvent.
type AppendErrors struct{}

// Name implements Reducer.
func (AppendErrors) Name() string { return "append_errors" }

// Reduce implements Reducer.
func (AppendErrors) Reduce(current any, updates []any) (any, bool, error) {
	cur, ok := current.([]message.ErrorEvent)
	if current != nil && !ok {
		return nil, false, fmt.Errorf("append_errors: unexpected channel type %T", current)
	}
	total := 0
	for _, u := range updates {
		batch, ok := u.([]message.ErrorEvent)
		if !ok {
			return nil, false, fmt.Errorf("append_errors: unexpected update type %T", u)
		}
		total += len(batch)
	}
	if total == 0 {
		return cur, false, nil
	}
	next := make([]message.ErrorEvent, 0, len(cur)+total)
	next = append(next, cur...)
	for _, u := range updates {
		next = append(next, u.([]message.ErrorEvent)...)
	}
	return next, true, nil
}

// MergeExtras is the default extras reducer: merge maps key by key, with the
// last writer in the barrier's sorted-node order winning collisions. Writing
// a key to a value it already holds does not count as a change.
type MergeExtras struct{}

// Name implements Reducer.
func (MergeExtras) Name() string { return "merge_extras" }

// Reduce implements Reducer.
func (MergeExtras) Reduce(current any, updates []any) (any, bool, error) {
	cur, ok := current.(map[string]any)
	if current != nil && !ok {
		return nil, false, fmt.Errorf("merge_extras: unexpected channel type %T", current)
	}
	next := make(map[string]any, len(cur))
	for k, v := range cur {
		next[k] = v
	}
	changed := false
	for _, u := range updates {
		m, ok := u.(map[string]any)
		if !ok {
			return nil, false, fmt.Errorf("merge_extras: unexpected update type %T", u)
		}
		for k, v := range m {
			prev, exists := next[k]
			if !exists || !reflect.DeepEqual(prev, v) {
				changed = true
			}
			next[k] = v
		}
	}
	if !changed {
		return cur, false, nil
	}
	return next, true, nil
}
