package reducer

import (
	"sort"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

// Registry maps channel names to reducers. Graph compilation freezes the
// registry; lookups at barrier time never miss for default channels because
// NewRegistry pre-registers the built-ins.
type Registry struct {
	reducers map[string]Reducer
}

// NewRegistry creates a registry with the default reducers registered for
// the messages, errors, and extras channels.
func NewRegistry() *Registry {
	return &Registry{
		reducers: map[string]Reducer{
			state.ChannelMessages: AppendMessages{},
			state.ChannelErrors:   AppendErrors{},
			state.ChannelExtras:   MergeExtras{},
		},
	}
}

// Register installs a reducer for a channel name, replacing any previous
// registration. Call before graph compilation; the compiled graph holds the
// registry immutably during execution.
func (r *Registry) Register(channel string, red Reducer) {
	r.reducers[channel] = red
}

// Lookup returns the reducer for a channel.
func (r *Registry) Lookup(channel string) (Reducer, bool) {
	red, ok := r.reducers[channel]
	return red, ok
}

// Channels returns the registered channel names, sorted.
func (r *Registry) Channels() []string {
	names := make([]string, 0, len(r.reducers))
	for name := range r.reducers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone copies the registry so compilation can freeze it independently of
// later Register calls on the builder.
func (r *Registry) Clone() *Registry {
	out := &Registry{reducers: make(map[string]Reducer, len(r.reducers))}
	for name, red := range r.reducers {
		out.reducers[name] = red
	}
	return out
}
