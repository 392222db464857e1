package state

// VersionsSeen maps node id -> channel name -> last channel version that
// node observed. The scheduler re-runs a frontier node only if at least one
// channel has advanced past what the node last saw (nodes with no recorded
// history always run). The barrier records, for every node that ran, the
// version of every default channel as it appeared in the snapshot the node
// received. Recording the pre-barrier versions keeps a node re-runnable when
// its own writes advanced a channel and a cycle routes back to it.
type VersionsSeen map[string]map[string]uint64

// NewVersionsSeen returns an empty versions-seen map.
func NewVersionsSeen() VersionsSeen {
	return make(VersionsSeen)
}

// Observe records that node has seen the given version of channel.
func (v VersionsSeen) Observe(node, channel string, version uint64) {
	m, ok := v[node]
	if !ok {
		m = make(map[string]uint64, len(DefaultChannels))
		v[node] = m
	}
	m[channel] = version
}

// Seen returns the last version node observed of channel, and whether the
// node has any record for it.
func (v VersionsSeen) Seen(node, channel string) (uint64, bool) {
	m, ok := v[node]
	if !ok {
		return 0, false
	}
	ver, ok := m[channel]
	return ver, ok
}

// HasRun reports whether the node has ever been recorded.
func (v VersionsSeen) HasRun(node string) bool {
	_, ok := v[node]
	return ok
}

// Clone deep-copies the map. Checkpoints and step reports hold clones so
// later barriers cannot mutate persisted history.
func (v VersionsSeen) Clone() VersionsSeen {
	out := make(VersionsSeen, len(v))
	for node, channels := range v {
		m := make(map[string]uint64, len(channels))
		for ch, ver := range channels {
			m[ch] = ver
		}
		out[node] = m
	}
	return out
}
