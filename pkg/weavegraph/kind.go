package weavegraph

import (
	"fmt"
	"strings"
)

// NodeKind identifies a vertex in the workflow graph. Its string value is
// the canonical wire encoding used wherever kinds are persisted: "Start",
// "End", or "Custom:<name>". The encoding is stable across releases within
// a major version.
type NodeKind string

// Virtual endpoints. They are structural only and never execute: Start
// anchors the entry edges, End terminates the session when routed to.
const (
	Start NodeKind = "Start"
	End   NodeKind = "End"
)

const customPrefix = "Custom:"

// Custom returns the kind for a user-registered node.
func Custom(name string) NodeKind {
	return NodeKind(customPrefix + name)
}

// ParseKind decodes the canonical encoding back into a NodeKind.
func ParseKind(s string) (NodeKind, error) {
	switch {
	case s == string(Start):
		return Start, nil
	case s == string(End):
		return End, nil
	case strings.HasPrefix(s, customPrefix) && len(s) > len(customPrefix):
		return NodeKind(s), nil
	}
	return "", fmt.Errorf("invalid node kind encoding: %q", s)
}

// IsVirtual reports whether the kind is Start or End.
func (k NodeKind) IsVirtual() bool {
	return k == Start || k == End
}

// IsCustom reports whether the kind names a user-registered node.
func (k NodeKind) IsCustom() bool {
	return strings.HasPrefix(string(k), customPrefix)
}

// Name returns the node id: the custom name for user nodes, or the literal
// "Start"/"End" for the virtual endpoints. Node ids are the currency of
// frontiers, step reports, and the versions-seen map.
func (k NodeKind) Name() string {
	if k.IsCustom() {
		return strings.TrimPrefix(string(k), customPrefix)
	}
	return string(k)
}

// String returns the canonical encoding.
func (k NodeKind) String() string {
	return string(k)
}
