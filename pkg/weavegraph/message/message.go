// Package message defines the chat-style value types that flow through
// weavegraph channels: conversational messages and structured error events.
package message

import (
	"time"
)

// Well-known conversational roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat-style record. Role is free-form: the constructors
// below cover the conventional roles, and Custom accepts anything else.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// System creates a message with the system role.
func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

// User creates a message with the user role.
func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

// Assistant creates a message with the assistant role.
func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// Custom creates a message with an arbitrary role.
func Custom(role, content string) Message {
	return Message{Role: role, Content: content}
}

// ErrorEvent is a structured, non-fatal diagnostic emitted by nodes to
// describe recoverable problems without aborting the graph. Events are
// appended to the errors channel by the default reducer and remain visible
// to every subsequent node.
type ErrorEvent struct {
	// Scope identifies where the problem occurred (e.g. "node:fetch").
	Scope string `json:"scope"`
	// Message is the human-readable description.
	Message string `json:"message"`
	// When records the emission time in UTC.
	When time.Time `json:"when"`
	// Tags carries optional key/value context.
	Tags map[string]string `json:"tags,omitempty"`
}

// NewErrorEvent creates an error event timestamped now.
func NewErrorEvent(scope, msg string) ErrorEvent {
	return ErrorEvent{
		Scope:   scope,
		Message: msg,
		When:    time.Now().UTC(),
	}
}

// WithTag returns a copy of the event with the given tag set.
func (e ErrorEvent) WithTag(key, value string) ErrorEvent {
	tags := make(map[string]string, len(e.Tags)+1)
	for k, v := range e.Tags {
		tags[k] = v
	}
	tags[key] = value
	e.Tags = tags
	return e
}
