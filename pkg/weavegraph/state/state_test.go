package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

func TestNew(t *testing.T) {
	s := state.New()
	assert.Zero(t, s.Messages.Version)
	assert.Zero(t, s.Errors.Version)
	assert.Zero(t, s.Extras.Version)
	assert.Empty(t, s.Messages.Items)
	assert.NotNil(t, s.Extras.Values)
}

func TestNewWithMessages_SeedsVersion(t *testing.T) {
	s := state.NewWithMessages(message.User("hello"))
	assert.Equal(t, uint64(1), s.Messages.Version)
	require.Len(t, s.Messages.Items, 1)
	assert.Equal(t, "hello", s.Messages.Items[0].Content)

	// No messages, no initial write.
	empty := state.NewWithMessages()
	assert.Zero(t, empty.Messages.Version)
}

func TestSnapshot_IsDeepCopy(t *testing.T) {
	s := state.NewWithUserMessage("hello")
	s.Extras.Set("k", "v1")

	snap := s.Snapshot()

	// Mutating the live state must not leak into the snapshot.
	s.Messages.Append(message.Assistant("later"))
	s.Extras.Set("k", "v2")

	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "hello", snap.Messages[0].Content)
	v, ok := snap.Extra("k")
	require.True(t, ok)
	assert.Equal(t, "v1", v)
}

func TestSnapshot_ChannelVersions(t *testing.T) {
	s := state.NewWithUserMessage("hello")
	s.Errors.Version = 3
	s.Extras.Version = 7

	versions := s.Snapshot().ChannelVersions()
	assert.Equal(t, map[string]uint64{
		state.ChannelMessages: 1,
		state.ChannelErrors:   3,
		state.ChannelExtras:   7,
	}, versions)
}

func TestSnapshot_LastMessage(t *testing.T) {
	_, ok := state.New().Snapshot().LastMessage()
	assert.False(t, ok)

	s := state.NewWithMessages(message.User("a"), message.Assistant("b"))
	last, ok := s.Snapshot().LastMessage()
	require.True(t, ok)
	assert.Equal(t, "b", last.Content)
}

func TestClone_Independent(t *testing.T) {
	s := state.NewWithUserMessage("hello")
	s.Extras.Set("k", 1)

	c := s.Clone()
	c.Messages.Append(message.Assistant("x"))
	c.Extras.Set("k", 2)

	assert.Len(t, s.Messages.Items, 1)
	assert.Equal(t, 1, s.Extras.Values["k"])
}

func TestNodePartial_Fluent(t *testing.T) {
	base := state.NewPartial()
	assert.True(t, base.IsEmpty())

	p := base.
		WithMessages(message.Assistant("hi")).
		WithErrors(message.NewErrorEvent("x", "m")).
		WithExtra("score", 0.9)

	assert.False(t, p.IsEmpty())
	assert.Len(t, p.Messages, 1)
	assert.Len(t, p.Errors, 1)
	assert.Equal(t, 0.9, p.Extras["score"])
	// Copy-on-write: base stays empty.
	assert.True(t, base.IsEmpty())
}

func TestVersionsSeen(t *testing.T) {
	seen := state.NewVersionsSeen()
	assert.False(t, seen.HasRun("a"))

	seen.Observe("a", state.ChannelMessages, 2)
	assert.True(t, seen.HasRun("a"))

	v, ok := seen.Seen("a", state.ChannelMessages)
	require.True(t, ok)
	assert.Equal(t, uint64(2), v)

	_, ok = seen.Seen("a", state.ChannelErrors)
	assert.False(t, ok)
	_, ok = seen.Seen("b", state.ChannelMessages)
	assert.False(t, ok)
}

func TestVersionsSeen_Clone(t *testing.T) {
	seen := state.NewVersionsSeen()
	seen.Observe("a", state.ChannelMessages, 1)

	clone := seen.Clone()
	clone.Observe("a", state.ChannelMessages, 9)
	clone.Observe("b", state.ChannelErrors, 1)

	v, _ := seen.Seen("a", state.ChannelMessages)
	assert.Equal(t, uint64(1), v)
	assert.False(t, seen.HasRun("b"))
}
