package checkpoint_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weavegraph/weavegraph/pkg/weavegraph/checkpoint"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/message"
	"github.com/weavegraph/weavegraph/pkg/weavegraph/state"
)

func newSQLiteStore(t *testing.T) *checkpoint.SQLiteStore {
	t.Helper()
	store, err := checkpoint.NewSQLiteStore(filepath.Join(t.TempDir(), "checkpoints.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_SaveLoadRoundtrip(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	cp := testCheckpoint("s1", 1)
	cp.State.Extras.Set("score", "0.9")
	require.NoError(t, store.Save(ctx, cp))

	loaded, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)

	assert.Equal(t, cp.SessionID, loaded.SessionID)
	assert.Equal(t, cp.Step, loaded.Step)
	assert.Equal(t, cp.Frontier, loaded.Frontier)
	assert.Equal(t, cp.RanNodes, loaded.RanNodes)
	assert.Equal(t, cp.SkippedNodes, loaded.SkippedNodes)
	assert.Equal(t, cp.UpdatedChannels, loaded.UpdatedChannels)
	assert.Equal(t, cp.ConcurrencyLimit, loaded.ConcurrencyLimit)

	require.Len(t, loaded.State.Messages.Items, 1)
	assert.Equal(t, "hello", loaded.State.Messages.Items[0].Content)
	assert.Equal(t, uint64(1), loaded.State.Messages.Version)
	v, ok := loaded.State.Extras.Values["score"]
	require.True(t, ok)
	assert.Equal(t, "0.9", v)

	seen, ok := loaded.VersionsSeen.Seen("greet", state.ChannelMessages)
	require.True(t, ok)
	assert.Equal(t, uint64(1), seen)
}

func TestSQLiteStore_LatestPointer(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for step := 1; step <= 3; step++ {
		cp := testCheckpoint("s1", step)
		cp.State.Messages.Append(message.Assistant("reply"))
		require.NoError(t, store.Save(ctx, cp))
	}

	loaded, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 3, loaded.Step)
}

func TestSQLiteStore_ListSteps(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	for step := 1; step <= 5; step++ {
		require.NoError(t, store.Save(ctx, testCheckpoint("s1", step)))
	}
	require.NoError(t, store.Save(ctx, testCheckpoint("other", 1)))

	all, err := store.ListSteps(ctx, "s1", 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i, cp := range all {
		assert.Equal(t, i+1, cp.Step)
	}

	ranged, err := store.ListSteps(ctx, "s1", 2, 4)
	require.NoError(t, err)
	require.Len(t, ranged, 3)
	assert.Equal(t, 2, ranged[0].Step)
	assert.Equal(t, 4, ranged[2].Step)

	open, err := store.ListSteps(ctx, "s1", 4, 0)
	require.NoError(t, err)
	require.Len(t, open, 2)
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := newSQLiteStore(t)

	_, err := store.LoadLatest(context.Background(), "missing")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)
}

func TestSQLiteStore_DeleteSessionCascades(t *testing.T) {
	store := newSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCheckpoint("s1", 1)))
	require.NoError(t, store.Save(ctx, testCheckpoint("s1", 2)))
	require.NoError(t, store.DeleteSession(ctx, "s1"))

	_, err := store.LoadLatest(ctx, "s1")
	assert.ErrorIs(t, err, checkpoint.ErrNotFound)

	steps, err := store.ListSteps(ctx, "s1", 0, 0)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestSQLiteStore_Closed(t *testing.T) {
	store := newSQLiteStore(t)
	require.NoError(t, store.Close())
	require.NoError(t, store.Close())
	ctx := context.Background()

	assert.ErrorIs(t, store.Save(ctx, testCheckpoint("s1", 1)), checkpoint.ErrStoreClosed)
	_, err := store.LoadLatest(ctx, "s1")
	assert.ErrorIs(t, err, checkpoint.ErrStoreClosed)
}

func TestSQLiteStore_InMemory(t *testing.T) {
	store, err := checkpoint.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, testCheckpoint("s1", 1)))
	loaded, err := store.LoadLatest(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Step)
}
