package weavegraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNodeKind_Encoding(t *testing.T) {
	assert.Equal(t, "Start", Start.String())
	assert.Equal(t, "End", End.String())
	assert.Equal(t, "Custom:fetch", Custom("fetch").String())
}

func TestNodeKind_Name(t *testing.T) {
	assert.Equal(t, "fetch", Custom("fetch").Name())
	assert.Equal(t, "Start", Start.Name())
	assert.Equal(t, "End", End.Name())
}

func TestNodeKind_Predicates(t *testing.T) {
	assert.True(t, Start.IsVirtual())
	assert.True(t, End.IsVirtual())
	assert.False(t, Custom("x").IsVirtual())

	assert.True(t, Custom("x").IsCustom())
	assert.False(t, Start.IsCustom())
	assert.False(t, End.IsCustom())
}

func TestParseKind(t *testing.T) {
	k, err := ParseKind("Start")
	require.NoError(t, err)
	assert.Equal(t, Start, k)

	k, err = ParseKind("End")
	require.NoError(t, err)
	assert.Equal(t, End, k)

	k, err = ParseKind("Custom:fetch")
	require.NoError(t, err)
	assert.Equal(t, Custom("fetch"), k)
	assert.Equal(t, "fetch", k.Name())

	for _, bad := range []string{"", "fetch", "Custom:", "start", "custom:fetch"} {
		_, err := ParseKind(bad)
		assert.Error(t, err, "input %q", bad)
	}
}

func TestParseKind_Roundtrip(t *testing.T) {
	for _, k := range []NodeKind{Start, End, Custom("a"), Custom("with:colon")} {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}

func TestFrontierEncoding(t *testing.T) {
	encoded := encodeFrontier([]string{"a", "b"}, false)
	assert.Equal(t, []string{"Custom:a", "Custom:b"}, encoded)

	frontier, terminal := decodeFrontier(encoded)
	assert.Equal(t, []string{"a", "b"}, frontier)
	assert.False(t, terminal)

	encoded = encodeFrontier([]string{"a"}, true)
	frontier, terminal = decodeFrontier(encoded)
	assert.Equal(t, []string{"a"}, frontier)
	assert.True(t, terminal)

	// Unknown encodings are skipped.
	frontier, terminal = decodeFrontier([]string{"garbage", "Custom:ok", "End"})
	assert.Equal(t, []string{"ok"}, frontier)
	assert.True(t, terminal)
}
