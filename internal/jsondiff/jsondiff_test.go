package jsondiff

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDiffEqualProducesNoOps(t *testing.T) {
	a := map[string]any{"x": 1.0}
	assert.Empty(t, Diff(a, a))
}

func TestDiffObjectAddRemoveReplace(t *testing.T) {
	src := map[string]any{"a": 1.0, "b": 2.0}
	tgt := map[string]any{"a": 1.0, "c": 3.0}

	ops := Diff(src, tgt)
	byPath := map[string]Op{}
	for _, op := range ops {
		byPath[op.Path] = op
	}

	require := assert.New(t)
	require.Contains(byPath, "/b")
	require.Equal("remove", byPath["/b"].Op)
	require.Contains(byPath, "/c")
	require.Equal("add", byPath["/c"].Op)
	require.Equal(3.0, byPath["/c"].Value)
	require.NotContains(byPath, "/a")
}

func TestDiffObjectNestedReplace(t *testing.T) {
	src := map[string]any{"a": map[string]any{"n": 1.0}}
	tgt := map[string]any{"a": map[string]any{"n": 2.0}}

	ops := Diff(src, tgt)
	require := assert.New(t)
	require.Len(ops, 1)
	require.Equal("replace", ops[0].Op)
	require.Equal("/a/n", ops[0].Path)
	require.Equal(2.0, ops[0].Value)
}

func TestDiffArrayTrailingAddNoSkip(t *testing.T) {
	src := []any{"x"}
	tgt := []any{"x", "y", "z"}

	ops := Diff(src, tgt)
	require := assert.New(t)
	require.Len(ops, 2, "every trailing target element must produce its own add op, none skipped")

	var values []any
	for _, op := range ops {
		require.Equal("add", op.Op)
		require.Equal("/-", op.Path)
		values = append(values, op.Value)
	}
	require.Equal([]any{"y", "z"}, values)
}

func TestDiffArrayTrailingRemove(t *testing.T) {
	src := []any{"x", "y", "z"}
	tgt := []any{"x"}

	ops := Diff(src, tgt)
	require := assert.New(t)
	require.Len(ops, 2)
	for _, op := range ops {
		require.Equal("remove", op.Op)
	}
	assert.Equal(t, "/2", ops[0].Path, "removals proceed from the back so earlier removes don't shift later indices")
	assert.Equal(t, "/1", ops[1].Path)
}

func TestDiffArrayPositionalReplace(t *testing.T) {
	src := []any{"x", "y"}
	tgt := []any{"x", "z"}

	ops := Diff(src, tgt)
	require := assert.New(t)
	require.Len(ops, 1)
	require.Equal("replace", ops[0].Op)
	require.Equal("/1", ops[0].Path)
	require.Equal("z", ops[0].Value)
}

func TestDiffKindMismatchReplacesWhole(t *testing.T) {
	src := map[string]any{"a": 1.0}
	tgt := []any{"a"}

	ops := Diff(src, tgt)
	require := assert.New(t)
	require.Len(ops, 1)
	require.Equal("replace", ops[0].Op)
	require.Equal("", ops[0].Path)
}

func TestDiffNoEscapingOfSlashOrTilde(t *testing.T) {
	src := map[string]any{"a/b~c": 1.0}
	tgt := map[string]any{"a/b~c": 2.0}

	ops := Diff(src, tgt)
	require := assert.New(t)
	require.Len(ops, 1)
	require.Equal("/a/b~c", ops[0].Path)
}
