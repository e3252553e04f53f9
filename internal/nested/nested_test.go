package nested

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	got, err := Expand(map[string]any{
		"simple_common_atk.ability_bw_point": 5,
		"name":                               "X",
	}, ".")
	require.NoError(t, err)
	want := map[string]any{
		"simple_common_atk": map[string]any{"ability_bw_point": 5},
		"name":              "X",
	}
	assert.Equal(t, want, got, spew.Sdump(got))
}

func TestExpandSharedPrefix(t *testing.T) {
	got, err := Expand(map[string]any{
		"a.b.c": 1,
		"a.b.d": 2,
		"a.e":   3,
	}, "")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"a": map[string]any{
			"b": map[string]any{"c": 1, "d": 2},
			"e": 3,
		},
	}, got)
}

func TestExpandConflict(t *testing.T) {
	_, err := Expand(map[string]any{"a": 1, "a.b": 2}, ".")
	var ce *ConflictError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "a", ce.Path)
}

func TestExpandTableLeafIsOpaque(t *testing.T) {
	_, err := Expand(map[string]any{
		"a":   map[string]any{"x": 1},
		"a.y": 2,
	}, ".")
	var ce *ConflictError
	assert.ErrorAs(t, err, &ce)
}

func TestExpandEmptySegment(t *testing.T) {
	_, err := Expand(map[string]any{"a..b": 1}, ".")
	assert.Error(t, err)
}

func TestExpandOrderIndependent(t *testing.T) {
	flat := map[string]any{}
	for _, k := range []string{"x.y.z", "x.w", "p", "q.r", "x.y.v"} {
		flat[k] = k
	}
	first, err := Expand(flat, ".")
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := Expand(flat, ".")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestMergePreservesSiblings(t *testing.T) {
	existing := map[string]any{"uid": 100000001, "name": "A", "hp": 10}
	got := Merge(existing, map[string]any{"uid": 100000001, "name": "B"})
	assert.Equal(t, map[string]any{"uid": 100000001, "name": "B", "hp": 10}, got)
	assert.Equal(t, "A", existing["name"], "input must not be modified")
}

func TestMergeNested(t *testing.T) {
	dst := map[string]any{
		"atk":  map[string]any{"point": 1, "range": 300},
		"tags": []any{"a"},
	}
	src := map[string]any{
		"atk":  map[string]any{"point": 5},
		"tags": []any{"b", "c"},
	}
	got := Merge(dst, src)
	assert.Equal(t, map[string]any{
		"atk":  map[string]any{"point": 5, "range": 300},
		"tags": []any{"b", "c"},
	}, got)
}

func TestMergeReplacesObjectLeaf(t *testing.T) {
	dst := map[string]any{"cfg": map[string]any{"a": 1, "b": 2}, "hp": 10}
	tree, err := Expand(map[string]any{"cfg": map[string]any{"a": 1}}, ".")
	require.NoError(t, err)
	assert.IsType(t, Object{}, tree["cfg"])

	got := Merge(dst, tree)
	assert.Equal(t, map[string]any{"cfg": map[string]any{"a": 1}, "hp": 10}, got)
	assert.IsType(t, map[string]any{}, got["cfg"])
}

func TestMergeIntoNil(t *testing.T) {
	got := Merge(nil, map[string]any{"a": map[string]any{"b": 1}})
	assert.Equal(t, map[string]any{"a": map[string]any{"b": 1}}, got)
}

func TestLookup(t *testing.T) {
	tree := map[string]any{"a": map[string]any{"b": 7}}
	v, ok := Lookup(tree, "a.b", ".")
	require.True(t, ok)
	assert.Equal(t, 7, v)

	_, ok = Lookup(tree, "a.c", ".")
	assert.False(t, ok)
	_, ok = Lookup(tree, "a.b.c", ".")
	assert.False(t, ok)
}
