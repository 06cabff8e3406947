package tree

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePath_DropsRootLabel(t *testing.T) {
	cases := map[string]Path{
		"":             {},
		"root":         {},
		"root.todos.2": {"todos", "2"},
		".5":           {"5"},
		"x.a":          {"a"},
	}
	for in, want := range cases {
		got, err := ParsePath(in)
		require.NoError(t, err, "parse %q", in)
		assert.Equal(t, want, got, "parse %q", in)
	}
}

func TestParsePath_RejectsEmptySegments(t *testing.T) {
	for _, in := range []string{"root..x", "root.", ".a."} {
		_, err := ParsePath(in)
		require.Error(t, err, "parse %q", in)
		assert.True(t, errors.Is(err, ErrInvalidPath), "parse %q: %v", in, err)
	}
}

func TestPath_StringRoundTrip(t *testing.T) {
	p := At("todos", "7")
	assert.Equal(t, ".todos.7", p.String())
	back, err := ParsePath(p.String())
	require.NoError(t, err)
	assert.Equal(t, p, back)
}

func TestTree_SetOverwritesAndCreates(t *testing.T) {
	tr := FromMap(map[string]any{"todos": map[string]any{"1": "buy milk"}})

	require.NoError(t, tr.Set(At("todos", "2"), "walk dog"))
	require.NoError(t, tr.Set(At("todos", "1"), "buy oat milk"))

	assert.Equal(t, map[string]any{
		"todos": map[string]any{"1": "buy oat milk", "2": "walk dog"},
	}, tr.Map())
}

func TestTree_SetMissingParent(t *testing.T) {
	tr := New()
	err := tr.Set(At("todos", "1"), "x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))

	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, 0, pe.Depth)
	assert.Equal(t, "set", pe.Op)
	assert.Equal(t, 0, tr.Len())
}

func TestTree_SetThroughScalar(t *testing.T) {
	tr := FromMap(map[string]any{"todos": "not a map"})
	err := tr.Set(At("todos", "1"), "x")
	assert.True(t, errors.Is(err, ErrNotContainer), "got %v", err)
}

func TestTree_EmptyPath(t *testing.T) {
	tr := New()
	assert.True(t, errors.Is(tr.Set(Path{}, 1), ErrEmptyPath))
	assert.True(t, errors.Is(tr.Delete(nil), ErrEmptyPath))
}

func TestTree_DeleteAbsentKeyIsNoop(t *testing.T) {
	tr := FromMap(map[string]any{"todos": map[string]any{"1": "a"}})
	require.NoError(t, tr.Delete(At("todos", "9")))
	assert.Equal(t, map[string]any{"todos": map[string]any{"1": "a"}}, tr.Map())

	require.NoError(t, tr.Delete(At("todos", "1")))
	assert.Equal(t, map[string]any{"todos": map[string]any{}}, tr.Map())
}

func TestTree_MergeKeepsUntouchedKeys(t *testing.T) {
	tr := FromMap(map[string]any{"a": 1.0, "b": 2.0})
	tr.Merge(map[string]any{"b": 3.0, "c": 4.0})
	assert.Equal(t, map[string]any{"a": 1.0, "b": 3.0, "c": 4.0}, tr.Map())
}

func TestTree_SetCopiesValue(t *testing.T) {
	tr := New()
	v := map[string]any{"title": "x"}
	require.NoError(t, tr.Set(At("1"), v))
	v["title"] = "mutated"

	got, err := tr.Get(At("1"))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"title": "x"}, got)
}

func TestTree_MarshalJSON(t *testing.T) {
	tr := FromMap(map[string]any{"b": "2", "a": []any{1.0, true, nil}})
	b, err := tr.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":[1,true,null],"b":"2"}`, string(b))
}
