package runtime_test

import (
	"testing"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want any
	}{
		{"object", `{"items":["x","y"]}`, map[string]any{"items": []any{"x", "y"}}},
		{"array", `[1, 2]`, []any{float64(1), float64(2)}},
		{"fenced", "Here you go:\n```json\n{\"a\": 1}\n```\nThanks", map[string]any{"a": float64(1)}},
		{"fence without language", "```\n[\"a\"]\n```", []any{"a"}},
		{"prose around", `Sure! {"a": "b"} Hope that helps.`, map[string]any{"a": "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := runtime.ExtractJSON(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractJSON_NoJSON(t *testing.T) {
	for _, raw := range []string{"", "just prose", "42", `"a string"`} {
		_, err := runtime.ExtractJSON(raw)
		assert.ErrorIs(t, err, runtime.ErrNoJSON, "raw %q", raw)
	}
}

func TestExtractJSON_RejectsMalformed(t *testing.T) {
	for _, raw := range []string{
		`{"items":["x","y"`,
		`{items: ['x', 'y']}`,
		"```json\n{\"items\": [\"x\", \"y\",]}\n```",
	} {
		_, err := runtime.ExtractJSON(raw)
		assert.ErrorIs(t, err, runtime.ErrNoJSON, "raw %q", raw)
	}
}

func TestRepairJSON(t *testing.T) {
	v, err := runtime.RepairJSON(`{"items": ["x", "y",]}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"items": []any{"x", "y"}}, v)

	v, err = runtime.RepairJSON(`{"a": 1}`)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1)}, v)

	_, err = runtime.RepairJSON("just prose")
	assert.ErrorIs(t, err, runtime.ErrNoJSON)
}

func TestFindArrays(t *testing.T) {
	parsed := map[string]any{
		"sections": []any{"a"},
		"meta":     map[string]any{"tags": []any{"t"}, "n": 1},
		"title":    "x",
	}
	assert.Equal(t, []string{"$.meta.tags", "$.sections"}, runtime.FindArrays(parsed))
	assert.Equal(t, []string{"$"}, runtime.FindArrays([]any{1}))
	assert.Empty(t, runtime.FindArrays(map[string]any{"a": 1}))

	odd := map[string]any{"sub-items": []any{"a"}, "odd key": map[string]any{"x.y": []any{1}}}
	found := runtime.FindArrays(odd)
	assert.Equal(t, []string{"$.sub-items", `$["odd key"]["x.y"]`}, found)

	p := runtime.NewPathEvaluator()
	for _, path := range found {
		v, err := p.Eval(path, odd)
		require.NoError(t, err, path)
		assert.IsType(t, []any{}, v, path)
	}
}

func TestPathEvaluator(t *testing.T) {
	doc := map[string]any{
		"items": []any{"x"},
		"data":  map[string]any{"list": []any{map[string]any{"title": "t1"}}},
		"keys":  []any{"builtin-named"},
	}
	p := runtime.NewPathEvaluator()

	v, err := p.Eval("$.items", doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, v)

	v, err = p.Eval("items", doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, v)

	v, err = p.Eval("$.data.list[0].title", doc)
	require.NoError(t, err)
	assert.Equal(t, "t1", v)

	v, err = p.Eval("$.keys", doc)
	require.NoError(t, err)
	assert.Equal(t, []any{"builtin-named"}, v)

	v, err = p.Eval("$", doc)
	require.NoError(t, err)
	assert.Equal(t, doc, v)

	v, err = p.Eval("$[1]", []any{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	v, err = p.Eval("$.missing", doc)
	require.NoError(t, err)
	assert.Nil(t, v)

	_, err = p.Eval("$.items[", doc)
	assert.Error(t, err)
}

func TestPathEvaluator_WildcardsAndMissing(t *testing.T) {
	doc := map[string]any{
		"items":     []any{"x", "y"},
		"sub-items": []any{"s"},
		"sections": []any{
			map[string]any{"title": "a", "tags": []any{"t1"}},
			map[string]any{"title": "b", "tags": []any{"t2", "t3"}},
		},
	}
	p := runtime.NewPathEvaluator()

	tests := []struct {
		path string
		want any
	}{
		{"$.items[*]", []any{"x", "y"}},
		{"$.items.*", []any{"x", "y"}},
		{"$.sub-items", []any{"s"}},
		{`$["sub-items"][0]`, "s"},
		{`$['sub-items']`, []any{"s"}},
		{"$.sections[*].title", []any{"a", "b"}},
		{"$.sections[*].tags[0]", []any{"t1", "t2"}},
		{"$.items[-1]", "y"},
		{"$.items[5]", nil},
		{"$.missing.deeper", nil},
		{"$.missing[*].title", nil},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			v, err := p.Eval(tt.path, doc)
			require.NoError(t, err)
			assert.Equal(t, tt.want, v)
		})
	}

	for _, bad := range []string{"$.items[x]", "$..items", `$["open`} {
		_, err := p.Compile(bad)
		assert.Error(t, err, bad)
	}
}
