package runtime_test

import (
	"testing"

	"github.com/aretw0/cascade/internal/runtime"
	"github.com/aretw0/cascade/pkg/domain"
	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	scope := domain.NewVariableScope(map[string]any{
		"topic":         "Go",
		"q.root.count":  3,
		"q.root.tags":   []any{"a", "b"},
		"q.root.nested": "{{topic}}",
	})

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain text", "no placeholders", "no placeholders"},
		{"known", "Write about {{topic}}", "Write about Go"},
		{"whitespace", "Write about {{  topic }}", "Write about Go"},
		{"unknown left verbatim", "Hello {{missing}}", "Hello {{missing}}"},
		{"number as json", "n={{q.root.count}}", "n=3"},
		{"array as json", "tags={{q.root.tags}}", `tags=["a","b"]`},
		{"no rescanning", "v={{q.root.nested}}", "v={{topic}}"},
		{"repeated", "{{topic}}/{{topic}}", "Go/Go"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, runtime.Resolve(tt.in, scope))
		})
	}
}

func TestResolve_Idempotent(t *testing.T) {
	scope := domain.NewVariableScope(map[string]any{"a": "one", "b": 2, "c": map[string]any{"k": "v"}})
	inputs := []string{
		"",
		"{{a}} and {{b}}",
		"{{ a }}{{c}}{{zzz}}",
		"{{a",
		"text with } and { braces",
		"{{b}}{{b}}{{unknown.name}}",
	}
	for _, in := range inputs {
		once := runtime.Resolve(in, scope)
		assert.Equal(t, once, runtime.Resolve(once, scope), "input %q", in)
	}
}

func TestResolve_NilScope(t *testing.T) {
	assert.Equal(t, "{{a}}", runtime.Resolve("{{a}}", nil))
}

func TestUnresolved(t *testing.T) {
	scope := domain.NewVariableScope(map[string]any{"a": 1})
	assert.Equal(t, []string{"b"}, runtime.Unresolved("{{a}} {{b}} {{b}}", scope))
}
