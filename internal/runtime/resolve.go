package runtime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/aretw0/cascade/pkg/domain"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_][A-Za-z0-9_.\-]*)\s*\}\}`)

// Resolve substitutes {{name}} placeholders with values from scope.
// Unknown placeholders are left verbatim and substituted text is not rescanned.
func Resolve(text string, scope *domain.VariableScope) string {
	if scope == nil || !strings.Contains(text, "{{") {
		return text
	}
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		v, ok := scope.Get(name)
		if !ok {
			return match
		}
		return Stringify(v)
	})
}

// Unresolved lists the placeholder names in text that scope cannot satisfy.
func Unresolved(text string, scope *domain.VariableScope) []string {
	var missing []string
	seen := map[string]bool{}
	for _, m := range placeholderRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if seen[name] {
			continue
		}
		seen[name] = true
		if _, ok := scope.Get(name); !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// Stringify renders a scope value for prompt text. Strings pass through,
// everything else is rendered as compact JSON.
func Stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}
