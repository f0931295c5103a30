package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/cascade/pkg/domain"
)

// Mask replaces values whose key matches a PII pattern.
const Mask = "***"

type piiMiddleware struct {
	Store
	patterns []*regexp.Regexp
}

// NewPIIMiddleware masks extracted variables whose key matches any pattern
// before they reach the store. Reads are untouched.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next Store) Store {
		return &piiMiddleware{Store: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) UpdateNode(ctx context.Context, id string, update domain.NodeUpdate) error {
	if update.ExtractedVariables != nil {
		update.ExtractedVariables = deepCopyMap(update.ExtractedVariables)
		maskMap(update.ExtractedVariables, m.patterns)
	}
	return m.Store.UpdateNode(ctx, id, update)
}

func (m *piiMiddleware) PutTree(ctx context.Context, root *domain.PromptNode) error {
	cloned := root.Clone()
	cloned.Walk(func(n *domain.PromptNode, _ int) bool {
		maskMap(n.ExtractedVariables, m.patterns)
		return true
	})
	return m.Store.PutTree(ctx, cloned)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		masked := false
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				masked = true
				break
			}
		}
		if sub, ok := v.(map[string]any); ok && !masked {
			maskMap(sub, patterns)
		}
	}
}
