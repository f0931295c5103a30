package domain

import (
	"sort"
	"strings"
	"sync"
)

// VariableScope is an append-only mapping of qualified names to values.
// The first write to a name wins; later writes are ignored.
type VariableScope struct {
	mu   sync.RWMutex
	vars map[string]any
}

// NewVariableScope returns a scope seeded with the given values.
func NewVariableScope(seed map[string]any) *VariableScope {
	s := &VariableScope{vars: make(map[string]any, len(seed))}
	for k, v := range seed {
		s.vars[k] = v
	}
	return s
}

// QualifiedName builds a producer-qualified key such as "q.outline.topic".
func QualifiedName(producer, field string) string {
	return "q." + producer + "." + field
}

// Get returns the value bound to name.
func (s *VariableScope) Get(name string) (any, bool) {
	if s == nil {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.vars[strings.TrimSpace(name)]
	return v, ok
}

// Set binds name to value unless it is already bound.
// It reports whether the value was stored.
func (s *VariableScope) Set(name string, value any) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.vars[name]; exists {
		return false
	}
	s.vars[name] = value
	return true
}

// Merge applies Set for every entry and returns the names that were rejected.
func (s *VariableScope) Merge(values map[string]any) []string {
	var rejected []string
	for k, v := range values {
		if !s.Set(k, v) {
			rejected = append(rejected, k)
		}
	}
	sort.Strings(rejected)
	return rejected
}

// Len returns the number of bound names.
func (s *VariableScope) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vars)
}

// Snapshot returns a copy of the bound values.
func (s *VariableScope) Snapshot() map[string]any {
	out := make(map[string]any)
	if s == nil {
		return out
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for k, v := range s.vars {
		out[k] = v
	}
	return out
}
