package runtime

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// PathEvaluator resolves simple JSONPath-like selectors ("$.data.items",
// "items[0].title", "$.sections[*].title", `$["odd key"]`) against parsed
// output. Selectors are compiled once and cached.
type PathEvaluator struct {
	mu    sync.RWMutex
	cache map[string]*vm.Program
}

// NewPathEvaluator creates an evaluator with an empty program cache.
func NewPathEvaluator() *PathEvaluator {
	return &PathEvaluator{cache: make(map[string]*vm.Program)}
}

// IsRoot reports whether path selects the whole document.
func IsRoot(path string) bool {
	p := strings.TrimSpace(path)
	return p == "" || p == "$"
}

// Eval returns the value at path. A missing key, a nil intermediate or an
// index out of range yields nil without error.
func (p *PathEvaluator) Eval(path string, doc any) (any, error) {
	if IsRoot(path) {
		return doc, nil
	}
	program, err := p.Compile(path)
	if err != nil {
		return nil, err
	}
	out, err := expr.Run(program, map[string]any{"doc": doc})
	if err != nil {
		return nil, fmt.Errorf("evaluate path %q: %w", path, err)
	}
	return out, nil
}

// Compile checks path and caches its program.
func (p *PathEvaluator) Compile(path string) (*vm.Program, error) {
	p.mu.RLock()
	program, ok := p.cache[path]
	p.mu.RUnlock()
	if ok {
		return program, nil
	}
	segs, err := parsePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	program, err = expr.Compile(selector("doc", segs))
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", path, err)
	}
	p.mu.Lock()
	p.cache[path] = program
	p.mu.Unlock()
	return program, nil
}

type segKind int

const (
	segKey segKind = iota
	segIndex
	segWildcard
)

type segment struct {
	kind  segKind
	key   string
	index int
}

// parsePath splits a selector into keys, indexes and wildcards. The leading
// "$" is optional.
func parsePath(path string) ([]segment, error) {
	p := strings.TrimPrefix(strings.TrimSpace(path), "$")
	if p != "" && p[0] != '.' && p[0] != '[' {
		p = "." + p
	}
	var segs []segment
	for i := 0; i < len(p); {
		switch p[i] {
		case '.':
			i++
			if i < len(p) && p[i] == '*' {
				segs = append(segs, segment{kind: segWildcard})
				i++
				continue
			}
			end := i
			for end < len(p) && p[end] != '.' && p[end] != '[' {
				end++
			}
			if end == i {
				return nil, fmt.Errorf("empty key at offset %d", i)
			}
			segs = append(segs, segment{kind: segKey, key: p[i:end]})
			i = end
		case '[':
			if i+1 < len(p) && (p[i+1] == '"' || p[i+1] == '\'') {
				key, n, err := quotedKey(p[i+1:])
				if err != nil {
					return nil, err
				}
				i += 1 + n
				if i >= len(p) || p[i] != ']' {
					return nil, fmt.Errorf("expected ] at offset %d", i)
				}
				segs = append(segs, segment{kind: segKey, key: key})
				i++
				continue
			}
			closeAt := strings.IndexByte(p[i:], ']')
			if closeAt < 0 {
				return nil, fmt.Errorf("unclosed bracket at offset %d", i)
			}
			inner := strings.TrimSpace(p[i+1 : i+closeAt])
			if inner == "*" {
				segs = append(segs, segment{kind: segWildcard})
			} else {
				n, err := strconv.Atoi(inner)
				if err != nil {
					return nil, fmt.Errorf("invalid index %q", inner)
				}
				segs = append(segs, segment{kind: segIndex, index: n})
			}
			i += closeAt + 1
		default:
			return nil, fmt.Errorf("unexpected %q at offset %d", p[i], i)
		}
	}
	return segs, nil
}

// quotedKey reads a quoted key at the start of s and returns it with the
// number of bytes consumed. Double quotes follow Go escaping.
func quotedKey(s string) (string, int, error) {
	q := s[0]
	for i := 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case q:
			if q == '\'' {
				return strings.ReplaceAll(s[1:i], `\'`, "'"), i + 1, nil
			}
			key, err := strconv.Unquote(s[:i+1])
			if err != nil {
				return "", 0, fmt.Errorf("invalid quoted key %s", s[:i+1])
			}
			return key, i + 1, nil
		}
	}
	return "", 0, fmt.Errorf("unterminated key %s", s)
}

// selector emits nil-safe get() calls on base. A wildcard maps the rest of
// the path over the array elements.
func selector(base string, segs []segment) string {
	for i, s := range segs {
		switch s.kind {
		case segKey:
			base = fmt.Sprintf("get(%s, %s)", base, strconv.Quote(s.key))
		case segIndex:
			base = fmt.Sprintf("get(%s, %d)", base, s.index)
		case segWildcard:
			if i == len(segs)-1 {
				return base
			}
			return fmt.Sprintf("(%s == nil ? nil : map(%s, %s))", base, base, selector("#", segs[i+1:]))
		}
	}
	return base
}

var plainKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// childPath appends key to a path, bracketing keys the dotted form cannot carry.
func childPath(parent, key string) string {
	if plainKey.MatchString(key) {
		return parent + "." + key
	}
	return parent + "[" + strconv.Quote(key) + "]"
}
