package runtime

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrNoJSON is returned when a response holds no recoverable JSON object or array.
var ErrNoJSON = errors.New("no JSON object or array found in response")

var fenceRe = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*\n?(.*?)```")

// ExtractJSON recovers a JSON object or array from free-form model output.
// Fenced blocks are preferred, then the outermost bracketed region. Each
// candidate must decode strictly.
func ExtractJSON(raw string) (any, error) {
	for _, c := range jsonCandidates(raw) {
		if v, ok := decodeStructured(c); ok {
			return v, nil
		}
	}
	return nil, ErrNoJSON
}

// RepairJSON is ExtractJSON with a second pass that repairs truncated or
// slightly malformed candidates.
func RepairJSON(raw string) (any, error) {
	if v, err := ExtractJSON(raw); err == nil {
		return v, nil
	}
	for _, c := range jsonCandidates(raw) {
		if !strings.HasPrefix(c, "{") && !strings.HasPrefix(c, "[") {
			continue
		}
		repaired, err := jsonrepair.JSONRepair(c)
		if err != nil {
			continue
		}
		if v, ok := decodeStructured(repaired); ok {
			return v, nil
		}
	}
	return nil, ErrNoJSON
}

func jsonCandidates(raw string) []string {
	var out []string
	add := func(s string) {
		s = strings.TrimSpace(s)
		if s == "" {
			return
		}
		for _, existing := range out {
			if existing == s {
				return
			}
		}
		out = append(out, s)
	}
	for _, m := range fenceRe.FindAllStringSubmatch(raw, -1) {
		add(m[1])
		add(bracketed(m[1]))
	}
	add(raw)
	add(bracketed(raw))
	return out
}

// bracketed returns the region from the first opening bracket to its last
// matching closer, or to the end of input when the closer is missing.
func bracketed(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return ""
	}
	closer := byte('}')
	if s[start] == '[' {
		closer = ']'
	}
	end := strings.LastIndexByte(s, closer)
	if end < start {
		return s[start:]
	}
	return s[start : end+1]
}

func decodeStructured(s string) (any, bool) {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	switch v.(type) {
	case map[string]any, []any:
		return v, true
	}
	return nil, false
}

// FindArrays lists JSONPath-style locations of arrays inside parsed output,
// up to two levels deep, to help operators fix a wrong path.
func FindArrays(parsed any) []string {
	var out []string
	switch t := parsed.(type) {
	case []any:
		out = append(out, "$")
	case map[string]any:
		for k, v := range t {
			switch inner := v.(type) {
			case []any:
				out = append(out, childPath("$", k))
			case map[string]any:
				for k2, v2 := range inner {
					if _, ok := v2.([]any); ok {
						out = append(out, childPath(childPath("$", k), k2))
					}
				}
			}
		}
	}
	sort.Strings(out)
	return out
}
