package value

import (
	"strings"
)

// Map returns v as a JSON object.
func Map(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}

// Slice returns v as a JSON array.
func Slice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// Get looks up key in m, first exactly and then case-insensitively.
func Get(m map[string]any, key string) (any, bool) {
	if m == nil {
		return nil, false
	}
	if v, ok := m[key]; ok {
		return v, true
	}
	for k, v := range m {
		if strings.EqualFold(k, key) {
			return v, true
		}
	}
	return nil, false
}

// Items normalizes an array-of-objects field. A single object is treated
// as a one-element array; non-object elements are dropped.
func Items(v any) []map[string]any {
	switch val := v.(type) {
	case []any:
		out := make([]map[string]any, 0, len(val))
		for _, item := range val {
			if m, ok := Map(item); ok {
				out = append(out, m)
			}
		}
		return out
	case []map[string]any:
		return val
	case map[string]any:
		return []map[string]any{val}
	default:
		return nil
	}
}
