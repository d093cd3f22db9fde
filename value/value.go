// Package value provides primitives for extracting values from loosely
// shaped school-facility documents.
//
// These helpers solve common problems:
//   - Type coercion (string "1.234,56" → 1234.56, {"jumlah": "7"} → 7)
//   - Null/empty handling
//   - Picking the first usable value out of several candidate fields
package value

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// =============================================================================
// TEXT VALUES
// =============================================================================

// Text extracts a string from various representations.
// Handles: string, []byte, fmt.Stringer, json.Number, numeric types, nil
func Text(v any) string {
	if v == nil {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	case json.Number:
		return val.String()
	case fmt.Stringer:
		return val.String()
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		if val == float32(int32(val)) {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case int32:
		return strconv.FormatInt(int64(val), 10)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case map[string]any, []any:
		// Structured values are never identifiers or names.
		return ""
	default:
		return fmt.Sprintf("%v", val)
	}
}

// FirstNonEmpty returns the first candidate whose trimmed text is non-empty.
// It returns "" when every candidate is empty.
func FirstNonEmpty(candidates ...any) string {
	for _, c := range candidates {
		if s := strings.TrimSpace(Text(c)); s != "" {
			return s
		}
	}
	return ""
}

// IsEmpty reports whether v carries no usable value: nil, a blank string,
// or a JSON null.
func IsEmpty(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case json.RawMessage:
		return len(val) == 0 || string(val) == "null"
	case []byte:
		return len(strings.TrimSpace(string(val))) == 0
	default:
		return false
	}
}

// TextOption configures text extraction behavior.
type TextOption func(*textConfig)

type textConfig struct {
	trimSpace          bool
	collapseWhitespace bool
}

// WithCollapseWhitespace normalizes whitespace to single spaces.
func WithCollapseWhitespace() TextOption {
	return func(c *textConfig) {
		c.collapseWhitespace = true
	}
}

var multiSpaceRegex = regexp.MustCompile(`\s+`)

func applyTextOptions(s string, cfg *textConfig) string {
	if cfg.collapseWhitespace {
		s = multiSpaceRegex.ReplaceAllString(s, " ")
	}
	if cfg.trimSpace {
		s = strings.TrimSpace(s)
	}
	return s
}

// Clean applies text options to a single value.
func Clean(v any, opts ...TextOption) string {
	cfg := &textConfig{trimSpace: true}
	for _, opt := range opts {
		opt(cfg)
	}
	return applyTextOptions(Text(v), cfg)
}

// =============================================================================
// BOOLEAN VALUES
// =============================================================================

// Bool extracts a boolean from various representations.
// Handles: bool, numbers (non-zero), string ("true"/"ya"/"ada"/"1"/"yes"), nil
func Bool(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		s := strings.ToLower(strings.TrimSpace(val))
		switch s {
		case "true", "1", "yes", "on", "ya", "ada", "y":
			return true
		}
		return false
	default:
		return Number(v, 0) != 0
	}
}
