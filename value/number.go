package value

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// numberKeys are the wrapper keys checked, in order, when a number arrives
// as an object such as {"jumlah": 7} or {"value": "12"}.
var numberKeys = []string{"value", "jumlah", "total", "count", "val", "num", "n"}

// Number coerces v to a finite float64, returning def when v is nil or
// cannot be interpreted as a number. It never panics.
//
// Handles: numeric types, json.Number, locale-formatted strings
// ("1.234,56", "1,234.56", "Rp 12.500"), and objects wrapping a number under
// one of the wrapper keys (one level of unwrapping per candidate key).
func Number(v any, def float64) float64 {
	if f, ok := parseNumber(v, 1); ok {
		return f
	}
	return def
}

// FirstDefinedNumber returns the first candidate that coerces to a non-zero
// finite number. Blank candidates are skipped. When every coercible candidate
// is zero the result is 0.
//
// Upstream documents pad records with explicit zero placeholders; a zero in a
// preferred field must not shadow a real value in a later field.
func FirstDefinedNumber(candidates ...any) float64 {
	for _, c := range candidates {
		if IsEmpty(c) {
			continue
		}
		f, ok := parseNumber(c, 1)
		if !ok {
			continue
		}
		if f != 0 {
			return f
		}
	}
	return 0
}

// HasNumber reports whether v can be coerced to a number at all.
func HasNumber(v any) bool {
	_, ok := parseNumber(v, 1)
	return ok
}

func parseNumber(v any, depth int) (float64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case float64:
		return finite(val)
	case float32:
		return finite(float64(val))
	case int:
		return float64(val), true
	case int8:
		return float64(val), true
	case int16:
		return float64(val), true
	case int32:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint:
		return float64(val), true
	case uint8:
		return float64(val), true
	case uint16:
		return float64(val), true
	case uint32:
		return float64(val), true
	case uint64:
		return float64(val), true
	case json.Number:
		return ParseNumberString(val.String())
	case string:
		return ParseNumberString(val)
	case []byte:
		return ParseNumberString(string(val))
	case map[string]any:
		if depth <= 0 {
			return 0, false
		}
		for _, key := range numberKeys {
			c, ok := val[key]
			if !ok || IsEmpty(c) {
				continue
			}
			if f, ok := parseNumber(c, depth-1); ok {
				return f, true
			}
		}
		return 0, false
	default:
		return 0, false
	}
}

func finite(f float64) (float64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ParseNumberString parses a human-formatted number. Everything except
// digits, signs and separators is dropped first, so currency prefixes and
// unit suffixes ("Rp", "m2", "unit") are ignored.
//
// Separator rules:
//   - both '.' and ',' present: the one appearing last is the decimal mark
//   - only ',': a single comma is the decimal mark, repeated commas group thousands
//   - only '.': repeated dots group thousands; a single dot followed by exactly
//     three digits after a 1-3 digit non-zero head groups thousands ("12.500"),
//     otherwise it is the decimal mark
func ParseNumberString(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}

	var b strings.Builder
	negative := false
	seenDigit := false
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			seenDigit = true
			b.WriteRune(r)
		case r == '.' || r == ',':
			b.WriteRune(r)
		case r == '-':
			if !seenDigit && b.Len() == 0 {
				negative = true
			}
		}
	}
	if !seenDigit {
		return 0, false
	}

	c := normalizeSeparators(b.String())
	f, err := strconv.ParseFloat(c, 64)
	if err != nil {
		return 0, false
	}
	if negative {
		f = -f
	}
	return finite(f)
}

func normalizeSeparators(c string) string {
	lastDot := strings.LastIndexByte(c, '.')
	lastComma := strings.LastIndexByte(c, ',')

	switch {
	case lastDot >= 0 && lastComma >= 0:
		if lastComma > lastDot {
			return decimalAt(strings.ReplaceAll(c, ".", ""), ',')
		}
		return decimalAt(strings.ReplaceAll(c, ",", ""), '.')
	case lastComma >= 0:
		if strings.Count(c, ",") > 1 {
			return strings.ReplaceAll(c, ",", "")
		}
		return strings.Replace(c, ",", ".", 1)
	case lastDot >= 0:
		if strings.Count(c, ".") > 1 || isThousandsGroup(c, lastDot) {
			return strings.ReplaceAll(c, ".", "")
		}
		return c
	default:
		return c
	}
}

// decimalAt keeps only the last occurrence of sep, as '.', and drops the rest.
func decimalAt(c string, sep byte) string {
	last := strings.LastIndexByte(c, sep)
	if last < 0 {
		return c
	}
	head := strings.ReplaceAll(c[:last], string(sep), "")
	return head + "." + c[last+1:]
}

func isThousandsGroup(c string, dot int) bool {
	head, tail := c[:dot], c[dot+1:]
	if len(tail) != 3 || len(head) == 0 || len(head) > 3 {
		return false
	}
	return head[0] != '0'
}
