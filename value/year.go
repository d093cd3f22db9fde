package value

import (
	"math"
	"regexp"
	"strconv"
)

// Years outside this range are not plausible budget years.
const (
	MinYear = 1900
	MaxYear = 2100
)

var yearExtract = regexp.MustCompile(`\b(19[0-9]{2}|2[01][0-9]{2})\b`)

// Year extracts a year from a number or from text such as "2023",
// "2023-05-01" or "TA 2023/2024" (the first year wins). It returns 0 when
// no plausible year is found.
func Year(v any) int {
	switch val := v.(type) {
	case float64:
		return plausibleYear(val)
	case int:
		return plausibleYear(float64(val))
	case int64:
		return plausibleYear(float64(val))
	}

	s := Clean(v)
	if s == "" {
		return 0
	}
	if m := yearExtract.FindStringSubmatch(s); m != nil {
		y, _ := strconv.Atoi(m[1])
		return plausibleYear(float64(y))
	}
	return 0
}

func plausibleYear(f float64) int {
	if math.IsNaN(f) || f != math.Trunc(f) || f < MinYear || f > MaxYear {
		return 0
	}
	return int(f)
}
