package format

import (
	"encoding/json"

	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// CellText renders a value for a tabular cell. Nested objects and arrays
// are written as compact JSON.
func CellText(v any) string {
	switch v.(type) {
	case map[string]any, []any, []map[string]any:
		b, err := json.Marshal(v)
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return value.Text(v)
	}
}

// HeaderKeys trims header cells and names blank ones after their column
// position ("col_3"), so every cell of a row keeps a key.
func HeaderKeys(header []string) []string {
	keys := make([]string, len(header))
	for i, h := range header {
		h = value.Clean(h, value.WithCollapseWhitespace())
		if h == "" {
			h = "col_" + value.Text(i+1)
		}
		keys[i] = h
	}
	return keys
}

// RowRecord zips a header with one data row. Blank cells are left out so
// they read as absent rather than empty. It returns nil for a blank row.
func RowRecord(keys, cells []string) map[string]any {
	rec := make(map[string]any, len(keys))
	for i, cell := range cells {
		if i >= len(keys) || value.IsEmpty(cell) {
			continue
		}
		rec[keys[i]] = value.Clean(cell)
	}
	if len(rec) == 0 {
		return nil
	}
	return rec
}
