package value

import (
	"encoding/json"
	"testing"
)

func TestText(t *testing.T) {
	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, ""},
		{"string", "SD Negeri 1", "SD Negeri 1"},
		{"integral float", float64(20212345), "20212345"},
		{"fractional float", 1.5, "1.5"},
		{"json number", json.Number("0101"), "0101"},
		{"int", 7, "7"},
		{"bool", true, "true"},
		{"object is not text", map[string]any{"a": 1}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Text(tt.input); got != tt.want {
				t.Errorf("Text(%v) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestClean(t *testing.T) {
	got := Clean("  SD \t Negeri\n 1 ", WithCollapseWhitespace())
	if got != "SD Negeri 1" {
		t.Errorf("Clean = %q", got)
	}
}

func TestBool(t *testing.T) {
	trueInputs := []any{true, "ya", "Ada", "1", 2.0}
	for _, in := range trueInputs {
		if !Bool(in) {
			t.Errorf("Bool(%v) = false, want true", in)
		}
	}
	falseInputs := []any{nil, false, "tidak", "0", 0}
	for _, in := range falseInputs {
		if Bool(in) {
			t.Errorf("Bool(%v) = true, want false", in)
		}
	}
}

func TestItems(t *testing.T) {
	items := Items([]any{map[string]any{"kondisi": "Baik"}, "x", nil, map[string]any{"kondisi": "Rusak"}})
	if len(items) != 2 {
		t.Fatalf("Items len = %d, want 2", len(items))
	}
	if single := Items(map[string]any{"a": 1}); len(single) != 1 {
		t.Errorf("single object should yield one item, got %d", len(single))
	}
	if Items("nope") != nil {
		t.Error("scalar should yield nil")
	}
}

func TestGetCaseInsensitive(t *testing.T) {
	m := map[string]any{"NPSN": "123"}
	v, ok := Get(m, "npsn")
	if !ok || v != "123" {
		t.Errorf("Get = %v, %v", v, ok)
	}
}
