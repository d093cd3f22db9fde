package hub

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseJenjang(t *testing.T) {
	tests := []struct {
		input string
		want  Jenjang
	}{
		{"SD", JenjangSD},
		{"sd", JenjangSD},
		{"Sekolah Dasar", JenjangSD},
		{"SMP", JenjangSMP},
		{"TK", JenjangPAUD},
		{"KB", JenjangPAUD},
		{"paud", JenjangPAUD},
		{"PKBM", JenjangPKBM},
		{"SMA", JenjangUnknown},
		{"", JenjangUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseJenjang(tt.input))
		})
	}
}

func TestConditionWithTotal(t *testing.T) {
	c := Condition{Good: 5, ModerateDamage: 2, HeavyDamage: 1}
	assert.Equal(t, float64(8), c.WithTotal(0).Total)
	assert.Equal(t, float64(10), c.WithTotal(10).Total)
}

func TestColumns(t *testing.T) {
	cc := ClassCondition{Good: 5, TotalRoom: 5}
	assert.Equal(t, map[string]any{
		"good":            float64(5),
		"moderate_damage": float64(0),
		"heavy_damage":    float64(0),
		"total_room":      float64(5),
		"lacking_rkb":     float64(0),
	}, cc.Columns())

	toilet := Toilet{Role: "siswa", Condition: Condition{Good: 4, Total: 4}, MaleUnits: 2, FemaleUnits: 2}
	cols := toilet.Columns()
	assert.Equal(t, "siswa", cols["role"])
	assert.Equal(t, float64(2), cols["female_units"])

	act := Activity{Activity: ActivityRehab, Volume: 3}
	assert.NotContains(t, act.Columns(), "year")

	s := School{NPSN: "1", Name: "SD X"}
	assert.NotContains(t, s.Columns(), "latitude")
}

func TestValidateRows(t *testing.T) {
	rows := []map[string]any{
		{"school_id": "1", "good": 1.0},
		{"school_id": "", "good": math.NaN()},
		{"good": -1.0, "school_id": "3"},
	}
	result := ValidateRows(rows, DefaultValidationOptions("school_id"))
	assert.False(t, result.IsValid())
	assert.Len(t, result.Errors, 2)
	assert.True(t, result.HasWarnings())
	assert.Error(t, result.Error())

	ok := ValidateRows(rows[:1], DefaultValidationOptions("school_id"))
	assert.NoError(t, ok.Error())
}
