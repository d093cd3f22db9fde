package entity

import (
	"strings"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/mapping"
)

// Condition field names shared by the profiles; a prefix selects a
// sub-object ("guru_male_good").
const (
	fieldGood     = "good"
	fieldModerate = "moderate_damage"
	fieldHeavy    = "heavy_damage"
	fieldTotal    = "total"
)

var conditionFields = []string{fieldGood, fieldModerate, fieldHeavy, fieldTotal}

// conditionReader reads condition breakdowns from records and from nested
// objects described by the condition fragment profile.
type conditionReader struct {
	frag *mapping.Profile
}

// read returns the condition stored under prefix+field in p, and whether
// any of those fields is present in rec. The total rule is applied.
func (c conditionReader) read(p *mapping.Profile, rec hub.Raw, prefix string) (hub.Condition, bool) {
	present := false
	for _, f := range conditionFields {
		if p.Has(rec, prefix+f) {
			present = true
			break
		}
	}
	cond := hub.Condition{
		Good:           p.Number(rec, prefix+fieldGood),
		ModerateDamage: p.Number(rec, prefix+fieldModerate),
		HeavyDamage:    p.Number(rec, prefix+fieldHeavy),
	}
	return cond.WithTotal(p.Number(rec, prefix+fieldTotal)), present
}

// readWithArray reads the flat condition fields of p and, when they carry
// no breakdown, falls back to the condition array under listField.
func (c conditionReader) readWithArray(p *mapping.Profile, rec hub.Raw, listField string) (hub.Condition, bool) {
	cond, present := c.read(p, rec, "")
	if cond.Sum() != 0 {
		return cond, true
	}
	if arr, ok := c.fromArray(p.List(rec, listField)); ok {
		if cond.Total != 0 {
			arr = arr.WithTotal(cond.Total)
		}
		return arr, true
	}
	return cond, present
}

// object reads a nested object (one lab, one room) through the fragment.
// An object with only a condition label counts as one unit of that label.
func (c conditionReader) object(item map[string]any) (hub.Condition, bool) {
	rec := hub.Raw(item)
	cond, present := c.read(c.frag, rec, "")
	if cond.Sum() == 0 {
		if arr, ok := c.fromArray([]map[string]any{item}); ok {
			return arr, true
		}
	}
	return cond, present
}

// fromArray aggregates [{kondisi, jumlah}] entries: the label is matched
// case-insensitively against baik/good, sedang/moderate and berat/heavy,
// and jumlah defaults to 1. It reports false when no entry has a label.
func (c conditionReader) fromArray(items []map[string]any) (hub.Condition, bool) {
	var cond hub.Condition
	found := false
	for _, item := range items {
		rec := hub.Raw(item)
		label := strings.ToLower(c.frag.Text(rec, "kondisi"))
		if label == "" {
			continue
		}
		n := 1.0
		if c.frag.Has(rec, fieldTotal) {
			n = c.frag.Number(rec, fieldTotal)
		}
		switch {
		case strings.Contains(label, "berat"), strings.Contains(label, "heavy"):
			cond.HeavyDamage += n
		case strings.Contains(label, "sedang"), strings.Contains(label, "moderate"):
			cond.ModerateDamage += n
		case strings.Contains(label, "baik"), strings.Contains(label, "good"):
			cond.Good += n
		default:
			continue
		}
		found = true
	}
	return cond.WithTotal(0), found
}

// conditionMapper maps entities that are a single condition breakdown.
type conditionMapper struct {
	base
	conditions conditionReader
	build      func(hub.Condition) hub.Canonical
}

func (m *conditionMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	cond, present := m.conditions.readWithArray(m.profile, rec, "conditions")
	if !present {
		return nil, ErrNoData
	}
	if in.SkipZero && cond.IsZero() {
		return nil, ErrZeroCounts
	}
	return []hub.Canonical{m.build(cond)}, nil
}
