package entity

import (
	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

type classConditionMapper struct {
	base
	conditions conditionReader
}

// Map applies the classroom rules: an explicit nonzero total wins over the
// breakdown sum, a condition array fills in a missing breakdown, and with
// SkipZero a record whose breakdown and lacking-RKB are all zero is dropped.
func (m *classConditionMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	cond, present := m.conditions.readWithArray(m.profile, rec, "conditions")
	lacking := m.profile.Number(rec, "lacking_rkb")
	if !present && !m.profile.Has(rec, "lacking_rkb") {
		return nil, ErrNoData
	}

	if in.SkipZero && cond.Sum() == 0 && lacking == 0 {
		return nil, ErrZeroCounts
	}

	return []hub.Canonical{hub.ClassCondition{
		Good:           cond.Good,
		ModerateDamage: cond.ModerateDamage,
		HeavyDamage:    cond.HeavyDamage,
		TotalRoom:      cond.Total,
		LackingRKB:     lacking,
	}}, nil
}
