package entity

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// Toilet roles.
const (
	RoleTeacher = "guru"
	RoleStudent = "siswa"
	RoleGeneral = "umum"
)

var toiletRoles = []string{RoleTeacher, RoleStudent}

type toiletMapper struct {
	base
	conditions conditionReader
}

// Map emits one row per role when the source splits toilets by role and
// gender, summing both genders into the breakdown and keeping per-gender
// unit totals. Flat sources produce a single "umum" row.
func (m *toiletMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	var out []hub.Canonical
	for _, role := range toiletRoles {
		male, malePresent := m.conditions.read(m.profile, rec, role+"_male_")
		female, femalePresent := m.conditions.read(m.profile, rec, role+"_female_")
		if !malePresent && !femalePresent {
			continue
		}
		t := hub.Toilet{
			Role:        role,
			Condition:   male.Add(female),
			MaleUnits:   male.Total,
			FemaleUnits: female.Total,
		}
		if in.SkipZero && t.Condition.IsZero() {
			continue
		}
		out = append(out, t)
	}
	if len(out) > 0 {
		return out, nil
	}

	cond, present := m.conditions.readWithArray(m.profile, rec, "conditions")
	male := m.profile.Number(rec, "male_units")
	female := m.profile.Number(rec, "female_units")
	if !present && !m.profile.Has(rec, "male_units") && !m.profile.Has(rec, "female_units") {
		if m.hasRoleData(rec) {
			return nil, ErrZeroCounts
		}
		return nil, ErrNoData
	}
	if cond.Total == 0 {
		cond.Total = male + female
	}
	if in.SkipZero && cond.IsZero() && male == 0 && female == 0 {
		return nil, ErrZeroCounts
	}
	return []hub.Canonical{hub.Toilet{
		Role:        RoleGeneral,
		Condition:   cond,
		MaleUnits:   male,
		FemaleUnits: female,
	}}, nil
}

func (m *toiletMapper) hasRoleData(rec hub.Raw) bool {
	for _, role := range toiletRoles {
		for _, g := range []string{"_male_", "_female_"} {
			for _, f := range conditionFields {
				if m.profile.Has(rec, role+g+f) {
					return true
				}
			}
		}
	}
	return false
}

// Staff room types.
const (
	RoomTeacher        = "guru"
	RoomPrincipal      = "kepala_sekolah"
	RoomAdministration = "tata_usaha"
)

var staffRoomTypes = []string{RoomTeacher, RoomPrincipal, RoomAdministration}

// NormalizeRoomType maps free-text room names onto the staff room types,
// returning "" for anything else.
func NormalizeRoomType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.Contains(s, "kepala"), strings.Contains(s, "kepsek"), strings.Contains(s, "principal"):
		return RoomPrincipal
	case strings.Contains(s, "tata usaha"), strings.Contains(s, "tata_usaha"), s == "tu", strings.Contains(s, "ruang tu"),
		strings.Contains(s, "administra"):
		return RoomAdministration
	case strings.Contains(s, "guru"), strings.Contains(s, "teacher"), strings.Contains(s, "pendidik"):
		return RoomTeacher
	default:
		return ""
	}
}

type staffRoomMapper struct {
	base
	conditions conditionReader
}

func (m *staffRoomMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	byType := make(map[string]hub.Condition)
	seen := make(map[string]bool)

	for _, t := range staffRoomTypes {
		cond, present := m.conditions.read(m.profile, rec, t+"_")
		if present {
			byType[t] = cond
			seen[t] = true
		}
	}
	for _, item := range m.profile.List(rec, "rooms") {
		t := NormalizeRoomType(m.conditions.frag.Text(hub.Raw(item), "type"))
		if t == "" {
			continue
		}
		cond, present := m.conditions.object(item)
		if !present {
			continue
		}
		byType[t] = byType[t].Add(cond)
		seen[t] = true
	}

	if len(seen) == 0 {
		return nil, ErrNoData
	}
	var out []hub.Canonical
	for _, t := range staffRoomTypes {
		if !seen[t] {
			continue
		}
		if in.SkipZero && byType[t].IsZero() {
			continue
		}
		out = append(out, hub.StaffRoom{RoomType: t, Condition: byType[t]})
	}
	if len(out) == 0 {
		return nil, ErrZeroCounts
	}
	return out, nil
}

var (
	labPrefix  = regexp.MustCompile(`^(laboratorium|laborat|lab)\b[\s._-]*`)
	nonLabChar = regexp.MustCompile(`[^a-z0-9]+`)
)

// NormalizeLabType turns a lab name into a stable key:
// "Laboratorium IPA" → "ipa", "Lab. Bahasa Inggris" → "bahasa_inggris".
// A bare "Laboratorium" becomes "umum"; an empty name stays empty.
func NormalizeLabType(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	key := labPrefix.ReplaceAllString(s, "")
	key = strings.Trim(nonLabChar.ReplaceAllString(key, "_"), "_")
	if key == "" {
		return "umum"
	}
	return key
}

type laboratoryMapper struct {
	base
	conditions conditionReader
}

func (m *laboratoryMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	byType := make(map[string]hub.Condition)

	add := func(labType string, item map[string]any) {
		if labType == "" {
			return
		}
		cond, present := m.conditions.object(item)
		if !present {
			return
		}
		byType[labType] = byType[labType].Add(cond)
	}

	for _, item := range m.profile.List(rec, "labs") {
		add(NormalizeLabType(m.conditions.frag.Text(hub.Raw(item), "type")), item)
	}
	for _, c := range m.profile.Candidates(rec, "labs_by_type") {
		obj, ok := value.Map(c)
		if !ok {
			continue
		}
		for name, v := range obj {
			if item, ok := value.Map(v); ok {
				add(NormalizeLabType(name), item)
			}
		}
		break
	}

	if len(byType) == 0 {
		return nil, ErrNoData
	}
	types := make([]string, 0, len(byType))
	for t := range byType {
		types = append(types, t)
	}
	sort.Strings(types)

	var out []hub.Canonical
	for _, t := range types {
		if in.SkipZero && byType[t].IsZero() {
			continue
		}
		out = append(out, hub.Laboratory{LabType: t, Condition: byType[t]})
	}
	if len(out) == 0 {
		return nil, ErrZeroCounts
	}
	return out, nil
}
