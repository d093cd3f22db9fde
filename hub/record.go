// Package hub defines the canonical per-school records every source document
// is reconciled into.
package hub

import (
	"strings"
)

// Raw is one flattened record extracted from a source document.
// It is always a JSON object, never nil.
type Raw map[string]any

// OwnerColumn is the column linking every entity row to schools.id.
const OwnerColumn = "school_id"

// RegionKey carries the group key of a grouped-by-region document
// ({"KecA": [...]}) on every record extracted from it.
const RegionKey = "_region"

// Jenjang is an education level.
type Jenjang string

const (
	JenjangUnknown Jenjang = ""
	JenjangPAUD    Jenjang = "PAUD"
	JenjangSD      Jenjang = "SD"
	JenjangSMP     Jenjang = "SMP"
	JenjangPKBM    Jenjang = "PKBM"
)

// AllJenjang lists the levels in dashboard order.
var AllJenjang = []Jenjang{JenjangPAUD, JenjangSD, JenjangSMP, JenjangPKBM}

// ParseJenjang recognises the level names used across sources
// ("SD", "sd", "Sekolah Dasar", "TK", "KB", "SPS", ...).
func ParseJenjang(s string) Jenjang {
	s = strings.ToUpper(strings.TrimSpace(s))
	switch {
	case s == "":
		return JenjangUnknown
	case s == "SD" || strings.Contains(s, "SEKOLAH DASAR") || strings.HasPrefix(s, "SD ") || s == "MI":
		return JenjangSD
	case s == "SMP" || strings.Contains(s, "MENENGAH PERTAMA") || strings.HasPrefix(s, "SMP ") || s == "MTS":
		return JenjangSMP
	case s == "PKBM" || strings.Contains(s, "KEGIATAN BELAJAR") || strings.HasPrefix(s, "PKBM "):
		return JenjangPKBM
	case s == "PAUD" || s == "TK" || s == "KB" || s == "SPS" || s == "TPA" || strings.Contains(s, "PAUD") || strings.Contains(s, "KANAK"):
		return JenjangPAUD
	default:
		return JenjangUnknown
	}
}

// IsSecondary reports whether the level reports toilets split by role and gender.
func (j Jenjang) IsSecondary() bool {
	return j == JenjangSMP
}

// Canonical is a mapped record for one entity, not yet attached to a school.
type Canonical interface {
	// Entity returns the entity name (e.g. "class_condition").
	Entity() string

	// Columns returns the column values excluding the owner column.
	Columns() map[string]any
}

// Condition is the good / moderate / heavy damage breakdown shared by
// every room-like entity.
type Condition struct {
	Good           float64
	ModerateDamage float64
	HeavyDamage    float64
	Total          float64
}

// Sum returns good + moderate + heavy.
func (c Condition) Sum() float64 {
	return c.Good + c.ModerateDamage + c.HeavyDamage
}

// WithTotal applies the total rule: an explicit nonzero total wins,
// otherwise the total is derived from the breakdown.
func (c Condition) WithTotal(explicit float64) Condition {
	if explicit != 0 {
		c.Total = explicit
	} else {
		c.Total = c.Sum()
	}
	return c
}

// Add returns the field-wise sum of two conditions.
func (c Condition) Add(o Condition) Condition {
	return Condition{
		Good:           c.Good + o.Good,
		ModerateDamage: c.ModerateDamage + o.ModerateDamage,
		HeavyDamage:    c.HeavyDamage + o.HeavyDamage,
		Total:          c.Total + o.Total,
	}
}

// IsZero reports whether every count is zero.
func (c Condition) IsZero() bool {
	return c.Good == 0 && c.ModerateDamage == 0 && c.HeavyDamage == 0 && c.Total == 0
}

func (c Condition) columns() map[string]any {
	return map[string]any{
		"good":            c.Good,
		"moderate_damage": c.ModerateDamage,
		"heavy_damage":    c.HeavyDamage,
		"total":           c.Total,
	}
}

// ClassCondition is the classroom condition of a school.
type ClassCondition struct {
	Good           float64
	ModerateDamage float64
	HeavyDamage    float64
	TotalRoom      float64
	LackingRKB     float64
}

func (ClassCondition) Entity() string { return "class_condition" }

func (c ClassCondition) Columns() map[string]any {
	return map[string]any{
		"good":            c.Good,
		"moderate_damage": c.ModerateDamage,
		"heavy_damage":    c.HeavyDamage,
		"total_room":      c.TotalRoom,
		"lacking_rkb":     c.LackingRKB,
	}
}

// Library is the library room condition.
type Library struct {
	Condition
}

func (Library) Entity() string            { return "library" }
func (l Library) Columns() map[string]any { return l.columns() }

// Residence is the condition of official residences (rumah dinas).
type Residence struct {
	Condition
}

func (Residence) Entity() string            { return "residence" }
func (r Residence) Columns() map[string]any { return r.columns() }

// StaffRoom is one staff room type (teachers, principal, administration).
type StaffRoom struct {
	RoomType string
	Condition
}

func (StaffRoom) Entity() string { return "staff_room" }

func (s StaffRoom) Columns() map[string]any {
	cols := s.columns()
	cols["room_type"] = s.RoomType
	return cols
}

// Laboratory is one subject laboratory.
type Laboratory struct {
	LabType string
	Condition
}

func (Laboratory) Entity() string { return "laboratory" }

func (l Laboratory) Columns() map[string]any {
	cols := l.columns()
	cols["lab_type"] = l.LabType
	return cols
}

// Toilet is the toilet inventory for one user role. Good/moderate/heavy
// are summed over both genders.
type Toilet struct {
	Role string
	Condition
	MaleUnits   float64
	FemaleUnits float64
}

func (Toilet) Entity() string { return "toilet" }

func (t Toilet) Columns() map[string]any {
	cols := t.columns()
	cols["role"] = t.Role
	cols["male_units"] = t.MaleUnits
	cols["female_units"] = t.FemaleUnits
	return cols
}

// Furniture is the furniture and computer inventory of a school.
type Furniture struct {
	Tables      float64
	Chairs      float64
	Whiteboards float64
	Cupboards   float64
	Computers   float64
	Laptops     float64
}

func (Furniture) Entity() string { return "furniture" }

func (f Furniture) Columns() map[string]any {
	return map[string]any{
		"tables":      f.Tables,
		"chairs":      f.Chairs,
		"whiteboards": f.Whiteboards,
		"cupboards":   f.Cupboards,
		"computers":   f.Computers,
		"laptops":     f.Laptops,
	}
}

// Activity categories. Any other activity text is discarded.
const (
	ActivityRehab       = "Rehab"
	ActivityPembangunan = "Pembangunan"
)

// Activity is a funded kegiatan bucket for a school.
type Activity struct {
	Activity string
	Volume   float64
	Year     int
	Budget   float64
}

func (Activity) Entity() string { return "kegiatan" }

func (a Activity) Columns() map[string]any {
	cols := map[string]any{
		"activity": a.Activity,
		"volume":   a.Volume,
	}
	if a.Year > 0 {
		cols["year"] = a.Year
	}
	if a.Budget > 0 {
		cols["budget"] = a.Budget
	}
	return cols
}

// School is the schools table row.
type School struct {
	NPSN         string
	Name         string
	Jenjang      Jenjang
	Kecamatan    string
	Village      string
	Address      string
	Status       string
	Latitude     *float64
	Longitude    *float64
	StudentCount float64
}

func (School) Entity() string { return "school" }

// Columns omits unknown values so a seed never blanks existing data.
func (s School) Columns() map[string]any {
	cols := map[string]any{
		"npsn":      s.NPSN,
		"name":      s.Name,
		"jenjang":   string(s.Jenjang),
		"kecamatan": s.Kecamatan,
		"village":   s.Village,
		"address":   s.Address,
		"status":    s.Status,
	}
	if s.Latitude != nil {
		cols["latitude"] = *s.Latitude
	}
	if s.Longitude != nil {
		cols["longitude"] = *s.Longitude
	}
	if s.StudentCount > 0 {
		cols["student_count"] = s.StudentCount
	}
	return cols
}
