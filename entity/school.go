package entity

import (
	"fmt"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/identity"
)

type schoolMapper struct {
	base
}

// Map builds the schools row. A record without an NPSN cannot be seeded
// since npsn is the conflict key.
func (m *schoolMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	npsn := identity.NPSN(rec)
	if npsn == "" {
		npsn = identity.NormalizeNPSN(m.profile.Text(rec, "npsn"))
	}
	if npsn == "" {
		return nil, fmt.Errorf("%w: no NPSN", ErrSkip)
	}

	s := hub.School{
		NPSN:         npsn,
		Name:         m.profile.Text(rec, "name"),
		Jenjang:      hub.ParseJenjang(m.profile.Text(rec, "jenjang")),
		Kecamatan:    m.profile.Text(rec, "kecamatan"),
		Village:      m.profile.Text(rec, "village"),
		Address:      m.profile.Text(rec, "address"),
		Status:       m.profile.Text(rec, "status"),
		StudentCount: m.profile.Number(rec, "student_count"),
	}
	if s.Jenjang == hub.JenjangUnknown {
		s.Jenjang = in.Jenjang
	}
	if lat, ok := m.coordinate(rec, "latitude", 90); ok {
		s.Latitude = &lat
	}
	if lng, ok := m.coordinate(rec, "longitude", 180); ok {
		s.Longitude = &lng
	}
	return []hub.Canonical{s}, nil
}

// coordinate returns a nonzero coordinate within ±limit.
func (m *schoolMapper) coordinate(rec hub.Raw, field string, limit float64) (float64, bool) {
	if !m.profile.Has(rec, field) {
		return 0, false
	}
	v := m.profile.Number(rec, field)
	if v == 0 || v < -limit || v > limit {
		return 0, false
	}
	return v, true
}
