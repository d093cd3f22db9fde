package entity

import (
	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

var furnitureFields = []string{"tables", "chairs", "whiteboards", "cupboards", "computers", "laptops"}

type furnitureMapper struct {
	base
}

func (m *furnitureMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	present := false
	for _, f := range furnitureFields {
		if m.profile.Has(rec, f) {
			present = true
			break
		}
	}
	if !present {
		return nil, ErrNoData
	}

	f := hub.Furniture{
		Tables:      m.profile.Number(rec, "tables"),
		Chairs:      m.profile.Number(rec, "chairs"),
		Whiteboards: m.profile.Number(rec, "whiteboards"),
		Cupboards:   m.profile.Number(rec, "cupboards"),
		Computers:   m.profile.Number(rec, "computers"),
		Laptops:     m.profile.Number(rec, "laptops"),
	}
	if in.SkipZero && f == (hub.Furniture{}) {
		return nil, ErrZeroCounts
	}
	return []hub.Canonical{f}, nil
}
