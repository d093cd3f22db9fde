package entity

import (
	"fmt"
	"strings"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/mapping"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// ActivityBucket classifies free-text activity descriptions. Text containing
// "rehab" is Rehab, text containing "bangun" is Pembangunan, and anything
// else returns "" and is discarded.
func ActivityBucket(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "rehab"):
		return hub.ActivityRehab
	case strings.Contains(t, "bangun"):
		return hub.ActivityPembangunan
	default:
		return ""
	}
}

var activityBuckets = []string{hub.ActivityRehab, hub.ActivityPembangunan}

type kegiatanMapper struct {
	base
	activity *mapping.Profile
}

// Map buckets every activity of the record and sums volumes and budgets
// per bucket. Entries outside both buckets, or with zero volume, are
// dropped.
func (m *kegiatanMapper) Map(rec hub.Raw, in Input) ([]hub.Canonical, error) {
	items := m.profile.List(rec, "activities")
	if len(items) == 0 && m.activity.Has(rec, "activity") {
		items = []map[string]any{rec}
	}
	if len(items) == 0 {
		return nil, ErrNoData
	}

	sums := make(map[string]hub.Activity)
	discarded := 0
	for _, item := range items {
		it := hub.Raw(item)
		bucket := ActivityBucket(m.activity.Text(it, "activity"))
		volume := m.activity.Number(it, "volume")
		if bucket == "" || volume == 0 {
			discarded++
			continue
		}
		a := sums[bucket]
		a.Activity = bucket
		a.Volume += volume
		a.Budget += m.activity.Number(it, "budget")
		if year := value.Year(m.activity.Text(it, "year")); year > a.Year {
			a.Year = year
		}
		sums[bucket] = a
	}

	if len(sums) == 0 {
		return nil, fmt.Errorf("%w: %d activities outside Rehab/Pembangunan or without volume", ErrSkip, discarded)
	}
	var out []hub.Canonical
	for _, b := range activityBuckets {
		if a, ok := sums[b]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}
