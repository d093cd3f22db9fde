// Package entity maps raw records onto canonical per-school entities.
//
// Every mapper is driven by a mapping profile (the candidate-path table)
// and adds the entity's derivation rules on top: total derivation,
// condition-from-array aggregation, role/gender toilet sums and activity
// bucketing.
package entity

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/mapping"
)

var (
	// ErrSkip marks a record deliberately not written. Counted as skip.
	ErrSkip = errors.New("record skipped")

	// ErrNoData marks a record carrying nothing for the entity. Counted as skip.
	ErrNoData = errors.New("no data for entity")

	// ErrZeroCounts is the zero-row guard: every count is zero, and writing
	// the row would overwrite a previously good value.
	ErrZeroCounts = fmt.Errorf("%w: all counts are zero", ErrSkip)

	// ErrPanic wraps a recovered mapper panic. Counted as fail.
	ErrPanic = errors.New("mapper panicked")
)

// Input carries per-run context for a mapping call.
type Input struct {
	// Jenjang is the education level of the source the record came from.
	Jenjang hub.Jenjang

	// SkipZero drops rows whose counts are all zero (ingest only).
	SkipZero bool
}

// Mapper maps a raw record onto zero or more canonical rows of one entity.
type Mapper interface {
	// Name returns the entity name (e.g. "toilet").
	Name() string

	// Table returns the backing-store table.
	Table() string

	// ConflictKey returns the comma-separated unique key for merge writes.
	ConflictKey() string

	// OwnerKey returns the column linking rows to schools.id.
	OwnerKey() string

	// Map converts rec. It returns ErrSkip or ErrNoData (possibly wrapped)
	// for records that should not be written.
	Map(rec hub.Raw, in Input) ([]hub.Canonical, error)
}

// Apply runs m on rec, converting a panic into an error wrapping ErrPanic.
func Apply(m Mapper, rec hub.Raw, in Input) (rows []hub.Canonical, err error) {
	defer func() {
		if r := recover(); r != nil {
			rows = nil
			err = fmt.Errorf("%s: %w: %v", m.Name(), ErrPanic, r)
		}
	}()
	return m.Map(rec, in)
}

// IsSkip reports whether err means "not written" rather than "failed".
func IsSkip(err error) bool {
	return errors.Is(err, ErrSkip) || errors.Is(err, ErrNoData)
}

// Entity names in sync order.
const (
	ClassCondition = "class_condition"
	Library        = "library"
	Furniture      = "furniture"
	Toilet         = "toilet"
	StaffRoom      = "staff_room"
	Residence      = "residence"
	Laboratory     = "laboratory"
	Kegiatan       = "kegiatan"
	School         = "school"
)

// SyncOrder lists the per-school entities synced by the drivers.
var SyncOrder = []string{ClassCondition, Library, Furniture, Toilet, StaffRoom, Residence, Laboratory, Kegiatan}

// base exposes the table metadata of a profile.
type base struct {
	profile *mapping.Profile
}

func (b base) Name() string        { return b.profile.GetEntity() }
func (b base) Table() string       { return b.profile.Table }
func (b base) ConflictKey() string { return b.profile.ConflictKey }
func (b base) OwnerKey() string    { return b.profile.GetOwnerKey() }

// Registry holds the mappers of one run.
type Registry struct {
	mappers map[string]Mapper
}

// NewRegistry builds every mapper from the profiles in pr.
func NewRegistry(pr *mapping.ProfileRegistry) (*Registry, error) {
	get := func(name string) (*mapping.Profile, error) {
		return pr.MustGet(name)
	}

	cond, err := get("condition")
	if err != nil {
		return nil, err
	}
	activity, err := get("activity")
	if err != nil {
		return nil, err
	}
	conditions := conditionReader{frag: cond}

	r := &Registry{mappers: make(map[string]Mapper)}
	builders := map[string]func(p *mapping.Profile) Mapper{
		ClassCondition: func(p *mapping.Profile) Mapper { return &classConditionMapper{base{p}, conditions} },
		Library: func(p *mapping.Profile) Mapper {
			return &conditionMapper{base{p}, conditions, func(c hub.Condition) hub.Canonical { return hub.Library{Condition: c} }}
		},
		Residence: func(p *mapping.Profile) Mapper {
			return &conditionMapper{base{p}, conditions, func(c hub.Condition) hub.Canonical { return hub.Residence{Condition: c} }}
		},
		Furniture:  func(p *mapping.Profile) Mapper { return &furnitureMapper{base{p}} },
		Toilet:     func(p *mapping.Profile) Mapper { return &toiletMapper{base{p}, conditions} },
		StaffRoom:  func(p *mapping.Profile) Mapper { return &staffRoomMapper{base{p}, conditions} },
		Laboratory: func(p *mapping.Profile) Mapper { return &laboratoryMapper{base{p}, conditions} },
		Kegiatan:   func(p *mapping.Profile) Mapper { return &kegiatanMapper{base{p}, activity} },
		School:     func(p *mapping.Profile) Mapper { return &schoolMapper{base{p}} },
	}
	for name, build := range builders {
		p, err := get(name)
		if err != nil {
			return nil, err
		}
		r.mappers[name] = build(p)
	}
	return r, nil
}

// Get returns the mapper for an entity name.
func (r *Registry) Get(name string) (Mapper, bool) {
	m, ok := r.mappers[name]
	return m, ok
}

// Select returns the sync mappers named in only, in sync order. An empty
// selection means every entity. Unknown names are an error.
func (r *Registry) Select(only []string) ([]Mapper, error) {
	want := make(map[string]bool)
	for _, name := range only {
		for _, part := range strings.Split(name, ",") {
			if part = strings.TrimSpace(part); part != "" {
				want[part] = true
			}
		}
	}
	for name := range want {
		if !slices.Contains(SyncOrder, name) {
			return nil, fmt.Errorf("unknown entity %q (available: %s)", name, strings.Join(SyncOrder, ", "))
		}
	}

	var out []Mapper
	for _, name := range SyncOrder {
		if len(want) == 0 || want[name] {
			out = append(out, r.mappers[name])
		}
	}
	return out, nil
}
