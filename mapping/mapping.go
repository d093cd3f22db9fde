// Package mapping provides the declarative candidate tables that map
// heterogeneous source fields onto canonical entity columns.
//
// A profile lists, for every canonical field, the source paths to try in
// order. Paths are JMESPath expressions evaluated against a raw record, so
// nested shapes ("kondisi_kelas.baik") and odd keys ("\"Jumlah Ruang\"")
// are expressed as data rather than code.
package mapping

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// Field types.
const (
	TypeNumber = "number"
	TypeText   = "text"
	TypeList   = "list"
	TypeBool   = "bool"
)

// Profile represents the complete mapping configuration for one entity.
type Profile struct {
	// Name is the profile identifier
	Name string `yaml:"name" json:"name"`

	// Entity is the canonical entity this profile feeds (e.g. "toilet")
	Entity string `yaml:"entity,omitempty" json:"entity,omitempty"`

	// Description provides human-readable documentation
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	// Table is the backing-store table the entity is written to
	Table string `yaml:"table" json:"table"`

	// ConflictKey is the comma-separated unique key used for merge writes
	ConflictKey string `yaml:"conflict_key" json:"conflict_key"`

	// OwnerKey is the column linking rows to schools.id
	OwnerKey string `yaml:"owner_key,omitempty" json:"owner_key,omitempty"`

	// Fragment profiles describe objects nested inside a record (one lab,
	// one activity) and are not written to a table of their own
	Fragment bool `yaml:"fragment,omitempty" json:"fragment,omitempty"`

	// Fields maps canonical field names to their candidate source paths
	Fields map[string]FieldMapping `yaml:"fields" json:"fields"`
}

// FieldMapping describes where a canonical field may be found.
type FieldMapping struct {
	// Paths are JMESPath expressions tried in order
	Paths []string `yaml:"paths" json:"paths"`

	// Type is one of number, text, list or bool (default number)
	Type string `yaml:"type,omitempty" json:"type,omitempty"`

	// Default is used when no candidate yields a value
	Default string `yaml:"default,omitempty" json:"default,omitempty"`

	// Column overrides the output column name (default: the field name)
	Column string `yaml:"column,omitempty" json:"column,omitempty"`

	// Transform is applied to text values: upper, lower, trim or collapse
	Transform string `yaml:"transform,omitempty" json:"transform,omitempty"`

	// Required marks fields that must resolve for generic upserts
	Required bool `yaml:"required,omitempty" json:"required,omitempty"`

	// Description documents the field
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// FieldType returns the field type with the default applied.
func (f FieldMapping) FieldType() string {
	if f.Type == "" {
		return TypeNumber
	}
	return f.Type
}

// GetOwnerKey returns the owner column with a default.
func (p *Profile) GetOwnerKey() string {
	if p.OwnerKey != "" {
		return p.OwnerKey
	}
	return hub.OwnerColumn
}

// GetEntity returns the entity name, defaulting to the profile name.
func (p *Profile) GetEntity() string {
	if p.Entity != "" {
		return p.Entity
	}
	return p.Name
}

// FieldNames returns the canonical field names, sorted.
func (p *Profile) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for name := range p.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Candidates evaluates every candidate path of field against rec and returns
// the results in path order. Paths that yield nothing are omitted.
func (p *Profile) Candidates(rec hub.Raw, field string) []any {
	fm, ok := p.Fields[field]
	if !ok {
		return nil
	}
	out := make([]any, 0, len(fm.Paths))
	for _, path := range fm.Paths {
		v, err := defaultEvaluator.Evaluate(path, rec)
		if err != nil || v == nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Has reports whether any candidate of field carries a non-empty value.
func (p *Profile) Has(rec hub.Raw, field string) bool {
	for _, v := range p.Candidates(rec, field) {
		if !value.IsEmpty(v) {
			return true
		}
	}
	return false
}

// Number returns the first non-zero number among the candidates of field,
// or 0 when every candidate is zero. The field default applies only when no
// candidate yields a number at all.
func (p *Profile) Number(rec hub.Raw, field string) float64 {
	candidates := p.Candidates(rec, field)
	for _, c := range candidates {
		if value.HasNumber(c) {
			return value.FirstDefinedNumber(candidates...)
		}
	}
	if fm, ok := p.Fields[field]; ok && fm.Default != "" {
		return value.Number(fm.Default, 0)
	}
	return 0
}

// Text returns the first non-empty text among the candidates of field, with
// the field transform applied, falling back to the field default.
func (p *Profile) Text(rec hub.Raw, field string) string {
	fm := p.Fields[field]
	s := value.FirstNonEmpty(p.Candidates(rec, field)...)
	if s == "" {
		s = fm.Default
	}
	return applyTransform(s, fm.Transform)
}

// List returns the first candidate of field holding an array of objects.
// A single object is treated as a one-element list.
func (p *Profile) List(rec hub.Raw, field string) []map[string]any {
	for _, c := range p.Candidates(rec, field) {
		if items := value.Items(c); len(items) > 0 {
			return items
		}
	}
	return nil
}

// Bool returns the first non-empty candidate of field as a boolean.
func (p *Profile) Bool(rec hub.Raw, field string) bool {
	for _, c := range p.Candidates(rec, field) {
		if !value.IsEmpty(c) {
			return value.Bool(c)
		}
	}
	return value.Bool(p.Fields[field].Default)
}

// ErrMissingField is wrapped by Row when a required field does not resolve.
var ErrMissingField = errors.New("required field missing")

// Row evaluates every field into a column map using the field types.
// Fields that resolve to nothing are left out so they never overwrite
// stored values; list fields are not columns and are skipped.
func (p *Profile) Row(rec hub.Raw) (map[string]any, error) {
	row := make(map[string]any, len(p.Fields))
	for _, name := range p.FieldNames() {
		fm := p.Fields[name]
		col := name
		if fm.Column != "" {
			col = fm.Column
		}

		present := p.Has(rec, name) || fm.Default != ""
		if !present {
			if fm.Required {
				return nil, fmt.Errorf("%s: %w", name, ErrMissingField)
			}
			continue
		}

		switch fm.FieldType() {
		case TypeNumber:
			row[col] = p.Number(rec, name)
		case TypeText:
			row[col] = p.Text(rec, name)
		case TypeBool:
			row[col] = p.Bool(rec, name)
		}
	}
	return row, nil
}

// Validate checks that a profile is usable. Non-fragment profiles need a
// table, and every field needs a known type and compilable paths.
func (p *Profile) Validate() error {
	var errs []error
	if p.Table == "" && !p.Fragment {
		errs = append(errs, fmt.Errorf("profile %q: table is required", p.Name))
	}
	for _, name := range p.FieldNames() {
		fm := p.Fields[name]
		switch fm.FieldType() {
		case TypeNumber, TypeText, TypeList, TypeBool:
		default:
			errs = append(errs, fmt.Errorf("profile %q field %q: unknown type %q", p.Name, name, fm.Type))
		}
		if len(fm.Paths) == 0 {
			errs = append(errs, fmt.Errorf("profile %q field %q: no paths", p.Name, name))
		}
		for _, path := range fm.Paths {
			if err := defaultEvaluator.Validate(path); err != nil {
				errs = append(errs, fmt.Errorf("profile %q field %q: path %q: %w", p.Name, name, path, err))
			}
		}
	}
	return errors.Join(errs...)
}

func applyTransform(s, transform string) string {
	switch transform {
	case "upper":
		return strings.ToUpper(strings.TrimSpace(s))
	case "lower":
		return strings.ToLower(strings.TrimSpace(s))
	case "trim":
		return strings.TrimSpace(s)
	case "collapse":
		return value.Clean(s, value.WithCollapseWhitespace())
	default:
		return s
	}
}
