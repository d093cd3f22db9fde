package mapping

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
)

func TestEmbeddedProfilesLoad(t *testing.T) {
	r, err := NewProfileRegistry()
	require.NoError(t, err)

	for _, name := range []string{
		"class_condition", "library", "furniture", "toilet", "staff_room",
		"residence", "laboratory", "kegiatan", "school", "condition", "activity",
	} {
		t.Run(name, func(t *testing.T) {
			p, ok := r.Get(name)
			require.True(t, ok)
			assert.NoError(t, p.Validate())
		})
	}

	toilet, _ := r.Get("toilet")
	assert.Equal(t, "toilets", toilet.Table)
	assert.Equal(t, "school_id,role", toilet.ConflictKey)
	assert.Equal(t, hub.OwnerColumn, toilet.GetOwnerKey())
}

func TestNumberPrefersNonZero(t *testing.T) {
	p := &Profile{Name: "t", Table: "t", Fields: map[string]FieldMapping{
		"tables": {Paths: []string{"meja", "furniture.tables"}},
	}}

	rec := hub.Raw{"meja": 0, "furniture": map[string]any{"tables": "12"}}
	assert.Equal(t, 12.0, p.Number(rec, "tables"))

	rec = hub.Raw{"meja": "0"}
	assert.Equal(t, 0.0, p.Number(rec, "tables"))
}

func TestNumberDefault(t *testing.T) {
	p := &Profile{Name: "t", Table: "t", Fields: map[string]FieldMapping{
		"volume": {Paths: []string{"volume"}, Default: "1"},
	}}
	assert.Equal(t, 1.0, p.Number(hub.Raw{}, "volume"))
	assert.Equal(t, 1.0, p.Number(hub.Raw{"volume": ""}, "volume"))
	assert.Equal(t, 0.0, p.Number(hub.Raw{"volume": 0}, "volume"))
}

func TestNestedAndQuotedPaths(t *testing.T) {
	p := &Profile{Name: "t", Table: "t", Fields: map[string]FieldMapping{
		"rooms": {Paths: []string{`"Jumlah Ruang"`, "kondisi_kelas.total"}},
		"name":  {Type: TypeText, Paths: []string{"nama", "raw.nama"}, Transform: "upper"},
	}}

	assert.Equal(t, 4.0, p.Number(hub.Raw{"Jumlah Ruang": "4"}, "rooms"))
	assert.Equal(t, 9.0, p.Number(hub.Raw{"kondisi_kelas": map[string]any{"total": json.Number("9")}}, "rooms"))
	assert.Equal(t, "SD X", p.Text(hub.Raw{"nama": " ", "raw": map[string]any{"nama": " sd x "}}, "name"))
}

func TestList(t *testing.T) {
	p := &Profile{Name: "t", Table: "t", Fields: map[string]FieldMapping{
		"items": {Type: TypeList, Paths: []string{"kondisi", "items"}},
	}}
	rec := hub.Raw{"items": []any{map[string]any{"kondisi": "Baik"}, "junk"}}
	items := p.List(rec, "items")
	require.Len(t, items, 1)
	assert.Equal(t, "Baik", items[0]["kondisi"])
}

func TestRow(t *testing.T) {
	p := &Profile{Name: "t", Table: "t", Fields: map[string]FieldMapping{
		"npsn":   {Type: TypeText, Paths: []string{"npsn"}, Required: true},
		"total":  {Paths: []string{"jumlah"}},
		"status": {Type: TypeText, Paths: []string{"status"}, Column: "school_status"},
		"absent": {Paths: []string{"nothing"}},
	}}

	row, err := p.Row(hub.Raw{"npsn": "1", "jumlah": "1.234,5", "status": "Negeri"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"npsn": "1", "total": 1234.5, "school_status": "Negeri"}, row)

	_, err = p.Row(hub.Raw{"jumlah": 1})
	assert.ErrorIs(t, err, ErrMissingField)
}

func TestValidate(t *testing.T) {
	p := &Profile{Name: "bad", Fields: map[string]FieldMapping{
		"a": {Paths: []string{"foo.[bar"}},
		"b": {Type: "date", Paths: []string{"b"}},
		"c": {},
	}}
	err := p.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "table is required")
	assert.Contains(t, err.Error(), `unknown type "date"`)
	assert.Contains(t, err.Error(), "no paths")
	assert.Contains(t, err.Error(), `path "foo.[bar"`)

	frag := &Profile{Name: "frag", Fragment: true, Fields: map[string]FieldMapping{"a": {Paths: []string{"a"}}}}
	assert.NoError(t, frag.Validate())
}

func TestLoadFromDirectoryOverlays(t *testing.T) {
	r, err := NewProfileRegistry()
	require.NoError(t, err)

	dir := t.TempDir()
	override := `
name: furniture
fields:
  tables:
    paths: [meja_total]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "furniture.yaml"), []byte(override), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignored"), 0o644))
	require.NoError(t, r.LoadFromDirectory(dir))

	p, ok := r.Get("furniture")
	require.True(t, ok)
	assert.Equal(t, "furniture", p.Table)
	assert.Equal(t, []string{"meja_total"}, p.Fields["tables"].Paths)
	assert.Contains(t, p.Fields, "chairs")

	assert.NoError(t, r.LoadFromDirectory(filepath.Join(dir, "missing")))
}

func TestMustGetUnknown(t *testing.T) {
	r, err := NewProfileRegistry()
	require.NoError(t, err)
	_, err = r.MustGet("nope")
	assert.ErrorContains(t, err, "class_condition")
}
