package entity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/identity"
	"github.com/sarpras-dashboard/sarpras-sync/mapping"
	"github.com/sarpras-dashboard/sarpras-sync/shape"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	pr, err := mapping.NewProfileRegistry()
	require.NoError(t, err)
	r, err := NewRegistry(pr)
	require.NoError(t, err)
	return r
}

func mapOne(t *testing.T, r *Registry, name string, rec hub.Raw, in Input) ([]hub.Canonical, error) {
	t.Helper()
	m, ok := r.Get(name)
	require.True(t, ok, "mapper %s", name)
	return Apply(m, rec, in)
}

func TestGroupedDocumentEndToEnd(t *testing.T) {
	r := newRegistry(t)
	doc := map[string]any{
		"KecA": []any{map[string]any{"npsn": "123456", "kelas_baik": 5}},
	}

	records := shape.Normalize(doc)
	require.Len(t, records, 1)
	assert.Equal(t, "NPSN:123456", identity.Resolve(records[0], ""))

	rows, err := mapOne(t, r, ClassCondition, records[0], Input{SkipZero: true})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, hub.ClassCondition{Good: 5, TotalRoom: 5}, rows[0])
}

func TestClassCondition(t *testing.T) {
	r := newRegistry(t)

	tests := []struct {
		name    string
		rec     hub.Raw
		in      Input
		want    hub.ClassCondition
		wantErr error
	}{
		{
			name: "explicit total wins",
			rec:  hub.Raw{"kelas_baik": 3, "kelas_rusak_berat": "1", "jumlah_ruang_kelas": 10},
			want: hub.ClassCondition{Good: 3, HeavyDamage: 1, TotalRoom: 10},
		},
		{
			name: "nested object",
			rec:  hub.Raw{"kondisi_kelas": map[string]any{"baik": "2", "rusak_sedang": 1}},
			want: hub.ClassCondition{Good: 2, ModerateDamage: 1, TotalRoom: 3},
		},
		{
			name: "condition array",
			rec: hub.Raw{"kondisi_ruang_kelas": []any{
				map[string]any{"kondisi": "Baik", "jumlah": "4"},
				map[string]any{"kondisi": "Rusak Berat"},
				map[string]any{"kondisi": "rusak sedang", "jumlah": 2},
			}},
			want: hub.ClassCondition{Good: 4, ModerateDamage: 2, HeavyDamage: 1, TotalRoom: 7},
		},
		{
			name: "zero placeholder does not shadow later candidate",
			rec:  hub.Raw{"class_condition": map[string]any{"baik": 0}, "kelas_baik": 12},
			want: hub.ClassCondition{Good: 12, TotalRoom: 12},
		},
		{
			name:    "all zero skipped on ingest",
			rec:     hub.Raw{"kelas_baik": 0, "kelas_rusak_sedang": 0, "kekurangan_rkb": 0},
			in:      Input{SkipZero: true},
			wantErr: ErrZeroCounts,
		},
		{
			name: "all zero kept without the ingest guard",
			rec:  hub.Raw{"kelas_baik": 0, "kekurangan_rkb": 0},
			want: hub.ClassCondition{},
		},
		{
			name: "lacking rkb alone is data",
			rec:  hub.Raw{"kekurangan_rkb": 2},
			in:   Input{SkipZero: true},
			want: hub.ClassCondition{LackingRKB: 2},
		},
		{
			name:    "nothing present",
			rec:     hub.Raw{"nama": "SD 1"},
			wantErr: ErrNoData,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := mapOne(t, r, ClassCondition, tt.rec, tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.True(t, IsSkip(err))
				return
			}
			require.NoError(t, err)
			require.Len(t, rows, 1)
			assert.Equal(t, tt.want, rows[0])
		})
	}
}

func TestZeroGuardAppliesToConditionEntities(t *testing.T) {
	r := newRegistry(t)
	rec := hub.Raw{"perpustakaan_baik": 0, "perpustakaan": map[string]any{"baik": 0}}

	_, err := mapOne(t, r, Library, rec, Input{SkipZero: true})
	assert.True(t, IsSkip(err))

	_, err = mapOne(t, r, Furniture, hub.Raw{"meja": 0, "kursi": "0"}, Input{SkipZero: true})
	assert.ErrorIs(t, err, ErrZeroCounts)
}

func TestToilet(t *testing.T) {
	r := newRegistry(t)

	t.Run("role by gender", func(t *testing.T) {
		rec := hub.Raw{"toilet": map[string]any{
			"guru": map[string]any{
				"laki_laki": map[string]any{"baik": 2, "rusak_sedang": 1},
				"perempuan": map[string]any{"baik": 3},
			},
			"siswa": map[string]any{
				"laki_laki": map[string]any{"baik": 4},
				"perempuan": map[string]any{"baik": 5, "rusak_berat": 1},
			},
		}}
		rows, err := mapOne(t, r, Toilet, rec, Input{Jenjang: hub.JenjangSMP})
		require.NoError(t, err)
		assert.Equal(t, []hub.Canonical{
			hub.Toilet{Role: RoleTeacher, Condition: hub.Condition{Good: 5, ModerateDamage: 1, Total: 6}, MaleUnits: 3, FemaleUnits: 3},
			hub.Toilet{Role: RoleStudent, Condition: hub.Condition{Good: 9, HeavyDamage: 1, Total: 10}, MaleUnits: 4, FemaleUnits: 6},
		}, rows)
	})

	t.Run("flat source", func(t *testing.T) {
		rec := hub.Raw{"toilet_baik": 2, "toilet_rusak_berat": 1, "toilet_laki_laki": 1, "toilet_perempuan": 2}
		rows, err := mapOne(t, r, Toilet, rec, Input{})
		require.NoError(t, err)
		assert.Equal(t, []hub.Canonical{
			hub.Toilet{Role: RoleGeneral, Condition: hub.Condition{Good: 2, HeavyDamage: 1, Total: 3}, MaleUnits: 1, FemaleUnits: 2},
		}, rows)
	})

	t.Run("units only derive the total", func(t *testing.T) {
		rows, err := mapOne(t, r, Toilet, hub.Raw{"toilet_l": 2, "toilet_p": 3}, Input{})
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, float64(5), rows[0].(hub.Toilet).Total)
	})

	t.Run("zero role rows skipped", func(t *testing.T) {
		rec := hub.Raw{"toilet_guru_l_baik": 0, "toilet_guru_p_baik": 0}
		_, err := mapOne(t, r, Toilet, rec, Input{SkipZero: true})
		assert.ErrorIs(t, err, ErrZeroCounts)
	})
}

func TestStaffRoom(t *testing.T) {
	r := newRegistry(t)
	rec := hub.Raw{
		"ruang_guru_baik": 1,
		"ruang_pendidik": []any{
			map[string]any{"jenis": "Ruang Kepala Sekolah", "kondisi": "Rusak Sedang"},
			map[string]any{"jenis": "Gudang", "baik": 3},
		},
	}
	rows, err := mapOne(t, r, StaffRoom, rec, Input{})
	require.NoError(t, err)
	assert.Equal(t, []hub.Canonical{
		hub.StaffRoom{RoomType: RoomTeacher, Condition: hub.Condition{Good: 1, Total: 1}},
		hub.StaffRoom{RoomType: RoomPrincipal, Condition: hub.Condition{ModerateDamage: 1, Total: 1}},
	}, rows)
}

func TestLaboratory(t *testing.T) {
	r := newRegistry(t)

	t.Run("list", func(t *testing.T) {
		rec := hub.Raw{"laboratorium": []any{
			map[string]any{"jenis": "Laboratorium IPA", "baik": 1},
			map[string]any{"jenis": "Lab. Komputer", "rusak_berat": 2},
			map[string]any{"jenis": "laboratorium ipa", "baik": 1},
		}}
		rows, err := mapOne(t, r, Laboratory, rec, Input{})
		require.NoError(t, err)
		assert.Equal(t, []hub.Canonical{
			hub.Laboratory{LabType: "ipa", Condition: hub.Condition{Good: 2, Total: 2}},
			hub.Laboratory{LabType: "komputer", Condition: hub.Condition{HeavyDamage: 2, Total: 2}},
		}, rows)
	})

	t.Run("keyed by type", func(t *testing.T) {
		rec := hub.Raw{"labs_by_type": map[string]any{
			"IPA":    map[string]any{"baik": 1},
			"Bahasa": map[string]any{"baik": 2, "jumlah": 3},
		}}
		rows, err := mapOne(t, r, Laboratory, rec, Input{})
		require.NoError(t, err)
		assert.Equal(t, []hub.Canonical{
			hub.Laboratory{LabType: "bahasa", Condition: hub.Condition{Good: 2, Total: 3}},
			hub.Laboratory{LabType: "ipa", Condition: hub.Condition{Good: 1, Total: 1}},
		}, rows)
	})
}

func TestNormalizeLabType(t *testing.T) {
	cases := map[string]string{
		"Laboratorium IPA":    "ipa",
		"Lab. Bahasa Inggris": "bahasa_inggris",
		"labkom":              "labkom",
		"Laboratorium":        "umum",
		"":                    "",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeLabType(in), in)
	}
}

func TestKegiatan(t *testing.T) {
	r := newRegistry(t)

	t.Run("single activity on the record", func(t *testing.T) {
		rows, err := mapOne(t, r, Kegiatan, hub.Raw{"kegiatan": "Rehabilitasi Ruang Kelas", "volume": "3"}, Input{})
		require.NoError(t, err)
		assert.Equal(t, []hub.Canonical{hub.Activity{Activity: hub.ActivityRehab, Volume: 3}}, rows)
	})

	t.Run("unmatched activity discarded", func(t *testing.T) {
		_, err := mapOne(t, r, Kegiatan, hub.Raw{"kegiatan": "Pengecatan", "volume": 5}, Input{})
		assert.ErrorIs(t, err, ErrSkip)
	})

	t.Run("buckets summed", func(t *testing.T) {
		rec := hub.Raw{"kegiatan": []any{
			map[string]any{"kegiatan": "Pembangunan RKB", "volume": 2, "anggaran": 150000000},
			map[string]any{"kegiatan": "Rehabilitasi Ruang Kelas", "volume": "3", "tahun": 2024},
			map[string]any{"kegiatan": "Pengecatan", "volume": 5},
			map[string]any{"kegiatan": "Rehab Toilet", "volume": 1, "tahun": 2025},
			map[string]any{"kegiatan": "Rehab Atap", "volume": 0},
		}}
		rows, err := mapOne(t, r, Kegiatan, rec, Input{})
		require.NoError(t, err)
		assert.Equal(t, []hub.Canonical{
			hub.Activity{Activity: hub.ActivityRehab, Volume: 4, Year: 2025},
			hub.Activity{Activity: hub.ActivityPembangunan, Volume: 2, Budget: 150000000},
		}, rows)
	})

	t.Run("no activities", func(t *testing.T) {
		_, err := mapOne(t, r, Kegiatan, hub.Raw{"nama": "SD 1"}, Input{})
		assert.ErrorIs(t, err, ErrNoData)
	})
}

func TestActivityBucket(t *testing.T) {
	assert.Equal(t, hub.ActivityRehab, ActivityBucket("REHABILITASI Ruang Kelas"))
	assert.Equal(t, hub.ActivityPembangunan, ActivityBucket("Pembangunan RKB"))
	assert.Equal(t, "", ActivityBucket("Pengadaan Meubelair"))
}

func TestSchool(t *testing.T) {
	r := newRegistry(t)

	rows, err := mapOne(t, r, School, hub.Raw{
		"npsn":              "2021-2345",
		"nama":              "SD  Negeri 1",
		"bentuk_pendidikan": "SD",
		"kecamatan":         "Batang",
		"status":            "negeri",
		"lintang":           "-1.5",
		"bujur":             "200",
	}, Input{Jenjang: hub.JenjangSMP})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	s := rows[0].(hub.School)
	assert.Equal(t, "20212345", s.NPSN)
	assert.Equal(t, "SD Negeri 1", s.Name)
	assert.Equal(t, hub.JenjangSD, s.Jenjang)
	assert.Equal(t, "NEGERI", s.Status)
	require.NotNil(t, s.Latitude)
	assert.Equal(t, -1.5, *s.Latitude)
	assert.Nil(t, s.Longitude, "out of range longitude dropped")

	rows, err = mapOne(t, r, School, hub.Raw{"npsn": "1", "nama": "TK"}, Input{Jenjang: hub.JenjangPAUD})
	require.NoError(t, err)
	assert.Equal(t, hub.JenjangPAUD, rows[0].(hub.School).Jenjang)

	_, err = mapOne(t, r, School, hub.Raw{"nama": "Tanpa NPSN"}, Input{})
	assert.True(t, IsSkip(err))
}

type panicMapper struct {
	base
}

func (panicMapper) Map(hub.Raw, Input) ([]hub.Canonical, error) {
	panic("boom")
}

func TestApplyRecoversPanics(t *testing.T) {
	m := panicMapper{base{&mapping.Profile{Name: "broken"}}}
	rows, err := Apply(m, hub.Raw{}, Input{})
	assert.Nil(t, rows)
	assert.ErrorIs(t, err, ErrPanic)
	assert.False(t, IsSkip(err))
	assert.Contains(t, err.Error(), "broken")
}

func TestRegistrySelect(t *testing.T) {
	r := newRegistry(t)

	all, err := r.Select(nil)
	require.NoError(t, err)
	require.Len(t, all, len(SyncOrder))
	for i, m := range all {
		assert.Equal(t, SyncOrder[i], m.Name())
	}

	some, err := r.Select([]string{"toilet,class_condition"})
	require.NoError(t, err)
	require.Len(t, some, 2)
	assert.Equal(t, ClassCondition, some[0].Name())
	assert.Equal(t, "toilets", some[1].Table())
	assert.Equal(t, "school_id,role", some[1].ConflictKey())

	_, err = r.Select([]string{"school"})
	assert.Error(t, err)
}

func TestIsSkip(t *testing.T) {
	assert.True(t, IsSkip(ErrZeroCounts))
	assert.True(t, IsSkip(ErrNoData))
	assert.False(t, IsSkip(errors.New("write failed")))
}
