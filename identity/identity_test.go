package identity

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/store/memstore"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name   string
		rec    hub.Raw
		region string
		want   string
	}{
		{name: "npsn with separators", rec: hub.Raw{"npsn": "123-456"}, want: "NPSN:123456"},
		{name: "upper-case key", rec: hub.Raw{"NPSN": "20212345"}, want: "NPSN:20212345"},
		{name: "numeric npsn", rec: hub.Raw{"npsn": float64(20212345)}, want: "NPSN:20212345"},
		{name: "kode_sekolah", rec: hub.Raw{"kode_sekolah": " 7 "}, want: "NPSN:7"},
		{name: "nested raw", rec: hub.Raw{"raw": map[string]any{"npsn": "99"}}, want: "NPSN:99"},
		{name: "nested properties", rec: hub.Raw{"properties": map[string]any{"Npsn": "42"}}, want: "NPSN:42"},
		{
			name: "composite fallback",
			rec:  hub.Raw{"nama": "  sd negeri   1 ", "desa": "Sukamaju", "kecamatan": "Kec. Batang Hari"},
			want: "NKD:SD NEGERI 1|SUKAMAJU|BATANGHARI",
		},
		{
			name:   "region hint stands in for subdistrict",
			rec:    hub.Raw{"nama": "TK Melati", "desa": "Mekar"},
			region: "Kecamatan Cibodas",
			want:   "NKD:TK MELATI|MEKAR|CIBODAS",
		},
		{
			name: "region tag on record",
			rec:  hub.Raw{"nama": "TK Melati", hub.RegionKey: "KecA"},
			want: "NKD:TK MELATI||KECA",
		},
		{name: "diacritics folded", rec: hub.Raw{"name": "SD Séntosa", "village": "Désa"}, want: "NKD:SD SENTOSA|DESA|"},
		{name: "npsn without digits falls back", rec: hub.Raw{"npsn": "-", "nama": "X"}, want: "NKD:X||"},
		{name: "nothing usable", rec: hub.Raw{"desa": "Mekar"}, want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Resolve(tt.rec, tt.region))
		})
	}
}

func TestResolveStableUnderEqualNPSN(t *testing.T) {
	a := Resolve(hub.Raw{"npsn": "123 456", "nama": "SD A"}, "KecA")
	b := Resolve(hub.Raw{"kode": "123.456", "nama": "Different"}, "KecB")
	assert.Equal(t, a, b)
	assert.Equal(t, KindNPSN, KindOf(a))
}

func TestNormalizeKecamatan(t *testing.T) {
	tests := map[string]string{
		"Kec. Sukajadi":       "SUKAJADI",
		"KECAMATAN Suka Jadi": "SUKAJADI",
		"kecamatan-2":         "",
		"Kecapi":              "KECAPI",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			assert.Equal(t, want, NormalizeKecamatan(in))
		})
	}
}

func TestLookup(t *testing.T) {
	s := memstore.New()
	s.Load(SchoolsTable,
		store.Row{"id": "10", "npsn": "123456", "name": "SD A", "village": "X", "kecamatan": "KecA"},
		store.Row{"id": "11", "npsn": "654321", "name": "SD B", "village": "Y", "kecamatan": "KecB"},
		store.Row{"id": "12", "npsn": nil, "name": "tk melati", "village": "mekar", "kecamatan": "Kecamatan Cibodas"},
	)

	r := NewResolver(s, nil)
	got, err := r.Lookup(context.Background(), []string{
		"NPSN:123456",
		"NPSN:123456",
		"NPSN:000000",
		"NKD:TK MELATI|MEKAR|CIBODAS",
		"NKD:UNKNOWN||",
	})
	require.NoError(t, err)

	id, ok := got.Get("NPSN:123456")
	assert.True(t, ok)
	assert.Equal(t, "10", id)

	id, ok = got.Get("NKD:TK MELATI|MEKAR|CIBODAS")
	assert.True(t, ok)
	assert.Equal(t, "12", id)

	_, ok = got.Get("NPSN:000000")
	assert.False(t, ok)
	_, ok = got.Get("NKD:UNKNOWN||")
	assert.False(t, ok)
}

func TestLookupChunksLargeRequests(t *testing.T) {
	s := memstore.New()
	var ids []string
	for i := 0; i < 1200; i++ {
		npsn := fmt.Sprintf("%08d", i)
		s.Load(SchoolsTable, store.Row{"npsn": npsn})
		ids = append(ids, PrefixNPSN+npsn)
	}

	got, err := NewResolver(s, nil).Lookup(context.Background(), ids)
	require.NoError(t, err)
	assert.Len(t, got, 1200)
}

func TestLookupFailsFast(t *testing.T) {
	s := memstore.New()
	s.FailOn = map[string]string{SchoolsTable: "select"}

	_, err := NewResolver(s, nil).Lookup(context.Background(), []string{"NPSN:1"})
	require.Error(t, err)
	var storeErr *store.Error
	assert.ErrorAs(t, err, &storeErr)
}
