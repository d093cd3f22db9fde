// Package identity derives a stable school identity from a raw record and
// resolves identities to backing-store school ids.
//
// An identity is either "NPSN:<digits>" when the record carries a national
// school number, or a composite "NKD:<NAME>|<VILLAGE>|<SUBDISTRICT>" built
// from normalized name, village and kecamatan.
package identity

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// Identity prefixes.
const (
	PrefixNPSN = "NPSN:"
	PrefixNKD  = "NKD:"
)

// Kind classifies an identity string.
type Kind int

const (
	KindNone Kind = iota
	KindNPSN
	KindNKD
)

func (k Kind) String() string {
	switch k {
	case KindNPSN:
		return "npsn"
	case KindNKD:
		return "nkd"
	default:
		return "none"
	}
}

// Lookup keys, tried in order. Matching is case-insensitive.
var (
	NPSNKeys      = []string{"npsn", "kode", "kode_sekolah"}
	NestedKeys    = []string{"raw", "properties"}
	NameKeys      = []string{"nama", "name", "nama_sekolah", "namaSekolah", "school_name", "sekolah"}
	VillageKeys   = []string{"desa", "village", "kelurahan", "desa_kelurahan", "desaKelurahan"}
	KecamatanKeys = []string{"kecamatan", "kec", "subdistrict", "district"}
)

var (
	kecamatanWord = regexp.MustCompile(`\bKEC(AMATAN)?\b`)
	foldMarks     = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// KindOf classifies id.
func KindOf(id string) Kind {
	switch {
	case strings.HasPrefix(id, PrefixNPSN):
		return KindNPSN
	case strings.HasPrefix(id, PrefixNKD):
		return KindNKD
	default:
		return KindNone
	}
}

// Resolve returns the identity of rec, or "" when the record carries
// neither an NPSN nor a school name. regionHint stands in for the
// subdistrict when the record has none.
func Resolve(rec hub.Raw, regionHint string) string {
	if npsn := NPSN(rec); npsn != "" {
		return PrefixNPSN + npsn
	}

	name := lookup(rec, NameKeys)
	if strings.TrimSpace(name) == "" {
		return ""
	}
	village := lookup(rec, VillageKeys)
	kec := lookup(rec, KecamatanKeys)
	if strings.TrimSpace(kec) == "" {
		kec = value.FirstNonEmpty(regionHint, rec[hub.RegionKey])
	}
	return Composite(name, village, kec)
}

// NPSN returns the digit-only national school number carried by rec,
// searched at top level first and then inside the nested raw/properties
// objects.
func NPSN(rec hub.Raw) string {
	if n := NormalizeNPSN(lookup(rec, NPSNKeys)); n != "" {
		return n
	}
	for _, key := range NestedKeys {
		v, ok := value.Get(rec, key)
		if !ok {
			continue
		}
		if nested, ok := value.Map(v); ok {
			if n := NormalizeNPSN(lookup(nested, NPSNKeys)); n != "" {
				return n
			}
		}
	}
	return ""
}

// NormalizeNPSN keeps only the ASCII digits of s.
func NormalizeNPSN(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Composite builds the NKD identity from raw name, village and kecamatan.
func Composite(name, village, kecamatan string) string {
	return PrefixNKD + NormalizeName(name) + "|" + NormalizeName(village) + "|" + NormalizeKecamatan(kecamatan)
}

// NormalizeName folds diacritics, uppercases and collapses whitespace.
func NormalizeName(s string) string {
	return strings.Join(strings.Fields(strings.ToUpper(fold(s))), " ")
}

// NormalizeKecamatan uppercases s, drops the words KEC and KECAMATAN and
// keeps letters only: "Kec. Batang Hari" becomes "BATANGHARI".
func NormalizeKecamatan(s string) string {
	s = kecamatanWord.ReplaceAllString(strings.ToUpper(fold(s)), "")
	var b strings.Builder
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func fold(s string) string {
	out, _, err := transform.String(foldMarks, s)
	if err != nil {
		return s
	}
	return out
}

func lookup(m map[string]any, keys []string) string {
	for _, k := range keys {
		if v, ok := value.Get(m, k); ok {
			if s := strings.TrimSpace(value.Text(v)); s != "" {
				return s
			}
		}
	}
	return ""
}
