// Package shape flattens arbitrarily shaped JSON documents into record lists.
//
// Source documents arrive as plain arrays, GeoJSON feature collections,
// API envelopes ({"data": [...]}), region-grouped objects
// ({"KecA": [...], "KecB": [...]}) or dictionaries of objects. Each shape is
// handled by a Detector; detectors are tried in a fixed order and the first
// match wins. An unrecognized shape yields no records rather than an error.
package shape

import (
	"sort"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// Detector pairs a shape predicate with the extractor for that shape.
type Detector struct {
	Name    string
	Match   func(doc any) bool
	Extract func(doc any) []hub.Raw
}

// ContainerKeys are envelope keys that may hold the record array.
var ContainerKeys = []string{"data", "rows", "items", "records", "payload", "result"}

// objectShare is the minimum share of object values for a dictionary of records.
const objectShare = 0.6

// Unrecognized is reported by Detect when no detector matched.
const Unrecognized = "unrecognized"

// Detectors returns the detectors in evaluation order.
func Detectors() []Detector {
	return []Detector{
		{Name: "array", Match: isArray, Extract: extractArray},
		{Name: "geojson", Match: isFeatureCollection, Extract: extractFeatures},
		{Name: "container", Match: hasContainer, Extract: extractContainer},
		{Name: "grouped", Match: isGrouped, Extract: extractGrouped},
		{Name: "dictionary", Match: isDictionary, Extract: extractDictionary},
	}
}

// Normalize converts a decoded document into records.
func Normalize(doc any) []hub.Raw {
	_, records := Detect(doc)
	return records
}

// Detect returns the name of the matching detector along with the records.
func Detect(doc any) (string, []hub.Raw) {
	for _, d := range Detectors() {
		if d.Match(doc) {
			return d.Name, d.Extract(doc)
		}
	}
	return Unrecognized, nil
}

func isArray(doc any) bool {
	_, ok := doc.([]any)
	return ok
}

func extractArray(doc any) []hub.Raw {
	return objects(doc.([]any))
}

func isFeatureCollection(doc any) bool {
	m, ok := value.Map(doc)
	if !ok {
		return false
	}
	features, ok := m["features"].([]any)
	if !ok {
		return false
	}
	for _, f := range features {
		if _, ok := value.Map(f); ok {
			return true
		}
	}
	return len(features) == 0
}

func extractFeatures(doc any) []hub.Raw {
	features := doc.(map[string]any)["features"].([]any)
	out := make([]hub.Raw, 0, len(features))
	for _, f := range features {
		feature, ok := value.Map(f)
		if !ok {
			continue
		}
		props, ok := value.Map(feature["properties"])
		if !ok {
			out = append(out, hub.Raw(feature))
			continue
		}
		rec := make(hub.Raw, len(props)+2)
		for k, v := range props {
			rec[k] = v
		}
		addPointCoordinates(rec, feature["geometry"])
		out = append(out, rec)
	}
	return out
}

// addPointCoordinates copies a GeoJSON Point's [lng, lat] into the record
// under _lng/_lat so coordinates survive the flattening.
func addPointCoordinates(rec hub.Raw, geometry any) {
	g, ok := value.Map(geometry)
	if !ok || value.Text(g["type"]) != "Point" {
		return
	}
	coords, ok := value.Slice(g["coordinates"])
	if !ok || len(coords) < 2 {
		return
	}
	rec["_lng"] = coords[0]
	rec["_lat"] = coords[1]
}

func hasContainer(doc any) bool {
	m, ok := value.Map(doc)
	if !ok {
		return false
	}
	for _, k := range ContainerKeys {
		if _, ok := m[k].([]any); ok {
			return true
		}
	}
	return false
}

func extractContainer(doc any) []hub.Raw {
	m := doc.(map[string]any)
	for _, k := range ContainerKeys {
		if arr, ok := m[k].([]any); ok {
			return objects(arr)
		}
	}
	return nil
}

func isGrouped(doc any) bool {
	m, ok := value.Map(doc)
	if !ok || len(m) == 0 {
		return false
	}
	for _, v := range m {
		if _, ok := v.([]any); !ok {
			return false
		}
	}
	return true
}

// extractGrouped concatenates every group, tagging each record with its
// group key so region-keyed files keep their kecamatan.
func extractGrouped(doc any) []hub.Raw {
	m := doc.(map[string]any)
	var out []hub.Raw
	for _, region := range sortedKeys(m) {
		for _, rec := range objects(m[region].([]any)) {
			tagged := make(hub.Raw, len(rec)+1)
			for k, v := range rec {
				tagged[k] = v
			}
			if _, ok := tagged[hub.RegionKey]; !ok {
				tagged[hub.RegionKey] = region
			}
			out = append(out, tagged)
		}
	}
	return out
}

func isDictionary(doc any) bool {
	m, ok := value.Map(doc)
	if !ok || len(m) == 0 {
		return false
	}
	objectsSeen := 0
	for _, v := range m {
		if _, ok := value.Map(v); ok {
			objectsSeen++
		}
	}
	return float64(objectsSeen)/float64(len(m)) >= objectShare
}

func extractDictionary(doc any) []hub.Raw {
	m := doc.(map[string]any)
	out := make([]hub.Raw, 0, len(m))
	for _, k := range sortedKeys(m) {
		if rec, ok := value.Map(m[k]); ok {
			out = append(out, hub.Raw(rec))
		}
	}
	return out
}

func objects(arr []any) []hub.Raw {
	out := make([]hub.Raw, 0, len(arr))
	for _, item := range arr {
		if m, ok := value.Map(item); ok {
			out = append(out, hub.Raw(m))
		}
	}
	return out
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
