package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/entity"
	"github.com/sarpras-dashboard/sarpras-sync/format"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/identity"
	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// UnknownKecamatan groups schools without a kecamatan.
const UnknownKecamatan = "TANPA KECAMATAN"

// SummaryFile is the aggregation written next to the per-jenjang files.
const SummaryFile = "summary.json"

// ExportOptions configures an export.
type ExportOptions struct {
	// Out is the output directory.
	Out string

	// Flat lists tabular formats (xlsx, csv, json) written as one
	// sarpras.<ext> file with one row per school.
	Flat []string

	// Now stamps the summary (default time.Now).
	Now func() time.Time
}

// ExportResult lists the files written.
type ExportResult struct {
	Files   []string
	Schools int
}

// KecamatanSummary aggregates the schools of one kecamatan.
type KecamatanSummary struct {
	Schools           int     `json:"schools"`
	ClassGood         float64 `json:"class_good"`
	ClassModerate     float64 `json:"class_moderate_damage"`
	ClassHeavy        float64 `json:"class_heavy_damage"`
	ClassTotal        float64 `json:"class_total_room"`
	LackingRKB        float64 `json:"lacking_rkb"`
	Toilets           float64 `json:"toilets"`
	Laboratories      float64 `json:"laboratories"`
	RehabVolume       float64 `json:"rehab_volume"`
	PembangunanVolume float64 `json:"pembangunan_volume"`
	ActivityBudget    float64 `json:"activity_budget"`
	StudentCount      float64 `json:"student_count"`
}

// LevelSummary aggregates one jenjang.
type LevelSummary struct {
	Schools   int                          `json:"schools"`
	Kecamatan map[string]*KecamatanSummary `json:"kecamatan"`
}

// ExportSummary is the content of summary.json.
type ExportSummary struct {
	GeneratedAt time.Time                `json:"generated_at"`
	RunID       string                   `json:"run_id,omitempty"`
	Jenjang     map[string]*LevelSummary `json:"jenjang"`
}

// Export pages every table, joins entity rows onto their school and writes
// <out>/<jenjang>.json grouped by kecamatan plus summary.json. A failing
// entity table is counted and skipped; failing to aggregate or write is
// fatal.
func (r *Runner) Export(ctx context.Context, st *State, opts ExportOptions) (*ExportResult, error) {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	schoolMapper, ok := r.mappers.Get(entity.School)
	if !ok {
		return nil, fmt.Errorf("no mapper for %s", entity.School)
	}
	mappers, err := r.mappers.Select(nil)
	if err != nil {
		return nil, err
	}
	st.Summary.Declare(entity.School)
	for _, m := range mappers {
		st.Summary.Declare(m.Name())
	}

	schoolRows, err := store.SelectAll(ctx, r.store, schoolMapper.Table(), store.Query{Order: []string{"id"}})
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", schoolMapper.Table(), err)
	}
	schools := make(map[string]map[string]any, len(schoolRows))
	for _, row := range schoolRows {
		id := value.Text(row["id"])
		if id == "" {
			st.Summary.Entity(entity.School, Skip, 1)
			continue
		}
		schools[id] = map[string]any(row)
	}

	for _, m := range mappers {
		if err := r.attach(ctx, st, m, schools); err != nil {
			st.Summary.Entity(m.Name(), Fail, 1)
			r.logger.Error("export table failed",
				zap.String("run_id", st.RunID),
				zap.String("table", m.Table()),
				zap.Error(err),
			)
		}
	}

	levels := make(map[hub.Jenjang]map[string][]map[string]any)
	for _, school := range schools {
		level := hub.ParseJenjang(value.Text(school["jenjang"]))
		if level == hub.JenjangUnknown {
			st.Summary.Entity(entity.School, Skip, 1)
			continue
		}
		kec := kecamatanOf(school)
		if levels[level] == nil {
			levels[level] = make(map[string][]map[string]any)
		}
		levels[level][kec] = append(levels[level][kec], school)
		st.Summary.Entity(entity.School, OK, 1)
	}

	if err := os.MkdirAll(opts.Out, 0o755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", opts.Out, err)
	}
	result := &ExportResult{}
	for _, level := range hub.AllJenjang {
		groups := levels[level]
		if groups == nil {
			groups = map[string][]map[string]any{}
		}
		for kec := range groups {
			sortByName(groups[kec])
			result.Schools += len(groups[kec])
		}
		path := filepath.Join(opts.Out, strings.ToLower(string(level))+".json")
		if err := writeJSON(path, groups); err != nil {
			return nil, err
		}
		result.Files = append(result.Files, path)
	}

	summary, err := aggregate(levels)
	if err != nil {
		return nil, fmt.Errorf("aggregating: %w", err)
	}
	summary.GeneratedAt = now().UTC()
	summary.RunID = st.RunID
	path := filepath.Join(opts.Out, SummaryFile)
	if err := writeJSON(path, summary); err != nil {
		return nil, err
	}
	result.Files = append(result.Files, path)

	if len(opts.Flat) > 0 {
		rows := flatten(levels, mappers)
		for _, name := range opts.Flat {
			path, err := writeFlat(opts.Out, name, rows)
			if err != nil {
				return nil, err
			}
			result.Files = append(result.Files, path)
		}
	}

	r.logger.Info("export written",
		zap.String("run_id", st.RunID),
		zap.String("out", opts.Out),
		zap.Int("schools", result.Schools),
		zap.Int("files", len(result.Files)),
	)
	return result, nil
}

// attach pages one entity table onto the schools. Single-row entities
// become an object, the others a list.
func (r *Runner) attach(ctx context.Context, st *State, m entity.Mapper, schools map[string]map[string]any) error {
	keys := store.SplitKey(m.ConflictKey())
	rows, err := store.SelectAll(ctx, r.store, m.Table(), store.Query{Order: keys})
	if err != nil {
		return err
	}
	single := isSingle(m)
	for _, row := range rows {
		school, ok := schools[value.Text(row[m.OwnerKey()])]
		if !ok {
			st.Summary.Entity(m.Name(), Skip, 1)
			continue
		}
		out := make(map[string]any, len(row))
		for k, v := range row {
			if k != m.OwnerKey() && k != "id" {
				out[k] = v
			}
		}
		if single {
			school[m.Name()] = out
		} else {
			list, _ := school[m.Name()].([]map[string]any)
			school[m.Name()] = append(list, out)
		}
		st.Summary.Entity(m.Name(), OK, 1)
	}
	return nil
}

// isSingle reports whether an entity has at most one row per school.
func isSingle(m entity.Mapper) bool {
	keys := store.SplitKey(m.ConflictKey())
	return len(keys) == 1 && keys[0] == m.OwnerKey()
}

func kecamatanOf(school map[string]any) string {
	kec := value.Clean(school["kecamatan"], value.WithCollapseWhitespace())
	if kec == "" {
		return UnknownKecamatan
	}
	return strings.ToUpper(kec)
}

func sortByName(schools []map[string]any) {
	sort.SliceStable(schools, func(i, j int) bool {
		a := identity.NormalizeName(value.Text(schools[i]["name"]))
		b := identity.NormalizeName(value.Text(schools[j]["name"]))
		if a != b {
			return a < b
		}
		return value.Text(schools[i]["npsn"]) < value.Text(schools[j]["npsn"])
	})
}

func aggregate(levels map[hub.Jenjang]map[string][]map[string]any) (*ExportSummary, error) {
	out := &ExportSummary{Jenjang: make(map[string]*LevelSummary)}
	for _, level := range hub.AllJenjang {
		ls := &LevelSummary{Kecamatan: make(map[string]*KecamatanSummary)}
		for kec, schools := range levels[level] {
			ks := &KecamatanSummary{}
			for _, school := range schools {
				ks.add(school)
			}
			ls.Kecamatan[kec] = ks
			ls.Schools += ks.Schools
		}
		out.Jenjang[string(level)] = ls
	}

	// Aggregates are checked with the same rules as written rows.
	var flat []map[string]any
	for _, ls := range out.Jenjang {
		for _, ks := range ls.Kecamatan {
			flat = append(flat, ks.columns())
		}
	}
	if res := hub.ValidateRows(flat, hub.ValidationOptions{}); !res.IsValid() {
		return nil, res.Error()
	}
	return out, nil
}

func (k *KecamatanSummary) add(school map[string]any) {
	k.Schools++
	k.StudentCount += value.Number(school["student_count"], 0)
	if cc, ok := school[entity.ClassCondition].(map[string]any); ok {
		k.ClassGood += value.Number(cc["good"], 0)
		k.ClassModerate += value.Number(cc["moderate_damage"], 0)
		k.ClassHeavy += value.Number(cc["heavy_damage"], 0)
		k.ClassTotal += value.Number(cc["total_room"], 0)
		k.LackingRKB += value.Number(cc["lacking_rkb"], 0)
	}
	for _, t := range listOf(school, entity.Toilet) {
		k.Toilets += value.Number(t["total"], 0)
	}
	for _, l := range listOf(school, entity.Laboratory) {
		k.Laboratories += value.Number(l["total"], 0)
	}
	for _, a := range listOf(school, entity.Kegiatan) {
		switch value.Text(a["activity"]) {
		case hub.ActivityRehab:
			k.RehabVolume += value.Number(a["volume"], 0)
		case hub.ActivityPembangunan:
			k.PembangunanVolume += value.Number(a["volume"], 0)
		}
		k.ActivityBudget += value.Number(a["budget"], 0)
	}
}

func (k *KecamatanSummary) columns() map[string]any {
	return map[string]any{
		"class_good":            k.ClassGood,
		"class_moderate_damage": k.ClassModerate,
		"class_heavy_damage":    k.ClassHeavy,
		"class_total_room":      k.ClassTotal,
		"lacking_rkb":           k.LackingRKB,
		"toilets":               k.Toilets,
		"laboratories":          k.Laboratories,
		"rehab_volume":          k.RehabVolume,
		"pembangunan_volume":    k.PembangunanVolume,
		"activity_budget":       k.ActivityBudget,
		"student_count":         k.StudentCount,
	}
}

func listOf(school map[string]any, name string) []map[string]any {
	list, _ := school[name].([]map[string]any)
	return list
}

// flatten builds one row per school. Single-row entities contribute
// <entity>_<column>; multi-row entities contribute
// <entity>_<discriminator>_<column> summed over rows.
func flatten(levels map[hub.Jenjang]map[string][]map[string]any, mappers []entity.Mapper) []map[string]any {
	var rows []map[string]any
	for _, level := range hub.AllJenjang {
		groups := levels[level]
		kecs := make([]string, 0, len(groups))
		for kec := range groups {
			kecs = append(kecs, kec)
		}
		sort.Strings(kecs)
		for _, kec := range kecs {
			for _, school := range groups[kec] {
				rows = append(rows, flatRow(school, mappers))
			}
		}
	}
	return rows
}

func flatRow(school map[string]any, mappers []entity.Mapper) map[string]any {
	row := make(map[string]any)
	for k, v := range school {
		switch v.(type) {
		case map[string]any, []map[string]any:
		default:
			row[k] = v
		}
	}
	for _, m := range mappers {
		if obj, ok := school[m.Name()].(map[string]any); ok {
			for col, v := range obj {
				row[m.Name()+"_"+col] = v
			}
			continue
		}
		keys := store.SplitKey(m.ConflictKey())
		if len(keys) < 2 {
			continue
		}
		disc := keys[1]
		for _, item := range listOf(school, m.Name()) {
			prefix := m.Name() + "_" + strings.ToLower(value.Text(item[disc])) + "_"
			for col, v := range item {
				if col == disc || !value.HasNumber(v) {
					continue
				}
				if _, isText := v.(string); isText {
					continue
				}
				row[prefix+col] = value.Number(row[prefix+col], 0) + value.Number(v, 0)
			}
		}
	}
	return row
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

func writeFlat(dir, name string, rows []map[string]any) (string, error) {
	ser, err := format.GetSerializer(name)
	if err != nil {
		return "", err
	}
	ext := name
	if exts := ser.Extensions(); len(exts) > 0 {
		ext = exts[0]
	}
	path := filepath.Join(dir, "sarpras."+ext)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()

	opts := format.NewSerializeOptions()
	if err := ser.Serialize(f, rows, opts); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, f.Close()
}
