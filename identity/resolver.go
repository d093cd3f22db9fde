package identity

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// ChunkSize bounds the number of NPSNs per lookup query.
const ChunkSize = 500

// SchoolsTable is the table holding one row per school.
const SchoolsTable = "schools"

// Map is an identity → school row id map. It is read-only once returned by
// Lookup and safe to share between goroutines.
type Map map[string]string

// Get returns the school id for id.
func (m Map) Get(id string) (string, bool) {
	sid, ok := m[id]
	return sid, ok && sid != ""
}

// Resolver maps identities to school ids with as few round trips as possible.
type Resolver struct {
	Store  store.Store
	Logger *zap.Logger

	// Table defaults to SchoolsTable.
	Table string
}

// NewResolver creates a resolver over the schools table of s.
func NewResolver(s store.Store, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{Store: s, Logger: logger, Table: SchoolsTable}
}

// Lookup resolves every identity in one pass. NPSN identities are queried
// with "npsn in (...)" in chunks of ChunkSize; NKD identities are matched by
// paging the whole schools table and computing composite keys locally.
// Any failed query aborts the lookup. Identities without a school are
// absent from the result.
func (r *Resolver) Lookup(ctx context.Context, ids []string) (Map, error) {
	table := r.Table
	if table == "" {
		table = SchoolsTable
	}

	var npsns []string
	nkds := make(map[string]bool)
	seen := make(map[string]bool)
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		switch KindOf(id) {
		case KindNPSN:
			npsns = append(npsns, id[len(PrefixNPSN):])
		case KindNKD:
			nkds[id] = true
		}
	}
	sort.Strings(npsns)

	out := make(Map, len(seen))
	chunks := (len(npsns) + ChunkSize - 1) / ChunkSize
	for i := 0; i < chunks; i++ {
		end := min((i+1)*ChunkSize, len(npsns))
		chunk := npsns[i*ChunkSize : end]
		rows, err := store.SelectAll(ctx, r.Store, table, store.Query{
			Columns: []string{"id", "npsn"},
			Filters: []store.Filter{store.InStrings("npsn", chunk)},
			Order:   []string{"id"},
		})
		if err != nil {
			return nil, fmt.Errorf("resolving NPSN chunk %d/%d: %w", i+1, chunks, err)
		}
		for _, row := range rows {
			npsn := NormalizeNPSN(value.Text(row["npsn"]))
			if npsn == "" {
				continue
			}
			out[PrefixNPSN+npsn] = value.Text(row["id"])
		}
	}

	if len(nkds) > 0 {
		rows, err := store.SelectAll(ctx, r.Store, table, store.Query{
			Columns: []string{"id", "name", "village", "kecamatan"},
			Order:   []string{"id"},
		})
		if err != nil {
			return nil, fmt.Errorf("resolving composite identities: %w", err)
		}
		for _, row := range rows {
			key := Composite(value.Text(row["name"]), value.Text(row["village"]), value.Text(row["kecamatan"]))
			if !nkds[key] {
				continue
			}
			if prev, ok := out[key]; ok {
				r.Logger.Warn("ambiguous composite identity",
					zap.String("identity", key),
					zap.String("kept", prev),
					zap.String("ignored", value.Text(row["id"])))
				continue
			}
			out[key] = value.Text(row["id"])
		}
	}

	r.Logger.Debug("resolved identities",
		zap.Int("requested", len(seen)),
		zap.Int("npsn", len(npsns)),
		zap.Int("nkd", len(nkds)),
		zap.Int("resolved", len(out)))
	return out, nil
}
