// Package memstore is an in-memory store.Store used for dry runs and tests.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// Store keeps every table as a slice of rows. Rows get an auto-incremented
// "id" when inserted without one.
type Store struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	nextID map[string]int

	// FailOn makes the named operation ("insert", "upsert", "delete",
	// "select", "update") fail for the given table. Used to exercise
	// failure paths.
	FailOn map[string]string
}

var _ store.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		tables: make(map[string][]store.Row),
		nextID: make(map[string]int),
	}
}

// Load appends rows to a table as-is.
func (s *Store) Load(table string, rows ...store.Row) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.insertLocked(table, r)
	}
}

// Rows returns a copy of every row in a table.
func (s *Store) Rows(table string) []store.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

// Tables returns the names of every table holding rows.
func (s *Store) Tables() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Store) fail(op, table string) error {
	if s.FailOn != nil && s.FailOn[table] == op {
		return &store.Error{Op: op, Table: table, Message: "injected failure"}
	}
	return nil
}

// Select implements store.Store.
func (s *Store) Select(_ context.Context, table string, q store.Query) ([]store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("select", table); err != nil {
		return nil, err
	}

	var matched []store.Row
	for _, r := range s.tables[table] {
		if matches(r, q.Filters) {
			matched = append(matched, r)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(matched, func(i, j int) bool {
			return less(matched[i], matched[j], q.Order)
		})
	}

	if q.Offset >= len(matched) {
		return []store.Row{}, nil
	}
	matched = matched[q.Offset:]
	if q.Limit > 0 && q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}

	out := make([]store.Row, 0, len(matched))
	for _, r := range matched {
		out = append(out, project(r, q.Columns))
	}
	return out, nil
}

// Insert implements store.Store.
func (s *Store) Insert(_ context.Context, table string, rows []store.Row) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("insert", table); err != nil {
		return err
	}
	for _, r := range rows {
		s.insertLocked(table, r)
	}
	return nil
}

// Upsert implements store.Store. Only the columns present in a row are
// written onto an existing match.
func (s *Store) Upsert(_ context.Context, table string, rows []store.Row, onConflict string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("upsert", table); err != nil {
		return err
	}
	keys := store.SplitKey(onConflict)
	if len(keys) == 0 {
		return &store.Error{Op: "upsert", Table: table, Message: "conflict key required"}
	}

	for _, r := range rows {
		idx := -1
		for i, existing := range s.tables[table] {
			if sameKey(existing, r, keys) {
				idx = i
				break
			}
		}
		if idx < 0 {
			s.insertLocked(table, r)
			continue
		}
		for k, v := range r {
			s.tables[table][idx][k] = v
		}
	}
	return nil
}

// Update implements store.Store.
func (s *Store) Update(_ context.Context, table string, patch store.Row, filters ...store.Filter) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("update", table); err != nil {
		return err
	}
	for _, r := range s.tables[table] {
		if !matches(r, filters) {
			continue
		}
		for k, v := range patch {
			r[k] = v
		}
	}
	return nil
}

// Delete implements store.Store.
func (s *Store) Delete(_ context.Context, table string, filters ...store.Filter) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("delete", table); err != nil {
		return 0, err
	}
	kept := s.tables[table][:0]
	removed := 0
	for _, r := range s.tables[table] {
		if matches(r, filters) {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	s.tables[table] = kept
	return removed, nil
}

func (s *Store) insertLocked(table string, r store.Row) {
	row := copyRow(r)
	if value.IsEmpty(row["id"]) {
		s.nextID[table]++
		row["id"] = strconv.Itoa(s.nextID[table])
	} else if n, err := strconv.Atoi(value.Text(row["id"])); err == nil && n > s.nextID[table] {
		s.nextID[table] = n
	}
	s.tables[table] = append(s.tables[table], row)
}

func matches(r store.Row, filters []store.Filter) bool {
	for _, f := range filters {
		got := value.Text(r[f.Column])
		found := false
		for _, want := range f.Values {
			if got == value.Text(want) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func sameKey(a, b store.Row, keys []string) bool {
	for _, k := range keys {
		if value.Text(a[k]) != value.Text(b[k]) {
			return false
		}
	}
	return true
}

func less(a, b store.Row, order []string) bool {
	for _, col := range order {
		av, bv := a[col], b[col]
		if value.HasNumber(av) && value.HasNumber(bv) {
			af, bf := value.Number(av, 0), value.Number(bv, 0)
			if af != bf {
				return af < bf
			}
			continue
		}
		as, bs := value.Text(av), value.Text(bv)
		if as != bs {
			return as < bs
		}
	}
	return false
}

func project(r store.Row, cols []string) store.Row {
	if len(cols) == 0 || (len(cols) == 1 && cols[0] == "*") {
		return copyRow(r)
	}
	out := make(store.Row, len(cols))
	for _, c := range cols {
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func copyRow(r store.Row) store.Row {
	out := make(store.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// String summarizes table sizes, for dry-run reports.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.tables))
	for name := range s.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%d", name, len(s.tables[name]))
	}
	return out
}
