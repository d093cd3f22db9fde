// Package store defines the backing-store client used by the sync engine.
//
// The store is a relational database reachable through a table-oriented,
// REST-like API: select with filters and a range, insert, upsert on a
// conflict key, update and delete. Implementations live in subpackages:
// postgrest (Supabase over HTTP), postgres (direct SQL) and memstore
// (in-memory, for dry runs and tests).
package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// PageSize is the page length used by SelectAll. A shorter page marks the end.
const PageSize = 1000

// Row is one table row as a column → value map.
type Row map[string]any

// Op is a filter operator.
type Op string

const (
	OpEq Op = "eq"
	OpIn Op = "in"
)

// Filter restricts a select, update or delete.
type Filter struct {
	Column string
	Op     Op
	Values []any
}

// Eq filters column = v.
func Eq(column string, v any) Filter {
	return Filter{Column: column, Op: OpEq, Values: []any{v}}
}

// In filters column in (values...).
func In(column string, values ...any) Filter {
	return Filter{Column: column, Op: OpIn, Values: values}
}

// InStrings filters column in (values...) for string values.
func InStrings(column string, values []string) Filter {
	vs := make([]any, len(values))
	for i, v := range values {
		vs[i] = v
	}
	return In(column, vs...)
}

// Query describes a select.
type Query struct {
	// Columns to return; empty means all.
	Columns []string
	Filters []Filter
	// Order lists columns sorted ascending; required for stable paging.
	Order  []string
	Offset int
	// Limit of 0 means no limit.
	Limit int
}

// Range returns a copy of q restricted to [offset, offset+limit).
func (q Query) Range(offset, limit int) Query {
	q.Offset = offset
	q.Limit = limit
	return q
}

// Store is the backing-store client.
type Store interface {
	// Select returns rows matching q.
	Select(ctx context.Context, table string, q Query) ([]Row, error)

	// Insert appends rows. All rows must carry the same columns.
	Insert(ctx context.Context, table string, rows []Row) error

	// Upsert inserts rows or updates the existing row sharing the
	// conflict columns (comma separated). Only the columns present in
	// the rows are written. All rows must carry the same columns.
	Upsert(ctx context.Context, table string, rows []Row, onConflict string) error

	// Update applies patch to every row matching filters.
	Update(ctx context.Context, table string, patch Row, filters ...Filter) error

	// Delete removes every row matching filters and returns how many were
	// removed, or -1 when the store cannot tell.
	Delete(ctx context.Context, table string, filters ...Filter) (int, error)
}

// Error is a store-side failure for one operation.
type Error struct {
	Op      string
	Table   string
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.Table, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Op, e.Table, e.Message)
}

// SelectAll pages through every row matching q, PageSize rows at a time,
// until a short page signals the end of the data.
func SelectAll(ctx context.Context, s Store, table string, q Query) ([]Row, error) {
	var out []Row
	for offset := 0; ; offset += PageSize {
		page, err := s.Select(ctx, table, q.Range(offset, PageSize))
		if err != nil {
			return nil, fmt.Errorf("selecting %s at offset %d: %w", table, offset, err)
		}
		out = append(out, page...)
		if len(page) < PageSize {
			return out, nil
		}
	}
}

// Columns returns the sorted column names of a row.
func Columns(row Row) []string {
	cols := make([]string, 0, len(row))
	for k := range row {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

// GroupByColumns splits rows into groups sharing an identical column set,
// preserving first-seen order. Bulk writes never mix column sets, so an
// absent column is never sent as an implicit null.
func GroupByColumns(rows []Row) [][]Row {
	var order []string
	groups := make(map[string][]Row)
	for _, row := range rows {
		sig := strings.Join(Columns(row), ",")
		if _, ok := groups[sig]; !ok {
			order = append(order, sig)
		}
		groups[sig] = append(groups[sig], row)
	}
	out := make([][]Row, 0, len(order))
	for _, sig := range order {
		out = append(out, groups[sig])
	}
	return out
}

// SplitKey splits a comma-separated column list.
func SplitKey(key string) []string {
	var cols []string
	for _, c := range strings.Split(key, ",") {
		if c = strings.TrimSpace(c); c != "" {
			cols = append(cols, c)
		}
	}
	return cols
}
