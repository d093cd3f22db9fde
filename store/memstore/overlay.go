package memstore

import (
	"context"

	"github.com/sarpras-dashboard/sarpras-sync/store"
)

// Overlay serves reads from a real store and captures every write in
// memory, for --dry-run. Deletes report how many base rows they would
// remove.
type Overlay struct {
	base   store.Store
	Writes *Store
}

var _ store.Store = (*Overlay)(nil)

// NewOverlay wraps base.
func NewOverlay(base store.Store) *Overlay {
	return &Overlay{base: base, Writes: New()}
}

func (o *Overlay) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	return o.base.Select(ctx, table, q)
}

func (o *Overlay) Insert(ctx context.Context, table string, rows []store.Row) error {
	return o.Writes.Insert(ctx, table, rows)
}

func (o *Overlay) Upsert(ctx context.Context, table string, rows []store.Row, onConflict string) error {
	return o.Writes.Upsert(ctx, table, rows, onConflict)
}

func (o *Overlay) Update(ctx context.Context, table string, patch store.Row, filters ...store.Filter) error {
	return o.Writes.Update(ctx, table, patch, filters...)
}

func (o *Overlay) Delete(ctx context.Context, table string, filters ...store.Filter) (int, error) {
	rows, err := store.SelectAll(ctx, o.base, table, store.Query{Columns: []string{"id"}, Filters: filters, Order: []string{"id"}})
	if err != nil {
		return 0, err
	}
	return len(rows), nil
}
