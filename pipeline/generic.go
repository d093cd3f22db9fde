package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/mapping"
	"github.com/sarpras-dashboard/sarpras-sync/source"
	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/syncer"
)

// GenericOptions configures an upsert into an arbitrary table.
type GenericOptions struct {
	Profile *mapping.Profile

	// Table overrides the profile table.
	Table string

	// Conflict overrides the profile conflict key.
	Conflict string
}

// profileMapper writes every profile field as a column.
type profileMapper struct {
	profile  *mapping.Profile
	table    string
	conflict string
}

func (m profileMapper) Name() string        { return m.profile.GetEntity() }
func (m profileMapper) Table() string       { return m.table }
func (m profileMapper) ConflictKey() string { return m.conflict }
func (m profileMapper) OwnerKey() string    { return m.profile.GetOwnerKey() }

// UpsertGeneric merges doc into any table described by a mapping profile.
// The school id is attached through identity resolution; a record missing
// a required field is skipped.
func (r *Runner) UpsertGeneric(ctx context.Context, st *State, doc source.Document, opts GenericOptions) (*Report, error) {
	p := opts.Profile
	if p == nil {
		return nil, errors.New("upsert-generic needs a profile")
	}
	m := profileMapper{profile: p, table: p.Table, conflict: p.ConflictKey}
	if opts.Table != "" {
		m.table = opts.Table
	}
	if opts.Conflict != "" {
		m.conflict = opts.Conflict
	}
	if m.table == "" {
		return nil, fmt.Errorf("profile %q has no table; pass --table", p.Name)
	}
	if m.conflict == "" {
		m.conflict = hub.OwnerColumn
	}
	st.Summary.Declare(m.Name())

	recs := r.collect(st, []source.Document{doc})
	ids, err := r.resolve(ctx, st, recs)
	if err != nil {
		return nil, err
	}

	var rows []store.Row
	for _, rec := range recs {
		sid, ok := ids.Get(rec.identity)
		if !ok {
			st.Summary.Record(m.Name(), rec.source, Skip)
			continue
		}
		row, err := p.Row(rec.rec)
		if err != nil {
			if !errors.Is(err, mapping.ErrMissingField) {
				return nil, err
			}
			r.logger.Debug("record skipped", zap.String("profile", p.Name), zap.Error(err))
			st.Summary.Record(m.Name(), rec.source, Skip)
			continue
		}
		row[m.OwnerKey()] = sid
		checked, ok := r.checkRow(st, m, store.Row(row))
		if !ok {
			st.Summary.Record(m.Name(), rec.source, Fail)
			continue
		}
		rows = append(rows, checked)
		st.Summary.Source(rec.source, OK, 1)
	}

	return r.syncAll(ctx, st, []pendingTable{{mapper: m, rows: rows}}, syncer.ModeMerge)
}
