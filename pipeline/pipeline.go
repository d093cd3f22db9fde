// Package pipeline orchestrates the drivers: read source documents, resolve
// identities once, map every selected entity and sync each table.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sarpras-dashboard/sarpras-sync/entity"
	"github.com/sarpras-dashboard/sarpras-sync/hub"
	"github.com/sarpras-dashboard/sarpras-sync/identity"
	"github.com/sarpras-dashboard/sarpras-sync/metrics"
	"github.com/sarpras-dashboard/sarpras-sync/source"
	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/syncer"
)

// Driver names.
const (
	DriverIngest        = "ingest"
	DriverSeed          = "seed"
	DriverUpsert        = "upsert"
	DriverUpsertGeneric = "upsert-generic"
	DriverExport        = "export"
	DriverValidate      = "validate"
)

// DefaultParallel is the number of tables synced concurrently.
const DefaultParallel = 4

// Runner executes drivers against a store.
type Runner struct {
	store    store.Store
	mappers  *entity.Registry
	engine   *syncer.Engine
	resolver *identity.Resolver
	logger   *zap.Logger
	parallel int
	out      io.Writer
	syncOpts []syncer.Option
}

// Option configures a Runner.
type Option func(*Runner)

// WithParallel sets how many tables are synced concurrently.
func WithParallel(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.parallel = n
		}
	}
}

// WithOutput sets where summaries are printed (default: io.Discard).
func WithOutput(w io.Writer) Option {
	return func(r *Runner) { r.out = w }
}

// WithSyncOptions passes options to the sync engine.
func WithSyncOptions(opts ...syncer.Option) Option {
	return func(r *Runner) { r.syncOpts = append(r.syncOpts, opts...) }
}

// New creates a runner.
func New(s store.Store, mappers *entity.Registry, logger *zap.Logger, opts ...Option) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		store:    s,
		mappers:  mappers,
		logger:   logger,
		parallel: DefaultParallel,
		out:      io.Discard,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.engine = syncer.New(s, logger, r.syncOpts...)
	r.resolver = identity.NewResolver(s, logger)
	return r
}

// SyncOptions controls an entity sync run.
type SyncOptions struct {
	// Only selects entities; empty means every entity.
	Only []string

	Mode syncer.Mode

	// SkipZero applies the zero-row guard.
	SkipZero bool
}

// Report is the outcome of a driver run.
type Report struct {
	Results []syncer.Result
}

// resolved is a source record with its identity.
type resolved struct {
	rec      hub.Raw
	source   string
	jenjang  hub.Jenjang
	identity string
}

// Ingest maps and syncs every selected entity from docs. It is the ingest
// driver; Upsert runs the same flow in merge mode without the zero guard.
func (r *Runner) Ingest(ctx context.Context, st *State, docs []source.Document, opts SyncOptions) (*Report, error) {
	mappers, err := r.mappers.Select(opts.Only)
	if err != nil {
		return nil, err
	}
	for _, m := range mappers {
		st.Summary.Declare(m.Name())
	}

	recs := r.collect(st, docs)
	ids, err := r.resolve(ctx, st, recs)
	if err != nil {
		return nil, err
	}

	in := entity.Input{SkipZero: opts.SkipZero}
	outcomes := make(recordOutcomes, len(recs))
	pending := make([]pendingTable, 0, len(mappers))
	for _, m := range mappers {
		pending = append(pending, pendingTable{
			mapper: m,
			rows:   r.mapEntity(st, m, recs, ids, in, outcomes),
		})
	}
	outcomes.flush(st.Summary, func(i int) string { return recs[i].source })

	mode := opts.Mode
	if mode == "" {
		mode = syncer.ModeMerge
	}
	return r.syncAll(ctx, st, pending, mode)
}

// Upsert is the fast path for one document: merge only, no zero guard.
// An empty only selects every entity.
func (r *Runner) Upsert(ctx context.Context, st *State, doc source.Document, only []string) (*Report, error) {
	return r.Ingest(ctx, st, []source.Document{doc}, SyncOptions{Only: only, Mode: syncer.ModeMerge})
}

// Seed upserts the schools table from docs, then re-resolves identities
// and syncs every selected entity.
func (r *Runner) Seed(ctx context.Context, st *State, docs []source.Document, opts SyncOptions) (*Report, error) {
	m, ok := r.mappers.Get(entity.School)
	if !ok {
		return nil, fmt.Errorf("no mapper for %s", entity.School)
	}
	st.Summary.Declare(m.Name())

	var rows []store.Row
	for _, doc := range docs {
		for _, rec := range doc.Records {
			out, err := entity.Apply(m, rec, entity.Input{Jenjang: doc.Source.Level()})
			if o, ok := r.account(st, m, err); !ok {
				st.Summary.Source(doc.Source.Name, o, 1)
				continue
			}
			for _, c := range out {
				if row, ok := r.checkRow(st, m, store.Row(c.Columns())); ok {
					rows = append(rows, row)
					st.Summary.Source(doc.Source.Name, OK, 1)
				} else {
					st.Summary.Record(m.Name(), doc.Source.Name, Fail)
				}
			}
		}
	}

	report, err := r.syncAll(ctx, st, []pendingTable{{mapper: m, rows: rows}}, syncer.ModeMerge)
	if err != nil {
		return report, fmt.Errorf("seeding %s: %w", m.Table(), err)
	}

	rest, err := r.Ingest(ctx, st, docs, opts)
	if rest != nil {
		report.Results = append(report.Results, rest.Results...)
	}
	return report, err
}

// collect flattens docs into records with their identity.
func (r *Runner) collect(st *State, docs []source.Document) []resolved {
	var recs []resolved
	for _, doc := range docs {
		if doc.Err != nil {
			st.Inc(CounterSourcesUnavailable, 1)
			continue
		}
		for _, rec := range doc.Records {
			id := identity.Resolve(rec, "")
			if id == "" {
				st.Inc(CounterNoIdentity, 1)
			}
			recs = append(recs, resolved{
				rec:      rec,
				source:   doc.Source.Name,
				jenjang:  doc.Source.Level(),
				identity: id,
			})
		}
	}
	return recs
}

// resolve looks every identity up in one pass. A failed lookup aborts.
func (r *Runner) resolve(ctx context.Context, st *State, recs []resolved) (identity.Map, error) {
	ids := make([]string, 0, len(recs))
	for _, rec := range recs {
		if rec.identity != "" {
			ids = append(ids, rec.identity)
		}
	}
	m, err := r.resolver.Lookup(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("resolving identities: %w", err)
	}
	unresolved := 0
	for _, rec := range recs {
		if _, ok := m.Get(rec.identity); rec.identity != "" && !ok {
			unresolved++
		}
	}
	st.Inc(CounterUnresolved, unresolved)
	r.logger.Info("identities resolved",
		zap.String("run_id", st.RunID),
		zap.Int("records", len(recs)),
		zap.Int("schools", len(m)),
		zap.Int("unresolved", unresolved),
	)
	return m, nil
}

// mapEntity maps every record for one entity and attaches the school id.
// Each record's outcome is noted in outcomes at the record's index.
func (r *Runner) mapEntity(st *State, m entity.Mapper, recs []resolved, ids identity.Map, in entity.Input, outcomes recordOutcomes) []store.Row {
	var rows []store.Row
	for i, rec := range recs {
		sid, ok := ids.Get(rec.identity)
		if !ok {
			st.Summary.Entity(m.Name(), Skip, 1)
			outcomes.note(i, Skip)
			continue
		}

		in.Jenjang = rec.jenjang
		out, err := entity.Apply(m, rec.rec, in)
		if o, ok := r.account(st, m, err); !ok {
			outcomes.note(i, o)
			continue
		}

		mapped := false
		for _, c := range out {
			row := store.Row(c.Columns())
			row[m.OwnerKey()] = sid
			if row, ok := r.checkRow(st, m, row); ok {
				rows = append(rows, row)
				mapped = true
			}
		}
		if mapped {
			outcomes.note(i, OK)
		} else {
			st.Summary.Entity(m.Name(), Fail, 1)
			outcomes.note(i, Fail)
		}
	}
	return rows
}

// account counts a mapping error against the entity and reports whether
// the record mapped. The outcome is Skip or Fail when it did not.
func (r *Runner) account(st *State, m table, err error) (Outcome, bool) {
	switch {
	case err == nil:
		return OK, true
	case entity.IsSkip(err):
		if errors.Is(err, entity.ErrZeroCounts) {
			st.Inc(CounterZeroSkipped, 1)
		}
		st.Summary.Entity(m.Name(), Skip, 1)
		return Skip, false
	default:
		r.logger.Warn("mapping failed",
			zap.String("run_id", st.RunID),
			zap.String("entity", m.Name()),
			zap.Error(err),
		)
		st.Summary.Entity(m.Name(), Fail, 1)
		return Fail, false
	}
}

// checkRow validates a row right before it is queued for writing.
func (r *Runner) checkRow(st *State, m table, row store.Row) (store.Row, bool) {
	res := hub.ValidateRows([]map[string]any{row}, hub.DefaultValidationOptions(m.ConflictKey()))
	for _, w := range res.Warnings {
		r.logger.Debug("row warning", zap.String("entity", m.Name()), zap.String("warning", w.Error()))
	}
	if !res.IsValid() {
		st.Inc(CounterInvalidRows, 1)
		r.logger.Warn("invalid row dropped",
			zap.String("entity", m.Name()),
			zap.Error(res.Error()),
		)
		return nil, false
	}
	return row, true
}

// table is the write metadata of an entity. Every entity.Mapper is one.
type table interface {
	Name() string
	Table() string
	ConflictKey() string
	OwnerKey() string
}

type pendingTable struct {
	mapper table
	rows   []store.Row
}

// syncAll writes each table, up to r.parallel tables at a time. A failing
// table never stops its siblings; every error is returned joined.
func (r *Runner) syncAll(ctx context.Context, st *State, tables []pendingTable, mode syncer.Mode) (*Report, error) {
	report := &Report{Results: make([]syncer.Result, len(tables))}
	var (
		mu   sync.Mutex
		errs []error
	)

	var g errgroup.Group
	g.SetLimit(r.parallel)
	for i, t := range tables {
		g.Go(func() error {
			m := t.mapper
			target := syncer.Target{Table: m.Table(), ConflictKey: m.ConflictKey(), OwnerKey: m.OwnerKey()}
			rows := t.rows
			if keys := store.SplitKey(m.ConflictKey()); len(keys) > 0 {
				rows = syncer.Dedupe(rows, keys)
			}

			res, err := r.engine.Sync(ctx, target, rows, mode)
			report.Results[i] = res
			metrics.RecordWrite(res.Table, string(res.Mode), res.Written, res.Deleted, res.Failed)

			st.Summary.Entity(m.Name(), OK, res.Written)
			if err != nil {
				st.Summary.Entity(m.Name(), Fail, max(res.Input-res.Written, 1))
				r.logger.Error("entity sync failed",
					zap.String("run_id", st.RunID),
					zap.String("entity", m.Name()),
					zap.Error(err),
				)
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", m.Name(), err))
				mu.Unlock()
				return nil
			}
			r.logger.Info("entity synced",
				zap.String("run_id", st.RunID),
				zap.String("entity", m.Name()),
				zap.String("mode", string(res.Mode)),
				zap.Int("written", res.Written),
				zap.Int("deleted", res.Deleted),
				zap.Bool("empty", res.Empty),
			)
			return nil
		})
	}
	_ = g.Wait()
	return report, errors.Join(errs...)
}

// Finish prints the summary and returns an error when any entity failed.
// Drivers call it on every exit path.
func (r *Runner) Finish(st *State, runErr error) error {
	st.Summary.Print(r.out)
	r.logger.Info("run finished",
		zap.String("run_id", st.RunID),
		zap.String("driver", st.Driver),
		zap.Any("counters", st.Counters()),
	)
	if runErr != nil {
		return runErr
	}
	if st.Summary.Failed() {
		return fmt.Errorf("%s: some entities failed", st.Driver)
	}
	return nil
}
