// Package postgres implements store.Store directly against Postgres.
//
// It is the fallback for environments that reach the database through a
// connection string instead of the Supabase REST endpoint.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/huandu/go-sqlbuilder"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/store"
)

// DefaultTimeout bounds each statement.
const DefaultTimeout = 30 * time.Second

// Store executes store operations as SQL statements.
type Store struct {
	db      *sqlx.DB
	timeout time.Duration
	logger  *zap.Logger
}

var _ store.Store = (*Store)(nil)

// Open connects to the database at dsn using the lib/pq driver.
func Open(dsn string, timeout time.Duration, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	return New(db, timeout, logger), nil
}

// New wraps an existing connection pool.
func New(db *sqlx.DB, timeout time.Duration, logger *zap.Logger) *Store {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, timeout: timeout, logger: logger}
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Select implements store.Store.
func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	if len(q.Columns) == 0 {
		sb.Select("*")
	} else {
		sb.Select(quoteAll(q.Columns)...)
	}
	sb.From(pq.QuoteIdentifier(table))
	if where := conditions(&sb.Cond, q.Filters); len(where) > 0 {
		sb.Where(where...)
	}
	if len(q.Order) > 0 {
		sb.OrderBy(quoteAll(q.Order)...).Asc()
	}
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}
	if q.Offset > 0 {
		sb.Offset(q.Offset)
	}

	query, args := sb.Build()
	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		for k, v := range m {
			if b, ok := v.([]byte); ok {
				m[k] = string(b)
			}
		}
		out = append(out, store.Row(m))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	return out, nil
}

// Insert implements store.Store.
func (s *Store) Insert(ctx context.Context, table string, rows []store.Row) error {
	for _, group := range store.GroupByColumns(rows) {
		query, args := insertStatement(table, group)
		if err := s.exec(ctx, "insert", table, query, args); err != nil {
			return err
		}
	}
	return nil
}

// Upsert implements store.Store with INSERT ... ON CONFLICT DO UPDATE,
// touching only the columns present in the rows.
func (s *Store) Upsert(ctx context.Context, table string, rows []store.Row, onConflict string) error {
	keys := store.SplitKey(onConflict)
	if len(keys) == 0 {
		return &store.Error{Op: "upsert", Table: table, Message: "conflict key required"}
	}
	for _, group := range store.GroupByColumns(rows) {
		query, args := insertStatement(table, group)
		query += " " + onConflictClause(keys, store.Columns(group[0]))
		if err := s.exec(ctx, "upsert", table, query, args); err != nil {
			return err
		}
	}
	return nil
}

// Update implements store.Store.
func (s *Store) Update(ctx context.Context, table string, patch store.Row, filters ...store.Filter) error {
	if len(filters) == 0 {
		return &store.Error{Op: "update", Table: table, Message: "refusing unfiltered update"}
	}
	ub := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ub.Update(pq.QuoteIdentifier(table))
	cols := store.Columns(patch)
	assignments := make([]string, len(cols))
	for i, col := range cols {
		assignments[i] = ub.Assign(pq.QuoteIdentifier(col), sqlValue(patch[col]))
	}
	ub.Set(assignments...)
	ub.Where(conditions(&ub.Cond, filters)...)

	query, args := ub.Build()
	return s.exec(ctx, "update", table, query, args)
}

// Delete implements store.Store.
func (s *Store) Delete(ctx context.Context, table string, filters ...store.Filter) (int, error) {
	if len(filters) == 0 {
		return 0, &store.Error{Op: "delete", Table: table, Message: "refusing unfiltered delete"}
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(pq.QuoteIdentifier(table))
	db.Where(conditions(&db.Cond, filters)...)

	query, args := db.Build()
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return -1, nil
	}
	return int(n), nil
}

func (s *Store) exec(ctx context.Context, op, table, query string, args []any) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if pqErr, ok := err.(*pq.Error); ok {
			return fmt.Errorf("%s %s: %w", op, table, &store.Error{
				Op:      op,
				Table:   table,
				Message: string(pqErr.Code) + ": " + pqErr.Message,
			})
		}
		return fmt.Errorf("%s %s: %w", op, table, err)
	}
	s.logger.Debug("executed statement", zap.String("op", op), zap.String("table", table), zap.Int("args", len(args)))
	return nil
}

// insertStatement builds a multi-row INSERT for rows sharing one column set.
func insertStatement(table string, rows []store.Row) (string, []any) {
	cols := store.Columns(rows[0])
	ib := sqlbuilder.PostgreSQL.NewInsertBuilder()
	ib.InsertInto(pq.QuoteIdentifier(table))
	ib.Cols(quoteAll(cols)...)
	for _, row := range rows {
		vals := make([]any, len(cols))
		for i, col := range cols {
			vals[i] = sqlValue(row[col])
		}
		ib.Values(vals...)
	}
	return ib.Build()
}

func onConflictClause(keys, cols []string) string {
	isKey := make(map[string]bool, len(keys))
	for _, k := range keys {
		isKey[k] = true
	}
	var sets []string
	for _, col := range cols {
		if isKey[col] {
			continue
		}
		q := pq.QuoteIdentifier(col)
		sets = append(sets, q+" = EXCLUDED."+q)
	}
	target := "ON CONFLICT (" + strings.Join(quoteAll(keys), ", ") + ")"
	if len(sets) == 0 {
		return target + " DO NOTHING"
	}
	return target + " DO UPDATE SET " + strings.Join(sets, ", ")
}

func conditions(cond *sqlbuilder.Cond, filters []store.Filter) []string {
	out := make([]string, 0, len(filters))
	for _, f := range filters {
		col := pq.QuoteIdentifier(f.Column)
		switch {
		case f.Op == store.OpIn:
			if len(f.Values) == 0 {
				out = append(out, "FALSE")
				continue
			}
			out = append(out, cond.In(col, f.Values...))
		case len(f.Values) > 0:
			out = append(out, cond.Equal(col, f.Values[0]))
		default:
			out = append(out, cond.IsNull(col))
		}
	}
	return out
}

// sqlValue converts structured values to JSON for jsonb columns.
func sqlValue(v any) any {
	switch val := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil
		}
		return string(b)
	case json.Number:
		return val.String()
	default:
		return v
	}
}

func quoteAll(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pq.QuoteIdentifier(c)
	}
	return out
}
