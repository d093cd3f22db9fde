// Package syncer writes canonical rows to the backing store with merge
// (upsert) or replace (delete-then-insert) semantics, in bounded batches.
package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/sarpras-dashboard/sarpras-sync/store"
	"github.com/sarpras-dashboard/sarpras-sync/value"
)

// Batch limits.
const (
	WriteBatchSize  = 500
	DeleteChunkSize = 1000
)

// Mode is a sync mode.
type Mode string

const (
	ModeMerge   Mode = "merge"
	ModeReplace Mode = "replace"
)

// Target names a table and its keys.
type Target struct {
	Table string

	// ConflictKey is the comma-separated unique key used by merge.
	ConflictKey string

	// OwnerKey is the column whose values replace purges.
	OwnerKey string
}

// Result describes one table sync. Empty distinguishes "nothing to write"
// from "rows failed".
type Result struct {
	Table   string
	Mode    Mode
	Input   int
	Written int
	Deleted int
	Batches int
	Failed  int
	Empty   bool
}

// BatchError is a failed write batch. Partial is set when a replace had
// already deleted rows it could not re-insert.
type BatchError struct {
	Table   string
	Op      string
	Batch   int
	Offset  int
	Partial bool
	Cause   error
}

func (e *BatchError) Error() string {
	msg := fmt.Sprintf("%s %s batch %d (offset %d): %v", e.Op, e.Table, e.Batch, e.Offset, e.Cause)
	if e.Partial {
		msg += " (partial replace: earlier rows already deleted)"
	}
	return msg
}

func (e *BatchError) Unwrap() error {
	return e.Cause
}

// Engine runs syncs against a store. Batches of one table are written
// sequentially; callers may sync different tables concurrently.
type Engine struct {
	store     store.Store
	logger    *zap.Logger
	batchSize int
	chunkSize int
}

// Option configures an Engine.
type Option func(*Engine)

// WithBatchSize overrides the write batch size.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithDeleteChunkSize overrides the number of owner ids per delete.
func WithDeleteChunkSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// New creates an engine.
func New(s store.Store, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{store: s, logger: logger, batchSize: WriteBatchSize, chunkSize: DeleteChunkSize}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sync dispatches to Merge or Replace.
func (e *Engine) Sync(ctx context.Context, t Target, rows []store.Row, mode Mode) (Result, error) {
	if mode == ModeReplace {
		return e.Replace(ctx, t, rows)
	}
	return e.Merge(ctx, t, rows)
}

// Merge upserts rows on the conflict key. Absent, null, blank and NaN
// values are dropped first, so a merge never overwrites a stored value with
// nothing. Rows sharing a conflict key are merged in memory before writing.
func (e *Engine) Merge(ctx context.Context, t Target, rows []store.Row) (Result, error) {
	res := Result{Table: t.Table, Mode: ModeMerge, Input: len(rows)}
	prepared := Dedupe(coalesceAll(rows), store.SplitKey(t.ConflictKey))
	if len(prepared) == 0 {
		res.Empty = true
		e.logger.Info("nothing to merge", zap.String("table", t.Table))
		return res, nil
	}

	err := e.writeBatches(ctx, t.Table, prepared, &res, func(batch []store.Row) error {
		return e.store.Upsert(ctx, t.Table, batch, t.ConflictKey)
	}, "upsert", false)
	return res, err
}

// Replace deletes every row owned by the owners present in rows, then
// inserts rows. An empty input deletes nothing. A failed insert after a
// successful delete is reported as a partial BatchError and not rolled back.
func (e *Engine) Replace(ctx context.Context, t Target, rows []store.Row) (Result, error) {
	res := Result{Table: t.Table, Mode: ModeReplace, Input: len(rows)}
	prepared := coalesceAll(rows)
	if keys := store.SplitKey(t.ConflictKey); len(keys) > 0 {
		prepared = Dedupe(prepared, keys)
	}
	if len(prepared) == 0 {
		res.Empty = true
		e.logger.Info("nothing to replace", zap.String("table", t.Table))
		return res, nil
	}

	owners := OwnerIDs(prepared, t.OwnerKey)
	for i := 0; i < len(owners); i += e.chunkSize {
		chunk := owners[i:min(i+e.chunkSize, len(owners))]
		n, err := e.store.Delete(ctx, t.Table, store.InStrings(t.OwnerKey, chunk))
		if err != nil {
			res.Failed++
			return res, &BatchError{
				Table:   t.Table,
				Op:      "delete",
				Batch:   i / e.chunkSize,
				Offset:  i,
				Partial: i > 0,
				Cause:   err,
			}
		}
		if n > 0 {
			res.Deleted += n
		}
		e.logger.Debug("owners purged",
			zap.String("table", t.Table),
			zap.Int("chunk", i/e.chunkSize),
			zap.Int("owners", len(chunk)),
			zap.Int("deleted", n),
		)
	}

	err := e.writeBatches(ctx, t.Table, prepared, &res, func(batch []store.Row) error {
		return e.store.Insert(ctx, t.Table, batch)
	}, "insert", true)
	return res, err
}

// writeBatches groups rows by column set and writes each group in batches.
// The first failing batch aborts the table.
func (e *Engine) writeBatches(ctx context.Context, table string, rows []store.Row, res *Result, write func([]store.Row) error, op string, partial bool) error {
	offset := 0
	for _, group := range store.GroupByColumns(rows) {
		for i := 0; i < len(group); i += e.batchSize {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("%s %s: %w", op, table, err)
			}
			batch := group[i:min(i+e.batchSize, len(group))]
			if err := write(batch); err != nil {
				res.Failed++
				e.logger.Error("batch failed",
					zap.String("table", table),
					zap.String("op", op),
					zap.Int("batch", res.Batches),
					zap.Int("rows", len(batch)),
					zap.Error(err),
				)
				return &BatchError{
					Table:   table,
					Op:      op,
					Batch:   res.Batches,
					Offset:  offset,
					Partial: partial,
					Cause:   err,
				}
			}
			e.logger.Info("batch written",
				zap.String("table", table),
				zap.String("op", op),
				zap.Int("batch", res.Batches),
				zap.Int("rows", len(batch)),
			)
			res.Batches++
			res.Written += len(batch)
			offset += len(batch)
		}
	}
	return nil
}

// Coalesce returns a copy of row without nil, blank-string and NaN values.
func Coalesce(row store.Row) store.Row {
	out := make(store.Row, len(row))
	for k, v := range row {
		switch val := v.(type) {
		case nil:
			continue
		case string:
			if strings.TrimSpace(val) == "" {
				continue
			}
		case float64:
			if math.IsNaN(val) || math.IsInf(val, 0) {
				continue
			}
		case *float64:
			if val == nil {
				continue
			}
			v = *val
		}
		out[k] = v
	}
	return out
}

func coalesceAll(rows []store.Row) []store.Row {
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		if c := Coalesce(r); len(c) > 0 {
			out = append(out, c)
		}
	}
	return out
}

// Dedupe merges rows sharing the key columns, keeping first-seen order.
// Per column a later value wins unless it is zero or blank and the earlier
// one is not. Rows missing a key column are kept as they are.
func Dedupe(rows []store.Row, keys []string) []store.Row {
	if len(keys) == 0 {
		return rows
	}
	index := make(map[string]int)
	out := make([]store.Row, 0, len(rows))
	for _, r := range rows {
		k, ok := keyOf(r, keys)
		if !ok {
			out = append(out, r)
			continue
		}
		i, seen := index[k]
		if !seen {
			index[k] = len(out)
			out = append(out, r)
			continue
		}
		out[i] = MergeRow(out[i], r)
	}
	return out
}

// MergeRow merges next into prev with the prefer-nonzero rule.
func MergeRow(prev, next store.Row) store.Row {
	merged := make(store.Row, len(prev)+len(next))
	for k, v := range prev {
		merged[k] = v
	}
	for k, v := range next {
		if old, ok := merged[k]; ok && isZero(v) && !isZero(old) {
			continue
		}
		merged[k] = v
	}
	return merged
}

func isZero(v any) bool {
	switch val := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(val) == ""
	case float64, float32, int, int64, int32, json.Number:
		return value.Number(val, 0) == 0
	default:
		return false
	}
}

func keyOf(r store.Row, keys []string) (string, bool) {
	parts := make([]string, len(keys))
	for i, k := range keys {
		s := value.Text(r[k])
		if s == "" {
			return "", false
		}
		parts[i] = s
	}
	return strings.Join(parts, "\x00"), true
}

// OwnerIDs returns the distinct owner values of rows, in first-seen order.
func OwnerIDs(rows []store.Row, ownerKey string) []string {
	seen := make(map[string]bool)
	var ids []string
	for _, r := range rows {
		id := value.Text(r[ownerKey])
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}
