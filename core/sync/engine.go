package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"listing-harvester/core/dataset"
	"listing-harvester/core/metrics"
	"listing-harvester/core/record"

	"go.uber.org/zap"
)

// Mode selects how a run writes to the table.
type Mode string

const (
	ModeTruncate Mode = "truncate"
	ModeUpsert   Mode = "upsert"
)

// DefaultBatchSize is used when Options.BatchSize is not positive.
const DefaultBatchSize = 100

// ParseMode validates a configured mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeTruncate, ModeUpsert:
		return Mode(s), nil
	case "":
		return ModeTruncate, nil
	default:
		return "", fmt.Errorf("unknown sync mode %q (want truncate or upsert)", s)
	}
}

// Row is one record as column values.
type Row = map[string]any

// Batch is the rows of one transaction. Columns is sorted and every row
// carries every column.
type Batch struct {
	Columns []string
	Rows    []Row
}

// Tx writes inside a compensating scope.
type Tx interface {
	// BulkUpsert inserts the batch. With conflict columns set, rows whose key
	// already exists are updated instead.
	BulkUpsert(ctx context.Context, table string, batch Batch, conflict []string) error
}

// Store is the destination of a sync run.
type Store interface {
	Truncate(ctx context.Context, table string) error
	// InBatch runs fn in a scope that is rolled back when fn fails.
	InBatch(ctx context.Context, fn func(tx Tx) error) error
}

// Preparer is implemented by stores that can create missing tables and columns.
type Preparer interface {
	Prepare(ctx context.Context, table, keyColumn string, columns []string) ([]string, error)
}

// Options configures an Engine.
type Options struct {
	BatchSize int
	Mode      Mode
	KeyColumn string
	// Prepare calls the store's Preparer before loading, when it has one.
	Prepare bool
}

// BatchError describes one failed batch.
type BatchError struct {
	Batch int    `json:"batch"`
	From  int    `json:"from"`
	To    int    `json:"to"`
	Error string `json:"error"`
}

// Result summarizes one Sync call.
type Result struct {
	Table   string       `json:"table"`
	Mode    Mode         `json:"mode"`
	Total   int          `json:"total"`
	Loaded  int          `json:"loaded"`
	Failed  int          `json:"failed"`
	Batches int          `json:"batches"`
	Changes []string     `json:"changes,omitempty"`
	Errors  []BatchError `json:"errors,omitempty"`
}

// ErrPrecondition reports a run that was refused before any write.
var ErrPrecondition = errors.New("sync precondition failed")

// Engine loads rows into one table at a time.
type Engine struct {
	store   Store
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewEngine creates an Engine. metrics may be nil.
func NewEngine(store Store, opts Options, logger *zap.Logger, m *metrics.Metrics) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.Mode == "" {
		opts.Mode = ModeTruncate
	}
	return &Engine{store: store, opts: opts, logger: logger.Named("sync"), metrics: m}
}

// Sync writes rows to table in order. Batch failures are reported in the
// Result; the returned error is set only when the run could not start or was
// cancelled between batches.
func (e *Engine) Sync(ctx context.Context, table string, rows []record.Fields) (Result, error) {
	res := Result{Table: table, Mode: e.opts.Mode, Total: len(rows)}
	log := e.logger.With(zap.String("table", table), zap.String("mode", string(e.opts.Mode)))

	if err := e.check(rows); err != nil {
		res.Failed = len(rows)
		return res, err
	}

	if e.opts.Prepare {
		if p, ok := e.store.(Preparer); ok {
			changes, err := p.Prepare(ctx, table, e.opts.KeyColumn, columns(rows))
			res.Changes = changes
			if err != nil {
				res.Failed = len(rows)
				return res, fmt.Errorf("%w: prepare %s: %v", ErrPrecondition, table, err)
			}
			for _, c := range changes {
				log.Info("Schema change", zap.String("change", c))
			}
		}
	}

	if e.opts.Mode == ModeTruncate {
		if err := e.store.Truncate(ctx, table); err != nil {
			res.Failed = len(rows)
			log.Error("Truncate failed, nothing loaded", zap.Error(err))
			return res, fmt.Errorf("%w: truncate %s: %v", ErrPrecondition, table, err)
		}
	}

	var conflict []string
	if e.opts.Mode == ModeUpsert {
		conflict = []string{e.opts.KeyColumn}
	}

	for from := 0; from < len(rows); from += e.opts.BatchSize {
		to := min(from+e.opts.BatchSize, len(rows))
		if err := ctx.Err(); err != nil {
			res.Failed += len(rows) - from
			log.Warn("Sync cancelled", zap.Int("loaded", res.Loaded), zap.Int("remaining", len(rows)-from))
			return res, fmt.Errorf("sync %s cancelled: %w", table, err)
		}

		batch := newBatch(rows[from:to])
		start := time.Now()
		err := e.store.InBatch(ctx, func(tx Tx) error {
			return tx.BulkUpsert(ctx, table, batch, conflict)
		})
		e.metrics.ObserveBatch(table, len(batch.Rows), err, time.Since(start))
		res.Batches++

		if err != nil {
			res.Failed += len(batch.Rows)
			res.Errors = append(res.Errors, BatchError{Batch: res.Batches, From: from, To: to, Error: err.Error()})
			log.Error("Batch failed",
				zap.Int("batch", res.Batches),
				zap.Int("from", from),
				zap.Int("to", to),
				zap.Error(err))
			continue
		}
		res.Loaded += len(batch.Rows)
		log.Debug("Batch loaded", zap.Int("batch", res.Batches), zap.Int("records", len(batch.Rows)))
	}

	log.Info("Sync finished",
		zap.Int("loaded", res.Loaded),
		zap.Int("failed", res.Failed),
		zap.Int("batches", res.Batches))
	return res, nil
}

func (e *Engine) check(rows []record.Fields) error {
	if e.opts.Mode != ModeTruncate && e.opts.Mode != ModeUpsert {
		return fmt.Errorf("%w: unknown mode %q", ErrPrecondition, e.opts.Mode)
	}
	if e.opts.Mode != ModeUpsert {
		return nil
	}
	if e.opts.KeyColumn == "" {
		return fmt.Errorf("%w: upsert needs a key column", ErrPrecondition)
	}
	for i, row := range rows {
		if v, ok := row[e.opts.KeyColumn]; !ok || v == nil || dataset.FormatValue(v) == "" {
			return fmt.Errorf("%w: row %d has no %s", ErrPrecondition, i, e.opts.KeyColumn)
		}
	}
	return nil
}

// columns is the sorted union of the row field names.
func columns(rows []record.Fields) []string {
	seen := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// newBatch squares off rows so every row has every column. Values are
// written as text; nested values become JSON.
func newBatch(rows []record.Fields) Batch {
	cols := columns(rows)
	out := make([]Row, len(rows))
	for i, r := range rows {
		row := make(Row, len(cols))
		for _, c := range cols {
			v, ok := r[c]
			if !ok || v == nil {
				row[c] = nil
				continue
			}
			row[c] = dataset.FormatValue(v)
		}
		out[i] = row
	}
	return Batch{Columns: cols, Rows: out}
}
