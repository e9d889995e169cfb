// Copyright 2023 The Cockroach Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

// Package target applies Delta Batches to the PostgreSQL warehouse
// idempotently (spec.md §4.3): bulk UPSERT/INSERT with sub-batching
// and per-row fallback on a poisoned transaction, and bulk DELETE for
// reconciliation. The sink.go/serial_events.go style of the teacher —
// hand-built placeholder SQL inside an explicit pgx transaction — is
// kept; what changed is the shape of what gets written (a Delta Batch
// computed by internal/delta, not a single decoded changefeed line).
package target

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vectorframe/tablesync/internal/errkit"
	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/metrics"
	"github.com/vectorframe/tablesync/internal/types"
)

const statementTimeout = 600 * time.Second

// Result reports the outcome of applying a batch.
type Result struct {
	RowsWritten int
	RowErrors   int
}

// Writer applies Delta Batches against a single TargetPool.
type Writer struct {
	pool *types.TargetPool
}

// New constructs a Writer over pool.
func New(pool *types.TargetPool) *Writer {
	return &Writer{pool: pool}
}

// Apply dispatches batch to the bulk UPSERT, INSERT, or DELETE path
// per its Op, sub-batching by subBatchSize (spec.md §4.3:
// min(chunkSize/2, 500), computed by the caller via
// internal/catalog.RuntimeConfig.WriteSubBatchSize).
func (w *Writer) Apply(
	ctx context.Context, table ident.Table, pkCols []string, batch types.DeltaBatch, subBatchSize int,
) (Result, error) {
	if batch.Empty() {
		return Result{}, nil
	}
	start := time.Now()
	var result Result
	var err error
	switch batch.Op {
	case types.OpUpsert:
		rows, cerr := w.canonicalizeRows(ctx, table, batch.Rows)
		if cerr != nil {
			return Result{}, cerr
		}
		result, err = w.bulkUpsert(ctx, table, pkCols, rows, subBatchSize)
	case types.OpInsert:
		rows, cerr := w.canonicalizeRows(ctx, table, batch.Rows)
		if cerr != nil {
			return Result{}, cerr
		}
		result, err = w.bulkInsert(ctx, table, rows, subBatchSize)
	case types.OpDelete:
		result, err = w.bulkDelete(ctx, table, pkCols, batch.Rows, subBatchSize)
	default:
		return Result{}, errors.Errorf("unknown batch op %v", batch.Op)
	}
	labels := prometheusLabels(table)
	opLabels := append(prometheusLabels(table), strings.ToLower(batch.Op.String()))
	metrics.WriteBatchDurations.WithLabelValues(opLabels...).Observe(time.Since(start).Seconds())
	metrics.WriteRows.WithLabelValues(opLabels...).Add(float64(result.RowsWritten))
	metrics.WriteRowErrors.WithLabelValues(labels...).Add(float64(result.RowErrors))
	return result, err
}

func prometheusLabels(table ident.Table) []string {
	return []string{table.Schema().Raw(), table.Table().Raw()}
}

// canonicalizeRows applies spec.md §4.3's deterministic cell rewrite to
// every value of every row before it reaches the UPSERT/INSERT
// builders, so a NULL-sentinel written by the source (empty string,
// "NULL", \N, a zero-date) lands as the type's default rather than
// verbatim (spec.md §8.7). rows is left untouched; a new slice is
// returned.
func (w *Writer) canonicalizeRows(ctx context.Context, table ident.Table, rows []types.SourceRow) ([]types.SourceRow, error) {
	families, err := ColumnFamilies(ctx, w.pool, table)
	if err != nil {
		return nil, errkit.NewTransientTarget(err)
	}
	out := make([]types.SourceRow, len(rows))
	for i, row := range rows {
		values := make([]any, len(row.Values))
		for j, col := range row.Columns {
			values[j] = Canonicalize(row.Values[j], families[col])
		}
		out[i] = types.SourceRow{Columns: row.Columns, Values: values}
	}
	return out, nil
}

// bulkUpsert implements spec.md §4.3's Bulk UPSERT algorithm.
func (w *Writer) bulkUpsert(
	ctx context.Context, table ident.Table, pkCols []string, rows []types.SourceRow, subBatchSize int,
) (Result, error) {
	var total Result
	for _, chunk := range chunkRows(rows, subBatchSize) {
		res, err := w.execSubBatch(ctx, func(tx pgx.Tx) (int, error) {
			sql, args := buildUpsertSQL(table, pkCols, chunk)
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return 0, err
			}
			return int(tag.RowsAffected()), nil
		})
		if errors.As(err, new(*errkit.AbortedTransactionError)) {
			rowResult := w.upsertRowByRow(ctx, table, pkCols, chunk)
			total.RowsWritten += rowResult.RowsWritten
			total.RowErrors += rowResult.RowErrors
			continue
		}
		if err != nil {
			return total, err
		}
		total.RowsWritten += res
	}
	return total, nil
}

// upsertRowByRow re-executes each row of a failed sub-batch under its
// own fresh transaction; rows that still fail are logged and skipped
// (spec.md §4.3: "counted as row errors but not fatal").
func (w *Writer) upsertRowByRow(ctx context.Context, table ident.Table, pkCols []string, rows []types.SourceRow) Result {
	var result Result
	for _, row := range rows {
		_, err := w.execSubBatch(ctx, func(tx pgx.Tx) (int, error) {
			sql, args := buildUpsertSQL(table, pkCols, []types.SourceRow{row})
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return 0, err
			}
			return int(tag.RowsAffected()), nil
		})
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"schema": table.Schema().Raw(), "table": table.Table().Raw(),
			}).Warn("row-level upsert fallback failed, skipping row")
			result.RowErrors++
			continue
		}
		result.RowsWritten++
	}
	return result
}

// bulkInsert implements spec.md §4.3's Bulk INSERT algorithm: same
// sub-batch shape as UPSERT but with no ON CONFLICT clause and no
// row-level fallback — failures propagate.
func (w *Writer) bulkInsert(ctx context.Context, table ident.Table, rows []types.SourceRow, subBatchSize int) (Result, error) {
	var total Result
	for _, chunk := range chunkRows(rows, subBatchSize) {
		n, err := w.execSubBatch(ctx, func(tx pgx.Tx) (int, error) {
			sql, args := buildInsertSQL(table, chunk)
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return 0, err
			}
			return int(tag.RowsAffected()), nil
		})
		if err != nil {
			return total, err
		}
		total.RowsWritten += n
	}
	return total, nil
}

// bulkDelete implements spec.md §4.3's Bulk DELETE algorithm.
func (w *Writer) bulkDelete(ctx context.Context, table ident.Table, pkCols []string, rows []types.SourceRow, subBatchSize int) (Result, error) {
	var total Result
	for _, chunk := range chunkRows(rows, subBatchSize) {
		n, err := w.execSubBatch(ctx, func(tx pgx.Tx) (int, error) {
			sql, args := buildDeleteSQL(table, pkCols, chunk)
			tag, err := tx.Exec(ctx, sql, args...)
			if err != nil {
				return 0, err
			}
			return int(tag.RowsAffected()), nil
		})
		if err != nil {
			return total, err
		}
		total.RowsWritten += n
	}
	return total, nil
}

// execSubBatch runs fn inside a fresh transaction with
// statement_timeout set, per spec.md §5's "writer opens a fresh
// connection per transaction to avoid poisoned-transaction state
// leaking across chunks."
func (w *Writer) execSubBatch(ctx context.Context, fn func(tx pgx.Tx) (int, error)) (int, error) {
	conn, err := w.pool.Acquire(ctx)
	if err != nil {
		return 0, errkit.NewTransientTarget(err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, errkit.NewTransientTarget(err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", statementTimeout.Milliseconds())); err != nil {
		_ = tx.Rollback(ctx)
		return 0, errkit.NewTransientTarget(err)
	}

	n, err := fn(tx)
	if err != nil {
		_ = tx.Rollback(ctx)
		if isAbortedTransaction(err) {
			return 0, errkit.NewAbortedTransaction(err)
		}
		return 0, errkit.NewTransientTarget(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, errkit.NewTransientTarget(err)
	}
	return n, nil
}

func chunkRows(rows []types.SourceRow, size int) [][]types.SourceRow {
	if size <= 0 {
		size = 1
	}
	var out [][]types.SourceRow
	for i := 0; i < len(rows); i += size {
		end := i + size
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[i:end])
	}
	return out
}

func isAbortedTransaction(err error) bool {
	return strings.Contains(err.Error(), "25P02") || strings.Contains(err.Error(), "current transaction is aborted")
}
