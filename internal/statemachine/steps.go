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

package statemachine

import (
	"context"
	"time"

	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/delta"
	"github.com/vectorframe/tablesync/internal/errkit"
	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/stopper"
	"github.com/vectorframe/tablesync/internal/target"
	"github.com/vectorframe/tablesync/internal/types"
)

// runInsertPagination walks internal/delta.NextInsertChunk until a
// chunk comes back short of a full page (the source is caught up for
// this pass) or a termination guard trips. Each chunk's rows are
// written and its cursor committed before the next chunk is fetched,
// so a guard trip or crash loses no progress already made.
func (c *Cycle) runInsertPagination(
	ctx context.Context,
	stop *stopper.Context,
	adapter source.Adapter,
	entry *types.CatalogEntry,
	table ident.Table,
	targetRowCount int64,
	cfg catalog.RuntimeConfig,
	chunks *int,
	deadline time.Time,
) (short bool, err error) {
	for {
		select {
		case <-stop.Stopping():
			return false, nil
		case <-ctx.Done():
			return false, ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return false, errkit.NewBudgetExceeded(entry.Schema, entry.Table, "wall clock")
		}
		if *chunks >= chunkBudget {
			return false, errkit.NewBudgetExceeded(entry.Schema, entry.Table, "chunk count")
		}

		batch, isShort, err := delta.NextInsertChunk(ctx, adapter, *entry, targetRowCount, cfg.ChunkSize)
		if err != nil {
			return false, err
		}
		*chunks++

		if !batch.Empty() {
			if _, err := c.Writer.Apply(ctx, table, entry.PKColumns, batch, cfg.WriteSubBatchSize()); err != nil {
				return false, err
			}
			targetRowCount += int64(len(batch.Rows))
		}

		switch entry.PKStrategy {
		case types.StrategyOffset:
			if err := c.Catalog.UpdateLastOffset(ctx, entry.Schema, entry.Table, batch.NextLastOffset); err != nil {
				return false, err
			}
			entry.LastOffset = batch.NextLastOffset
		default:
			if batch.NextLastProcessedPK != "" {
				if err := c.Catalog.UpdateLastProcessedPK(ctx, entry.Schema, entry.Table, batch.NextLastProcessedPK); err != nil {
					return false, err
				}
				entry.LastProcessedPK = batch.NextLastProcessedPK
			}
		}

		if isShort {
			return true, nil
		}
	}
}

// runDeleteReconcile walks the target's PK space page by page via
// internal/target.Writer.ReadPKBatch, asking the source which rows
// still exist and deleting the ones that don't. No cursor advances
// here: a table that still lags (S < T) after one reconciliation pass
// simply reconciles again next cycle, per spec.md §4.4.
func (c *Cycle) runDeleteReconcile(
	ctx context.Context,
	stop *stopper.Context,
	adapter source.Adapter,
	entry types.CatalogEntry,
	table ident.Table,
	cfg catalog.RuntimeConfig,
	chunks *int,
	deadline time.Time,
) error {
	var offset int64
	for {
		select {
		case <-stop.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return errkit.NewBudgetExceeded(entry.Schema, entry.Table, "wall clock")
		}
		if *chunks >= chunkBudget {
			return errkit.NewBudgetExceeded(entry.Schema, entry.Table, "chunk count")
		}

		page, err := c.Writer.ReadPKBatch(ctx, table, entry.PKColumns, offset, cfg.ChunkSize)
		if err != nil {
			return err
		}
		*chunks++

		batch, short, err := delta.DeleteReconcileChunk(ctx, adapter, page, entry, cfg.ChunkSize)
		if err != nil {
			return err
		}
		if !batch.Empty() {
			if _, err := c.Writer.Apply(ctx, table, entry.PKColumns, batch, cfg.WriteSubBatchSize()); err != nil {
				return err
			}
		}

		offset += int64(len(page))
		if short {
			return nil
		}
	}
}

// runUpdateScan performs one pass of internal/delta.UpdateScanBatch,
// writes the changed rows, and advances last_sync_time.
func (c *Cycle) runUpdateScan(
	ctx context.Context, adapter source.Adapter, entry types.CatalogEntry, table ident.Table, subBatchSize int,
) error {
	families, err := target.ColumnFamilies(ctx, c.Pool, table)
	if err != nil {
		return err
	}

	readRow := func(ctx context.Context, pkValues []string) (map[string]any, bool, error) {
		return c.Writer.ReadRow(ctx, table, entry.PKColumns, pkValues)
	}

	batch, err := delta.UpdateScanBatch(ctx, adapter, readRow, entry, families)
	if err != nil {
		return err
	}
	if !batch.Empty() {
		if _, err := c.Writer.Apply(ctx, table, entry.PKColumns, batch, subBatchSize); err != nil {
			return err
		}
	}

	var maxSync *time.Time
	if batch.HasNextSyncTime {
		t := batch.NextLastSyncTime
		maxSync = &t
	}
	return c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusListeningChanges, nil, maxSync)
}
