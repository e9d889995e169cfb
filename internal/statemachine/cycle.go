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

// Package statemachine is C5: the per-table lifecycle driver that
// walks one catalog entry's FULL_LOAD/RESET/LISTENING_CHANGES/
// PERFECT_MATCH/NO_DATA/ERROR states (spec.md §4.5), calling C1
// (internal/catalog) for cursor persistence, C2 (internal/source) and
// C3 (internal/target) for data movement, and C4 (internal/delta) for
// the per-step decisions and row production.
//
// The shape follows the teacher's resolver: accumulate one chunk,
// flush it through a transactional boundary, persist a resume point,
// repeat until the page runs dry or a budget trips. What changed is
// that each "chunk" here is a Delta Batch rather than a decoded
// changefeed mutation, and the resume point is a catalog cursor rather
// than a resolved timestamp.
package statemachine

import (
	"context"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/delta"
	"github.com/vectorframe/tablesync/internal/errkit"
	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/stopper"
	"github.com/vectorframe/tablesync/internal/target"
	"github.com/vectorframe/tablesync/internal/types"
)

// wallClockBudget and chunkBudget are spec.md §4.4's termination
// guards: "per-table wall clock ≤ 2 hours, chunks processed ≤
// 10,000". A breach ends the pass cleanly; nothing already committed
// is rolled back.
const (
	wallClockBudget = 2 * time.Hour
	chunkBudget     = 10000
)

// Cycle drives one catalog entry's pass through the lifecycle. A
// single Cycle is reused across every table the owning worker
// services; it holds no per-table state itself.
type Cycle struct {
	Catalog catalog.Store
	Writer  *target.Writer
	Pool    *types.TargetPool
}

// New constructs a Cycle over the given collaborators.
func New(store catalog.Store, writer *target.Writer, pool *types.TargetPool) *Cycle {
	return &Cycle{Catalog: store, Writer: writer, Pool: pool}
}

// Run advances entry by one scheduler pass. An entry in ERROR is left
// as it is. Otherwise Run performs the entry action for RESET/FULL_LOAD
// if applicable, then evaluates the decision table in internal/delta.
// The pass ends after a NO_DATA, ERROR or PERFECT_MATCH decision, after
// one update scan or one delete-reconciliation walk, when a budget
// guard trips, or when the stopper signals shutdown; only an insert
// pagination that reaches the end of the source re-evaluates the table
// in the same pass.
//
// Cursor commits are sequenced before the status transition that
// would let another worker re-observe them, matching spec.md §5: each
// chunk writes its rows, then its cursor, then (only on the pass's
// final decision) its status.
func (c *Cycle) Run(ctx context.Context, stop *stopper.Context, entry types.CatalogEntry, adapter source.Adapter, cfg catalog.RuntimeConfig) error {
	table := entry.QualifiedTable()
	cycleLog := log.WithFields(log.Fields{"table": table.Raw(), "cycle": uuid.NewString()})

	if entry.Status == types.StatusError {
		return nil
	}

	if entry.Status == types.StatusReset {
		cycleLog.Info("reset: truncating and clearing cursor")
		if err := c.truncate(ctx, table); err != nil {
			return err
		}
		if err := c.Catalog.ResetCursor(ctx, entry.Schema, entry.Table); err != nil {
			return err
		}
		if err := c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusFullLoad, nil, nil); err != nil {
			return err
		}
		entry.Status = types.StatusFullLoad
		entry.LastProcessedPK = ""
		entry.LastOffset = 0
	}

	if entry.Status == types.StatusFullLoad && entry.LastProcessedPK == "" && entry.LastOffset == 0 {
		if err := c.truncate(ctx, table); err != nil {
			return err
		}
	}

	deadline := time.Now().Add(wallClockBudget)
	chunks := 0
	subBatchSize := cfg.WriteSubBatchSize()

	for {
		select {
		case <-stop.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		sourceCount, err := adapter.CountRows(ctx, entry.Schema, entry.Table)
		if err != nil {
			return c.fail(ctx, entry, err)
		}
		targetCount, err := c.Writer.CountRows(ctx, table)
		if err != nil {
			return c.fail(ctx, entry, err)
		}

		switch delta.Decide(entry, sourceCount, targetCount) {
		case delta.DecisionNoData:
			return c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusNoData, nil, nil)

		case delta.DecisionSourceGoneError:
			cycleLog.Error("source reports zero rows while target is non-empty")
			return c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusError, nil, nil)

		case delta.DecisionConverged:
			return c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusPerfectMatch, &sourceCount, nil)

		case delta.DecisionUpdateScan:
			if err := c.runUpdateScan(ctx, adapter, entry, table, subBatchSize); err != nil {
				return c.fail(ctx, entry, err)
			}
			return nil

		case delta.DecisionDeleteReconcile:
			if err := c.runDeleteReconcile(ctx, stop, adapter, entry, table, cfg, &chunks, deadline); err != nil {
				return c.fail(ctx, entry, err)
			}
			return nil

		case delta.DecisionInsertPaginate:
			short, err := c.runInsertPagination(ctx, stop, adapter, &entry, table, targetCount, cfg, &chunks, deadline)
			if err != nil {
				return c.fail(ctx, entry, err)
			}
			if !short {
				// Shutdown was signalled mid-pagination; end the pass,
				// progress already committed per chunk.
				return nil
			}
			// Pagination reached the end of the source for this pass.
			// Move to LISTENING_CHANGES, recording the target's row count
			// as last_offset, and let the loop re-evaluate the decision
			// table once more this cycle.
			written, err := c.Writer.CountRows(ctx, table)
			if err != nil {
				return c.fail(ctx, entry, err)
			}
			if err := c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusListeningChanges, &written, nil); err != nil {
				return err
			}
			entry.Status = types.StatusListeningChanges
			entry.LastOffset = written

		default:
			return nil
		}
	}
}

func (c *Cycle) truncate(ctx context.Context, table ident.Table) error {
	_, err := c.Pool.Exec(ctx, "TRUNCATE TABLE "+table.Quoted())
	return err
}

// fail classifies err per internal/errkit and routes the table to
// ERROR unless the error is a benign budget trip, in which case the
// pass simply ends.
func (c *Cycle) fail(ctx context.Context, entry types.CatalogEntry, err error) error {
	if errkit.IsBenign(err) {
		log.WithFields(log.Fields{"table": entry.QualifiedTable().Raw()}).
			Warn(err.Error())
		return nil
	}
	log.WithFields(log.Fields{"table": entry.QualifiedTable().Raw()}).
		WithError(err).Error("table pass failed")
	if statusErr := c.Catalog.UpdateStatus(ctx, entry.Schema, entry.Table, types.StatusError, nil, nil); statusErr != nil {
		return statusErr
	}
	return err
}
