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

package delta

import (
	"context"
	"fmt"
	"time"

	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/target"
	"github.com/vectorframe/tablesync/internal/types"
)

// UpdateScanBatch implements spec.md §4.4's update scan: fetch rows
// modified since the catalog's last_sync_time, de-duplicate by PK
// keeping the most-recently-seen row (the same "last one wins" rule as
// the teacher's msort.UniqueByKey, here keyed on PK instead of a CDC
// mutation key and ordered by scan position instead of HLC time, since
// FetchModifiedSince already promises ascending timeCol order), then
// keep only the rows whose canonicalized cells actually differ from
// the target.
//
// readRow fetches the current target row for comparison; families
// drives canonicalization per column.
func UpdateScanBatch(
	ctx context.Context,
	adapter source.Adapter,
	readRow func(ctx context.Context, pkValues []string) (map[string]any, bool, error),
	entry types.CatalogEntry,
	families map[string]target.ColumnTypeFamily,
) (types.DeltaBatch, error) {
	table := entry.QualifiedTable()
	modified, err := adapter.FetchModifiedSince(ctx, entry.Schema, entry.Table, entry.LastSyncColumn, entry.LastSyncTime)
	if err != nil {
		return types.DeltaBatch{}, err
	}
	modified = uniqueByPK(modified, entry.PKColumns)

	var changed []types.SourceRow
	maxSync := entry.LastSyncTime
	for _, row := range modified {
		pkValues := make([]string, len(entry.PKColumns))
		for i, c := range entry.PKColumns {
			v, _ := row.Get(c)
			pkValues[i] = fmt.Sprint(v)
		}

		existing, found, err := readRow(ctx, pkValues)
		if err != nil {
			return types.DeltaBatch{}, err
		}

		// Advance past every scanned row regardless of whether it
		// differs from the target (spec.md §4.4: "advance to max
		// scanned"), not just the ones actually written.
		if t, ok := syncColumnTime(row, entry.LastSyncColumn); ok && t.After(maxSync) {
			maxSync = t
		}

		if found && !rowDiffers(row, existing, families) {
			continue
		}
		changed = append(changed, row)
	}

	return types.DeltaBatch{
		Table:            table,
		Op:               types.OpUpsert,
		Rows:             changed,
		NextLastSyncTime: maxSync,
		HasNextSyncTime:  true,
	}, nil
}

// uniqueByPK is the msort.UniqueByKey "last one wins" rule retargeted
// from a CDC mutation's Key/Time pair onto a SourceRow's PK columns,
// relying on the caller's rows already being in ascending scan order
// rather than comparing an explicit timestamp per row.
func uniqueByPK(rows []types.SourceRow, pkCols []string) []types.SourceRow {
	seen := make(map[string]int, len(rows))
	dest := len(rows)
	out := make([]types.SourceRow, len(rows))
	copy(out, rows)
	for src := len(out) - 1; src >= 0; src-- {
		key := rowKey(out[src], pkCols)
		if _, ok := seen[key]; ok {
			// A later (higher-index, more-recently-scanned) occurrence
			// of this PK was already kept.
			continue
		}
		dest--
		seen[key] = dest
		out[dest] = out[src]
	}
	return out[dest:]
}

func rowKey(row types.SourceRow, pkCols []string) string {
	key := ""
	for _, c := range pkCols {
		v, _ := row.Get(c)
		key += fmt.Sprintf("\x00%v", v)
	}
	return key
}

func rowDiffers(candidate types.SourceRow, existing map[string]any, families map[string]target.ColumnTypeFamily) bool {
	for _, col := range candidate.Columns {
		v, _ := candidate.Get(col)
		canon := target.Canonicalize(v, families[col])
		if fmt.Sprint(canon) != fmt.Sprint(existing[col]) {
			return true
		}
	}
	return false
}

func syncColumnTime(row types.SourceRow, syncColumn string) (time.Time, bool) {
	v, ok := row.Get(syncColumn)
	if !ok {
		return time.Time{}, false
	}
	t, ok := v.(time.Time)
	return t, ok
}
