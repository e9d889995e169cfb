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

	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// DeleteReconcileChunk walks one chunkSize page of the target's PKs at
// offset, asks the source which of them still exist, and returns a
// Delta Batch deleting the ones that don't (spec.md §4.4's delete
// reconciliation). short reports whether this page was shorter than
// chunkSize — the caller's signal to stop walking; no cursor is
// advanced, matching the spec's "completeness is restored next cycle
// if S still lags."
func DeleteReconcileChunk(
	ctx context.Context, adapter source.Adapter, targetPKs []string, entry types.CatalogEntry, chunkSize int,
) (types.DeltaBatch, bool, error) {
	table := entry.QualifiedTable()
	short := len(targetPKs) < chunkSize
	if len(targetPKs) == 0 {
		return types.DeltaBatch{Table: table, Op: types.OpDelete}, short, nil
	}

	existing, err := adapter.FetchPKExistence(ctx, entry.Schema, entry.Table, entry.PKColumns, targetPKs)
	if err != nil {
		return types.DeltaBatch{}, false, err
	}

	var rows []types.SourceRow
	for _, encoded := range targetPKs {
		if existing[encoded] {
			continue
		}
		values, isNull := cursor.Decode(encoded)
		cols := entry.PKColumns
		vals := make([]any, len(cols))
		for i := range cols {
			if i < len(isNull) && isNull[i] {
				vals[i] = nil
			} else if i < len(values) {
				vals[i] = values[i]
			}
		}
		rows = append(rows, types.SourceRow{Columns: cols, Values: vals})
	}

	return types.DeltaBatch{Table: table, Op: types.OpDelete, Rows: rows}, short, nil
}
