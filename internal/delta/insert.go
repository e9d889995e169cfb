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

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// NextInsertChunk fetches one chunk of not-yet-replicated rows per
// spec.md §4.4's insert pagination strategies, selected by the entry's
// PKStrategy. The returned batch's Next* cursor fields describe where
// the next chunk should resume; short reports whether this chunk was
// shorter than chunkSize, the pagination loop's termination signal.
func NextInsertChunk(
	ctx context.Context, adapter source.Adapter, entry types.CatalogEntry, targetRowCount int64, chunkSize int,
) (batch types.DeltaBatch, short bool, err error) {
	table := entry.QualifiedTable()

	switch entry.PKStrategy {
	case types.StrategyPK:
		afterPK, _ := cursor.Decode(entry.LastProcessedPK)
		rows, err := adapter.FetchByPK(ctx, entry.Schema, entry.Table, entry.PKColumns, afterPK, chunkSize)
		if err != nil {
			return types.DeltaBatch{}, false, err
		}
		return finishPKChunk(table, entry.PKColumns, rows, chunkSize)

	case types.StrategyTemporalPK:
		col := entry.PKColumns[0]
		afterValue, _ := cursor.Decode(entry.LastProcessedPK)
		var after string
		if len(afterValue) > 0 {
			after = afterValue[0]
		}
		rows, err := adapter.FetchByColumnCursor(ctx, entry.Schema, entry.Table, col, after, chunkSize)
		if err != nil {
			return types.DeltaBatch{}, false, err
		}
		return finishPKChunk(table, entry.PKColumns, rows, chunkSize)

	case types.StrategyOffset:
		rows, err := adapter.FetchByOffset(ctx, entry.Schema, entry.Table, targetRowCount, chunkSize)
		if err != nil {
			return types.DeltaBatch{}, false, err
		}
		b := types.DeltaBatch{
			Table:          table,
			Op:             types.OpUpsert,
			Rows:           rows,
			NextLastOffset: entry.LastOffset + int64(len(rows)),
		}
		return b, len(rows) < chunkSize, nil

	default:
		return types.DeltaBatch{}, false, errors.Errorf("unsupported PK strategy %v for insert pagination", entry.PKStrategy)
	}
}

func finishPKChunk(table ident.Table, pkCols []string, rows []types.SourceRow, chunkSize int) (types.DeltaBatch, bool, error) {
	b := types.DeltaBatch{Table: table, Op: types.OpUpsert, Rows: rows}
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		vals := make([]string, len(pkCols))
		isNull := make([]bool, len(pkCols))
		for i, c := range pkCols {
			v, _ := last.Get(c)
			if v == nil {
				isNull[i] = true
			} else {
				vals[i] = toString(v)
			}
		}
		b.NextLastProcessedPK = cursor.Encode(vals, isNull)
	}
	return b, len(rows) < chunkSize, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
