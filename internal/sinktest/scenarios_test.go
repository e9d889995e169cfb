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

package sinktest_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/delta"
	"github.com/vectorframe/tablesync/internal/sinktest"
	"github.com/vectorframe/tablesync/internal/source/chaos"
	"github.com/vectorframe/tablesync/internal/types"
)

func row(id int, name string) types.SourceRow {
	return types.SourceRow{Columns: []string{"id", "name"}, Values: []any{id, name}}
}

// TestInsertPaginationWalksToCompletion exercises spec.md's full-load
// scenario: a source with more rows than fit in one chunk is walked to
// completion purely by repeatedly calling NextInsertChunk and
// advancing the cursor, the way internal/statemachine does against a
// real target.
func TestInsertPaginationWalksToCompletion(t *testing.T) {
	ctx := context.Background()
	var rows []types.SourceRow
	for i := 1; i <= 25; i++ {
		rows = append(rows, row(i, "n"))
	}
	adapter := sinktest.NewFakeAdapter([]string{"id"}, "", rows)

	entry := types.CatalogEntry{
		Schema: "s", Table: "t", PKStrategy: types.StrategyPK, PKColumns: []string{"id"},
	}

	var seen int
	for {
		batch, short, err := delta.NextInsertChunk(ctx, adapter, entry, 0, 10)
		require.NoError(t, err)
		seen += len(batch.Rows)
		if batch.NextLastProcessedPK != "" {
			entry.LastProcessedPK = batch.NextLastProcessedPK
		}
		if short {
			break
		}
	}
	assert.Equal(t, 25, seen)
}

// TestDeleteReconcileRemovesVanishedRows exercises reconciliation: a
// target-side PK no longer present at the source is returned as a
// delete.
func TestDeleteReconcileRemovesVanishedRows(t *testing.T) {
	ctx := context.Background()
	adapter := sinktest.NewFakeAdapter([]string{"id"}, "", []types.SourceRow{row(1, "a"), row(2, "b")})

	entry := types.CatalogEntry{Schema: "s", Table: "t", PKColumns: []string{"id"}}
	targetPKs := []string{
		cursor.Encode([]string{"1"}, []bool{false}),
		cursor.Encode([]string{"2"}, []bool{false}),
		cursor.Encode([]string{"3"}, []bool{false}),
	}

	batch, short, err := delta.DeleteReconcileChunk(ctx, adapter, targetPKs, entry, 10)
	require.NoError(t, err)
	assert.True(t, short)
	require.Len(t, batch.Rows, 1)
	v, _ := batch.Rows[0].Get("id")
	assert.Equal(t, "3", v)
}

// TestChaosAdapterErrorSurfacesFromNextInsertChunk exercises isolation:
// a table whose source adapter is failing shouldn't make
// NextInsertChunk panic or return a zero-value batch silently, it
// should surface the chaos.ErrChaos failure so the caller's cycle can
// classify it and move on to the next table.
func TestChaosAdapterErrorSurfacesFromNextInsertChunk(t *testing.T) {
	ctx := context.Background()
	adapter := chaos.WithChaos(sinktest.NewFakeAdapter([]string{"id"}, "", []types.SourceRow{row(1, "a")}), 1)

	entry := types.CatalogEntry{
		Schema: "s", Table: "t", PKStrategy: types.StrategyPK, PKColumns: []string{"id"},
	}

	_, _, err := delta.NextInsertChunk(ctx, adapter, entry, 0, 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, chaos.ErrChaos)
}
