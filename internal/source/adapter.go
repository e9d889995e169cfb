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

// Package source declares the polymorphic SourceAdapter capability set
// (spec.md §4.2): a single interface with one implementation per
// source engine, so the scheduler and state machine hold only the
// interface (Design Notes: "Polymorphism over engines"). This
// collapses what the original expressed as near-identical per-engine
// transfer classes into one.
package source

import (
	"context"
	"time"

	"github.com/vectorframe/tablesync/internal/types"
)

// Adapter is the capability set every source engine implements.
// Every method either returns a well-formed result or fails with a
// typed error from internal/errkit (spec.md §4.2's failure semantics).
type Adapter interface {
	// CountRows returns an exact row count where cheap, best-effort for
	// document stores.
	CountRows(ctx context.Context, schema, table string) (int64, error)

	// FetchByPK returns up to limit rows ordered strictly greater than
	// afterPK over pkCols, in lexicographic composite order. An empty
	// afterPK starts from the minimum. The ordering must be total and
	// stable across calls.
	FetchByPK(ctx context.Context, schema, table string, pkCols []string, afterPK []string, limit int) ([]types.SourceRow, error)

	// FetchByColumnCursor is FetchByPK's TEMPORAL_PK counterpart:
	// ordered by a single column.
	FetchByColumnCursor(ctx context.Context, schema, table, col string, afterValue string, limit int) ([]types.SourceRow, error)

	// FetchByOffset is used only when no usable ordering key exists.
	// Ordering is unspecified but must be stable within a cycle.
	FetchByOffset(ctx context.Context, schema, table string, offset int64, limit int) ([]types.SourceRow, error)

	// FetchModifiedSince returns rows where timeCol > since, ordered by
	// timeCol ascending.
	FetchModifiedSince(ctx context.Context, schema, table, timeCol string, since time.Time) ([]types.SourceRow, error)

	// FetchPKExistence returns the subset of candidatePKs (encoded via
	// internal/cursor) present in the source.
	FetchPKExistence(ctx context.Context, schema, table string, pkCols []string, candidatePKs []string) (map[string]bool, error)

	// DescribePK returns the source's declared primary-key column
	// names, in order.
	DescribePK(ctx context.Context, schema, table string) ([]string, error)

	// ColumnNames returns every column name for the table, in
	// declaration order.
	ColumnNames(ctx context.Context, schema, table string) ([]string, error)

	// Close releases any resources the adapter holds open across
	// cycles.
	Close() error
}

// Factory constructs an Adapter for a connection string, per the
// per-engine key=value / URI formats in spec.md §6.
type Factory func(ctx context.Context, connectionString string) (Adapter, error)
