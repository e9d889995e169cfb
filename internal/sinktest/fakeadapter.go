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

package sinktest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// FakeAdapter is an in-memory source.Adapter over a single table's
// rows, ordered by a configured PK column set. It exists so
// internal/delta's chunking and reconciliation logic can be exercised
// without a live source database.
type FakeAdapter struct {
	mu      sync.Mutex
	pkCols  []string
	rows    []types.SourceRow
	closed  bool
	timeCol string
}

var _ source.Adapter = (*FakeAdapter)(nil)

// NewFakeAdapter constructs an adapter over rows, ordered by pkCols.
func NewFakeAdapter(pkCols []string, timeCol string, rows []types.SourceRow) *FakeAdapter {
	a := &FakeAdapter{pkCols: pkCols, timeCol: timeCol, rows: append([]types.SourceRow(nil), rows...)}
	a.sortRows()
	return a
}

func (a *FakeAdapter) sortRows() {
	sort.SliceStable(a.rows, func(i, j int) bool {
		return a.pkKey(a.rows[i]) < a.pkKey(a.rows[j])
	})
}

func (a *FakeAdapter) pkKey(row types.SourceRow) string {
	key := ""
	for _, c := range a.pkCols {
		v, _ := row.Get(c)
		key += fmt.Sprintf("%020v\x00", v)
	}
	return key
}

// Upsert adds or replaces a row by PK, used by tests to simulate
// source-side writes between chunks.
func (a *FakeAdapter) Upsert(row types.SourceRow) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := a.pkKey(row)
	for i, r := range a.rows {
		if a.pkKey(r) == key {
			a.rows[i] = row
			return
		}
	}
	a.rows = append(a.rows, row)
	a.sortRows()
}

// Delete removes the row matching pkValues, used by tests to simulate
// source-side deletes.
func (a *FakeAdapter) Delete(pkValues ...string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	target := ""
	for _, v := range pkValues {
		target += fmt.Sprintf("%020v\x00", v)
	}
	out := a.rows[:0]
	for _, r := range a.rows {
		if a.pkKey(r) != target {
			out = append(out, r)
		}
	}
	a.rows = out
}

// CountRows implements source.Adapter.
func (a *FakeAdapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return int64(len(a.rows)), nil
}

// FetchByPK implements source.Adapter.
func (a *FakeAdapter) FetchByPK(ctx context.Context, schema, table string, pkCols []string, afterPK []string, limit int) ([]types.SourceRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	after := ""
	for _, v := range afterPK {
		after += fmt.Sprintf("%020v\x00", v)
	}
	var out []types.SourceRow
	for _, r := range a.rows {
		if a.pkKey(r) > after {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// FetchByColumnCursor implements source.Adapter.
func (a *FakeAdapter) FetchByColumnCursor(ctx context.Context, schema, table, col string, afterValue string, limit int) ([]types.SourceRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []types.SourceRow
	for _, r := range a.rows {
		v, _ := r.Get(col)
		if fmt.Sprint(v) > afterValue {
			out = append(out, r)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// FetchByOffset implements source.Adapter.
func (a *FakeAdapter) FetchByOffset(ctx context.Context, schema, table string, offset int64, limit int) ([]types.SourceRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if offset >= int64(len(a.rows)) {
		return nil, nil
	}
	end := offset + int64(limit)
	if end > int64(len(a.rows)) {
		end = int64(len(a.rows))
	}
	return append([]types.SourceRow(nil), a.rows[offset:end]...), nil
}

// FetchModifiedSince implements source.Adapter.
func (a *FakeAdapter) FetchModifiedSince(ctx context.Context, schema, table, timeCol string, since time.Time) ([]types.SourceRow, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []types.SourceRow
	for _, r := range a.rows {
		v, ok := r.Get(timeCol)
		if !ok {
			continue
		}
		t, ok := v.(time.Time)
		if !ok || !t.After(since) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		ti, _ := out[i].Get(timeCol)
		tj, _ := out[j].Get(timeCol)
		return ti.(time.Time).Before(tj.(time.Time))
	})
	return out, nil
}

// FetchPKExistence implements source.Adapter.
func (a *FakeAdapter) FetchPKExistence(ctx context.Context, schema, table string, pkCols []string, candidatePKs []string) (map[string]bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	present := make(map[string]bool, len(a.rows))
	for _, r := range a.rows {
		vals := make([]string, len(pkCols))
		isNull := make([]bool, len(pkCols))
		for i, c := range pkCols {
			v, _ := r.Get(c)
			if v == nil {
				isNull[i] = true
			} else {
				vals[i] = fmt.Sprint(v)
			}
		}
		present[cursor.Encode(vals, isNull)] = true
	}
	out := make(map[string]bool, len(candidatePKs))
	for _, encoded := range candidatePKs {
		out[encoded] = present[encoded]
	}
	return out, nil
}

// DescribePK implements source.Adapter.
func (a *FakeAdapter) DescribePK(ctx context.Context, schema, table string) ([]string, error) {
	return a.pkCols, nil
}

// ColumnNames implements source.Adapter.
func (a *FakeAdapter) ColumnNames(ctx context.Context, schema, table string) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.rows) == 0 {
		return nil, nil
	}
	return append([]string(nil), a.rows[0].Columns...), nil
}

// Close implements source.Adapter.
func (a *FakeAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}
