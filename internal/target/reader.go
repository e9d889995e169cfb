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

package target

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/ident"
)

// CountRows reports the target's current row count, the T term in
// spec.md §4.4's decision table.
func (w *Writer) CountRows(ctx context.Context, table ident.Table) (int64, error) {
	var n int64
	err := w.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table.Quoted())).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "counting target rows")
	}
	return n, nil
}

// ReadPKBatch walks the target's PK values in stable OFFSET order,
// encoding each tuple the same way internal/cursor encodes
// last_processed_pk, for delete reconciliation's source-existence
// check (spec.md §4.4).
func (w *Writer) ReadPKBatch(ctx context.Context, table ident.Table, pkCols []string, offset int64, limit int) ([]string, error) {
	quoted := make([]string, len(pkCols))
	for i, c := range pkCols {
		quoted[i] = ident.New(c).Quoted()
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s OFFSET %d LIMIT %d",
		strings.Join(quoted, ", "), table.Quoted(), strings.Join(quoted, ", "), offset, limit)

	rows, err := w.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "reading target PK batch")
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "scanning target PK row")
		}
		strs := make([]string, len(vals))
		isNull := make([]bool, len(vals))
		for i, v := range vals {
			if v == nil {
				isNull[i] = true
			} else {
				strs[i] = fmt.Sprint(v)
			}
		}
		out = append(out, cursor.Encode(strs, isNull))
	}
	return out, rows.Err()
}

// ReadRow fetches the current target row for pkValues (already
// canonicalization-ready strings), for the update scan's cell-by-cell
// compare. The second return is false when no such row exists.
func (w *Writer) ReadRow(ctx context.Context, table ident.Table, pkCols []string, pkValues []string) (map[string]any, bool, error) {
	var clauses []string
	var args []any
	for i, c := range pkCols {
		clauses = append(clauses, fmt.Sprintf("%s = $%d", ident.New(c).Quoted(), i+1))
		args = append(args, pkValues[i])
	}
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s", table.Quoted(), strings.Join(clauses, " AND "))

	rows, err := w.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, false, errors.Wrap(err, "reading target row")
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, false, rows.Err()
	}
	fields := rows.FieldDescriptions()
	vals, err := rows.Values()
	if err != nil {
		return nil, false, errors.Wrap(err, "scanning target row")
	}
	out := make(map[string]any, len(fields))
	for i, f := range fields {
		out[f.Name] = vals[i]
	}
	return out, true, rows.Err()
}
