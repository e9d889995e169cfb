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

package mssql

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

type adapter struct {
	pool *types.SourcePool
}

func quoteIdent(s string) string {
	return "[" + strings.ReplaceAll(s, "]", "]]") + "]"
}

func qualified(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func (a *adapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	row := a.pool.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT_BIG(*) FROM %s", qualified(schema, table)))
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	return n, nil
}

// seekPredicate builds T-SQL's standard expansion of a composite
// row-value comparison `(c1, c2, ...) > (?, ?, ...)`, which T-SQL does
// not support directly:
//
//	(c1 > ?) OR (c1 = ? AND c2 > ?) OR (c1 = ? AND c2 = ? AND c3 > ?) ...
func seekPredicate(cols []string) (string, int) {
	var clauses []string
	nArgs := 0
	for i := range cols {
		var eq []string
		for j := 0; j < i; j++ {
			eq = append(eq, fmt.Sprintf("%s = ?", quoteIdent(cols[j])))
			nArgs++
		}
		eq = append(eq, fmt.Sprintf("%s > ?", quoteIdent(cols[i])))
		nArgs++
		clauses = append(clauses, "("+strings.Join(eq, " AND ")+")")
	}
	return strings.Join(clauses, " OR "), nArgs
}

// seekArgs repeats the afterPK prefix in the order seekPredicate
// expects: for column i's clause, args[0:i] then args[i].
func seekArgs(afterPK []string) []any {
	var args []any
	for i := range afterPK {
		for j := 0; j <= i; j++ {
			args = append(args, afterPK[j])
		}
	}
	return args
}

func (a *adapter) FetchByPK(
	ctx context.Context, schema, table string, pkCols []string, afterPK []string, limit int,
) ([]types.SourceRow, error) {
	quoted := make([]string, len(pkCols))
	for i, c := range pkCols {
		quoted[i] = quoteIdent(c)
	}
	orderBy := strings.Join(quoted, ", ")

	query := fmt.Sprintf("SELECT * FROM %s", qualified(schema, table))
	var args []any
	if len(afterPK) > 0 {
		pred, _ := seekPredicate(pkCols)
		query += " WHERE " + pred
		args = seekArgs(afterPK)
	}
	query += fmt.Sprintf(" ORDER BY %s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", orderBy, limit)

	rows, err := a.pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching by PK")
	}
	return source.ScanRows(rows)
}

func (a *adapter) FetchByColumnCursor(
	ctx context.Context, schema, table, col string, afterValue string, limit int,
) ([]types.SourceRow, error) {
	query := fmt.Sprintf("SELECT * FROM %s", qualified(schema, table))
	var args []any
	if afterValue != "" {
		query += fmt.Sprintf(" WHERE %s > ?", quoteIdent(col))
		args = append(args, afterValue)
	}
	query += fmt.Sprintf(" ORDER BY %s OFFSET 0 ROWS FETCH NEXT %d ROWS ONLY", quoteIdent(col), limit)

	rows, err := a.pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching by column cursor")
	}
	return source.ScanRows(rows)
}

func (a *adapter) FetchByOffset(
	ctx context.Context, schema, table string, offset int64, limit int,
) ([]types.SourceRow, error) {
	cols, err := a.ColumnNames(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(cols) == 0 {
		return nil, errors.Errorf("table %s.%s has no columns", schema, table)
	}
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s OFFSET %d ROWS FETCH NEXT %d ROWS ONLY",
		qualified(schema, table), quoteIdent(cols[0]), offset, limit)

	rows, err := a.pool.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "fetching by offset")
	}
	return source.ScanRows(rows)
}

func (a *adapter) FetchModifiedSince(
	ctx context.Context, schema, table, timeCol string, since time.Time,
) ([]types.SourceRow, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s > ? ORDER BY %s ASC",
		qualified(schema, table), quoteIdent(timeCol), quoteIdent(timeCol))

	rows, err := a.pool.QueryContext(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "fetching modified-since rows")
	}
	return source.ScanRows(rows)
}

func (a *adapter) FetchPKExistence(
	ctx context.Context, schema, table string, pkCols []string, candidatePKs []string,
) (map[string]bool, error) {
	out := make(map[string]bool, len(candidatePKs))
	if len(candidatePKs) == 0 {
		return out, nil
	}

	quoted := make([]string, len(pkCols))
	for i, c := range pkCols {
		quoted[i] = quoteIdent(c)
	}
	projection := strings.Join(quoted, ", ")

	var clauses []string
	var args []any
	for _, encoded := range candidatePKs {
		values, _ := cursor.Decode(encoded)
		var eq []string
		for i, c := range pkCols {
			eq = append(eq, fmt.Sprintf("%s = ?", quoteIdent(c)))
			if i < len(values) {
				args = append(args, values[i])
			}
		}
		clauses = append(clauses, "("+strings.Join(eq, " AND ")+")")
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s",
		projection, qualified(schema, table), strings.Join(clauses, " OR "))

	rows, err := a.pool.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "checking PK existence")
	}
	scanned, err := source.ScanRows(rows)
	if err != nil {
		return nil, err
	}
	for _, r := range scanned {
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
		out[cursor.Encode(vals, isNull)] = true
	}
	return out, nil
}

func (a *adapter) DescribePK(ctx context.Context, schema, table string) ([]string, error) {
	query := `
SELECT c.COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE c
JOIN INFORMATION_SCHEMA.TABLE_CONSTRAINTS t
  ON t.CONSTRAINT_NAME = c.CONSTRAINT_NAME AND t.TABLE_SCHEMA = c.TABLE_SCHEMA
WHERE t.CONSTRAINT_TYPE = 'PRIMARY KEY' AND c.TABLE_SCHEMA = ? AND c.TABLE_NAME = ?
ORDER BY c.ORDINAL_POSITION`
	rows, err := a.pool.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, errors.Wrap(err, "describing primary key")
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scanning PK column")
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (a *adapter) ColumnNames(ctx context.Context, schema, table string) ([]string, error) {
	query := `
SELECT COLUMN_NAME
FROM INFORMATION_SCHEMA.COLUMNS
WHERE TABLE_SCHEMA = ? AND TABLE_NAME = ?
ORDER BY ORDINAL_POSITION`
	rows, err := a.pool.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, errors.Wrap(err, "listing columns")
	}
	defer rows.Close()

	var cols []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, errors.Wrap(err, "scanning column name")
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func (a *adapter) Close() error {
	return a.pool.Close()
}
