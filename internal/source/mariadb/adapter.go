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

package mariadb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

type adapter struct {
	pool *types.SourcePool
}

// quoteIdent backtick-quotes a MySQL identifier. Backticks are accepted
// whatever the session's sql_mode, including the ansi mode Open sets.
func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

func qualified(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func (a *adapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	row := a.pool.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", qualified(schema, table)))
	if err := row.Scan(&n); err != nil {
		return 0, errors.Wrap(err, "counting rows")
	}
	return n, nil
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
		query += fmt.Sprintf(" WHERE (%s) > (%s)", orderBy, placeholders(len(pkCols)))
		for _, v := range afterPK {
			args = append(args, v)
		}
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", orderBy, limit)

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
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", quoteIdent(col), limit)

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
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s LIMIT %d OFFSET %d",
		qualified(schema, table), quoteIdent(cols[0]), limit, offset)

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
	tuple := strings.Join(quoted, ", ")

	var args []any
	tuples := make([]string, 0, len(candidatePKs))
	for _, encoded := range candidatePKs {
		values, _ := cursor.Decode(encoded)
		tuples = append(tuples, placeholders(len(values)))
		for _, v := range values {
			args = append(args, v)
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE (%s) IN (%s)",
		tuple, qualified(schema, table), tuple, strings.Join(tuplePlaceholders(tuples), ", "))

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
SELECT k.COLUMN_NAME
FROM information_schema.KEY_COLUMN_USAGE k
WHERE k.TABLE_SCHEMA = ? AND k.TABLE_NAME = ? AND k.CONSTRAINT_NAME = 'PRIMARY'
ORDER BY k.ORDINAL_POSITION`
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
FROM information_schema.COLUMNS
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

func placeholders(n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = "?"
	}
	return strings.Join(ph, ", ")
}

func tuplePlaceholders(tuples []string) []string {
	out := make([]string, len(tuples))
	for i, t := range tuples {
		out[i] = "(" + t + ")"
	}
	return out
}

// classify distinguishes transient driver errors (network, lock
// timeouts) from permanent ones (malformed query, missing schema) per
// spec.md §4.2/§7.
func classify(err error) bool {
	if errors.Is(err, sql.ErrConnDone) || errors.Is(err, sql.ErrTxDone) {
		return true
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		switch mysqlErr.Number {
		case 1205, 1213, 2006, 2013: // lock wait timeout, deadlock, server gone away, lost connection
			return true
		default:
			return false
		}
	}
	// Unrecognized errors (context deadline, network dial failures) are
	// treated as transient so the bounded retry gets a chance.
	return true
}
