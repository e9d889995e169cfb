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

// Package postgres implements the source Adapter when the replicated
// origin is itself PostgreSQL. This is a distinct pool from the target
// warehouse connection (internal/types.TargetPool): the two may even
// point at the same cluster, but the adapter always opens its own.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// sourcePool is the PostgreSQL-as-source analog of types.SourcePool:
// that type wraps database/sql for the two drivers without a native
// pgx client (MariaDB, MSSQL), but a PostgreSQL source connects
// natively through pgxpool instead.
type sourcePool struct {
	*pgxpool.Pool
	types.PoolInfo
}

type adapter struct {
	pool *sourcePool
}

// Open dials a PostgreSQL source over a libpq-style URI or key-value
// string (spec.md §6) and returns it wrapped as a source Adapter with
// the package's bounded-retry policy applied.
func Open(ctx context.Context, connectionString string) (source.Adapter, error) {
	cfg, err := pgxpool.ParseConfig(connectionString)
	if err != nil {
		return nil, errors.Wrap(err, "parsing PostgreSQL source connection string")
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "opening PostgreSQL source pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "could not ping PostgreSQL source")
	}
	sp := &sourcePool{
		Pool: pool,
		PoolInfo: types.PoolInfo{
			ConnectionString: connectionString,
			Engine:           types.EnginePostgreSQL,
		},
	}
	return source.WithRetry(&adapter{pool: sp}, classify), nil
}

func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func qualified(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

func (a *adapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var n int64
	err := a.pool.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", qualified(schema, table))).Scan(&n)
	if err != nil {
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
		ph := make([]string, len(pkCols))
		for i := range ph {
			ph[i] = fmt.Sprintf("$%d", i+1)
			args = append(args, afterPK[i])
		}
		query += fmt.Sprintf(" WHERE (%s) > (%s)", orderBy, strings.Join(ph, ", "))
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", orderBy, limit)

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching by PK")
	}
	return scanRows(rows)
}

func (a *adapter) FetchByColumnCursor(
	ctx context.Context, schema, table, col string, afterValue string, limit int,
) ([]types.SourceRow, error) {
	query := fmt.Sprintf("SELECT * FROM %s", qualified(schema, table))
	var args []any
	if afterValue != "" {
		query += fmt.Sprintf(" WHERE %s > $1", quoteIdent(col))
		args = append(args, afterValue)
	}
	query += fmt.Sprintf(" ORDER BY %s LIMIT %d", quoteIdent(col), limit)

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "fetching by column cursor")
	}
	return scanRows(rows)
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

	rows, err := a.pool.Query(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "fetching by offset")
	}
	return scanRows(rows)
}

func (a *adapter) FetchModifiedSince(
	ctx context.Context, schema, table, timeCol string, since time.Time,
) ([]types.SourceRow, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s > $1 ORDER BY %s ASC",
		qualified(schema, table), quoteIdent(timeCol), quoteIdent(timeCol))

	rows, err := a.pool.Query(ctx, query, since)
	if err != nil {
		return nil, errors.Wrap(err, "fetching modified-since rows")
	}
	return scanRows(rows)
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
	var tuples []string
	argN := 1
	for _, encoded := range candidatePKs {
		values, _ := cursor.Decode(encoded)
		ph := make([]string, len(values))
		for i, v := range values {
			ph[i] = fmt.Sprintf("$%d", argN)
			argN++
			args = append(args, v)
		}
		tuples = append(tuples, "("+strings.Join(ph, ", ")+")")
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE (%s) IN (%s)",
		tuple, qualified(schema, table), tuple, strings.Join(tuples, ", "))

	rows, err := a.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "checking PK existence")
	}
	scanned, err := scanRows(rows)
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
SELECT a.attname
FROM pg_index i
JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
WHERE i.indrelid = ($1 || '.' || $2)::regclass AND i.indisprimary
ORDER BY array_position(i.indkey, a.attnum)`
	rows, err := a.pool.Query(ctx, query, schema, table)
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
SELECT column_name
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2
ORDER BY ordinal_position`
	rows, err := a.pool.Query(ctx, query, schema, table)
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
	a.pool.Close()
	return nil
}

// scanRows drains a pgx.Rows into SourceRow values using its field
// descriptions for column names, mirroring source.ScanRows, its
// database/sql counterpart used by the MariaDB and MSSQL adapters.
func scanRows(rows pgx.Rows) ([]types.SourceRow, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}

	var out []types.SourceRow
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		out = append(out, types.SourceRow{Columns: cols, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating rows")
	}
	return out, nil
}

// classify distinguishes transient PostgreSQL errors (connection
// failures, lock timeouts) from permanent ones (syntax errors, missing
// relations) using the condition class in the SQLSTATE code.
func classify(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"): // connection exception
			return true
		case pgErr.Code == "55P03" || pgErr.Code == "40001" || pgErr.Code == "40P01": // lock_not_available, serialization_failure, deadlock_detected
			return true
		default:
			return false
		}
	}
	return true
}
