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
	"fmt"
	"strings"

	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/types"
)

func isPKColumn(col string, pkCols []string) bool {
	for _, pk := range pkCols {
		if pk == col {
			return true
		}
	}
	return false
}

// buildUpsertSQL builds spec.md §4.3's
// `INSERT INTO "s"."t" (cols…) VALUES (row1),(row2),… ON CONFLICT (pk…)
// DO UPDATE SET col = EXCLUDED.col` statement for one sub-batch. All
// rows must share the same column set; that of the first row is
// authoritative.
func buildUpsertSQL(table ident.Table, pkCols []string, rows []types.SourceRow) (string, []any) {
	if len(rows) == 0 {
		return "", nil
	}
	cols := rows[0].Columns
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident.New(c).Quoted()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "INSERT INTO %s (%s) VALUES ", table.Quoted(), strings.Join(quoted, ", "))

	var args []any
	argN := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j := range cols {
			if j > 0 {
				sb.WriteString(", ")
			}
			fmt.Fprintf(&sb, "$%d", argN)
			argN++
			var v any
			if j < len(row.Values) {
				v = row.Values[j]
			}
			args = append(args, v)
		}
		sb.WriteString(")")
	}

	if len(pkCols) > 0 {
		quotedPK := make([]string, len(pkCols))
		for i, c := range pkCols {
			quotedPK[i] = ident.New(c).Quoted()
		}
		var setClauses []string
		for _, c := range cols {
			if isPKColumn(c, pkCols) {
				continue
			}
			q := ident.New(c).Quoted()
			setClauses = append(setClauses, fmt.Sprintf("%s = EXCLUDED.%s", q, q))
		}
		fmt.Fprintf(&sb, " ON CONFLICT (%s)", strings.Join(quotedPK, ", "))
		if len(setClauses) > 0 {
			fmt.Fprintf(&sb, " DO UPDATE SET %s", strings.Join(setClauses, ", "))
		} else {
			sb.WriteString(" DO NOTHING")
		}
	}

	return sb.String(), args
}

// buildInsertSQL is buildUpsertSQL without an ON CONFLICT clause, for
// tables with no declared PK.
func buildInsertSQL(table ident.Table, rows []types.SourceRow) (string, []any) {
	return buildUpsertSQL(table, nil, rows)
}

// buildDeleteSQL builds spec.md §4.3's composite-predicate bulk
// DELETE: `WHERE (pk = v1) OR (pk = v2) …`.
func buildDeleteSQL(table ident.Table, pkCols []string, rows []types.SourceRow) (string, []any) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "DELETE FROM %s WHERE ", table.Quoted())

	var args []any
	argN := 1
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(" OR ")
		}
		sb.WriteString("(")
		for j, pk := range pkCols {
			if j > 0 {
				sb.WriteString(" AND ")
			}
			fmt.Fprintf(&sb, "%s = $%d", ident.New(pk).Quoted(), argN)
			argN++
			v, _ := row.Get(pk)
			args = append(args, v)
		}
		sb.WriteString(")")
	}

	return sb.String(), args
}
