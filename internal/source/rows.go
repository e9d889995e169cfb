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

package source

import (
	"database/sql"

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/types"
)

// ScanRows drains a database/sql *sql.Rows into SourceRow values. It is
// shared by the MariaDB and MSSQL adapters, the two engines that speak
// database/sql (the Postgres and Mongo adapters use their own native
// drivers and build SourceRow directly).
func ScanRows(rows *sql.Rows) ([]types.SourceRow, error) {
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.Wrap(err, "reading column names")
	}

	var out []types.SourceRow
	for rows.Next() {
		scanDest := make([]any, len(cols))
		scanVals := make([]any, len(cols))
		for i := range scanDest {
			scanDest[i] = &scanVals[i]
		}
		if err := rows.Scan(scanDest...); err != nil {
			return nil, errors.Wrap(err, "scanning row")
		}
		values := make([]any, len(cols))
		for i, v := range scanVals {
			values[i] = normalizeDriverValue(v)
		}
		out = append(out, types.SourceRow{Columns: cols, Values: values})
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "iterating rows")
	}
	return out, nil
}

// normalizeDriverValue unwraps the []byte representation database/sql
// drivers commonly use for text-like columns into a plain string, so
// downstream canonicalization (internal/target) doesn't need to know
// about driver-specific wire types.
func normalizeDriverValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
