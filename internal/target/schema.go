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
	"strings"

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/types"
)

// ColumnFamilies introspects the target table's declared column types
// and returns the type family Canonicalize should use for each column.
// Table creation and DDL export are out of this package's scope; this
// only reads what already exists.
func ColumnFamilies(ctx context.Context, pool *types.TargetPool, table ident.Table) (map[string]ColumnTypeFamily, error) {
	rows, err := pool.Query(ctx, `
SELECT column_name, data_type
FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2`, table.Schema().Raw(), table.Table().Raw())
	if err != nil {
		return nil, errors.Wrap(err, "reading target column types")
	}
	defer rows.Close()

	out := make(map[string]ColumnTypeFamily)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, errors.Wrap(err, "scanning column type")
		}
		out[name] = familyForPGType(dataType)
	}
	return out, rows.Err()
}

func familyForPGType(dataType string) ColumnTypeFamily {
	dataType = strings.ToLower(dataType)
	switch {
	case strings.Contains(dataType, "int"):
		return FamilyInteger
	case strings.Contains(dataType, "numeric"), strings.Contains(dataType, "decimal"),
		strings.Contains(dataType, "real"), strings.Contains(dataType, "double"):
		return FamilyNumeric
	case strings.Contains(dataType, "bool"):
		return FamilyBoolean
	case strings.Contains(dataType, "timestamp"):
		return FamilyTimestamp
	case dataType == "date":
		return FamilyDate
	case strings.Contains(dataType, "time"):
		return FamilyTime
	default:
		return FamilyText
	}
}
