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

// Package mssql implements the source Adapter over Microsoft SQL
// Server.
package mssql

import (
	"context"
	"database/sql"

	mssqldriver "github.com/microsoft/go-mssqldb"
	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// Open dials an MSSQL instance. Per spec.md §6, the connection string
// is driver-prefixed and passed through unmodified; the adapter does
// not parse or reassemble it, unlike the key=value MariaDB form.
func Open(ctx context.Context, connectionString string) (source.Adapter, error) {
	db, err := sql.Open("sqlserver", connectionString)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "could not ping MSSQL")
	}

	pool := &types.SourcePool{
		DB: db,
		PoolInfo: types.PoolInfo{
			ConnectionString: connectionString,
			Engine:           types.EngineMSSQL,
		},
	}
	return source.WithRetry(&adapter{pool: pool}, classify), nil
}

func classify(err error) bool {
	var mssqlErr mssqldriver.Error
	if errors.As(err, &mssqlErr) {
		switch mssqlErr.Number {
		case 1205, 1222, 4060: // deadlock victim, lock timeout, invalid database
			return true
		default:
			return false
		}
	}
	return true
}
