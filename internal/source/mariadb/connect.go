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

// Package mariadb implements the source Adapter over MariaDB/MySQL.
package mariadb

import (
	"context"
	"database/sql"
	sqldriver "database/sql/driver"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // register driver
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// params holds the parsed semicolon-separated key=value connection
// string (spec.md §6: "MariaDB/MySQL: host, user, password, db;
// optional port (default 3306)").
type params struct {
	host, user, password, db string
	port                     int
}

func parseConnectionString(s string) (params, error) {
	p := params{port: 3306}
	for _, kv := range strings.Split(s, ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) != 2 {
			return params{}, errors.Errorf("malformed connection string component %q", kv)
		}
		key, value := strings.ToLower(strings.TrimSpace(parts[0])), strings.TrimSpace(parts[1])
		switch key {
		case "host":
			p.host = value
		case "user":
			p.user = value
		case "password":
			p.password = value
		case "db":
			p.db = value
		case "port":
			n, err := strconv.Atoi(value)
			if err != nil {
				return params{}, errors.Wrapf(err, "parsing port %q", value)
			}
			p.port = n
		}
	}
	if p.host == "" || p.user == "" || p.db == "" {
		return params{}, errors.Errorf("connection string missing required key (host, user, db)")
	}
	return p, nil
}

// Open dials a MariaDB/MySQL instance and returns it wrapped as a
// source Adapter with the package's bounded-retry policy applied.
// Grounded on the teacher's stdpool.OpenMySQLAsTarget: identical DSN
// assembly (sql_mode=ansi so double-quoted identifiers behave like
// PostgreSQL's) and ping-retry-until-ready loop, retargeted from
// opening a target pool to opening a source pool.
func Open(ctx context.Context, connectionString string) (source.Adapter, error) {
	p, err := parseConnectionString(connectionString)
	if err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?sql_mode=ansi&parseTime=true",
		p.user, p.password, p.host, p.port, p.db)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	deadline := time.Now().Add(30 * time.Second)
	for {
		if err := db.PingContext(ctx); err != nil {
			if isStartupError(err) && time.Now().Before(deadline) {
				log.WithError(err).Info("waiting for MariaDB to become ready")
				select {
				case <-ctx.Done():
					_ = db.Close()
					return nil, ctx.Err()
				case <-time.After(time.Second):
					continue
				}
			}
			_ = db.Close()
			return nil, errors.Wrap(err, "could not ping MariaDB")
		}
		break
	}

	pool := &types.SourcePool{
		DB: db,
		PoolInfo: types.PoolInfo{
			ConnectionString: connectionString,
			Engine:           types.EngineMariaDB,
		},
	}
	return source.WithRetry(&adapter{pool: pool}, classify), nil
}

func isStartupError(err error) bool {
	return errors.Is(err, sqldriver.ErrBadConn)
}
