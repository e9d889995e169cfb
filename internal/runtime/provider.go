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

// Package runtime wires C1-C6 into one explicit-construction Runtime,
// with no global singletons (spec.md Design Notes). Grounded on the
// teacher's internal/source/logical/provider.go: a wire.NewSet of
// Provide* functions, each returning a value (and, where it opens a
// resource, a cleanup func) for wire to sequence.
package runtime

import (
	"context"

	"github.com/google/wire"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/config"
	"github.com/vectorframe/tablesync/internal/scheduler"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/source/mariadb"
	"github.com/vectorframe/tablesync/internal/source/mongo"
	"github.com/vectorframe/tablesync/internal/source/mssql"
	"github.com/vectorframe/tablesync/internal/source/postgres"
	"github.com/vectorframe/tablesync/internal/statemachine"
	"github.com/vectorframe/tablesync/internal/target"
	"github.com/vectorframe/tablesync/internal/types"
)

// Set is used by Wire.
var Set = wire.NewSet(
	ProvideCatalogPgxPool,
	ProvideCatalogPool,
	ProvideTargetPool,
	ProvideCatalogStore,
	ProvideConfigStore,
	ProvideWriter,
	ProvideCycle,
	ProvideFactories,
	ProvideScheduler,
)

// ProvideCatalogPgxPool opens the single pgx pool backing both the
// metadata schema and the replicated warehouse tables (spec.md §4.1:
// "the catalog lives inside the target PostgreSQL").
func ProvideCatalogPgxPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, func(), error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.CatalogConn)
	if err != nil {
		return nil, nil, errors.Wrap(err, "parsing catalogConn")
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening catalog/target pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "pinging catalog/target pool")
	}
	return pool, pool.Close, nil
}

// ProvideCatalogPool wraps the shared pool as the metadata-schema
// connection.
func ProvideCatalogPool(pool *pgxpool.Pool, cfg *config.Config) *types.CatalogPool {
	return &types.CatalogPool{
		Pool:     pool,
		PoolInfo: types.PoolInfo{ConnectionString: cfg.CatalogConn, Engine: types.EnginePostgreSQL},
	}
}

// ProvideTargetPool wraps the same shared pool as the warehouse-table
// connection; the two wrapper types exist so the rest of the core
// cannot accidentally pass one pool where the other belongs.
func ProvideTargetPool(pool *pgxpool.Pool, cfg *config.Config) *types.TargetPool {
	return &types.TargetPool{
		Pool:     pool,
		PoolInfo: types.PoolInfo{ConnectionString: cfg.CatalogConn, Engine: types.EnginePostgreSQL},
	}
}

// ProvideCatalogStore constructs C1.
func ProvideCatalogStore(pool *types.CatalogPool) catalog.Store {
	return catalog.NewPGStore(pool)
}

// ProvideConfigStore constructs the metadata.config reader/seeder.
func ProvideConfigStore(pool *types.CatalogPool) *catalog.ConfigStore {
	return catalog.NewConfigStore(pool)
}

// ProvideWriter constructs C3.
func ProvideWriter(pool *types.TargetPool) *target.Writer {
	return target.New(pool)
}

// ProvideCycle constructs C5 over C1 and C3.
func ProvideCycle(store catalog.Store, writer *target.Writer, pool *types.TargetPool) *statemachine.Cycle {
	return statemachine.New(store, writer, pool)
}

// ProvideFactories returns C2's per-engine constructors. Every engine
// the core knows how to read from is registered here; a deployment
// that only replicates from a subset still has all four available, so
// the scheduler's ListActive(engine) determines what actually runs.
func ProvideFactories() map[types.DBEngine]source.Factory {
	return map[types.DBEngine]source.Factory{
		types.EngineMariaDB:    mariadb.Open,
		types.EngineMSSQL:      mssql.Open,
		types.EnginePostgreSQL: postgres.Open,
		types.EngineMongoDB:    mongo.Open,
	}
}

// ProvideScheduler constructs C6 over everything above.
func ProvideScheduler(
	store catalog.Store,
	configStore *catalog.ConfigStore,
	cycle *statemachine.Cycle,
	factories map[types.DBEngine]source.Factory,
	cfg *config.Config,
) *scheduler.Scheduler {
	defaults := catalog.RuntimeConfig{
		ChunkSize:    cfg.DefaultChunkSize,
		SyncInterval: cfg.DefaultSyncInterval,
		DebugLevel:   cfg.DefaultDebugLevel,
	}
	return scheduler.New(store, configStore, cycle, factories, defaults, cfg.MaintenanceInterval)
}
