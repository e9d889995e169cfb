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

//go:build !wireinject

// Code generated by Wire normally lives here; hand-written against
// wire.go's injector shape since this module does not run `go
// generate`. Mirrors the teacher's sinktest/base/wire_gen.go: a
// sequence of Provide* calls, unwinding already-opened cleanups if a
// later step fails.
package runtime

import (
	"context"

	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/config"
	"github.com/vectorframe/tablesync/internal/scheduler"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/statemachine"
	"github.com/vectorframe/tablesync/internal/target"
	"github.com/vectorframe/tablesync/internal/types"
)

// Runtime aggregates every constructed collaborator a running
// tablesync process needs. It holds no behavior of its own beyond
// Run; cmd/tablesync wires Config into it and calls Run.
type Runtime struct {
	Config      *config.Config
	CatalogPool *types.CatalogPool
	TargetPool  *types.TargetPool
	Catalog     catalog.Store
	ConfigStore *catalog.ConfigStore
	Writer      *target.Writer
	Cycle       *statemachine.Cycle
	Factories   map[types.DBEngine]source.Factory
	Scheduler   *scheduler.Scheduler
}

// New assembles a Runtime from cfg, opening the shared pgx pool and
// returning a cleanup that closes it. On any construction failure,
// already-opened resources are released before the error is returned.
func New(ctx context.Context, cfg *config.Config) (*Runtime, func(), error) {
	pgxPool, poolCleanup, err := ProvideCatalogPgxPool(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	catalogPool := ProvideCatalogPool(pgxPool, cfg)
	targetPool := ProvideTargetPool(pgxPool, cfg)
	catalogStore := ProvideCatalogStore(catalogPool)
	configStore := ProvideConfigStore(catalogPool)
	writer := ProvideWriter(targetPool)
	cycle := ProvideCycle(catalogStore, writer, targetPool)
	factories := ProvideFactories()
	sched := ProvideScheduler(catalogStore, configStore, cycle, factories, cfg)

	rt := &Runtime{
		Config:      cfg,
		CatalogPool: catalogPool,
		TargetPool:  targetPool,
		Catalog:     catalogStore,
		ConfigStore: configStore,
		Writer:      writer,
		Cycle:       cycle,
		Factories:   factories,
		Scheduler:   sched,
	}

	cleanup := func() {
		poolCleanup()
	}
	return rt, cleanup, nil
}
