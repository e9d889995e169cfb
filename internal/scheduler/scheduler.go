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

// Package scheduler is C6: one worker goroutine per source engine,
// each walking its engine's active catalog entries serially in
// status-priority order (spec.md §4.6), plus a periodic maintenance
// pass that reloads metadata.config and retires deactivated catalog
// rows.
//
// Grounded on the teacher's resolver.retireLoop/Resolvers.get: a
// notify.Var-driven background goroutine holding a mutex-guarded
// instance map, here retargeted from per-schema CDC resolver
// lifecycle onto per-engine worker lifecycle.
package scheduler

import (
	"context"
	"sort"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/notify"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/statemachine"
	"github.com/vectorframe/tablesync/internal/stopper"
	"github.com/vectorframe/tablesync/internal/types"
)

// Scheduler owns one worker per engine in Factories, plus the
// maintenance goroutine.
type Scheduler struct {
	Catalog     catalog.Store
	ConfigStore *catalog.ConfigStore
	Cycle       *statemachine.Cycle
	Factories   map[types.DBEngine]source.Factory
	Defaults    catalog.RuntimeConfig
	Maintenance time.Duration

	config notify.Var[catalog.RuntimeConfig]
}

// New constructs a Scheduler. factories maps each engine this
// deployment replicates from to its source.Open constructor.
func New(
	store catalog.Store,
	configStore *catalog.ConfigStore,
	cycle *statemachine.Cycle,
	factories map[types.DBEngine]source.Factory,
	defaults catalog.RuntimeConfig,
	maintenance time.Duration,
) *Scheduler {
	return &Scheduler{
		Catalog:     store,
		ConfigStore: configStore,
		Cycle:       cycle,
		Factories:   factories,
		Defaults:    defaults,
		Maintenance: maintenance,
	}
}

// Run starts one worker per configured engine and the maintenance
// loop, and blocks until stop signals shutdown.
func (s *Scheduler) Run(ctx context.Context, stop *stopper.Context) error {
	cfg, err := s.ConfigStore.Load(ctx, s.Defaults)
	if err != nil {
		return err
	}
	s.config.Set(cfg)

	stop.Go(func() error { return s.maintenanceLoop(ctx, stop) })

	for engine, factory := range s.Factories {
		engine, factory := engine, factory
		stop.Go(func() error { return s.engineLoop(ctx, stop, engine, factory) })
	}

	<-stop.Stopping()
	return nil
}

// engineLoop services one engine's active catalog entries serially,
// highest scheduling priority first, sleeping sync_interval between
// full sweeps (spec.md §4.6: "serial per engine, parallel across
// engines").
func (s *Scheduler) engineLoop(ctx context.Context, stop *stopper.Context, engine types.DBEngine, factory source.Factory) error {
	adapters := make(map[string]source.Adapter)
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	for {
		select {
		case <-stop.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		entries, err := s.Catalog.ListActive(ctx, engine)
		if err != nil {
			log.WithError(err).WithField("engine", engine.String()).Error("listing active catalog entries")
		} else {
			sortByPriority(entries)
			cfg, _ := s.config.Get()
			for _, entry := range entries {
				select {
				case <-stop.Stopping():
					return nil
				case <-ctx.Done():
					return ctx.Err()
				default:
				}

				adapter, err := s.adapterFor(ctx, adapters, entry, factory)
				if err != nil {
					log.WithError(err).WithField("table", entry.QualifiedTable().Raw()).
						Error("opening source adapter")
					continue
				}
				if err := s.Cycle.Run(ctx, stop, entry, adapter, cfg); err != nil {
					log.WithError(err).WithField("table", entry.QualifiedTable().Raw()).
						Error("table cycle failed")
				}
			}
		}

		cfg, changed := s.config.Get()
		select {
		case <-stop.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-changed:
		case <-time.After(cfg.SyncInterval):
		}
	}
}

// adapterFor returns a cached adapter for entry's connection string,
// opening one on first use. One open connection is kept per distinct
// connection string for the lifetime of the engine loop rather than
// reopened every cycle.
func (s *Scheduler) adapterFor(
	ctx context.Context, cache map[string]source.Adapter, entry types.CatalogEntry, factory source.Factory,
) (source.Adapter, error) {
	if a, ok := cache[entry.ConnectionString]; ok {
		return a, nil
	}
	a, err := factory(ctx, entry.ConnectionString)
	if err != nil {
		return nil, err
	}
	cache[entry.ConnectionString] = a
	return a, nil
}

// sortByPriority orders entries by Status.SchedulingPriority, then by
// schema/table for determinism (spec.md §4.6).
func sortByPriority(entries []types.CatalogEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		pi, pj := entries[i].Status.SchedulingPriority(), entries[j].Status.SchedulingPriority()
		if pi != pj {
			return pi < pj
		}
		if entries[i].Schema != entries[j].Schema {
			return entries[i].Schema < entries[j].Schema
		}
		return entries[i].Table < entries[j].Table
	})
}

// maintenanceLoop reloads metadata.config and retires deactivated
// catalog rows every s.Maintenance (spec.md §4.6: "every 2 minutes").
func (s *Scheduler) maintenanceLoop(ctx context.Context, stop *stopper.Context) error {
	ticker := time.NewTicker(s.Maintenance)
	defer ticker.Stop()

	for {
		select {
		case <-stop.Stopping():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			cfg, err := s.ConfigStore.Load(ctx, s.Defaults)
			if err != nil {
				log.WithError(err).Error("reloading metadata.config")
				continue
			}
			s.config.Set(cfg)

			if n, err := s.Catalog.VacuumDeactivated(ctx); err != nil {
				log.WithError(err).Error("vacuuming deactivated catalog rows")
			} else if n > 0 {
				log.WithField("rows", n).Info("vacuumed deactivated catalog rows")
			}
		}
	}
}
