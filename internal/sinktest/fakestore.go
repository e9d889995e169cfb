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

// Package sinktest holds in-memory fakes for the C1 catalog.Store and
// C2 source.Adapter contracts, reshaped from the teacher's
// internal/sinktest/all/fixture.go + internal/sinktest/base/wire_gen.go
// (a Fixture struct aggregating constructed dependencies with
// test-only convenience methods) into forms that need no live
// database, since this module's tests never run against one.
package sinktest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/catalog"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/errkit"
	"github.com/vectorframe/tablesync/internal/types"
)

var _ catalog.Store = (*FakeCatalogStore)(nil)

// FakeCatalogStore is an in-memory catalog.Store keyed by
// "schema.table", guarded by a single mutex since tests don't need
// fine-grained locking.
type FakeCatalogStore struct {
	mu      sync.Mutex
	entries map[string]types.CatalogEntry
}

// NewFakeCatalogStore returns an empty store.
func NewFakeCatalogStore() *FakeCatalogStore {
	return &FakeCatalogStore{entries: make(map[string]types.CatalogEntry)}
}

// Put seeds or overwrites an entry, keyed by its own Schema/Table.
func (s *FakeCatalogStore) Put(e types.CatalogEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key(e.Schema, e.Table)] = e
}

func key(schema, table string) string { return schema + "." + table }

// ListActive implements catalog.Store.
func (s *FakeCatalogStore) ListActive(ctx context.Context, engine types.DBEngine) ([]types.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []types.CatalogEntry
	for _, e := range s.entries {
		if e.Active && e.Engine == engine && e.Status != types.StatusNoData {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Schema != out[j].Schema {
			return out[i].Schema < out[j].Schema
		}
		return out[i].Table < out[j].Table
	})
	return out, nil
}

// Get implements catalog.Store.
func (s *FakeCatalogStore) Get(ctx context.Context, schema, table string) (types.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key(schema, table)]
	if !ok {
		return types.CatalogEntry{}, errkit.NewPermanentSource(errors.Errorf("no catalog entry for %s.%s", schema, table))
	}
	return e, nil
}

// UpdateStatus implements catalog.Store.
func (s *FakeCatalogStore) UpdateStatus(ctx context.Context, schema, table string, status types.Status, count *int64, maxSyncTime *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key(schema, table)]
	if !ok {
		return errors.Errorf("no catalog entry for %s.%s", schema, table)
	}
	e.Status = status
	if count != nil {
		switch status {
		case types.StatusFullLoad, types.StatusReset, types.StatusListeningChanges:
			e.LastOffset = *count
		}
	}
	if e.LastSyncColumn != "" {
		if maxSyncTime != nil {
			e.LastSyncTime = *maxSyncTime
		} else {
			e.LastSyncTime = time.Now().UTC()
		}
	}
	s.entries[key(schema, table)] = e
	return nil
}

// UpdateLastProcessedPK implements catalog.Store.
func (s *FakeCatalogStore) UpdateLastProcessedPK(ctx context.Context, schema, table string, pk string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key(schema, table)]
	if !ok {
		return errors.Errorf("no catalog entry for %s.%s", schema, table)
	}
	if cursor.Compare(pk, e.LastProcessedPK) < 0 {
		return errkit.NewCursorInvariant(schema, table, "last_processed_pk would move backwards")
	}
	e.LastProcessedPK = pk
	s.entries[key(schema, table)] = e
	return nil
}

// UpdateLastOffset implements catalog.Store.
func (s *FakeCatalogStore) UpdateLastOffset(ctx context.Context, schema, table string, n int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key(schema, table)]
	if !ok {
		return errors.Errorf("no catalog entry for %s.%s", schema, table)
	}
	if e.PKStrategy != types.StrategyOffset {
		return errkit.NewCursorInvariant(schema, table, "UpdateLastOffset called but pk_strategy != OFFSET")
	}
	if n < e.LastOffset {
		return errkit.NewCursorInvariant(schema, table, "last_offset would move backwards")
	}
	e.LastOffset = n
	s.entries[key(schema, table)] = e
	return nil
}

// ResetCursor implements catalog.Store.
func (s *FakeCatalogStore) ResetCursor(ctx context.Context, schema, table string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key(schema, table)]
	if !ok {
		return errors.Errorf("no catalog entry for %s.%s", schema, table)
	}
	e.LastProcessedPK = ""
	e.LastOffset = 0
	s.entries[key(schema, table)] = e
	return nil
}

// VacuumDeactivated implements catalog.Store.
func (s *FakeCatalogStore) VacuumDeactivated(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for k, e := range s.entries {
		if !e.Active {
			delete(s.entries, k)
			removed++
		}
	}
	return removed, nil
}
