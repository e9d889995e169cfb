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

package catalog

import (
	"context"
	"strconv"
	"time"

	"github.com/vectorframe/tablesync/internal/types"
)

// RuntimeConfig is the live, re-readable subset of metadata.config
// (spec.md §6): chunk_size, sync_interval, debug_level.
type RuntimeConfig struct {
	ChunkSize    int
	SyncInterval time.Duration
	DebugLevel   string
}

// WriteSubBatchSize returns min(chunkSize/2, 500), the per-write
// sub-batch cap from spec.md §6.
func (c RuntimeConfig) WriteSubBatchSize() int {
	half := c.ChunkSize / 2
	if half > 500 {
		return 500
	}
	if half < 1 {
		return 1
	}
	return half
}

const configGetAllQuery = `SELECT key, value FROM metadata.config`

const configUpsertQuery = `
INSERT INTO metadata.config (key, value) VALUES ($1, $2)
ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

// ConfigStore reads and seeds metadata.config. Grounded on the
// teacher's root resolved_table.go, which persists a single progress
// watermark via an UPSERT keyed by an identifier column; here the key
// space is the small, fixed set of tunable names instead of one
// watermark per endpoint.
type ConfigStore struct {
	pool *types.CatalogPool
}

// NewConfigStore constructs a ConfigStore.
func NewConfigStore(pool *types.CatalogPool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

// Load reads metadata.config into a RuntimeConfig, applying defaults
// for any key not yet present.
func (c *ConfigStore) Load(ctx context.Context, defaults RuntimeConfig) (RuntimeConfig, error) {
	rows, err := c.pool.Query(ctx, configGetAllQuery)
	if err != nil {
		return RuntimeConfig{}, wrapQueryErr(err)
	}
	defer rows.Close()

	ret := defaults
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return RuntimeConfig{}, err
		}
		switch key {
		case "chunk_size":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				ret.ChunkSize = n
			}
		case "sync_interval":
			if n, err := strconv.Atoi(value); err == nil && n > 0 {
				ret.SyncInterval = time.Duration(n) * time.Second
			}
		case "debug_level":
			if value != "" {
				ret.DebugLevel = value
			}
		}
	}
	return ret, rows.Err()
}

// Seed writes defaults into metadata.config for any key that is
// absent, so a freshly migrated catalog has usable tunables before an
// operator edits them.
func (c *ConfigStore) Seed(ctx context.Context, defaults RuntimeConfig) error {
	entries := map[string]string{
		"chunk_size":    strconv.Itoa(defaults.ChunkSize),
		"sync_interval": strconv.Itoa(int(defaults.SyncInterval / time.Second)),
		"debug_level":   defaults.DebugLevel,
	}
	for k, v := range entries {
		if _, err := c.pool.Exec(ctx, `
			INSERT INTO metadata.config (key, value) VALUES ($1, $2)
			ON CONFLICT (key) DO NOTHING`, k, v); err != nil {
			return wrapQueryErr(err)
		}
	}
	return nil
}

// Set writes a single key, used by operator tooling and tests; the
// scheduler picks it up on its next reload per spec.md §4.6.
func (c *ConfigStore) Set(ctx context.Context, key, value string) error {
	_, err := c.pool.Exec(ctx, configUpsertQuery, key, value)
	return wrapQueryErr(err)
}
