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

// Package catalog is C1: the durable, per-table registry of identity,
// progress cursors, status, and strategy hints (spec.md §4.1). It
// lives inside the target PostgreSQL as the metadata schema and is
// treated as a key-value store keyed by (schema_name, table_name).
package catalog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/cursor"
	"github.com/vectorframe/tablesync/internal/errkit"
	"github.com/vectorframe/tablesync/internal/types"
)

// Store is the C1 contract. Implementations must guarantee that each
// method below is individually atomic (spec.md §4.1's "Consistency"
// clause); the store tolerates concurrent readers, while the
// scheduler guarantees at most one mutating worker per table.
type Store interface {
	// ListActive returns active, non-NO_DATA entries for the given
	// engine, ordered deterministically by schema then table.
	ListActive(ctx context.Context, engine types.DBEngine) ([]types.CatalogEntry, error)

	// Get returns the single entry for (schema, table).
	Get(ctx context.Context, schema, table string) (types.CatalogEntry, error)

	// UpdateStatus sets status and, when count is non-nil and status
	// is one that tracks row counts, also writes last_offset. When the
	// entry has a last_sync_column configured, last_sync_time is
	// refreshed from the target's observed MAX(last_sync_column); the
	// actual MAX() query against the warehouse is supplied by the
	// caller via maxSyncTime, since only the caller (the state
	// machine, via the target writer) has a live connection to that
	// table.
	UpdateStatus(ctx context.Context, schema, table string, status types.Status, count *int64, maxSyncTime *time.Time) error

	// UpdateLastProcessedPK advances the PK/TEMPORAL_PK cursor. It
	// refuses (returning *errkit.CursorInvariantError) to move the
	// cursor backwards.
	UpdateLastProcessedPK(ctx context.Context, schema, table string, pk string) error

	// UpdateLastOffset advances the OFFSET cursor. Only legal when the
	// entry's pk_strategy is OFFSET.
	UpdateLastOffset(ctx context.Context, schema, table string, n int64) error

	// ResetCursor clears last_processed_pk/last_offset, used by the
	// RESET entry action (spec.md §4.5).
	ResetCursor(ctx context.Context, schema, table string) error

	// VacuumDeactivated permanently deletes catalog rows with
	// active = false. A row is never destroyed while active (spec.md
	// §3: "deactivation is a flag change"); once deactivated, the
	// scheduler's maintenance pass (spec.md §4.6) is what actually
	// removes it. Returns the number of rows removed.
	VacuumDeactivated(ctx context.Context) (int64, error)
}

// statusTracksCount mirrors spec.md §4.1: "when status ∈
// {FULL_LOAD, RESET, LISTENING_CHANGES} also writes last_offset".
func statusTracksCount(s types.Status) bool {
	switch s {
	case types.StatusFullLoad, types.StatusReset, types.StatusListeningChanges:
		return true
	default:
		return false
	}
}

// PGStore is the pgx-backed Store implementation against
// metadata.catalog.
type PGStore struct {
	pool *types.CatalogPool
}

var _ Store = (*PGStore)(nil)

// NewPGStore constructs a PGStore over an already-opened pool.
func NewPGStore(pool *types.CatalogPool) *PGStore {
	return &PGStore{pool: pool}
}

const listActiveQuery = `
SELECT schema_name, table_name, cluster_name, db_engine, connection_string,
       active, status, last_sync_time, last_sync_column, last_offset,
       last_processed_pk, pk_strategy, pk_columns, candidate_columns
  FROM metadata.catalog
 WHERE active = true AND db_engine = $1 AND status != 'NO_DATA'
 ORDER BY schema_name, table_name`

// ListActive implements Store.
func (s *PGStore) ListActive(ctx context.Context, engine types.DBEngine) ([]types.CatalogEntry, error) {
	rows, err := s.pool.Query(ctx, listActiveQuery, engine.String())
	if err != nil {
		return nil, wrapQueryErr(err)
	}
	defer rows.Close()

	var out []types.CatalogEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapQueryErr(err)
	}
	return out, nil
}

const getQuery = `
SELECT schema_name, table_name, cluster_name, db_engine, connection_string,
       active, status, last_sync_time, last_sync_column, last_offset,
       last_processed_pk, pk_strategy, pk_columns, candidate_columns
  FROM metadata.catalog
 WHERE schema_name = $1 AND table_name = $2`

// Get implements Store.
func (s *PGStore) Get(ctx context.Context, schema, table string) (types.CatalogEntry, error) {
	row := s.pool.QueryRow(ctx, getQuery, schema, table)
	e, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return types.CatalogEntry{}, errkit.NewPermanentSource(
				errors.Errorf("no catalog entry for %s.%s", schema, table))
		}
		return types.CatalogEntry{}, wrapQueryErr(err)
	}
	return e, nil
}

// rowScanner is satisfied by both pgx.Rows and pgx.Row.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (types.CatalogEntry, error) {
	var e types.CatalogEntry
	var engine, status, pkStrategy string
	var lastSyncTime *time.Time
	var lastSyncColumn *string
	var pkColumnsJSON, candidateColumnsJSON []byte

	if err := row.Scan(
		&e.Schema, &e.Table, &e.ClusterName, &engine, &e.ConnectionString,
		&e.Active, &status, &lastSyncTime, &lastSyncColumn, &e.LastOffset,
		&e.LastProcessedPK, &pkStrategy, &pkColumnsJSON, &candidateColumnsJSON,
	); err != nil {
		return types.CatalogEntry{}, err
	}

	e.Engine = types.ParseDBEngine(engine)
	e.Status = types.ParseStatus(status)
	e.PKStrategy = types.ParsePKStrategy(pkStrategy)
	if lastSyncTime != nil {
		e.LastSyncTime = *lastSyncTime
	}
	if lastSyncColumn != nil {
		e.LastSyncColumn = *lastSyncColumn
	}
	if len(pkColumnsJSON) > 0 {
		if err := json.Unmarshal(pkColumnsJSON, &e.PKColumns); err != nil {
			return types.CatalogEntry{}, errors.Wrap(err, "decoding pk_columns")
		}
	}
	if len(candidateColumnsJSON) > 0 {
		if err := json.Unmarshal(candidateColumnsJSON, &e.CandidateColumns); err != nil {
			return types.CatalogEntry{}, errors.Wrap(err, "decoding candidate_columns")
		}
	}
	return e, nil
}

const updateStatusQuery = `UPDATE metadata.catalog SET status = $3 WHERE schema_name = $1 AND table_name = $2`
const updateStatusWithOffsetQuery = `UPDATE metadata.catalog SET status = $3, last_offset = $4 WHERE schema_name = $1 AND table_name = $2`
const updateSyncTimeQuery = `UPDATE metadata.catalog SET last_sync_time = $3 WHERE schema_name = $1 AND table_name = $2`

// UpdateStatus implements Store.
func (s *PGStore) UpdateStatus(
	ctx context.Context, schema, table string, status types.Status, count *int64, maxSyncTime *time.Time,
) error {
	var err error
	if count != nil && statusTracksCount(status) {
		_, err = s.pool.Exec(ctx, updateStatusWithOffsetQuery, schema, table, status.String(), *count)
	} else {
		_, err = s.pool.Exec(ctx, updateStatusQuery, schema, table, status.String())
	}
	if err != nil {
		return wrapQueryErr(err)
	}

	// spec.md §4.1: "When last_sync_column is set and the target table
	// exists, also refreshes last_sync_time to MAX(last_sync_column)
	// from the target; otherwise to 'now'." The caller computes that
	// MAX() (it alone holds a target connection); if it passes nil, we
	// fall back to wall-clock now here, matching the "otherwise" case.
	ts := time.Now().UTC()
	if maxSyncTime != nil {
		ts = *maxSyncTime
	}
	entry, err := s.Get(ctx, schema, table)
	if err != nil {
		return err
	}
	if entry.LastSyncColumn == "" {
		return nil
	}
	if _, err := s.pool.Exec(ctx, updateSyncTimeQuery, schema, table, ts); err != nil {
		return wrapQueryErr(err)
	}
	return nil
}

const getCursorQuery = `SELECT last_processed_pk, last_offset, pk_strategy FROM metadata.catalog WHERE schema_name = $1 AND table_name = $2`
const updateLastProcessedPKQuery = `UPDATE metadata.catalog SET last_processed_pk = $3 WHERE schema_name = $1 AND table_name = $2`

// UpdateLastProcessedPK implements Store. Per spec.md §3 invariant 2,
// the cursor must be monotonically non-decreasing; this refuses a
// regression rather than silently corrupting progress.
func (s *PGStore) UpdateLastProcessedPK(ctx context.Context, schema, table string, pk string) error {
	var current string
	var offset int64
	var strategy string
	if err := s.pool.QueryRow(ctx, getCursorQuery, schema, table).Scan(&current, &offset, &strategy); err != nil {
		return wrapQueryErr(err)
	}
	if cursor.Compare(pk, current) < 0 {
		return errkit.NewCursorInvariant(schema, table, "last_processed_pk would move backwards")
	}
	if _, err := s.pool.Exec(ctx, updateLastProcessedPKQuery, schema, table, pk); err != nil {
		return wrapQueryErr(err)
	}
	return nil
}

const updateLastOffsetQuery = `UPDATE metadata.catalog SET last_offset = $3 WHERE schema_name = $1 AND table_name = $2`

// UpdateLastOffset implements Store.
func (s *PGStore) UpdateLastOffset(ctx context.Context, schema, table string, n int64) error {
	var current string
	var offset int64
	var strategy string
	if err := s.pool.QueryRow(ctx, getCursorQuery, schema, table).Scan(&current, &offset, &strategy); err != nil {
		return wrapQueryErr(err)
	}
	if types.ParsePKStrategy(strategy) != types.StrategyOffset {
		return errkit.NewCursorInvariant(schema, table, "UpdateLastOffset called but pk_strategy != OFFSET")
	}
	if n < offset {
		return errkit.NewCursorInvariant(schema, table, "last_offset would move backwards")
	}
	if _, err := s.pool.Exec(ctx, updateLastOffsetQuery, schema, table, n); err != nil {
		return wrapQueryErr(err)
	}
	return nil
}

const resetCursorQuery = `UPDATE metadata.catalog SET last_processed_pk = '', last_offset = 0 WHERE schema_name = $1 AND table_name = $2`

// ResetCursor implements Store.
func (s *PGStore) ResetCursor(ctx context.Context, schema, table string) error {
	_, err := s.pool.Exec(ctx, resetCursorQuery, schema, table)
	return wrapQueryErr(err)
}

const vacuumDeactivatedQuery = `DELETE FROM metadata.catalog WHERE active = false`

// VacuumDeactivated implements Store.
func (s *PGStore) VacuumDeactivated(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, vacuumDeactivatedQuery)
	if err != nil {
		return 0, wrapQueryErr(err)
	}
	return tag.RowsAffected(), nil
}

func wrapQueryErr(err error) error {
	if err == nil {
		return nil
	}
	// Every failure against the catalog's own store is wrapped as
	// transient-target (the catalog lives in the target Postgres); this
	// package does not tell connectivity or lock-timeout failures apart
	// from programming or schema-mismatch errors.
	return errkit.NewTransientTarget(err)
}
