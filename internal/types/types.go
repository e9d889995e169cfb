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

// Package types contains the data model and capability interfaces
// shared by every component of tablesync. Placing them here, rather
// than in each component's own package, keeps C1-C6 composable without
// import cycles.
package types

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vectorframe/tablesync/internal/ident"
)

// DBEngine enumerates the source engines tablesync knows how to read
// from. The target is always PostgreSQL and is not a member of this
// enum.
type DBEngine int

//go:generate go run golang.org/x/tools/cmd/stringer -type=DBEngine -trimprefix Engine

// Supported engines. New engines are added here and given an adapter
// in internal/source; nothing else in the core needs to change.
const (
	EngineUnknown DBEngine = iota
	EngineMariaDB
	EngineMSSQL
	EnginePostgreSQL
	EngineMongoDB
)

// String renders the engine name used in metadata.catalog.db_engine.
func (e DBEngine) String() string {
	switch e {
	case EngineMariaDB:
		return "MariaDB"
	case EngineMSSQL:
		return "MSSQL"
	case EnginePostgreSQL:
		return "PostgreSQL"
	case EngineMongoDB:
		return "MongoDB"
	default:
		return "Unknown"
	}
}

// ParseDBEngine is the inverse of String.
func ParseDBEngine(s string) DBEngine {
	switch s {
	case "MariaDB", "MySQL":
		return EngineMariaDB
	case "MSSQL":
		return EngineMSSQL
	case "PostgreSQL":
		return EnginePostgreSQL
	case "MongoDB":
		return EngineMongoDB
	default:
		return EngineUnknown
	}
}

// PKStrategy selects which cursor regime governs a table's pagination,
// per spec.md §3.
type PKStrategy int

const (
	// StrategyUnknown marks a catalog entry that discovery has not yet
	// classified.
	StrategyUnknown PKStrategy = iota
	// StrategyPK paginates by a stable composite primary key.
	StrategyPK
	// StrategyTemporalPK paginates by a monotonic fallback column
	// (e.g. an auto-increment surrogate or creation timestamp) when no
	// usable PK exists.
	StrategyTemporalPK
	// StrategyOffset paginates by row-count offset, the weakest
	// strategy, used only when no ordering key is available.
	StrategyOffset
)

func (s PKStrategy) String() string {
	switch s {
	case StrategyPK:
		return "PK"
	case StrategyTemporalPK:
		return "TEMPORAL_PK"
	case StrategyOffset:
		return "OFFSET"
	default:
		return "UNKNOWN"
	}
}

// ParsePKStrategy is the inverse of String.
func ParsePKStrategy(s string) PKStrategy {
	switch s {
	case "PK":
		return StrategyPK
	case "TEMPORAL_PK":
		return StrategyTemporalPK
	case "OFFSET":
		return StrategyOffset
	default:
		return StrategyUnknown
	}
}

// Status is a table's position in the lifecycle described by spec.md
// §4.5.
type Status int

const (
	// StatusUnknown is never persisted; it is the zero value only.
	StatusUnknown Status = iota
	// StatusFullLoad is the initial bulk-copy state.
	StatusFullLoad
	// StatusListeningChanges is steady-state incremental replication.
	StatusListeningChanges
	// StatusPerfectMatch asserts source and target were observed equal
	// and the cursor exhausted at the moment of transition.
	StatusPerfectMatch
	// StatusReset requests a truncate-and-reseed on the next pass.
	StatusReset
	// StatusNoData means both source and target were empty.
	StatusNoData
	// StatusError is sticky until an operator or discovery resets it.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusFullLoad:
		return "FULL_LOAD"
	case StatusListeningChanges:
		return "LISTENING_CHANGES"
	case StatusPerfectMatch:
		return "PERFECT_MATCH"
	case StatusReset:
		return "RESET"
	case StatusNoData:
		return "NO_DATA"
	case StatusError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseStatus is the inverse of String.
func ParseStatus(s string) Status {
	switch s {
	case "FULL_LOAD":
		return StatusFullLoad
	case "LISTENING_CHANGES":
		return StatusListeningChanges
	case "PERFECT_MATCH":
		return StatusPerfectMatch
	case "RESET":
		return StatusReset
	case "NO_DATA":
		return StatusNoData
	case "ERROR":
		return StatusError
	default:
		return StatusUnknown
	}
}

// SchedulingPriority returns the dispatch rank used by the scheduler
// (spec.md §4.6): lower values are serviced first.
func (s Status) SchedulingPriority() int {
	switch s {
	case StatusFullLoad:
		return 0
	case StatusReset:
		return 1
	case StatusPerfectMatch:
		return 2
	case StatusListeningChanges:
		return 3
	default:
		return 4
	}
}

// CatalogEntry is one row of metadata.catalog: identity, progress
// cursors and status for a single (schema, table) pair, per spec.md
// §3.
type CatalogEntry struct {
	Schema           string
	Table            string
	ClusterName      string
	Engine           DBEngine
	ConnectionString string
	Active           bool

	PKStrategy       PKStrategy
	PKColumns        []string
	CandidateColumns []string
	LastProcessedPK  string
	LastOffset       int64
	LastSyncColumn   string
	LastSyncTime     time.Time

	Status       Status
	ErrorMessage string
}

// QualifiedTable returns the ident.Table this entry describes.
func (c CatalogEntry) QualifiedTable() ident.Table {
	return ident.NewQualifiedTable(c.Schema, c.Table)
}

// SourceRow is an ordered tuple of typed values drawn from a source
// table, plus the column names they correspond to. Values may be nil
// to represent SQL NULL.
type SourceRow struct {
	Columns []string
	Values  []any
}

// Get returns the value for a named column, and whether it was found.
func (r SourceRow) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// Op identifies the write operation a DeltaBatch represents.
type Op int

const (
	// OpInsert writes rows known not to already exist in the target.
	OpInsert Op = iota
	// OpUpsert writes rows that may already exist in the target.
	OpUpsert
	// OpDelete removes rows from the target by primary key.
	OpDelete
)

func (o Op) String() string {
	switch o {
	case OpInsert:
		return "INSERT"
	case OpUpsert:
		return "UPSERT"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// DeltaBatch is an ordered sequence of SourceRows staged for one write
// call, tagged by operation and by the cursor the catalog should
// advance to once the batch commits (spec.md §3).
type DeltaBatch struct {
	Table ident.Table
	Op    Op
	Rows  []SourceRow

	// An insert-pagination batch carries NextLastProcessedPK or
	// NextLastOffset, matching the owning CatalogEntry's PKStrategy; an
	// update-scan batch carries NextLastSyncTime with HasNextSyncTime
	// set.
	NextLastProcessedPK string
	NextLastOffset      int64
	NextLastSyncTime    time.Time
	HasNextSyncTime     bool
}

// Empty reports whether the batch carries no rows to write.
func (b DeltaBatch) Empty() bool { return len(b.Rows) == 0 }

// StagingQuerier is implemented by pgxpool.Pool, pgxpool.Conn,
// pgxpool.Tx, pgx.Conn and pgx.Tx: the assertions below pin that. No
// component of this module takes one as a parameter.
type StagingQuerier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, optionsAndArgs ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, optionsAndArgs ...any) pgx.Row
}

var (
	_ StagingQuerier = (*pgxpool.Conn)(nil)
	_ StagingQuerier = (*pgxpool.Pool)(nil)
	_ StagingQuerier = (*pgxpool.Tx)(nil)
	_ StagingQuerier = (*pgx.Conn)(nil)
	_ StagingQuerier = (pgx.Tx)(nil)
)

// PoolInfo describes a database connection pool and what product it
// connects to.
type PoolInfo struct {
	ConnectionString string
	Engine           DBEngine
	Version          string
}

// Info returns the PoolInfo when embedded, satisfying AnyPool.
func (i *PoolInfo) Info() *PoolInfo { return i }

// AnyPool is a generic constraint over every pool type tablesync
// constructs.
type AnyPool interface {
	*CatalogPool | *SourcePool | *TargetPool
	Info() *PoolInfo
}

// CatalogPool is the injection point for the pgx pool backing
// metadata.catalog / metadata.config.
type CatalogPool struct {
	*pgxpool.Pool
	PoolInfo
	_ noCopy
}

// SourcePool is the injection point for a connection to one source
// engine instance. internal/scheduler keeps one source adapter open per
// connection string for the lifetime of its engine loop rather than
// reopening one every cycle.
type SourcePool struct {
	*sql.DB
	PoolInfo
	_ noCopy
}

// TargetPool is the injection point for the pgx pool backing the
// replicated warehouse tables.
type TargetPool struct {
	*pgxpool.Pool
	PoolInfo
	_ noCopy
}

type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
