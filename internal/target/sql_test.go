package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/ident"
	"github.com/vectorframe/tablesync/internal/types"
)

func row(cols []string, vals []any) types.SourceRow {
	return types.SourceRow{Columns: cols, Values: vals}
}

func TestBuildUpsertSQLShape(t *testing.T) {
	table := ident.NewQualifiedTable("warehouse", "orders")
	rows := []types.SourceRow{
		row([]string{"id", "status"}, []any{1, "open"}),
		row([]string{"id", "status"}, []any{2, "closed"}),
	}
	sql, args := buildUpsertSQL(table, []string{"id"}, rows)

	assert.Contains(t, sql, `INSERT INTO "warehouse"."orders"`)
	assert.Contains(t, sql, "VALUES ($1, $2), ($3, $4)")
	assert.Contains(t, sql, `ON CONFLICT ("id")`)
	assert.Contains(t, sql, `DO UPDATE SET "status" = EXCLUDED."status"`)
	assert.Equal(t, []any{1, "open", 2, "closed"}, args)
}

func TestBuildUpsertSQLNoNonPKColumnsDoesNothing(t *testing.T) {
	table := ident.NewQualifiedTable("warehouse", "orders")
	rows := []types.SourceRow{row([]string{"id"}, []any{1})}
	sql, _ := buildUpsertSQL(table, []string{"id"}, rows)
	assert.Contains(t, sql, "DO NOTHING")
}

func TestBuildInsertSQLHasNoConflictClause(t *testing.T) {
	table := ident.NewQualifiedTable("warehouse", "orders")
	rows := []types.SourceRow{row([]string{"id", "status"}, []any{1, "open"})}
	sql, _ := buildInsertSQL(table, rows)
	assert.NotContains(t, sql, "ON CONFLICT")
}

func TestBuildDeleteSQLCompositePredicate(t *testing.T) {
	table := ident.NewQualifiedTable("warehouse", "orders")
	rows := []types.SourceRow{
		row([]string{"id", "region"}, []any{1, "us"}),
		row([]string{"id", "region"}, []any{2, "eu"}),
	}
	sql, args := buildDeleteSQL(table, []string{"id", "region"}, rows)

	assert.Contains(t, sql, `DELETE FROM "warehouse"."orders" WHERE`)
	assert.Contains(t, sql, `("id" = $1 AND "region" = $2)`)
	assert.Contains(t, sql, `("id" = $3 AND "region" = $4)`)
	assert.Equal(t, []any{1, "us", 2, "eu"}, args)
}

func TestChunkRows(t *testing.T) {
	rows := make([]types.SourceRow, 5)
	chunks := chunkRows(rows, 2)
	assert.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 2)
	assert.Len(t, chunks[2], 1)
}
