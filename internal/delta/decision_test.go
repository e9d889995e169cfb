package delta_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/delta"
	"github.com/vectorframe/tablesync/internal/types"
)

func TestDecideNoData(t *testing.T) {
	assert.Equal(t, delta.DecisionNoData, delta.Decide(types.CatalogEntry{}, 0, 0))
}

func TestDecideSourceGoneError(t *testing.T) {
	assert.Equal(t, delta.DecisionSourceGoneError, delta.Decide(types.CatalogEntry{}, 0, 5))
}

func TestDecideUpdateScanRequiresSyncColumnAndTime(t *testing.T) {
	entry := types.CatalogEntry{LastSyncColumn: "updated_at", LastSyncTime: time.Now()}
	assert.Equal(t, delta.DecisionUpdateScan, delta.Decide(entry, 10, 10))

	noColumn := types.CatalogEntry{LastSyncTime: time.Now()}
	assert.NotEqual(t, delta.DecisionUpdateScan, delta.Decide(noColumn, 10, 10))
}

func TestDecideConverged(t *testing.T) {
	entry := types.CatalogEntry{LastOffset: 10}
	assert.Equal(t, delta.DecisionConverged, delta.Decide(entry, 10, 10))
}

func TestDecideDeleteReconcile(t *testing.T) {
	assert.Equal(t, delta.DecisionDeleteReconcile, delta.Decide(types.CatalogEntry{}, 8, 10))
}

func TestDecideInsertPaginate(t *testing.T) {
	assert.Equal(t, delta.DecisionInsertPaginate, delta.Decide(types.CatalogEntry{}, 10, 8))
}
