package delta

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/types"
)

func TestUniqueByPKKeepsLastOccurrence(t *testing.T) {
	rows := []types.SourceRow{
		{Columns: []string{"id", "status"}, Values: []any{1, "open"}},
		{Columns: []string{"id", "status"}, Values: []any{2, "open"}},
		{Columns: []string{"id", "status"}, Values: []any{1, "closed"}},
	}
	out := uniqueByPK(rows, []string{"id"})
	assert.Len(t, out, 2)

	byID := make(map[int]string)
	for _, r := range out {
		id, _ := r.Get("id")
		status, _ := r.Get("status")
		byID[id.(int)] = status.(string)
	}
	assert.Equal(t, "closed", byID[1])
	assert.Equal(t, "open", byID[2])
}

func TestRowDiffersIgnoresCanonicalizedSentinel(t *testing.T) {
	candidate := types.SourceRow{Columns: []string{"id", "note"}, Values: []any{1, "\\N"}}
	existing := map[string]any{"id": 1, "note": "DEFAULT"}
	assert.False(t, rowDiffers(candidate, existing, nil))
}
