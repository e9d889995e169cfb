package catalog_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/catalog"
)

func TestWriteSubBatchSize(t *testing.T) {
	cases := []struct {
		chunk int
		want  int
	}{
		{chunk: 1000, want: 500},
		{chunk: 2000, want: 500}, // capped at 500 per spec.md §6
		{chunk: 10, want: 5},
		{chunk: 1, want: 1},
	}
	for _, tc := range cases {
		cfg := catalog.RuntimeConfig{ChunkSize: tc.chunk, SyncInterval: time.Second, DebugLevel: "INFO"}
		assert.Equal(t, tc.want, cfg.WriteSubBatchSize(), "chunk=%d", tc.chunk)
	}
}
