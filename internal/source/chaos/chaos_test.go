package chaos_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/source/chaos"
	"github.com/vectorframe/tablesync/internal/types"
)

type stubAdapter struct{ calls int }

func (s *stubAdapter) CountRows(context.Context, string, string) (int64, error) {
	s.calls++
	return 1, nil
}
func (s *stubAdapter) FetchByPK(context.Context, string, string, []string, []string, int) ([]types.SourceRow, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) FetchByColumnCursor(context.Context, string, string, string, string, int) ([]types.SourceRow, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) FetchByOffset(context.Context, string, string, int64, int) ([]types.SourceRow, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) FetchModifiedSince(context.Context, string, string, string, time.Time) ([]types.SourceRow, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) FetchPKExistence(context.Context, string, string, []string, []string) (map[string]bool, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) DescribePK(context.Context, string, string) ([]string, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) ColumnNames(context.Context, string, string) ([]string, error) {
	s.calls++
	return nil, nil
}
func (s *stubAdapter) Close() error { return nil }

var _ source.Adapter = (*stubAdapter)(nil)

func TestZeroProbabilityPassesThrough(t *testing.T) {
	stub := &stubAdapter{}
	wrapped := chaos.WithChaos(stub, 0)
	_, err := wrapped.CountRows(context.Background(), "s", "t")
	require.NoError(t, err)
	assert.Equal(t, 1, stub.calls)
}

func TestFullProbabilityAlwaysFails(t *testing.T) {
	stub := &stubAdapter{}
	wrapped := chaos.WithChaos(stub, 1)
	_, err := wrapped.CountRows(context.Background(), "s", "t")
	assert.ErrorIs(t, err, chaos.ErrChaos)
	assert.Equal(t, 0, stub.calls)
}
