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

package source

import (
	"context"
	"time"

	"github.com/vectorframe/tablesync/internal/types"
)

// The embedded Adapter supplies Close(); every read method below is
// overridden so it runs under the retry policy rather than the
// embedded delegate directly.

func (r *retryingAdapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	var out int64
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.CountRows(ctx, schema, table)
		return err
	})
	return out, err
}

func (r *retryingAdapter) FetchByPK(
	ctx context.Context, schema, table string, pkCols []string, afterPK []string, limit int,
) ([]types.SourceRow, error) {
	var out []types.SourceRow
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.FetchByPK(ctx, schema, table, pkCols, afterPK, limit)
		return err
	})
	return out, err
}

func (r *retryingAdapter) FetchByColumnCursor(
	ctx context.Context, schema, table, col string, afterValue string, limit int,
) ([]types.SourceRow, error) {
	var out []types.SourceRow
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.FetchByColumnCursor(ctx, schema, table, col, afterValue, limit)
		return err
	})
	return out, err
}

func (r *retryingAdapter) FetchByOffset(
	ctx context.Context, schema, table string, offset int64, limit int,
) ([]types.SourceRow, error) {
	var out []types.SourceRow
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.FetchByOffset(ctx, schema, table, offset, limit)
		return err
	})
	return out, err
}

func (r *retryingAdapter) FetchModifiedSince(
	ctx context.Context, schema, table, timeCol string, since time.Time,
) ([]types.SourceRow, error) {
	var out []types.SourceRow
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.FetchModifiedSince(ctx, schema, table, timeCol, since)
		return err
	})
	return out, err
}

func (r *retryingAdapter) FetchPKExistence(
	ctx context.Context, schema, table string, pkCols []string, candidatePKs []string,
) (map[string]bool, error) {
	var out map[string]bool
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.FetchPKExistence(ctx, schema, table, pkCols, candidatePKs)
		return err
	})
	return out, err
}

func (r *retryingAdapter) DescribePK(ctx context.Context, schema, table string) ([]string, error) {
	var out []string
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.DescribePK(ctx, schema, table)
		return err
	})
	return out, err
}

func (r *retryingAdapter) ColumnNames(ctx context.Context, schema, table string) ([]string, error) {
	var out []string
	err := r.do(ctx, func() error {
		var err error
		out, err = r.Adapter.ColumnNames(ctx, schema, table)
		return err
	})
	return out, err
}
