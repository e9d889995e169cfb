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

// Package chaos wraps a source.Adapter with randomly-injected errors,
// for driving the isolation-across-tables and shutdown-safety test
// suites without standing up a flaky real database.
package chaos

import (
	"context"
	"math/rand"
	"time"

	"github.com/pkg/errors"
	"github.com/vectorframe/tablesync/internal/source"
	"github.com/vectorframe/tablesync/internal/types"
)

// ErrChaos is the error injected by a chaosAdapter.
var ErrChaos = errors.New("chaos")

// WithChaos returns delegate wrapped so each call fails with
// probability prob. A prob <= 0 returns delegate unchanged.
func WithChaos(delegate source.Adapter, prob float32) source.Adapter {
	if prob <= 0 {
		return delegate
	}
	return &chaosAdapter{delegate: delegate, prob: prob}
}

// chaosAdapter deliberately does not embed source.Adapter: adding a
// method to the interface should break this file's compile until the
// new method's chaos behavior is decided, not silently pass through.
type chaosAdapter struct {
	delegate source.Adapter
	prob     float32
}

var _ source.Adapter = (*chaosAdapter)(nil)

func doChaos(op string) error {
	return errors.WithMessage(ErrChaos, op)
}

func (a *chaosAdapter) hit() bool {
	return rand.Float32() < a.prob
}

func (a *chaosAdapter) CountRows(ctx context.Context, schema, table string) (int64, error) {
	if a.hit() {
		return 0, doChaos("CountRows")
	}
	return a.delegate.CountRows(ctx, schema, table)
}

func (a *chaosAdapter) FetchByPK(
	ctx context.Context, schema, table string, pkCols []string, afterPK []string, limit int,
) ([]types.SourceRow, error) {
	if a.hit() {
		return nil, doChaos("FetchByPK")
	}
	return a.delegate.FetchByPK(ctx, schema, table, pkCols, afterPK, limit)
}

func (a *chaosAdapter) FetchByColumnCursor(
	ctx context.Context, schema, table, col string, afterValue string, limit int,
) ([]types.SourceRow, error) {
	if a.hit() {
		return nil, doChaos("FetchByColumnCursor")
	}
	return a.delegate.FetchByColumnCursor(ctx, schema, table, col, afterValue, limit)
}

func (a *chaosAdapter) FetchByOffset(
	ctx context.Context, schema, table string, offset int64, limit int,
) ([]types.SourceRow, error) {
	if a.hit() {
		return nil, doChaos("FetchByOffset")
	}
	return a.delegate.FetchByOffset(ctx, schema, table, offset, limit)
}

func (a *chaosAdapter) FetchModifiedSince(
	ctx context.Context, schema, table, timeCol string, since time.Time,
) ([]types.SourceRow, error) {
	if a.hit() {
		return nil, doChaos("FetchModifiedSince")
	}
	return a.delegate.FetchModifiedSince(ctx, schema, table, timeCol, since)
}

func (a *chaosAdapter) FetchPKExistence(
	ctx context.Context, schema, table string, pkCols []string, candidatePKs []string,
) (map[string]bool, error) {
	if a.hit() {
		return nil, doChaos("FetchPKExistence")
	}
	return a.delegate.FetchPKExistence(ctx, schema, table, pkCols, candidatePKs)
}

func (a *chaosAdapter) DescribePK(ctx context.Context, schema, table string) ([]string, error) {
	if a.hit() {
		return nil, doChaos("DescribePK")
	}
	return a.delegate.DescribePK(ctx, schema, table)
}

func (a *chaosAdapter) ColumnNames(ctx context.Context, schema, table string) ([]string, error) {
	if a.hit() {
		return nil, doChaos("ColumnNames")
	}
	return a.delegate.ColumnNames(ctx, schema, table)
}

func (a *chaosAdapter) Close() error {
	return a.delegate.Close()
}
