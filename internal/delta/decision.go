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

// Package delta computes the Delta Batch(es) for one table's cycle
// (spec.md §4.4): the decision table, insert pagination, delete
// reconciliation, and update scan.
package delta

import (
	"github.com/vectorframe/tablesync/internal/types"
)

// Decision is the outcome of evaluating spec.md §4.4's decision table
// against one catalog entry's observed source/target counts.
type Decision int

const (
	// DecisionNone means no precondition matched; the cycle is a no-op.
	DecisionNone Decision = iota
	// DecisionNoData: S = 0 ∧ T = 0.
	DecisionNoData
	// DecisionSourceGoneError: S = 0 ∧ T > 0.
	DecisionSourceGoneError
	// DecisionUpdateScan: S = T and a sync column/time are configured.
	DecisionUpdateScan
	// DecisionConverged: S = T and the cursor has caught up to S.
	DecisionConverged
	// DecisionDeleteReconcile: S < T.
	DecisionDeleteReconcile
	// DecisionInsertPaginate: S > T.
	DecisionInsertPaginate
)

// Decide evaluates the decision table in the order spec.md §4.4 lists
// it: the first matching precondition wins.
func Decide(entry types.CatalogEntry, sourceCount, targetCount int64) Decision {
	switch {
	case sourceCount == 0 && targetCount == 0:
		return DecisionNoData
	case sourceCount == 0 && targetCount > 0:
		return DecisionSourceGoneError
	case sourceCount == targetCount && entry.LastSyncColumn != "" && !entry.LastSyncTime.IsZero():
		return DecisionUpdateScan
	case sourceCount == targetCount && entry.LastOffset >= sourceCount:
		return DecisionConverged
	case sourceCount < targetCount:
		return DecisionDeleteReconcile
	case sourceCount > targetCount:
		return DecisionInsertPaginate
	default:
		return DecisionNone
	}
}
