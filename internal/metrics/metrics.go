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

// Package metrics holds the shared Prometheus label vectors and
// histogram buckets, plus the counters/histograms for the write path,
// which internal/target records. CycleDurations, CycleErrors and
// TableStatus are registered here but nothing in this module records
// them.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TableLabels is the shared label set for per-table metrics.
var TableLabels = []string{"schema", "table"}

// LatencyBuckets covers sub-millisecond to multi-minute operations,
// matching the per-table pass budget of up to 2 hours (spec.md §4.4)
// at the coarse end.
var LatencyBuckets = []float64{
	.001, .005, .01, .05, .1, .5, 1, 5, 10, 30, 60, 300, 900, 3600,
}

var (
	// WriteRows counts rows successfully applied to the target, by
	// table and operation (insert/upsert/delete).
	WriteRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablesync_write_rows_total",
		Help: "rows successfully applied to the target",
	}, append(append([]string{}, TableLabels...), "op"))

	// WriteRowErrors counts rows skipped during per-row fallback
	// (spec.md §4.3).
	WriteRowErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablesync_write_row_errors_total",
		Help: "rows skipped after failing even under per-row fallback",
	}, TableLabels)

	// WriteBatchDurations times each sub-batch write call.
	WriteBatchDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tablesync_write_batch_duration_seconds",
		Help:    "time to apply one write sub-batch",
		Buckets: LatencyBuckets,
	}, append(append([]string{}, TableLabels...), "op"))

	// CycleDurations times one full table-cycle pass.
	CycleDurations = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tablesync_cycle_duration_seconds",
		Help:    "time to complete one table-cycle pass",
		Buckets: LatencyBuckets,
	}, TableLabels)

	// CycleErrors counts failed cycles by classified error kind.
	CycleErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tablesync_cycle_errors_total",
		Help: "failed table-cycle passes by error kind",
	}, append(append([]string{}, TableLabels...), "kind"))

	// TableStatus reports the current status as a gauge set to 1 for
	// the active status and 0 for the rest, one series per status.
	TableStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "tablesync_table_status",
		Help: "1 if the table currently has this status, else 0",
	}, append(append([]string{}, TableLabels...), "status"))
)
