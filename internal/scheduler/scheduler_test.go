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

package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vectorframe/tablesync/internal/types"
)

func TestSortByPriorityOrdersFullLoadFirst(t *testing.T) {
	entries := []types.CatalogEntry{
		{Schema: "s", Table: "b", Status: types.StatusListeningChanges},
		{Schema: "s", Table: "a", Status: types.StatusFullLoad},
		{Schema: "s", Table: "c", Status: types.StatusReset},
		{Schema: "s", Table: "d", Status: types.StatusPerfectMatch},
	}
	sortByPriority(entries)

	var order []string
	for _, e := range entries {
		order = append(order, e.Table)
	}
	assert.Equal(t, []string{"a", "c", "d", "b"}, order)
}

func TestSortByPriorityBreaksTiesBySchemaTable(t *testing.T) {
	entries := []types.CatalogEntry{
		{Schema: "s", Table: "z", Status: types.StatusFullLoad},
		{Schema: "s", Table: "a", Status: types.StatusFullLoad},
	}
	sortByPriority(entries)
	assert.Equal(t, "a", entries[0].Table)
	assert.Equal(t, "z", entries[1].Table)
}
