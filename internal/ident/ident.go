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

// Package ident holds small, comparable value types for schema and
// table names. The target is always PostgreSQL, whose identifiers are
// case-folded to lower case unless quoted, so every Ident is
// normalized to lower case at construction time (spec: "Target table
// and schema names are always lower-cased").
package ident

import (
	"fmt"
	"strings"
)

// An Ident is a single, lower-cased identifier component.
type Ident struct {
	raw string
}

// New returns an Ident with its raw value lower-cased.
func New(raw string) Ident {
	return Ident{raw: strings.ToLower(strings.TrimSpace(raw))}
}

// Raw returns the lower-cased identifier text.
func (i Ident) Raw() string { return i.raw }

// Empty returns true if the identifier has no content.
func (i Ident) Empty() bool { return i.raw == "" }

// String implements fmt.Stringer.
func (i Ident) String() string { return i.raw }

// Quoted returns the identifier wrapped in double quotes, with any
// embedded quote doubled, suitable for interpolation into generated
// SQL.
func (i Ident) Quoted() string {
	return `"` + strings.ReplaceAll(i.raw, `"`, `""`) + `"`
}

// A Schema names a (possibly multi-part, though in practice single
// component) PostgreSQL schema.
type Schema struct {
	Ident
}

// NewSchema constructs a Schema from a raw name.
func NewSchema(raw string) Schema {
	return Schema{Ident: New(raw)}
}

// A Table names a schema-qualified PostgreSQL table.
type Table struct {
	schema Schema
	table  Ident
}

// NewTable joins a Schema and table Ident into a Table.
func NewTable(schema Schema, table Ident) Table {
	return Table{schema: schema, table: table}
}

// NewQualifiedTable is a convenience constructor from raw strings.
func NewQualifiedTable(schema, table string) Table {
	return NewTable(NewSchema(schema), New(table))
}

// Schema returns the table's enclosing schema.
func (t Table) Schema() Schema { return t.schema }

// Table returns the unqualified table identifier.
func (t Table) Table() Ident { return t.table }

// Raw returns the "schema.table" form, suitable as a map key.
func (t Table) Raw() string {
	return t.schema.Raw() + "." + t.table.Raw()
}

// Quoted returns the `"schema"."table"` form for generated SQL.
func (t Table) Quoted() string {
	return t.schema.Quoted() + "." + t.table.Quoted()
}

// String implements fmt.Stringer.
func (t Table) String() string { return t.Raw() }

// Empty returns true if either component is unset.
func (t Table) Empty() bool { return t.schema.Empty() || t.table.Empty() }

// Map is a small ordered-iteration map keyed by Table. It exists so
// that callers don't reach for map[Table]V directly and lose the
// ability to range deterministically when that matters for tests.
type Map[V any] struct {
	keys   []Table
	values map[string]V
}

// NewMap constructs an empty Map.
func NewMap[V any]() *Map[V] {
	return &Map[V]{values: make(map[string]V)}
}

// Put stores a value, preserving first-insertion order for Range.
func (m *Map[V]) Put(t Table, v V) {
	if _, ok := m.values[t.Raw()]; !ok {
		m.keys = append(m.keys, t)
	}
	m.values[t.Raw()] = v
}

// Get retrieves a stored value.
func (m *Map[V]) Get(t Table) (V, bool) {
	v, ok := m.values[t.Raw()]
	return v, ok
}

// Len returns the number of entries.
func (m *Map[V]) Len() int { return len(m.keys) }

// Range visits entries in insertion order, stopping early on error.
func (m *Map[V]) Range(fn func(Table, V) error) error {
	for _, k := range m.keys {
		if err := fn(k, m.values[k.Raw()]); err != nil {
			return err
		}
	}
	return nil
}

// Validate reports a descriptive error if either component is empty.
func Validate(t Table) error {
	if t.Empty() {
		return fmt.Errorf("incomplete table identifier: %q", t.Raw())
	}
	return nil
}
