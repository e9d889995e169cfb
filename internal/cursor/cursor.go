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

// Package cursor encodes and decodes the last_processed_pk column:
// the `|`-joined string representation of a composite primary key
// (spec.md §6). Per the Design Notes open question, `|` and a literal
// NULL token inside a component are escaped, so primary keys that
// themselves contain a pipe character round-trip exactly. This is a
// deliberate departure from the original's unescaped wire format.
package cursor

import (
	"strconv"
	"strings"
)

const (
	sep        = "|"
	nullToken  = "NULL"
	escPipe    = `\|`
	escNull    = `\0`
	escBackesc = `\\`
)

// Encode joins ordered PK component values into the wire format. A
// component whose isNull entry is true represents a SQL NULL and is
// written as the literal NULL token, whatever values holds at that
// index.
func Encode(values []string, isNull []bool) string {
	parts := make([]string, len(values))
	for i, v := range values {
		if isNull != nil && i < len(isNull) && isNull[i] {
			parts[i] = nullToken
			continue
		}
		parts[i] = escape(v)
	}
	return strings.Join(parts, sep)
}

// Decode splits the wire format back into ordered component values and
// a parallel isNull slice. An empty input string decodes to a nil
// slice (the "no cursor yet" case).
func Decode(s string) (values []string, isNull []bool) {
	if s == "" {
		return nil, nil
	}
	rawParts := splitUnescaped(s)
	values = make([]string, len(rawParts))
	isNull = make([]bool, len(rawParts))
	for i, p := range rawParts {
		if p == nullToken {
			isNull[i] = true
			continue
		}
		values[i] = unescape(p)
	}
	return values, isNull
}

func escape(s string) string {
	s = strings.ReplaceAll(s, `\`, escBackesc)
	s = strings.ReplaceAll(s, sep, escPipe)
	if s == nullToken {
		// A literal value that happens to equal our NULL sentinel must
		// be escaped so Decode doesn't mistake it for an actual NULL.
		s = escNull
	}
	return s
}

func unescape(s string) string {
	if s == escNull {
		return nullToken
	}
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '\\' && i+1 < len(s) {
			switch s[i+1] {
			case '|':
				b.WriteByte('|')
				i++
				continue
			case '\\':
				b.WriteByte('\\')
				i++
				continue
			}
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// splitUnescaped splits on `|` that is not preceded by an odd number
// of backslashes.
func splitUnescaped(s string) []string {
	var parts []string
	var cur strings.Builder
	backslashes := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\\' {
			backslashes++
			cur.WriteByte(c)
			continue
		}
		if c == '|' && backslashes%2 == 0 {
			parts = append(parts, cur.String())
			cur.Reset()
			backslashes = 0
			continue
		}
		backslashes = 0
		cur.WriteByte(c)
	}
	parts = append(parts, cur.String())
	return parts
}

// Compare returns -1, 0 or 1 comparing two encoded cursors
// component-by-component, matching the ordering FetchByPK/
// FetchByColumnCursor promise is total and stable. A component that
// parses as a base-10 integer on both sides is compared numerically
// (an integer PK's source-side ORDER BY is numeric, not lexicographic,
// so "100" must sort after "90"); otherwise the component falls back
// to a plain string comparison. An empty cursor sorts before any
// non-empty one.
func Compare(a, b string) int {
	av, _ := Decode(a)
	bv, _ := Decode(b)
	for i := 0; i < len(av) && i < len(bv); i++ {
		if c := compareComponent(av[i], bv[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(av) < len(bv):
		return -1
	case len(av) > len(bv):
		return 1
	default:
		return 0
	}
}

func compareComponent(a, b string) int {
	if an, err := strconv.ParseInt(a, 10, 64); err == nil {
		if bn, err := strconv.ParseInt(b, 10, 64); err == nil {
			switch {
			case an < bn:
				return -1
			case an > bn:
				return 1
			default:
				return 0
			}
		}
	}
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
