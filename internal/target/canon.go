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

package target

import (
	"fmt"
	"strings"
	"unicode"
)

// ColumnTypeFamily groups a target column's declared type into the
// coarse families canonicalization branches on (spec.md §4.3).
type ColumnTypeFamily int

const (
	FamilyText ColumnTypeFamily = iota
	FamilyInteger
	FamilyNumeric
	FamilyBoolean
	FamilyTimestamp
	FamilyDate
	FamilyTime
)

var zeroDatePrefixes = []string{"0000-", "1900-01-01", "1970-01-01"}

// Canonicalize rewrites a single source cell per spec.md §4.3: strips
// non-ASCII/control bytes (except TAB/LF/CR), maps NULL-sentinel
// spellings to a type-appropriate default, and normalizes boolean
// spellings.
func Canonicalize(value any, family ColumnTypeFamily) any {
	if value == nil {
		return nil
	}
	s, isString := value.(string)
	if !isString {
		s = fmt.Sprint(value)
	}

	s = scrub(s)

	if isNullMarker(s, family) {
		return defaultFor(family)
	}

	switch family {
	case FamilyBoolean:
		return canonBool(s)
	default:
		if isString {
			return s
		}
		return value
	}
}

// scrub removes non-ASCII and control bytes other than TAB, LF, CR.
func scrub(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > unicode.MaxASCII {
			continue
		}
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			continue
		}
		if r == 0x7f {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isNullMarker(s string, family ColumnTypeFamily) bool {
	switch s {
	case "", "NULL", `\N`, `\0`:
		return true
	}
	if family == FamilyDate || family == FamilyTimestamp {
		if len(s) < 10 || strings.Contains(s, "0000") {
			return true
		}
		for _, prefix := range zeroDatePrefixes {
			if strings.HasPrefix(s, prefix) {
				return true
			}
		}
	}
	return false
}

func defaultFor(family ColumnTypeFamily) any {
	switch family {
	case FamilyInteger:
		return 0
	case FamilyNumeric:
		return 0.0
	case FamilyBoolean:
		return false
	case FamilyTimestamp:
		return "1970-01-01 00:00:00"
	case FamilyDate:
		return "1970-01-01"
	case FamilyTime:
		return "00:00:00"
	default:
		return "DEFAULT"
	}
}

func canonBool(s string) bool {
	switch s {
	case "Y", "1", "true", "TRUE":
		return true
	default:
		return false
	}
}
