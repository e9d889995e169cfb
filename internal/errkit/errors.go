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

// Package errkit holds the error taxonomy from spec.md §7. Components
// classify failures into these types rather than matching driver error
// strings, and the table-cycle boundary inspects the taxonomy to tell
// a benign budget trip, which ends the pass cleanly, from a failure of
// any other kind, which moves the table to ERROR.
package errkit

import (
	"fmt"

	"github.com/pkg/errors"
)

// TransientSourceError wraps a source-adapter failure the caller
// should retry: network blips, lock timeouts, and the like. Once the
// adapter's own bounded retry is exhausted, this is what surfaces.
type TransientSourceError struct {
	cause error
}

// NewTransientSource wraps cause as a TransientSourceError.
func NewTransientSource(cause error) *TransientSourceError {
	return &TransientSourceError{cause: errors.WithStack(cause)}
}

func (e *TransientSourceError) Error() string { return "transient source error: " + e.cause.Error() }
func (e *TransientSourceError) Unwrap() error { return e.cause }

// PermanentSourceError wraps a source-adapter failure that will not
// resolve by retrying: missing schema, malformed query, failed auth.
type PermanentSourceError struct {
	cause error
}

// NewPermanentSource wraps cause as a PermanentSourceError.
func NewPermanentSource(cause error) *PermanentSourceError {
	return &PermanentSourceError{cause: errors.WithStack(cause)}
}

func (e *PermanentSourceError) Error() string { return "permanent source error: " + e.cause.Error() }
func (e *PermanentSourceError) Unwrap() error { return e.cause }

// TransientTargetError wraps a recoverable target-write failure.
type TransientTargetError struct {
	cause error
}

// NewTransientTarget wraps cause as a TransientTargetError.
func NewTransientTarget(cause error) *TransientTargetError {
	return &TransientTargetError{cause: errors.WithStack(cause)}
}

func (e *TransientTargetError) Error() string { return "transient target error: " + e.cause.Error() }
func (e *TransientTargetError) Unwrap() error { return e.cause }

// AbortedTransactionError indicates PostgreSQL signaled a poisoned
// transaction (spec.md §4.3); the writer falls back to per-row
// execution on receiving this.
type AbortedTransactionError struct {
	cause error
}

// NewAbortedTransaction wraps cause as an AbortedTransactionError.
func NewAbortedTransaction(cause error) *AbortedTransactionError {
	return &AbortedTransactionError{cause: errors.WithStack(cause)}
}

func (e *AbortedTransactionError) Error() string {
	return "aborted transaction: " + e.cause.Error()
}
func (e *AbortedTransactionError) Unwrap() error { return e.cause }

// CursorInvariantError is refused rather than applied: the cursor
// would move backwards, or a status transition would violate spec.md
// §4.5's lifecycle.
type CursorInvariantError struct {
	Schema, Table string
	Reason        string
}

func (e *CursorInvariantError) Error() string {
	return fmt.Sprintf("cursor invariant violated for %s.%s: %s", e.Schema, e.Table, e.Reason)
}

// NewCursorInvariant constructs a CursorInvariantError.
func NewCursorInvariant(schema, table, reason string) *CursorInvariantError {
	return &CursorInvariantError{Schema: schema, Table: table, Reason: reason}
}

// BudgetExceeded signals the wall-clock or chunk-count guard in
// spec.md §4.4 tripped. It is not a failure: the cycle ends cleanly
// with progress already committed, and the table-cycle boundary treats
// it as informational rather than routing the table to ERROR.
type BudgetExceeded struct {
	Schema, Table string
	Reason        string // e.g. "wall clock", "chunk count"
}

func (e *BudgetExceeded) Error() string {
	return fmt.Sprintf("budget exceeded for %s.%s: %s", e.Schema, e.Table, e.Reason)
}

// NewBudgetExceeded constructs a BudgetExceeded.
func NewBudgetExceeded(schema, table, reason string) *BudgetExceeded {
	return &BudgetExceeded{Schema: schema, Table: table, Reason: reason}
}

// IsFatal reports whether err is a PermanentSourceError or a
// CursorInvariantError, the failures that retrying cannot resolve.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var perm *PermanentSourceError
	if errors.As(err, &perm) {
		return true
	}
	var cursorErr *CursorInvariantError
	if errors.As(err, &cursorErr) {
		return true
	}
	return false
}

// IsBenign reports whether err represents a clean, non-fatal cycle
// termination (a tripped budget guard).
func IsBenign(err error) bool {
	var budget *BudgetExceeded
	return errors.As(err, &budget)
}
