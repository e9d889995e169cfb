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

	"github.com/cenkalti/backoff/v4"
	"github.com/vectorframe/tablesync/internal/errkit"
)

// Classifier tells WithRetry whether a driver-specific error is worth
// retrying (transient) or not (permanent). Each per-engine adapter
// supplies its own, since "connection refused" and "syntax error" look
// completely different per driver.
type Classifier func(err error) (transient bool)

// retryingAdapter wraps an Adapter so that every read call is retried
// with bounded exponential backoff per spec.md §4.2: "3 attempts, base
// 100ms". Exhausted retries surface as *errkit.TransientSourceError;
// an error the classifier marks permanent surfaces immediately as
// *errkit.PermanentSourceError without being retried.
type retryingAdapter struct {
	Adapter
	classify Classifier
}

// WithRetry decorates delegate with the bounded-retry policy described
// above.
func WithRetry(delegate Adapter, classify Classifier) Adapter {
	return &retryingAdapter{Adapter: delegate, classify: classify}
}

// newBackOff builds the "3 attempts, base 100ms" policy as a
// backoff.BackOff.
func newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 100 * time.Millisecond
	b.Multiplier = 2
	b.MaxElapsedTime = 0 // bounded by WithMaxRetries below, not elapsed time
	return backoff.WithMaxRetries(b, 2)
}

// do runs op, retrying transient failures up to the bounded policy and
// classifying the final outcome into the errkit taxonomy.
func (r *retryingAdapter) do(ctx context.Context, op func() error) error {
	var lastErr error
	err := backoff.Retry(func() error {
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !r.classify(err) {
			// Permanent: stop retrying immediately.
			return backoff.Permanent(err)
		}
		return err
	}, backoff.WithContext(newBackOff(), ctx))

	if err == nil {
		return nil
	}
	if !r.classify(lastErr) {
		return errkit.NewPermanentSource(lastErr)
	}
	return errkit.NewTransientSource(lastErr)
}
