// Copyright 2026 The Statikv Authors
// SPDX-License-Identifier: Apache-2.0

package kvstore

// Retry policy for individual store operations inside a batch. A
// backend under load sheds requests with 429s or brief 5xx windows;
// retrying with backoff inside the worker keeps one flaky key from
// failing a publish. Permanent errors (4xx) and exhausted retries
// surface as per-key failures without blocking other workers.

import (
	"context"
	"time"

	"github.com/statikv/statikv/lib/clock"
)

// DefaultMaxAttempts is the per-operation attempt bound. Three
// attempts with exponential backoff (1s, 2s) covers brief rate limits
// and server hiccups without stalling the batch for long.
const DefaultMaxAttempts = 3

// withRetry runs op with bounded retry on transient errors. The
// context bounds total retry time: when it cancels, the wait is
// abandoned and the context's error is returned. onRetry, if set, is
// called before each wait with the attempt number just failed.
func withRetry(ctx context.Context, clk clock.Clock, maxAttempts int, onRetry func(attempt int, err error), op func() error) error {
	var lastError error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-clk.After(backoff):
			}
		}

		err := op()
		if err == nil {
			return nil
		}
		lastError = err

		if !IsTransient(err) {
			return err
		}
		if onRetry != nil && attempt+1 < maxAttempts {
			onRetry(attempt+1, err)
		}
	}
	return lastError
}
