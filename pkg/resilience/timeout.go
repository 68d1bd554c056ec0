// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

// Package resilience provides timeout and retry boundaries for
// translation-path operations. Callers remain retry-safe because no
// store mutation happens before the final successful step of a
// translation, so a timed-out attempt leaves nothing behind.
package resilience

import (
	"context"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/errors"
)

// WithTimeout executes fn under a deadline. A zero duration means no
// boundary. Deadline overrun returns a TIMEOUT error marked recoverable.
func WithTimeout(ctx context.Context, d time.Duration, fn func(context.Context) error) error {
	_, err := WithTimeoutResult(ctx, d, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// WithTimeoutResult is WithTimeout for operations that produce a value.
// fn keeps running in its goroutine after a timeout fires; it must be
// side-effect free with respect to shared state, which holds for adapter
// transforms and store reads.
func WithTimeoutResult[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if d == 0 {
		return fn(ctx)
	}

	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)
	go func() {
		value, err := fn(ctx)
		done <- result{value, err}
	}()

	select {
	case <-ctx.Done():
		var zero T
		return zero, errors.New(errors.CodeTimeout, "operation exceeded timeout", ctx.Err()).
			WithContext("timeout", d.String()).
			WithRecoverable(true)
	case res := <-done:
		return res.value, res.err
	}
}
