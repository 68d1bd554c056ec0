// Copyright 2026 © The Chrysalis Authors
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	stderrors "errors"
	"math"
	"math/rand"
	"time"

	"github.com/replicant-partners/chrysalis/pkg/errors"
)

// RetryConfig controls retry behavior with exponential backoff. The
// zero value is usable but retries nothing; start from
// DefaultRetryConfig and override fields as needed.
type RetryConfig struct {
	MaxAttempts  int           // total attempts including the first (min 1)
	InitialDelay time.Duration // backoff before the second attempt
	MaxDelay     time.Duration // cap on the grown delay; 0 means no cap
	Multiplier   float64       // backoff growth factor (default 2.0)
	Jitter       float64       // 0..1 fraction of spread applied to each delay

	// IsRecoverable decides whether an error is worth another attempt.
	// Defaults to the Recoverable flag on BridgeError, true otherwise.
	IsRecoverable func(error) bool
}

// DefaultRetryConfig suits transient store and transport failures.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:   3,
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      10 * time.Second,
		Multiplier:    2.0,
		Jitter:        0.1,
		IsRecoverable: recoverableDefault,
	}
}

// Do executes fn with retries, returning the last error if every
// attempt fails. Context cancellation during backoff surfaces as a
// TIMEOUT error so callers can tell it from the operation's own failure.
func (rc RetryConfig) Do(ctx context.Context, fn func() error) error {
	attempts := max(rc.MaxAttempts, 1)
	recoverable := rc.IsRecoverable
	if recoverable == nil {
		recoverable = recoverableDefault
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !recoverable(lastErr) || attempt == attempts {
			return lastErr
		}

		select {
		case <-ctx.Done():
			return errors.New(errors.CodeTimeout, "context canceled during retry", ctx.Err()).
				WithContext("attempt", attempt).
				WithContext("max_attempts", attempts)
		case <-time.After(rc.delayFor(attempt)):
		}
	}
	return lastErr
}

// delayFor grows the backoff exponentially with the attempt number and
// spreads it by ±Jitter so concurrent retriers do not synchronize.
func (rc RetryConfig) delayFor(attempt int) time.Duration {
	growth := rc.Multiplier
	if growth <= 0 {
		growth = 2.0
	}
	d := time.Duration(float64(rc.InitialDelay) * math.Pow(growth, float64(attempt-1)))
	if rc.MaxDelay > 0 {
		d = min(d, rc.MaxDelay)
	}
	if rc.Jitter > 0 {
		d = time.Duration(float64(d) * (1 + rc.Jitter*(2*rand.Float64()-1)))
	}
	return max(d, 0)
}

// recoverableDefault honors the Recoverable flag on typed errors and
// assumes untyped errors are transient.
func recoverableDefault(err error) bool {
	if err == nil {
		return false
	}
	var be *errors.BridgeError
	if stderrors.As(err, &be) {
		return be.Recoverable
	}
	return true
}
