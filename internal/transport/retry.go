// go-sft
// Copyright (c) 2025 The Zaparoo Project Contributors.
// SPDX-License-Identifier: LGPL-3.0-or-later
//
// This file is part of go-sft.
//
// go-sft is free software; you can redistribute it and/or
// modify it under the terms of the GNU Lesser General Public
// License as published by the Free Software Foundation; either
// version 3 of the License, or (at your option) any later version.
//
// go-sft is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with go-sft; if not, write to the Free Software Foundation,
// Inc., 51 Franklin Street, Fifth Floor, Boston, MA  02110-1301, USA.

// Package transport provides internal transport utilities
package transport

import (
	"context"
	"errors"
	"time"
)

// ErrRetriesExhausted is returned by WithRetry when every attempt asked to be retried
var ErrRetriesExhausted = errors.New("retries exhausted")

// RetryOperation represents a function that can be retried
// Returns: data, shouldRetry, error
// - data: the result if successful
// - shouldRetry: true if the operation should be retried
// - error: the cause of the failure; permanent when shouldRetry is false
type RetryOperation[T any] func(attempt int) (T, bool, error)

// RetryConfig configures retry behavior
type RetryConfig struct {
	// Delay returns the pause before the attempt following attempt
	Delay func(attempt int) time.Duration
	// OnRetry is called before each pause; a non-nil return stops retrying
	OnRetry     func(attempt int, delay time.Duration, cause error) error
	Description string
	MaxAttempts int
}

// ExhaustedError carries the last cause when every attempt has been used
type ExhaustedError struct {
	Last        error
	Description string
	Attempts    int
}

func (e *ExhaustedError) Error() string {
	if e.Last == nil {
		return e.Description + ": " + ErrRetriesExhausted.Error()
	}
	return e.Description + ": " + ErrRetriesExhausted.Error() + ": " + e.Last.Error()
}

// Unwrap exposes both the exhaustion sentinel and the last cause
func (e *ExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrRetriesExhausted}
	}
	return []error{ErrRetriesExhausted, e.Last}
}

// WithRetry executes an operation with retry logic. The pause between attempts
// is interrupted by context cancellation.
func WithRetry[T any](ctx context.Context, config RetryConfig, operation RetryOperation[T]) (T, error) {
	var zero T
	maxAttempts := config.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		result, shouldRetry, err := operation(attempt)
		if !shouldRetry {
			return result, err
		}
		lastErr = err

		if attempt >= maxAttempts-1 {
			break
		}

		var delay time.Duration
		if config.Delay != nil {
			delay = config.Delay(attempt)
		}
		if config.OnRetry != nil {
			if cbErr := config.OnRetry(attempt, delay, err); cbErr != nil {
				return zero, cbErr
			}
		}
		if err := sleep(ctx, delay); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Description: config.Description, Attempts: maxAttempts, Last: lastErr}
}

// TimeoutRetry polls operation until it stops asking for a retry or the
// timeout elapses
func TimeoutRetry[T any](ctx context.Context, timeout, interval time.Duration, operation RetryOperation[T]) (T, error) {
	var zero T
	deadline := time.Now().Add(timeout)

	var lastErr error
	for attempt := 0; time.Now().Before(deadline); attempt++ {
		result, shouldRetry, err := operation(attempt)
		if !shouldRetry {
			return result, err
		}
		lastErr = err

		if err := sleep(ctx, interval); err != nil {
			return zero, err
		}
	}

	return zero, &ExhaustedError{Description: "timeout retry", Last: lastErr}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
