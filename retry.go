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

package sft

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"

	"github.com/ZaparooProject/go-sft/internal/transport"
)

// RetryConfig configures bounded retry with exponential backoff and jitter
type RetryConfig struct {
	// MaxAttempts is the total number of attempts, including the first
	MaxAttempts int
	// InitialBackoff is the delay after the first failed attempt
	InitialBackoff time.Duration
	// MaxBackoff caps the delay before jitter is added
	MaxBackoff time.Duration
	// BackoffMultiplier grows the delay per attempt
	BackoffMultiplier float64
	// Jitter is the fraction of the capped delay added at random (0.1 = up to 10%)
	Jitter float64
	// RetryTimeout bounds the wait for a reply within one attempt
	RetryTimeout time.Duration
}

// DefaultRetryConfig returns the retry configuration for data transfer requests
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        4 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      2 * time.Second,
	}
}

// DiscoveryRetryConfig returns the retry configuration for probe discovery
func DiscoveryRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      3 * time.Second,
	}
}

// CapabilityRetryConfig returns the retry configuration for capability negotiation
func CapabilityRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       2,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        2 * time.Second,
		BackoffMultiplier: 2.0,
		Jitter:            0.1,
		RetryTimeout:      5 * time.Second,
	}
}

// SwitchRetryConfig returns the retry configuration for the baud rate switch.
// The switch is never repeated: a lost acknowledgement leaves the two ends
// unsure of each other's speed.
func SwitchRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:       1,
		InitialBackoff:    0,
		MaxBackoff:        0,
		BackoffMultiplier: 2.0,
		RetryTimeout:      2 * time.Second,
	}
}

// Validate checks the configuration for values that cannot work
func (c *RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 1:
		return fmt.Errorf("%w: max attempts must be at least 1, got %d", ErrInvalidParameter, c.MaxAttempts)
	case c.InitialBackoff < 0 || c.MaxBackoff < 0:
		return fmt.Errorf("%w: negative backoff", ErrInvalidParameter)
	case c.BackoffMultiplier < 1:
		return fmt.Errorf("%w: backoff multiplier must be at least 1, got %v", ErrInvalidParameter, c.BackoffMultiplier)
	case c.Jitter < 0:
		return fmt.Errorf("%w: negative jitter", ErrInvalidParameter)
	case c.RetryTimeout <= 0:
		return fmt.Errorf("%w: retry timeout must be positive", ErrInvalidParameter)
	}
	return nil
}

// BaseDelay returns min(InitialBackoff * BackoffMultiplier^attempt, MaxBackoff)
func (c *RetryConfig) BaseDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	delay := float64(c.InitialBackoff) * math.Pow(c.BackoffMultiplier, float64(attempt))
	if c.MaxBackoff > 0 && delay > float64(c.MaxBackoff) {
		return c.MaxBackoff
	}
	if delay > math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(delay)
}

// Delay returns BaseDelay(attempt) plus a uniform random share of up to
// Jitter of it. A nil rng uses the global source.
func (c *RetryConfig) Delay(attempt int, rng *rand.Rand) time.Duration {
	base := c.BaseDelay(attempt)
	if c.Jitter <= 0 || base <= 0 {
		return base
	}
	var r float64
	if rng != nil {
		r = rng.Float64()
	} else {
		r = rand.Float64()
	}
	return base + time.Duration(r*c.Jitter*float64(base))
}

// RetryWithConfig runs fn until it succeeds, returns an error IsRetryable
// rejects, or the attempts run out. Exhaustion is reported as *RetryError.
func RetryWithConfig(ctx context.Context, config *RetryConfig, fn func(attempt int) error) error {
	if config == nil {
		config = DefaultRetryConfig()
	}
	_, err := transport.WithRetry(ctx, retryEngineConfig(config, "operation", nil, nil),
		func(attempt int) (struct{}, bool, error) {
			err := fn(attempt)
			return struct{}{}, err != nil && IsRetryable(err), err
		})
	return err
}

func retryEngineConfig(
	config *RetryConfig,
	description string,
	rng *rand.Rand,
	onRetry func(attempt int, delay time.Duration, cause error) error,
) transport.RetryConfig {
	return transport.RetryConfig{
		Description: description,
		MaxAttempts: config.MaxAttempts,
		Delay: func(attempt int) time.Duration {
			return config.Delay(attempt, rng)
		},
		OnRetry: onRetry,
	}
}

// window returns how long a peer may keep retrying under this policy: every
// attempt's reply wait plus the longest possible backoff between them
func (c *RetryConfig) window() time.Duration {
	var total time.Duration
	for attempt := 0; attempt < c.MaxAttempts; attempt++ {
		total += c.RetryTimeout
		if attempt < c.MaxAttempts-1 {
			total += c.BaseDelay(attempt) + time.Duration(c.Jitter*float64(c.BaseDelay(attempt)))
		}
	}
	return total
}
