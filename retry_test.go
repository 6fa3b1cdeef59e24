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
	"errors"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryConfig_DelayBounds(t *testing.T) {
	t.Parallel()

	configs := map[string]*RetryConfig{
		"transfer":   DefaultRetryConfig(),
		"discovery":  DiscoveryRetryConfig(),
		"capability": CapabilityRetryConfig(),
	}

	for name, config := range configs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			rng := rand.New(rand.NewPCG(1, 2))
			limit := time.Duration(float64(config.MaxBackoff) * 1.1)

			prevBase := time.Duration(0)
			for attempt := 0; attempt < 20; attempt++ {
				base := config.BaseDelay(attempt)
				if base < prevBase {
					t.Fatalf("BaseDelay(%d) = %v decreased from %v", attempt, base, prevBase)
				}
				prevBase = base

				for i := 0; i < 50; i++ {
					d := config.Delay(attempt, rng)
					if d < base || d > limit {
						t.Fatalf("Delay(%d) = %v, want within [%v, %v]", attempt, d, base, limit)
					}
				}
			}
			assert.Equal(t, config.MaxBackoff, config.BaseDelay(19))
		})
	}
}

func TestRetryConfig_BaseDelay(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        4 * time.Second,
		BackoffMultiplier: 2,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{attempt: -1, want: 500 * time.Millisecond},
		{attempt: 0, want: 500 * time.Millisecond},
		{attempt: 1, want: time.Second},
		{attempt: 2, want: 2 * time.Second},
		{attempt: 3, want: 4 * time.Second},
		{attempt: 4, want: 4 * time.Second},
		{attempt: 200, want: 4 * time.Second},
	}

	for _, tt := range tests {
		if got := config.BaseDelay(tt.attempt); got != tt.want {
			t.Errorf("BaseDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestRetryConfig_NoJitter(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{InitialBackoff: 10 * time.Millisecond, MaxBackoff: time.Second, BackoffMultiplier: 2}
	assert.Equal(t, 40*time.Millisecond, config.Delay(2, nil))
}

func TestRetryConfig_Validate(t *testing.T) {
	t.Parallel()

	valid := func() *RetryConfig { return DefaultRetryConfig() }

	tests := []struct {
		mutate  func(*RetryConfig)
		name    string
		wantErr bool
	}{
		{name: "defaults", mutate: func(*RetryConfig) {}},
		{name: "single attempt", mutate: func(c *RetryConfig) { c.MaxAttempts = 1 }},
		{name: "zero attempts", mutate: func(c *RetryConfig) { c.MaxAttempts = 0 }, wantErr: true},
		{name: "negative backoff", mutate: func(c *RetryConfig) { c.InitialBackoff = -1 }, wantErr: true},
		{name: "shrinking multiplier", mutate: func(c *RetryConfig) { c.BackoffMultiplier = 0.5 }, wantErr: true},
		{name: "negative jitter", mutate: func(c *RetryConfig) { c.Jitter = -0.1 }, wantErr: true},
		{name: "no reply timeout", mutate: func(c *RetryConfig) { c.RetryTimeout = 0 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidParameter)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryWithConfig(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    time.Millisecond,
		MaxBackoff:        2 * time.Millisecond,
		BackoffMultiplier: 2,
		RetryTimeout:      time.Second,
	}

	t.Run("retries timeouts", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), config, func(int) error {
			calls++
			if calls < 3 {
				return ErrTimeout
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("stops on permanent error", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := RetryWithConfig(context.Background(), config, func(int) error {
			calls++
			return ErrNegotiationRejected
		})
		require.ErrorIs(t, err, ErrNegotiationRejected)
		assert.Equal(t, 1, calls)
	})

	t.Run("reports exhaustion", func(t *testing.T) {
		t.Parallel()
		err := RetryWithConfig(context.Background(), config, func(int) error {
			return ErrChecksumMismatch
		})
		require.ErrorIs(t, err, ErrRetriesExhausted)
		assert.ErrorIs(t, err, ErrChecksumMismatch)

		var re *RetryError
		require.True(t, errors.As(err, &re))
		assert.Equal(t, 3, re.Attempts)
	})

	t.Run("honours cancellation", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := RetryWithConfig(ctx, config, func(int) error { return ErrTimeout })
		require.ErrorIs(t, err, context.Canceled)
	})
}

func TestRetryConfig_Window(t *testing.T) {
	t.Parallel()

	config := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        time.Second,
		BackoffMultiplier: 2,
		Jitter:            0.1,
		RetryTimeout:      time.Second,
	}
	// 3 waits + (100ms + 10%) + (200ms + 10%)
	assert.Equal(t, 3*time.Second+110*time.Millisecond+220*time.Millisecond, config.window())
}
