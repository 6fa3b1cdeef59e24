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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	t.Parallel()

	config := DefaultConfig()
	require.NoError(t, config.Validate())
	assert.Equal(t, DefaultChunkSize, config.Transfer.ChunkSize)
	assert.Equal(t, DefaultDiscoveryBaudRate, config.Negotiation.DiscoveryBaudRate)
	assert.Equal(t, ProtocolVersion2, config.Negotiation.ProtocolVersion)
	assert.True(t, config.Session.Smart)
	assert.Equal(t, 1, config.Negotiation.Switch.MaxAttempts)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mutate func(*Config)
		name   string
	}{
		{name: "zero chunk", mutate: func(c *Config) { c.Transfer.ChunkSize = 0 }},
		{name: "oversized chunk", mutate: func(c *Config) { c.Transfer.ChunkSize = 70000 }},
		{name: "no request timeout", mutate: func(c *Config) { c.Transfer.RequestTimeout = 0 }},
		{name: "negative linger", mutate: func(c *Config) { c.Transfer.Linger = -time.Second }},
		{name: "nil transfer retry", mutate: func(c *Config) { c.Transfer.Retry = nil }},
		{name: "bad transfer retry", mutate: func(c *Config) { c.Transfer.Retry.MaxAttempts = 0 }},
		{name: "no baud rates", mutate: func(c *Config) { c.Negotiation.BaudRates = nil }},
		{name: "negative baud rate", mutate: func(c *Config) { c.Negotiation.BaudRates = []int{-1} }},
		{name: "switch delay too long", mutate: func(c *Config) { c.Negotiation.SwitchDelay = 2 * time.Minute }},
		{name: "no ready timeout", mutate: func(c *Config) { c.Negotiation.ReadyTimeout = 0 }},
		{name: "version zero", mutate: func(c *Config) { c.Negotiation.ProtocolVersion = 0 }},
		{name: "bad discovery retry", mutate: func(c *Config) { c.Negotiation.Discovery.RetryTimeout = 0 }},
		{name: "session baud", mutate: func(c *Config) { c.Session.BaudRate = 0 }},
		{name: "negative open timeout", mutate: func(c *Config) { c.Session.OpenTimeout = -1 }},
		{name: "queue size", mutate: func(c *Config) { c.QueueSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := DefaultConfig()
			tt.mutate(c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidParameter) {
				t.Errorf("Validate() error = %v, want ErrInvalidParameter", err)
			}
		})
	}
}

func TestConfig_CloneIsDeep(t *testing.T) {
	t.Parallel()

	c := DefaultConfig()
	clone := c.Clone()
	clone.Transfer.Retry.MaxAttempts = 99
	clone.Negotiation.Discovery.MaxAttempts = 99
	clone.Negotiation.BaudRates[0] = 1

	assert.NotEqual(t, 99, c.Transfer.Retry.MaxAttempts)
	assert.NotEqual(t, 99, c.Negotiation.Discovery.MaxAttempts)
	assert.NotEqual(t, 1, c.Negotiation.BaudRates[0])
}

func TestTransferConfig_ReplyTimeout(t *testing.T) {
	t.Parallel()

	tc := DefaultTransferConfig()
	tc.Retry.RetryTimeout = 100 * time.Millisecond

	// 16 KiB at 9600 baud takes about 17s on the wire
	assert.Greater(t, tc.replyTimeout(16384, 9600), 60*time.Second)
	assert.Equal(t, 100*time.Millisecond, tc.replyTimeout(1024, 921600))
	assert.Equal(t, 100*time.Millisecond, tc.replyTimeout(1024, 0))
}

func TestTransferConfig_LingerWindow(t *testing.T) {
	t.Parallel()

	tc := DefaultTransferConfig()
	// three 2s waits with 550ms and 1.1s backoffs between them
	assert.Equal(t, 7650*time.Millisecond, tc.lingerWindow(115200))

	tc.Linger = time.Minute
	assert.Equal(t, time.Minute, tc.lingerWindow(115200))

	tc.Linger = 0
	tc.ChunkSize = 16384
	assert.Greater(t, tc.lingerWindow(9600), 3*time.Minute)
}

func TestOptions(t *testing.T) {
	t.Parallel()

	var log eventLog
	config, err := newConfig(
		WithChunkSize(2048),
		WithMaxChunkSize(4096),
		WithMaxRetries(5),
		WithReplyTimeout(time.Second),
		WithBaudRates(115200, 921600),
		WithDiscoveryBaudRate(57600),
		WithDeviceID(0xCAFE),
		WithSeed(3),
		WithObserver(log.observe),
		WithBaudRate(9600),
		WithOpenTimeout(time.Second),
		WithSmartMode(false),
		WithManualFallback(true),
		WithBatchReceive(true),
		WithQueueSize(8),
		WithProgressInterval(time.Second),
	)
	require.NoError(t, err)

	assert.Equal(t, 2048, config.Transfer.ChunkSize)
	assert.Equal(t, 4096, config.Transfer.MaxChunkSize)
	assert.Equal(t, 5, config.Transfer.Retry.MaxAttempts)
	assert.Equal(t, time.Second, config.Transfer.Retry.RetryTimeout)
	assert.Equal(t, []int{115200, 921600}, config.Negotiation.BaudRates)
	assert.Equal(t, 57600, config.Negotiation.DiscoveryBaudRate)
	assert.Equal(t, uint32(0xCAFE), config.Negotiation.DeviceID)
	assert.Equal(t, uint64(3), config.Seed)
	assert.Equal(t, 9600, config.Session.BaudRate)
	assert.Equal(t, time.Second, config.Session.OpenTimeout)
	assert.False(t, config.Session.Smart)
	assert.True(t, config.Session.Fallback)
	assert.True(t, config.Session.Batch)
	assert.Equal(t, 8, config.QueueSize)

	config.Observer.emit(Event{Type: EventDegraded})
	assert.Equal(t, 1, log.count(EventDegraded))

	// Defaults are untouched by options applied elsewhere
	assert.Equal(t, 3, DefaultRetryConfig().MaxAttempts)
}

func TestOptions_Errors(t *testing.T) {
	t.Parallel()

	_, err := newConfig(WithRetryConfig(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = newConfig(WithPhaseRetry(PhaseVerification, DefaultRetryConfig()))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = newConfig(WithConfig(nil))
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = newConfig(WithChunkSize(0))
	require.ErrorIs(t, err, ErrInvalidParameter)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestWithConfig_Copies(t *testing.T) {
	t.Parallel()

	base := DefaultConfig()
	base.Transfer.ChunkSize = 512

	config, err := newConfig(WithConfig(base), WithMaxRetries(7))
	require.NoError(t, err)
	assert.Equal(t, 512, config.Transfer.ChunkSize)
	assert.Equal(t, 7, config.Transfer.Retry.MaxAttempts)
	assert.Equal(t, 3, base.Transfer.Retry.MaxAttempts)
}
