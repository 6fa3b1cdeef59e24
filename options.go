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
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Option is a functional option for configuring senders, receivers,
// negotiators and sessions
type Option func(*Config) error

// newConfig applies opts to a copy of the defaults and validates the result
func newConfig(opts ...Option) (*Config, error) {
	config := DefaultConfig()
	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// WithConfig replaces the whole configuration with a copy of config. Options
// after it still apply.
func WithConfig(config *Config) Option {
	return func(c *Config) error {
		if config == nil {
			return fmt.Errorf("%w: nil config", ErrInvalidParameter)
		}
		*c = *config.Clone()
		return nil
	}
}

// WithLogger sets the structured logger
func WithLogger(logger zerolog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}

// WithObserver adds an event observer. Repeated use adds more observers.
func WithObserver(observer Observer) Option {
	return func(c *Config) error {
		c.Observer = Observers(c.Observer, observer)
		return nil
	}
}

// WithSeed makes random identifiers and backoff jitter reproducible
func WithSeed(seed uint64) Option {
	return func(c *Config) error {
		c.Seed = seed
		return nil
	}
}

// WithChunkSize sets the data request length
func WithChunkSize(size int) Option {
	return func(c *Config) error {
		c.Transfer.ChunkSize = size
		return nil
	}
}

// WithMaxChunkSize sets the largest chunk accepted during negotiation
func WithMaxChunkSize(size int) Option {
	return func(c *Config) error {
		c.Transfer.MaxChunkSize = size
		return nil
	}
}

// WithRetryConfig sets the retry policy for data transfer requests
func WithRetryConfig(config *RetryConfig) Option {
	return func(c *Config) error {
		if config == nil {
			return fmt.Errorf("%w: nil retry config", ErrInvalidParameter)
		}
		c.Transfer.Retry = cloneRetry(config)
		return nil
	}
}

// WithMaxRetries sets the number of attempts for each transfer request
func WithMaxRetries(maxAttempts int) Option {
	return func(c *Config) error {
		c.Transfer.Retry = cloneRetry(c.Transfer.Retry)
		c.Transfer.Retry.MaxAttempts = maxAttempts
		return nil
	}
}

// WithReplyTimeout sets the minimum wait for each transfer reply
func WithReplyTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Transfer.Retry = cloneRetry(c.Transfer.Retry)
		c.Transfer.Retry.RetryTimeout = timeout
		return nil
	}
}

// WithRequestTimeout sets how long a sender waits for the next request
func WithRequestTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Transfer.RequestTimeout = timeout
		return nil
	}
}

// WithLinger sets how long a finished sender answers repeated requests. It
// is raised to the receiver's retry window when shorter.
func WithLinger(linger time.Duration) Option {
	return func(c *Config) error {
		c.Transfer.Linger = linger
		return nil
	}
}

// WithMaxFileNameLength bounds relative paths in batch mode
func WithMaxFileNameLength(n int) Option {
	return func(c *Config) error {
		c.Transfer.MaxFileNameLength = n
		return nil
	}
}

// WithCacheThreshold sets the largest source file loaded into memory whole
func WithCacheThreshold(n int64) Option {
	return func(c *Config) error {
		c.Transfer.CacheThreshold = n
		return nil
	}
}

// WithProgressInterval throttles progress events
func WithProgressInterval(interval time.Duration) Option {
	return func(c *Config) error {
		c.Transfer.ProgressInterval = interval
		return nil
	}
}

// WithDeviceID fixes this end's device identity
func WithDeviceID(id uint32) Option {
	return func(c *Config) error {
		c.Negotiation.DeviceID = id
		return nil
	}
}

// WithProtocolVersion sets the highest protocol version this end speaks
func WithProtocolVersion(version uint8) Option {
	return func(c *Config) error {
		c.Negotiation.ProtocolVersion = version
		return nil
	}
}

// WithDiscoveryBaudRate sets the rate probes are exchanged at
func WithDiscoveryBaudRate(baud int) Option {
	return func(c *Config) error {
		c.Negotiation.DiscoveryBaudRate = baud
		return nil
	}
}

// WithBaudRates sets the rates this end supports
func WithBaudRates(rates ...int) Option {
	return func(c *Config) error {
		c.Negotiation.BaudRates = append([]int(nil), rates...)
		return nil
	}
}

// WithSwitchDelay sets the pause between switch ack and speed change
func WithSwitchDelay(delay time.Duration) Option {
	return func(c *Config) error {
		c.Negotiation.SwitchDelay = delay
		return nil
	}
}

// WithReadyTimeout bounds connection verification at the new rate
func WithReadyTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Negotiation.ReadyTimeout = timeout
		return nil
	}
}

// WithListenTimeout bounds how long a responder waits for the first probe
func WithListenTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Negotiation.ListenTimeout = timeout
		return nil
	}
}

// WithPhaseRetry sets the retry policy of one negotiation phase
func WithPhaseRetry(phase Phase, config *RetryConfig) Option {
	return func(c *Config) error {
		if config == nil {
			return fmt.Errorf("%w: nil retry config", ErrInvalidParameter)
		}
		switch phase {
		case PhaseDiscovery:
			c.Negotiation.Discovery = cloneRetry(config)
		case PhaseCapability:
			c.Negotiation.Capability = cloneRetry(config)
		case PhaseSwitch:
			c.Negotiation.Switch = cloneRetry(config)
		case PhaseTransfer:
			c.Transfer.Retry = cloneRetry(config)
		default:
			return fmt.Errorf("%w: no retry policy for phase %q", ErrInvalidParameter, phase)
		}
		return nil
	}
}

// WithQueueSize bounds the decoded frame queue
func WithQueueSize(n int) Option {
	return func(c *Config) error {
		c.QueueSize = n
		return nil
	}
}

// WithBaudRate sets the rate a session opens its port at
func WithBaudRate(baud int) Option {
	return func(c *Config) error {
		c.Session.BaudRate = baud
		return nil
	}
}

// WithOpenTimeout keeps retrying to open a port that is not available yet
func WithOpenTimeout(timeout time.Duration) Option {
	return func(c *Config) error {
		c.Session.OpenTimeout = timeout
		return nil
	}
}

// WithSmartMode enables or disables negotiation before transfer
func WithSmartMode(smart bool) Option {
	return func(c *Config) error {
		c.Session.Smart = smart
		return nil
	}
}

// WithManualFallback continues in manual mode when negotiation degrades
// instead of returning ErrDegraded
func WithManualFallback(fallback bool) Option {
	return func(c *Config) error {
		c.Session.Fallback = fallback
		return nil
	}
}

// WithBatchReceive makes a manual receive expect a batch of named files
func WithBatchReceive(batch bool) Option {
	return func(c *Config) error {
		c.Session.Batch = batch
		return nil
	}
}
