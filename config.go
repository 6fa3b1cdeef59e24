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
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-sft/internal/frame"
)

// Protocol versions. Version 2 adds the root path to capability negotiation.
const (
	ProtocolVersion1 uint8 = 1
	ProtocolVersion2 uint8 = 2
)

// Link defaults
const (
	DefaultDiscoveryBaudRate = 115200
	DefaultMaxFileNameLength = 512
	DefaultCacheThreshold    = 4 * 1024 * 1024
)

// DefaultBaudRates lists the rates offered during discovery, fastest first
func DefaultBaudRates() []int {
	return []int{6000000, 4000000, 3000000, 2000000, 1728000, 921600, 460800, 230400, 115200}
}

// TransferConfig configures senders and receivers
type TransferConfig struct {
	// Retry governs each receiver request; RetryTimeout is the minimum wait
	// for a reply
	Retry *RetryConfig
	// ChunkSize is the length of each data request
	ChunkSize int
	// MaxChunkSize is the largest chunk this end accepts during negotiation
	MaxChunkSize int
	// RequestTimeout bounds how long a sender waits for the next request
	RequestTimeout time.Duration
	// Linger is how long a finished sender keeps answering repeated requests.
	// The sender never lingers for less than the receiver's retry window.
	Linger time.Duration
	// MaxFileNameLength bounds relative paths in file name replies
	MaxFileNameLength int
	// CacheThreshold is the largest source file loaded into memory whole
	CacheThreshold int64
	// ProgressInterval throttles progress events
	ProgressInterval time.Duration
}

// NegotiationConfig configures the probe negotiator
type NegotiationConfig struct {
	// Discovery, Capability and Switch govern the phase retries; their
	// RetryTimeout is the wait for each reply
	Discovery  *RetryConfig
	Capability *RetryConfig
	Switch     *RetryConfig
	// BaudRates are the rates this end can run at
	BaudRates []int
	// DiscoveryBaudRate is the fixed rate probes are exchanged at
	DiscoveryBaudRate int
	// SwitchDelay is the pause between the switch ack and the speed change
	SwitchDelay time.Duration
	// ReadyTimeout bounds connection verification at the new rate
	ReadyTimeout time.Duration
	// ListenTimeout bounds how long a responder waits for the first probe
	ListenTimeout time.Duration
	// DeviceID identifies this end; zero picks a random identity
	DeviceID uint32
	// ProtocolVersion is the highest version this end speaks
	ProtocolVersion uint8
}

// SessionConfig configures how a Session acquires and uses its port
type SessionConfig struct {
	// BaudRate is the rate the port is opened at and, in manual mode, the
	// transfer rate
	BaudRate int
	// OpenTimeout keeps retrying a port that cannot be opened yet; zero tries once
	OpenTimeout time.Duration
	// Smart runs negotiation before transferring
	Smart bool
	// Fallback continues with the manual parameters when negotiation degrades
	Fallback bool
	// Batch selects batch receive when no negotiation announces the mode
	Batch bool
}

// Config holds everything a session component needs. Components copy it at
// construction; later changes do not affect running sessions.
type Config struct {
	Observer    Observer
	Negotiation NegotiationConfig
	Transfer    TransferConfig
	Session     SessionConfig
	Logger      zerolog.Logger
	// Seed makes identifiers and jitter reproducible; zero seeds randomly
	Seed uint64
	// QueueSize bounds the decoded frame queue of a Link
	QueueSize int
	// StaleAfter is how long a partial frame may wait for more bytes
	StaleAfter time.Duration
}

// DefaultTransferConfig returns the default transfer configuration
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		Retry:             DefaultRetryConfig(),
		ChunkSize:         DefaultChunkSize,
		MaxChunkSize:      MaxChunkSize,
		RequestTimeout:    30 * time.Second,
		Linger:            500 * time.Millisecond,
		MaxFileNameLength: DefaultMaxFileNameLength,
		CacheThreshold:    DefaultCacheThreshold,
		ProgressInterval:  100 * time.Millisecond,
	}
}

// DefaultNegotiationConfig returns the default negotiation configuration
func DefaultNegotiationConfig() NegotiationConfig {
	return NegotiationConfig{
		Discovery:         DiscoveryRetryConfig(),
		Capability:        CapabilityRetryConfig(),
		Switch:            SwitchRetryConfig(),
		BaudRates:         DefaultBaudRates(),
		DiscoveryBaudRate: DefaultDiscoveryBaudRate,
		SwitchDelay:       100 * time.Millisecond,
		ReadyTimeout:      2 * time.Second,
		ListenTimeout:     30 * time.Second,
		ProtocolVersion:   ProtocolVersion2,
	}
}

// DefaultSessionConfig returns the default session configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		BaudRate: DefaultDiscoveryBaudRate,
		Smart:    true,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Transfer:    DefaultTransferConfig(),
		Negotiation: DefaultNegotiationConfig(),
		Session:     DefaultSessionConfig(),
		Logger:      zerolog.Nop(),
		QueueSize:   100,
		StaleAfter:  250 * time.Millisecond,
	}
}

// Validate rejects configurations that cannot run
func (c *Config) Validate() error {
	t := c.Transfer
	switch {
	case t.Retry == nil:
		return fmt.Errorf("%w: transfer retry config is nil", ErrInvalidParameter)
	case t.ChunkSize < 1 || t.ChunkSize > frame.MaxPayloadLength:
		return fmt.Errorf("%w: chunk size %d out of range", ErrInvalidParameter, t.ChunkSize)
	case t.MaxChunkSize < 1 || t.MaxChunkSize > frame.MaxPayloadLength:
		return fmt.Errorf("%w: max chunk size %d out of range", ErrInvalidParameter, t.MaxChunkSize)
	case t.RequestTimeout <= 0:
		return fmt.Errorf("%w: request timeout must be positive", ErrInvalidParameter)
	case t.Linger < 0:
		return fmt.Errorf("%w: negative linger", ErrInvalidParameter)
	case t.MaxFileNameLength < 1 || t.MaxFileNameLength > frame.MaxPayloadLength-2:
		return fmt.Errorf("%w: max file name length %d out of range", ErrInvalidParameter, t.MaxFileNameLength)
	}
	if err := t.Retry.Validate(); err != nil {
		return fmt.Errorf("transfer retry: %w", err)
	}

	n := c.Negotiation
	switch {
	case n.Discovery == nil || n.Capability == nil || n.Switch == nil:
		return fmt.Errorf("%w: negotiation retry config is nil", ErrInvalidParameter)
	case len(n.BaudRates) == 0:
		return fmt.Errorf("%w: no baud rates configured", ErrInvalidParameter)
	case n.DiscoveryBaudRate <= 0:
		return fmt.Errorf("%w: discovery baud rate must be positive", ErrInvalidParameter)
	case n.SwitchDelay < 0 || n.SwitchDelay > 0xFFFF*time.Millisecond:
		return fmt.Errorf("%w: switch delay %v out of range", ErrInvalidParameter, n.SwitchDelay)
	case n.ReadyTimeout <= 0 || n.ListenTimeout <= 0:
		return fmt.Errorf("%w: negotiation timeouts must be positive", ErrInvalidParameter)
	case n.ProtocolVersion < ProtocolVersion1:
		return fmt.Errorf("%w: protocol version %d", ErrInvalidParameter, n.ProtocolVersion)
	}
	for _, baud := range n.BaudRates {
		if baud <= 0 || int64(baud) > math.MaxUint32 {
			return fmt.Errorf("%w: baud rate %d", ErrInvalidParameter, baud)
		}
	}
	switch {
	case c.Session.BaudRate <= 0 || int64(c.Session.BaudRate) > math.MaxUint32:
		return fmt.Errorf("%w: session baud rate %d", ErrInvalidParameter, c.Session.BaudRate)
	case c.Session.OpenTimeout < 0:
		return fmt.Errorf("%w: negative open timeout", ErrInvalidParameter)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue size must be positive", ErrInvalidParameter)
	}

	for name, rc := range map[string]*RetryConfig{
		"discovery": n.Discovery, "capability": n.Capability, "switch": n.Switch,
	} {
		if err := rc.Validate(); err != nil {
			return fmt.Errorf("%s retry: %w", name, err)
		}
	}
	return nil
}

// Clone returns a deep copy of c
func (c *Config) Clone() *Config {
	clone := *c
	clone.Transfer.Retry = cloneRetry(c.Transfer.Retry)
	clone.Negotiation.Discovery = cloneRetry(c.Negotiation.Discovery)
	clone.Negotiation.Capability = cloneRetry(c.Negotiation.Capability)
	clone.Negotiation.Switch = cloneRetry(c.Negotiation.Switch)
	clone.Negotiation.BaudRates = slices.Clone(c.Negotiation.BaudRates)
	return &clone
}

// newRand returns a generator private to one component
func (c *Config) newRand() *rand.Rand {
	if c.Seed != 0 {
		return rand.New(rand.NewPCG(c.Seed, c.Seed^0x9E3779B97F4A7C15))
	}
	return rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
}

// replyTimeout returns the wait for one data reply: the configured minimum
// or four times the wire time of a full chunk at baud, whichever is longer
func (t TransferConfig) replyTimeout(chunk, baud int) time.Duration {
	timeout := t.Retry.RetryTimeout
	if baud <= 0 {
		return timeout
	}
	bits := int64(chunk+frame.Overhead) * 10
	wire := time.Duration(bits * int64(time.Second) / int64(baud))
	if 4*wire > timeout {
		return 4 * wire
	}
	return timeout
}

// lingerWindow returns how long a finished sender waits for repeated
// requests at baud: Linger, or the time the receiver spends retrying one
// request, whichever is longer
func (t TransferConfig) lingerWindow(baud int) time.Duration {
	retry := *t.Retry
	retry.RetryTimeout = t.replyTimeout(t.ChunkSize, baud)
	return max(t.Linger, retry.window())
}

func cloneRetry(rc *RetryConfig) *RetryConfig {
	if rc == nil {
		return nil
	}
	clone := *rc
	return &clone
}

// randomID returns an identifier in [0x10000000, 0xFFFFFFFF]
func randomID(rng *rand.Rand) uint32 {
	return 0x10000000 + rng.Uint32N(0xFFFFFFFF-0x10000000+1)
}
