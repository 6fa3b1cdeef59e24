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
	"time"
)

// Transport is the duplex byte channel a session runs over. The uart package
// implements it over a serial port.
//
// Read must return 0, nil when the read timeout expires without data and a
// non-nil error once the channel is closed or broken. Read may run
// concurrently with Write and SetBaudRate.
type Transport interface {
	// Read reads up to len(p) bytes, waiting at most the read timeout
	Read(p []byte) (int, error)

	// Write writes p to the channel
	Write(p []byte) (int, error)

	// SetReadTimeout sets how long Read waits for the first byte
	SetReadTimeout(timeout time.Duration) error

	// SetBaudRate reconfigures the line speed
	SetBaudRate(baud int) error

	// BaudRate returns the current line speed
	BaudRate() int

	// Flush discards unread input and unsent output
	Flush() error

	// Close closes the channel
	Close() error

	// Port returns the channel's device name
	Port() string
}

// TransportFactory opens a transport on port at baud with the given read timeout
type TransportFactory func(port string, baud int, timeout time.Duration) (Transport, error)

// TransportType names a transport implementation
type TransportType string

const (
	// TransportUART represents UART/serial transport.
	TransportUART TransportType = "uart"
	// TransportVirtual represents an in-memory link used in tests
	TransportVirtual TransportType = "virtual"
	// TransportMock represents a mock transport for testing
	TransportMock TransportType = "mock"
)

// TypedTransport is implemented by transports that report their type
type TypedTransport interface {
	Type() TransportType
}

// TransportTypeOf returns the type of t, or "unknown"
func TransportTypeOf(t Transport) TransportType {
	if typed, ok := t.(TypedTransport); ok {
		return typed.Type()
	}
	return "unknown"
}
