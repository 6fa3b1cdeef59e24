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
	"sync"
	"time"
)

// BlockingMockTransport is a transport that accepts every write and never
// produces input until Feed is called. It is used for testing cancellation
// and timeout paths.
type BlockingMockTransport struct {
	feed        chan []byte
	closedCh    chan struct{}
	written     [][]byte
	readTimeout time.Duration
	baud        int
	mu          sync.Mutex
	closeOnce   sync.Once
	closed      bool
}

// NewBlockingMockTransport creates a new blocking mock transport at baud
func NewBlockingMockTransport(baud int) *BlockingMockTransport {
	return &BlockingMockTransport{
		feed:        make(chan []byte, 16),
		closedCh:    make(chan struct{}),
		readTimeout: linkPollInterval,
		baud:        baud,
	}
}

// Read blocks until Feed supplies data, the read timeout passes or the
// transport is closed
func (m *BlockingMockTransport) Read(p []byte) (int, error) {
	m.mu.Lock()
	timeout := m.readTimeout
	m.mu.Unlock()

	select {
	case <-m.closedCh:
		return 0, ErrTransportClosed
	case data := <-m.feed:
		return copy(p, data), nil
	case <-time.After(timeout):
		return 0, nil
	}
}

// Write records p
func (m *BlockingMockTransport) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrTransportClosed
	}
	m.written = append(m.written, append([]byte(nil), p...))
	return len(p), nil
}

// Feed queues bytes for the next Read
func (m *BlockingMockTransport) Feed(data []byte) {
	m.feed <- append([]byte(nil), data...)
}

// Writes returns everything written so far, one entry per Write
func (m *BlockingMockTransport) Writes() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.written...)
}

// SetReadTimeout configures how long Read blocks without data
func (m *BlockingMockTransport) SetReadTimeout(timeout time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readTimeout = timeout
	return nil
}

// SetBaudRate records the new rate
func (m *BlockingMockTransport) SetBaudRate(baud int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baud = baud
	return nil
}

// BaudRate returns the current rate
func (m *BlockingMockTransport) BaudRate() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.baud
}

// Flush is a no-op
func (*BlockingMockTransport) Flush() error {
	return nil
}

// Close unblocks all reads and marks the transport closed
func (m *BlockingMockTransport) Close() error {
	m.closeOnce.Do(func() {
		m.mu.Lock()
		m.closed = true
		m.mu.Unlock()
		close(m.closedCh)
	})
	return nil
}

// IsClosed reports whether Close has been called
func (m *BlockingMockTransport) IsClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Port returns a fixed name
func (*BlockingMockTransport) Port() string {
	return "mock"
}

// Type returns TransportMock
func (*BlockingMockTransport) Type() TransportType {
	return TransportMock
}
