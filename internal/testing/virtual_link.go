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

package testing

import (
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by a VirtualPort after Close
var ErrPortClosed = errors.New("virtual port closed")

// WriteHook sees every write before delivery and returns the bytes the peer
// receives; returning nil drops the write
type WriteHook func(p []byte) []byte

// VirtualPort is one end of an in-memory serial line. Bytes written while
// the two ends run at different baud rates arrive garbled, the way a real
// UART misreads a peer at the wrong speed.
type VirtualPort struct {
	peer        *VirtualPort
	notify      chan struct{}
	closed      chan struct{}
	hook        WriteHook
	name        string
	inbound     []byte
	bauds       []int
	readTimeout time.Duration
	written     int
	baud        int
	mu          sync.Mutex
	closeOnce   sync.Once
}

// NewVirtualLink returns two connected ports, both at baud
func NewVirtualLink(nameA, nameB string, baud int) (a, b *VirtualPort) {
	a = newVirtualPort(nameA, baud)
	b = newVirtualPort(nameB, baud)
	a.peer = b
	b.peer = a
	return a, b
}

func newVirtualPort(name string, baud int) *VirtualPort {
	return &VirtualPort{
		name:        name,
		baud:        baud,
		bauds:       []int{baud},
		notify:      make(chan struct{}, 1),
		closed:      make(chan struct{}),
		readTimeout: 50 * time.Millisecond,
	}
}

// Read waits up to the read timeout for data. Like a serial port it returns
// 0 bytes and no error when nothing arrives in time.
func (v *VirtualPort) Read(p []byte) (int, error) {
	v.mu.Lock()
	timeout := v.readTimeout
	v.mu.Unlock()

	var expired <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		expired = timer.C
	}

	for {
		v.mu.Lock()
		if len(v.inbound) > 0 {
			n := copy(p, v.inbound)
			v.inbound = v.inbound[n:]
			v.mu.Unlock()
			return n, nil
		}
		v.mu.Unlock()

		select {
		case <-v.closed:
			return 0, ErrPortClosed
		case <-expired:
			return 0, nil
		case <-v.notify:
		}
	}
}

// Write delivers p to the peer, through the write hook if one is set
func (v *VirtualPort) Write(p []byte) (int, error) {
	v.mu.Lock()
	select {
	case <-v.closed:
		v.mu.Unlock()
		return 0, ErrPortClosed
	default:
	}
	hook := v.hook
	baud := v.baud
	v.written += len(p)
	v.mu.Unlock()

	data := append([]byte(nil), p...)
	if hook != nil {
		data = hook(data)
	}
	if len(data) > 0 {
		v.peer.deliver(data, baud)
	}
	return len(p), nil
}

func (v *VirtualPort) deliver(data []byte, baud int) {
	v.mu.Lock()
	if v.baud != baud {
		for i := range data {
			data[i] = ^data[i]
		}
	}
	v.inbound = append(v.inbound, data...)
	v.mu.Unlock()

	select {
	case v.notify <- struct{}{}:
	default:
	}
}

// SetReadTimeout sets how long Read waits; zero or less blocks until data
func (v *VirtualPort) SetReadTimeout(timeout time.Duration) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.readTimeout = timeout
	return nil
}

// SetBaudRate changes this end's speed
func (v *VirtualPort) SetBaudRate(baud int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.baud = baud
	v.bauds = append(v.bauds, baud)
	return nil
}

// BaudRate returns this end's speed
func (v *VirtualPort) BaudRate() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.baud
}

// BaudHistory returns every rate this end has run at, oldest first
func (v *VirtualPort) BaudHistory() []int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]int(nil), v.bauds...)
}

// Flush drops unread input
func (v *VirtualPort) Flush() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inbound = nil
	return nil
}

// Close closes this end. The peer stays open but receives nothing more.
func (v *VirtualPort) Close() error {
	v.closeOnce.Do(func() { close(v.closed) })
	return nil
}

// Port returns the port name
func (v *VirtualPort) Port() string {
	return v.name
}

// SetWriteHook installs hook for subsequent writes; nil removes it
func (v *VirtualPort) SetWriteHook(hook WriteHook) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.hook = hook
}

// Written returns the number of bytes written so far
func (v *VirtualPort) Written() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.written
}

// IsClosed reports whether Close has been called
func (v *VirtualPort) IsClosed() bool {
	select {
	case <-v.closed:
		return true
	default:
		return false
	}
}
