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

// Package uart implements sft.Transport over a serial port using
// go.bug.st/serial.
package uart

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.bug.st/serial"

	sft "github.com/ZaparooProject/go-sft"
)

// Transport is a serial port configured for 8N1 framing
type Transport struct {
	port     serial.Port
	portName string
	mu       sync.Mutex
	baud     atomic.Int64
	closed   atomic.Bool
}

var _ sft.Transport = (*Transport)(nil)

// Open is an sft.TransportFactory for serial ports
func Open(portName string, baud int, timeout time.Duration) (sft.Transport, error) {
	return New(portName, baud, timeout)
}

// New opens portName at baud. timeout is the initial read timeout; zero or
// less blocks until data arrives.
func New(portName string, baud int, timeout time.Duration) (*Transport, error) {
	return NewWithContext(context.Background(), portName, baud, timeout)
}

// NewWithContext is New with a cancellation check before the port is opened
func NewWithContext(ctx context.Context, portName string, baud int, timeout time.Duration) (*Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if baud <= 0 {
		return nil, fmt.Errorf("%w: baud rate %d", sft.ErrInvalidParameter, baud)
	}

	port, err := serial.Open(portName, mode(baud))
	if err != nil {
		return nil, sft.NewTransportError("open", portName, err, openErrorType(err))
	}

	t := &Transport{port: port, portName: portName}
	t.baud.Store(int64(baud))

	if err := t.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, err
	}
	// Drop whatever the peer sent before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, sft.NewTransportError("reset input", portName, err, sft.ErrorTypePermanent)
	}
	return t, nil
}

// Read reads up to len(p) bytes, returning 0, nil when the read timeout
// passes without data
func (t *Transport) Read(p []byte) (int, error) {
	if t.port == nil || t.closed.Load() {
		return 0, sft.ErrTransportClosed
	}
	n, err := t.port.Read(p)
	if err != nil {
		if isClosed(err) || t.closed.Load() {
			return n, sft.ErrTransportClosed
		}
		return n, sft.NewTransportError("read", t.portName, fmt.Errorf("%w: %w", sft.ErrTransportRead, err),
			sft.ErrorTypePermanent)
	}
	return n, nil
}

// Write writes all of p
func (t *Transport) Write(p []byte) (int, error) {
	if t.port == nil || t.closed.Load() {
		return 0, sft.ErrTransportClosed
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	written := 0
	for written < len(p) {
		n, err := t.port.Write(p[written:])
		written += n
		if err != nil {
			if isClosed(err) {
				return written, sft.ErrTransportClosed
			}
			return written, err
		}
		if n == 0 {
			return written, sft.ErrShortWrite
		}
	}
	return written, nil
}

// SetReadTimeout sets how long Read waits for the first byte
func (t *Transport) SetReadTimeout(timeout time.Duration) error {
	if t.port == nil || t.closed.Load() {
		return sft.ErrTransportClosed
	}
	if timeout <= 0 {
		timeout = serial.NoTimeout
	}
	if err := t.port.SetReadTimeout(timeout); err != nil {
		return sft.NewTransportError("set read timeout", t.portName, err, sft.ErrorTypePermanent)
	}
	return nil
}

// SetBaudRate waits for pending output to leave at the old speed, then
// reconfigures the port
func (t *Transport) SetBaudRate(baud int) error {
	if t.port == nil || t.closed.Load() {
		return sft.ErrTransportClosed
	}
	if baud <= 0 {
		return fmt.Errorf("%w: baud rate %d", sft.ErrInvalidParameter, baud)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.port.Drain(); err != nil {
		return sft.NewTransportError("drain", t.portName, err, sft.ErrorTypePermanent)
	}
	if err := t.port.SetMode(mode(baud)); err != nil {
		return sft.NewTransportError("set mode", t.portName, err, sft.ErrorTypePermanent)
	}
	t.baud.Store(int64(baud))
	return nil
}

// BaudRate returns the current line speed
func (t *Transport) BaudRate() int {
	return int(t.baud.Load())
}

// Flush discards unread input and unsent output
func (t *Transport) Flush() error {
	if t.port == nil || t.closed.Load() {
		return sft.ErrTransportClosed
	}
	if err := t.port.ResetInputBuffer(); err != nil {
		return sft.NewTransportError("reset input", t.portName, err, sft.ErrorTypePermanent)
	}
	if err := t.port.ResetOutputBuffer(); err != nil {
		return sft.NewTransportError("reset output", t.portName, err, sft.ErrorTypePermanent)
	}
	return nil
}

// Close closes the port. Pending reads return ErrTransportClosed.
func (t *Transport) Close() error {
	if t.port == nil || !t.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", t.portName, err)
	}
	return nil
}

// Port returns the device name
func (t *Transport) Port() string {
	return t.portName
}

// Type returns the transport type
func (*Transport) Type() sft.TransportType {
	return sft.TransportUART
}

// IsConnected reports whether the port is open
func (t *Transport) IsConnected() bool {
	return t.port != nil && !t.closed.Load()
}

func mode(baud int) *serial.Mode {
	return &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
}

func isClosed(err error) bool {
	var portErr *serial.PortError
	return errors.As(err, &portErr) && portErr.Code() == serial.PortClosed
}

// openErrorType treats a busy port as worth retrying
func openErrorType(err error) sft.ErrorType {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortBusy {
		return sft.ErrorTypeTransient
	}
	return sft.ErrorTypePermanent
}
