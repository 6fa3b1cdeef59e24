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
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-sft/internal/frame"
	"github.com/ZaparooProject/go-sft/internal/transport"
)

// linkPollInterval is the transport read timeout used by the frame reader so
// that it notices Close promptly
const linkPollInterval = 50 * time.Millisecond

// LinkStats holds frame counters for a link
type LinkStats struct {
	FramesSent      uint64
	BytesSent       uint64
	FramesReceived  uint64
	FramesDropped   uint64
	FramesDiscarded uint64
	BytesRead       uint64
	ReadErrors      uint64
}

// Link sends and receives frames over a borrowed Transport. A background
// reader decodes incoming bytes into an ordered queue; the Link's other
// methods must be called from a single goroutine.
//
// Closing a Link stops the reader but leaves the Transport open.
type Link struct {
	port     Transport
	pump     *transport.Pump
	observer Observer
	logger   zerolog.Logger
	pending  []frame.Frame

	framesSent atomic.Uint64
	bytesSent  atomic.Uint64
	closeOnce  sync.Once
}

// NewLink starts a frame reader on t
func NewLink(t Transport, opts ...Option) (*Link, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: nil transport", ErrInvalidParameter)
	}
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newLink(t, config)
}

func newLink(t Transport, config *Config) (*Link, error) {
	if err := t.SetReadTimeout(linkPollInterval); err != nil {
		return nil, NewTransportError("set read timeout", t.Port(), err, ErrorTypePermanent)
	}

	l := &Link{
		port:     t,
		observer: config.Observer,
		logger:   config.Logger.With().Str("port", t.Port()).Logger(),
	}

	pumpConfig := transport.DefaultPumpConfig()
	pumpConfig.QueueSize = config.QueueSize
	pumpConfig.StaleAfter = config.StaleAfter
	pumpConfig.OnDiscard = func(err error) {
		l.logger.Debug().Err(err).Msg("discarded frame bytes")
		l.observer.emit(Event{Type: EventFrameDiscarded, Err: err})
	}
	l.pump = transport.NewPump(t, pumpConfig)
	l.pump.Start()
	return l, nil
}

// Transport returns the underlying transport
func (l *Link) Transport() Transport {
	return l.port
}

// Send encodes m and writes it to the transport
func (l *Link) Send(m Message) error {
	raw, err := EncodeMessage(m)
	if err != nil {
		return err
	}

	n, err := l.port.Write(raw)
	if err != nil {
		return NewTransportError("write", l.port.Port(), fmt.Errorf("%w: %w", ErrTransportWrite, err), ErrorTypePermanent)
	}
	if n != len(raw) {
		return NewTransportError("write", l.port.Port(),
			fmt.Errorf("%w: wrote %d of %d bytes", ErrShortWrite, n, len(raw)), ErrorTypePermanent)
	}

	l.framesSent.Add(1)
	l.bytesSent.Add(uint64(n))
	l.logger.Trace().Stringer("cmd", m.Command()).Int("len", len(raw)-frame.Overhead).Msg("frame sent")
	return nil
}

// Next returns the next frame, waiting at most timeout. It returns a
// timeout *TransportError when nothing arrives in time.
func (l *Link) Next(ctx context.Context, timeout time.Duration) (frame.Frame, error) {
	if len(l.pending) > 0 {
		f := l.pending[0]
		l.pending = l.pending[1:]
		return f, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return frame.Frame{}, ctx.Err()
		case <-timer.C:
			return frame.Frame{}, NewTimeoutError("receive", l.port.Port())
		case r := <-l.pump.Frames():
			if f, ok := l.current(r); ok {
				return f, nil
			}
		case <-l.pump.Done():
			// Frames decoded before the reader stopped are still valid
			select {
			case r := <-l.pump.Frames():
				if f, ok := l.current(r); ok {
					return f, nil
				}
				continue
			default:
			}
			return frame.Frame{}, l.readerError()
		}
	}
}

// Receive returns the next well-formed message. Frames whose payload does not
// match their command are logged and skipped.
func (l *Link) Receive(ctx context.Context, timeout time.Duration) (Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		f, err := l.Next(ctx, time.Until(deadline))
		if err != nil {
			return nil, err
		}
		m, err := ParseMessage(f)
		if err != nil {
			l.logger.Warn().Err(err).Msg("ignoring frame with invalid payload")
			l.observer.emit(Event{Type: EventFrameDiscarded, Command: f.Command, Err: err})
			continue
		}
		return m, nil
	}
}

// Expect waits up to timeout for a message accepted by match. Messages it
// rejects are passed to skip, if set, and dropped.
func (l *Link) Expect(
	ctx context.Context,
	timeout time.Duration,
	match func(Message) bool,
	skip func(Message),
) (Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		m, err := l.Receive(ctx, time.Until(deadline))
		if err != nil {
			return nil, err
		}
		if match(m) {
			return m, nil
		}
		if skip != nil {
			skip(m)
		}
	}
}

// Requeue puts f back at the head of the queue
func (l *Link) Requeue(f frame.Frame) {
	l.pending = append([]frame.Frame{f}, l.pending...)
}

// Discard drops every queued frame
func (l *Link) Discard() int {
	dropped := len(l.pending)
	l.pending = nil
	for {
		select {
		case <-l.pump.Frames():
			dropped++
		default:
			return dropped
		}
	}
}

// SwitchBaudRate changes the transport speed and drops everything received at
// the old speed
func (l *Link) SwitchBaudRate(baud int) error {
	if err := l.port.SetBaudRate(baud); err != nil {
		return NewTransportError("set baud rate", l.port.Port(), err, ErrorTypePermanent)
	}
	if err := l.port.Flush(); err != nil {
		return NewTransportError("flush", l.port.Port(), err, ErrorTypePermanent)
	}
	l.pump.Reset()
	l.pending = nil
	return nil
}

// Stats returns the link counters
func (l *Link) Stats() LinkStats {
	ps := l.pump.Stats()
	return LinkStats{
		FramesSent:      l.framesSent.Load(),
		BytesSent:       l.bytesSent.Load(),
		FramesReceived:  ps.FramesReceived,
		FramesDropped:   ps.FramesDropped,
		FramesDiscarded: ps.FramesDiscarded,
		BytesRead:       ps.BytesRead,
		ReadErrors:      ps.ReadErrors,
	}
}

// Close stops the frame reader and waits briefly for it to exit. The
// transport stays open.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		l.pump.Stop()
		select {
		case <-l.pump.Done():
		case <-time.After(time.Second):
			l.logger.Warn().Msg("frame reader did not stop within 1s")
		}
	})
	return nil
}

func (l *Link) current(r transport.Received) (frame.Frame, bool) {
	if r.Generation != l.pump.Generation() {
		l.logger.Debug().Stringer("cmd", r.Frame.Command).Msg("dropping frame received before baud switch")
		return frame.Frame{}, false
	}
	return r.Frame, true
}

func (l *Link) readerError() error {
	err := l.pump.Err()
	if err == nil {
		return NewTransportError("receive", l.port.Port(), ErrTransportClosed, ErrorTypePermanent)
	}
	if errors.Is(err, ErrTransportClosed) {
		return NewTransportError("receive", l.port.Port(), err, ErrorTypePermanent)
	}
	return NewTransportError("receive", l.port.Port(), fmt.Errorf("%w: %w", ErrTransportRead, err), ErrorTypePermanent)
}
