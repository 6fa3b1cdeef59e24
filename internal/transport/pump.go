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

package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaparooProject/go-sft/internal/frame"
)

// Reader is the byte source a Pump drains. Read may return 0, nil when its
// read timeout expires.
type Reader interface {
	Read(p []byte) (int, error)
}

// Received is a decoded frame tagged with the pump generation it was read in
type Received struct {
	At         time.Time
	Frame      frame.Frame
	Generation uint64
}

// PumpStats holds the pump's counters
type PumpStats struct {
	FramesReceived  uint64
	FramesDropped   uint64
	FramesDiscarded uint64
	BytesRead       uint64
	ReadErrors      uint64
}

// PumpConfig configures a Pump
type PumpConfig struct {
	// OnDiscard is called for every corrupt frame and stale partial frame
	OnDiscard func(err error)
	// StaleAfter is how long a partial frame may sit in the scan buffer with
	// no new bytes before it is discarded a byte at a time
	StaleAfter time.Duration
	QueueSize  int
	MaxPayload int
}

// DefaultPumpConfig returns the default pump configuration
func DefaultPumpConfig() PumpConfig {
	return PumpConfig{
		QueueSize:  100,
		MaxPayload: frame.MaxPayloadLength,
		StaleAfter: 250 * time.Millisecond,
	}
}

// Pump reads bytes from a Reader on its own goroutine, decodes frames and
// queues them in arrival order. It holds no protocol state. When the queue is
// full the oldest frame is dropped.
type Pump struct {
	reader  Reader
	out     chan Received
	stop    chan struct{}
	done    chan struct{}
	err     error
	scanner *frame.Scanner
	config  PumpConfig

	framesReceived  atomic.Uint64
	framesDropped   atomic.Uint64
	framesDiscarded atomic.Uint64
	bytesRead       atomic.Uint64
	readErrors      atomic.Uint64
	generation      atomic.Uint64

	lastByteAt time.Time
	mu         sync.Mutex
	stopOnce   sync.Once
	started    atomic.Bool
}

// NewPump creates a pump over reader. Call Start to begin reading.
func NewPump(reader Reader, config PumpConfig) *Pump {
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultPumpConfig().QueueSize
	}
	return &Pump{
		reader:  reader,
		config:  config,
		out:     make(chan Received, config.QueueSize),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		scanner: frame.NewScanner(config.MaxPayload),
	}
}

// Start launches the read loop. Calling Start more than once has no effect.
func (p *Pump) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.loop()
}

// Frames returns the ordered frame queue
func (p *Pump) Frames() <-chan Received {
	return p.out
}

// Done is closed once the read loop has exited
func (p *Pump) Done() <-chan struct{} {
	return p.done
}

// Err returns the read error that ended the loop, if any. It is only
// meaningful after Done is closed.
func (p *Pump) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

// Generation returns the current generation
func (p *Pump) Generation() uint64 {
	return p.generation.Load()
}

// Reset discards partially scanned bytes and starts a new generation. Frames
// already queued keep their old generation so consumers can skip them.
func (p *Pump) Reset() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scanner.Reset()
	return p.generation.Add(1)
}

// Stop asks the read loop to exit after its current read returns
func (p *Pump) Stop() {
	p.stopOnce.Do(func() {
		close(p.stop)
	})
}

// Stats returns a snapshot of the pump counters
func (p *Pump) Stats() PumpStats {
	return PumpStats{
		FramesReceived:  p.framesReceived.Load(),
		FramesDropped:   p.framesDropped.Load(),
		FramesDiscarded: p.framesDiscarded.Load(),
		BytesRead:       p.bytesRead.Load(),
		ReadErrors:      p.readErrors.Load(),
	}
}

func (p *Pump) loop() {
	defer close(p.done)

	buf := frame.GetBuffer()
	defer frame.PutBuffer(buf)

	for {
		select {
		case <-p.stop:
			return
		default:
		}

		n, err := p.reader.Read(buf)
		if n > 0 {
			p.bytesRead.Add(uint64(n))
			p.feed(buf[:n])
		} else if err == nil {
			p.flushStale()
		}
		if err != nil {
			p.readErrors.Add(1)
			p.err = err
			return
		}
	}
}

func (p *Pump) feed(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.lastByteAt = time.Now()
	p.scanner.Feed(data)
	p.drain()
}

// flushStale discards a partial frame left behind by line noise once the
// line has gone quiet
func (p *Pump) flushStale() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.config.StaleAfter <= 0 || p.scanner.Buffered() == 0 || time.Since(p.lastByteAt) < p.config.StaleAfter {
		return
	}
	p.framesDiscarded.Add(1)
	if p.config.OnDiscard != nil {
		p.config.OnDiscard(fmt.Errorf("%w: %d stale bytes", frame.ErrTruncated, p.scanner.Buffered()))
	}
	for p.scanner.Buffered() > 0 {
		p.scanner.Skip(1)
		p.drain()
	}
}

func (p *Pump) drain() {
	for {
		f, err := p.scanner.Next()
		if errors.Is(err, frame.ErrTruncated) {
			return
		}
		if err != nil {
			p.framesDiscarded.Add(1)
			if p.config.OnDiscard != nil {
				p.config.OnDiscard(err)
			}
			continue
		}
		p.framesReceived.Add(1)
		p.enqueue(Received{Frame: f, Generation: p.generation.Load(), At: time.Now()})
	}
}

func (p *Pump) enqueue(r Received) {
	for {
		select {
		case p.out <- r:
			return
		default:
		}
		select {
		case <-p.out:
			p.framesDropped.Add(1)
		default:
		}
	}
}
