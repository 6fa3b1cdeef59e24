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
	"io"
	"math"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// SenderState is the state of a Sender
type SenderState int32

// Sender states
const (
	SenderIdle SenderState = iota
	SenderAwaitingRequest
	SenderHandlingSizeRequest
	SenderHandlingDataRequest
	SenderHandlingNameRequest
	SenderDone
	SenderFailed
)

func (s SenderState) String() string {
	switch s {
	case SenderIdle:
		return "idle"
	case SenderAwaitingRequest:
		return "awaiting request"
	case SenderHandlingSizeRequest:
		return "handling size request"
	case SenderHandlingDataRequest:
		return "handling data request"
	case SenderHandlingNameRequest:
		return "handling name request"
	case SenderDone:
		return "done"
	case SenderFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sender answers a receiver's size, data and file name requests. It never
// initiates an exchange.
type Sender struct {
	link     *Link
	source   FileSource
	config   *Config
	observer Observer
	progress *ProgressTracker
	current  *sourceState
	logger   zerolog.Logger
	queue    []string
	state    atomic.Int32
	batch    bool
}

// sourceState is the file currently being served
type sourceState struct {
	file      SourceFile
	name      string
	cache     []byte
	size      int64
	served    int64
	sized     bool
	completed bool
}

// NewSender creates a sender serving files from source over link
func NewSender(link *Link, source FileSource, opts ...Option) (*Sender, error) {
	if link == nil || source == nil {
		return nil, fmt.Errorf("%w: sender needs a link and a file source", ErrInvalidParameter)
	}
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newSender(link, source, config), nil
}

func newSender(link *Link, source FileSource, config *Config) *Sender {
	return &Sender{
		link:     link,
		source:   source,
		config:   config,
		observer: config.Observer,
		progress: NewProgressTracker(config.Observer, config.Transfer.ProgressInterval),
		logger:   config.Logger.With().Str("role", "sender").Logger(),
	}
}

// State returns the current state. It is safe to call from any goroutine.
func (s *Sender) State() SenderState {
	return SenderState(s.state.Load())
}

// ServeFile answers requests for a single file until the receiver has
// fetched every byte of it
func (s *Sender) ServeFile(ctx context.Context, name string) error {
	s.batch = false
	s.queue = nil
	s.current = &sourceState{name: name}
	defer s.closeCurrent()
	return s.serve(ctx)
}

// ServeBatch answers requests for each of names in order, then reports the
// end of the batch with an empty file name
func (s *Sender) ServeBatch(ctx context.Context, names []string) error {
	for _, name := range names {
		if name == "" {
			return fmt.Errorf("%w: empty name in batch", ErrInvalidParameter)
		}
		if len(name) > s.config.Transfer.MaxFileNameLength {
			return fmt.Errorf("%w: name %q is %d bytes, limit is %d",
				ErrInvalidParameter, name, len(name), s.config.Transfer.MaxFileNameLength)
		}
	}
	s.batch = true
	s.queue = append([]string(nil), names...)
	s.current = nil
	defer s.closeCurrent()
	return s.serve(ctx)
}

func (s *Sender) serve(ctx context.Context) error {
	finished := false
	var linger time.Duration
	for {
		s.setState(SenderAwaitingRequest)

		wait := s.config.Transfer.RequestTimeout
		if finished {
			wait = linger
		}

		m, err := s.link.Receive(ctx, wait)
		if err != nil {
			if finished && GetErrorType(err) == ErrorTypeTimeout {
				break
			}
			return s.fail(fmt.Errorf("waiting for request: %w", err))
		}

		done, err := s.handle(m)
		if err != nil {
			return s.fail(err)
		}
		if done && !finished {
			finished = true
			linger = s.config.Transfer.lingerWindow(s.link.Transport().BaudRate())
			s.logger.Debug().Dur("linger", linger).Msg("all requests served")
		}
	}

	s.setState(SenderDone)
	return nil
}

// handle answers one request and reports whether the transfer is complete
func (s *Sender) handle(m Message) (bool, error) {
	switch msg := m.(type) {
	case FileSizeRequest:
		s.setState(SenderHandlingSizeRequest)
		return s.handleSizeRequest()
	case DataRequest:
		s.setState(SenderHandlingDataRequest)
		return s.handleDataRequest(msg)
	case FileNameRequest:
		s.setState(SenderHandlingNameRequest)
		return s.handleNameRequest()
	case ProbeRequest, ProbeResponse, CapabilityNego, CapabilityAck, SwitchBaudRate, SwitchAck, ConnectionReady:
		s.logger.Debug().Stringer("cmd", m.Command()).Msg("ignoring negotiation frame during transfer")
		s.observer.emit(Event{Type: EventStaleSession, Phase: PhaseTransfer, Command: m.Command()})
		return false, nil
	case FileSizeReply, DataReply, FileNameReply:
		s.logger.Warn().Stringer("cmd", m.Command()).Msg("ignoring reply frame received by sender")
		return false, nil
	case UnknownCommand:
		s.logger.Warn().Stringer("cmd", msg.Code).Int("len", len(msg.Payload)).Msg("unknown command")
		s.observer.emit(Event{
			Type: EventUnknownCommand, Phase: PhaseTransfer, Command: msg.Code,
			Err: fmt.Errorf("%w: %s", ErrUnknownCommand, msg.Code),
		})
		return false, nil
	default:
		return false, fmt.Errorf("%w: unhandled message %T", ErrProtocolViolation, m)
	}
}

func (s *Sender) handleSizeRequest() (bool, error) {
	cur, err := s.openCurrent()
	if err != nil {
		return false, err
	}
	if err := s.link.Send(FileSizeReply{Size: uint32(cur.size)}); err != nil {
		return false, err
	}
	if cur.sized {
		return false, nil
	}
	cur.sized = true

	s.logger.Info().Str("file", cur.name).Int64("size", cur.size).Msg("sending file")
	s.progress.Start(cur.name, cur.size)
	if cur.size == 0 {
		return s.completeCurrent(cur), nil
	}
	return false, nil
}

func (s *Sender) handleDataRequest(req DataRequest) (bool, error) {
	cur, err := s.openCurrent()
	if err != nil {
		return false, err
	}

	data, err := cur.read(int64(req.Offset), int(req.Length))
	if err != nil {
		return false, fmt.Errorf("read %s at %d: %w", cur.name, req.Offset, err)
	}
	if err := s.link.Send(DataReply{Data: data}); err != nil {
		return false, err
	}

	end := int64(req.Offset) + int64(len(data))
	if len(data) > 0 && end > cur.served {
		cur.served = end
		s.progress.Update(cur.served)
	}
	if cur.served >= cur.size && !cur.completed {
		return s.completeCurrent(cur), nil
	}
	return false, nil
}

func (s *Sender) handleNameRequest() (bool, error) {
	if !s.batch {
		s.logger.Warn().Msg("ignoring file name request in single file mode")
		return false, nil
	}

	// A repeated request before any size request means the reply was lost
	if cur := s.current; cur != nil && !cur.sized {
		s.logger.Debug().Str("file", cur.name).Msg("repeating file name")
		return false, s.link.Send(FileNameReply{Name: cur.name})
	}

	s.closeCurrent()
	var name string
	if len(s.queue) > 0 {
		name = s.queue[0]
		s.queue = s.queue[1:]
		s.current = &sourceState{name: name}
	}
	if err := s.link.Send(FileNameReply{Name: name}); err != nil {
		return false, err
	}
	if name == "" {
		s.logger.Info().Msg("batch complete")
		return true, nil
	}
	s.logger.Debug().Str("file", name).Msg("announced next file")
	return false, nil
}

// completeCurrent records that every byte of cur has been served. In single
// file mode that ends the transfer.
func (s *Sender) completeCurrent(cur *sourceState) bool {
	cur.completed = true
	p := s.progress.Complete()
	s.logger.Info().Str("file", cur.name).Int64("bytes", p.Transferred).Dur("elapsed", p.Elapsed).Msg("file sent")
	return !s.batch
}

func (s *Sender) openCurrent() (*sourceState, error) {
	cur := s.current
	if cur == nil {
		return nil, fmt.Errorf("%w: no file selected, request a file name first", ErrFileUnavailable)
	}
	if cur.file != nil {
		return cur, nil
	}

	f, err := s.source.Open(cur.name)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFileUnavailable, cur.name, err)
	}
	size := f.Size()
	if size > math.MaxUint32 {
		_ = f.Close()
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrFileTooLarge, cur.name, size)
	}
	cur.file = f
	cur.size = size

	if size <= s.config.Transfer.CacheThreshold {
		cache := make([]byte, size)
		if _, err := f.ReadAt(cache, 0); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("read %s: %w", cur.name, err)
		}
		cur.cache = cache
	}
	return cur, nil
}

func (s *Sender) closeCurrent() {
	if s.current == nil || s.current.file == nil {
		return
	}
	if err := s.current.file.Close(); err != nil {
		s.logger.Warn().Err(err).Str("file", s.current.name).Msg("failed to close source file")
	}
	s.current.file = nil
	s.current.cache = nil
}

func (s *Sender) setState(state SenderState) {
	s.state.Store(int32(state))
}

func (s *Sender) fail(err error) error {
	s.setState(SenderFailed)
	s.logger.Error().Err(err).Msg("send failed")
	return err
}

// read returns the bytes of [offset, offset+length) that exist in the file
func (c *sourceState) read(offset int64, length int) ([]byte, error) {
	if length == 0 || offset >= c.size {
		return []byte{}, nil
	}
	end := offset + int64(length)
	if end > c.size {
		end = c.size
	}
	if c.cache != nil {
		return c.cache[offset:end], nil
	}

	buf := make([]byte, end-offset)
	n, err := c.file.ReadAt(buf, offset)
	if err != nil && !(errors.Is(err, io.EOF) && n == len(buf)) {
		return nil, err
	}
	return buf[:n], nil
}
