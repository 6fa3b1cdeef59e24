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
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-sft/internal/frame"
	"github.com/ZaparooProject/go-sft/internal/transport"
)

// ReceiverState is the state of a Receiver
type ReceiverState int32

// Receiver states
const (
	ReceiverIdle ReceiverState = iota
	ReceiverRequestingName
	ReceiverAwaitingName
	ReceiverRequestingSize
	ReceiverAwaitingSize
	ReceiverRequestingData
	ReceiverAwaitingData
	ReceiverDone
	ReceiverFailed
)

func (s ReceiverState) String() string {
	switch s {
	case ReceiverIdle:
		return "idle"
	case ReceiverRequestingName:
		return "requesting name"
	case ReceiverAwaitingName:
		return "awaiting name"
	case ReceiverRequestingSize:
		return "requesting size"
	case ReceiverAwaitingSize:
		return "awaiting size"
	case ReceiverRequestingData:
		return "requesting data"
	case ReceiverAwaitingData:
		return "awaiting data"
	case ReceiverDone:
		return "done"
	case ReceiverFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// TransferredFile describes one file moved by a session
type TransferredFile struct {
	// Name is the name the file was requested or announced under
	Name string
	// Path is where the sink stored it
	Path string
	Size int64
}

// Receiver drives the transfer: it requests the file size, then each chunk
// in order, and in batch mode the name of every file. At most one request
// is outstanding at a time.
type Receiver struct {
	link     *Link
	sink     FileSink
	config   *Config
	observer Observer
	progress *ProgressTracker
	rng      *rand.Rand
	logger   zerolog.Logger
	requests atomic.Uint64
	state    atomic.Int32
}

// NewReceiver creates a receiver writing into sink over link
func NewReceiver(link *Link, sink FileSink, opts ...Option) (*Receiver, error) {
	if link == nil || sink == nil {
		return nil, fmt.Errorf("%w: receiver needs a link and a file sink", ErrInvalidParameter)
	}
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return newReceiver(link, sink, config), nil
}

func newReceiver(link *Link, sink FileSink, config *Config) *Receiver {
	return &Receiver{
		link:     link,
		sink:     sink,
		config:   config,
		observer: config.Observer,
		progress: NewProgressTracker(config.Observer, config.Transfer.ProgressInterval),
		rng:      config.newRand(),
		logger:   config.Logger.With().Str("role", "receiver").Logger(),
	}
}

// State returns the current state. It is safe to call from any goroutine.
func (r *Receiver) State() ReceiverState {
	return ReceiverState(r.state.Load())
}

// DataRequests returns the number of distinct data requests issued so far.
// Retransmissions of the same request are not counted.
func (r *Receiver) DataRequests() uint64 {
	return r.requests.Load()
}

// ReceiveFile fetches the peer's single file and stores it under name
func (r *Receiver) ReceiveFile(ctx context.Context, name string) (TransferredFile, error) {
	rf, err := r.receiveFile(ctx, name)
	if err != nil {
		return rf, r.fail(err)
	}
	r.setState(ReceiverDone)
	return rf, nil
}

// ReceiveBatch fetches files until the sender announces an empty name
func (r *Receiver) ReceiveBatch(ctx context.Context) ([]TransferredFile, error) {
	var received []TransferredFile
	for {
		r.setState(ReceiverRequestingName)
		m, err := r.request(ctx, FileNameRequest{}, frame.CmdReplyFileName, r.config.Transfer.Retry.RetryTimeout)
		if err != nil {
			return received, r.fail(fmt.Errorf("request file name: %w", err))
		}

		name := m.(FileNameReply).Name
		if name == "" {
			r.logger.Info().Int("files", len(received)).Msg("batch complete")
			r.setState(ReceiverDone)
			return received, nil
		}
		if len(name) > r.config.Transfer.MaxFileNameLength {
			return received, r.fail(newProtocolError("receive batch", frame.CmdReplyFileName,
				"file name is %d bytes, limit is %d", len(name), r.config.Transfer.MaxFileNameLength))
		}

		rf, err := r.receiveFile(ctx, name)
		if err != nil {
			return received, r.fail(fmt.Errorf("%s: %w", name, err))
		}
		received = append(received, rf)
	}
}

func (r *Receiver) receiveFile(ctx context.Context, name string) (TransferredFile, error) {
	rf := TransferredFile{Name: name}

	r.setState(ReceiverRequestingSize)
	m, err := r.request(ctx, FileSizeRequest{}, frame.CmdReplyFileSize, r.config.Transfer.Retry.RetryTimeout)
	if err != nil {
		return rf, fmt.Errorf("request file size: %w", err)
	}
	size := int64(m.(FileSizeReply).Size)

	out, err := r.sink.Create(name)
	if err != nil {
		return rf, fmt.Errorf("create %s: %w", name, err)
	}
	rf.Path = out.Path()

	r.logger.Info().Str("file", name).Str("path", rf.Path).Int64("size", size).Msg("receiving file")
	r.progress.Start(name, size)

	written, err := r.fetch(ctx, out, size)
	rf.Size = written
	if closeErr := out.Close(); closeErr != nil && err == nil {
		err = fmt.Errorf("close %s: %w", rf.Path, closeErr)
	}
	if err != nil {
		r.logger.Warn().Str("path", rf.Path).Int64("written", written).Msg("partial file kept")
		return rf, err
	}

	p := r.progress.Complete()
	r.logger.Info().Str("file", name).Int64("bytes", written).Dur("elapsed", p.Elapsed).
		Float64("rate", p.Rate).Msg("file received")
	return rf, nil
}

// fetch requests every chunk of a size-byte file in order and appends it to
// out. It issues exactly ceil(size/chunk) distinct data requests.
func (r *Receiver) fetch(ctx context.Context, out SinkFile, size int64) (int64, error) {
	chunk := int64(r.config.Transfer.ChunkSize)
	timeout := r.config.Transfer.replyTimeout(int(chunk), r.baudRate())

	var offset int64
	for offset < size {
		length := min(size-offset, chunk)
		req := DataRequest{Offset: uint32(offset), Length: uint16(length)}

		r.setState(ReceiverRequestingData)
		r.requests.Add(1)
		m, err := r.request(ctx, req, frame.CmdSendData, timeout)
		if err != nil {
			return offset, fmt.Errorf("request data at %d: %w", offset, err)
		}

		data := m.(DataReply).Data
		if int64(len(data)) != length {
			return offset, newProtocolError("receive data", frame.CmdSendData,
				"requested %d bytes at offset %d, got %d", length, offset, len(data))
		}
		if _, err := out.Write(data); err != nil {
			return offset, fmt.Errorf("write %s: %w", out.Path(), err)
		}

		offset += length
		r.progress.Update(offset)
	}
	return offset, nil
}

// request sends req and waits for a reply carrying want, repeating the same
// request on timeout according to the transfer retry policy
func (r *Receiver) request(ctx context.Context, req Message, want frame.Command, timeout time.Duration) (Message, error) {
	awaiting := r.awaitingState(req)
	onRetry := func(attempt int, delay time.Duration, cause error) error {
		r.logger.Debug().Err(cause).Stringer("cmd", req.Command()).Int("attempt", attempt+1).
			Dur("backoff", delay).Msg("request timed out, retrying")
		r.observer.emit(Event{
			Type: EventRequestRetry, Phase: PhaseTransfer, Command: req.Command(),
			Attempt: attempt + 1, Err: cause,
		})
		return nil
	}
	config := retryEngineConfig(r.config.Transfer.Retry, req.Command().String(), r.rng, onRetry)

	return transport.WithRetry(ctx, config, func(int) (Message, bool, error) {
		// Anything still queued answers an earlier attempt
		if n := r.link.Discard(); n > 0 {
			r.logger.Debug().Int("frames", n).Msg("discarded stale frames before request")
		}
		if err := r.link.Send(req); err != nil {
			return nil, IsRetryable(err), err
		}

		r.setState(awaiting)
		m, err := r.link.Expect(ctx, timeout,
			func(m Message) bool { return m.Command() == want },
			func(m Message) { r.skip(m, want) })
		if err != nil {
			return nil, IsRetryable(err), err
		}
		return m, false, nil
	})
}

func (r *Receiver) skip(m Message, want frame.Command) {
	if u, ok := m.(UnknownCommand); ok {
		r.logger.Warn().Stringer("cmd", u.Code).Msg("unknown command")
		r.observer.emit(Event{
			Type: EventUnknownCommand, Phase: PhaseTransfer, Command: u.Code,
			Err: fmt.Errorf("%w: %s", ErrUnknownCommand, u.Code),
		})
		return
	}
	r.logger.Debug().Stringer("cmd", m.Command()).Stringer("want", want).Msg("ignoring unexpected frame")
}

func (*Receiver) awaitingState(req Message) ReceiverState {
	switch req.(type) {
	case FileNameRequest:
		return ReceiverAwaitingName
	case FileSizeRequest:
		return ReceiverAwaitingSize
	default:
		return ReceiverAwaitingData
	}
}

func (r *Receiver) baudRate() int {
	return r.link.Transport().BaudRate()
}

func (r *Receiver) setState(state ReceiverState) {
	r.state.Store(int32(state))
}

func (r *Receiver) fail(err error) error {
	r.setState(ReceiverFailed)
	r.logger.Error().Err(err).Msg("receive failed")
	return err
}
