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
	"encoding/binary"
	"errors"
	"sync"

	"github.com/ZaparooProject/go-sft/internal/frame"
)

// BuildFrame encodes a frame and panics on an oversized payload
func BuildFrame(cmd frame.Command, payload []byte) []byte {
	raw, err := frame.Encode(cmd, payload)
	if err != nil {
		panic(err)
	}
	return raw
}

// BuildFileSizeRequest creates a REQUEST_FILE_SIZE frame
func BuildFileSizeRequest() []byte {
	return BuildFrame(frame.CmdRequestFileSize, binary.LittleEndian.AppendUint16(nil, frame.FileSizeMarker))
}

// BuildFileSizeReply creates a REPLY_FILE_SIZE frame
func BuildFileSizeReply(size uint32) []byte {
	return BuildFrame(frame.CmdReplyFileSize, binary.LittleEndian.AppendUint32(nil, size))
}

// BuildDataRequest creates a REQUEST_DATA frame
func BuildDataRequest(offset uint32, length uint16) []byte {
	payload := binary.LittleEndian.AppendUint32(nil, offset)
	payload = binary.LittleEndian.AppendUint16(payload, length)
	return BuildFrame(frame.CmdRequestData, payload)
}

// BuildDataReply creates a SEND_DATA frame
func BuildDataReply(data []byte) []byte {
	return BuildFrame(frame.CmdSendData, data)
}

// BuildFileNameRequest creates a REQUEST_FILE_NAME frame
func BuildFileNameRequest() []byte {
	return BuildFrame(frame.CmdRequestFileName, nil)
}

// BuildFileNameReply creates a REPLY_FILE_NAME frame
func BuildFileNameReply(name string) []byte {
	payload := binary.LittleEndian.AppendUint16(nil, uint16(len(name)))
	return BuildFrame(frame.CmdReplyFileName, append(payload, name...))
}

// FrameRecorder decodes the frames passing through a write hook
type FrameRecorder struct {
	scanner *frame.Scanner
	frames  []frame.Frame
	mu      sync.Mutex
}

// NewFrameRecorder creates an empty recorder
func NewFrameRecorder() *FrameRecorder {
	return &FrameRecorder{scanner: frame.NewScanner(frame.MaxPayloadLength)}
}

// Hook returns a WriteHook that records frames and passes writes through,
// then through next if set
func (r *FrameRecorder) Hook(next WriteHook) WriteHook {
	return func(p []byte) []byte {
		r.record(p)
		if next != nil {
			return next(p)
		}
		return p
	}
}

func (r *FrameRecorder) record(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scanner.Feed(p)
	for r.scanner.Buffered() > 0 {
		f, err := r.scanner.Next()
		if err != nil {
			if errors.Is(err, frame.ErrTruncated) {
				return
			}
			continue
		}
		r.frames = append(r.frames, f)
	}
}

// Frames returns the recorded frames in order
func (r *FrameRecorder) Frames() []frame.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]frame.Frame(nil), r.frames...)
}

// Count returns how many frames carried cmd
func (r *FrameRecorder) Count(cmd frame.Command) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, f := range r.frames {
		if f.Command == cmd {
			n++
		}
	}
	return n
}

// Commands returns the command of every recorded frame
func (r *FrameRecorder) Commands() []frame.Command {
	r.mu.Lock()
	defer r.mu.Unlock()
	cmds := make([]frame.Command, len(r.frames))
	for i, f := range r.frames {
		cmds[i] = f.Command
	}
	return cmds
}
