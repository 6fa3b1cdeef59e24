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

package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Decode errors. Truncated means more bytes may still complete the frame;
// the other two mean the bytes at hand can never form a valid frame.
var (
	ErrTruncated        = errors.New("frame: truncated")
	ErrChecksumMismatch = errors.New("frame: checksum mismatch")
	ErrMalformed        = errors.New("frame: malformed")
	ErrPayloadTooLarge  = errors.New("frame: payload too large")
)

// Frame is one decoded wire unit
type Frame struct {
	Payload  []byte
	Checksum uint16
	Command  Command
}

// Len returns the encoded size of the frame in bytes
func (f Frame) Len() int {
	return Overhead + len(f.Payload)
}

// Encode builds the wire bytes for cmd and payload
func Encode(cmd Command, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadLength {
		return nil, fmt.Errorf("%w: %d bytes", ErrPayloadTooLarge, len(payload))
	}

	buf := make([]byte, Overhead+len(payload))
	buf[0] = byte(cmd)
	binary.LittleEndian.PutUint16(buf[1:3], uint16(len(payload)))
	copy(buf[HeaderSize:], payload)
	binary.LittleEndian.PutUint16(buf[HeaderSize+len(payload):], HeaderChecksum(cmd, payload))
	return buf, nil
}

// Decode parses exactly one frame from raw. The buffer must hold the whole
// frame and nothing else. The returned payload aliases raw.
func Decode(raw []byte) (Frame, error) {
	if len(raw) < MinFrameLength {
		return Frame{}, fmt.Errorf("%w: have %d bytes, need at least %d", ErrTruncated, len(raw), MinFrameLength)
	}

	length := int(binary.LittleEndian.Uint16(raw[1:3]))
	total := Overhead + length
	switch {
	case len(raw) < total:
		return Frame{}, fmt.Errorf("%w: have %d bytes, need %d", ErrTruncated, len(raw), total)
	case len(raw) > total:
		return Frame{}, fmt.Errorf("%w: length field %d leaves %d trailing bytes",
			ErrMalformed, length, len(raw)-total)
	}

	want := binary.LittleEndian.Uint16(raw[HeaderSize+length:])
	if !ValidateChecksum(raw) {
		return Frame{}, fmt.Errorf("%w: got 0x%04X, want 0x%04X",
			ErrChecksumMismatch, Checksum(raw[:HeaderSize+length]), want)
	}

	return Frame{
		Command:  Command(raw[0]),
		Payload:  raw[HeaderSize : HeaderSize+length],
		Checksum: want,
	}, nil
}

// IsFrameError reports whether err is one of the codec's decode errors
func IsFrameError(err error) bool {
	return errors.Is(err, ErrTruncated) ||
		errors.Is(err, ErrChecksumMismatch) ||
		errors.Is(err, ErrMalformed)
}
