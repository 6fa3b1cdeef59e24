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
	"fmt"
)

// Scanner extracts frames from a byte stream. Bytes that cannot start a valid
// frame are dropped one at a time until the stream resynchronises.
//
// Scanner is not safe for concurrent use.
type Scanner struct {
	buf        []byte
	maxPayload int
	dropped    int
}

// NewScanner returns a scanner that rejects frames declaring more than
// maxPayload bytes. A non-positive limit means MaxPayloadLength.
func NewScanner(maxPayload int) *Scanner {
	if maxPayload <= 0 || maxPayload > MaxPayloadLength {
		maxPayload = MaxPayloadLength
	}
	return &Scanner{maxPayload: maxPayload}
}

// Feed appends received bytes to the scan buffer
func (s *Scanner) Feed(p []byte) {
	s.buf = append(s.buf, p...)
}

// Next returns the next complete frame. ErrTruncated means the buffer holds no
// complete frame yet; ErrChecksumMismatch and ErrMalformed mean one byte was
// discarded and Next may be called again. The returned payload is a copy.
func (s *Scanner) Next() (Frame, error) {
	if len(s.buf) < MinFrameLength {
		return Frame{}, ErrTruncated
	}

	length := int(binary.LittleEndian.Uint16(s.buf[1:3]))
	if length > s.maxPayload {
		s.drop(1)
		return Frame{}, fmt.Errorf("%w: declared length %d exceeds limit %d", ErrMalformed, length, s.maxPayload)
	}

	total := Overhead + length
	if len(s.buf) < total {
		return Frame{}, ErrTruncated
	}

	f, err := Decode(s.buf[:total])
	if err != nil {
		s.drop(1)
		return Frame{}, err
	}

	payload := make([]byte, len(f.Payload))
	copy(payload, f.Payload)
	f.Payload = payload
	s.consume(total)
	return f, nil
}

// Buffered returns the number of bytes waiting to be scanned
func (s *Scanner) Buffered() int {
	return len(s.buf)
}

// Dropped returns the number of bytes discarded while resynchronising
func (s *Scanner) Dropped() int {
	return s.dropped
}

// Skip discards up to n buffered bytes
func (s *Scanner) Skip(n int) {
	if n > len(s.buf) {
		n = len(s.buf)
	}
	s.drop(n)
}

// Reset discards all buffered bytes
func (s *Scanner) Reset() {
	s.buf = s.buf[:0]
}

func (s *Scanner) drop(n int) {
	s.dropped += n
	s.consume(n)
}

func (s *Scanner) consume(n int) {
	remaining := copy(s.buf, s.buf[n:])
	s.buf = s.buf[:remaining]
}
