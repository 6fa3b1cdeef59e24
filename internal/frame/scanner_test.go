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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustEncode(t *testing.T, cmd Command, payload []byte) []byte {
	t.Helper()
	raw, err := Encode(cmd, payload)
	require.NoError(t, err)
	return raw
}

func TestScanner_SplitAcrossReads(t *testing.T) {
	t.Parallel()

	raw := mustEncode(t, CmdSendData, []byte("ABCD"))
	s := NewScanner(0)

	for i, b := range raw {
		s.Feed([]byte{b})
		f, err := s.Next()
		if i < len(raw)-1 {
			require.ErrorIs(t, err, ErrTruncated)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, CmdSendData, f.Command)
		assert.Equal(t, []byte("ABCD"), f.Payload)
	}
	assert.Zero(t, s.Buffered())
}

func TestScanner_BackToBackFrames(t *testing.T) {
	t.Parallel()

	s := NewScanner(0)
	s.Feed(mustEncode(t, CmdRequestFileSize, []byte{0xAA, 0x55}))
	s.Feed(mustEncode(t, CmdReplyFileSize, []byte{0x0A, 0x00, 0x00, 0x00}))

	first, err := s.Next()
	require.NoError(t, err)
	second, err := s.Next()
	require.NoError(t, err)
	_, err = s.Next()
	require.ErrorIs(t, err, ErrTruncated)

	assert.Equal(t, CmdRequestFileSize, first.Command)
	assert.Equal(t, CmdReplyFileSize, second.Command)
}

func TestScanner_ResyncAfterGarbage(t *testing.T) {
	t.Parallel()

	s := NewScanner(1024)
	s.Feed([]byte{0x13, 0x37, 0xFF})
	s.Feed(mustEncode(t, CmdSwitchAck, []byte{0x01, 0x02, 0x03, 0x04}))

	var discarded int
	for {
		f, err := s.Next()
		if err == nil {
			assert.Equal(t, CmdSwitchAck, f.Command)
			break
		}
		require.NotErrorIs(t, err, ErrTruncated, "scanner stalled with %d bytes", s.Buffered())
		discarded++
	}
	assert.Equal(t, 3, discarded)
	assert.Equal(t, 3, s.Dropped())
}

func TestScanner_OversizedLengthDropped(t *testing.T) {
	t.Parallel()

	s := NewScanner(16)
	s.Feed([]byte{0x64, 0xFF, 0xFF, 0x00, 0x00})

	_, err := s.Next()
	require.ErrorIs(t, err, ErrMalformed)
	assert.Equal(t, 4, s.Buffered())
}

func TestScanner_Reset(t *testing.T) {
	t.Parallel()

	s := NewScanner(0)
	s.Feed([]byte{0x64, 0x10})
	s.Reset()
	assert.Zero(t, s.Buffered())
}
