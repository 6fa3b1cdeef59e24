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
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZaparooProject/go-sft/internal/frame"
)

// chunkReader hands out queued chunks and reports a timeout (0, nil) when idle
type chunkReader struct {
	chunks chan []byte
	err    error
}

func newChunkReader() *chunkReader {
	return &chunkReader{chunks: make(chan []byte, 64)}
}

func (r *chunkReader) Read(p []byte) (int, error) {
	select {
	case chunk, ok := <-r.chunks:
		if !ok {
			if r.err != nil {
				return 0, r.err
			}
			return 0, io.EOF
		}
		return copy(p, chunk), nil
	case <-time.After(5 * time.Millisecond):
		return 0, nil
	}
}

func encode(t *testing.T, cmd frame.Command, payload []byte) []byte {
	t.Helper()
	raw, err := frame.Encode(cmd, payload)
	require.NoError(t, err)
	return raw
}

func receive(t *testing.T, p *Pump) Received {
	t.Helper()
	select {
	case r := <-p.Frames():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Received{}
	}
}

func TestPump_PreservesOrder(t *testing.T) {
	t.Parallel()

	reader := newChunkReader()
	p := NewPump(reader, DefaultPumpConfig())
	p.Start()
	defer p.Stop()

	first := encode(t, frame.CmdRequestFileSize, []byte{0xAA, 0x55})
	second := encode(t, frame.CmdRequestData, []byte{0, 0, 0, 0, 4, 0})
	stream := append(append([]byte(nil), first...), second...)

	// Split the stream at an awkward boundary
	reader.chunks <- stream[:4]
	reader.chunks <- stream[4:]

	assert.Equal(t, frame.CmdRequestFileSize, receive(t, p).Frame.Command)
	assert.Equal(t, frame.CmdRequestData, receive(t, p).Frame.Command)
	assert.Equal(t, uint64(2), p.Stats().FramesReceived)
}

func TestPump_DiscardsCorruptFrames(t *testing.T) {
	t.Parallel()

	var discards []error
	config := DefaultPumpConfig()
	config.StaleAfter = 20 * time.Millisecond
	config.OnDiscard = func(err error) { discards = append(discards, err) }

	reader := newChunkReader()
	p := NewPump(reader, config)

	bad := encode(t, frame.CmdSwitchAck, []byte{1, 2, 3, 4})
	bad[len(bad)-1] ^= 0xFF
	good := encode(t, frame.CmdConnectionReady, []byte{1, 2, 3, 4})
	reader.chunks <- append(bad, good...)

	p.Start()
	defer p.Stop()

	assert.Equal(t, frame.CmdConnectionReady, receive(t, p).Frame.Command)
	assert.NotZero(t, p.Stats().FramesDiscarded)
	require.NotEmpty(t, discards)
}

func TestPump_DropsOldestWhenFull(t *testing.T) {
	t.Parallel()

	reader := newChunkReader()
	p := NewPump(reader, PumpConfig{QueueSize: 2, MaxPayload: 64})

	var stream []byte
	for i := byte(0); i < 4; i++ {
		stream = append(stream, encode(t, frame.CmdSendData, []byte{i})...)
	}
	reader.chunks <- stream

	p.Start()
	defer p.Stop()

	require.Eventually(t, func() bool {
		return p.Stats().FramesReceived == 4
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, []byte{2}, receive(t, p).Frame.Payload)
	assert.Equal(t, []byte{3}, receive(t, p).Frame.Payload)
	assert.Equal(t, uint64(2), p.Stats().FramesDropped)
}

func TestPump_ResetAdvancesGeneration(t *testing.T) {
	t.Parallel()

	reader := newChunkReader()
	p := NewPump(reader, DefaultPumpConfig())
	p.Start()
	defer p.Stop()

	raw := encode(t, frame.CmdSwitchAck, []byte{1, 2, 3, 4})
	reader.chunks <- raw[:3]
	require.Eventually(t, func() bool {
		return p.Stats().BytesRead == 3
	}, 2*time.Second, 5*time.Millisecond)

	gen := p.Reset()
	assert.Equal(t, uint64(1), gen)

	// The tail of the old frame is now garbage; a fresh frame must still decode
	reader.chunks <- raw[3:]
	reader.chunks <- raw
	r := receive(t, p)
	assert.Equal(t, frame.CmdSwitchAck, r.Frame.Command)
	assert.Equal(t, gen, r.Generation)
}

func TestPump_ReadErrorEndsLoop(t *testing.T) {
	t.Parallel()

	reader := newChunkReader()
	reader.err = errors.New("device unplugged")
	p := NewPump(reader, DefaultPumpConfig())
	p.Start()
	close(reader.chunks)

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pump did not stop")
	}
	require.EqualError(t, p.Err(), "device unplugged")
	assert.Equal(t, uint64(1), p.Stats().ReadErrors)
}
