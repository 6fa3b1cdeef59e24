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

import "sort"

// Chunk size bounds
const (
	MinChunkSize     = 512
	MaxChunkSize     = 16384
	DefaultChunkSize = 1024
)

// chunkTable maps a baud rate to the chunk size used at that rate. Rates
// between entries use the entry below them.
var chunkTable = []struct {
	baud  int
	chunk int
}{
	{115200, 1024},
	{460800, 1024},
	{921600, 2048},
	{1728000, 8192},
	{3000000, 8192},
}

// ChunkSizeForBaud returns the chunk size for a line speed. The result never
// decreases as the rate increases and always lies within [MinChunkSize,
// MaxChunkSize]. Rates above the table double the last entry per step beyond
// it.
func ChunkSizeForBaud(baud int) int {
	idx := sort.Search(len(chunkTable), func(i int) bool {
		return chunkTable[i].baud > baud
	}) - 1

	switch {
	case idx < 0:
		return clampChunk(chunkTable[0].chunk)
	case idx < len(chunkTable)-1:
		return clampChunk(chunkTable[idx].chunk)
	}

	last := chunkTable[len(chunkTable)-1]
	chunk := last.chunk
	for step := last.baud * 2; step <= baud && chunk < MaxChunkSize; step *= 2 {
		chunk *= 2
	}
	return clampChunk(chunk)
}

// NegotiateChunkSize returns the chunk both ends can use
func NegotiateChunkSize(senderChunk, receiverMax int) int {
	chunk := senderChunk
	if receiverMax > 0 && receiverMax < chunk {
		chunk = receiverMax
	}
	return clampChunk(chunk)
}

func clampChunk(chunk int) int {
	switch {
	case chunk < MinChunkSize:
		return MinChunkSize
	case chunk > MaxChunkSize:
		return MaxChunkSize
	default:
		return chunk
	}
}
