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

import "sync"

// ReadBufferSize is the size of buffers handed out by GetBuffer
const ReadBufferSize = 4096

var readBufferPool = sync.Pool{
	New: func() any {
		buf := make([]byte, ReadBufferSize)
		return &buf
	},
}

// GetBuffer returns a read buffer of ReadBufferSize bytes from the pool
func GetBuffer() []byte {
	bufPtr, ok := readBufferPool.Get().(*[]byte)
	if !ok {
		return make([]byte, ReadBufferSize)
	}
	return (*bufPtr)[:ReadBufferSize]
}

// PutBuffer returns a buffer obtained from GetBuffer to the pool
func PutBuffer(buf []byte) {
	if cap(buf) < ReadBufferSize {
		return
	}
	buf = buf[:ReadBufferSize]
	readBufferPool.Put(&buf)
}
