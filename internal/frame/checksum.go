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

// Checksum returns the 16-bit additive checksum of data
func Checksum(data []byte) uint16 {
	var sum uint16
	for _, b := range data {
		sum += uint16(b)
	}
	return sum
}

// HeaderChecksum returns the checksum of a frame built from its parts without
// materialising the header bytes
func HeaderChecksum(cmd Command, payload []byte) uint16 {
	length := len(payload)
	sum := uint16(cmd) + uint16(length&0xFF) + uint16(length>>8&0xFF)
	return sum + Checksum(payload)
}

// ValidateChecksum reports whether the trailing checksum of a complete frame
// matches the bytes that precede it
func ValidateChecksum(raw []byte) bool {
	if len(raw) < Overhead {
		return false
	}
	body := raw[:len(raw)-ChecksumSize]
	want := uint16(raw[len(raw)-2]) | uint16(raw[len(raw)-1])<<8
	return Checksum(body) == want
}
