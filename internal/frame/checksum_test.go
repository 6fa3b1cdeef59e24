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

import "testing"

func TestChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{
			name: "empty data",
			data: []byte{},
			want: 0,
		},
		{
			name: "single byte",
			data: []byte{0x42},
			want: 0x42,
		},
		{
			name: "carries past one byte",
			data: []byte{0xFF, 0x01},
			want: 0x0100,
		},
		{
			name: "request file size frame body",
			data: []byte{0x61, 0x02, 0x00, 0xAA, 0x55},
			want: 0x0162,
		},
		{
			name: "wraps at 16 bits",
			data: func() []byte {
				data := make([]byte, 258)
				for i := range data {
					data[i] = 0xFF
				}
				return data
			}(),
			want: uint16((258 * 0xFF) % 65536),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := Checksum(tt.data); got != tt.want {
				t.Errorf("Checksum() = 0x%04X, want 0x%04X", got, tt.want)
			}
		})
	}
}

func TestHeaderChecksum(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
		cmd     Command
	}{
		{name: "empty payload", cmd: CmdRequestFileName, payload: nil},
		{name: "short payload", cmd: CmdRequestData, payload: []byte{0x00, 0x00, 0x00, 0x00, 0x04, 0x00}},
		{name: "length above one byte", cmd: CmdSendData, payload: make([]byte, 300)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			raw, err := Encode(tt.cmd, tt.payload)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			want := Checksum(raw[:len(raw)-ChecksumSize])
			if got := HeaderChecksum(tt.cmd, tt.payload); got != want {
				t.Errorf("HeaderChecksum() = 0x%04X, want 0x%04X", got, want)
			}
		})
	}
}

func TestValidateChecksum(t *testing.T) {
	t.Parallel()
	valid, err := Encode(CmdReplyFileSize, []byte{0x0A, 0x00, 0x00, 0x00})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	corrupted := append([]byte(nil), valid...)
	corrupted[len(corrupted)-1] ^= 0x01

	tests := []struct {
		name string
		raw  []byte
		want bool
	}{
		{name: "valid frame", raw: valid, want: true},
		{name: "corrupted checksum", raw: corrupted, want: false},
		{name: "too short", raw: []byte{0x61, 0x00}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := ValidateChecksum(tt.raw); got != tt.want {
				t.Errorf("ValidateChecksum() = %v, want %v", got, tt.want)
			}
		})
	}
}
