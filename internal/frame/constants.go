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

// Package frame provides the wire codec and protocol constants for serial file transfer
package frame

import "fmt"

// Command is the one-byte opcode at the start of every frame
type Command byte

// File transfer commands
const (
	CmdRequestFileName Command = 0x51 // Ask the sender for the next queued path
	CmdReplyFileName   Command = 0x52 // Length-prefixed relative path, empty when exhausted
	CmdRequestFileSize Command = 0x61 // Ask for the size of the current file
	CmdReplyFileSize   Command = 0x62 // u32 file size
	CmdRequestData     Command = 0x63 // u32 offset + u16 length
	CmdSendData        Command = 0x64 // Raw file bytes
)

// Probe and negotiation commands
const (
	CmdProbeRequest    Command = 0x41
	CmdProbeResponse   Command = 0x42
	CmdCapabilityNego  Command = 0x43
	CmdCapabilityAck   Command = 0x44
	CmdSwitchBaudRate  Command = 0x45
	CmdSwitchAck       Command = 0x46
	CmdConnectionReady Command = 0x47
)

// Frame layout
const (
	HeaderSize       = 3 // command + u16 length
	ChecksumSize     = 2
	Overhead         = HeaderSize + ChecksumSize
	MinFrameLength   = Overhead
	MaxPayloadLength = 0xFFFF
)

// FileSizeMarker is the fixed payload of REQUEST_FILE_SIZE
const FileSizeMarker uint16 = 0x55AA

var commandNames = map[Command]string{
	CmdRequestFileName: "REQUEST_FILE_NAME",
	CmdReplyFileName:   "REPLY_FILE_NAME",
	CmdRequestFileSize: "REQUEST_FILE_SIZE",
	CmdReplyFileSize:   "REPLY_FILE_SIZE",
	CmdRequestData:     "REQUEST_DATA",
	CmdSendData:        "SEND_DATA",
	CmdProbeRequest:    "PROBE_REQUEST",
	CmdProbeResponse:   "PROBE_RESPONSE",
	CmdCapabilityNego:  "CAPABILITY_NEGO",
	CmdCapabilityAck:   "CAPABILITY_ACK",
	CmdSwitchBaudRate:  "SWITCH_BAUDRATE",
	CmdSwitchAck:       "SWITCH_ACK",
	CmdConnectionReady: "CONNECTION_READY",
}

// String returns the protocol name of the command
func (c Command) String() string {
	if name, ok := commandNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN(0x%02X)", byte(c))
}

// Known reports whether the command belongs to the protocol's opcode set
func (c Command) Known() bool {
	_, ok := commandNames[c]
	return ok
}
