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

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sft/internal/frame"
)

// ErrInvalidPayload reports a payload whose layout does not match its command
var ErrInvalidPayload = errors.New("invalid payload")

// TransferMode says whether a session moves one file or a directory tree
type TransferMode uint8

// Transfer modes
const (
	ModeSingle TransferMode = 1
	ModeBatch  TransferMode = 2
)

func (m TransferMode) String() string {
	switch m {
	case ModeSingle:
		return "single"
	case ModeBatch:
		return "batch"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Message is a decoded frame payload. The set of implementations is closed:
// every protocol opcode has one, and anything else decodes to UnknownCommand.
type Message interface {
	Command() frame.Command
	MarshalBinary() ([]byte, error)
	isMessage()
}

// FileSizeRequest asks for the size of the current file
type FileSizeRequest struct{}

// FileSizeReply carries the size of the current file
type FileSizeReply struct {
	Size uint32
}

// DataRequest asks for Length bytes starting at Offset
type DataRequest struct {
	Offset uint32
	Length uint16
}

// DataReply carries the requested bytes, fewer at end of file
type DataReply struct {
	Data []byte
}

// FileNameRequest asks for the next queued path
type FileNameRequest struct{}

// FileNameReply carries the next relative path; empty ends the batch
type FileNameReply struct {
	Name string
}

// ProbeRequest announces an initiator during discovery
type ProbeRequest struct {
	DeviceID uint32
	Seed     uint32
	Version  uint8
}

// ProbeResponse answers a probe with the responder's supported baud rates
type ProbeResponse struct {
	BaudRates []uint32
	DeviceID  uint32
	Seed      uint32
	Version   uint8
}

// CapabilityNego proposes the transfer parameters
type CapabilityNego struct {
	RootPath  string
	TotalSize uint64
	SessionID uint32
	FileCount uint32
	BaudRate  uint32
	ChunkSize uint16
	Mode      TransferMode
	// HasRootPath controls whether the optional root path field is encoded
	HasRootPath bool
}

// CapabilityAck accepts or rejects a proposal. ChunkSize, when non-zero, is
// the largest chunk the responder accepts.
type CapabilityAck struct {
	SessionID uint32
	ChunkSize uint16
	Accepted  bool
}

// SwitchBaudRate schedules both ends to change speed DelayMS after the ack
type SwitchBaudRate struct {
	SessionID uint32
	BaudRate  uint32
	DelayMS   uint16
}

// SwitchAck confirms a scheduled switch
type SwitchAck struct {
	SessionID uint32
}

// ConnectionReady verifies the link at the new speed
type ConnectionReady struct {
	SessionID uint32
}

// UnknownCommand holds a well-formed frame whose opcode is not part of the protocol
type UnknownCommand struct {
	Payload []byte
	Code    frame.Command
}

func (FileSizeRequest) isMessage() {}
func (FileSizeReply) isMessage()   {}
func (DataRequest) isMessage()     {}
func (DataReply) isMessage()       {}
func (FileNameRequest) isMessage() {}
func (FileNameReply) isMessage()   {}
func (ProbeRequest) isMessage()    {}
func (ProbeResponse) isMessage()   {}
func (CapabilityNego) isMessage()  {}
func (CapabilityAck) isMessage()   {}
func (SwitchBaudRate) isMessage()  {}
func (SwitchAck) isMessage()       {}
func (ConnectionReady) isMessage() {}
func (UnknownCommand) isMessage()  {}

// Command implementations
func (FileSizeRequest) Command() frame.Command  { return frame.CmdRequestFileSize }
func (FileSizeReply) Command() frame.Command    { return frame.CmdReplyFileSize }
func (DataRequest) Command() frame.Command      { return frame.CmdRequestData }
func (DataReply) Command() frame.Command        { return frame.CmdSendData }
func (FileNameRequest) Command() frame.Command  { return frame.CmdRequestFileName }
func (FileNameReply) Command() frame.Command    { return frame.CmdReplyFileName }
func (ProbeRequest) Command() frame.Command     { return frame.CmdProbeRequest }
func (ProbeResponse) Command() frame.Command    { return frame.CmdProbeResponse }
func (CapabilityNego) Command() frame.Command   { return frame.CmdCapabilityNego }
func (CapabilityAck) Command() frame.Command    { return frame.CmdCapabilityAck }
func (SwitchBaudRate) Command() frame.Command   { return frame.CmdSwitchBaudRate }
func (SwitchAck) Command() frame.Command        { return frame.CmdSwitchAck }
func (ConnectionReady) Command() frame.Command  { return frame.CmdConnectionReady }
func (m UnknownCommand) Command() frame.Command { return m.Code }

// MarshalBinary implementations

func (FileSizeRequest) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint16(nil, frame.FileSizeMarker), nil
}

func (m FileSizeReply) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint32(nil, m.Size), nil
}

func (m DataRequest) MarshalBinary() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint32(make([]byte, 0, 6), m.Offset)
	return binary.LittleEndian.AppendUint16(buf, m.Length), nil
}

func (m DataReply) MarshalBinary() ([]byte, error) {
	return m.Data, nil
}

func (FileNameRequest) MarshalBinary() ([]byte, error) {
	return nil, nil
}

func (m FileNameReply) MarshalBinary() ([]byte, error) {
	return appendString(nil, m.Name)
}

func (m ProbeRequest) MarshalBinary() ([]byte, error) {
	return appendProbeHeader(make([]byte, 0, 9), m.DeviceID, m.Version, m.Seed), nil
}

func (m ProbeResponse) MarshalBinary() ([]byte, error) {
	if len(m.BaudRates) > 0xFFFF {
		return nil, fmt.Errorf("%w: %d baud rates", ErrInvalidPayload, len(m.BaudRates))
	}
	buf := appendProbeHeader(make([]byte, 0, 11+4*len(m.BaudRates)), m.DeviceID, m.Version, m.Seed)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(m.BaudRates)))
	for _, baud := range m.BaudRates {
		buf = binary.LittleEndian.AppendUint32(buf, baud)
	}
	return buf, nil
}

func (m CapabilityNego) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 0, 25+len(m.RootPath))
	buf = binary.LittleEndian.AppendUint32(buf, m.SessionID)
	buf = append(buf, byte(m.Mode))
	buf = binary.LittleEndian.AppendUint32(buf, m.FileCount)
	buf = binary.LittleEndian.AppendUint64(buf, m.TotalSize)
	buf = binary.LittleEndian.AppendUint32(buf, m.BaudRate)
	buf = binary.LittleEndian.AppendUint16(buf, m.ChunkSize)
	if !m.HasRootPath {
		return buf, nil
	}
	return appendString(buf, m.RootPath)
}

func (m CapabilityAck) MarshalBinary() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint32(make([]byte, 0, 7), m.SessionID)
	status := byte(0)
	if m.Accepted {
		status = 1
	}
	buf = append(buf, status)
	if m.ChunkSize != 0 {
		buf = binary.LittleEndian.AppendUint16(buf, m.ChunkSize)
	}
	return buf, nil
}

func (m SwitchBaudRate) MarshalBinary() ([]byte, error) {
	buf := binary.LittleEndian.AppendUint32(make([]byte, 0, 10), m.SessionID)
	buf = binary.LittleEndian.AppendUint32(buf, m.BaudRate)
	return binary.LittleEndian.AppendUint16(buf, m.DelayMS), nil
}

func (m SwitchAck) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint32(nil, m.SessionID), nil
}

func (m ConnectionReady) MarshalBinary() ([]byte, error) {
	return binary.LittleEndian.AppendUint32(nil, m.SessionID), nil
}

func (m UnknownCommand) MarshalBinary() ([]byte, error) {
	return m.Payload, nil
}

// EncodeMessage builds the wire frame for m
func EncodeMessage(m Message) ([]byte, error) {
	payload, err := m.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", m.Command(), err)
	}
	raw, err := frame.Encode(m.Command(), payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.Command(), err)
	}
	return raw, nil
}

// ParseMessage decodes the payload of f according to its command. Opcodes
// outside the protocol yield UnknownCommand without error.
func ParseMessage(f frame.Frame) (Message, error) {
	p := f.Payload
	switch f.Command {
	case frame.CmdRequestFileSize:
		if len(p) != 2 || binary.LittleEndian.Uint16(p) != frame.FileSizeMarker {
			return nil, payloadError(f, "want marker 0x%04X", frame.FileSizeMarker)
		}
		return FileSizeRequest{}, nil
	case frame.CmdReplyFileSize:
		if len(p) != 4 {
			return nil, payloadError(f, "want 4 bytes")
		}
		return FileSizeReply{Size: binary.LittleEndian.Uint32(p)}, nil
	case frame.CmdRequestData:
		if len(p) != 6 {
			return nil, payloadError(f, "want 6 bytes")
		}
		return DataRequest{
			Offset: binary.LittleEndian.Uint32(p[0:4]),
			Length: binary.LittleEndian.Uint16(p[4:6]),
		}, nil
	case frame.CmdSendData:
		return DataReply{Data: p}, nil
	case frame.CmdRequestFileName:
		return FileNameRequest{}, nil
	case frame.CmdReplyFileName:
		name, rest, err := readString(p)
		if err != nil || len(rest) != 0 {
			return nil, payloadError(f, "bad length-prefixed name")
		}
		return FileNameReply{Name: name}, nil
	case frame.CmdProbeRequest:
		if len(p) != 9 {
			return nil, payloadError(f, "want 9 bytes")
		}
		deviceID, version, seed := readProbeHeader(p)
		return ProbeRequest{DeviceID: deviceID, Version: version, Seed: seed}, nil
	case frame.CmdProbeResponse:
		return parseProbeResponse(f)
	case frame.CmdCapabilityNego:
		return parseCapabilityNego(f)
	case frame.CmdCapabilityAck:
		if len(p) != 5 && len(p) != 7 {
			return nil, payloadError(f, "want 5 or 7 bytes")
		}
		ack := CapabilityAck{
			SessionID: binary.LittleEndian.Uint32(p[0:4]),
			Accepted:  p[4] != 0,
		}
		if len(p) == 7 {
			ack.ChunkSize = binary.LittleEndian.Uint16(p[5:7])
		}
		return ack, nil
	case frame.CmdSwitchBaudRate:
		if len(p) != 10 {
			return nil, payloadError(f, "want 10 bytes")
		}
		return SwitchBaudRate{
			SessionID: binary.LittleEndian.Uint32(p[0:4]),
			BaudRate:  binary.LittleEndian.Uint32(p[4:8]),
			DelayMS:   binary.LittleEndian.Uint16(p[8:10]),
		}, nil
	case frame.CmdSwitchAck:
		if len(p) != 4 {
			return nil, payloadError(f, "want 4 bytes")
		}
		return SwitchAck{SessionID: binary.LittleEndian.Uint32(p)}, nil
	case frame.CmdConnectionReady:
		if len(p) != 4 {
			return nil, payloadError(f, "want 4 bytes")
		}
		return ConnectionReady{SessionID: binary.LittleEndian.Uint32(p)}, nil
	default:
		return UnknownCommand{Code: f.Command, Payload: p}, nil
	}
}

func parseProbeResponse(f frame.Frame) (Message, error) {
	p := f.Payload
	if len(p) < 11 {
		return nil, payloadError(f, "want at least 11 bytes")
	}
	deviceID, version, seed := readProbeHeader(p)
	count := int(binary.LittleEndian.Uint16(p[9:11]))
	if len(p) != 11+4*count {
		return nil, payloadError(f, "baud rate count %d does not match %d bytes", count, len(p)-11)
	}
	rates := make([]uint32, count)
	for i := range rates {
		rates[i] = binary.LittleEndian.Uint32(p[11+4*i:])
	}
	return ProbeResponse{DeviceID: deviceID, Version: version, Seed: seed, BaudRates: rates}, nil
}

func parseCapabilityNego(f frame.Frame) (Message, error) {
	p := f.Payload
	const fixed = 23
	if len(p) < fixed {
		return nil, payloadError(f, "want at least %d bytes", fixed)
	}
	nego := CapabilityNego{
		SessionID: binary.LittleEndian.Uint32(p[0:4]),
		Mode:      TransferMode(p[4]),
		FileCount: binary.LittleEndian.Uint32(p[5:9]),
		TotalSize: binary.LittleEndian.Uint64(p[9:17]),
		BaudRate:  binary.LittleEndian.Uint32(p[17:21]),
		ChunkSize: binary.LittleEndian.Uint16(p[21:23]),
	}
	if len(p) == fixed {
		return nego, nil
	}
	root, rest, err := readString(p[fixed:])
	if err != nil || len(rest) != 0 {
		return nil, payloadError(f, "bad root path")
	}
	nego.RootPath = root
	nego.HasRootPath = true
	return nego, nil
}

func appendProbeHeader(buf []byte, deviceID uint32, version uint8, seed uint32) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, deviceID)
	buf = append(buf, version)
	return binary.LittleEndian.AppendUint32(buf, seed)
}

func readProbeHeader(p []byte) (deviceID uint32, version uint8, seed uint32) {
	return binary.LittleEndian.Uint32(p[0:4]), p[4], binary.LittleEndian.Uint32(p[5:9])
}

func appendString(buf []byte, s string) ([]byte, error) {
	if len(s) > 0xFFFF {
		return nil, fmt.Errorf("%w: string of %d bytes", ErrInvalidPayload, len(s))
	}
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...), nil
}

func readString(p []byte) (s string, rest []byte, err error) {
	if len(p) < 2 {
		return "", nil, ErrInvalidPayload
	}
	n := int(binary.LittleEndian.Uint16(p))
	if len(p) < 2+n {
		return "", nil, ErrInvalidPayload
	}
	return string(p[2 : 2+n]), p[2+n:], nil
}

func payloadError(f frame.Frame, format string, args ...any) error {
	return fmt.Errorf("%w: %s with %d byte payload: %s",
		ErrInvalidPayload, f.Command, len(f.Payload), fmt.Sprintf(format, args...))
}
