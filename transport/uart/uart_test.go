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

package uart

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go.bug.st/serial"

	sft "github.com/ZaparooProject/go-sft"
)

// TestTransportCreation verifies basic transport properties
func TestTransportCreation(t *testing.T) {
	t.Parallel()

	testPortName := "/dev/ttyUSB0"
	transport := &Transport{
		portName: testPortName,
	}

	if transport.Port() != testPortName {
		t.Errorf("Expected port name %s, got %s", testPortName, transport.Port())
	}

	if transport.Type() != sft.TransportUART {
		t.Errorf("Expected transport type %v, got %v", sft.TransportUART, transport.Type())
	}

	if sft.TransportTypeOf(transport) != sft.TransportUART {
		t.Error("Expected TransportTypeOf to report uart")
	}

	if transport.IsConnected() {
		t.Error("Expected IsConnected() to return false for uninitialized transport")
	}
}

// TestUnopenedTransport verifies every operation fails cleanly without a port
func TestUnopenedTransport(t *testing.T) {
	t.Parallel()

	transport := &Transport{portName: "COM9"}

	if _, err := transport.Read(make([]byte, 4)); !errors.Is(err, sft.ErrTransportClosed) {
		t.Errorf("Read() error = %v, want ErrTransportClosed", err)
	}
	if _, err := transport.Write([]byte{1}); !errors.Is(err, sft.ErrTransportClosed) {
		t.Errorf("Write() error = %v, want ErrTransportClosed", err)
	}
	if err := transport.SetBaudRate(921600); !errors.Is(err, sft.ErrTransportClosed) {
		t.Errorf("SetBaudRate() error = %v, want ErrTransportClosed", err)
	}
	if err := transport.Flush(); !errors.Is(err, sft.ErrTransportClosed) {
		t.Errorf("Flush() error = %v, want ErrTransportClosed", err)
	}
	if err := transport.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil", err)
	}
}

func TestNew_InvalidBaudRate(t *testing.T) {
	t.Parallel()

	_, err := New("/dev/ttyUSB0", 0, time.Second)
	if !errors.Is(err, sft.ErrInvalidParameter) {
		t.Errorf("New() error = %v, want ErrInvalidParameter", err)
	}
}

func TestNew_MissingPort(t *testing.T) {
	t.Parallel()

	missing := filepath.Join(t.TempDir(), "ttyNOPE")
	_, err := New(missing, 115200, time.Second)
	if err == nil {
		t.Fatal("expected an error opening a missing port")
	}

	var te *sft.TransportError
	if !errors.As(err, &te) {
		t.Fatalf("expected *TransportError, got %T", err)
	}
	if te.Port != missing || te.Op != "open" {
		t.Errorf("unexpected error fields: %+v", te)
	}
}

func TestOpenErrorType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		name string
		want sft.ErrorType
	}{
		// The zero PortError code is PortBusy
		{name: "busy", err: &serial.PortError{}, want: sft.ErrorTypeTransient},
		{name: "other", err: errors.New("no such file"), want: sft.ErrorTypePermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := openErrorType(tt.err); got != tt.want {
				t.Errorf("openErrorType() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFactorySignature(t *testing.T) {
	t.Parallel()

	var factory sft.TransportFactory = Open
	if _, err := factory("", 115200, time.Second); err == nil {
		t.Error("expected an error for an empty port name")
	}
}
