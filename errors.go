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
	"errors"
	"fmt"

	"github.com/ZaparooProject/go-sft/internal/frame"
	"github.com/ZaparooProject/go-sft/internal/transport"
)

// Frame errors, reported by the codec and never retried by it
var (
	ErrTruncated        = frame.ErrTruncated
	ErrChecksumMismatch = frame.ErrChecksumMismatch
	ErrMalformed        = frame.ErrMalformed
	ErrPayloadTooLarge  = frame.ErrPayloadTooLarge
)

// Transport errors
var (
	ErrTimeout         = errors.New("timed out waiting for reply")
	ErrTransportRead   = errors.New("transport read failed")
	ErrTransportWrite  = errors.New("transport write failed")
	ErrTransportClosed = errors.New("transport closed")
	ErrShortWrite      = errors.New("short write")
)

// Session errors
var (
	ErrRetriesExhausted    = transport.ErrRetriesExhausted
	ErrNegotiationRejected = errors.New("negotiation rejected by peer")
	ErrNoCommonBaudRate    = errors.New("no common baud rate")
	ErrDegraded            = errors.New("negotiation degraded, fall back to manual configuration")
	ErrProtocolViolation   = errors.New("protocol violation")
	ErrUnknownCommand      = errors.New("unknown command")
	ErrFileUnavailable     = errors.New("file unavailable")
	ErrFileTooLarge        = errors.New("file too large for 32-bit size field")
	ErrInvalidParameter    = errors.New("invalid parameter")
)

// RetryError reports that every attempt of a retried operation failed. It
// matches ErrRetriesExhausted and the last attempt's cause.
type RetryError = transport.ExhaustedError

// ErrorType classifies how a failure should be handled
type ErrorType int

const (
	// ErrorTypePermanent means retrying will not help
	ErrorTypePermanent ErrorType = iota
	// ErrorTypeTransient means the same operation may succeed if repeated
	ErrorTypeTransient
	// ErrorTypeTimeout means no reply arrived in time
	ErrorTypeTimeout
)

// String returns the error type name
func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeTimeout:
		return "timeout"
	default:
		return "permanent"
	}
}

// TransportError wraps a failure of the serial channel
type TransportError struct {
	Err       error
	Op        string
	Port      string
	Type      ErrorType
	Retryable bool
}

// NewTransportError creates a transport error. Timeout and transient errors
// are marked retryable.
func NewTransportError(op, port string, err error, errType ErrorType) *TransportError {
	return &TransportError{
		Op:        op,
		Port:      port,
		Err:       err,
		Type:      errType,
		Retryable: errType != ErrorTypePermanent,
	}
}

// NewTimeoutError creates a retryable timeout error for op
func NewTimeoutError(op, port string) *TransportError {
	return NewTransportError(op, port, ErrTimeout, ErrorTypeTimeout)
}

func (e *TransportError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Port, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolError reports a frame that breaks the request/reply contract
type ProtocolError struct {
	Err     error
	Op      string
	Command frame.Command
}

func newProtocolError(op string, cmd frame.Command, format string, args ...any) *ProtocolError {
	return &ProtocolError{
		Op:      op,
		Command: cmd,
		Err:     fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...)),
	}
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Command, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// DegradedError is returned when smart mode could not negotiate and the
// caller should fall back to manual configuration. The transport has already
// been restored to its original baud rate.
type DegradedError struct {
	Err   error
	Phase Phase
}

func (e *DegradedError) Error() string {
	return fmt.Sprintf("%v during %s: %v", ErrDegraded, e.Phase, e.Err)
}

// Unwrap exposes both ErrDegraded and the phase failure
func (e *DegradedError) Unwrap() []error {
	return []error{ErrDegraded, e.Err}
}

// IsRetryable reports whether err may succeed on a repeated attempt
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Retryable
	}

	switch {
	case errors.Is(err, ErrTimeout),
		errors.Is(err, ErrTransportRead),
		errors.Is(err, ErrTransportWrite),
		errors.Is(err, ErrChecksumMismatch),
		errors.Is(err, ErrMalformed),
		errors.Is(err, ErrTruncated):
		return true
	default:
		return false
	}
}

// GetErrorType classifies err
func GetErrorType(err error) ErrorType {
	if err == nil {
		return ErrorTypePermanent
	}

	var te *TransportError
	if errors.As(err, &te) {
		return te.Type
	}

	switch {
	case errors.Is(err, ErrTimeout):
		return ErrorTypeTimeout
	case IsRetryable(err):
		return ErrorTypeTransient
	default:
		return ErrorTypePermanent
	}
}
