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

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	sft "github.com/ZaparooProject/go-sft"
)

// Environment overrides for the log settings
const (
	envLogLevel  = "SFT_LOG_LEVEL"
	envLogFormat = "SFT_LOG_FORMAT"
)

// isTerminal reports whether f is attached to a terminal
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// newLogger builds the CLI logger. format is "console", "json" or "auto",
// which picks console output when w is a terminal.
func newLogger(w io.Writer, level, format string, tty bool) (zerolog.Logger, error) {
	if env := os.Getenv(envLogLevel); env != "" {
		level = env
	}
	if env := os.Getenv(envLogFormat); env != "" {
		format = env
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("invalid log level %q: %w", level, err)
	}

	var out io.Writer
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		out = w
	case "console":
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "", "auto":
		if tty {
			out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
		} else {
			out = w
		}
	default:
		return zerolog.Nop(), fmt.Errorf("invalid log format %q", format)
	}

	return zerolog.New(out).Level(lvl).With().Timestamp().Str("app", "sft").Logger(), nil
}

// logObserver reports session milestones as log lines. Progress events are
// logged at debug so a long transfer does not flood the output.
func logObserver(logger zerolog.Logger) sft.Observer {
	return func(e sft.Event) {
		var ev *zerolog.Event
		switch e.Type {
		case sft.EventDegraded, sft.EventCapabilityRejected, sft.EventBaudReverted:
			ev = logger.Warn().Err(e.Err)
		case sft.EventFileProgress, sft.EventProbeSent, sft.EventFrameDiscarded, sft.EventStaleSession,
			sft.EventUnknownCommand, sft.EventRequestRetry:
			ev = logger.Debug()
		default:
			ev = logger.Info()
		}

		ev = ev.Str("event", e.Type.String())
		if e.Phase != "" {
			ev = ev.Str("phase", string(e.Phase))
		}
		if e.File != "" {
			ev = ev.Str("file", e.File).Int64("offset", e.Offset).Int64("total", e.Total)
		}
		if e.BaudRate != 0 {
			ev = ev.Int("baud", e.BaudRate)
		}
		if e.Attempt != 0 {
			ev = ev.Int("attempt", e.Attempt)
		}
		ev.Msg(e.Message)
	}
}
