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
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/ZaparooProject/go-sft/files"
	"github.com/ZaparooProject/go-sft/internal/transport"
)

// openRetryInterval is the pause between attempts to open a busy port
const openRetryInterval = 500 * time.Millisecond

// Result summarizes a completed session
type Result struct {
	// Outcome is the negotiation result; nil in manual mode
	Outcome   *Outcome
	Files     []TransferredFile
	Bytes     int64
	Elapsed   time.Duration
	BaudRate  int
	ChunkSize int
	// Degraded is set when negotiation failed and the transfer fell back to
	// the manual parameters
	Degraded bool
}

// Session runs one transfer over a port it opens and closes itself. In smart
// mode it negotiates first; in manual mode it transfers at the configured
// rate and chunk size.
type Session struct {
	factory TransportFactory
	config  *Config
	logger  zerolog.Logger
	port    string
}

// NewSession creates a session for port. The transport is opened by factory
// at the start of each Send or Receive and closed before it returns.
func NewSession(factory TransportFactory, port string, opts ...Option) (*Session, error) {
	if factory == nil {
		return nil, fmt.Errorf("%w: transport factory not provided", ErrInvalidParameter)
	}
	if port == "" {
		return nil, fmt.Errorf("%w: empty port", ErrInvalidParameter)
	}
	config, err := newConfig(opts...)
	if err != nil {
		return nil, err
	}
	return &Session{
		factory: factory,
		port:    port,
		config:  config,
		logger:  config.Logger.With().Str("port", port).Logger(),
	}, nil
}

// Port returns the port the session opens
func (s *Session) Port() string {
	return s.port
}

// Smart reports whether the session negotiates before transferring
func (s *Session) Smart() bool {
	return s.config.Session.Smart
}

// FallsBack reports whether a degraded negotiation continues in manual mode
// instead of returning the degraded error
func (s *Session) FallsBack() bool {
	return s.config.Session.Smart && s.config.Session.Fallback
}

// Send offers path, a file or a directory, to the peer
func (s *Session) Send(ctx context.Context, path string) (*Result, error) {
	plan, err := files.PlanFor(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFileUnavailable, err)
	}
	offer := Offer{
		Mode:      ModeSingle,
		FileCount: uint32(len(plan.Entries)),
		TotalSize: uint64(plan.Total),
		RootPath:  plan.Base,
	}
	if plan.Dir {
		offer.Mode = ModeBatch
	}

	result := &Result{}
	err = s.withLink(ctx, result, func(link *Link) error {
		config, err := s.negotiate(ctx, link, result, func(n *Negotiator) (Outcome, error) {
			return n.Initiate(ctx, offer)
		})
		if err != nil {
			return err
		}
		result.ChunkSize = config.Transfer.ChunkSize
		result.BaudRate = link.Transport().BaudRate()

		sender := newSender(link, DirSource{Root: plan.Root}, config)
		if plan.Dir {
			err = sender.ServeBatch(ctx, plan.Names())
		} else {
			err = sender.ServeFile(ctx, plan.Entries[0].Name)
		}
		if err != nil {
			return err
		}

		for _, e := range plan.Entries {
			result.Files = append(result.Files, TransferredFile{
				Name: e.Name,
				Path: filepath.Join(plan.Root, filepath.FromSlash(e.Name)),
				Size: e.Size,
			})
		}
		result.Bytes = plan.Total
		return nil
	})
	return result, err
}

// Receive stores what the peer sends under dest. A single file is written to
// dest itself, or into dest under the announced name when dest is an
// existing directory. A batch is recreated inside dest.
func (s *Session) Receive(ctx context.Context, dest string) (*Result, error) {
	if dest == "" {
		return nil, fmt.Errorf("%w: empty destination", ErrInvalidParameter)
	}

	result := &Result{}
	err := s.withLink(ctx, result, func(link *Link) error {
		accept := func(nego CapabilityNego) error {
			switch {
			case nego.Mode == ModeBatch:
				return DirSink{Root: dest}.CheckWritable(nego.RootPath)
			case isDir(dest):
				return DirSink{Root: dest}.CheckWritable("")
			}
			return DirSink{Root: filepath.Dir(dest)}.CheckWritable("")
		}
		config, err := s.negotiate(ctx, link, result, func(n *Negotiator) (Outcome, error) {
			return n.Respond(ctx, accept)
		})
		if err != nil {
			return err
		}
		result.ChunkSize = config.Transfer.ChunkSize
		result.BaudRate = link.Transport().BaudRate()

		batch := config.Session.Batch
		var rootPath string
		if result.Outcome != nil && result.Outcome.Status == StatusNegotiated {
			batch = result.Outcome.Params.Mode == ModeBatch
			rootPath = result.Outcome.Params.RootPath
		}

		if batch {
			root := dest
			if rootPath != "" {
				root = files.SafeJoin(dest, rootPath)
			}
			received, err := newReceiver(link, DirSink{Root: root}, config).ReceiveBatch(ctx)
			result.addFiles(received...)
			return err
		}

		sink, name, err := singleTarget(dest, rootPath)
		if err != nil {
			return err
		}
		received, err := newReceiver(link, sink, config).ReceiveFile(ctx, name)
		if received.Path != "" {
			result.addFiles(received)
		}
		return err
	})
	return result, err
}

// withLink opens the transport, runs fn over a Link and releases both on
// every path out
func (s *Session) withLink(ctx context.Context, result *Result, fn func(*Link) error) (err error) {
	started := time.Now()
	defer func() { result.Elapsed = time.Since(started) }()

	t, err := s.openTransport(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := t.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("failed to close transport")
		}
	}()

	link, err := newLink(t, s.config)
	if err != nil {
		return err
	}
	defer func() { _ = link.Close() }()

	return fn(link)
}

func (s *Session) openTransport(ctx context.Context) (Transport, error) {
	baud := s.config.Session.BaudRate
	open := func(int) (Transport, bool, error) {
		t, err := s.factory(s.port, baud, linkPollInterval)
		if err != nil {
			return nil, true, err
		}
		return t, false, nil
	}

	if s.config.Session.OpenTimeout <= 0 {
		t, _, err := open(0)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", s.port, err)
		}
		return t, nil
	}

	t, err := transport.TimeoutRetry(ctx, s.config.Session.OpenTimeout, openRetryInterval, open)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s within %v: %w", s.port, s.config.Session.OpenTimeout, err)
	}
	return t, nil
}

// negotiate runs run in smart mode and returns the configuration the
// transfer should use
func (s *Session) negotiate(
	ctx context.Context,
	link *Link,
	result *Result,
	run func(*Negotiator) (Outcome, error),
) (*Config, error) {
	if !s.config.Session.Smart {
		return s.config, nil
	}

	outcome, err := run(newNegotiator(link, s.config))
	if err != nil {
		return nil, fmt.Errorf("negotiation failed: %w", err)
	}
	result.Outcome = &outcome

	if outcome.Status == StatusNegotiated {
		config := s.config.Clone()
		config.Transfer.ChunkSize = outcome.Params.ChunkSize
		return config, nil
	}

	if !s.config.Session.Fallback {
		return nil, outcome.Err()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.logger.Warn().Err(outcome.Reason).Str("phase", string(outcome.Phase)).
		Int("baud", link.Transport().BaudRate()).Msg("negotiation degraded, continuing in manual mode")
	result.Degraded = true
	return s.config, nil
}

func (r *Result) addFiles(received ...TransferredFile) {
	for _, f := range received {
		r.Files = append(r.Files, f)
		r.Bytes += f.Size
	}
}

// singleTarget resolves where a single file goes
func singleTarget(dest, announced string) (FileSink, string, error) {
	if isDir(dest) {
		if announced == "" {
			return nil, "", fmt.Errorf("%w: %s is a directory and the peer sent no file name", ErrInvalidParameter, dest)
		}
		return DirSink{Root: dest}, filepath.Base(filepath.FromSlash(files.Normalize(announced))), nil
	}
	return DirSink{Root: filepath.Dir(dest)}, filepath.Base(dest), nil
}

func isDir(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.IsDir()
}

// IsDegraded reports whether err is the fall-back-to-manual signal
func IsDegraded(err error) bool {
	return errors.Is(err, ErrDegraded)
}
