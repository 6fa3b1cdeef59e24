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

// Package listen runs receive sessions back to back on one port so a
// device can accept transfers unattended.
package listen

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	sft "github.com/ZaparooProject/go-sft"
)

// DefaultFailureBackoff is the pause after a failed session
const DefaultFailureBackoff = time.Second

// Config controls the receive loop
type Config struct {
	// Dest is the directory received files are written into
	Dest string
	// FailureBackoff is the pause after a failed session before listening
	// again. Zero uses DefaultFailureBackoff.
	FailureBackoff time.Duration
	// MaxSessions stops the service after this many completed transfers.
	// Zero means run until cancelled.
	MaxSessions int64
}

// Callbacks are invoked from the service goroutine after each session
type Callbacks struct {
	OnSessionComplete func(result *sft.Result)
	OnSessionFailed   func(err error)
}

// Metrics is a snapshot of the service counters
type Metrics struct {
	Sessions    int64         // Sessions where a peer was found
	Successes   int64         // Sessions that stored every file
	Failures    int64         // Sessions that ended in an error
	Idle        int64         // Listen windows that passed without a peer
	Bytes       int64         // Bytes received over all sessions
	LastElapsed time.Duration // Duration of the most recent session
}

// Service accepts successive transfers on one port
type Service struct {
	session   *sft.Session
	callbacks Callbacks
	logger    zerolog.Logger
	config    Config

	sessions    atomic.Int64
	successes   atomic.Int64
	failures    atomic.Int64
	idle        atomic.Int64
	bytes       atomic.Int64
	lastElapsed atomic.Int64
	running     atomic.Bool
}

// New creates a service receiving through session. The session must be in
// smart mode without manual fallback, so a listen window without a peer
// ends idle; its listen timeout sets how often the port is reopened.
func New(session *sft.Session, config Config, callbacks Callbacks, logger zerolog.Logger) (*Service, error) {
	switch {
	case session == nil:
		return nil, fmt.Errorf("%w: session not provided", sft.ErrInvalidParameter)
	case !session.Smart():
		return nil, fmt.Errorf("%w: listen requires smart mode", sft.ErrInvalidParameter)
	case session.FallsBack():
		return nil, fmt.Errorf("%w: listen sessions cannot fall back to manual mode", sft.ErrInvalidParameter)
	}
	if config.Dest == "" {
		return nil, fmt.Errorf("%w: empty destination", sft.ErrInvalidParameter)
	}
	if config.FailureBackoff <= 0 {
		config.FailureBackoff = DefaultFailureBackoff
	}
	return &Service{
		session:   session,
		config:    config,
		callbacks: callbacks,
		logger:    logger.With().Str("port", session.Port()).Logger(),
	}, nil
}

// Run receives until ctx is cancelled or MaxSessions transfers completed.
// Cancellation is a normal stop and returns nil.
func (s *Service) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("listen service already running")
	}
	defer s.running.Store(false)

	s.logger.Info().Str("dest", s.config.Dest).Msg("listening for transfers")
	for {
		if ctx.Err() != nil {
			return nil
		}
		if s.config.MaxSessions > 0 && s.successes.Load() >= s.config.MaxSessions {
			s.logger.Info().Int64("sessions", s.successes.Load()).Msg("session limit reached")
			return nil
		}

		result, err := s.session.Receive(ctx, s.config.Dest)
		switch {
		case ctx.Err() != nil:
			return nil
		case isIdle(err):
			s.idle.Add(1)
			continue
		}

		s.sessions.Add(1)
		if result != nil {
			s.lastElapsed.Store(int64(result.Elapsed))
			s.bytes.Add(result.Bytes)
		}

		if err != nil {
			s.failures.Add(1)
			s.logger.Warn().Err(err).Msg("receive session failed")
			if s.callbacks.OnSessionFailed != nil {
				s.callbacks.OnSessionFailed(err)
			}
			if !sleep(ctx, s.config.FailureBackoff) {
				return nil
			}
			continue
		}

		s.successes.Add(1)
		s.logger.Info().Int("files", len(result.Files)).Int64("bytes", result.Bytes).
			Int("baud", result.BaudRate).Dur("elapsed", result.Elapsed).Msg("transfer received")
		if s.callbacks.OnSessionComplete != nil {
			s.callbacks.OnSessionComplete(result)
		}
	}
}

// IsRunning reports whether Run is active
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// GetMetrics returns current counters
func (s *Service) GetMetrics() Metrics {
	return Metrics{
		Sessions:    s.sessions.Load(),
		Successes:   s.successes.Load(),
		Failures:    s.failures.Load(),
		Idle:        s.idle.Load(),
		Bytes:       s.bytes.Load(),
		LastElapsed: time.Duration(s.lastElapsed.Load()),
	}
}

// isIdle matches a listen window that closed before any probe arrived
func isIdle(err error) bool {
	var de *sft.DegradedError
	return errors.As(err, &de) && de.Phase == sft.PhaseDiscovery && errors.Is(de.Err, sft.ErrTimeout)
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
