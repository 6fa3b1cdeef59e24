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
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	testutil "github.com/ZaparooProject/go-sft/internal/testing"
)

// fastOptions keeps protocol tests quick: short waits, tiny backoffs and a
// fixed seed
func fastOptions() []Option {
	quick := &RetryConfig{
		MaxAttempts:       3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            0.1,
		RetryTimeout:      200 * time.Millisecond,
	}
	once := *quick
	once.MaxAttempts = 1
	return []Option{
		WithSeed(42),
		WithRetryConfig(quick),
		WithPhaseRetry(PhaseDiscovery, quick),
		WithPhaseRetry(PhaseCapability, quick),
		WithPhaseRetry(PhaseSwitch, &once),
		WithRequestTimeout(2 * time.Second),
		WithLinger(50 * time.Millisecond),
		WithSwitchDelay(20 * time.Millisecond),
		WithReadyTimeout(400 * time.Millisecond),
		WithListenTimeout(2 * time.Second),
	}
}

func withOpts(extra ...Option) []Option {
	return append(fastOptions(), extra...)
}

// linkPair connects two Links through a virtual serial line
func linkPair(t *testing.T, baud int) (a, b *Link, portA, portB *testutil.VirtualPort) {
	t.Helper()
	portA, portB = testutil.NewVirtualLink("portA", "portB", baud)

	var err error
	a, err = NewLink(portA)
	require.NoError(t, err)
	b, err = NewLink(portB)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
		_ = portA.Close()
		_ = portB.Close()
	})
	return a, b, portA, portB
}

// memSource serves files from memory
type memSource struct {
	files map[string][]byte
	opens map[string]int
	mu    sync.Mutex
}

func newMemSource(files map[string][]byte) *memSource {
	return &memSource{files: files, opens: make(map[string]int)}
}

func (s *memSource) Open(name string) (SourceFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return nil, fmt.Errorf("open %s: %w", name, io.ErrUnexpectedEOF)
	}
	s.opens[name]++
	return memFile{Reader: bytes.NewReader(data)}, nil
}

type memFile struct {
	*bytes.Reader
}

func (memFile) Close() error { return nil }

// memSink collects received files in memory
type memSink struct {
	files    map[string]*memSinkFile
	failWith error
	order    []string
	mu       sync.Mutex
}

func newMemSink() *memSink {
	return &memSink{files: make(map[string]*memSinkFile)}
}

func (s *memSink) Create(name string) (SinkFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return nil, s.failWith
	}
	f := &memSinkFile{path: "mem/" + name}
	s.files[name] = f
	s.order = append(s.order, name)
	return f, nil
}

func (s *memSink) CheckWritable(dir string) error {
	if dir == "forbidden" {
		return errors.New("read-only")
	}
	return nil
}

func (s *memSink) content(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	if !ok {
		return nil
	}
	return f.buf.Bytes()
}

type memSinkFile struct {
	buf    bytes.Buffer
	path   string
	closed bool
}

func (f *memSinkFile) Write(p []byte) (int, error) { return f.buf.Write(p) }
func (f *memSinkFile) Close() error                { f.closed = true; return nil }
func (f *memSinkFile) Path() string                { return f.path }

// runAsync runs fn on a goroutine and returns its error channel
func runAsync(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func waitErr(t *testing.T, done <-chan error) error {
	t.Helper()
	return waitErrWithin(t, done, 10*time.Second)
}

func waitErrWithin(t *testing.T, done <-chan error, limit time.Duration) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(limit):
		t.Fatal("timed out waiting for peer")
		return nil
	}
}

// dropNth returns a write hook that swallows the nth frame matching match
func dropNth(n int, match func(p []byte) bool) testutil.WriteHook {
	var mu sync.Mutex
	seen := 0
	return func(p []byte) []byte {
		if !match(p) {
			return p
		}
		mu.Lock()
		defer mu.Unlock()
		seen++
		if seen == n {
			return nil
		}
		return p
	}
}
