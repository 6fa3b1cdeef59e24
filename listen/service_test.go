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

package listen

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sft "github.com/ZaparooProject/go-sft"
	testutil "github.com/ZaparooProject/go-sft/internal/testing"
)

// reopenable survives Close so successive sessions can reuse one virtual port
type reopenable struct {
	*testutil.VirtualPort
	closes atomic.Int32
}

func (r *reopenable) Close() error {
	r.closes.Add(1)
	return nil
}

func reopenableFactory(ports ...*reopenable) sft.TransportFactory {
	return func(name string, baud int, _ time.Duration) (sft.Transport, error) {
		for _, p := range ports {
			if p.Port() != name {
				continue
			}
			if p.BaudRate() != baud {
				if err := p.SetBaudRate(baud); err != nil {
					return nil, err
				}
			}
			return p, nil
		}
		return nil, errors.New("no such port: " + name)
	}
}

func quickOptions(extra ...sft.Option) []sft.Option {
	quick := &sft.RetryConfig{
		MaxAttempts:       5,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        20 * time.Millisecond,
		BackoffMultiplier: 2,
		Jitter:            0.1,
		RetryTimeout:      200 * time.Millisecond,
	}
	once := *quick
	once.MaxAttempts = 1
	return append([]sft.Option{
		sft.WithRetryConfig(quick),
		sft.WithPhaseRetry(sft.PhaseDiscovery, quick),
		sft.WithPhaseRetry(sft.PhaseCapability, quick),
		sft.WithPhaseRetry(sft.PhaseSwitch, &once),
		sft.WithLinger(50 * time.Millisecond),
		sft.WithSwitchDelay(20 * time.Millisecond),
		sft.WithReadyTimeout(400 * time.Millisecond),
		sft.WithBaudRates(115200, 921600),
	}, extra...)
}

func startService(t *testing.T, svc *Service) (cancel func() error) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	require.Eventually(t, svc.IsRunning, time.Second, time.Millisecond)

	return func() error {
		stop()
		select {
		case err := <-done:
			return err
		case <-time.After(5 * time.Second):
			t.Fatal("service did not stop")
			return nil
		}
	}
}

func TestService_ReceivesSuccessiveTransfers(t *testing.T) {
	t.Parallel()

	a, b := testutil.NewVirtualLink("portA", "portB", 115200)
	portA, portB := &reopenable{VirtualPort: a}, &reopenable{VirtualPort: b}
	factory := reopenableFactory(portA, portB)

	sender, err := sft.NewSession(factory, "portA", quickOptions(sft.WithDeviceID(0x11111111))...)
	require.NoError(t, err)
	receiver, err := sft.NewSession(factory, "portB",
		quickOptions(sft.WithDeviceID(0x22222222), sft.WithListenTimeout(time.Second))...)
	require.NoError(t, err)

	dest := t.TempDir()
	var mu sync.Mutex
	var completed []*sft.Result
	svc, err := New(receiver, Config{Dest: dest}, Callbacks{
		OnSessionComplete: func(r *sft.Result) {
			mu.Lock()
			defer mu.Unlock()
			completed = append(completed, r)
		},
	}, zerolog.Nop())
	require.NoError(t, err)
	stop := startService(t, svc)

	srcDir := t.TempDir()
	for name, content := range map[string]string{"one.txt": "first transfer", "two.txt": "second"} {
		src := filepath.Join(srcDir, name)
		require.NoError(t, os.WriteFile(src, []byte(content), 0o600))
		_, err := sender.Send(context.Background(), src)
		require.NoError(t, err, name)
	}

	require.Eventually(t, func() bool { return svc.GetMetrics().Successes == 2 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, stop())

	one, err := os.ReadFile(filepath.Join(dest, "one.txt"))
	require.NoError(t, err)
	assert.Equal(t, "first transfer", string(one))
	two, err := os.ReadFile(filepath.Join(dest, "two.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(two))

	m := svc.GetMetrics()
	assert.Equal(t, int64(2), m.Sessions)
	assert.Equal(t, int64(0), m.Failures)
	assert.Equal(t, int64(20), m.Bytes)
	assert.Positive(t, m.LastElapsed)

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, completed, 2)
	assert.False(t, svc.IsRunning())
}

func TestService_IdleWindowsAreNotFailures(t *testing.T) {
	t.Parallel()

	_, b := testutil.NewVirtualLink("portA", "portB", 115200)
	portB := &reopenable{VirtualPort: b}
	receiver, err := sft.NewSession(reopenableFactory(portB), "portB",
		quickOptions(sft.WithListenTimeout(20*time.Millisecond))...)
	require.NoError(t, err)

	svc, err := New(receiver, Config{Dest: t.TempDir()}, Callbacks{
		OnSessionFailed: func(err error) { t.Errorf("unexpected failure: %v", err) },
	}, zerolog.Nop())
	require.NoError(t, err)
	stop := startService(t, svc)

	require.Eventually(t, func() bool { return svc.GetMetrics().Idle >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	m := svc.GetMetrics()
	assert.Zero(t, m.Sessions)
	assert.Zero(t, m.Failures)
	// Every listen window releases the port
	assert.GreaterOrEqual(t, portB.closes.Load(), int32(2))
}

func TestService_FailuresBackOff(t *testing.T) {
	t.Parallel()

	boom := errors.New("port unplugged")
	var opens atomic.Int32
	factory := func(string, int, time.Duration) (sft.Transport, error) {
		opens.Add(1)
		return nil, boom
	}
	receiver, err := sft.NewSession(factory, "COM7")
	require.NoError(t, err)

	failures := make(chan error, 16)
	svc, err := New(receiver, Config{Dest: t.TempDir(), FailureBackoff: 10 * time.Millisecond}, Callbacks{
		OnSessionFailed: func(err error) { failures <- err },
	}, zerolog.Nop())
	require.NoError(t, err)
	stop := startService(t, svc)

	select {
	case err := <-failures:
		require.ErrorIs(t, err, boom)
	case <-time.After(2 * time.Second):
		t.Fatal("expected a failed session")
	}
	require.Eventually(t, func() bool { return svc.GetMetrics().Failures >= 2 }, 2*time.Second, 5*time.Millisecond)
	require.NoError(t, stop())

	assert.Zero(t, svc.GetMetrics().Successes)
	assert.GreaterOrEqual(t, opens.Load(), int32(2))
}

func TestService_StopsAfterMaxSessions(t *testing.T) {
	t.Parallel()

	a, b := testutil.NewVirtualLink("portA", "portB", 115200)
	portA, portB := &reopenable{VirtualPort: a}, &reopenable{VirtualPort: b}
	factory := reopenableFactory(portA, portB)

	sender, err := sft.NewSession(factory, "portA", quickOptions()...)
	require.NoError(t, err)
	receiver, err := sft.NewSession(factory, "portB", quickOptions(sft.WithSeed(7))...)
	require.NoError(t, err)

	dest := t.TempDir()
	svc, err := New(receiver, Config{Dest: dest, MaxSessions: 1}, Callbacks{}, zerolog.Nop())
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- svc.Run(context.Background()) }()

	src := filepath.Join(t.TempDir(), "only.bin")
	require.NoError(t, os.WriteFile(src, []byte{1, 2, 3}, 0o600))
	_, err = sender.Send(context.Background(), src)
	require.NoError(t, err)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("service did not stop after its session limit")
	}
	assert.Equal(t, int64(1), svc.GetMetrics().Successes)
	assert.FileExists(t, filepath.Join(dest, "only.bin"))
}

func TestService_RejectsConcurrentRun(t *testing.T) {
	t.Parallel()

	_, b := testutil.NewVirtualLink("portA", "portB", 115200)
	receiver, err := sft.NewSession(reopenableFactory(&reopenable{VirtualPort: b}), "portB",
		quickOptions(sft.WithListenTimeout(50*time.Millisecond))...)
	require.NoError(t, err)
	svc, err := New(receiver, Config{Dest: t.TempDir()}, Callbacks{}, zerolog.Nop())
	require.NoError(t, err)

	stop := startService(t, svc)
	require.Error(t, svc.Run(context.Background()))
	require.NoError(t, stop())
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Dest: "/tmp"}, Callbacks{}, zerolog.Nop())
	require.ErrorIs(t, err, sft.ErrInvalidParameter)

	factory := func(string, int, time.Duration) (sft.Transport, error) { return nil, errors.New("unused") }
	session, err := sft.NewSession(factory, "COM1")
	require.NoError(t, err)

	_, err = New(session, Config{}, Callbacks{}, zerolog.Nop())
	require.ErrorIs(t, err, sft.ErrInvalidParameter)

	svc, err := New(session, Config{Dest: "/tmp"}, Callbacks{}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, DefaultFailureBackoff, svc.config.FailureBackoff)
}

func TestNew_RejectsSessionsWithoutIdleWindows(t *testing.T) {
	t.Parallel()

	factory := func(string, int, time.Duration) (sft.Transport, error) { return nil, errors.New("unused") }

	tests := []struct {
		name string
		opts []sft.Option
	}{
		{name: "manual mode", opts: []sft.Option{sft.WithSmartMode(false)}},
		{name: "manual fallback", opts: []sft.Option{sft.WithManualFallback(true)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			session, err := sft.NewSession(factory, "COM1", tt.opts...)
			require.NoError(t, err)

			_, err = New(session, Config{Dest: t.TempDir()}, Callbacks{}, zerolog.Nop())
			require.ErrorIs(t, err, sft.ErrInvalidParameter)
		})
	}
}
