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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	sft "github.com/ZaparooProject/go-sft"
	testutil "github.com/ZaparooProject/go-sft/internal/testing"
	"github.com/ZaparooProject/go-sft/listen"
)

func virtualApp(ports ...*testutil.VirtualPort) *app {
	factory := func(name string, baud int, _ time.Duration) (sft.Transport, error) {
		for _, p := range ports {
			if p.Port() != name {
				continue
			}
			if err := p.SetBaudRate(baud); err != nil {
				return nil, err
			}
			return p, nil
		}
		return nil, fmt.Errorf("no such port: %s", name)
	}
	return &app{factory: factory, stderr: os.Stderr}
}

func execute(ctx context.Context, a *app, args ...string) (string, error) {
	cmd := buildRootCmd(a)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func TestCLI_SendReceive(t *testing.T) {
	t.Parallel()

	portA, portB := testutil.NewVirtualLink("portA", "portB", 115200)
	src := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(src, []byte("sent from the command line"), 0o600))
	dest := t.TempDir()

	common := []string{"--log-level", "error", "--progress=false"}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	type outcome struct {
		err error
		out string
	}
	received := make(chan outcome, 1)
	go func() {
		out, err := execute(ctx, virtualApp(portA, portB), append([]string{"receive", dest, "-p", "portB"}, common...)...)
		received <- outcome{out: out, err: err}
	}()

	sendOut, err := execute(ctx, virtualApp(portA, portB), append([]string{"send", src, "-p", "portA"}, common...)...)
	require.NoError(t, err)
	assert.Contains(t, sendOut, "1 file(s)")
	assert.Contains(t, sendOut, "negotiated")

	got := <-received
	require.NoError(t, got.err)
	assert.Contains(t, got.out, filepath.Join(dest, "notes.txt"))

	data, err := os.ReadFile(filepath.Join(dest, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "sent from the command line", string(data))
}

func TestCLI_SendMissingFile(t *testing.T) {
	t.Parallel()

	_, err := execute(context.Background(), virtualApp(), "send", filepath.Join(t.TempDir(), "nope"), "-p", "portA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot send")
}

func TestCLI_ListenRequiresSmartMode(t *testing.T) {
	t.Parallel()

	_, err := execute(context.Background(), virtualApp(), "listen", "--manual", "-p", "portA")
	require.ErrorIs(t, err, sft.ErrInvalidParameter)
}

func TestCLI_ListenSessionIgnoresFallback(t *testing.T) {
	t.Parallel()

	a := virtualApp()
	a.config = defaultCLIConfig()
	a.config.Fallback = true
	a.logger = zerolog.Nop()

	session, err := a.newListenSession("portB")
	require.NoError(t, err)
	assert.True(t, session.Smart())
	assert.False(t, session.FallsBack())

	_, err = listen.New(session, listen.Config{Dest: t.TempDir()}, listen.Callbacks{}, zerolog.Nop())
	require.NoError(t, err)
}

func TestCLI_InvalidLogLevel(t *testing.T) {
	t.Parallel()

	_, err := execute(context.Background(), virtualApp(), "send", "x", "--log-level", "shouting")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestCLI_Version(t *testing.T) {
	t.Parallel()

	out, err := execute(context.Background(), virtualApp(), "version")
	require.NoError(t, err)
	assert.Contains(t, out, "sft version "+version)

	out, err = execute(context.Background(), virtualApp(), "version", "-o", "json")
	require.NoError(t, err)
	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version, info.Version)

	out, err = execute(context.Background(), virtualApp(), "version", "-o", "yaml")
	require.NoError(t, err)
	info = versionInfo{}
	require.NoError(t, yaml.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info.Go)

	_, err = execute(context.Background(), virtualApp(), "version", "-o", "xml")
	require.Error(t, err)
}
