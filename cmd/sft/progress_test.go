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
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sft "github.com/ZaparooProject/go-sft"
)

func update(t *testing.T, m progressModel, msg tea.Msg) (progressModel, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	pm, ok := next.(progressModel)
	require.True(t, ok)
	return pm, cmd
}

func TestProgressModel_TracksSession(t *testing.T) {
	t.Parallel()

	m := newProgressModel("sft send")
	assert.Contains(t, m.View(), "opening port")

	m, _ = update(t, m, eventMsg{Type: sft.EventProbeSent})
	assert.Contains(t, m.View(), "looking for peer")

	m, _ = update(t, m, eventMsg{Type: sft.EventConnectionVerified, BaudRate: 921600})
	assert.Contains(t, m.View(), "921600 baud")

	m, _ = update(t, m, eventMsg{Type: sft.EventFileStarted, File: "photo.jpg", Total: 2048})
	m, _ = update(t, m, eventMsg{Type: sft.EventFileProgress, File: "photo.jpg", Offset: 1024, Total: 2048, Rate: 4096})
	view := m.View()
	assert.Contains(t, view, "photo.jpg")
	assert.Contains(t, view, "50.0%")
	assert.Contains(t, view, "4.0 KiB/s")

	m, _ = update(t, m, eventMsg{Type: sft.EventFileCompleted, File: "photo.jpg", Offset: 2048, Total: 2048})
	assert.Equal(t, 1, m.files)

	m, cmd := update(t, m, doneMsg{result: &sft.Result{
		Files:   []sft.TransferredFile{{Name: "photo.jpg", Size: 2048}},
		Bytes:   2048,
		Elapsed: 1500 * time.Millisecond,
	}})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Contains(t, m.View(), "done: 1 file(s), 2.0 KiB in 1.5s")
}

func TestProgressModel_ShowsDegradeAndFailure(t *testing.T) {
	t.Parallel()

	m := newProgressModel("sft receive")
	m, _ = update(t, m, eventMsg{Type: sft.EventDegraded, Phase: sft.PhaseDiscovery, Err: sft.ErrTimeout})
	assert.Contains(t, m.View(), "degraded during discovery")

	m, _ = update(t, m, doneMsg{err: errors.New("line dropped")})
	assert.Contains(t, m.View(), "failed: line dropped")
}

func TestRenderBar(t *testing.T) {
	t.Parallel()

	tests := []struct {
		done, total int64
		filled      int
	}{
		{done: 0, total: 100, filled: 0},
		{done: 50, total: 100, filled: barWidth / 2},
		{done: 100, total: 100, filled: barWidth},
		{done: 200, total: 100, filled: barWidth},
		{done: 0, total: 0, filled: barWidth},
	}

	for _, tt := range tests {
		bar := renderBar(tt.done, tt.total)
		if got := strings.Count(bar, "█"); got != tt.filled {
			t.Errorf("renderBar(%d, %d) filled %d cells, want %d", tt.done, tt.total, got, tt.filled)
		}
		if got := strings.Count(bar, "█") + strings.Count(bar, "░"); got != barWidth {
			t.Errorf("renderBar(%d, %d) has %d cells, want %d", tt.done, tt.total, got, barWidth)
		}
	}
}

func TestFormatBytes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		want string
		n    int64
	}{
		{n: 0, want: "0 B"},
		{n: 1023, want: "1023 B"},
		{n: 1024, want: "1.0 KiB"},
		{n: 1536, want: "1.5 KiB"},
		{n: 10 << 20, want: "10.0 MiB"},
		{n: 3 << 30, want: "3.0 GiB"},
	}

	for _, tt := range tests {
		if got := formatBytes(tt.n); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.n, got, tt.want)
		}
	}
}
