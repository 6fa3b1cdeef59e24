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
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	sft "github.com/ZaparooProject/go-sft"
)

const barWidth = 40

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	barFullStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	barEmptyStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	warnStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Bold(true)
	doneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42")).Bold(true)
)

// eventMsg carries a session event into the view
type eventMsg sft.Event

// doneMsg ends the view once the session returned
type doneMsg struct {
	err    error
	result *sft.Result
}

// progressModel renders one session: negotiation status, then a bar per file
type progressModel struct {
	err      error
	result   *sft.Result
	title    string
	status   string
	warning  string
	file     string
	offset   int64
	total    int64
	rate     float64
	files    int
	baudRate int
	done     bool
}

func newProgressModel(title string) progressModel {
	return progressModel{title: title, status: "opening port"}
}

func (progressModel) Init() tea.Cmd {
	return nil
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case eventMsg:
		m.apply(sft.Event(msg))
	case doneMsg:
		m.done = true
		m.err = msg.err
		m.result = msg.result
		return m, tea.Quit
	}
	return m, nil
}

func (m *progressModel) apply(e sft.Event) {
	switch e.Type {
	case sft.EventProbeSent:
		m.status = "looking for peer"
	case sft.EventPeerDiscovered:
		m.status = "peer found"
	case sft.EventCapabilityAgreed:
		m.status = "capabilities agreed"
	case sft.EventBaudSwitched:
		m.baudRate = e.BaudRate
		m.status = fmt.Sprintf("switched to %d baud", e.BaudRate)
	case sft.EventConnectionVerified:
		m.baudRate = e.BaudRate
		m.status = "connected"
	case sft.EventDegraded:
		m.warning = fmt.Sprintf("negotiation degraded during %s: %v", e.Phase, e.Err)
	case sft.EventBaudReverted:
		m.baudRate = e.BaudRate
	case sft.EventFileStarted:
		m.file, m.offset, m.total, m.rate = e.File, 0, e.Total, 0
		m.status = "transferring"
	case sft.EventFileProgress:
		m.offset, m.total, m.rate = e.Offset, e.Total, e.Rate
	case sft.EventFileCompleted:
		m.offset, m.total = e.Offset, e.Total
		m.files++
	}
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(m.title))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(m.status))
	if m.baudRate > 0 {
		b.WriteString(dimStyle.Render(fmt.Sprintf(" @ %d baud", m.baudRate)))
	}
	b.WriteString("\n")

	if m.warning != "" {
		b.WriteString(warnStyle.Render(m.warning))
		b.WriteString("\n")
	}

	if m.file != "" {
		fmt.Fprintf(&b, "%s  %s %s\n", m.file, renderBar(m.offset, m.total), formatProgress(m.offset, m.total, m.rate))
	}

	if m.done {
		switch {
		case m.err != nil:
			b.WriteString(errorStyle.Render("failed: " + m.err.Error()))
		case m.result != nil:
			b.WriteString(doneStyle.Render(fmt.Sprintf("done: %d file(s), %s in %s",
				len(m.result.Files), formatBytes(m.result.Bytes), m.result.Elapsed.Round(time.Millisecond))))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderBar(done, total int64) string {
	filled := barWidth
	if total > 0 {
		filled = int(done * barWidth / total)
	}
	filled = min(max(filled, 0), barWidth)
	return barFullStyle.Render(strings.Repeat("█", filled)) + barEmptyStyle.Render(strings.Repeat("░", barWidth-filled))
}

func formatProgress(done, total int64, rate float64) string {
	pct := 100.0
	if total > 0 {
		pct = float64(done) * 100 / float64(total)
	}
	s := fmt.Sprintf("%5.1f%% %s/%s", pct, formatBytes(done), formatBytes(total))
	if rate > 0 {
		s += fmt.Sprintf(" %s/s", formatBytes(int64(rate)))
	}
	return s
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// programObserver forwards events to a running program. Progress events are
// dropped when the view falls behind; milestones are always delivered.
func programObserver(p *tea.Program) (observer sft.Observer, stop func()) {
	events := make(chan sft.Event, 64)
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		for e := range events {
			p.Send(eventMsg(e))
		}
	}()

	observer = func(e sft.Event) {
		if e.Type == sft.EventFileProgress {
			select {
			case events <- e:
			default:
			}
			return
		}
		events <- e
	}
	stop = func() {
		close(events)
		<-finished
	}
	return observer, stop
}
