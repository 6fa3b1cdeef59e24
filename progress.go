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
	"sync"
	"time"
)

// Progress is a snapshot of one file's transfer
type Progress struct {
	File        string
	Transferred int64
	Total       int64
	Elapsed     time.Duration
	// Rate is the average throughput in bytes per second since Start
	Rate float64
}

// Percent returns the completed share in the range 0-100
func (p Progress) Percent() float64 {
	if p.Total <= 0 {
		return 100
	}
	return float64(p.Transferred) * 100 / float64(p.Total)
}

// ProgressTracker follows one file at a time and emits throttled progress
// events through an Observer
type ProgressTracker struct {
	startTime   time.Time
	lastEmit    time.Time
	observer    Observer
	file        string
	phase       Phase
	transferred int64
	total       int64
	interval    time.Duration
	mu          sync.Mutex
}

// NewProgressTracker creates a tracker that emits at most one progress event
// per interval
func NewProgressTracker(observer Observer, interval time.Duration) *ProgressTracker {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &ProgressTracker{
		observer: observer,
		interval: interval,
		phase:    PhaseTransfer,
	}
}

// Start begins tracking file with the given total size
func (pt *ProgressTracker) Start(file string, total int64) {
	pt.mu.Lock()
	pt.file = file
	pt.total = total
	pt.transferred = 0
	pt.startTime = time.Now()
	pt.lastEmit = time.Time{}
	pt.mu.Unlock()

	pt.observer.emit(Event{Type: EventFileStarted, Phase: pt.phase, File: file, Total: total})
}

// Update records the number of bytes transferred so far
func (pt *ProgressTracker) Update(transferred int64) {
	pt.mu.Lock()
	pt.transferred = transferred
	now := time.Now()
	if !pt.lastEmit.IsZero() && now.Sub(pt.lastEmit) < pt.interval && transferred < pt.total {
		pt.mu.Unlock()
		return
	}
	pt.lastEmit = now
	snap := pt.snapshotLocked(now)
	pt.mu.Unlock()

	pt.observer.emit(Event{
		Type:   EventFileProgress,
		Phase:  pt.phase,
		File:   snap.File,
		Offset: snap.Transferred,
		Total:  snap.Total,
		Rate:   snap.Rate,
	})
}

// Complete marks the file finished and returns the final snapshot
func (pt *ProgressTracker) Complete() Progress {
	pt.mu.Lock()
	snap := pt.snapshotLocked(time.Now())
	pt.mu.Unlock()

	pt.observer.emit(Event{
		Type:   EventFileCompleted,
		Phase:  pt.phase,
		File:   snap.File,
		Offset: snap.Transferred,
		Total:  snap.Total,
		Rate:   snap.Rate,
	})
	return snap
}

// Snapshot returns the current progress
func (pt *ProgressTracker) Snapshot() Progress {
	pt.mu.Lock()
	defer pt.mu.Unlock()
	return pt.snapshotLocked(time.Now())
}

func (pt *ProgressTracker) snapshotLocked(now time.Time) Progress {
	elapsed := now.Sub(pt.startTime)
	var rate float64
	if elapsed > 0 {
		rate = float64(pt.transferred) / elapsed.Seconds()
	}
	return Progress{
		File:        pt.file,
		Transferred: pt.transferred,
		Total:       pt.total,
		Elapsed:     elapsed,
		Rate:        rate,
	}
}
