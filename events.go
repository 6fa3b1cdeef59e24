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
	"time"

	"github.com/ZaparooProject/go-sft/internal/frame"
)

// Phase names a stage of a session
type Phase string

// Session phases
const (
	PhaseDiscovery    Phase = "discovery"
	PhaseCapability   Phase = "capability"
	PhaseSwitch       Phase = "switch"
	PhaseVerification Phase = "verification"
	PhaseTransfer     Phase = "transfer"
)

// EventType identifies what an Event reports
type EventType int

// Event types
const (
	EventProbeSent EventType = iota
	EventPeerDiscovered
	EventCollision
	EventCapabilityAgreed
	EventCapabilityRejected
	EventBaudSwitched
	EventConnectionVerified
	EventDegraded
	EventBaudReverted
	EventFileStarted
	EventFileProgress
	EventFileCompleted
	EventRequestRetry
	EventFrameDiscarded
	EventUnknownCommand
	EventStaleSession
)

var eventTypeNames = map[EventType]string{
	EventProbeSent:          "probe_sent",
	EventPeerDiscovered:     "peer_discovered",
	EventCollision:          "collision",
	EventCapabilityAgreed:   "capability_agreed",
	EventCapabilityRejected: "capability_rejected",
	EventBaudSwitched:       "baud_switched",
	EventConnectionVerified: "connection_verified",
	EventDegraded:           "degraded",
	EventBaudReverted:       "baud_reverted",
	EventFileStarted:        "file_started",
	EventFileProgress:       "file_progress",
	EventFileCompleted:      "file_completed",
	EventRequestRetry:       "request_retry",
	EventFrameDiscarded:     "frame_discarded",
	EventUnknownCommand:     "unknown_command",
	EventStaleSession:       "stale_session",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Event is a structured notification emitted by senders, receivers and
// negotiators. Fields that do not apply to an event type are zero.
type Event struct {
	Time      time.Time
	Err       error
	Phase     Phase
	File      string
	Message   string
	Offset    int64
	Total     int64
	Rate      float64
	BaudRate  int
	Attempt   int
	SessionID uint32
	Type      EventType
	Command   frame.Command
}

// Observer receives events. It is called synchronously on the session's
// goroutine and must not block.
type Observer func(Event)

// Observers fans events out to every non-nil observer in order
func Observers(observers ...Observer) Observer {
	active := make([]Observer, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			active = append(active, o)
		}
	}
	return func(e Event) {
		for _, o := range active {
			o(e)
		}
	}
}

func (o Observer) emit(e Event) {
	if o == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	o(e)
}
