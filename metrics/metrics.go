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

// Package metrics exports session events as Prometheus metrics.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	sft "github.com/ZaparooProject/go-sft"
)

const namespace = "sft"

// Collector turns the event stream of one port into Prometheus series
type Collector struct {
	events          *prometheus.CounterVec
	negotiations    *prometheus.CounterVec
	retries         *prometheus.CounterVec
	files           prometheus.Counter
	bytes           prometheus.Counter
	framesDiscarded prometheus.Counter
	baudRate        prometheus.Gauge
	sessions        *prometheus.CounterVec
	sessionDuration prometheus.Histogram
}

// New creates a Collector labelled with port and registers it with reg
func New(reg prometheus.Registerer, port string) (*Collector, error) {
	labels := prometheus.Labels{"port": port}
	c := &Collector{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "events_total",
			Help:        "Session events by type.",
			ConstLabels: labels,
		}, []string{"type"}),
		negotiations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "negotiation",
			Name:        "results_total",
			Help:        "Negotiation outcomes.",
			ConstLabels: labels,
		}, []string{"result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "retries_total",
			Help:        "Requests repeated after a missing or bad reply.",
			ConstLabels: labels,
		}, []string{"phase"}),
		files: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "files_total",
			Help:        "Files transferred completely.",
			ConstLabels: labels,
		}),
		bytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "transfer",
			Name:        "bytes_total",
			Help:        "Bytes of completed files.",
			ConstLabels: labels,
		}),
		framesDiscarded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "frames_discarded_total",
			Help:        "Frames dropped for a bad checksum or layout.",
			ConstLabels: labels,
		}),
		baudRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Subsystem:   "link",
			Name:        "baud_rate",
			Help:        "Line speed after the last switch or revert.",
			ConstLabels: labels,
		}),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "sessions_total",
			Help:        "Sessions by final status.",
			ConstLabels: labels,
		}, []string{"status"}),
		sessionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "session_duration_seconds",
			Help:        "Wall time of sessions that found a peer.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}

	for _, collector := range c.collectors() {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("failed to register metrics for %s: %w", port, err)
		}
	}
	return c, nil
}

func (c *Collector) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		c.events, c.negotiations, c.retries, c.files, c.bytes,
		c.framesDiscarded, c.baudRate, c.sessions, c.sessionDuration,
	}
}

// Observe records one event. It is an sft.Observer.
func (c *Collector) Observe(e sft.Event) {
	c.events.WithLabelValues(e.Type.String()).Inc()

	switch e.Type {
	case sft.EventConnectionVerified:
		c.negotiations.WithLabelValues("negotiated").Inc()
		c.baudRate.Set(float64(e.BaudRate))
	case sft.EventDegraded:
		c.negotiations.WithLabelValues("degraded").Inc()
	case sft.EventCapabilityRejected:
		c.negotiations.WithLabelValues("rejected").Inc()
	case sft.EventBaudSwitched, sft.EventBaudReverted:
		c.baudRate.Set(float64(e.BaudRate))
	case sft.EventRequestRetry:
		c.retries.WithLabelValues(string(e.Phase)).Inc()
	case sft.EventFrameDiscarded:
		c.framesDiscarded.Inc()
	case sft.EventFileCompleted:
		c.files.Inc()
		c.bytes.Add(float64(e.Offset))
	}
}

// Observer returns Observe as an sft.Observer
func (c *Collector) Observer() sft.Observer {
	return c.Observe
}

// ObserveSession records the end of a session
func (c *Collector) ObserveSession(result *sft.Result, err error) {
	status := "ok"
	switch {
	case err == nil && result != nil && result.Degraded:
		status = "fallback"
	case errors.Is(err, sft.ErrDegraded):
		status = "degraded"
	case err != nil:
		status = "failed"
	}
	c.sessions.WithLabelValues(status).Inc()
	if result != nil && result.Elapsed > 0 {
		c.sessionDuration.Observe(result.Elapsed.Seconds())
	}
}
