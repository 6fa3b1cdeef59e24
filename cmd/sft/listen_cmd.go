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
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	sft "github.com/ZaparooProject/go-sft"
	"github.com/ZaparooProject/go-sft/listen"
	"github.com/ZaparooProject/go-sft/metrics"
)

func newListenCmd(a *app) *cobra.Command {
	var (
		metricsAddr string
		maxSessions int64
	)
	cmd := &cobra.Command{
		Use:   "listen [destination]",
		Short: "Receive transfers back to back until interrupted",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.config.Smart {
				return fmt.Errorf("%w: listen requires smart mode", sft.ErrInvalidParameter)
			}
			if cmd.Flags().Changed("metrics-addr") {
				a.config.MetricsAddr = metricsAddr
			}
			dest := "."
			if len(args) == 1 {
				dest = args[0]
			}

			port, err := a.resolvePort()
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			collector, err := metrics.New(reg, port)
			if err != nil {
				return err
			}

			session, err := a.newListenSession(port, collector.Observer())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			svc, err := listen.New(session, listen.Config{Dest: dest, MaxSessions: maxSessions}, listen.Callbacks{
				OnSessionComplete: func(r *sft.Result) {
					collector.ObserveSession(r, nil)
					printSummary(out, r)
				},
				OnSessionFailed: func(err error) {
					collector.ObserveSession(nil, err)
				},
			}, a.logger)
			if err != nil {
				return err
			}

			if a.config.MetricsAddr != "" {
				srv := metricsServer(a.config.MetricsAddr, reg)
				go func() {
					if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
						a.logger.Error().Err(err).Str("addr", srv.Addr).Msg("metrics server failed")
					}
				}()
				defer func() { _ = srv.Close() }()
				a.logger.Info().Str("addr", srv.Addr).Msg("serving metrics")
			}

			return svc.Run(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	cmd.Flags().Int64Var(&maxSessions, "max-sessions", 0, "stop after this many transfers (0: run until interrupted)")
	return cmd
}

// newListenSession builds the session the listen loop receives through.
// Manual fallback is switched off: with no peer on the line every listen
// window would otherwise turn into a failed manual receive.
func (a *app) newListenSession(port string, observers ...sft.Observer) (*sft.Session, error) {
	if a.config.Fallback {
		a.logger.Warn().Msg("manual fallback is not available while listening, ignoring it")
	}
	observer := sft.Observers(append([]sft.Observer{logObserver(a.logger)}, observers...)...)
	return a.newSessionOn(port, sft.WithObserver(observer), sft.WithManualFallback(false))
}

func metricsServer(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}
