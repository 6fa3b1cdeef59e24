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
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	sft "github.com/ZaparooProject/go-sft"
	"github.com/ZaparooProject/go-sft/detection"
	"github.com/ZaparooProject/go-sft/transport/uart"
)

// app holds state shared by every command, filled in by PersistentPreRunE
type app struct {
	factory sft.TransportFactory
	stderr  *os.File
	logger  zerolog.Logger

	cfgFile string
	config  cliConfig
	// extra holds command-specific session options
	extra []sft.Option

	flags struct {
		port        string
		logLevel    string
		logFormat   string
		baudRate    int
		chunkSize   int
		maxRetries  int
		manual      bool
		fallback    bool
		interactive bool
	}
}

func newRootCmd() *cobra.Command {
	return buildRootCmd(&app{factory: uart.Open, stderr: os.Stderr})
}

func buildRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "sft",
		Short: "Serial file transfer",
		Long: `sft moves files between two machines connected by a serial line.

In smart mode (the default) both ends negotiate the fastest common baud rate
and chunk size before transferring. With --manual both ends must be started
with the same --baud and --chunk-size.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgFile, "config", "", "TOML config file")
	pf.StringVarP(&a.flags.port, "port", "p", "", "serial port (default: first detected USB adapter)")
	pf.IntVarP(&a.flags.baudRate, "baud", "b", sft.DefaultDiscoveryBaudRate, "baud rate the port is opened at")
	pf.IntVar(&a.flags.chunkSize, "chunk-size", sft.DefaultChunkSize, "bytes per data request in manual mode")
	pf.IntVar(&a.flags.maxRetries, "retries", 0, "attempts per data request (default from config)")
	pf.BoolVar(&a.flags.manual, "manual", false, "skip negotiation and use --baud and --chunk-size")
	pf.BoolVar(&a.flags.fallback, "fallback", false, "continue in manual mode when negotiation fails")
	pf.StringVar(&a.flags.logLevel, "log-level", "info", "log level: trace, debug, info, warn, error")
	pf.StringVar(&a.flags.logFormat, "log-format", "auto", "log format: auto, console, json")
	pf.BoolVar(&a.flags.interactive, "progress", true, "show a live progress view when stderr is a terminal")

	root.AddCommand(
		newSendCmd(a),
		newReceiveCmd(a),
		newListenCmd(a),
		newPortsCmd(a),
		newVersionCmd(),
	)
	return root
}

// setup resolves the configuration and builds the logger
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(a.cfgFile)
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Port = a.flags.port
	}
	if flags.Changed("baud") {
		cfg.BaudRate = a.flags.baudRate
	}
	if flags.Changed("chunk-size") {
		cfg.ChunkSize = a.flags.chunkSize
	}
	if flags.Changed("retries") {
		cfg.MaxRetries = a.flags.maxRetries
	}
	if flags.Changed("manual") {
		cfg.Smart = !a.flags.manual
	}
	if flags.Changed("fallback") {
		cfg.Fallback = a.flags.fallback
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = a.flags.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = a.flags.logFormat
	}
	a.config = cfg

	a.logger, err = newLogger(a.stderr, cfg.LogLevel, cfg.LogFormat, isTerminal(a.stderr))
	return err
}

// resolvePort returns the configured port or the first detected one
func (a *app) resolvePort() (string, error) {
	if a.config.Port != "" {
		return a.config.Port, nil
	}
	port, err := detection.FirstCandidate(a.config.detectionOptions())
	if err != nil {
		return "", fmt.Errorf("no --port given and detection failed: %w", err)
	}
	a.logger.Info().Str("port", port.Name).Str("vidpid", port.VIDPID).Msg("using detected port")
	return port.Name, nil
}

// newSession creates a session on the resolved port with extra options
// appended after the configured ones
func (a *app) newSession(extra ...sft.Option) (*sft.Session, error) {
	port, err := a.resolvePort()
	if err != nil {
		return nil, err
	}
	return a.newSessionOn(port, extra...)
}

func (a *app) newSessionOn(port string, extra ...sft.Option) (*sft.Session, error) {
	opts := append(a.config.options(), sft.WithLogger(a.logger))
	opts = append(opts, a.extra...)
	return sft.NewSession(a.factory, port, append(opts, extra...)...)
}

// interactive reports whether the live view should replace log lines
func (a *app) interactive() bool {
	return a.flags.interactive && a.config.LogFormat != "json" && isTerminal(a.stderr)
}

// runSession runs fn with progress reporting and prints a summary to out
func (a *app) runSession(
	ctx context.Context,
	out io.Writer,
	title string,
	fn func(context.Context, *sft.Session) (*sft.Result, error),
) error {
	if !a.interactive() {
		session, err := a.newSession(sft.WithObserver(logObserver(a.logger)))
		if err != nil {
			return err
		}
		result, err := fn(ctx, session)
		if err != nil {
			return err
		}
		printSummary(out, result)
		return nil
	}

	program := tea.NewProgram(newProgressModel(title), tea.WithOutput(a.stderr), tea.WithInput(nil),
		tea.WithoutSignalHandler())
	observer, stopEvents := programObserver(program)

	// Only errors are logged while the view owns the terminal
	a.logger = a.logger.Level(zerolog.ErrorLevel)
	session, err := a.newSession(sft.WithObserver(observer))
	if err != nil {
		stopEvents()
		return err
	}

	var result *sft.Result
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		result, err = fn(ctx, session)
		stopEvents()
		program.Send(doneMsg{result: result, err: err})
	}()

	_, runErr := program.Run()
	<-finished
	if err != nil {
		return err
	}
	if runErr != nil {
		return fmt.Errorf("progress view: %w", runErr)
	}
	printSummary(out, result)
	return nil
}

func printSummary(out io.Writer, result *sft.Result) {
	for _, f := range result.Files {
		_, _ = fmt.Fprintf(out, "%s\t%s\n", formatBytes(f.Size), f.Path)
	}
	mode := "manual"
	switch {
	case result.Degraded:
		mode = "manual (fallback)"
	case result.Outcome != nil:
		mode = "negotiated"
	}
	_, _ = fmt.Fprintf(out, "%d file(s), %s in %s at %d baud, chunk %d, %s\n",
		len(result.Files), formatBytes(result.Bytes), result.Elapsed.Round(time.Millisecond),
		result.BaudRate, result.ChunkSize, mode)
}
