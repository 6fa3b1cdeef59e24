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
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ZaparooProject/go-sft/detection"
)

// version is set at build time via -ldflags "-X main.version=x.y.z"
var version = "dev"

func newPortsCmd(a *app) *cobra.Command {
	var (
		format  string
		usbOnly bool
	)
	cmd := &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts := a.config.detectionOptions()
			opts.USBOnly = usbOnly
			ports, err := detection.ListPorts(opts)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), format, ports, func(tw *tabwriter.Writer) {
				if len(ports) == 0 {
					_, _ = fmt.Fprintln(tw, "No serial ports found.")
					return
				}
				_, _ = fmt.Fprintln(tw, "PORT\tUSB\tVID:PID\tSERIAL\tPRODUCT")
				for _, p := range ports {
					_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", p.Name, p.IsUSB, p.VIDPID, p.SerialNumber, p.Product)
				}
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json, yaml")
	cmd.Flags().BoolVar(&usbOnly, "usb", false, "only list USB adapters")
	return cmd
}

type versionInfo struct {
	Version string `json:"version" yaml:"version"`
	Go      string `json:"go" yaml:"go"`
	OS      string `json:"os" yaml:"os"`
	Arch    string `json:"arch" yaml:"arch"`
}

func newVersionCmd() *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show the sft version",
		Args:  cobra.NoArgs,
		// Printing the version needs no config or logger
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versionInfo{Version: version, Go: runtime.Version(), OS: runtime.GOOS, Arch: runtime.GOARCH}
			return writeOutput(cmd.OutOrStdout(), format, info, func(tw *tabwriter.Writer) {
				_, _ = fmt.Fprintf(tw, "sft version %s (%s %s/%s)\n", info.Version, info.Go, info.OS, info.Arch)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", "table", "output format: table, json, yaml")
	return cmd
}
