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
	"os"

	"github.com/spf13/cobra"

	sft "github.com/ZaparooProject/go-sft"
)

func newSendCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "send <file|directory>",
		Short: "Send a file, or a directory as a batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("cannot send %s: %w", args[0], err)
			}
			return a.runSession(cmd.Context(), cmd.OutOrStdout(), "sft send",
				func(ctx context.Context, s *sft.Session) (*sft.Result, error) {
					return s.Send(ctx, args[0])
				})
		},
	}
}

func newReceiveCmd(a *app) *cobra.Command {
	var batch bool
	cmd := &cobra.Command{
		Use:   "receive [destination]",
		Short: "Receive a file or batch into destination (default: current directory)",
		Long: `Receive waits for a sender on the port.

A single file is written to destination, or into it under the sender's name
when destination is a directory. A batch is recreated inside destination.
In manual mode the sender's mode is unknown, so pass --batch for a directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dest := "."
			if len(args) == 1 {
				dest = args[0]
			}
			return a.runSession(cmd.Context(), cmd.OutOrStdout(), "sft receive",
				func(ctx context.Context, s *sft.Session) (*sft.Result, error) {
					return s.Receive(ctx, dest)
				})
		},
	}
	cmd.Flags().BoolVar(&batch, "batch", false, "receive a batch of files in manual mode")
	cmd.PreRunE = func(*cobra.Command, []string) error {
		a.extra = append(a.extra, sft.WithBatchReceive(batch))
		return nil
	}
	return cmd
}
