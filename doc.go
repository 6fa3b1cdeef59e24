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

/*
Package sft transfers files between two machines over a serial line.

The receiver drives the transfer: it asks for the file name, the file size
and then each chunk by offset, repeating any request whose reply is lost or
corrupted. The sender only answers. Every message travels in a frame of
command byte, little-endian length, payload and a 16-bit additive checksum.

In smart mode both ends first negotiate at 115200 baud: the initiator probes
for a peer, the two agree on a baud rate, chunk size and transfer mode, switch
speed together and confirm the new link before any data moves. When any step
fails the port is returned to its original speed and the session reports a
degraded outcome, so the caller can continue with manually configured
parameters.

Basic Usage:

	import (
	    "github.com/ZaparooProject/go-sft"
	    "github.com/ZaparooProject/go-sft/transport/uart"
	)

	// On the sending machine
	session, err := sft.NewSession(uart.Open, "/dev/ttyUSB0")
	if err != nil {
	    log.Fatal(err)
	}
	result, err := session.Send(ctx, "photos/")
	if sft.IsDegraded(err) {
	    // negotiation failed, the port is back at 115200
	}

	// On the receiving machine
	session, err := sft.NewSession(uart.Open, "COM3",
	    sft.WithObserver(func(e sft.Event) {
	        if e.Type == sft.EventFileProgress {
	            fmt.Printf("%s %d/%d\n", e.File, e.Offset, e.Total)
	        }
	    }),
	)
	result, err := session.Receive(ctx, "incoming/")

Manual Mode:

Both ends must use the same baud rate and chunk size:

	session, err := sft.NewSession(uart.Open, "/dev/ttyUSB0",
	    sft.WithSmartMode(false),
	    sft.WithBaudRate(921600),
	    sft.WithChunkSize(2048),
	)

Lower-level pieces (Link, Sender, Receiver, Negotiator) can be used directly
over any Transport.

Error Handling:

	if errors.Is(err, sft.ErrRetriesExhausted) {
	    // the peer stopped answering
	}
	var de *sft.DegradedError
	if errors.As(err, &de) {
	    fmt.Println("negotiation failed during", de.Phase)
	}

Thread Safety:

A Session may be reused for successive transfers but runs one at a time.
Links, senders and receivers belong to the goroutine that created them.
*/
package sft
