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

// Package detection finds serial ports a transfer can run over.
package detection

import (
	"errors"
	"fmt"
	"sort"

	"go.bug.st/serial/enumerator"
)

// ErrNoPorts is returned when no port survives filtering
var ErrNoPorts = errors.New("no serial ports found")

// Port describes one serial device
type Port struct {
	Name         string `json:"name" yaml:"name"`
	VIDPID       string `json:"vidpid,omitempty" yaml:"vidpid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty" yaml:"serial_number,omitempty"`
	Product      string `json:"product,omitempty" yaml:"product,omitempty"`
	IsUSB        bool   `json:"usb" yaml:"usb"`
}

// Options filters the port list
type Options struct {
	// Blocklist holds VID:PID pairs never returned
	Blocklist []string
	// IgnorePaths holds device paths never returned
	IgnorePaths []string
	// USBOnly drops ports without USB descriptors, such as built-in UARTs
	USBOnly bool
}

// DefaultOptions returns options using DefaultBlocklist
func DefaultOptions() Options {
	return Options{Blocklist: DefaultBlocklist()}
}

type lister func() ([]*enumerator.PortDetails, error)

// ListPorts enumerates serial ports, USB adapters first, each group sorted
// by name
func ListPorts(opts Options) ([]Port, error) {
	return listPorts(enumerator.GetDetailedPortsList, opts)
}

// FirstCandidate returns the port a transfer should use when none was
// configured
func FirstCandidate(opts Options) (Port, error) {
	return firstCandidate(enumerator.GetDetailedPortsList, opts)
}

func listPorts(list lister, opts Options) ([]Port, error) {
	details, err := list()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}

	ports := make([]Port, 0, len(details))
	for _, d := range details {
		if d == nil || d.Name == "" {
			continue
		}
		if IsPathIgnored(d.Name, opts.IgnorePaths) {
			continue
		}

		port := Port{Name: d.Name, IsUSB: d.IsUSB}
		if d.IsUSB {
			port.VIDPID = ParseVIDPID(d.VID + ":" + d.PID)
			port.SerialNumber = d.SerialNumber
			port.Product = d.Product
			if IsBlocked(port.VIDPID, opts.Blocklist) {
				continue
			}
		} else if opts.USBOnly {
			continue
		}
		ports = append(ports, port)
	}

	sort.SliceStable(ports, func(i, j int) bool {
		if ports[i].IsUSB != ports[j].IsUSB {
			return ports[i].IsUSB
		}
		return ports[i].Name < ports[j].Name
	})
	return ports, nil
}

func firstCandidate(list lister, opts Options) (Port, error) {
	ports, err := listPorts(list, opts)
	if err != nil {
		return Port{}, err
	}
	if len(ports) == 0 {
		return Port{}, ErrNoPorts
	}
	return ports[0], nil
}
