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

package detection

import (
	"path/filepath"
	"strings"
)

// DefaultBlocklist returns USB adapters that should never be offered as a
// transfer port. Entries are VID:PID in hexadecimal, case-insensitive.
func DefaultBlocklist() []string {
	return []string{
		// Add adapters that misbehave when opened as they are found, e.g.
		// "1234:5678", // vendor X debug probe that resets its target on open
	}
}

// IsBlocked reports whether vidpid appears in blocklist
func IsBlocked(vidpid string, blocklist []string) bool {
	vidpid = strings.ToUpper(strings.TrimSpace(vidpid))
	if vidpid == "" {
		return false
	}

	for _, blocked := range blocklist {
		if normalized := ParseVIDPID(blocked); normalized != "" && normalized == vidpid {
			return true
		}
	}
	return false
}

// ParseVIDPID extracts an uppercase "VID:PID" from descriptors such as
// "VID:0403 PID:6001", "vendor=0403 product=6001" or plain "0403:6001".
// It returns "" when no pair is found.
func ParseVIDPID(descriptor string) string {
	descriptor = strings.ToUpper(strings.TrimSpace(descriptor))

	vid := hexAfter(descriptor, "VID:", "VENDOR=", "VID=")
	pid := hexAfter(descriptor, "PID:", "PRODUCT=", "PID=")
	if vid != "" && pid != "" {
		return vid + ":" + pid
	}

	parts := strings.Split(descriptor, ":")
	if len(parts) == 2 && isHex(parts[0]) && isHex(parts[1]) {
		return descriptor
	}
	return ""
}

// hexAfter returns the hex digits following the first prefix present in s
func hexAfter(s string, prefixes ...string) string {
	for _, prefix := range prefixes {
		idx := strings.Index(s, prefix)
		if idx < 0 {
			continue
		}
		rest := s[idx+len(prefix):]
		end := strings.IndexFunc(rest, func(r rune) bool { return !isHexRune(r) })
		if end < 0 {
			end = len(rest)
		}
		return rest[:end]
	}
	return ""
}

func isHex(s string) bool {
	if s == "" {
		return false
	}
	return strings.IndexFunc(s, func(r rune) bool { return !isHexRune(r) }) < 0
}

func isHexRune(r rune) bool {
	return (r >= '0' && r <= '9') || (r >= 'A' && r <= 'F') || (r >= 'a' && r <= 'f')
}

// IsPathIgnored reports whether devicePath matches an entry of ignorePaths.
// Paths are cleaned and compared case-insensitively so "com3" matches "COM3".
func IsPathIgnored(devicePath string, ignorePaths []string) bool {
	if devicePath == "" {
		return false
	}

	device := normalizedPath(devicePath)
	for _, ignored := range ignorePaths {
		if ignored != "" && normalizedPath(ignored) == device {
			return true
		}
	}
	return false
}

func normalizedPath(path string) string {
	return strings.ToLower(filepath.Clean(path))
}
