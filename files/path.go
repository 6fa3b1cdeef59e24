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

// Package files provides the local file system side of a transfer: range
// reads for senders, append writes for receivers, directory walking and the
// name rules that keep received paths inside their destination.
package files

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// MaxNameLength is the longest single path component Sanitize produces
const MaxNameLength = 255

// DefaultName replaces components that sanitize to nothing
const DefaultName = "unnamed_file"

// maxConflicts bounds the search for a free name_N.ext
const maxConflicts = 9999

const unsafeChars = `<>:"/\|?*`

// Sanitize makes one path component safe on every common file system.
// Reserved characters and control bytes become '_', leading and trailing
// spaces and dots are removed and long names are shortened, keeping the
// extension.
func Sanitize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		if r < 0x20 || strings.ContainsRune(unsafeChars, r) {
			b.WriteByte('_')
			continue
		}
		b.WriteRune(r)
	}

	safe := strings.Trim(b.String(), " .")
	if safe == "" {
		return DefaultName
	}
	if len(safe) > MaxNameLength {
		ext := path.Ext(safe)
		if len(ext) >= MaxNameLength {
			ext = ""
		}
		safe = truncateUTF8(safe[:len(safe)-len(ext)], MaxNameLength-len(ext)) + ext
	}
	return safe
}

// Normalize converts a relative path received from a peer to a clean
// slash-separated form: backslashes become slashes, empty and "." components
// are dropped, and every remaining component is sanitized. The result never
// starts with a slash and never contains "..".
func Normalize(rel string) string {
	rel = strings.ReplaceAll(rel, `\`, "/")
	parts := strings.Split(rel, "/")
	clean := parts[:0]
	for _, part := range parts {
		if part == "" || part == "." {
			continue
		}
		clean = append(clean, Sanitize(part))
	}
	return strings.Join(clean, "/")
}

// SafeJoin places a peer supplied relative path under root
func SafeJoin(root, rel string) string {
	norm := Normalize(rel)
	if norm == "" {
		norm = DefaultName
	}
	return filepath.Join(root, filepath.FromSlash(norm))
}

// Unique returns p if nothing exists there, otherwise the first free
// name_N.ext beside it
func Unique(p string) (string, error) {
	if _, err := os.Lstat(p); os.IsNotExist(err) {
		return p, nil
	} else if err != nil {
		return "", fmt.Errorf("stat %s: %w", p, err)
	}

	dir, base := filepath.Split(p)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; i <= maxConflicts; i++ {
		candidate := filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if _, err := os.Lstat(candidate); os.IsNotExist(err) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %s after %d attempts", p, maxConflicts)
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
