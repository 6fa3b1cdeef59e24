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

package files

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotRegular is returned when a path names something other than a file
var ErrNotRegular = errors.New("not a regular file")

// Reader serves byte ranges of an open file
type Reader struct {
	f    *os.File
	size int64
}

// Open opens path for range reads
func Open(path string) (*Reader, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s: %w", path, ErrNotRegular)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return &Reader{f: f, size: info.Size()}, nil
}

// ReadAt implements io.ReaderAt
func (r *Reader) ReadAt(p []byte, off int64) (int, error) {
	return r.f.ReadAt(p, off)
}

// Size returns the file size at the time it was opened
func (r *Reader) Size() int64 {
	return r.size
}

// Close closes the file
func (r *Reader) Close() error {
	return r.f.Close()
}

// Writer appends to a newly created file
type Writer struct {
	f       *os.File
	path    string
	written int64
}

// Create makes a new file for the peer supplied relative name under root.
// Missing directories are created; an existing file is never overwritten,
// the new one is renamed name_N.ext instead.
func Create(root, name string) (*Writer, error) {
	target := SafeJoin(root, name)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return nil, fmt.Errorf("create directory: %w", err)
	}

	for {
		p, err := Unique(target)
		if err != nil {
			return nil, err
		}
		f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, os.ErrExist) {
			// Created by someone else between Unique and OpenFile
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Writer{f: f, path: p}, nil
	}
}

// Write appends p
func (w *Writer) Write(p []byte) (int, error) {
	n, err := w.f.Write(p)
	w.written += int64(n)
	return n, err
}

// Path returns where the file was created
func (w *Writer) Path() string {
	return w.path
}

// Written returns the number of bytes appended so far
func (w *Writer) Written() int64 {
	return w.written
}

// Close flushes and closes the file
func (w *Writer) Close() error {
	if err := w.f.Sync(); err != nil {
		_ = w.f.Close()
		return err
	}
	return w.f.Close()
}

// CheckWritable reports whether files can be created in dir, creating it if
// needed
func CheckWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".sft-check-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}
