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

package sft

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/ZaparooProject/go-sft/files"
)

// SourceFile is an open file the sender serves byte ranges from
type SourceFile interface {
	io.ReaderAt
	io.Closer
	Size() int64
}

// FileSource opens files for a sender. Names are slash-separated and
// relative to the source's root.
type FileSource interface {
	Open(name string) (SourceFile, error)
}

// SinkFile is an output file the receiver appends to
type SinkFile interface {
	io.Writer
	io.Closer
	// Path returns where the file was actually created
	Path() string
}

// FileSink creates output files for a receiver. It owns sanitizing names,
// creating directories and resolving conflicts with existing files.
type FileSink interface {
	Create(name string) (SinkFile, error)
	// CheckWritable reports whether files can be created under dir, a
	// slash-separated path relative to the sink's root
	CheckWritable(dir string) error
}

// DirSource serves files relative to a local directory
type DirSource struct {
	Root string
}

// Open implements FileSource
func (d DirSource) Open(name string) (SourceFile, error) {
	r, err := files.Open(filepath.Join(d.Root, filepath.FromSlash(name)))
	if err != nil {
		return nil, err
	}
	return r, nil
}

// DirSink stores received files under a local directory. Names are
// sanitized, missing directories are created and existing files are kept,
// the new file being renamed name_N.ext.
type DirSink struct {
	Root string
}

// Create implements FileSink
func (d DirSink) Create(name string) (SinkFile, error) {
	w, err := files.Create(d.Root, name)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// CheckWritable implements FileSink
func (d DirSink) CheckWritable(dir string) error {
	target := d.Root
	if norm := files.Normalize(dir); norm != "" {
		target = filepath.Join(d.Root, filepath.FromSlash(norm))
	}
	if err := files.CheckWritable(target); err != nil {
		return fmt.Errorf("%s is not writable: %w", target, err)
	}
	return nil
}
