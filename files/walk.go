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
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Entry is one regular file found by Walk
type Entry struct {
	// Name is the slash-separated path relative to the walked root
	Name string
	Size int64
}

// Plan describes what a sender offers for a local path
type Plan struct {
	// Root is the directory names are relative to
	Root string
	// Base is the last element of the offered path; a receiver recreates it
	Base    string
	Entries []Entry
	Total   int64
	// Dir is set when the offered path is a directory
	Dir bool
}

// Names returns the relative names in transfer order
func (p Plan) Names() []string {
	names := make([]string, len(p.Entries))
	for i, e := range p.Entries {
		names[i] = e.Name
	}
	return names
}

// Walk lists the regular files under root in lexical order. Symlinks and
// other special files are skipped.
func Walk(root string) ([]Entry, int64, error) {
	var entries []Entry
	var total int64
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		entries = append(entries, Entry{Name: filepath.ToSlash(rel), Size: info.Size()})
		total += info.Size()
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("walk %s: %w", root, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, total, nil
}

// PlanFor builds the offer for path: a single file, or every file under a
// directory
func PlanFor(path string) (Plan, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Plan{}, err
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return Plan{}, err
	}

	if !info.IsDir() {
		if !info.Mode().IsRegular() {
			return Plan{}, fmt.Errorf("%s: %w", path, ErrNotRegular)
		}
		if info.Size() > math.MaxUint32 {
			return Plan{}, fmt.Errorf("%s is %d bytes, files are limited to 4 GiB", path, info.Size())
		}
		base := filepath.Base(abs)
		return Plan{
			Root:    filepath.Dir(abs),
			Base:    base,
			Entries: []Entry{{Name: base, Size: info.Size()}},
			Total:   info.Size(),
		}, nil
	}

	entries, total, err := Walk(abs)
	if err != nil {
		return Plan{}, err
	}
	for _, e := range entries {
		if e.Size > math.MaxUint32 {
			return Plan{}, fmt.Errorf("%s is %d bytes, files are limited to 4 GiB", e.Name, e.Size)
		}
	}
	return Plan{
		Root:    abs,
		Base:    filepath.Base(abs),
		Entries: entries,
		Total:   total,
		Dir:     true,
	}, nil
}
