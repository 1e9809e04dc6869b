// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025 Canonical Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

// Package memfs is an in-memory read-write filesystem provider. It backs
// the system volume in tests and in the userspace kernel when no host
// directory is configured.
package memfs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/exoscore/exos/vfs"
)

type node struct {
	name     string
	parent   *node
	children []*node
	folder   bool
	data     []byte
	modified time.Time
}

func (n *node) child(name string) *node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *node) info() vfs.FileInfo {
	attr := vfs.Attr(0)
	if n.folder {
		attr |= vfs.AttrFolder
	}
	return vfs.FileInfo{
		Name:     n.name,
		Attr:     attr,
		Size:     int64(len(n.data)),
		Modified: n.modified,
	}
}

// FS is the in-memory filesystem. The zero value is not usable; use New.
type FS struct {
	mu     sync.Mutex
	volume string
	root   *node
}

// New creates an empty filesystem with the given volume name.
func New(volume string) *FS {
	return &FS{
		volume: volume,
		root:   &node{folder: true, modified: time.Now()},
	}
}

// VolumeInfo implements vfs.FileSystem.
func (f *FS) VolumeInfo() vfs.VolumeInfo {
	return vfs.VolumeInfo{Name: f.volume}
}

func splitClean(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// find walks to a node; the caller holds f.mu.
func (f *FS) find(path string) *node {
	cur := f.root
	for _, part := range splitClean(path) {
		cur = cur.child(part)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// PathExists implements vfs.FileSystem.
func (f *FS) PathExists(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.find(path)
	return n != nil && n.folder
}

// CreateFolder implements vfs.FolderMaker, creating missing parents.
func (f *FS) CreateFolder(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cur := f.root
	for _, part := range splitClean(path) {
		child := cur.child(part)
		if child == nil {
			child = &node{name: part, parent: cur, folder: true, modified: time.Now()}
			cur.children = append(cur.children, child)
		} else if !child.folder {
			return fmt.Errorf("cannot create folder %q: %w", path, vfs.ErrExists)
		}
		cur = child
	}
	return nil
}

// WriteFile creates or replaces a file with the given content, creating
// parent folders as needed.
func (f *FS) WriteFile(path string, data []byte) error {
	dir, leaf := splitLeaf(path)
	if leaf == "" {
		return fmt.Errorf("cannot write %q: %w", path, vfs.ErrInvalidPath)
	}
	if err := f.CreateFolder(dir); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	parent := f.find(dir)
	child := parent.child(leaf)
	if child == nil {
		child = &node{name: leaf, parent: parent, modified: time.Now()}
		parent.children = append(parent.children, child)
	} else if child.folder {
		return fmt.Errorf("cannot write %q: %w", path, vfs.ErrNotFolder)
	}
	child.data = append([]byte(nil), data...)
	child.modified = time.Now()
	return nil
}

// ReadFile returns a copy of a file's content.
func (f *FS) ReadFile(path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.find(path)
	if n == nil {
		return nil, fmt.Errorf("cannot read %q: %w", path, vfs.ErrNotFound)
	}
	if n.folder {
		return nil, fmt.Errorf("cannot read folder %q: %w", path, vfs.ErrNotFolder)
	}
	return append([]byte(nil), n.data...), nil
}

func splitLeaf(path string) (dir, leaf string) {
	parts := splitClean(path)
	if len(parts) == 0 {
		return "/", ""
	}
	return "/" + strings.Join(parts[:len(parts)-1], "/"), parts[len(parts)-1]
}

// Open implements vfs.FileSystem.
func (f *FS) Open(path string) (vfs.File, error) {
	dir, leaf := splitLeaf(path)
	f.mu.Lock()
	defer f.mu.Unlock()

	if vfs.HasWildcard(leaf) {
		parent := f.find(dir)
		if parent == nil {
			return nil, fmt.Errorf("cannot open %q: %w", path, vfs.ErrNotFound)
		}
		if !parent.folder {
			return nil, fmt.Errorf("cannot enumerate %q: %w", path, vfs.ErrNotFolder)
		}
		var entries []vfs.FileInfo
		for _, c := range parent.children {
			if ok, _ := doublestar.Match(leaf, c.name); ok {
				entries = append(entries, c.info())
			}
		}
		return &file{fs: f, info: parent.info(), entries: entries, enum: true}, nil
	}

	n := f.find(path)
	if n == nil {
		return nil, fmt.Errorf("cannot open %q: %w", path, vfs.ErrNotFound)
	}
	if n.folder {
		var entries []vfs.FileInfo
		for _, c := range n.children {
			entries = append(entries, c.info())
		}
		return &file{fs: f, info: n.info(), entries: entries, enum: true}, nil
	}
	return &file{fs: f, node: n, info: n.info()}, nil
}

type file struct {
	fs      *FS
	node    *node
	info    vfs.FileInfo
	pos     int64
	enum    bool
	entries []vfs.FileInfo
	cursor  int
	closed  bool
}

func (h *file) Info() vfs.FileInfo { return h.info }

func (h *file) Read(p []byte) (int, error) {
	if h.enum {
		return 0, fmt.Errorf("cannot read folder: %w", vfs.ErrNotFolder)
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	if h.pos >= int64(len(h.node.data)) {
		return 0, io.EOF
	}
	n := copy(p, h.node.data[h.pos:])
	h.pos += int64(n)
	return n, nil
}

func (h *file) Write(p []byte) (int, error) {
	if h.enum {
		return 0, fmt.Errorf("cannot write folder: %w", vfs.ErrNoPermission)
	}
	h.fs.mu.Lock()
	defer h.fs.mu.Unlock()
	data := h.node.data
	need := h.pos + int64(len(p))
	if int64(len(data)) < need {
		grown := make([]byte, need)
		copy(grown, data)
		data = grown
	}
	copy(data[h.pos:], p)
	h.node.data = data
	h.node.modified = time.Now()
	h.pos += int64(len(p))
	return len(p), nil
}

func (h *file) ReadNext() (*vfs.FileInfo, error) {
	if !h.enum {
		return nil, fmt.Errorf("cannot enumerate file: %w", vfs.ErrNotFolder)
	}
	if h.cursor >= len(h.entries) {
		return nil, io.EOF
	}
	fi := h.entries[h.cursor]
	h.cursor++
	return &fi, nil
}

func (h *file) Close() error {
	h.closed = true
	return nil
}
