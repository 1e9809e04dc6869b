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

// Package hostfs maps a host directory into the VFS provider contract;
// the userspace shell uses it as its active volume so kernel state
// survives across invocations.
package hostfs

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/exoscore/exos/vfs"
)

// FS serves a host directory subtree.
type FS struct {
	volume string
	root   string
}

// New creates a provider rooted at dir, creating it if missing.
func New(volume, dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &FS{volume: volume, root: abs}, nil
}

// VolumeInfo implements vfs.FileSystem.
func (f *FS) VolumeInfo() vfs.VolumeInfo {
	return vfs.VolumeInfo{Name: f.volume}
}

// hostPath maps a provider path below the root, refusing escapes.
func (f *FS) hostPath(path string) (string, error) {
	clean := filepath.Clean("/" + strings.TrimPrefix(path, "/"))
	if clean == "/.." || strings.HasPrefix(clean, "/../") {
		return "", fmt.Errorf("%w: %q", vfs.ErrInvalidPath, path)
	}
	return filepath.Join(f.root, filepath.FromSlash(clean)), nil
}

// PathExists implements vfs.FileSystem.
func (f *FS) PathExists(path string) bool {
	hp, err := f.hostPath(path)
	if err != nil {
		return false
	}
	fi, err := os.Stat(hp)
	return err == nil && fi.IsDir()
}

// CreateFolder implements vfs.FolderMaker.
func (f *FS) CreateFolder(path string) error {
	hp, err := f.hostPath(path)
	if err != nil {
		return err
	}
	return os.MkdirAll(hp, 0755)
}

// WriteFile stores a whole file, creating parents.
func (f *FS) WriteFile(path string, data []byte) error {
	hp, err := f.hostPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(hp), 0755); err != nil {
		return err
	}
	return os.WriteFile(hp, data, 0644)
}

// ReadFile reads a whole file.
func (f *FS) ReadFile(path string) ([]byte, error) {
	hp, err := f.hostPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(hp)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot read %q: %w", path, vfs.ErrNotFound)
	}
	return data, err
}

func infoFor(fi os.FileInfo) vfs.FileInfo {
	attr := vfs.Attr(0)
	if fi.IsDir() {
		attr |= vfs.AttrFolder
	}
	if fi.Mode()&0o111 != 0 {
		attr |= vfs.AttrExecutable
	}
	if fi.Mode()&0o200 == 0 {
		attr |= vfs.AttrReadOnly
	}
	return vfs.FileInfo{
		Name:     fi.Name(),
		Attr:     attr,
		Size:     fi.Size(),
		Modified: fi.ModTime(),
	}
}

// Open implements vfs.FileSystem.
func (f *FS) Open(path string) (vfs.File, error) {
	dir, leaf := filepath.Split(strings.TrimSuffix(path, "/"))
	if vfs.HasWildcard(leaf) {
		return f.openEnum(dir, leaf)
	}
	hp, err := f.hostPath(path)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(hp)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot open %q: %w", path, vfs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return f.openEnum(path, "*")
	}
	h, err := os.OpenFile(hp, os.O_RDWR, 0)
	if err != nil {
		// fall back to read-only files
		h, err = os.Open(hp)
		if err != nil {
			return nil, err
		}
	}
	return &file{info: infoFor(fi), h: h}, nil
}

func (f *FS) openEnum(dir, pattern string) (vfs.File, error) {
	hp, err := f.hostPath(dir)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(hp)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("cannot open %q: %w", dir, vfs.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("cannot enumerate %q: %w", dir, vfs.ErrNotFolder)
	}
	des, err := os.ReadDir(hp)
	if err != nil {
		return nil, err
	}
	var entries []vfs.FileInfo
	for _, de := range des {
		ok, err := doublestar.Match(pattern, de.Name())
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q", vfs.ErrInvalidPath, pattern)
		}
		if !ok {
			continue
		}
		dfi, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, infoFor(dfi))
	}
	return &file{info: infoFor(fi), entries: entries, enum: true}, nil
}

type file struct {
	info    vfs.FileInfo
	h       *os.File
	enum    bool
	entries []vfs.FileInfo
	cursor  int
}

func (h *file) Info() vfs.FileInfo { return h.info }

func (h *file) Read(p []byte) (int, error) {
	if h.enum {
		return 0, fmt.Errorf("cannot read folder: %w", vfs.ErrNotFolder)
	}
	return h.h.Read(p)
}

func (h *file) Write(p []byte) (int, error) {
	if h.enum {
		return 0, fmt.Errorf("cannot write folder: %w", vfs.ErrNoPermission)
	}
	return h.h.Write(p)
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
	if h.h != nil {
		return h.h.Close()
	}
	return nil
}
