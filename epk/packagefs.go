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

package epk

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/exoscore/exos/vfs"
)

// aliasMaxDepth bounds in-package folder-alias expansion.
const aliasMaxDepth = 32

// pfsNode is one node of the PackageFS tree.
type pfsNode struct {
	name     string
	parent   *pfsNode
	children []*pfsNode
	nodeType NodeType
	attr     vfs.Attr
	entry    *TOCEntry
	// defined marks nodes that a TOC entry described; implicit interior
	// folders stay undefined and read as plain read-only folders.
	defined  bool
	modified time.Time
}

func (n *pfsNode) child(name string) *pfsNode {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (n *pfsNode) info() vfs.FileInfo {
	fi := vfs.FileInfo{
		Name:     n.name,
		Attr:     n.attr,
		Modified: n.modified,
	}
	if n.nodeType == NodeFile && n.entry != nil {
		fi.Size = int64(n.entry.DataSize)
	}
	return fi
}

// PackageFS serves a validated package as a read-only filesystem. It
// refuses any mutation at the dispatch layer.
type PackageFS struct {
	mu   sync.Mutex
	name string
	pkg  *ValidatedPackage
	root *pfsNode
}

// NewPackageFS builds the node tree from the validated package's TOC.
// A TOC entry whose path collides with an already defined node rejects
// the package.
func NewPackageFS(name string, pkg *ValidatedPackage) (*PackageFS, error) {
	fs := &PackageFS{
		name: name,
		pkg:  pkg,
		root: &pfsNode{
			nodeType: NodeRoot,
			attr:     vfs.AttrFolder | vfs.AttrReadOnly,
			defined:  true,
		},
	}
	for i, e := range pkg.TOC() {
		if err := fs.insert(e); err != nil {
			return nil, fmt.Errorf("TOC entry %d (%q): %w", i, e.Path, err)
		}
	}
	return fs, nil
}

// entryAttr translates TOC permissions to attribute bits: folder flag,
// exec flag if any execute bit is set, always read-only.
func entryAttr(e *TOCEntry) vfs.Attr {
	attr := vfs.AttrReadOnly
	if e.Type == NodeFolder || e.Type == NodeFolderAlias {
		attr |= vfs.AttrFolder
	}
	if e.Executable() {
		attr |= vfs.AttrExecutable
	}
	return attr
}

func (fs *PackageFS) insert(e *TOCEntry) error {
	parts := splitPackagePath(e.Path)
	if len(parts) == 0 {
		return fmt.Errorf("%w: empty entry path", ErrInvalidPackage)
	}
	cur := fs.root
	for _, part := range parts[:len(parts)-1] {
		child := cur.child(part)
		if child == nil {
			child = &pfsNode{
				name:     part,
				parent:   cur,
				nodeType: NodeFolder,
				attr:     vfs.AttrFolder | vfs.AttrReadOnly,
			}
			cur.children = append(cur.children, child)
		}
		if !child.attr.IsFolder() {
			return fmt.Errorf("%w: %q crosses a file", ErrInvalidPackage, e.Path)
		}
		cur = child
	}

	leaf := parts[len(parts)-1]
	node := cur.child(leaf)
	if node != nil {
		// a previous TOC entry must not have defined this path; an
		// implicit folder may be defined once, by a folder entry
		if node.defined || e.Type != NodeFolder {
			return fmt.Errorf("%w: duplicate entry", ErrInvalidPackage)
		}
	} else {
		node = &pfsNode{name: leaf, parent: cur}
		cur.children = append(cur.children, node)
	}
	node.nodeType = e.Type
	node.attr = entryAttr(e)
	node.entry = e
	node.defined = true
	node.modified = e.Modified
	return nil
}

func splitPackagePath(path string) []string {
	var parts []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			parts = append(parts, p)
		}
	}
	return parts
}

// resolve walks an in-package path, expanding folder-aliases up to the
// depth bound. The caller holds fs.mu.
func (fs *PackageFS) resolve(path string, depth int) (*pfsNode, error) {
	if depth > aliasMaxDepth {
		return nil, fmt.Errorf("cannot resolve %q: %w", path, vfs.ErrAliasDepth)
	}
	cur := fs.root
	parts := splitPackagePath(path)
	for i, part := range parts {
		if part == ".." {
			if cur.parent != nil {
				cur = cur.parent
			}
			continue
		}
		child := cur.child(part)
		if child == nil {
			return nil, fmt.Errorf("cannot resolve %q: %w", path, ErrNotFound)
		}
		if child.nodeType == NodeFolderAlias {
			target := child.entry.Alias
			if i < len(parts)-1 {
				target = target + "/" + strings.Join(parts[i+1:], "/")
			}
			return fs.resolve(target, depth+1)
		}
		cur = child
	}
	return cur, nil
}

// VolumeInfo implements vfs.FileSystem.
func (fs *PackageFS) VolumeInfo() vfs.VolumeInfo {
	return vfs.VolumeInfo{Name: fs.name, ReadOnly: true}
}

// PathExists implements vfs.FileSystem; it reports folders only.
func (fs *PackageFS) PathExists(path string) bool {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	n, err := fs.resolve(path, 0)
	return err == nil && n.attr.IsFolder()
}

// Open implements vfs.FileSystem. A trailing wildcard yields an
// enumeration whose cursor walks the matching siblings.
func (fs *PackageFS) Open(path string) (vfs.File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parts := splitPackagePath(path)
	if len(parts) > 0 && vfs.HasWildcard(parts[len(parts)-1]) {
		pattern := parts[len(parts)-1]
		dir, err := fs.resolve(strings.Join(parts[:len(parts)-1], "/"), 0)
		if err != nil {
			return nil, err
		}
		if !dir.attr.IsFolder() {
			return nil, fmt.Errorf("cannot enumerate %q: %w", path, vfs.ErrNotFolder)
		}
		var entries []vfs.FileInfo
		for _, c := range dir.children {
			ok, err := doublestar.Match(pattern, c.name)
			if err != nil {
				return nil, fmt.Errorf("%w: bad pattern %q", vfs.ErrInvalidPath, pattern)
			}
			if ok {
				entries = append(entries, c.info())
			}
		}
		return &pfsFile{fs: fs, info: dir.info(), entries: entries, enum: true}, nil
	}

	n, err := fs.resolve(path, 0)
	if err != nil {
		return nil, err
	}
	if n.attr.IsFolder() {
		var entries []vfs.FileInfo
		for _, c := range n.children {
			entries = append(entries, c.info())
		}
		return &pfsFile{fs: fs, info: n.info(), entries: entries, enum: true}, nil
	}
	return &pfsFile{fs: fs, info: n.info(), data: fs.pkg.InlineData(n.entry)}, nil
}

// pfsFile is an open PackageFS handle. Handles are single-owner;
// concurrent readers open their own.
type pfsFile struct {
	fs   *PackageFS
	info vfs.FileInfo
	data []byte
	pos  int64

	enum    bool
	entries []vfs.FileInfo
	cursor  int
}

func (f *pfsFile) Info() vfs.FileInfo { return f.info }

func (f *pfsFile) Read(p []byte) (int, error) {
	if f.enum {
		return 0, fmt.Errorf("cannot read folder: %w", vfs.ErrNotFolder)
	}
	if f.pos >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[f.pos:])
	f.pos += int64(n)
	return n, nil
}

// Write always fails: PackageFS is read-only by construction.
func (f *pfsFile) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("cannot write package file: %w", ErrNoPermission)
}

func (f *pfsFile) ReadNext() (*vfs.FileInfo, error) {
	if !f.enum {
		return nil, fmt.Errorf("cannot enumerate file: %w", vfs.ErrNotFolder)
	}
	if f.cursor >= len(f.entries) {
		return nil, io.EOF
	}
	fi := f.entries[f.cursor]
	f.cursor++
	return &fi, nil
}

func (f *pfsFile) Close() error { return nil }
