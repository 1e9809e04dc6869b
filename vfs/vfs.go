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

// Package vfs implements the unified path namespace: a tree of mount
// points with alias expansion and delegation to mounted filesystems.
package vfs

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/exoscore/exos/logger"
)

// Node is one entry of the mount tree. Interior nodes are intrinsic
// folders owned by the VFS; leaves may reference a mounted filesystem or
// carry a folder-alias target.
type Node struct {
	name        string
	parent      *Node
	children    []*Node
	mounted     FileSystem
	sourcePath  string
	aliasTarget string
	attr        Attr
	created     time.Time

	// openCount tracks open handles resolving through this node;
	// unmount refuses while it is non-zero.
	openCount int
}

// Name returns the node's component name.
func (n *Node) Name() string { return n.name }

// Parent returns the parent node, nil for the root.
func (n *Node) Parent() *Node { return n.parent }

// Attr returns the attribute bits.
func (n *Node) Attr() Attr { return n.attr }

// Mounted returns the filesystem mounted at this node, if any.
func (n *Node) Mounted() FileSystem { return n.mounted }

// SourcePath returns the source-path prefix inside the mounted
// filesystem.
func (n *Node) SourcePath() string { return n.sourcePath }

// AliasTarget returns the folder-alias target path, or "".
func (n *Node) AliasTarget() string { return n.aliasTarget }

// Children returns the ordered child names.
func (n *Node) Children() []string {
	names := make([]string, len(n.children))
	for i, c := range n.children {
		names[i] = c.name
	}
	return names
}

func (n *Node) child(name string) *Node {
	for _, c := range n.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

// VFS is the virtual filesystem: the mount tree plus the global list of
// registered filesystems. All tree mutations are serialized on a single
// mutex; mounted filesystems serialize their own entry points.
type VFS struct {
	mu          sync.Mutex
	root        *Node
	filesystems map[string]FileSystem
}

// New creates an empty namespace with just the root folder.
func New() *VFS {
	return &VFS{
		root: &Node{
			attr:    AttrFolder | AttrReadOnly,
			created: time.Now(),
		},
		filesystems: make(map[string]FileSystem),
	}
}

// Root returns the root node.
func (v *VFS) Root() *Node {
	return v.root
}

// RegisterFileSystem adds a filesystem to the global list under the
// given system name.
func (v *VFS) RegisterFileSystem(name string, fs FileSystem) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.filesystems[name]; ok {
		return fmt.Errorf("cannot register filesystem %q: %w", name, ErrExists)
	}
	v.filesystems[name] = fs
	return nil
}

// DeregisterFileSystem removes a filesystem from the global list.
func (v *VFS) DeregisterFileSystem(name string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if _, ok := v.filesystems[name]; !ok {
		return fmt.Errorf("cannot deregister filesystem %q: %w", name, ErrNotFound)
	}
	delete(v.filesystems, name)
	return nil
}

// FileSystem looks up a registered filesystem by system name.
func (v *VFS) FileSystem(name string) FileSystem {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.filesystems[name]
}

// FileSystemNames returns the registered filesystem names in no
// particular order.
func (v *VFS) FileSystemNames() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	names := make([]string, 0, len(v.filesystems))
	for name := range v.filesystems {
		names = append(names, name)
	}
	return names
}

// Mount attaches a filesystem at the given absolute path, creating
// missing parent folders as intrinsic nodes. sourcePath optionally
// offsets every delegated path inside the mounted filesystem.
func (v *VFS) Mount(path string, fs FileSystem, sourcePath string) error {
	if fs == nil {
		return fmt.Errorf("cannot mount: nil filesystem")
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.attach(path, func(parent *Node, name string) (*Node, error) {
		for cur := parent; cur != nil; cur = cur.parent {
			if cur.mounted == fs {
				return nil, fmt.Errorf("cannot mount %q: %w", path, ErrCircularMount)
			}
		}
		return &Node{
			name:       name,
			parent:     parent,
			mounted:    fs,
			sourcePath: sourcePath,
			attr:       AttrFolder | AttrReadOnly,
			created:    time.Now(),
		}, nil
	})
	if err != nil {
		return err
	}
	logger.Debugf("vfs: mounted %q at %s (source %q)", fs.VolumeInfo().Name, path, sourcePath)
	return nil
}

// MountAlias attaches a folder-alias node whose target is another
// absolute path, resolved fresh on every traversal.
func (v *VFS) MountAlias(path, target string) error {
	if !strings.HasPrefix(target, "/") {
		return fmt.Errorf("%w: alias target %q is not absolute", ErrInvalidPath, target)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.attach(path, func(parent *Node, name string) (*Node, error) {
		return &Node{
			name:        name,
			parent:      parent,
			aliasTarget: target,
			attr:        AttrFolder | AttrReadOnly,
			created:     time.Now(),
		}, nil
	})
	return err
}

// CreateFolder creates an intrinsic folder node, together with any
// missing parents.
func (v *VFS) CreateFolder(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, err := v.attach(path, func(parent *Node, name string) (*Node, error) {
		return &Node{
			name:    name,
			parent:  parent,
			attr:    AttrFolder | AttrReadOnly,
			created: time.Now(),
		}, nil
	})
	return err
}

// attach walks the path, creating interior intrinsic folders, and calls
// build for the final node. The caller holds v.mu.
func (v *VFS) attach(path string, build func(parent *Node, name string) (*Node, error)) (*Node, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	if len(parts) == 0 {
		return nil, fmt.Errorf("cannot attach at root: %w", ErrExists)
	}
	parent := v.root
	for _, part := range parts[:len(parts)-1] {
		child := parent.child(part)
		if child == nil {
			child = &Node{
				name:    part,
				parent:  parent,
				attr:    AttrFolder | AttrReadOnly,
				created: time.Now(),
			}
			parent.children = append(parent.children, child)
		}
		parent = child
	}
	leaf := parts[len(parts)-1]
	if parent.child(leaf) != nil {
		return nil, fmt.Errorf("cannot attach %q: %w", path, ErrExists)
	}
	node, err := build(parent, leaf)
	if err != nil {
		return nil, err
	}
	parent.children = append(parent.children, node)
	return node, nil
}

// Unmount detaches the node at path. It fails with in-use if the node
// still has children or open handles resolving through it.
func (v *VFS) Unmount(path string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	node, err := v.lookup(path)
	if err != nil {
		return err
	}
	if node.parent == nil {
		return fmt.Errorf("cannot unmount root: %w", ErrInUse)
	}
	if len(node.children) > 0 || node.openCount > 0 {
		return fmt.Errorf("cannot unmount %q: %w", path, ErrInUse)
	}
	siblings := node.parent.children
	for i, c := range siblings {
		if c == node {
			node.parent.children = append(siblings[:i], siblings[i+1:]...)
			break
		}
	}
	node.parent = nil
	logger.Debugf("vfs: unmounted %s", path)
	return nil
}

// DeleteFolder removes an empty intrinsic folder node.
func (v *VFS) DeleteFolder(path string) error {
	return v.Unmount(path)
}

// lookup walks path to an exact node without alias expansion or
// delegation. The caller holds v.mu.
func (v *VFS) lookup(path string) (*Node, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, err
	}
	cur := v.root
	for _, part := range parts {
		child := cur.child(part)
		if child == nil {
			return nil, fmt.Errorf("cannot find %q: %w", path, ErrNotFound)
		}
		cur = child
	}
	return cur, nil
}

// ResolveOptions control path resolution.
type ResolveOptions struct {
	// ExpandFinalAlias expands a folder-alias when it is the final
	// path component; aliases traversed mid-path are always expanded.
	ExpandFinalAlias bool
}

// Resolve decomposes path into the deepest matching mount node and the
// remaining sub-path to forward to that node's mounted filesystem. A
// fully intrinsic path yields an empty remaining string.
func (v *VFS) Resolve(path string, opts ResolveOptions) (*Node, string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.resolve(path, 0, opts.ExpandFinalAlias)
}

// resolve implements Resolve; the caller holds v.mu.
func (v *VFS) resolve(path string, depth int, expandFinal bool) (*Node, string, error) {
	parts, err := SplitPath(path)
	if err != nil {
		return nil, "", err
	}
	cur := v.root
	for i := 0; i < len(parts); i++ {
		part := parts[i]
		switch part {
		case ".":
			continue
		case "..":
			if cur.parent != nil {
				cur = cur.parent
			}
			continue
		}
		child := cur.child(part)
		if child == nil {
			if cur.mounted != nil {
				return cur, remainingPath(cur.sourcePath, parts[i:]), nil
			}
			return nil, "", fmt.Errorf("cannot resolve %q: %w", path, ErrNotFound)
		}
		if child.aliasTarget != "" && (i < len(parts)-1 || expandFinal) {
			if depth+1 > MaxAliasDepth {
				return nil, "", fmt.Errorf("cannot resolve %q: %w", path, ErrAliasDepth)
			}
			expanded := child.aliasTarget
			if i < len(parts)-1 {
				expanded = Join(expanded, strings.Join(parts[i+1:], "/"))
			}
			return v.resolve(expanded, depth+1, expandFinal)
		}
		cur = child
	}
	return cur, "", nil
}

// remainingPath builds the provider-side path from a node source-path
// prefix and the unresolved components.
func remainingPath(sourcePath string, parts []string) string {
	rest := strings.Join(parts, "/")
	if sourcePath == "" {
		return "/" + rest
	}
	return Join(sourcePath, rest)
}

// PathExists reports whether path resolves to an intrinsic node or to an
// existing folder inside a mounted filesystem; files inside a mounted
// filesystem report false.
func (v *VFS) PathExists(path string) bool {
	node, remaining, err := v.Resolve(path, ResolveOptions{ExpandFinalAlias: true})
	if err != nil {
		return false
	}
	if remaining == "" {
		return true
	}
	fs := node.Mounted()
	if fs == nil {
		return false
	}
	return fs.PathExists(remaining)
}

// EnsureFolderChain creates every missing folder along an absolute path,
// delegating creation to the mounted filesystem where the chain crosses a
// mount point.
func (v *VFS) EnsureFolderChain(path string) error {
	parts, err := SplitPath(path)
	if err != nil {
		return err
	}
	for i := range parts {
		sub := "/" + strings.Join(parts[:i+1], "/")
		if v.PathExists(sub) {
			continue
		}
		node, remaining, err := v.Resolve(sub, ResolveOptions{ExpandFinalAlias: true})
		if err != nil {
			return err
		}
		if remaining == "" {
			continue
		}
		maker, ok := node.Mounted().(FolderMaker)
		if !ok {
			return fmt.Errorf("cannot create %q: %w", sub, ErrNoPermission)
		}
		if err := maker.CreateFolder(remaining); err != nil {
			return err
		}
	}
	return nil
}

// Open opens a path. A final component containing wildcard characters
// yields an enumeration handle over the matching entries; opening a
// folder yields an enumeration over all its entries.
func (v *VFS) Open(path string) (File, error) {
	dir, leaf := Split(path)
	if HasWildcard(dir) {
		return nil, fmt.Errorf("%w: wildcard in folder part of %q", ErrInvalidPath, path)
	}
	if HasWildcard(leaf) {
		return v.openWildcard(dir, leaf)
	}

	node, remaining, err := v.Resolve(path, ResolveOptions{ExpandFinalAlias: true})
	if err != nil {
		return nil, err
	}
	if remaining != "" {
		f, err := node.Mounted().Open(remaining)
		if err != nil {
			return nil, err
		}
		return v.track(node, f), nil
	}
	// intrinsic folder: enumeration over its children
	return v.enumerateNode(node, "*")
}

func (v *VFS) openWildcard(dir, pattern string) (File, error) {
	node, remaining, err := v.Resolve(dir, ResolveOptions{ExpandFinalAlias: true})
	if err != nil {
		return nil, err
	}
	if remaining != "" {
		f, err := node.Mounted().Open(Join(remaining, pattern))
		if err != nil {
			return nil, err
		}
		return v.track(node, f), nil
	}
	return v.enumerateNode(node, pattern)
}

// enumerateNode snapshots the children of an intrinsic node filtered by
// pattern. Concurrent tree mutation is not reflected mid-enumeration.
func (v *VFS) enumerateNode(node *Node, pattern string) (File, error) {
	if !node.attr.IsFolder() {
		return nil, fmt.Errorf("cannot enumerate %q: %w", node.name, ErrNotFolder)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	var entries []FileInfo
	for _, c := range node.children {
		ok, err := doublestar.Match(pattern, c.name)
		if err != nil {
			return nil, fmt.Errorf("%w: bad pattern %q", ErrInvalidPath, pattern)
		}
		if ok {
			entries = append(entries, FileInfo{
				Name:     c.name,
				Attr:     c.attr,
				Modified: c.created,
			})
		}
	}
	node.openCount++
	return &folderEnum{vfs: v, node: node, entries: entries}, nil
}

// track wraps a provider file so that the mount node's open count drops
// when the handle is closed.
func (v *VFS) track(node *Node, f File) File {
	v.mu.Lock()
	node.openCount++
	v.mu.Unlock()
	return &trackedFile{File: f, vfs: v, node: node}
}

type trackedFile struct {
	File
	vfs    *VFS
	node   *Node
	closed bool
}

func (t *trackedFile) Close() error {
	if !t.closed {
		t.closed = true
		t.vfs.mu.Lock()
		t.node.openCount--
		t.vfs.mu.Unlock()
	}
	return t.File.Close()
}

// folderEnum is the enumeration handle over an intrinsic folder.
type folderEnum struct {
	vfs     *VFS
	node    *Node
	entries []FileInfo
	cursor  int
	closed  bool
}

func (e *folderEnum) Info() FileInfo {
	return FileInfo{Name: e.node.name, Attr: e.node.attr, Modified: e.node.created}
}

func (e *folderEnum) Read(p []byte) (int, error) {
	return 0, fmt.Errorf("cannot read folder: %w", ErrNotFolder)
}

func (e *folderEnum) Write(p []byte) (int, error) {
	return 0, fmt.Errorf("cannot write folder: %w", ErrNoPermission)
}

func (e *folderEnum) ReadNext() (*FileInfo, error) {
	if e.cursor >= len(e.entries) {
		return nil, io.EOF
	}
	fi := e.entries[e.cursor]
	e.cursor++
	return &fi, nil
}

func (e *folderEnum) Close() error {
	if !e.closed {
		e.closed = true
		e.vfs.mu.Lock()
		e.node.openCount--
		e.vfs.mu.Unlock()
	}
	return nil
}
