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

package epk_test

import (
	"errors"
	"io"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/epk/epktest"
	"github.com/exoscore/exos/vfs"
)

var _ = Suite(&packagefsSuite{})

type packagefsSuite struct{}

func (s *packagefsSuite) mount(c *C, pkg *epktest.Package) *epk.PackageFS {
	vp, err := epk.Validate(pkg.Build(), nil)
	c.Assert(err, IsNil)
	fs, err := epk.NewPackageFS("pkg-test", vp)
	c.Assert(err, IsNil)
	return fs
}

func (s *packagefsSuite) TestVolumeInfoReadOnly(c *C) {
	fs := s.mount(c, helloPackage())
	vi := fs.VolumeInfo()
	c.Check(vi.Name, Equals, "pkg-test")
	c.Check(vi.ReadOnly, Equals, true)
}

func (s *packagefsSuite) TestReadFile(c *C) {
	fs := s.mount(c, helloPackage())
	f, err := fs.Open("/bin/hello")
	c.Assert(err, IsNil)
	defer f.Close()

	c.Check(f.Info().Attr.IsFolder(), Equals, false)
	c.Check(f.Info().Attr&vfs.AttrExecutable, Not(Equals), vfs.Attr(0))
	c.Check(f.Info().Attr&vfs.AttrReadOnly, Not(Equals), vfs.Attr(0))
	c.Check(f.Info().Size, Equals, int64(6))

	// short reads honoring position
	buf := make([]byte, 4)
	n, err := f.Read(buf)
	c.Assert(err, IsNil)
	c.Check(string(buf[:n]), Equals, "#!ex")
	n, err = f.Read(buf)
	c.Assert(err, IsNil)
	c.Check(string(buf[:n]), Equals, "e\n")
	_, err = f.Read(buf)
	c.Check(err, Equals, io.EOF)
}

func (s *packagefsSuite) TestWriteRefused(c *C) {
	fs := s.mount(c, helloPackage())
	f, err := fs.Open("/bin/hello")
	c.Assert(err, IsNil)
	defer f.Close()
	_, err = f.Write([]byte("nope"))
	c.Check(errors.Is(err, epk.ErrNoPermission), Equals, true)
}

func (s *packagefsSuite) TestPathExistsFoldersOnly(c *C) {
	fs := s.mount(c, helloPackage())
	c.Check(fs.PathExists("/"), Equals, true)
	c.Check(fs.PathExists("/bin"), Equals, true)
	c.Check(fs.PathExists("/bin/hello"), Equals, false)
	c.Check(fs.PathExists("/nope"), Equals, false)
}

func (s *packagefsSuite) TestImplicitFolders(c *C) {
	pkg := &epktest.Package{
		Name: "deep", Version: "1", Entries: []epktest.Entry{
			{Type: epk.NodeFile, Path: "a/b/c/file.txt", Data: []byte("x")},
		},
	}
	fs := s.mount(c, pkg)
	c.Check(fs.PathExists("/a"), Equals, true)
	c.Check(fs.PathExists("/a/b/c"), Equals, true)

	f, err := fs.Open("/a/b/c/file.txt")
	c.Assert(err, IsNil)
	f.Close()
}

func (s *packagefsSuite) TestTOCCollisionRejected(c *C) {
	pkg := &epktest.Package{
		Name: "dup", Version: "1", Entries: []epktest.Entry{
			{Type: epk.NodeFile, Path: "bin/x", Data: []byte("1")},
			{Type: epk.NodeFile, Path: "bin/x", Data: []byte("2")},
		},
	}
	vp, err := epk.Validate(pkg.Build(), nil)
	c.Assert(err, IsNil)
	_, err = epk.NewPackageFS("pkg-dup", vp)
	c.Check(errors.Is(err, epk.ErrInvalidPackage), Equals, true)
}

func (s *packagefsSuite) TestFolderEntryDefinesImplicitFolder(c *C) {
	pkg := &epktest.Package{
		Name: "def", Version: "1", Entries: []epktest.Entry{
			{Type: epk.NodeFile, Path: "share/doc/readme", Data: []byte("r")},
			{Type: epk.NodeFolder, Path: "share/doc", Perm: 0o555},
		},
	}
	fs := s.mount(c, pkg)
	c.Check(fs.PathExists("/share/doc"), Equals, true)

	// defining it twice is a collision
	pkg.Entries = append(pkg.Entries, epktest.Entry{Type: epk.NodeFolder, Path: "share/doc"})
	vp, err := epk.Validate(pkg.Build(), nil)
	c.Assert(err, IsNil)
	_, err = epk.NewPackageFS("pkg-def", vp)
	c.Check(errors.Is(err, epk.ErrInvalidPackage), Equals, true)
}

func (s *packagefsSuite) TestWildcardEnumeration(c *C) {
	pkg := &epktest.Package{
		Name: "glob", Version: "1", Entries: []epktest.Entry{
			{Type: epk.NodeFile, Path: "docs/a.txt", Data: []byte("a")},
			{Type: epk.NodeFile, Path: "docs/b.txt", Data: []byte("b")},
			{Type: epk.NodeFile, Path: "docs/c.md", Data: []byte("c")},
		},
	}
	fs := s.mount(c, pkg)

	f, err := fs.Open("/docs/*.txt")
	c.Assert(err, IsNil)
	defer f.Close()
	var names []string
	for {
		fi, err := f.ReadNext()
		if err == io.EOF {
			break
		}
		c.Assert(err, IsNil)
		names = append(names, fi.Name)
	}
	c.Check(names, DeepEquals, []string{"a.txt", "b.txt"})

	f2, err := fs.Open("/docs/?.md")
	c.Assert(err, IsNil)
	defer f2.Close()
	fi, err := f2.ReadNext()
	c.Assert(err, IsNil)
	c.Check(fi.Name, Equals, "c.md")
}

func (s *packagefsSuite) TestFolderAlias(c *C) {
	pkg := &epktest.Package{
		Name: "alias", Version: "1", Entries: []epktest.Entry{
			{Type: epk.NodeFile, Path: "real/file.txt", Data: []byte("data")},
			{Type: epk.NodeFolderAlias, Path: "link", AliasTarget: "real"},
		},
	}
	fs := s.mount(c, pkg)

	f, err := fs.Open("/link/file.txt")
	c.Assert(err, IsNil)
	defer f.Close()
	buf := make([]byte, 8)
	n, _ := f.Read(buf)
	c.Check(string(buf[:n]), Equals, "data")
}

func (s *packagefsSuite) TestFolderAliasCycleBounded(c *C) {
	pkg := &epktest.Package{
		Name: "cycle", Version: "1", Entries: []epktest.Entry{
			{Type: epk.NodeFolderAlias, Path: "a", AliasTarget: "b"},
			{Type: epk.NodeFolderAlias, Path: "b", AliasTarget: "a"},
		},
	}
	fs := s.mount(c, pkg)
	_, err := fs.Open("/a/x")
	c.Check(errors.Is(err, vfs.ErrAliasDepth), Equals, true)
}

func (s *packagefsSuite) TestNotFound(c *C) {
	fs := s.mount(c, helloPackage())
	_, err := fs.Open("/no/such")
	c.Check(errors.Is(err, epk.ErrNotFound), Equals, true)
}
