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
	"strings"
	"time"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/dirs"
	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/epk/epktest"
	"github.com/exoscore/exos/vfs"
	"github.com/exoscore/exos/vfs/memfs"
)

var _ = Suite(&launchSuite{})

type launchSuite struct {
	v      *vfs.VFS
	sysfs  *memfs.FS
	runner *fakeRunner
	l      *epk.Launcher
}

// fakeRunner records spawns; tests can observe the namespace while the
// process is "alive" or block its exit entirely.
type fakeRunner struct {
	spawned [][]string
	// checkpoint runs while the process is alive, before Wait returns.
	checkpoint func()
	// wait replaces the default immediate exit.
	wait func()
	err  error
}

type fakeProcess struct {
	r *fakeRunner
}

func (p *fakeProcess) Wait() error {
	if p.r.checkpoint != nil {
		p.r.checkpoint()
	}
	if p.r.wait != nil {
		p.r.wait()
	}
	return nil
}

func (r *fakeRunner) Spawn(args []string) (epk.Process, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.spawned = append(r.spawned, args)
	return &fakeProcess{r: r}, nil
}

func (s *launchSuite) SetUpTest(c *C) {
	dirs.SetDefaults()
	s.v = vfs.New()
	s.sysfs = memfs.New("system")
	c.Assert(s.v.Mount("/users", s.sysfs, "/users"), IsNil)
	c.Assert(s.sysfs.CreateFolder("/users/alice"), IsNil)
	c.Assert(s.sysfs.CreateFolder("/packages"), IsNil)
	c.Assert(s.v.Mount("/system/packages", s.sysfs, "/packages"), IsNil)

	s.runner = &fakeRunner{}
	s.l = &epk.Launcher{
		VFS:    s.v,
		Runner: s.runner,
		Options: epk.ValidateOptions{
			Arch:           "x86-64",
			KernelAPIMajor: 1,
			KernelAPIMinor: 0,
		},
	}
}

func (s *launchSuite) addPackage(c *C, blob []byte) string {
	c.Assert(s.sysfs.WriteFile("/packages/hello.epk", blob), IsNil)
	return "/system/packages/hello.epk"
}

func (s *launchSuite) pkgMounts() []string {
	var names []string
	for _, name := range s.v.FileSystemNames() {
		if strings.HasPrefix(name, "pkg-") {
			names = append(names, name)
		}
	}
	return names
}

// A foreground launch binds the view, spawns the qualified command
// line, and unbinds on return.
func (s *launchSuite) TestLaunchForeground(c *C) {
	path := s.addPackage(c, helloPackage().Build())

	s.runner.checkpoint = func() {
		// while the process runs the private view is bound
		c.Check(s.v.PathExists("/package/bin"), Equals, true)
		c.Check(s.v.PathExists("/user-data"), Equals, true)
		c.Check(s.v.PathExists("/users/alice/hello/data"), Equals, true)
		c.Check(s.pkgMounts(), HasLen, 1)
	}

	err := s.l.Launch(&epk.LaunchRequest{
		SourcePath: path,
		UserName:   "alice",
		Args:       []string{"world"},
	})
	c.Assert(err, IsNil)

	c.Assert(s.runner.spawned, HasLen, 1)
	c.Check(s.runner.spawned[0], DeepEquals, []string{"/package/bin/hello", "world"})

	// after return everything is unbound and unmounted
	c.Check(s.v.PathExists("/package"), Equals, false)
	c.Check(s.v.PathExists("/user-data"), Equals, false)
	c.Check(s.pkgMounts(), HasLen, 0)
}

func (s *launchSuite) TestLaunchCommandSelection(c *C) {
	pkg := helloPackage()
	pkg.Commands = map[string]string{"greet": "bin/greet"}
	pkg.Entries = append(pkg.Entries, epktest.Entry{
		Type: epk.NodeFile, Path: "bin/greet", Perm: 0o755, Data: []byte("greet"),
	})
	path := s.addPackage(c, pkg.Build())

	err := s.l.Launch(&epk.LaunchRequest{
		SourcePath: path,
		UserName:   "alice",
		Command:    "greet",
		Args:       []string{"-v"},
	})
	c.Assert(err, IsNil)
	c.Assert(s.runner.spawned, HasLen, 1)
	c.Check(s.runner.spawned[0], DeepEquals, []string{"/package/bin/greet", "-v"})
}

func (s *launchSuite) TestLaunchBackgroundTransfersOwnership(c *C) {
	path := s.addPackage(c, helloPackage().Build())

	release := make(chan struct{})
	done := make(chan struct{})
	s.runner.wait = func() {
		<-release
		close(done)
	}

	err := s.l.Launch(&epk.LaunchRequest{
		SourcePath: path,
		UserName:   "alice",
		Background: true,
	})
	c.Assert(err, IsNil)

	// the call returned but the process still owns the mount
	c.Check(s.v.PathExists("/package/bin"), Equals, true)
	c.Check(s.pkgMounts(), HasLen, 1)

	close(release)
	<-done
	// cleanup runs after process exit
	for i := 0; i < 100; i++ {
		if len(s.pkgMounts()) == 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	c.Check(s.pkgMounts(), HasLen, 0)
	c.Check(s.v.PathExists("/package"), Equals, false)
}

// A launch failing validation leaves nothing bound.
func (s *launchSuite) TestLaunchIncompatibleUnwinds(c *C) {
	pkg := helloPackage()
	pkg.Arch = "arm64"
	path := s.addPackage(c, pkg.Build())

	err := s.l.Launch(&epk.LaunchRequest{SourcePath: path, UserName: "alice"})
	c.Check(errors.Is(err, epk.ErrIncompatible), Equals, true)

	c.Check(s.v.PathExists("/package"), Equals, false)
	c.Check(s.v.PathExists("/user-data"), Equals, false)
	c.Check(s.pkgMounts(), HasLen, 0)
	c.Check(s.runner.spawned, HasLen, 0)
}

func (s *launchSuite) TestLaunchUnmatchedCommandFallsBackToEntry(c *C) {
	path := s.addPackage(c, helloPackage().Build())

	err := s.l.Launch(&epk.LaunchRequest{
		SourcePath: path,
		UserName:   "alice",
		Command:    "no-such-command",
		Args:       []string{"more"},
	})
	c.Assert(err, IsNil)
	c.Assert(s.runner.spawned, HasLen, 1)
	c.Check(s.runner.spawned[0], DeepEquals, []string{"/package/bin/hello", "no-such-command", "more"})
}

func (s *launchSuite) TestLaunchNoEntryUnwinds(c *C) {
	pkg := helloPackage()
	pkg.Entry = ""
	path := s.addPackage(c, pkg.Build())

	err := s.l.Launch(&epk.LaunchRequest{SourcePath: path, UserName: "alice"})
	c.Check(errors.Is(err, epk.ErrInvalidManifest), Equals, true)
	c.Check(s.v.PathExists("/package"), Equals, false)
	c.Check(s.pkgMounts(), HasLen, 0)
}

func (s *launchSuite) TestLaunchSpawnFailureUnwinds(c *C) {
	path := s.addPackage(c, helloPackage().Build())
	s.runner.err = errors.New("boom")

	err := s.l.Launch(&epk.LaunchRequest{SourcePath: path, UserName: "alice"})
	c.Check(err, ErrorMatches, "boom")
	c.Check(s.v.PathExists("/package"), Equals, false)
	c.Check(s.pkgMounts(), HasLen, 0)
}

func (s *launchSuite) TestLaunchMissingSource(c *C) {
	err := s.l.Launch(&epk.LaunchRequest{
		SourcePath: "/system/packages/none.epk",
		UserName:   "alice",
	})
	c.Check(errors.Is(err, vfs.ErrNotFound), Equals, true)
}
