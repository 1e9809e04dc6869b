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
	"time"

	"github.com/exoscore/exos/dirs"
	"github.com/exoscore/exos/logger"
	"github.com/exoscore/exos/vfs"
)

// A Process is a spawned package entry; Wait blocks until it exits.
type Process interface {
	Wait() error
}

// A TaskRunner starts processes for the launcher. The runner owns the
// spawned task; the launcher only waits on it.
type TaskRunner interface {
	Spawn(args []string) (Process, error)
}

// Launcher drives the package launch protocol.
type Launcher struct {
	VFS    *vfs.VFS
	Runner TaskRunner

	// Validate options applied to every launched package.
	Options ValidateOptions

	// Clock stamps mount names; defaults to time.Now.
	Clock func() time.Time
}

// LaunchRequest describes one launch.
type LaunchRequest struct {
	// SourcePath is the VFS path of the .epk blob.
	SourcePath string

	// UserName is the launching user, for the user-data binding.
	UserName string

	// Command optionally selects a manifest [commands] binding instead
	// of the default entry.
	Command string

	// Args are appended to the spawn command line.
	Args []string

	// Background detaches the process; the PackageFS mount ownership
	// transfers to it and unbinds at its exit.
	Background bool
}

// Launch validates, mounts and executes a package. Every step from the
// mount onward is unwound in reverse order when a later step fails;
// partial mounts never survive the call.
func (l *Launcher) Launch(req *LaunchRequest) error {
	clock := l.Clock
	if clock == nil {
		clock = time.Now
	}

	// step 1: load the package bytes
	data, err := readAll(l.VFS, req.SourcePath)
	if err != nil {
		return fmt.Errorf("cannot load package %q: %w", req.SourcePath, err)
	}

	// steps 2-3: validate; manifest compatibility is the pipeline's
	// semantic stage
	pkg, err := Validate(data, &l.Options)
	if err != nil {
		return err
	}
	manifest := pkg.Manifest()

	// step 4: mount PackageFS under a unique system name
	mountName := fmt.Sprintf("pkg-%s-%d", manifest.Name, clock().UnixNano())
	pkgFS, err := NewPackageFS(mountName, pkg)
	if err != nil {
		return err
	}
	if err := l.VFS.RegisterFileSystem(mountName, pkgFS); err != nil {
		return err
	}
	undo := []func(){func() { l.VFS.DeregisterFileSystem(mountName) }}
	unwind := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
	}

	// steps 5-6: bind the private overlays
	ns := NewNamespace(l.VFS)
	if err := ns.BindPackageView(pkgFS, manifest.Name, req.UserName); err != nil {
		unwind()
		return err
	}
	undo = append(undo, ns.UnbindPackageView)

	// step 7: pick the launch target; a selector that matches no
	// manifest command falls back to the default entry and stays on
	// the argument list
	target := manifest.Entry
	callerArgs := req.Args
	if req.Command != "" {
		if t, ok := manifest.Commands[req.Command]; ok {
			target = t
		} else {
			callerArgs = append([]string{req.Command}, callerArgs...)
		}
	}
	if target == "" {
		unwind()
		return fmt.Errorf("cannot launch %q: no entry: %w", manifest.Name, ErrInvalidManifest)
	}

	// step 8: qualify the target and append the caller arguments
	args := append([]string{vfs.Join(dirs.PrivatePackageAlias, strings.TrimPrefix(target, "/"))}, callerArgs...)

	// step 9: spawn
	proc, err := l.Runner.Spawn(args)
	if err != nil {
		unwind()
		return err
	}
	logger.Noticef("epk: launched %s (%s)", manifest.Name, args[0])

	if req.Background {
		// ownership of the mount transfers to the process; unwind at
		// its exit
		go func() {
			if err := proc.Wait(); err != nil {
				logger.Noticef("epk: background package %s failed: %v", manifest.Name, err)
			}
			unwind()
		}()
		return nil
	}

	err = proc.Wait()
	unwind()
	return err
}

// readAll reads a whole file out of the VFS.
func readAll(v *vfs.VFS, path string) ([]byte, error) {
	f, err := v.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var data []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			return data, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
