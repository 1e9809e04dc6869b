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

// Package kernel assembles the core runtime: one explicit context owning
// the identity, VFS, package and display subsystems. It is constructed
// once at boot and passed to every entry point; there are no package
// globals to keep tests hermetic.
package kernel

import (
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/exoscore/exos/dirs"
	"github.com/exoscore/exos/display"
	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/ident"
	"github.com/exoscore/exos/kernelcfg"
	"github.com/exoscore/exos/logger"
	"github.com/exoscore/exos/vfs"
	"github.com/exoscore/exos/vfs/memfs"
)

// sweepInterval paces the session timeout sweeper.
const sweepInterval = time.Minute

// Options configure boot.
type Options struct {
	// Config is the parsed kernel configuration; nil means defaults.
	Config *kernelcfg.Config

	// ActiveFS is the active filesystem holding /system and /users.
	// nil boots on a fresh in-memory volume.
	ActiveFS vfs.FileSystem

	// StateDir is a host directory for kernel state that lives outside
	// the VFS (the installed-package registry). Empty disables it.
	StateDir string

	// Backends are the loadable graphics back-ends.
	Backends []display.Driver
}

// Kernel is the process-wide context record.
type Kernel struct {
	Config   *kernelcfg.Config
	VFS      *vfs.VFS
	Identity *ident.Identity
	Display  *display.Session
	Backends *display.Registry
	Packages *epk.Registry
	Tasks    *TaskManager

	activeFS vfs.FileSystem
	ns       *epk.Namespace
}

// Boot constructs and wires the subsystems. The boot order follows the
// data flow: config, namespace, identity, packages, display.
func Boot(opts *Options) (*Kernel, error) {
	if opts == nil {
		opts = &Options{}
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = kernelcfg.Default()
	}
	if err := cfg.Apply(); err != nil {
		return nil, err
	}

	k := &Kernel{
		Config:   cfg,
		VFS:      vfs.New(),
		Backends: display.NewRegistry(),
	}

	// namespace: active filesystem at /fs/<volume>, /system and /users
	k.activeFS = opts.ActiveFS
	if k.activeFS == nil {
		k.activeFS = memfs.New("system")
	}
	volume := k.activeFS.VolumeInfo().Name
	if err := k.VFS.RegisterFileSystem(volume, k.activeFS); err != nil {
		return nil, err
	}
	if err := k.VFS.Mount(vfs.Join(dirs.FileSystemsRoot, volume), k.activeFS, ""); err != nil {
		return nil, err
	}
	for path, source := range map[string]string{
		"/system":      "/system",
		dirs.UsersRoot: "/users",
	} {
		volRoot := vfs.Join(dirs.FileSystemsRoot, volume)
		if err := k.VFS.EnsureFolderChain(volRoot + source); err != nil {
			return nil, err
		}
		if err := k.VFS.Mount(path, k.activeFS, source); err != nil {
			return nil, err
		}
	}

	// identity
	k.Identity = ident.New(&ident.Options{
		SessionTimeout:   cfg.SessionTimeout,
		MaxFailedUnlocks: cfg.MaxFailedUnlocks,
	})
	if err := k.loadUserDatabase(); err != nil {
		// a corrupt or absent database is not fatal; boot
		// continues empty so bootstrap can create the first account
		logger.Noticef("kernel: user database not loaded: %v", err)
	}
	k.Identity.StartSweeper(sweepInterval)

	// packages
	if opts.StateDir != "" {
		reg, err := epk.OpenRegistry(filepath.Join(opts.StateDir, "packages.db"))
		if err != nil {
			return nil, err
		}
		k.Packages = reg
	}

	// display
	k.Display = display.NewSession()
	for _, d := range opts.Backends {
		k.Backends.Register(d)
	}
	k.Backends.Register(k.Display.ActiveDriver())

	// tasks and the per-login namespace
	k.Tasks = NewTaskManager()
	k.ns = epk.NewNamespace(k.VFS)
	if err := k.ns.BindCurrentUserAlias(dirs.RootUserName); err != nil {
		logger.Noticef("kernel: cannot bind current-user alias: %v", err)
	}

	logger.Noticef("kernel: boot complete (volume %q)", volume)
	return k, nil
}

// Shutdown persists state and stops background work.
func (k *Kernel) Shutdown() error {
	var firstErr error
	if err := k.SaveUserDatabase(); err != nil {
		firstErr = err
	}
	k.Identity.StopSweeper()
	if k.Packages != nil {
		if err := k.Packages.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	logger.Noticef("kernel: shutdown")
	return firstErr
}

// loadUserDatabase reads the account database from its well-known path.
func (k *Kernel) loadUserDatabase() error {
	f, err := k.VFS.Open(dirs.UsersDatabase)
	if err != nil {
		return err
	}
	defer f.Close()
	var data []byte
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		data = append(data, buf[:n]...)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
	}
	return k.Identity.LoadDatabase(data)
}

// SaveUserDatabase writes the account database to its well-known path.
func (k *Kernel) SaveUserDatabase() error {
	data, err := k.Identity.SerializeDatabase()
	if err != nil {
		return err
	}
	dir, leaf := vfs.Split(dirs.UsersDatabase)
	if err := k.VFS.EnsureFolderChain(dir); err != nil {
		return err
	}
	node, remaining, err := k.VFS.Resolve(dir, vfs.ResolveOptions{ExpandFinalAlias: true})
	if err != nil {
		return err
	}
	if node.Mounted() == nil {
		return fmt.Errorf("cannot save user database: %w", vfs.ErrNoPermission)
	}
	if remaining == "" {
		remaining = node.SourcePath()
		if remaining == "" {
			remaining = "/"
		}
	}
	writer, ok := node.Mounted().(fileWriter)
	if !ok {
		return fmt.Errorf("cannot save user database: %w", vfs.ErrNoPermission)
	}
	return writer.WriteFile(vfs.Join(remaining, leaf), data)
}

// fileWriter is the provider-side whole-file write capability the
// kernel needs for its own state files.
type fileWriter interface {
	WriteFile(path string, data []byte) error
}

// Login authenticates a user and makes their fresh session current,
// rebinding the current-user alias.
func (k *Kernel) Login(userName, password string, shellTask ident.TaskHandle) (*ident.Session, error) {
	if err := k.Identity.CheckPassword(userName, password); err != nil {
		return nil, err
	}
	a, err := k.Identity.FindAccount(userName)
	if err != nil {
		return nil, err
	}
	s, err := k.Identity.CreateSession(a.UserID, shellTask)
	if err != nil {
		return nil, err
	}
	if err := k.Identity.SetCurrentSession(s); err != nil {
		k.Identity.DestroySession(s)
		return nil, err
	}
	if err := k.ns.BindCurrentUserAlias(userName); err != nil {
		logger.Noticef("kernel: cannot rebind current-user alias: %v", err)
	}
	return s, nil
}

// Logout destroys the current session and rebinds the current-user
// alias to the bootstrap account.
func (k *Kernel) Logout() error {
	s := k.Identity.CurrentSession()
	if s == nil {
		return ident.ErrNoSession
	}
	k.Identity.DestroySession(s)
	if err := k.ns.BindCurrentUserAlias(dirs.RootUserName); err != nil {
		logger.Noticef("kernel: cannot rebind current-user alias: %v", err)
	}
	return nil
}

// Launcher builds the package launcher bound to this kernel.
func (k *Kernel) Launcher() *epk.Launcher {
	return &epk.Launcher{
		VFS:    k.VFS,
		Runner: k.Tasks,
		Options: epk.ValidateOptions{
			RequireSignature: k.Config.RequireSignature,
			TrustedKey:       k.Config.TrustedKey,
			Arch:             k.Config.Arch,
			KernelAPIMajor:   k.Config.KernelAPIMajor,
			KernelAPIMinor:   k.Config.KernelAPIMinor,
		},
	}
}

// CurrentUserName resolves the current session's account name, falling
// back to the bootstrap account without a session.
func (k *Kernel) CurrentUserName() string {
	if a, err := k.Identity.CurrentUser(); err == nil {
		return a.UserName
	}
	return dirs.RootUserName
}
