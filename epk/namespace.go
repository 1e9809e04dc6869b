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
	"errors"
	"fmt"

	"github.com/exoscore/exos/dirs"
	"github.com/exoscore/exos/logger"
	"github.com/exoscore/exos/vfs"
)

// Namespace binds package views into the caller's namespace: the
// private /package and /user-data overlays, and the per-login
// /current-user alias.
type Namespace struct {
	vfs *vfs.VFS
}

// NewNamespace creates a namespace binder over a VFS.
func NewNamespace(v *vfs.VFS) *Namespace {
	return &Namespace{vfs: v}
}

// BindCurrentUserAlias points the current-user alias at the user's home
// folder, creating the folder chain when missing. A previous binding is
// replaced.
func (ns *Namespace) BindCurrentUserAlias(userName string) error {
	if userName == "" {
		return fmt.Errorf("%w: empty user name", vfs.ErrInvalidPath)
	}
	home := dirs.UserHome(userName)
	if err := ns.vfs.EnsureFolderChain(home); err != nil {
		return err
	}
	if err := ns.vfs.Unmount(dirs.CurrentUserAlias); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		return err
	}
	return ns.vfs.MountAlias(dirs.CurrentUserAlias, home)
}

// UnbindCurrentUserAlias removes the current-user alias if present.
func (ns *Namespace) UnbindCurrentUserAlias() {
	if err := ns.vfs.Unmount(dirs.CurrentUserAlias); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		logger.Noticef("epk: cannot unbind current-user alias: %v", err)
	}
}

// BindPackageView binds the private package overlays for the current
// process: /package onto the package filesystem root, and /user-data
// onto the user's per-package data folder, creating the chain when
// missing. The binding is atomic from the caller's perspective: on any
// failure nothing stays bound.
func (ns *Namespace) BindPackageView(pkgFS *PackageFS, packageName, userName string) error {
	if packageName == "" || userName == "" {
		return fmt.Errorf("%w: package and user names required", vfs.ErrInvalidPath)
	}
	if err := ns.vfs.Mount(dirs.PrivatePackageAlias, pkgFS, ""); err != nil {
		return err
	}

	dataPath := dirs.UserPackageData(userName, packageName)
	if err := ns.vfs.EnsureFolderChain(dataPath); err != nil {
		ns.unbindPackageAlias()
		return err
	}
	if err := ns.vfs.MountAlias(dirs.PrivateUserDataAlias, dataPath); err != nil {
		ns.unbindPackageAlias()
		return err
	}
	logger.Debugf("epk: bound package view for %q (user %q)", packageName, userName)
	return nil
}

// UnbindPackageView removes the private package overlays, in reverse
// binding order. Missing bindings are tolerated; this is the cleanup
// path of process exit.
func (ns *Namespace) UnbindPackageView() {
	if err := ns.vfs.Unmount(dirs.PrivateUserDataAlias); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		logger.Noticef("epk: cannot unbind %s: %v", dirs.PrivateUserDataAlias, err)
	}
	ns.unbindPackageAlias()
}

func (ns *Namespace) unbindPackageAlias() {
	if err := ns.vfs.Unmount(dirs.PrivatePackageAlias); err != nil && !errors.Is(err, vfs.ErrNotFound) {
		logger.Noticef("epk: cannot unbind %s: %v", dirs.PrivatePackageAlias, err)
	}
}
