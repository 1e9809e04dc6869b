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

// Package dirs holds the well-known paths of the kernel namespace.
//
// The values are defaults; the kernel configuration can override each of
// them through the KernelPath.* keys (see kernelcfg).
package dirs

import (
	"fmt"
	"strings"
)

// Well-known namespace paths. These are VFS paths, not host paths.
var (
	UsersDatabase        string
	KeyboardLayouts      string
	UsersRoot            string
	CurrentUserAlias     string
	PrivatePackageAlias  string
	PrivateUserDataAlias string
)

// Configuration key names, looked up in the KernelPath section of the
// kernel configuration.
const (
	KeyUsersDatabase        = "UsersDatabase"
	KeyKeyboardLayouts      = "KeyboardLayouts"
	KeyUsersRoot            = "UsersRoot"
	KeyCurrentUserAlias     = "CurrentUserAlias"
	KeyPrivatePackageAlias  = "PrivatePackageAlias"
	KeyPrivateUserDataAlias = "PrivateUserDataAlias"
)

const (
	// RootUserName is the reserved bootstrap account name.
	RootUserName = "root"

	// UserDataLeaf is the final component of a package's private
	// user-data folder, /users/<user>/<package>/<UserDataLeaf>.
	UserDataLeaf = "data"

	// PackageFileExtension is the file extension of EPK packages.
	PackageFileExtension = ".epk"

	// KeyboardLayoutExtension is the file extension of keyboard layout
	// files under KeyboardLayouts.
	KeyboardLayoutExtension = ".ekm1"

	// FileSystemsRoot is where provider volumes are automounted at boot.
	FileSystemsRoot = "/fs"
)

func init() {
	SetDefaults()
}

// SetDefaults resets every well-known path to its built-in default.
func SetDefaults() {
	UsersDatabase = "/system/data/users.database"
	KeyboardLayouts = "/system/keyboard"
	UsersRoot = "/users"
	CurrentUserAlias = "/current-user"
	PrivatePackageAlias = "/package"
	PrivateUserDataAlias = "/user-data"
}

// Lookup maps a KernelPath key name to a pointer to its variable, so that
// configuration can override paths generically.
func Lookup(key string) (*string, error) {
	switch key {
	case KeyUsersDatabase:
		return &UsersDatabase, nil
	case KeyKeyboardLayouts:
		return &KeyboardLayouts, nil
	case KeyUsersRoot:
		return &UsersRoot, nil
	case KeyCurrentUserAlias:
		return &CurrentUserAlias, nil
	case KeyPrivatePackageAlias:
		return &PrivatePackageAlias, nil
	case KeyPrivateUserDataAlias:
		return &PrivateUserDataAlias, nil
	}
	return nil, fmt.Errorf("unknown kernel path key %q", key)
}

// Keys returns all KernelPath key names.
func Keys() []string {
	return []string{
		KeyUsersDatabase,
		KeyKeyboardLayouts,
		KeyUsersRoot,
		KeyCurrentUserAlias,
		KeyPrivatePackageAlias,
		KeyPrivateUserDataAlias,
	}
}

// UserHome returns the home folder of the given user below UsersRoot.
func UserHome(userName string) string {
	return join(UsersRoot, userName)
}

// UserPackageData returns the private user-data folder for a package,
// /users/<user>/<package>/data by default.
func UserPackageData(userName, packageName string) string {
	return join(join(UserHome(userName), packageName), UserDataLeaf)
}

func join(base, name string) string {
	if strings.HasSuffix(base, "/") {
		return base + name
	}
	return base + "/" + name
}
