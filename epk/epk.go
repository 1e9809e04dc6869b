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

// Package epk implements the EXOS package format: the signed package
// container, its validation pipeline, the manifest model, the read-only
// PackageFS provider and the launch protocol that binds a package into
// the caller's namespace.
package epk

import (
	"errors"
)

// Failure kinds surfaced by the package loader.
var (
	ErrInvalidPackage    = errors.New("invalid package")
	ErrBadDigest         = errors.New("package digest mismatch")
	ErrBadSignature      = errors.New("bad package signature")
	ErrSignatureRequired = errors.New("package signature required")
	ErrIncompatible      = errors.New("incompatible package")
	ErrInvalidManifest   = errors.New("invalid manifest blob")
	ErrMissingName       = errors.New("manifest missing name")
	ErrMissingVersion    = errors.New("manifest missing version")
	ErrInvalidList       = errors.New("invalid manifest list")
	ErrNotFound          = errors.New("not found")
	ErrNoPermission      = errors.New("no permission")
)
