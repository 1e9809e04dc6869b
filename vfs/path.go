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

package vfs

import (
	"fmt"
	"strings"
)

// Namespace limits. Paths are ASCII, case-sensitive, '/'-separated.
const (
	MaxFileName = 128
	MaxPathName = 1024

	// MaxAliasDepth bounds folder-alias expansion during resolution.
	MaxAliasDepth = 32
)

// SplitPath validates an absolute path and decomposes it into its ordered
// components. The root path "/" yields no components. "." and ".." are
// returned as-is; the resolver interprets them.
func SplitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if !strings.HasPrefix(path, "/") {
		return nil, fmt.Errorf("%w: %q is not absolute", ErrInvalidPath, path)
	}
	if len(path) > MaxPathName {
		return nil, fmt.Errorf("%w: path longer than %d", ErrInvalidPath, MaxPathName)
	}
	if path == "/" {
		return nil, nil
	}
	// a single trailing separator is tolerated, as in "/users/"
	trimmed := strings.TrimSuffix(path[1:], "/")
	parts := strings.Split(trimmed, "/")
	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty component in %q", ErrInvalidPath, path)
		}
		if len(part) > MaxFileName {
			return nil, fmt.Errorf("%w: component longer than %d", ErrInvalidPath, MaxFileName)
		}
	}
	return parts, nil
}

// Join concatenates an absolute base with a relative name.
func Join(base, name string) string {
	if base == "" || base == "/" {
		return "/" + name
	}
	if strings.HasSuffix(base, "/") {
		return base + name
	}
	return base + "/" + name
}

// Split separates a path into its folder part and final component.
func Split(path string) (dir, leaf string) {
	i := strings.LastIndex(path, "/")
	if i <= 0 {
		return "/", path[i+1:]
	}
	return path[:i], path[i+1:]
}

// HasWildcard reports whether a name contains glob metacharacters.
func HasWildcard(name string) bool {
	return strings.ContainsAny(name, "*?")
}
