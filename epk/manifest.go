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
	"strings"
	"unicode/utf8"

	"github.com/BurntSushi/toml"

	"github.com/exoscore/exos/kernelcfg"
)

// Manifest is the parsed package manifest.
type Manifest struct {
	Name           string
	Version        string
	Arch           string
	KernelAPIMajor int
	KernelAPIMinor int
	Entry          string
	Provides       []string
	Requires       []string
	Commands       map[string]string
}

// manifestTOML mirrors the manifest document. Keys are accepted at top
// level or under a [package] section.
type manifestTOML struct {
	Name      string            `toml:"name"`
	Version   string            `toml:"version"`
	Arch      string            `toml:"arch"`
	KernelAPI string            `toml:"kernel_api"`
	Entry     string            `toml:"entry"`
	Provides  []string          `toml:"provides"`
	Requires  []string          `toml:"requires"`
	Commands  map[string]string `toml:"commands"`

	Package *struct {
		Name      string   `toml:"name"`
		Version   string   `toml:"version"`
		Arch      string   `toml:"arch"`
		KernelAPI string   `toml:"kernel_api"`
		Entry     string   `toml:"entry"`
		Provides  []string `toml:"provides"`
		Requires  []string `toml:"requires"`
	} `toml:"package"`
}

// ParseManifest decodes a manifest blob. The blob must be UTF-8 TOML;
// name and version are required and reported with distinct codes so
// callers can diagnose.
func ParseManifest(blob []byte) (*Manifest, error) {
	if !utf8.Valid(blob) {
		return nil, fmt.Errorf("%w: not valid UTF-8", ErrInvalidManifest)
	}
	text := string(blob)

	var doc manifestTOML
	if _, err := toml.Decode(text, &doc); err != nil {
		return nil, classifyManifestError(text, err)
	}

	m := &Manifest{
		Name:     doc.Name,
		Version:  doc.Version,
		Arch:     doc.Arch,
		Entry:    doc.Entry,
		Provides: doc.Provides,
		Requires: doc.Requires,
		Commands: doc.Commands,
	}
	api := doc.KernelAPI
	if p := doc.Package; p != nil {
		if m.Name == "" {
			m.Name = p.Name
		}
		if m.Version == "" {
			m.Version = p.Version
		}
		if m.Arch == "" {
			m.Arch = p.Arch
		}
		if m.Entry == "" {
			m.Entry = p.Entry
		}
		if api == "" {
			api = p.KernelAPI
		}
		if m.Provides == nil {
			m.Provides = p.Provides
		}
		if m.Requires == nil {
			m.Requires = p.Requires
		}
	}

	if m.Name == "" {
		return nil, ErrMissingName
	}
	if m.Version == "" {
		return nil, ErrMissingVersion
	}
	if api != "" {
		major, minor, err := kernelcfg.ParseAPIVersion(api)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidManifest, err)
		}
		m.KernelAPIMajor = major
		m.KernelAPIMinor = minor
	}
	return m, nil
}

// classifyManifestError distinguishes the mandated invalid-list code
// from generally malformed TOML. The TOML parser reports both as one
// parse error; the failing line tells them apart.
func classifyManifestError(text string, err error) error {
	var pe toml.ParseError
	if errors.As(err, &pe) {
		lines := strings.Split(text, "\n")
		if pe.Position.Line >= 1 && pe.Position.Line <= len(lines) {
			line := lines[pe.Position.Line-1]
			if i := strings.Index(line, "="); i >= 0 && strings.Contains(line[i:], "[") {
				return fmt.Errorf("%w: %s", ErrInvalidList, strings.TrimSpace(line))
			}
		}
	}
	return fmt.Errorf("%w: %v", ErrInvalidManifest, err)
}
