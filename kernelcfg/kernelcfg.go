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

// Package kernelcfg reads the kernel configuration file.
//
// The file is INI-style:
//
//	[KernelPath]
//	UsersRoot=/users
//
//	[Identity]
//	SessionTimeoutMinutes=30
//	MaxFailedUnlocks=5
//
//	[Package]
//	Arch=x86-64
//	KernelAPI=1.0
//	RequireSignature=false
//	TrustedKey=<hex ed25519 public key>
//
//	[Display]
//	DefaultBackend=vga-text
//	DefaultMode=80x25x16
package kernelcfg

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mvo5/goconfigparser"

	"github.com/exoscore/exos/dirs"
)

// Defaults that apply when the configuration file is absent or silent.
const (
	DefaultArch            = "x86-64"
	DefaultKernelAPIMajor  = 1
	DefaultKernelAPIMinor  = 0
	DefaultSessionTimeout  = 30 * time.Minute
	DefaultMaxFailedUnlock = 5
	DefaultBackend         = "vga-text"
	DefaultMode            = "80x25x16"
)

// Config is the parsed kernel configuration.
type Config struct {
	// KernelPath overrides, keyed by dirs.Key* name. Only the keys
	// present in the file appear here.
	Paths map[string]string

	SessionTimeout   time.Duration
	MaxFailedUnlocks int

	Arch             string
	KernelAPIMajor   int
	KernelAPIMinor   int
	RequireSignature bool
	TrustedKey       []byte

	DisplayBackend string
	DisplayMode    string
}

// Default returns a configuration with every value at its default.
func Default() *Config {
	return &Config{
		Paths:            make(map[string]string),
		SessionTimeout:   DefaultSessionTimeout,
		MaxFailedUnlocks: DefaultMaxFailedUnlock,
		Arch:             DefaultArch,
		KernelAPIMajor:   DefaultKernelAPIMajor,
		KernelAPIMinor:   DefaultKernelAPIMinor,
		DisplayBackend:   DefaultBackend,
		DisplayMode:      DefaultMode,
	}
}

// Load reads the configuration file at path. A missing file yields the
// defaults; a malformed file is an error.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	return Parse(string(content))
}

// Parse reads the configuration from a string.
func Parse(content string) (*Config, error) {
	cfg := goconfigparser.New()
	if err := cfg.ReadString(content); err != nil {
		return nil, fmt.Errorf("cannot parse kernel configuration: %v", err)
	}

	c := Default()

	for _, key := range dirs.Keys() {
		v, err := cfg.Get("KernelPath", key)
		if err != nil || v == "" {
			continue
		}
		if !strings.HasPrefix(v, "/") {
			return nil, fmt.Errorf("kernel path %s must be absolute, got %q", key, v)
		}
		c.Paths[key] = v
	}

	if v, err := cfg.Get("Identity", "SessionTimeoutMinutes"); err == nil && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid SessionTimeoutMinutes %q", v)
		}
		c.SessionTimeout = time.Duration(n) * time.Minute
	}
	if v, err := cfg.Get("Identity", "MaxFailedUnlocks"); err == nil && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid MaxFailedUnlocks %q", v)
		}
		c.MaxFailedUnlocks = n
	}

	if v, err := cfg.Get("Package", "Arch"); err == nil && v != "" {
		c.Arch = v
	}
	if v, err := cfg.Get("Package", "KernelAPI"); err == nil && v != "" {
		major, minor, err := ParseAPIVersion(v)
		if err != nil {
			return nil, err
		}
		c.KernelAPIMajor = major
		c.KernelAPIMinor = minor
	}
	if v, err := cfg.Get("Package", "RequireSignature"); err == nil && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid RequireSignature %q", v)
		}
		c.RequireSignature = b
	}
	if v, err := cfg.Get("Package", "TrustedKey"); err == nil && v != "" {
		key, err := hex.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TrustedKey: %v", err)
		}
		c.TrustedKey = key
	}

	if v, err := cfg.Get("Display", "DefaultBackend"); err == nil && v != "" {
		c.DisplayBackend = v
	}
	if v, err := cfg.Get("Display", "DefaultMode"); err == nil && v != "" {
		c.DisplayMode = v
	}

	return c, nil
}

// Apply pushes the KernelPath overrides into the dirs package.
func (c *Config) Apply() error {
	for key, value := range c.Paths {
		p, err := dirs.Lookup(key)
		if err != nil {
			return err
		}
		*p = value
	}
	return nil
}

// ParseAPIVersion parses a "major.minor" version string.
func ParseAPIVersion(s string) (major, minor int, err error) {
	parts := strings.SplitN(s, ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid kernel-api version %q", s)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid kernel-api version %q", s)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("invalid kernel-api version %q", s)
	}
	return major, minor, nil
}

// APICompatible implements the kernel-api compatibility predicate: the
// majors must be equal and the runtime minor must not be older than the
// requested minor.
func APICompatible(runtimeMajor, runtimeMinor, wantMajor, wantMinor int) bool {
	if runtimeMajor != wantMajor {
		return false
	}
	return runtimeMinor >= wantMinor
}
