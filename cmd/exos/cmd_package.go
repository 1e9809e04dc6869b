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

package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/exoscore/exos/dirs"
	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/kernel"
	"github.com/exoscore/exos/vfs"
)

// packagesFolder is where package add stores blobs inside the VFS.
const packagesFolder = "/system/packages"

type cmdPackage struct {
	List cmdPackageList `command:"list" description:"Show a package's manifest and contents"`
	Add  cmdPackageAdd  `command:"add" description:"Install a package into the system"`
	Run  cmdPackageRun  `command:"run" description:"Run an installed package"`
}

type cmdPackageList struct {
	kernel *kernel.Kernel

	Positional struct {
		Package string `positional-arg-name:"<name|path>"`
	} `positional-args:"yes"`
}

type cmdPackageAdd struct {
	kernel *kernel.Kernel

	Positional struct {
		Package string `positional-arg-name:"<name|path>" required:"yes"`
	} `positional-args:"yes"`
}

type cmdPackageRun struct {
	kernel *kernel.Kernel

	Background bool `short:"b" long:"background" description:"Run detached"`
	Positional struct {
		Name string   `positional-arg-name:"<name>" required:"yes"`
		Args []string `positional-arg-name:"[cmd] [args...]"`
	} `positional-args:"yes"`
}

func init() {
	addCommand("package", "Manage EXOS packages", `
The package command validates, installs, inspects and runs .epk
packages.
`, func(k *kernel.Kernel) command {
		return &cmdPackage{
			List: cmdPackageList{kernel: k},
			Add:  cmdPackageAdd{kernel: k},
			Run:  cmdPackageRun{kernel: k},
		}
	})
}

func (c *cmdPackage) Execute(args []string) error {
	return fmt.Errorf("package: missing subcommand (list, add or run)")
}

// resolvePackageSource turns a registry name or path into a VFS path.
func resolvePackageSource(k *kernel.Kernel, nameOrPath string) (string, error) {
	if strings.HasPrefix(nameOrPath, "/") || strings.HasSuffix(nameOrPath, dirs.PackageFileExtension) {
		return nameOrPath, nil
	}
	if k.Packages == nil {
		return "", fmt.Errorf("epk: %v", epk.ErrNotFound)
	}
	rec, err := k.Packages.Get(nameOrPath)
	if err != nil {
		return "", fmt.Errorf("epk: %v", err)
	}
	return rec.Path, nil
}

// loadBlob reads a package from the VFS, falling back to the host
// filesystem so that package add can pull blobs in from outside.
func loadBlob(k *kernel.Kernel, path string) ([]byte, error) {
	if data, err := readVFSFile(k, path); err == nil {
		return data, nil
	}
	return os.ReadFile(path)
}

func readVFSFile(k *kernel.Kernel, path string) ([]byte, error) {
	f, err := k.VFS.Open(path)
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

func (c *cmdPackageList) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysPackageList, func() error {
		if c.Positional.Package == "" {
			return c.listInstalled()
		}
		return c.showPackage()
	})
}

func (c *cmdPackageList) listInstalled() error {
	if c.kernel.Packages == nil {
		return fmt.Errorf("epk: no package registry")
	}
	recs, err := c.kernel.Packages.List()
	if err != nil {
		return fmt.Errorf("epk: %v", err)
	}
	w := tabwriter.NewWriter(Stdout, 5, 3, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "Name\tVersion\tPath")
	for _, rec := range recs {
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Name, rec.Version, runewidth.Truncate(rec.Path, 48, "..."))
	}
	return nil
}

func (c *cmdPackageList) showPackage() error {
	source, err := resolvePackageSource(c.kernel, c.Positional.Package)
	if err != nil {
		return err
	}
	data, err := loadBlob(c.kernel, source)
	if err != nil {
		return fmt.Errorf("epk: %v", err)
	}
	opts := c.kernel.Launcher().Options
	vp, err := epk.Validate(data, &opts)
	if err != nil {
		return fmt.Errorf("epk: %v", err)
	}
	m := vp.Manifest()
	fmt.Fprintf(Stdout, "name:     %s\n", m.Name)
	fmt.Fprintf(Stdout, "version:  %s\n", m.Version)
	if m.Arch != "" {
		fmt.Fprintf(Stdout, "arch:     %s\n", m.Arch)
	}
	if m.Entry != "" {
		fmt.Fprintf(Stdout, "entry:    %s\n", m.Entry)
	}
	if len(m.Provides) > 0 {
		fmt.Fprintf(Stdout, "provides: %s\n", strings.Join(m.Provides, ", "))
	}
	if len(m.Requires) > 0 {
		fmt.Fprintf(Stdout, "requires: %s\n", strings.Join(m.Requires, ", "))
	}
	for name, target := range m.Commands {
		fmt.Fprintf(Stdout, "command:  %s -> %s\n", name, target)
	}
	fmt.Fprintf(Stdout, "contents:\n")
	for _, e := range vp.TOC() {
		fmt.Fprintf(Stdout, "  %-12s %s\n", e.Type, e.Path)
	}
	return nil
}

func (c *cmdPackageAdd) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysPackageAdd, func() error {
		data, err := loadBlob(c.kernel, c.Positional.Package)
		if err != nil {
			return fmt.Errorf("epk: %v", err)
		}
		opts := c.kernel.Launcher().Options
		vp, err := epk.Validate(data, &opts)
		if err != nil {
			return fmt.Errorf("epk: %v", err)
		}
		m := vp.Manifest()

		target := vfs.Join(packagesFolder, m.Name+dirs.PackageFileExtension)
		if err := writeVFSFile(c.kernel, target, data); err != nil {
			return fmt.Errorf("epk: %v", err)
		}
		if c.kernel.Packages != nil {
			err := c.kernel.Packages.Add(&epk.RegistryRecord{
				Name:    m.Name,
				Version: m.Version,
				Path:    target,
				AddedAt: time.Now(),
			})
			if err != nil {
				return fmt.Errorf("epk: %v", err)
			}
		}
		fmt.Fprintf(Stdout, "added %s %s\n", m.Name, m.Version)
		return nil
	})
}

func (c *cmdPackageRun) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysPackageRun, func() error {
		source, err := resolvePackageSource(c.kernel, c.Positional.Name)
		if err != nil {
			return err
		}
		req := &epk.LaunchRequest{
			SourcePath: source,
			UserName:   c.kernel.CurrentUserName(),
			Background: c.Background,
		}
		if len(c.Positional.Args) > 0 {
			req.Command = c.Positional.Args[0]
			req.Args = c.Positional.Args[1:]
		}
		if err := c.kernel.Launcher().Launch(req); err != nil {
			return fmt.Errorf("epk: %v", err)
		}
		return nil
	})
}
