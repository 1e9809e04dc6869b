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
	"strings"

	"github.com/exoscore/exos/dirs"
	"github.com/exoscore/exos/epk"
	"github.com/exoscore/exos/kernel"
)

type cmdRun struct {
	kernel *kernel.Kernel

	Background bool `short:"b" long:"background" description:"Run detached"`
	Positional struct {
		Path string   `positional-arg-name:"<path>" required:"yes"`
		Args []string `positional-arg-name:"[args...]"`
	} `positional-args:"yes"`
}

func init() {
	addCommand("run", "Run an executable or package", `
The run command launches an executable. A path ending in .epk is
validated and launched through the package loader; anything else is
spawned directly.
`, func(k *kernel.Kernel) command {
		return &cmdRun{kernel: k}
	})
}

func (c *cmdRun) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysRun, func() error {
		if strings.HasSuffix(c.Positional.Path, dirs.PackageFileExtension) {
			err := c.kernel.Launcher().Launch(&epk.LaunchRequest{
				SourcePath: c.Positional.Path,
				UserName:   c.kernel.CurrentUserName(),
				Args:       c.Positional.Args,
				Background: c.Background,
			})
			if err != nil {
				return fmt.Errorf("epk: %v", err)
			}
			return nil
		}
		proc, err := c.kernel.Tasks.Spawn(append([]string{c.Positional.Path}, c.Positional.Args...))
		if err != nil {
			return fmt.Errorf("kernel: %v", err)
		}
		if c.Background {
			return nil
		}
		if err := proc.Wait(); err != nil {
			return fmt.Errorf("kernel: %v", err)
		}
		return nil
	})
}
