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
	"sort"
	"strconv"
	"time"

	"github.com/exoscore/exos/display"
	"github.com/exoscore/exos/kernel"
)

type cmdGfx struct {
	Backend   cmdGfxBackend   `command:"backend" description:"Switch the active graphics backend and mode"`
	Modes     cmdGfxModes     `command:"modes" description:"List backends and their modes"`
	SmokeTest cmdGfxSmokeTest `command:"smoke_test" description:"Exercise the active display path"`
}

type cmdGfxBackend struct {
	kernel *kernel.Kernel

	Positional struct {
		Name string `positional-arg-name:"<name>" required:"yes"`
		Mode string `positional-arg-name:"<WxHxBPP>" required:"yes"`
	} `positional-args:"yes"`
}

type cmdGfxModes struct {
	kernel *kernel.Kernel
}

type cmdGfxSmokeTest struct {
	kernel *kernel.Kernel

	Positional struct {
		Millis string `positional-arg-name:"[ms]"`
	} `positional-args:"yes"`
}

func init() {
	addCommand("gfx", "Control the display", `
The gfx command switches graphics backends and modes, lists what the
loaded backends can do, and runs the display smoke test. A failed mode
switch leaves the display in its previous state; persistent failures
escalate to the VGA text fallback.
`, func(k *kernel.Kernel) command {
		return &cmdGfx{
			Backend:   cmdGfxBackend{kernel: k},
			Modes:     cmdGfxModes{kernel: k},
			SmokeTest: cmdGfxSmokeTest{kernel: k},
		}
	})
}

func (c *cmdGfx) Execute(args []string) error {
	return fmt.Errorf("gfx: missing subcommand (backend, modes or smoke_test)")
}

func (c *cmdGfxBackend) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysGfxBackend, func() error {
		mode, err := display.ParseMode(c.Positional.Mode)
		if err != nil {
			return fmt.Errorf("display: %v", err)
		}
		d, err := c.kernel.Backends.Lookup(c.Positional.Name)
		if err != nil {
			return fmt.Errorf("display: %v", err)
		}
		if mode.BPP == 16 {
			mode.Text = true
		}
		if err := c.kernel.Display.SwitchToConsole(d, mode); err != nil {
			c.kernel.Display.EmergencyVGAFallback()
			return fmt.Errorf("display: %v (fell back to VGA text)", err)
		}
		fmt.Fprintf(Stdout, "display: %s at %s\n", d.Name(), mode)
		return nil
	})
}

func (c *cmdGfxModes) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysGfxBackend, func() error {
		names := c.kernel.Backends.Names()
		sort.Strings(names)
		for _, name := range names {
			d, err := c.kernel.Backends.Lookup(name)
			if err != nil {
				continue
			}
			fmt.Fprintf(Stdout, "%s:\n", name)
			for _, m := range d.Modes() {
				fmt.Fprintf(Stdout, "  %s\n", m)
			}
		}
		return nil
	})
}

func (c *cmdGfxSmokeTest) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysGfxSmokeTest, func() error {
		duration := 500 * time.Millisecond
		if c.Positional.Millis != "" {
			ms, err := strconv.Atoi(c.Positional.Millis)
			if err != nil || ms < 0 {
				return fmt.Errorf("display: invalid duration %q", c.Positional.Millis)
			}
			duration = time.Duration(ms) * time.Millisecond
		}
		if err := c.kernel.Display.SmokeTest(duration); err != nil {
			return fmt.Errorf("display: %v", err)
		}
		fmt.Fprintln(Stdout, "display: smoke test passed")
		return nil
	})
}
