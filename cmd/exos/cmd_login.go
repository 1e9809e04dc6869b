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

	"github.com/exoscore/exos/kernel"
)

type cmdLogin struct {
	kernel *kernel.Kernel

	Positional struct {
		UserName string `positional-arg-name:"<username>" required:"yes"`
	} `positional-args:"yes"`
}

func init() {
	addCommand("login", "Authenticate a user", `
The login command verifies a user's password and opens a session bound
to this shell.
`, func(k *kernel.Kernel) command {
		return &cmdLogin{kernel: k}
	})
}

func (c *cmdLogin) Execute(args []string) error {
	password, err := readPassword(fmt.Sprintf("Password for %s: ", c.Positional.UserName))
	if err != nil {
		return err
	}
	sess, err := c.kernel.Login(c.Positional.UserName, password, "shell")
	if err != nil {
		return fmt.Errorf("ident: %v", err)
	}
	fmt.Fprintf(Stdout, "session %#x opened for %s\n", sess.ID, c.Positional.UserName)
	return nil
}
