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
	"text/tabwriter"

	"github.com/exoscore/exos/ident"
	"github.com/exoscore/exos/kernel"
)

type cmdUser struct {
	kernel *kernel.Kernel

	Create cmdUserCreate `command:"create" description:"Create a user account"`
	Delete cmdUserDelete `command:"delete" description:"Delete a user account"`
	List   cmdUserList   `command:"list" description:"List user accounts"`
}

type cmdUserCreate struct {
	kernel *kernel.Kernel

	Admin      bool `long:"admin" description:"Grant admin privilege"`
	Positional struct {
		UserName string `positional-arg-name:"<username>" required:"yes"`
	} `positional-args:"yes"`
}

type cmdUserDelete struct {
	kernel *kernel.Kernel

	Positional struct {
		UserName string `positional-arg-name:"<username>" required:"yes"`
	} `positional-args:"yes"`
}

type cmdUserList struct {
	kernel *kernel.Kernel
}

func init() {
	addCommand("user", "Manage user accounts", `
The user command creates, deletes and lists user accounts. The very
first account created on an empty system becomes an administrator.
`, func(k *kernel.Kernel) command {
		return &cmdUser{
			kernel: k,
			Create: cmdUserCreate{kernel: k},
			Delete: cmdUserDelete{kernel: k},
			List:   cmdUserList{kernel: k},
		}
	})
}

func (c *cmdUser) Execute(args []string) error {
	return fmt.Errorf("user: missing subcommand (create, delete or list)")
}

func (c *cmdUserCreate) Execute(args []string) error {
	// an empty system has nobody to hold admin yet; the gate only
	// applies once accounts exist
	if len(c.kernel.Identity.Accounts()) > 0 {
		if err := c.kernel.Gate(kernel.SysUserCreate); err != nil {
			return fmt.Errorf("ident: %v", err)
		}
	}
	password, err := readNewPassword(c.Positional.UserName)
	if err != nil {
		return err
	}
	privilege := ident.PrivilegeUser
	if c.Admin {
		privilege = ident.PrivilegeAdmin
	}
	a, err := c.kernel.Identity.CreateAccount(c.Positional.UserName, password, privilege)
	if err != nil {
		return fmt.Errorf("ident: %v", err)
	}
	if err := c.kernel.SaveUserDatabase(); err != nil {
		return fmt.Errorf("ident: %v", err)
	}
	fmt.Fprintf(Stdout, "created user %q (%s)\n", a.UserName, a.Privilege)
	return nil
}

func (c *cmdUserDelete) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysUserDelete, func() error {
		if err := c.kernel.Identity.DeleteAccount(c.Positional.UserName); err != nil {
			return fmt.Errorf("ident: %v", err)
		}
		if err := c.kernel.SaveUserDatabase(); err != nil {
			return fmt.Errorf("ident: %v", err)
		}
		fmt.Fprintf(Stdout, "deleted user %q\n", c.Positional.UserName)
		return nil
	})
}

func (c *cmdUserList) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysUserList, func() error {
		w := tabwriter.NewWriter(Stdout, 5, 3, 2, ' ', 0)
		defer w.Flush()
		fmt.Fprintln(w, "Name\tPrivilege\tStatus\tLast login")
		for _, a := range c.kernel.Identity.Accounts() {
			status := "active"
			switch a.Status {
			case ident.StatusSuspended:
				status = "suspended"
			case ident.StatusLocked:
				status = "locked"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
				a.UserName, a.Privilege, status,
				a.LastLoginTime.Format("2006-01-02 15:04"))
		}
		return nil
	})
}
