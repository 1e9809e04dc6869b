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

	"github.com/exoscore/exos/ident"
	"github.com/exoscore/exos/kernel"
)

type cmdSession struct {
	Lock   cmdSessionLock   `command:"lock" description:"Lock the current session"`
	Unlock cmdSessionUnlock `command:"unlock" description:"Unlock the current session"`
}

type cmdSessionLock struct {
	kernel *kernel.Kernel
}

type cmdSessionUnlock struct {
	kernel *kernel.Kernel
}

type cmdLogout struct {
	kernel *kernel.Kernel
}

func (c *cmdSession) Execute(args []string) error {
	return fmt.Errorf("session: missing subcommand (lock or unlock)")
}

func init() {
	addCommand("session", "Lock and unlock the current session", `
The session command locks the current session and unlocks it again
after password verification. Too many failed unlocks keep the session
locked for good.
`, func(k *kernel.Kernel) command {
		return &cmdSession{
			Lock:   cmdSessionLock{kernel: k},
			Unlock: cmdSessionUnlock{kernel: k},
		}
	})
	addCommand("logout", "Close the current session", `
The logout command destroys the current session. The shell task stays
alive; only the authentication context goes away.
`, func(k *kernel.Kernel) command {
		return &cmdLogout{kernel: k}
	})
}

func (c *cmdSessionLock) Execute(args []string) error {
	return c.kernel.Dispatch(kernel.SysSessionLock, func() error {
		s := c.kernel.Identity.CurrentSession()
		if s == nil {
			return fmt.Errorf("ident: %v", ident.ErrNoSession)
		}
		if err := c.kernel.Identity.LockSession(s, ident.LockReasonManual); err != nil {
			return fmt.Errorf("ident: %v", err)
		}
		fmt.Fprintln(Stdout, "session locked")
		return nil
	})
}

func (c *cmdSessionUnlock) Execute(args []string) error {
	// unlock must stay reachable while the session is invalid, so it
	// gates on privilege only, not on session validity
	if err := c.kernel.Gate(kernel.SysSessionUnlock); err != nil {
		return fmt.Errorf("ident: %v", err)
	}
	s := c.kernel.Identity.CurrentSession()
	if s == nil {
		return fmt.Errorf("ident: %v", ident.ErrNoSession)
	}
	password, err := readPassword("Password: ")
	if err != nil {
		return err
	}
	if err := c.kernel.Identity.UnlockSession(s, password); err != nil {
		return fmt.Errorf("ident: %v", err)
	}
	fmt.Fprintln(Stdout, "session unlocked")
	return nil
}

func (c *cmdLogout) Execute(args []string) error {
	if err := c.kernel.Logout(); err != nil {
		return fmt.Errorf("ident: %v", err)
	}
	fmt.Fprintln(Stdout, "logged out")
	return nil
}
