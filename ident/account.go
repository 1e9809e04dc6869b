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

// Package ident implements the identity subsystem: user accounts, the
// persisted account database, password hashing and login sessions.
package ident

import (
	"errors"
	"time"
)

// Privilege orders from most to least privileged; lower is stronger.
type Privilege uint32

const (
	PrivilegeKernel Privilege = 0
	PrivilegeAdmin  Privilege = 1
	PrivilegeUser   Privilege = 2
)

func (p Privilege) String() string {
	switch p {
	case PrivilegeKernel:
		return "kernel"
	case PrivilegeAdmin:
		return "admin"
	case PrivilegeUser:
		return "user"
	}
	return "invalid"
}

// Allows reports whether a caller at privilege p may use an entry point
// requiring min.
func (p Privilege) Allows(min Privilege) bool {
	return p <= min
}

// Status is the account status.
type Status uint32

const (
	StatusActive    Status = 0x00000001
	StatusSuspended Status = 0x00000002
	StatusLocked    Status = 0x00000004
)

// MaxUserNameLen bounds account names, excluding the terminator the
// on-disk record reserves.
const MaxUserNameLen = 31

// Account is one user account. Accounts are owned by the Identity
// manager for the life of the system; callers receive copies.
type Account struct {
	UserID        uint64
	UserName      string
	Hash          PasswordHash
	Privilege     Privilege
	Status        Status
	CreationTime  time.Time
	LastLoginTime time.Time
}

// Failure kinds surfaced by the identity subsystem.
var (
	ErrNoSuchUser      = errors.New("no such user")
	ErrUserExists      = errors.New("user already exists")
	ErrInvalidUserName = errors.New("invalid user name")
	ErrBadPassword     = errors.New("bad password")
	ErrNoPermission    = errors.New("no permission")
	ErrNoSession       = errors.New("no session")
	ErrSessionLocked   = errors.New("session locked")
	ErrUnlockRefused   = errors.New("too many failed unlocks")
	ErrCorruptDatabase = errors.New("corrupt user database")
)
