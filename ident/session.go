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

package ident

import (
	"time"
)

// LockReason records why a session was locked.
type LockReason uint32

const (
	LockReasonNone    LockReason = 0
	LockReasonTimeout LockReason = 1
	LockReasonManual  LockReason = 2
)

func (r LockReason) String() string {
	switch r {
	case LockReasonNone:
		return "none"
	case LockReasonTimeout:
		return "timeout"
	case LockReasonManual:
		return "manual"
	}
	return "invalid"
}

// TaskHandle identifies the shell task a session is bound to. The task
// itself is owned by the launcher, never by the identity subsystem.
type TaskHandle any

// Session is a live authenticated context. All fields are managed by
// the Identity manager; callers hold the pointer only for identity
// calls and read access.
type Session struct {
	ID            uint64
	UserID        uint64
	LoginTime     time.Time
	LastActivity  time.Time
	IsLocked      bool
	LockReason    LockReason
	LockTime      time.Time
	FailedUnlocks int
	ShellTask     TaskHandle
}

// DefaultSessionTimeout applies when the manager is built without an
// explicit timeout.
const DefaultSessionTimeout = 30 * time.Minute
