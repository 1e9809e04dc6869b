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

package kernel

import (
	"fmt"

	"github.com/exoscore/exos/ident"
)

// Syscall identifies one kernel entry point for privilege gating.
type Syscall int

const (
	SysUserCreate Syscall = iota
	SysUserDelete
	SysUserList
	SysUserChangePassword
	SysLogin
	SysLogout
	SysSessionLock
	SysSessionUnlock
	SysMount
	SysUnmount
	SysPackageAdd
	SysPackageRemove
	SysPackageList
	SysPackageRun
	SysRun
	SysGfxBackend
	SysGfxSmokeTest
	SysShutdown
)

// syscallPrivileges declares the minimum privilege of every entry
// point. Dispatch refuses anything below it; kernel-privilege entries
// are reachable only from kernel-space callers, never via Dispatch.
var syscallPrivileges = map[Syscall]ident.Privilege{
	SysUserCreate:         ident.PrivilegeAdmin,
	SysUserDelete:         ident.PrivilegeAdmin,
	SysUserList:           ident.PrivilegeAdmin,
	SysUserChangePassword: ident.PrivilegeUser,
	SysLogin:              ident.PrivilegeUser,
	SysLogout:             ident.PrivilegeUser,
	SysSessionLock:        ident.PrivilegeUser,
	SysSessionUnlock:      ident.PrivilegeUser,
	SysMount:              ident.PrivilegeAdmin,
	SysUnmount:            ident.PrivilegeAdmin,
	SysPackageAdd:         ident.PrivilegeAdmin,
	SysPackageRemove:      ident.PrivilegeAdmin,
	SysPackageList:        ident.PrivilegeUser,
	SysPackageRun:         ident.PrivilegeUser,
	SysRun:                ident.PrivilegeUser,
	SysGfxBackend:         ident.PrivilegeAdmin,
	SysGfxSmokeTest:       ident.PrivilegeAdmin,
	SysShutdown:           ident.PrivilegeKernel,
}

// Gate verifies the current caller context may enter a syscall.
func (k *Kernel) Gate(sc Syscall) error {
	min, ok := syscallPrivileges[sc]
	if !ok {
		return fmt.Errorf("unknown syscall %d", sc)
	}
	return k.Identity.CheckPrivilege(min)
}

// Dispatch gates and runs one entry point, refreshing the current
// session's activity on success.
func (k *Kernel) Dispatch(sc Syscall, fn func() error) error {
	if err := k.Gate(sc); err != nil {
		return err
	}
	if err := fn(); err != nil {
		return err
	}
	k.Identity.UpdateActivity(k.Identity.CurrentSession())
	return nil
}
