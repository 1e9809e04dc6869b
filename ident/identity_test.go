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

package ident_test

import (
	"errors"
	"time"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/ident"
)

var _ = Suite(&identitySuite{})

type identitySuite struct {
	now time.Time
	m   *ident.Identity
}

func (s *identitySuite) SetUpTest(c *C) {
	s.now = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	s.m = ident.New(&ident.Options{
		SessionTimeout:   30 * time.Minute,
		MaxFailedUnlocks: 3,
		Clock:            func() time.Time { return s.now },
	})
	// bootstrap account so that later accounts keep their privilege
	_, err := s.m.CreateAccount("root", "rootpw", ident.PrivilegeAdmin)
	c.Assert(err, IsNil)
}

func (s *identitySuite) advance(d time.Duration) {
	s.now = s.now.Add(d)
}

func (s *identitySuite) login(c *C, name string) *ident.Session {
	a, err := s.m.FindAccount(name)
	c.Assert(err, IsNil)
	sess, err := s.m.CreateSession(a.UserID, nil)
	c.Assert(err, IsNil)
	return sess
}

func (s *identitySuite) TestFirstAccountForcedAdmin(c *C) {
	m := ident.New(nil)
	a, err := m.CreateAccount("first", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)
	c.Check(a.Privilege, Equals, ident.PrivilegeAdmin)

	b, err := m.CreateAccount("second", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)
	c.Check(b.Privilege, Equals, ident.PrivilegeUser)
}

func (s *identitySuite) TestCreateAccountValidation(c *C) {
	_, err := s.m.CreateAccount("", "pw", ident.PrivilegeUser)
	c.Check(errors.Is(err, ident.ErrInvalidUserName), Equals, true)

	long := make([]byte, 32)
	for i := range long {
		long[i] = 'a'
	}
	_, err = s.m.CreateAccount(string(long), "pw", ident.PrivilegeUser)
	c.Check(errors.Is(err, ident.ErrInvalidUserName), Equals, true)

	_, err = s.m.CreateAccount("root", "pw", ident.PrivilegeUser)
	c.Check(errors.Is(err, ident.ErrUserExists), Equals, true)
}

func (s *identitySuite) TestDeleteAccount(c *C) {
	_, err := s.m.CreateAccount("alice", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)
	c.Assert(s.m.DeleteAccount("alice"), IsNil)
	err = s.m.DeleteAccount("alice")
	c.Check(errors.Is(err, ident.ErrNoSuchUser), Equals, true)

	err = s.m.DeleteAccount("root")
	c.Check(errors.Is(err, ident.ErrNoPermission), Equals, true)
}

func (s *identitySuite) TestChangePassword(c *C) {
	_, err := s.m.CreateAccount("alice", "old", ident.PrivilegeUser)
	c.Assert(err, IsNil)

	err = s.m.ChangePassword("alice", "wrong", "new")
	c.Check(errors.Is(err, ident.ErrBadPassword), Equals, true)

	c.Assert(s.m.ChangePassword("alice", "old", "new"), IsNil)
	c.Check(s.m.CheckPassword("alice", "new"), IsNil)
	err = s.m.CheckPassword("alice", "old")
	c.Check(errors.Is(err, ident.ErrBadPassword), Equals, true)
}

// Account create + login + save/load round trip.
func (s *identitySuite) TestAccountLoginRoundTrip(c *C) {
	alice, err := s.m.CreateAccount("alice", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)

	c.Assert(s.m.CheckPassword("alice", "pw"), IsNil)
	sess := s.login(c, "alice")
	c.Assert(s.m.SetCurrentSession(sess), IsNil)

	cur, err := s.m.CurrentUser()
	c.Assert(err, IsNil)
	c.Check(cur.UserID, Equals, alice.UserID)

	// serialize/load/serialize is stable
	data, err := s.m.SerializeDatabase()
	c.Assert(err, IsNil)
	c.Assert(s.m.LoadDatabase(data), IsNil)
	again, err := s.m.SerializeDatabase()
	c.Assert(err, IsNil)
	c.Check(again, DeepEquals, data)

	reloaded, err := s.m.FindAccount("alice")
	c.Assert(err, IsNil)
	c.Check(reloaded.UserID, Equals, alice.UserID)
	c.Check(ident.VerifyPassword("pw", reloaded.Hash), Equals, true)
}

func (s *identitySuite) TestLoadDatabaseCorruptLeavesEmpty(c *C) {
	_, err := s.m.CreateAccount("alice", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)

	err = s.m.LoadDatabase([]byte("XXXX not a database"))
	c.Check(errors.Is(err, ident.ErrCorruptDatabase), Equals, true)
	c.Check(s.m.Accounts(), HasLen, 0)
}

func (s *identitySuite) TestLegacyHashUpgradedOnLogin(c *C) {
	_, err := s.m.CreateAccount("alice", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)

	// rewrite the database with a legacy hash
	data, err := s.m.SerializeDatabase()
	c.Assert(err, IsNil)
	accounts, err := ident.LoadAccounts(data)
	c.Assert(err, IsNil)
	for _, a := range accounts {
		if a.UserName == "alice" {
			a.Hash = ident.PasswordHash{
				Version: ident.HashVersionLegacy,
				Legacy:  ident.LegacyHashPassword("pw"),
			}
		}
	}
	data, err = ident.SerializeAccounts(accounts)
	c.Assert(err, IsNil)
	c.Assert(s.m.LoadDatabase(data), IsNil)

	c.Assert(s.m.CheckPassword("alice", "pw"), IsNil)
	a, err := s.m.FindAccount("alice")
	c.Assert(err, IsNil)
	c.Check(a.Hash.Version, Equals, uint8(ident.HashVersionArgon2))
	c.Check(ident.VerifyPassword("pw", a.Hash), Equals, true)
}

func (s *identitySuite) TestSessionLifecycle(c *C) {
	sess := s.login(c, "root")
	c.Check(s.m.ValidateSession(sess), Equals, true)

	// session binds to the account's last-login
	a, err := s.m.FindAccount("root")
	c.Assert(err, IsNil)
	c.Check(a.LastLoginTime.Equal(s.now), Equals, true)

	s.m.DestroySession(sess)
	c.Check(s.m.ValidateSession(sess), Equals, false)
}

func (s *identitySuite) TestCreateSessionUnknownUser(c *C) {
	_, err := s.m.CreateSession(0xdead, nil)
	c.Check(errors.Is(err, ident.ErrNoSuchUser), Equals, true)
}

// Session ids strictly increase per boot.
func (s *identitySuite) TestSessionIDsMonotonic(c *C) {
	var last uint64
	for i := 0; i < 10; i++ {
		sess := s.login(c, "root")
		c.Check(sess.ID > last, Equals, true)
		last = sess.ID
		s.m.DestroySession(sess)
		s.advance(time.Millisecond)
	}
}

func (s *identitySuite) TestActivityMonotonic(c *C) {
	sess := s.login(c, "root")
	first := sess.LastActivity
	s.advance(-time.Hour)
	s.m.UpdateActivity(sess)
	c.Check(sess.LastActivity.Equal(first), Equals, true)
	s.advance(2 * time.Hour)
	s.m.UpdateActivity(sess)
	c.Check(sess.LastActivity.After(first), Equals, true)
}

func (s *identitySuite) TestSessionTimeout(c *C) {
	sess := s.login(c, "root")
	s.advance(31 * time.Minute)
	c.Check(s.m.ValidateSession(sess), Equals, false)
	c.Check(s.m.SweepTimedOutSessions(), Equals, 1)
	c.Check(s.m.FindSessionByUser(sess.UserID), IsNil)
}

// A locked session is invalid but survives the sweep.
func (s *identitySuite) TestLockedSessionDoesNotTimeOut(c *C) {
	sess := s.login(c, "root")
	c.Assert(s.m.LockSession(sess, ident.LockReasonManual), IsNil)
	c.Check(s.m.ValidateSession(sess), Equals, false)

	s.advance(2 * time.Hour)
	c.Check(s.m.SweepTimedOutSessions(), Equals, 0)
	c.Check(s.m.FindSessionByUser(sess.UserID), Equals, sess)
	c.Check(sess.LockReason, Equals, ident.LockReasonManual)
}

func (s *identitySuite) TestUnlockSession(c *C) {
	sess := s.login(c, "root")
	c.Assert(s.m.LockSession(sess, ident.LockReasonTimeout), IsNil)

	err := s.m.UnlockSession(sess, "wrong")
	c.Check(errors.Is(err, ident.ErrBadPassword), Equals, true)
	c.Check(sess.FailedUnlocks, Equals, 1)

	c.Assert(s.m.UnlockSession(sess, "rootpw"), IsNil)
	c.Check(sess.IsLocked, Equals, false)
	c.Check(sess.FailedUnlocks, Equals, 0)
	c.Check(s.m.ValidateSession(sess), Equals, true)
}

func (s *identitySuite) TestUnlockThresholdEnforced(c *C) {
	sess := s.login(c, "root")
	c.Assert(s.m.LockSession(sess, ident.LockReasonManual), IsNil)

	for i := 0; i < 3; i++ {
		err := s.m.UnlockSession(sess, "wrong")
		c.Check(errors.Is(err, ident.ErrBadPassword), Equals, true)
	}
	// threshold reached: even the right password is refused
	err := s.m.UnlockSession(sess, "rootpw")
	c.Check(errors.Is(err, ident.ErrUnlockRefused), Equals, true)
	c.Check(sess.IsLocked, Equals, true)
}

func (s *identitySuite) TestFindSessionByTask(c *C) {
	task := "shell-1"
	a, err := s.m.FindAccount("root")
	c.Assert(err, IsNil)
	sess, err := s.m.CreateSession(a.UserID, task)
	c.Assert(err, IsNil)
	c.Check(s.m.FindSessionByTask(task), Equals, sess)
	c.Check(s.m.FindSessionByTask("other"), IsNil)
}

func (s *identitySuite) TestCheckPrivilege(c *C) {
	// no session: only user level is allowed
	c.Assert(s.m.SetCurrentSession(nil), IsNil)
	c.Check(s.m.CheckPrivilege(ident.PrivilegeUser), IsNil)
	err := s.m.CheckPrivilege(ident.PrivilegeAdmin)
	c.Check(errors.Is(err, ident.ErrNoPermission), Equals, true)

	// admin session
	sess := s.login(c, "root")
	c.Assert(s.m.SetCurrentSession(sess), IsNil)
	c.Check(s.m.CheckPrivilege(ident.PrivilegeAdmin), IsNil)
	c.Check(s.m.CheckPrivilege(ident.PrivilegeUser), IsNil)
	err = s.m.CheckPrivilege(ident.PrivilegeKernel)
	c.Check(errors.Is(err, ident.ErrNoPermission), Equals, true)

	// plain user session
	_, err = s.m.CreateAccount("alice", "pw", ident.PrivilegeUser)
	c.Assert(err, IsNil)
	c.Assert(s.m.SetCurrentSession(s.login(c, "alice")), IsNil)
	err = s.m.CheckPrivilege(ident.PrivilegeAdmin)
	c.Check(errors.Is(err, ident.ErrNoPermission), Equals, true)
}

func (s *identitySuite) TestSweeperRuns(c *C) {
	s.m.StartSweeper(10 * time.Millisecond)
	defer s.m.StopSweeper()

	sess := s.login(c, "root")
	s.advance(time.Hour)
	for i := 0; i < 100; i++ {
		if s.m.FindSessionByUser(sess.UserID) == nil {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.Fatal("sweeper did not destroy the timed out session")
}
