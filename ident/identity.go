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
	"fmt"
	"sync"
	"time"

	"gopkg.in/tomb.v2"

	"github.com/exoscore/exos/logger"
)

// Options configure an Identity manager.
type Options struct {
	// SessionTimeout after which an idle session is invalid; the
	// periodic sweep destroys such sessions. Defaults to
	// DefaultSessionTimeout.
	SessionTimeout time.Duration

	// MaxFailedUnlocks is the failed-unlock threshold after which
	// unlock attempts are refused outright. Defaults to 5.
	MaxFailedUnlocks int

	// Clock is the time source, for tests. Defaults to time.Now.
	Clock func() time.Time
}

// Identity owns the account and session collections.
//
// Lock order: sessions before accounts; neither is ever held while
// calling out of the package.
type Identity struct {
	sessionsMu sync.Mutex
	accountsMu sync.Mutex

	timeout          time.Duration
	maxFailedUnlocks int
	clock            func() time.Time

	accounts []*Account

	sessions      []*Session
	current       *Session
	nextSessionID uint64

	sweeper *tomb.Tomb
}

// New creates an Identity manager with an empty account collection.
func New(opts *Options) *Identity {
	if opts == nil {
		opts = &Options{}
	}
	m := &Identity{
		timeout:          opts.SessionTimeout,
		maxFailedUnlocks: opts.MaxFailedUnlocks,
		clock:            opts.Clock,
	}
	if m.timeout == 0 {
		m.timeout = DefaultSessionTimeout
	}
	if m.maxFailedUnlocks == 0 {
		m.maxFailedUnlocks = 5
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	return m
}

// lockedFindAccount returns the live account; accountsMu must be held.
func (m *Identity) lockedFindAccount(userName string) *Account {
	for _, a := range m.accounts {
		if a.UserName == userName {
			return a
		}
	}
	return nil
}

func (m *Identity) lockedFindAccountByID(userID uint64) *Account {
	for _, a := range m.accounts {
		if a.UserID == userID {
			return a
		}
	}
	return nil
}

// CreateAccount creates a user account. The very first account of an
// empty database is forced to admin privilege so that bootstrap can
// produce an administrator.
func (m *Identity) CreateAccount(userName, password string, privilege Privilege) (Account, error) {
	if userName == "" || len(userName) > MaxUserNameLen {
		return Account{}, fmt.Errorf("%w: %q", ErrInvalidUserName, userName)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return Account{}, err
	}

	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()

	if m.lockedFindAccount(userName) != nil {
		return Account{}, fmt.Errorf("cannot create %q: %w", userName, ErrUserExists)
	}
	if len(m.accounts) == 0 {
		privilege = PrivilegeAdmin
	}
	now := m.clock()
	a := &Account{
		UserID:        HashUserID(userName),
		UserName:      userName,
		Hash:          hash,
		Privilege:     privilege,
		Status:        StatusActive,
		CreationTime:  now,
		LastLoginTime: now,
	}
	m.accounts = append(m.accounts, a)
	logger.Noticef("ident: created user account %q", userName)
	return *a, nil
}

// DeleteAccount removes a user account. The reserved root account
// cannot be deleted.
func (m *Identity) DeleteAccount(userName string) error {
	if userName == "root" {
		return fmt.Errorf("cannot delete %q: %w", userName, ErrNoPermission)
	}
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	for i, a := range m.accounts {
		if a.UserName == userName {
			m.accounts = append(m.accounts[:i], m.accounts[i+1:]...)
			logger.Noticef("ident: deleted user account %q", userName)
			return nil
		}
	}
	return fmt.Errorf("cannot delete %q: %w", userName, ErrNoSuchUser)
}

// FindAccount looks an account up by name.
func (m *Identity) FindAccount(userName string) (Account, error) {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	if a := m.lockedFindAccount(userName); a != nil {
		return *a, nil
	}
	return Account{}, fmt.Errorf("cannot find %q: %w", userName, ErrNoSuchUser)
}

// FindAccountByID looks an account up by user id.
func (m *Identity) FindAccountByID(userID uint64) (Account, error) {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	if a := m.lockedFindAccountByID(userID); a != nil {
		return *a, nil
	}
	return Account{}, fmt.Errorf("cannot find user %#x: %w", userID, ErrNoSuchUser)
}

// Accounts returns a copy of the account collection.
func (m *Identity) Accounts() []Account {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	out := make([]Account, len(m.accounts))
	for i, a := range m.accounts {
		out[i] = *a
	}
	return out
}

// ChangePassword verifies the old password and installs a new hash.
func (m *Identity) ChangePassword(userName, oldPassword, newPassword string) error {
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	a := m.lockedFindAccount(userName)
	if a == nil {
		return fmt.Errorf("cannot change password for %q: %w", userName, ErrNoSuchUser)
	}
	if !VerifyPassword(oldPassword, a.Hash) {
		return fmt.Errorf("cannot change password for %q: %w", userName, ErrBadPassword)
	}
	a.Hash = hash
	logger.Noticef("ident: password changed for %q", userName)
	return nil
}

// CheckPassword verifies a login password and upgrades legacy hashes in
// place on success.
func (m *Identity) CheckPassword(userName, password string) error {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	a := m.lockedFindAccount(userName)
	if a == nil {
		return fmt.Errorf("cannot authenticate %q: %w", userName, ErrNoSuchUser)
	}
	if !VerifyPassword(password, a.Hash) {
		return fmt.Errorf("cannot authenticate %q: %w", userName, ErrBadPassword)
	}
	if a.Hash.Version == HashVersionLegacy {
		if hash, err := HashPassword(password); err == nil {
			a.Hash = hash
			logger.Debugf("ident: upgraded password hash for %q", userName)
		}
	}
	return nil
}

// SerializeDatabase renders the account collection in DBG1 form.
func (m *Identity) SerializeDatabase() ([]byte, error) {
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	return SerializeAccounts(m.accounts)
}

// LoadDatabase replaces the account collection from a DBG1 image. On a
// corrupt image the collection is left empty so an out-of-band bootstrap
// can create the first account.
func (m *Identity) LoadDatabase(data []byte) error {
	accounts, err := LoadAccounts(data)
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()
	if err != nil {
		m.accounts = nil
		return err
	}
	m.accounts = accounts
	return nil
}

// generateSessionID produces the next session id: a monotonic counter
// in the high bits XOR clock entropy in the low 32, strictly increasing
// per boot. sessionsMu must be held.
func (m *Identity) generateSessionID() uint64 {
	m.nextSessionID++
	entropy := uint64(m.clock().UnixNano()) & 0xffffffff
	return m.nextSessionID<<32 ^ entropy
}

// CreateSession logs a user in: creates the session, binds it to the
// shell task and records last-login on the account atomically.
func (m *Identity) CreateSession(userID uint64, shellTask TaskHandle) (*Session, error) {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()

	m.accountsMu.Lock()
	a := m.lockedFindAccountByID(userID)
	if a == nil || a.Status != StatusActive {
		m.accountsMu.Unlock()
		return nil, fmt.Errorf("cannot create session for user %#x: %w", userID, ErrNoSuchUser)
	}
	now := m.clock()
	a.LastLoginTime = now
	m.accountsMu.Unlock()

	s := &Session{
		ID:           m.generateSessionID(),
		UserID:       userID,
		LoginTime:    now,
		LastActivity: now,
		ShellTask:    shellTask,
	}
	m.sessions = append(m.sessions, s)
	logger.Debugf("ident: session %#x created for user %#x", s.ID, userID)
	return s, nil
}

// DestroySession detaches a session from all lookups. The associated
// shell task is not touched; its owner reaps it.
func (m *Identity) DestroySession(s *Session) {
	if s == nil {
		return
	}
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	m.lockedDestroySession(s)
}

func (m *Identity) lockedDestroySession(s *Session) {
	for i, cur := range m.sessions {
		if cur == s {
			m.sessions = append(m.sessions[:i], m.sessions[i+1:]...)
			if m.current == s {
				m.current = nil
			}
			logger.Debugf("ident: session %#x destroyed", s.ID)
			return
		}
	}
}

// ValidateSession reports whether a session is usable: known, unlocked
// and within the activity timeout.
func (m *Identity) ValidateSession(s *Session) bool {
	if s == nil {
		return false
	}
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if !m.lockedKnownSession(s) {
		return false
	}
	if s.IsLocked {
		return false
	}
	return m.clock().Sub(s.LastActivity) <= m.timeout
}

func (m *Identity) lockedKnownSession(s *Session) bool {
	for _, cur := range m.sessions {
		if cur == s {
			return true
		}
	}
	return false
}

// UpdateActivity advances a session's last-activity timestamp. The
// timestamp never moves backwards.
func (m *Identity) UpdateActivity(s *Session) {
	if s == nil {
		return
	}
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if now := m.clock(); now.After(s.LastActivity) {
		s.LastActivity = now
	}
}

// LockSession locks an active session.
func (m *Identity) LockSession(s *Session, reason LockReason) error {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if !m.lockedKnownSession(s) {
		return fmt.Errorf("cannot lock session: %w", ErrNoSession)
	}
	s.IsLocked = true
	s.LockReason = reason
	s.LockTime = m.clock()
	s.FailedUnlocks = 0
	logger.Debugf("ident: session %#x locked (%s)", s.ID, reason)
	return nil
}

// UnlockSession verifies the owning user's password and unlocks. Past
// the failed-unlock threshold attempts are refused without
// verification; the session stays locked.
func (m *Identity) UnlockSession(s *Session, password string) error {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if !m.lockedKnownSession(s) {
		return fmt.Errorf("cannot unlock session: %w", ErrNoSession)
	}
	if !s.IsLocked {
		return nil
	}
	if s.FailedUnlocks >= m.maxFailedUnlocks {
		return fmt.Errorf("cannot unlock session: %w", ErrUnlockRefused)
	}

	m.accountsMu.Lock()
	a := m.lockedFindAccountByID(s.UserID)
	ok := a != nil && VerifyPassword(password, a.Hash)
	m.accountsMu.Unlock()

	if !ok {
		s.FailedUnlocks++
		return fmt.Errorf("cannot unlock session: %w", ErrBadPassword)
	}
	s.IsLocked = false
	s.LockReason = LockReasonNone
	s.FailedUnlocks = 0
	if now := m.clock(); now.After(s.LastActivity) {
		s.LastActivity = now
	}
	logger.Debugf("ident: session %#x unlocked", s.ID)
	return nil
}

// SweepTimedOutSessions destroys sessions past the activity timeout.
// Locked sessions do not time out while locked.
func (m *Identity) SweepTimedOutSessions() int {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	now := m.clock()
	swept := 0
	kept := m.sessions[:0]
	for _, s := range m.sessions {
		if !s.IsLocked && now.Sub(s.LastActivity) > m.timeout {
			if m.current == s {
				m.current = nil
			}
			logger.Noticef("ident: session %#x for user %#x timed out", s.ID, s.UserID)
			swept++
			continue
		}
		kept = append(kept, s)
	}
	m.sessions = kept
	return swept
}

// FindSessionByTask looks a session up by its shell task handle.
func (m *Identity) FindSessionByTask(task TaskHandle) *Session {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	for _, s := range m.sessions {
		if s.ShellTask == task {
			return s
		}
	}
	return nil
}

// FindSessionByUser looks a session up by owning user id.
func (m *Identity) FindSessionByUser(userID uint64) *Session {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	for _, s := range m.sessions {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

// SetCurrentSession selects the session of the current caller context.
func (m *Identity) SetCurrentSession(s *Session) error {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	if s != nil && !m.lockedKnownSession(s) {
		return fmt.Errorf("cannot select session: %w", ErrNoSession)
	}
	m.current = s
	return nil
}

// CurrentSession returns the session of the current caller context.
func (m *Identity) CurrentSession() *Session {
	m.sessionsMu.Lock()
	defer m.sessionsMu.Unlock()
	return m.current
}

// CurrentUser returns the account owning the current session.
func (m *Identity) CurrentUser() (Account, error) {
	s := m.CurrentSession()
	if s == nil {
		return Account{}, ErrNoSession
	}
	return m.FindAccountByID(s.UserID)
}

// CheckPrivilege verifies that the current caller context is allowed an
// entry point gated at min. Without a session only user-level entry
// points are permitted.
func (m *Identity) CheckPrivilege(min Privilege) error {
	a, err := m.CurrentUser()
	if err != nil {
		if min == PrivilegeUser {
			return nil
		}
		return fmt.Errorf("%w: %s privilege required", ErrNoPermission, min)
	}
	if !a.Privilege.Allows(min) {
		return fmt.Errorf("%w: %s privilege required", ErrNoPermission, min)
	}
	return nil
}

// StartSweeper runs the timeout sweep every interval until StopSweeper.
func (m *Identity) StartSweeper(interval time.Duration) {
	if m.sweeper != nil {
		return
	}
	m.sweeper = new(tomb.Tomb)
	m.sweeper.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.SweepTimedOutSessions()
			case <-m.sweeper.Dying():
				return nil
			}
		}
	})
}

// StopSweeper stops the periodic sweep and waits for it.
func (m *Identity) StopSweeper() {
	if m.sweeper == nil {
		return
	}
	m.sweeper.Kill(nil)
	m.sweeper.Wait()
	m.sweeper = nil
}
