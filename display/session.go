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

package display

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/retry.v1"

	"github.com/exoscore/exos/logger"
)

// Frontend identifies the owner of the active back-end.
type Frontend int

const (
	FrontendNone Frontend = iota
	FrontendConsole
	FrontendDesktop
)

func (f Frontend) String() string {
	switch f {
	case FrontendNone:
		return "none"
	case FrontendConsole:
		return "console"
	case FrontendDesktop:
		return "desktop"
	}
	return "invalid"
}

// Desktop is the windowed front-end handle; its composition is outside
// the arbiter's scope.
type Desktop struct {
	Name string
}

// setModeStrategy retries a failing mode switch a few times before the
// caller gives up or escalates to the emergency fallback.
var setModeStrategy = retry.LimitCount(3, retry.Exponential{
	Initial: 10 * time.Millisecond,
	Factor:  1.5,
})

// Session is the display arbiter singleton: it owns which front-end
// drives the active back-end and serializes every transition. It is a
// lock leaf; no other subsystem is called with the mutex held.
type Session struct {
	mu sync.Mutex

	driver       Driver
	desktop      *Desktop
	mode         ModeInfo
	frontend     Frontend
	initialized  bool
	hasValidMode bool

	console  *Console
	fallback *VGAText
}

// NewSession creates the arbiter with the built-in VGA text back-end as
// console driver; the session starts in the console front-end with no
// valid mode.
func NewSession() *Session {
	s := &Session{
		fallback: NewVGAText(),
	}
	s.driver = s.fallback
	s.frontend = FrontendConsole
	s.initialized = true
	s.console = NewConsole(s.fallback, s.fallback.Mode())
	return s
}

// Console returns the console front-end.
func (s *Session) Console() *Console {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.console
}

// ActiveFrontend reports who owns the back-end.
func (s *Session) ActiveFrontend() Frontend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return FrontendNone
	}
	return s.frontend
}

// ActiveMode returns the active mode, if one is programmed.
func (s *Session) ActiveMode() (ModeInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode, s.hasValidMode
}

// ActiveDriver returns the active back-end.
func (s *Session) ActiveDriver() Driver {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.driver
}

// ActiveDesktop returns the active desktop, nil in console state.
func (s *Session) ActiveDesktop() *Desktop {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.desktop
}

// setMode programs a mode on a driver with bounded retries.
func setMode(d Driver, mode ModeInfo) error {
	var err error
	for a := retry.Start(setModeStrategy, nil); a.Next(); {
		if !d.Ready() {
			err = fmt.Errorf("%w: %s", ErrNotReady, d.Name())
			continue
		}
		if err = d.SetMode(mode); err == nil {
			return nil
		}
	}
	return err
}

// SwitchToConsole programs the given back-end into a text-capable mode
// and hands the display to the console front-end. On failure the
// previous state is fully preserved.
func (s *Session) SwitchToConsole(d Driver, mode ModeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d == nil {
		d = s.driver
	}
	if err := setMode(d, mode); err != nil {
		logger.Noticef("display: console mode switch to %s failed: %v", mode, err)
		return err
	}
	s.driver = d
	s.desktop = nil
	s.mode = mode
	s.frontend = FrontendConsole
	s.hasValidMode = true
	s.console.Reset(d, mode)
	logger.Debugf("display: console owns %s at %s", d.Name(), mode)
	return nil
}

// SwitchToDesktop validates the driver is loaded and ready, programs the
// mode and hands the display to the desktop front-end. The console's
// cached framebuffer mapping is invalidated. On failure the previous
// state is fully preserved.
func (s *Session) SwitchToDesktop(desktop *Desktop, d Driver, mode ModeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if desktop == nil || d == nil {
		return fmt.Errorf("%w: desktop switch needs a desktop and a driver", ErrBadMode)
	}
	if !d.Ready() {
		return fmt.Errorf("%w: %s", ErrNotReady, d.Name())
	}
	if err := setMode(d, mode); err != nil {
		logger.Noticef("display: desktop mode switch to %s failed: %v", mode, err)
		return err
	}
	s.driver = d
	s.desktop = desktop
	s.mode = mode
	s.frontend = FrontendDesktop
	s.hasValidMode = true
	s.console.InvalidateFramebuffer()
	logger.Debugf("display: desktop %q owns %s at %s", desktop.Name, d.Name(), mode)
	return nil
}

// EmergencyVGAFallback unconditionally returns the display to the
// built-in VGA text mode. The built-in back-end cannot fail, so this
// path succeeds from any state.
func (s *Session) EmergencyVGAFallback() {
	s.mu.Lock()
	defer s.mu.Unlock()
	mode := ModeInfo{Width: 80, Height: 25, BPP: 16, Text: true}
	// the fallback driver accepts this mode by construction
	if err := s.fallback.SetMode(mode); err != nil {
		logger.Panicf("display: VGA fallback refused its own text mode: %v", err)
	}
	s.driver = s.fallback
	s.desktop = nil
	s.mode = mode
	s.frontend = FrontendConsole
	s.hasValidMode = true
	s.console.Reset(s.fallback, mode)
	logger.Noticef("display: emergency VGA fallback engaged")
}
