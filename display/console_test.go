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

package display_test

import (
	"sync"

	. "gopkg.in/check.v1"

	"github.com/exoscore/exos/display"
)

var _ = Suite(&consoleSuite{})

type consoleSuite struct {
	vga     *display.VGAText
	console *display.Console
}

func (s *consoleSuite) SetUpTest(c *C) {
	s.vga = display.NewVGAText()
	s.console = display.NewConsole(s.vga, s.vga.Mode())
}

// queueKeys is a scripted key source.
type queueKeys struct {
	mu   sync.Mutex
	keys []byte
}

func (q *queueKeys) PollKey() (byte, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.keys) == 0 {
		return 0, false
	}
	k := q.keys[0]
	q.keys = q.keys[1:]
	return k, true
}

func (s *consoleSuite) TestPrintReachesBackend(c *C) {
	c.Assert(s.console.Print(0, "hi"), IsNil)
	c.Check(s.vga.CellAt(0, 0).Char, Equals, byte('h'))
	c.Check(s.vga.CellAt(1, 0).Char, Equals, byte('i'))

	x, y, _ := s.vga.Cursor()
	c.Check(x, Equals, 2)
	c.Check(y, Equals, 0)
}

func (s *consoleSuite) TestNewlineAndWrap(c *C) {
	c.Assert(s.console.Print(0, "a\nb"), IsNil)
	c.Check(s.console.CellAt(0, 0).Char, Equals, byte('a'))
	c.Check(s.console.CellAt(0, 1).Char, Equals, byte('b'))

	// wrap at region width
	x, y, err := s.console.Cursor(0)
	c.Assert(err, IsNil)
	c.Check(x, Equals, 1)
	c.Check(y, Equals, 1)
	for i := 0; i < 79; i++ {
		c.Assert(s.console.PrintChar(0, '.'), IsNil)
	}
	x, y, err = s.console.Cursor(0)
	c.Assert(err, IsNil)
	c.Check(x, Equals, 0)
	c.Check(y, Equals, 2)
}

func (s *consoleSuite) TestScrollAtBottom(c *C) {
	for i := 0; i < 25; i++ {
		c.Assert(s.console.Print(0, "line\n"), IsNil)
	}
	// the top line scrolled away
	c.Check(s.console.CellAt(0, 24).Char, Equals, byte(' '))
	c.Check(s.console.CellAt(0, 23).Char, Equals, byte('l'))
}

func (s *consoleSuite) TestLayoutRegions(c *C) {
	c.Assert(s.console.SetLayout(2, 2), IsNil)
	c.Check(s.console.NumRegions(), Equals, 4)

	err := s.console.SetLayout(3, 3)
	c.Check(err, NotNil) // 9 > MaxConsoleRegions

	// independent cursors
	c.Assert(s.console.Print(0, "aa"), IsNil)
	c.Assert(s.console.Print(3, "b"), IsNil)
	x0, _, err := s.console.Cursor(0)
	c.Assert(err, IsNil)
	x3, _, err := s.console.Cursor(3)
	c.Assert(err, IsNil)
	c.Check(x0, Equals, 2)
	c.Check(x3, Equals, 1)

	// region 3 writes land in its own rectangle (40,12)
	c.Check(s.console.CellAt(40, 12).Char, Equals, byte('b'))
}

func (s *consoleSuite) TestRegionBoundsChecked(c *C) {
	c.Check(s.console.Print(7, "x"), NotNil)
	c.Check(s.console.ClearRegion(-1), NotNil)
	_, _, err := s.console.Cursor(9)
	c.Check(err, NotNil)
}

func (s *consoleSuite) TestClearRegion(c *C) {
	c.Assert(s.console.Print(0, "junk"), IsNil)
	c.Assert(s.console.ClearRegion(0), IsNil)
	c.Check(s.console.CellAt(0, 0).Char, Equals, byte(' '))
	x, y, err := s.console.Cursor(0)
	c.Assert(err, IsNil)
	c.Check(x, Equals, 0)
	c.Check(y, Equals, 0)
}

func (s *consoleSuite) TestPagingPromptContinues(c *C) {
	keys := &queueKeys{keys: []byte{display.KeySpace}}
	s.console.SetKeySource(keys)
	c.Assert(s.console.EnablePaging(0, true), IsNil)

	// 24 scrolls consume the page; the 25th blocks on the prompt and
	// the queued space continues
	for i := 0; i < 25; i++ {
		c.Assert(s.console.ScrollRegion(0), IsNil)
	}
	// prompt was wiped again
	c.Check(s.console.CellAt(0, 24).Char, Equals, byte(' '))
}

func (s *consoleSuite) TestPagingEscapeCancelsPrompts(c *C) {
	keys := &queueKeys{keys: []byte{display.KeyEscape}}
	s.console.SetKeySource(keys)
	c.Assert(s.console.EnablePaging(0, true), IsNil)

	// run well past several pages: after escape no prompt blocks again
	for i := 0; i < 100; i++ {
		c.Assert(s.console.ScrollRegion(0), IsNil)
	}
	c.Check(len(keys.keys), Equals, 0)

	// reset re-arms paging
	c.Assert(s.console.ResetPaging(0), IsNil)
	keys.mu.Lock()
	keys.keys = []byte{display.KeyEnter}
	keys.mu.Unlock()
	for i := 0; i < 25; i++ {
		c.Assert(s.console.ScrollRegion(0), IsNil)
	}
	keys.mu.Lock()
	left := len(keys.keys)
	keys.mu.Unlock()
	c.Check(left, Equals, 0)
}

func (s *consoleSuite) TestSnapshotRoundTrip(c *C) {
	c.Assert(s.console.Print(0, "keep me"), IsNil)
	snap := s.console.CaptureConsole()

	c.Assert(s.console.ClearRegion(0), IsNil)
	c.Check(s.console.CellAt(0, 0).Char, Equals, byte(' '))

	c.Assert(s.console.RestoreConsole(snap), IsNil)
	c.Check(s.console.CellAt(0, 0).Char, Equals, byte('k'))
	c.Check(s.vga.CellAt(0, 0).Char, Equals, byte('k'))
}

func (s *consoleSuite) TestFramebufferGlyphPath(c *C) {
	gpu := newFakeGPU("vesa")
	mode := display.ModeInfo{Width: 640, Height: 480, BPP: 32}
	c.Assert(gpu.SetMode(mode), IsNil)

	console := display.NewConsole(gpu, mode)
	c.Assert(console.Print(0, "A"), IsNil)

	// some glyph pixels were rendered into the surface
	surf := gpu.Surface()
	lit := 0
	for _, px := range surf.Pix[:display.CellHeight*surf.Stride] {
		if px != 0 {
			lit++
		}
	}
	c.Check(lit > 0, Equals, true)

	// snapshot/restore through the pixel path
	snap := console.CaptureConsole()
	for i := range surf.Pix {
		surf.Pix[i] = 0
	}
	c.Assert(console.RestoreConsole(snap), IsNil)
	lit = 0
	for _, px := range surf.Pix[:display.CellHeight*surf.Stride] {
		if px != 0 {
			lit++
		}
	}
	c.Check(lit > 0, Equals, true)
}
