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
)

// MaxConsoleRegions bounds the console region grid.
const MaxConsoleRegions = 8

// Paging prompt keys.
const (
	KeySpace  byte = ' '
	KeyEnter  byte = '\r'
	KeyEscape byte = 0x1b
)

// pagingPollInterval is the sleep between keyboard polls while a region
// blocks on its paging prompt.
const pagingPollInterval = 10 * time.Millisecond

// pagingPrompt is shown when a region exhausts its page.
const pagingPrompt = "-- More --"

// A KeySource feeds the blocking console prompts. PollKey is
// non-blocking; the console sleeps between polls.
type KeySource interface {
	PollKey() (byte, bool)
}

// Region is one rectangle of the console grid with independent cursor,
// colors and paging state.
type Region struct {
	x, y, w, h int

	cursorX int
	cursorY int
	attr    uint8

	pagingEnabled   bool
	pagingActive    bool
	pagingRemaining int
	pagingCancelled bool
}

// Console is the text front-end: a shadow cell buffer over the active
// back-end, divided into up to MaxConsoleRegions rectangular regions.
// Region 0 is the primary and is active by default; the active region's
// cursor (see SetActiveRegion) is the one reflected to the back-end
// cursor.
type Console struct {
	mu sync.Mutex

	driver Driver
	mode   ModeInfo
	cells  []TextCell

	regions []Region
	active  int

	keys KeySource

	fb *fbView
}

// NewConsole creates a console over a back-end in a given text mode,
// with a single full-screen region.
func NewConsole(d Driver, mode ModeInfo) *Console {
	c := &Console{}
	c.Reset(d, mode)
	return c
}

// Reset rebinds the console to a back-end and mode, resetting regions,
// shadow cells and cursor state.
func (c *Console) Reset(d Driver, mode ModeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver = d
	c.mode = mode
	c.cells = make([]TextCell, mode.Width*mode.Height)
	for i := range c.cells {
		c.cells[i] = TextCell{Char: ' ', Attr: DefaultTextAttr}
	}
	c.regions = []Region{{w: mode.Width, h: mode.Height, attr: DefaultTextAttr}}
	c.active = 0
	c.fb = newFBView(d, mode)
	d.SetCursorPosition(0, 0)
	d.SetCursorVisible(true)
}

// SetKeySource wires the keyboard poll used by blocking prompts.
func (c *Console) SetKeySource(k KeySource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = k
}

// InvalidateFramebuffer drops any cached framebuffer mapping; the next
// console use re-establishes it.
func (c *Console) InvalidateFramebuffer() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fb = nil
}

// SetLayout splits the console into a rows x cols grid of equal
// regions. The product must not exceed MaxConsoleRegions.
func (c *Console) SetLayout(rows, cols int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if rows < 1 || cols < 1 || rows*cols > MaxConsoleRegions {
		return fmt.Errorf("%w: %dx%d grid", ErrBadRegion, rows, cols)
	}
	w := c.mode.Width / cols
	h := c.mode.Height / rows
	if w < 1 || h < 1 {
		return fmt.Errorf("%w: %dx%d grid does not fit %s", ErrBadRegion, rows, cols, c.mode)
	}
	c.regions = c.regions[:0]
	for r := 0; r < rows; r++ {
		for col := 0; col < cols; col++ {
			c.regions = append(c.regions, Region{
				x: col * w, y: r * h, w: w, h: h,
				attr: DefaultTextAttr,
			})
		}
	}
	c.active = 0
	return nil
}

// NumRegions returns the number of configured regions.
func (c *Console) NumRegions() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.regions)
}

// SetActiveRegion selects the region whose cursor is reflected to the
// back-end.
func (c *Console) SetActiveRegion(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.regions) {
		return fmt.Errorf("%w: %d", ErrBadRegion, index)
	}
	c.active = index
	c.reflectCursorLocked()
	return nil
}

func (c *Console) region(index int) (*Region, error) {
	if index < 0 || index >= len(c.regions) {
		return nil, fmt.Errorf("%w: %d", ErrBadRegion, index)
	}
	return &c.regions[index], nil
}

// SetColors sets a region's text attribute.
func (c *Console) SetColors(index int, attr uint8) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.region(index)
	if err != nil {
		return err
	}
	r.attr = attr
	return nil
}

// EnablePaging arms the more-prompt for a region.
func (c *Console) EnablePaging(index int, enabled bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.region(index)
	if err != nil {
		return err
	}
	r.pagingEnabled = enabled
	r.pagingActive = enabled
	r.pagingCancelled = false
	if enabled {
		r.pagingRemaining = r.h - 1
	}
	return nil
}

// ResetPaging re-arms a region's paging after an escape cancelled it.
func (c *Console) ResetPaging(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.region(index)
	if err != nil {
		return err
	}
	r.pagingCancelled = false
	r.pagingActive = r.pagingEnabled
	r.pagingRemaining = r.h - 1
	return nil
}

// putCell writes through the shadow buffer to the back-end (or the
// framebuffer glyph path). The lock is held.
func (c *Console) putCell(x, y int, cell TextCell) {
	if x < 0 || y < 0 || x >= c.mode.Width || y >= c.mode.Height {
		return
	}
	c.cells[y*c.mode.Width+x] = cell
	if c.fb != nil && c.fb.valid() {
		c.fb.drawCell(x, y, cell)
		return
	}
	c.driver.PutTextCell(x, y, cell)
}

func (c *Console) reflectCursorLocked() {
	r := &c.regions[c.active]
	if c.fb != nil && c.fb.valid() {
		c.fb.showCursor(r.x+r.cursorX, r.y+r.cursorY)
		return
	}
	c.driver.SetCursorPosition(r.x+r.cursorX, r.y+r.cursorY)
}

// ClearRegion clears a region and homes its cursor.
func (c *Console) ClearRegion(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.region(index)
	if err != nil {
		return err
	}
	for y := 0; y < r.h; y++ {
		for x := 0; x < r.w; x++ {
			c.putCell(r.x+x, r.y+y, TextCell{Char: ' ', Attr: r.attr})
		}
	}
	r.cursorX, r.cursorY = 0, 0
	if index == c.active {
		c.reflectCursorLocked()
	}
	return nil
}

// ScrollRegion scrolls a region up one line, honoring the paging
// policy: with paging active, exhausting the page blocks on the more
// prompt until space/enter (one more page) or escape (no more prompts
// until reset).
func (c *Console) ScrollRegion(index int) error {
	c.mu.Lock()
	r, err := c.region(index)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.pageGateLocked(r)
	c.scrollLocked(r)
	c.mu.Unlock()
	return nil
}

func (c *Console) scrollLocked(r *Region) {
	// shadow scroll
	for y := 0; y < r.h-1; y++ {
		for x := 0; x < r.w; x++ {
			c.cells[(r.y+y)*c.mode.Width+r.x+x] = c.cells[(r.y+y+1)*c.mode.Width+r.x+x]
		}
	}
	for x := 0; x < r.w; x++ {
		c.cells[(r.y+r.h-1)*c.mode.Width+r.x+x] = TextCell{Char: ' ', Attr: r.attr}
	}
	if c.fb != nil && c.fb.valid() {
		c.fb.scrollRegion(r, c)
		return
	}
	c.driver.ScrollTextRegion(r.x, r.y, r.w, r.h, 1, r.attr)
}

// pageGateLocked enforces the paging policy before a scroll. It may
// drop the lock while blocking on the prompt.
func (c *Console) pageGateLocked(r *Region) {
	if !r.pagingEnabled || !r.pagingActive || r.pagingCancelled {
		return
	}
	if r.pagingRemaining > 0 {
		r.pagingRemaining--
		return
	}
	// page exhausted: prompt and block
	promptY := r.y + r.h - 1
	for i, ch := range []byte(pagingPrompt) {
		if i >= r.w {
			break
		}
		c.putCell(r.x+i, promptY, TextCell{Char: ch, Attr: r.attr ^ 0x77})
	}
	key := c.waitKeyLocked()
	// wipe the prompt
	for i := 0; i < len(pagingPrompt) && i < r.w; i++ {
		c.putCell(r.x+i, promptY, TextCell{Char: ' ', Attr: r.attr})
	}
	switch key {
	case KeyEscape:
		r.pagingCancelled = true
	default:
		r.pagingRemaining = r.h - 1
	}
}

// waitKeyLocked polls the key source, sleeping between polls with the
// console lock released.
func (c *Console) waitKeyLocked() byte {
	for {
		if c.keys == nil {
			// no keyboard wired: do not block forever
			return KeySpace
		}
		if key, ok := c.keys.PollKey(); ok {
			switch key {
			case KeySpace, KeyEnter, KeyEscape:
				return key
			}
			continue
		}
		c.mu.Unlock()
		time.Sleep(pagingPollInterval)
		c.mu.Lock()
	}
}

// PrintChar prints one character into a region, wrapping and scrolling
// as needed.
func (c *Console) PrintChar(index int, ch byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.region(index)
	if err != nil {
		return err
	}
	switch ch {
	case '\n':
		r.cursorX = 0
		c.advanceLineLocked(r)
	case '\r':
		r.cursorX = 0
	case '\t':
		next := (r.cursorX/8 + 1) * 8
		for r.cursorX < next && r.cursorX < r.w {
			c.putCell(r.x+r.cursorX, r.y+r.cursorY, TextCell{Char: ' ', Attr: r.attr})
			r.cursorX++
		}
		if r.cursorX >= r.w {
			r.cursorX = 0
			c.advanceLineLocked(r)
		}
	default:
		c.putCell(r.x+r.cursorX, r.y+r.cursorY, TextCell{Char: ch, Attr: r.attr})
		r.cursorX++
		if r.cursorX >= r.w {
			r.cursorX = 0
			c.advanceLineLocked(r)
		}
	}
	if index == c.active {
		c.reflectCursorLocked()
	}
	return nil
}

func (c *Console) advanceLineLocked(r *Region) {
	if r.cursorY < r.h-1 {
		r.cursorY++
		return
	}
	c.pageGateLocked(r)
	c.scrollLocked(r)
}

// Print prints a string into a region.
func (c *Console) Print(index int, s string) error {
	for i := 0; i < len(s); i++ {
		if err := c.PrintChar(index, s[i]); err != nil {
			return err
		}
	}
	return nil
}

// CellAt reads the shadow buffer, for snapshots and tests.
func (c *Console) CellAt(x, y int) TextCell {
	c.mu.Lock()
	defer c.mu.Unlock()
	if x < 0 || y < 0 || x >= c.mode.Width || y >= c.mode.Height {
		return TextCell{}
	}
	return c.cells[y*c.mode.Width+x]
}

// Cursor reports a region's cursor, for tests.
func (c *Console) Cursor(index int) (x, y int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, err := c.region(index)
	if err != nil {
		return 0, 0, err
	}
	return r.cursorX, r.cursorY, nil
}
