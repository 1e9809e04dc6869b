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
)

// VGATextName is the built-in fallback back-end name.
const VGATextName = "vga-text"

// DefaultTextAttr is light grey on black.
const DefaultTextAttr uint8 = 0x07

// VGAText is the built-in VGA text back-end. It programs classic text
// modes only and cannot fail once loaded; the emergency fallback path
// depends on that.
type VGAText struct {
	mu      sync.Mutex
	mode    ModeInfo
	cells   []TextCell
	cursorX int
	cursorY int
	visible bool
}

// NewVGAText creates the back-end in its 80x25 default mode.
func NewVGAText() *VGAText {
	v := &VGAText{}
	v.program(ModeInfo{Width: 80, Height: 25, BPP: 16, Text: true})
	return v
}

func (v *VGAText) Name() string  { return VGATextName }
func (v *VGAText) Load() error   { return nil }
func (v *VGAText) Unload() error { return nil }
func (v *VGAText) Ready() bool   { return true }

func (v *VGAText) Modes() []ModeInfo {
	return []ModeInfo{
		{Width: 80, Height: 25, BPP: 16, Text: true},
		{Width: 80, Height: 50, BPP: 16, Text: true},
	}
}

func (v *VGAText) program(mode ModeInfo) {
	v.mode = mode
	v.cells = make([]TextCell, mode.Width*mode.Height)
	for i := range v.cells {
		v.cells[i] = TextCell{Char: ' ', Attr: DefaultTextAttr}
	}
	v.cursorX, v.cursorY = 0, 0
	v.visible = true
}

// SetMode accepts the classic text modes only.
func (v *VGAText) SetMode(mode ModeInfo) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, m := range v.Modes() {
		if m == mode {
			v.program(mode)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrBadMode, mode)
}

// Mode returns the programmed mode.
func (v *VGAText) Mode() ModeInfo {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mode
}

func (v *VGAText) inRange(x, y int) bool {
	return x >= 0 && y >= 0 && x < v.mode.Width && y < v.mode.Height
}

func (v *VGAText) PutTextCell(x, y int, cell TextCell) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.inRange(x, y) {
		return fmt.Errorf("%w: cell %d,%d", ErrBadMode, x, y)
	}
	v.cells[y*v.mode.Width+x] = cell
	return nil
}

// CellAt reads a cell back, for snapshots and tests.
func (v *VGAText) CellAt(x, y int) TextCell {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.inRange(x, y) {
		return TextCell{}
	}
	return v.cells[y*v.mode.Width+x]
}

func (v *VGAText) ClearTextRegion(x, y, w, h int, attr uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			if v.inRange(col, row) {
				v.cells[row*v.mode.Width+col] = TextCell{Char: ' ', Attr: attr}
			}
		}
	}
	return nil
}

func (v *VGAText) ScrollTextRegion(x, y, w, h, lines int, attr uint8) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if lines <= 0 {
		return nil
	}
	for row := y; row < y+h; row++ {
		for col := x; col < x+w; col++ {
			if !v.inRange(col, row) {
				continue
			}
			src := row + lines
			if src < y+h && v.inRange(col, src) {
				v.cells[row*v.mode.Width+col] = v.cells[src*v.mode.Width+col]
			} else {
				v.cells[row*v.mode.Width+col] = TextCell{Char: ' ', Attr: attr}
			}
		}
	}
	return nil
}

func (v *VGAText) SetCursorPosition(x, y int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cursorX, v.cursorY = x, y
	return nil
}

func (v *VGAText) SetCursorVisible(visible bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.visible = visible
	return nil
}

// Cursor reports the cursor state, for tests.
func (v *VGAText) Cursor() (x, y int, visible bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cursorX, v.cursorY, v.visible
}
