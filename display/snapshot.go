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
)

// Snapshot preserves the active surface contents across a temporary
// front-end switch: 16-bit cells for text modes, pixel rows for
// framebuffer modes. Opaque to callers.
type Snapshot struct {
	mode   ModeInfo
	cells  []uint16
	pixels []uint32
}

// CaptureConsole snapshots the console contents.
func (c *Console) CaptureConsole() *Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := &Snapshot{mode: c.mode}
	if c.fb != nil && c.fb.valid() {
		snap.pixels = make([]uint32, len(c.fb.surf.Pix))
		copy(snap.pixels, c.fb.surf.Pix)
		return snap
	}
	snap.cells = make([]uint16, len(c.cells))
	for i, cell := range c.cells {
		snap.cells[i] = cell.Cell()
	}
	return snap
}

// RestoreConsole writes a snapshot back. The console must be in the
// mode the snapshot was taken in.
func (c *Console) RestoreConsole(snap *Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if snap == nil || snap.mode != c.mode {
		return fmt.Errorf("%w: snapshot mode mismatch", ErrBadMode)
	}
	if snap.pixels != nil {
		if c.fb == nil || !c.fb.valid() {
			return fmt.Errorf("%w: no framebuffer to restore into", ErrBadMode)
		}
		copy(c.fb.surf.Pix, snap.pixels)
		return nil
	}
	for i, packed := range snap.cells {
		cell := TextCell{Char: byte(packed), Attr: uint8(packed >> 8)}
		c.cells[i] = cell
		c.driver.PutTextCell(i%c.mode.Width, i/c.mode.Width, cell)
	}
	return nil
}
