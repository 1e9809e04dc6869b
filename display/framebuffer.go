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
	"golang.org/x/image/font/basicfont"
)

// The console's software text path over a linear framebuffer: glyphs
// come from the built-in 7x13 face, colors from the classic 16-entry
// text palette.

// CellWidth and CellHeight are the framebuffer character cell size.
const (
	CellWidth  = 7
	CellHeight = 13
)

// vgaPalette maps 4-bit text colors to pixels (0x00RRGGBB).
var vgaPalette = [16]uint32{
	0x000000, 0x0000aa, 0x00aa00, 0x00aaaa,
	0xaa0000, 0xaa00aa, 0xaa5500, 0xaaaaaa,
	0x555555, 0x5555ff, 0x55ff55, 0x55ffff,
	0xff5555, 0xff55ff, 0xffff55, 0xffffff,
}

// fbView is the cached framebuffer mapping of the console. It exists
// only while the active back-end exposes a linear surface in a
// pixel-addressed mode.
type fbView struct {
	surf *Surface
	cols int
	rows int

	cursorX      int
	cursorY      int
	cursorShown  bool
	cursorBackup [CellWidth * CellHeight]uint32
}

// newFBView maps the back-end surface, or returns nil when the console
// must use the cell-addressed path.
func newFBView(d Driver, mode ModeInfo) *fbView {
	if mode.Text {
		return nil
	}
	fbd, ok := d.(FramebufferDriver)
	if !ok {
		return nil
	}
	surf := fbd.Surface()
	if surf == nil || len(surf.Pix) == 0 {
		return nil
	}
	return &fbView{
		surf: surf,
		cols: surf.Width / CellWidth,
		rows: surf.Height / CellHeight,
	}
}

func (v *fbView) valid() bool {
	return v != nil && v.surf != nil
}

// fillRect fills a pixel rectangle.
func (v *fbView) fillRect(x, y, w, h int, pixel uint32) {
	for py := y; py < y+h && py < v.surf.Height; py++ {
		row := py * v.surf.Stride
		for px := x; px < x+w && px < v.surf.Width; px++ {
			v.surf.Pix[row+px] = pixel
		}
	}
}

// drawCell renders one character cell at text position (x, y).
func (v *fbView) drawCell(x, y int, cell TextCell) {
	if x < 0 || y < 0 || x >= v.cols || y >= v.rows {
		return
	}
	v.hideCursor()
	fg := vgaPalette[cell.Attr&0x0f]
	bg := vgaPalette[(cell.Attr>>4)&0x0f]

	face := basicfont.Face7x13
	glyphRow := -1
	r := rune(cell.Char)
	for _, rng := range face.Ranges {
		if r >= rng.Low && r < rng.High {
			glyphRow = int(r-rng.Low) + rng.Offset
			break
		}
	}

	px0 := x * CellWidth
	py0 := y * CellHeight
	for py := 0; py < CellHeight; py++ {
		row := (py0 + py) * v.surf.Stride
		for px := 0; px < CellWidth; px++ {
			pixel := bg
			if glyphRow >= 0 {
				_, _, _, a := face.Mask.At(px, glyphRow*CellHeight+py).RGBA()
				if a >= 0x8000 {
					pixel = fg
				}
			}
			if py0+py < v.surf.Height && px0+px < v.surf.Width {
				v.surf.Pix[row+px0+px] = pixel
			}
		}
	}
}

// scrollRegion scrolls a console region one text line up in pixels and
// clears the last line, repainting the cursor overlay afterwards.
func (v *fbView) scrollRegion(r *Region, c *Console) {
	v.hideCursor()
	x0 := r.x * CellWidth
	y0 := r.y * CellHeight
	w := r.w * CellWidth
	for py := y0; py < y0+(r.h-1)*CellHeight && py+CellHeight < v.surf.Height; py++ {
		dst := py*v.surf.Stride + x0
		src := (py+CellHeight)*v.surf.Stride + x0
		copy(v.surf.Pix[dst:dst+w], v.surf.Pix[src:src+w])
	}
	bg := vgaPalette[(r.attr>>4)&0x0f]
	v.fillRect(x0, y0+(r.h-1)*CellHeight, w, CellHeight, bg)
}

// showCursor overlays the cursor at a text position, backing up the
// cell underneath so hideCursor can restore it.
func (v *fbView) showCursor(x, y int) {
	v.hideCursor()
	if x < 0 || y < 0 || x >= v.cols || y >= v.rows {
		return
	}
	px0 := x * CellWidth
	py0 := y * CellHeight
	i := 0
	for py := 0; py < CellHeight; py++ {
		row := (py0 + py) * v.surf.Stride
		for px := 0; px < CellWidth; px++ {
			v.cursorBackup[i] = v.surf.Pix[row+px0+px]
			i++
		}
	}
	// a two-pixel underline block
	v.fillRect(px0, py0+CellHeight-2, CellWidth, 2, vgaPalette[7])
	v.cursorX, v.cursorY = x, y
	v.cursorShown = true
}

// hideCursor restores the cell under the cursor overlay.
func (v *fbView) hideCursor() {
	if !v.cursorShown {
		return
	}
	px0 := v.cursorX * CellWidth
	py0 := v.cursorY * CellHeight
	i := 0
	for py := 0; py < CellHeight; py++ {
		row := (py0 + py) * v.surf.Stride
		for px := 0; px < CellWidth; px++ {
			v.surf.Pix[row+px0+px] = v.cursorBackup[i]
			i++
		}
	}
	v.cursorShown = false
}
