// Copyright 2026 The Ringzero Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package vga models the 80x25 text-mode framebuffer.
package vga

import (
	"fmt"
	"strings"
	"sync"

	"golang.org/x/text/encoding/charmap"
)

// Screen dimensions, in cells.
const (
	Width  = 80
	Height = 25
)

// Color is one of the 16 text-mode colors.
type Color uint8

// Colors.
const (
	Black Color = iota
	Blue
	Green
	Cyan
	Red
	Magenta
	Brown
	LightGray
	DarkGray
	LightBlue
	LightGreen
	LightCyan
	LightRed
	Pink
	Yellow
	White
)

var colorNames = [...]string{
	Black:      "black",
	Blue:       "blue",
	Green:      "green",
	Cyan:       "cyan",
	Red:        "red",
	Magenta:    "magenta",
	Brown:      "brown",
	LightGray:  "light gray",
	DarkGray:   "dark gray",
	LightBlue:  "light blue",
	LightGreen: "light green",
	LightCyan:  "light cyan",
	LightRed:   "light red",
	Pink:       "pink",
	Yellow:     "yellow",
	White:      "white",
}

// String implements fmt.Stringer.
func (c Color) String() string {
	if int(c) < len(colorNames) {
		return colorNames[c]
	}
	return fmt.Sprintf("Color(%d)", uint8(c))
}

// Attr packs a foreground and background color into an attribute byte.
func Attr(fg, bg Color) uint8 {
	return uint8(fg&0xf) | uint8(bg&0xf)<<4
}

// Cell is one character position.
type Cell struct {
	Char uint8
	Attr uint8
}

// Foreground returns the cell's foreground color.
func (c Cell) Foreground() Color { return Color(c.Attr & 0xf) }

// Background returns the cell's background color.
func (c Cell) Background() Color { return Color(c.Attr >> 4) }

// Rune returns the character as a Unicode code point.
func (c Cell) Rune() rune {
	return charmap.CodePage437.DecodeByte(c.Char)
}

// Printable byte range. Anything else except '\n' is shown as '?'.
const (
	firstPrintable = 32
	lastPrintable  = 176
)

// Screen is a text-mode framebuffer with a cursor and current colors.
// It is safe for concurrent use.
type Screen struct {
	mu     sync.Mutex
	cells  [Height][Width]Cell
	fg, bg Color
	x, y   int
}

// NewScreen returns a cleared screen writing white on black.
func NewScreen() *Screen {
	return NewScreenWithColors(White, Black)
}

// NewScreenWithColors returns a screen cleared with the given colors.
func NewScreenWithColors(fg, bg Color) *Screen {
	s := &Screen{fg: fg, bg: bg}
	s.clearLocked()
	return s
}

// SetColors sets the colors used by subsequent writes.
func (s *Screen) SetColors(fg, bg Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fg, s.bg = fg, bg
}

// Colors returns the current colors.
func (s *Screen) Colors() (fg, bg Color) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fg, s.bg
}

// Clear blanks the screen with the current colors and homes the cursor.
func (s *Screen) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Screen) blank() Cell {
	return Cell{Char: ' ', Attr: Attr(s.fg, s.bg)}
}

func (s *Screen) clearLocked() {
	b := s.blank()
	for y := range s.cells {
		for x := range s.cells[y] {
			s.cells[y][x] = b
		}
	}
	s.x, s.y = 0, 0
}

// Write writes str at the cursor, wrapping at the right edge and scrolling
// at the bottom.
func (s *Screen) Write(str string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < len(str); i++ {
		s.putLocked(str[i])
	}
}

func (s *Screen) putLocked(b uint8) {
	if (b < firstPrintable || b > lastPrintable) && b != '\n' {
		b = '?'
	}
	if b != '\n' {
		s.cells[s.y][s.x] = Cell{Char: b, Attr: Attr(s.fg, s.bg)}
		s.x++
	}
	if b == '\n' || s.x >= Width {
		s.newlineLocked()
	}
}

func (s *Screen) newlineLocked() {
	s.x = 0
	s.y++
	if s.y >= Height {
		s.scrollLocked()
	}
}

// scrollLocked moves every row up by one and blanks the last row.
func (s *Screen) scrollLocked() {
	copy(s.cells[:Height-1], s.cells[1:])
	b := s.blank()
	for x := range s.cells[Height-1] {
		s.cells[Height-1][x] = b
	}
	if s.y > 0 {
		s.y--
	}
}

// Cursor returns the cursor position.
func (s *Screen) Cursor() (x, y int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.x, s.y
}

// Cell returns the cell at (x, y). Out of range positions return the zero
// Cell.
func (s *Screen) Cell(x, y int) Cell {
	if x < 0 || x >= Width || y < 0 || y >= Height {
		return Cell{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells[y][x]
}

// Snapshot returns a copy of every cell.
func (s *Screen) Snapshot() [Height][Width]Cell {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cells
}

// Row returns row y as text with trailing blanks removed.
func (s *Screen) Row(y int) string {
	if y < 0 || y >= Height {
		return ""
	}
	s.mu.Lock()
	row := s.cells[y]
	s.mu.Unlock()
	return rowString(&row)
}

// Rows returns every row as text.
func (s *Screen) Rows() []string {
	cells := s.Snapshot()
	rows := make([]string, Height)
	for y := range cells {
		rows[y] = rowString(&cells[y])
	}
	return rows
}

// String returns the non-empty prefix of the screen, one line per row.
func (s *Screen) String() string {
	rows := s.Rows()
	n := len(rows)
	for n > 0 && rows[n-1] == "" {
		n--
	}
	return strings.Join(rows[:n], "\n")
}

func rowString(row *[Width]Cell) string {
	var b strings.Builder
	for _, c := range row {
		b.WriteRune(c.Rune())
	}
	return strings.TrimRight(b.String(), " ")
}
