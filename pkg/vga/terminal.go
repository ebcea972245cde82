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

package vga

import (
	"fmt"

	"github.com/gdamore/tcell/v2"
)

// palette maps text-mode colors to terminal colors.
var palette = [16]tcell.Color{
	Black:      tcell.ColorBlack,
	Blue:       tcell.ColorNavy,
	Green:      tcell.ColorGreen,
	Cyan:       tcell.ColorTeal,
	Red:        tcell.ColorMaroon,
	Magenta:    tcell.ColorPurple,
	Brown:      tcell.ColorOlive,
	LightGray:  tcell.ColorSilver,
	DarkGray:   tcell.ColorGray,
	LightBlue:  tcell.ColorBlue,
	LightGreen: tcell.ColorLime,
	LightCyan:  tcell.ColorAqua,
	LightRed:   tcell.ColorRed,
	Pink:       tcell.ColorFuchsia,
	Yellow:     tcell.ColorYellow,
	White:      tcell.ColorWhite,
}

// TerminalColor returns the terminal color for c.
func TerminalColor(c Color) tcell.Color {
	return palette[c&0xf]
}

// Style returns the terminal style for a cell.
func (c Cell) Style() tcell.Style {
	return tcell.StyleDefault.
		Foreground(TerminalColor(c.Foreground())).
		Background(TerminalColor(c.Background()))
}

// Terminal renders Screens onto a terminal.
type Terminal struct {
	screen tcell.Screen
}

// OpenTerminal initializes the controlling terminal.
func OpenTerminal() (*Terminal, error) {
	s, err := tcell.NewScreen()
	if err != nil {
		return nil, fmt.Errorf("creating terminal screen: %w", err)
	}
	if err := s.Init(); err != nil {
		return nil, fmt.Errorf("initializing terminal screen: %w", err)
	}
	return NewTerminal(s), nil
}

// NewTerminal wraps an initialized tcell screen.
func NewTerminal(s tcell.Screen) *Terminal {
	return &Terminal{screen: s}
}

// Draw copies src to the terminal and shows it. Cells beyond the terminal's
// size are clipped.
func (t *Terminal) Draw(src *Screen) {
	DrawTo(t.screen, 0, 0, src)
	x, y := src.Cursor()
	t.screen.ShowCursor(x, y)
	t.screen.Show()
}

// DrawTo paints src onto s with its top left corner at (left, top).
func DrawTo(s tcell.Screen, left, top int, src *Screen) {
	w, h := s.Size()
	cells := src.Snapshot()
	for y := range cells {
		if top+y >= h {
			break
		}
		for x, c := range cells[y] {
			if left+x >= w {
				break
			}
			s.SetContent(left+x, top+y, c.Rune(), nil, c.Style())
		}
	}
}

// Screen returns the underlying tcell screen.
func (t *Terminal) Screen() tcell.Screen {
	return t.screen
}

// Close restores the terminal.
func (t *Terminal) Close() {
	t.screen.Fini()
}
