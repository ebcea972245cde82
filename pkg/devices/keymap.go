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

package devices

// Scancode set 1 codes with special meaning to the decoder.
const (
	scLeftShift  = 0x2a
	scRightShift = 0x36
	scExtended   = 0xe0
	scRelease    = 0x80
)

// no marks scancodes that produce no character.
const no = 0

// keymap maps set 1 make codes to characters, as in xv6.
var keymap = [...]byte{
	no, 0x1b, '1', '2', '3', '4', '5', '6', // 0x00
	'7', '8', '9', '0', '-', '=', '\b', '\t',
	'q', 'w', 'e', 'r', 't', 'y', 'u', 'i', // 0x10
	'o', 'p', '[', ']', '\n', no, 'a', 's',
	'd', 'f', 'g', 'h', 'j', 'k', 'l', ';', // 0x20
	'\'', '`', no, '\\', 'z', 'x', 'c', 'v',
	'b', 'n', 'm', ',', '.', '/', no, '*', // 0x30
	no, ' ', no, no, no, no, no, no,
	no, no, no, no, no, no, no, '7', // 0x40
	'8', '9', '-', '4', '5', '6', '+', '1',
	'2', '3', '0', '.', no, no, no, no, // 0x50
}

// shiftmap is keymap with shift held.
var shiftmap = [...]byte{
	no, 0x1b, '!', '@', '#', '$', '%', '^', // 0x00
	'&', '*', '(', ')', '_', '+', '\b', '\t',
	'Q', 'W', 'E', 'R', 'T', 'Y', 'U', 'I', // 0x10
	'O', 'P', '{', '}', '\n', no, 'A', 'S',
	'D', 'F', 'G', 'H', 'J', 'K', 'L', ':', // 0x20
	'"', '~', no, '|', 'Z', 'X', 'C', 'V',
	'B', 'N', 'M', '<', '>', '?', no, '*', // 0x30
	no, ' ', no, no, no, no, no, no,
	no, no, no, no, no, no, no, '7', // 0x40
	'8', '9', '-', '4', '5', '6', '+', '1',
	'2', '3', '0', '.', no, no, no, no, // 0x50
}

// Decoder turns set 1 scancodes into characters.
type Decoder struct {
	shift    bool
	extended bool
}

// Decode consumes one scancode. It returns the character it completes, if
// any. Key releases, modifiers and extended keys produce nothing.
func (d *Decoder) Decode(sc uint8) (byte, bool) {
	if sc == scExtended {
		d.extended = true
		return 0, false
	}
	if d.extended {
		d.extended = false
		return 0, false
	}
	release := sc&scRelease != 0
	code := sc &^ scRelease
	switch code {
	case scLeftShift, scRightShift:
		d.shift = !release
		return 0, false
	}
	if release || int(code) >= len(keymap) {
		return 0, false
	}
	c := keymap[code]
	if d.shift {
		c = shiftmap[code]
	}
	return c, c != no
}

// Encode returns the make and break codes that type c, with shift around
// them if needed. It returns false for characters not on the keyboard.
func Encode(c byte) ([]uint8, bool) {
	if c == no {
		return nil, false
	}
	for code, k := range keymap {
		if k == c {
			return []uint8{uint8(code), uint8(code) | scRelease}, true
		}
	}
	for code, k := range shiftmap {
		if k == c {
			return []uint8{scLeftShift, uint8(code), uint8(code) | scRelease, scLeftShift | scRelease}, true
		}
	}
	return nil, false
}
