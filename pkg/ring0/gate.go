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

package ring0

import (
	"encoding/binary"
	"fmt"

	"github.com/ringzero-os/ringzero/pkg/bits"
)

// Options word layout.
const (
	optStackIndexLo = 0
	optStackIndexHi = 3
	optTrap         = 8
	optReservedLo   = 9
	optReservedHi   = 12
	optDPLLo        = 13
	optDPLHi        = 15
	optPresent      = 15

	// reservedBits must always be set in the options word. Together with
	// optTrap they form the gate type: 0xE is an interrupt gate, 0xF a
	// trap gate.
	reservedBits = 0b111

	// MaxStackIndex is the largest interrupt stack table index.
	MaxStackIndex = 7
)

// Privilege levels.
const (
	DPLSupervisor = 0
	DPLUser       = 3
)

// GateEntrySize is the size of a gate in the CPU's table format.
const GateEntrySize = 16

// GateEntry is a 64-bit interrupt gate, laid out as the CPU reads it.
//
// The field order and widths must not change.
type GateEntry struct {
	offsetLow  uint16
	selector   uint16
	options    uint16
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

// NewGateEntry returns a gate that is not present.
func NewGateEntry() GateEntry {
	return GateEntry{
		options: bits.SetField[uint16](0, optReservedLo, optReservedHi, reservedBits),
	}
}

type optionKind uint8

const (
	optionPresent optionKind = iota
	optionNotPresent
	optionDisableInterrupts
	optionEnableInterrupts
	optionUser
	optionSupervisor
	optionStackIndex
)

// GateOption is one setting applied to a GateEntry.
type GateOption struct {
	kind  optionKind
	index uint16
}

// Gate options. Each one touches a single field of the options word.
var (
	Present           = GateOption{kind: optionPresent}
	NotPresent        = GateOption{kind: optionNotPresent}
	DisableInterrupts = GateOption{kind: optionDisableInterrupts}
	EnableInterrupts  = GateOption{kind: optionEnableInterrupts}
	User              = GateOption{kind: optionUser}
	Supervisor        = GateOption{kind: optionSupervisor}
)

// StackIndex selects interrupt stack table entry i (0 means the current
// stack).
func StackIndex(i uint16) GateOption {
	return GateOption{kind: optionStackIndex, index: i}
}

// String implements fmt.Stringer.
func (o GateOption) String() string {
	switch o.kind {
	case optionPresent:
		return "Present"
	case optionNotPresent:
		return "NotPresent"
	case optionDisableInterrupts:
		return "DisableInterrupts"
	case optionEnableInterrupts:
		return "EnableInterrupts"
	case optionUser:
		return "User"
	case optionSupervisor:
		return "Supervisor"
	case optionStackIndex:
		return fmt.Sprintf("StackIndex(%d)", o.index)
	}
	return fmt.Sprintf("GateOption(%d)", o.kind)
}

func (o GateOption) validate() error {
	if o.kind == optionStackIndex && o.index > MaxStackIndex {
		return fmt.Errorf("%w: stack index %d exceeds %d", ErrMalformedEntry, o.index, MaxStackIndex)
	}
	return nil
}

// SetOption applies o. A StackIndex beyond MaxStackIndex is truncated to
// its low three bits; Bind rejects it instead.
func (g *GateEntry) SetOption(o GateOption) {
	switch o.kind {
	case optionPresent:
		g.options = bits.SetBit(g.options, optPresent, true)
	case optionNotPresent:
		g.options = bits.SetBit(g.options, optPresent, false)
	case optionDisableInterrupts:
		g.options = bits.SetBit(g.options, optTrap, false)
	case optionEnableInterrupts:
		g.options = bits.SetBit(g.options, optTrap, true)
	case optionUser:
		g.options = bits.SetField(g.options, optDPLLo, optDPLHi, DPLUser)
	case optionSupervisor:
		g.options = bits.SetField(g.options, optDPLLo, optDPLHi, DPLSupervisor)
	case optionStackIndex:
		g.options = bits.SetField(g.options, optStackIndexLo, optStackIndexHi, o.index)
	}
}

func (g *GateEntry) setTarget(addr uint64) {
	g.offsetLow = uint16(addr)
	g.offsetMid = uint16(addr >> 16)
	g.offsetHigh = uint32(addr >> 32)
}

// Target returns the handler address.
func (g GateEntry) Target() uint64 {
	return uint64(g.offsetLow) | uint64(g.offsetMid)<<16 | uint64(g.offsetHigh)<<32
}

// Selector returns the code segment selector.
func (g GateEntry) Selector() uint16 {
	return g.selector
}

// Options returns the raw options word.
func (g GateEntry) Options() uint16 {
	return g.options
}

// Present returns true if the CPU may dispatch through this gate.
func (g GateEntry) Present() bool {
	return bits.IsOn(g.options, bits.MaskOf[uint16](optPresent))
}

// InterruptsEnabled returns true for trap gates, which leave the interrupt
// flag untouched on entry.
func (g GateEntry) InterruptsEnabled() bool {
	return bits.IsOn(g.options, bits.MaskOf[uint16](optTrap))
}

// DPL returns the gate's descriptor privilege level.
func (g GateEntry) DPL() uint8 {
	return uint8(bits.Field(g.options, optDPLLo, optDPLHi))
}

// StackIndex returns the interrupt stack table index.
func (g GateEntry) StackIndex() uint8 {
	return uint8(bits.Field(g.options, optStackIndexLo, optStackIndexHi))
}

// Reserved returns the reserved bits of the options word, always 0b111.
func (g GateEntry) Reserved() uint16 {
	return bits.Field(g.options, optReservedLo, optReservedHi)
}

// String implements fmt.Stringer.
func (g GateEntry) String() string {
	kind := "interrupt"
	if g.InterruptsEnabled() {
		kind = "trap"
	}
	return fmt.Sprintf("{target:%#x sel:%#x present:%t type:%s dpl:%d ist:%d}",
		g.Target(), g.selector, g.Present(), kind, g.DPL(), g.StackIndex())
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (g GateEntry) MarshalBinary() ([]byte, error) {
	b := make([]byte, GateEntrySize)
	g.put(b)
	return b, nil
}

func (g *GateEntry) put(b []byte) {
	binary.LittleEndian.PutUint16(b[0:], g.offsetLow)
	binary.LittleEndian.PutUint16(b[2:], g.selector)
	binary.LittleEndian.PutUint16(b[4:], g.options)
	binary.LittleEndian.PutUint16(b[6:], g.offsetMid)
	binary.LittleEndian.PutUint32(b[8:], g.offsetHigh)
	binary.LittleEndian.PutUint32(b[12:], g.reserved)
}

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (g *GateEntry) UnmarshalBinary(b []byte) error {
	if len(b) != GateEntrySize {
		return fmt.Errorf("%w: gate is %d bytes, want %d", ErrMalformedEntry, len(b), GateEntrySize)
	}
	e := GateEntry{
		offsetLow:  binary.LittleEndian.Uint16(b[0:]),
		selector:   binary.LittleEndian.Uint16(b[2:]),
		options:    binary.LittleEndian.Uint16(b[4:]),
		offsetMid:  binary.LittleEndian.Uint16(b[6:]),
		offsetHigh: binary.LittleEndian.Uint32(b[8:]),
		reserved:   binary.LittleEndian.Uint32(b[12:]),
	}
	if e.Reserved() != reservedBits {
		return fmt.Errorf("%w: reserved bits %#b", ErrMalformedEntry, e.Reserved())
	}
	*g = e
	return nil
}
