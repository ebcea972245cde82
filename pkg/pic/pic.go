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

// Package pic drives the legacy 8259 programmable interrupt controller pair.
//
// The master handles IRQs 0-7 and the slave, chained behind it, IRQs 8-15.
// After Init both are remapped so that their vectors sit above the CPU's
// reserved exception range.
package pic

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ringzero-os/ringzero/pkg/ioport"
	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/ring0"
)

// Port addresses.
const (
	MasterCommand ioport.Addr = 0x20
	MasterData    ioport.Addr = 0x21
	SlaveCommand  ioport.Addr = 0xa0
	SlaveData     ioport.Addr = 0xa1
)

// Command bytes.
const (
	CmdInit = 0x11
	CmdEOI  = 0x20

	// CascadeMaster and CascadeSlave are the third initialization words.
	CascadeMaster = 0x01
	CascadeSlave  = 0x01

	// Mode8086 is the fourth initialization word.
	Mode8086 = 0x00
)

// Conventional offsets.
const (
	DefaultMasterOffset = 0x20
	DefaultSlaveOffset  = 0x28
)

// LinesPerChip is the number of IRQ lines on one 8259.
const LinesPerChip = 8

// NumIRQs is the number of IRQ lines across the pair.
const NumIRQs = 2 * LinesPerChip

var (
	// ErrInvalidOffset is returned for offsets that overlap exceptions,
	// each other, or the end of the vector space.
	ErrInvalidOffset = errors.New("invalid PIC vector offset")

	// ErrAlreadyInitialized is returned by a second Init.
	ErrAlreadyInitialized = errors.New("PIC already initialized")

	// ErrNotReady is returned when the pair has not been initialized.
	ErrNotReady = errors.New("PIC not ready")

	// ErrInvalidIRQ is returned for lines beyond NumIRQs.
	ErrInvalidIRQ = errors.New("invalid IRQ line")
)

// IRQ is an interrupt request line, 0-15.
type IRQ uint8

// OnSlave returns true if the line is wired to the slave.
func (i IRQ) OnSlave() bool {
	return i >= LinesPerChip
}

// State is the initialization state of the pair.
type State int

// States, in order.
const (
	Uninitialized State = iota
	Initializing
	Remapping
	Cascading
	Ready
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Remapping:
		return "remapping"
	case Cascading:
		return "cascading"
	case Ready:
		return "ready"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// chip is one 8259.
type chip struct {
	command *ioport.Port
	data    *ioport.Port
	offset  ring0.Vector
	mask    uint8
}

// Pair is the chained master/slave controller.
type Pair struct {
	// mu is held across every port sequence so that acknowledgments and
	// mask updates never interleave.
	mu     sync.Mutex
	state  State
	master chip
	slave  chip
}

// New claims the four PIC ports from space.
func New(space *ioport.Space) (*Pair, error) {
	ports, err := space.ClaimAll(MasterCommand, MasterData, SlaveCommand, SlaveData)
	if err != nil {
		return nil, fmt.Errorf("claiming PIC ports: %w", err)
	}
	return &Pair{
		master: chip{command: ports[0], data: ports[1]},
		slave:  chip{command: ports[2], data: ports[3]},
	}, nil
}

// ValidateOffsets checks the remapping invariants: the slave follows the
// master directly, both are 8-aligned, and neither overlaps the CPU
// exceptions or runs past the last vector.
func ValidateOffsets(master, slave ring0.Vector) error {
	switch {
	case master%LinesPerChip != 0 || slave%LinesPerChip != 0:
		return fmt.Errorf("%w: %#x/%#x not aligned to %d", ErrInvalidOffset, uintptr(master), uintptr(slave), LinesPerChip)
	case master < ring0.NumExceptions:
		return fmt.Errorf("%w: master %#x overlaps exceptions", ErrInvalidOffset, uintptr(master))
	case master+LinesPerChip != slave:
		return fmt.Errorf("%w: slave %#x must follow master %#x", ErrInvalidOffset, uintptr(slave), uintptr(master))
	case slave+LinesPerChip > ring0.NumVectors:
		return fmt.Errorf("%w: slave %#x runs past vector %d", ErrInvalidOffset, uintptr(slave), ring0.NumVectors-1)
	}
	return nil
}

// Init runs the initialization sequence and remaps the pair to the given
// offsets. The writes are interleaved between the two chips; each chip sees
// ICW1 on its command port, then ICW2-4 on its data port.
func (p *Pair) Init(masterOffset, slaveOffset ring0.Vector) error {
	if err := ValidateOffsets(masterOffset, slaveOffset); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Uninitialized {
		return ErrAlreadyInitialized
	}

	p.state = Initializing
	p.master.command.Write(CmdInit)
	p.slave.command.Write(CmdInit)

	p.state = Remapping
	p.master.data.Write(uint8(masterOffset))
	p.slave.data.Write(uint8(slaveOffset))
	p.master.offset = masterOffset
	p.slave.offset = slaveOffset

	p.state = Cascading
	p.master.data.Write(CascadeMaster)
	p.slave.data.Write(CascadeSlave)
	p.master.data.Write(Mode8086)
	p.slave.data.Write(Mode8086)

	// ICW1 clears the interrupt mask.
	p.master.mask = 0
	p.slave.mask = 0
	p.state = Ready
	log.Infof("PIC remapped: master %#x-%#x, slave %#x-%#x",
		uintptr(masterOffset), uintptr(masterOffset)+LinesPerChip-1,
		uintptr(slaveOffset), uintptr(slaveOffset)+LinesPerChip-1)
	return nil
}

// State returns the current state.
func (p *Pair) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Offsets returns the master and slave vector offsets.
func (p *Pair) Offsets() (master, slave ring0.Vector) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.offset, p.slave.offset
}

// IRQ maps a vector to the line that raises it.
func (p *Pair) IRQ(v ring0.Vector) (IRQ, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.irqLocked(v)
}

func (p *Pair) irqLocked(v ring0.Vector) (IRQ, bool) {
	if p.state != Ready {
		return 0, false
	}
	switch {
	case v >= p.master.offset && v < p.master.offset+LinesPerChip:
		return IRQ(v - p.master.offset), true
	case v >= p.slave.offset && v < p.slave.offset+LinesPerChip:
		return IRQ(v-p.slave.offset) + LinesPerChip, true
	}
	return 0, false
}

// Covers returns true if v is raised by one of the pair's lines.
func (p *Pair) Covers(v ring0.Vector) bool {
	_, ok := p.IRQ(v)
	return ok
}

// Vector returns the vector raised by irq.
func (p *Pair) Vector(irq IRQ) (ring0.Vector, error) {
	if irq >= NumIRQs {
		return 0, fmt.Errorf("%w: %d", ErrInvalidIRQ, irq)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Ready {
		return 0, ErrNotReady
	}
	if irq.OnSlave() {
		return p.slave.offset + ring0.Vector(irq-LinesPerChip), nil
	}
	return p.master.offset + ring0.Vector(irq), nil
}

// Acknowledge sends end-of-interrupt for the line behind v. Vectors the
// pair does not own are ignored and false is returned.
func (p *Pair) Acknowledge(v ring0.Vector) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	irq, ok := p.irqLocked(v)
	if !ok {
		return false
	}
	p.eoiLocked(irq)
	return true
}

// EndOfInterrupt acknowledges irq. Lines on the slave are acknowledged on
// the slave first, then on the master.
func (p *Pair) EndOfInterrupt(irq IRQ) error {
	if irq >= NumIRQs {
		return fmt.Errorf("%w: %d", ErrInvalidIRQ, irq)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Ready {
		return ErrNotReady
	}
	p.eoiLocked(irq)
	return nil
}

func (p *Pair) eoiLocked(irq IRQ) {
	if irq.OnSlave() {
		p.slave.command.Write(CmdEOI)
	}
	p.master.command.Write(CmdEOI)
}

// Mask disables irq.
func (p *Pair) Mask(irq IRQ) error {
	return p.setMasked(irq, true)
}

// Unmask enables irq.
func (p *Pair) Unmask(irq IRQ) error {
	return p.setMasked(irq, false)
}

func (p *Pair) setMasked(irq IRQ, masked bool) error {
	if irq >= NumIRQs {
		return fmt.Errorf("%w: %d", ErrInvalidIRQ, irq)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state != Ready {
		return ErrNotReady
	}
	c, line := &p.master, uint(irq)
	if irq.OnSlave() {
		c, line = &p.slave, uint(irq-LinesPerChip)
	}
	if masked {
		c.mask |= 1 << line
	} else {
		c.mask &^= 1 << line
	}
	c.data.Write(c.mask)
	return nil
}

// Masks returns the interrupt mask of each chip.
func (p *Pair) Masks() (master, slave uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.master.mask, p.slave.mask
}
