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

package sim

import (
	"sync"

	"github.com/ringzero-os/ringzero/pkg/ioport"
)

// 8259 port addresses.
const (
	picMasterCommand ioport.Addr = 0x20
	picMasterData    ioport.Addr = 0x21
	picSlaveCommand  ioport.Addr = 0xa0
	picSlaveData     ioport.Addr = 0xa1

	// cascadeLine is the master input the slave is wired to.
	cascadeLine = 2
)

// ICW/OCW bits.
const (
	icw1Init = 0x10
	icw1ICW4 = 0x01
	ocw2EOI  = 0x20
)

// picChip models one 8259A.
type picChip struct {
	// step is the next initialization word expected on the data port, or
	// 0 when the chip is operational.
	step     int
	needICW4 bool

	ready   bool
	offset  uint8
	cascade uint8
	mode    uint8
	imr     uint8
	isr     uint8
	eois    int
}

func (c *picChip) command(v uint8) {
	switch {
	case v&icw1Init != 0:
		*c = picChip{step: 2, needICW4: v&icw1ICW4 != 0}
	case v == ocw2EOI:
		c.eois++
		// Non-specific EOI clears the highest priority in-service line.
		for line := uint(0); line < 8; line++ {
			if c.isr&(1<<line) != 0 {
				c.isr &^= 1 << line
				break
			}
		}
	}
}

func (c *picChip) data(v uint8) {
	switch c.step {
	case 2:
		c.offset = v
		c.step = 3
	case 3:
		c.cascade = v
		if c.needICW4 {
			c.step = 4
		} else {
			c.step, c.ready = 0, true
		}
	case 4:
		c.mode = v
		c.step, c.ready = 0, true
	default:
		c.imr = v
	}
}

// blocked returns true if line cannot be delivered now.
func (c *picChip) blocked(line uint) bool {
	return !c.ready || c.imr&(1<<line) != 0 || c.isr&(1<<line) != 0
}

// PIC models the chained 8259 pair.
type PIC struct {
	mu     sync.Mutex
	master picChip
	slave  picChip
}

// NewPIC returns an uninitialized pair.
func NewPIC() *PIC {
	return &PIC{}
}

// AttachTo maps the pair's ports on b.
func (p *PIC) AttachTo(b *Bus) {
	b.Attach(p, picMasterCommand, picMasterData, picSlaveCommand, picSlaveData)
}

// In8 implements Device.In8. The data ports read back the mask; the command
// ports read the in-service register.
func (p *PIC) In8(addr ioport.Addr) uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch addr {
	case picMasterCommand:
		return p.master.isr
	case picMasterData:
		return p.master.imr
	case picSlaveCommand:
		return p.slave.isr
	case picSlaveData:
		return p.slave.imr
	}
	return 0xff
}

// Out8 implements Device.Out8.
func (p *PIC) Out8(addr ioport.Addr, v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch addr {
	case picMasterCommand:
		p.master.command(v)
	case picMasterData:
		p.master.data(v)
	case picSlaveCommand:
		p.slave.command(v)
	case picSlaveData:
		p.slave.data(v)
	}
}

// Raise asserts irq. If the line is deliverable it becomes in service and
// its vector is returned; a masked or still-unacknowledged line is not
// delivered.
func (p *PIC) Raise(irq uint8) (uint8, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if irq >= 16 {
		return 0, false
	}
	if irq < 8 {
		line := uint(irq)
		if p.master.blocked(line) {
			return 0, false
		}
		p.master.isr |= 1 << line
		return p.master.offset + irq, true
	}
	line := uint(irq - 8)
	if p.slave.blocked(line) || p.master.blocked(cascadeLine) {
		return 0, false
	}
	p.slave.isr |= 1 << line
	p.master.isr |= 1 << cascadeLine
	return p.slave.offset + uint8(line), true
}

// PICState is a snapshot of the pair's registers.
type PICState struct {
	MasterReady, SlaveReady     bool
	MasterOffset, SlaveOffset   uint8
	MasterCascade, SlaveCascade uint8
	MasterMode, SlaveMode       uint8
	MasterIMR, SlaveIMR         uint8
	MasterISR, SlaveISR         uint8
	MasterEOIs, SlaveEOIs       int
}

// State returns a snapshot of the pair.
func (p *PIC) State() PICState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return PICState{
		MasterReady:   p.master.ready,
		SlaveReady:    p.slave.ready,
		MasterOffset:  p.master.offset,
		SlaveOffset:   p.slave.offset,
		MasterCascade: p.master.cascade,
		SlaveCascade:  p.slave.cascade,
		MasterMode:    p.master.mode,
		SlaveMode:     p.slave.mode,
		MasterIMR:     p.master.imr,
		SlaveIMR:      p.slave.imr,
		MasterISR:     p.master.isr,
		SlaveISR:      p.slave.isr,
		MasterEOIs:    p.master.eois,
		SlaveEOIs:     p.slave.eois,
	}
}
