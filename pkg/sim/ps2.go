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

// 8042 port addresses.
const (
	kbdData    ioport.Addr = 0x60
	kbdCommand ioport.Addr = 0x64
)

// 8042 status register bits.
const (
	statusOutputFull = 1 << 0
	statusInputFull  = 1 << 1
	statusSystem     = 1 << 2
	statusAux        = 1 << 5
)

// Controller commands and device bytes understood by the model.
const (
	ctrlReadConfig  = 0x20
	ctrlWriteConfig = 0x60
	ctrlDisableAux  = 0xa7
	ctrlEnableAux   = 0xa8
	ctrlWriteAux    = 0xd4

	devEnableScan = 0xf4
	devReset      = 0xff

	// Ack is the acknowledgment byte.
	Ack      = 0xfa
	resend   = 0xfe
	selfTest = 0xaa
)

// Configuration byte bits.
const (
	ConfigKeyboardIRQ = 1 << 0
	ConfigAuxIRQ      = 1 << 1
	ConfigSystem      = 1 << 2
	ConfigKbdClockOff = 1 << 4
	ConfigAuxClockOff = 1 << 5
	ConfigTranslate   = 1 << 6

	// DefaultConfig is the configuration byte after power on: keyboard
	// interrupt and translation enabled, auxiliary clock disabled.
	DefaultConfig = ConfigKeyboardIRQ | ConfigSystem | ConfigAuxClockOff | ConfigTranslate
)

type outByte struct {
	v   uint8
	aux bool
}

// Controller8042 models the PS/2 controller with a keyboard and a mouse
// attached.
type Controller8042 struct {
	mu sync.Mutex

	config  uint8
	out     []outByte
	last    uint8
	pending uint8 // controller command awaiting a data byte, or 0

	auxEnabled   bool
	scanning     bool
	auxScanning  bool
	busy         int
	busyPerWrite int
	stuck        bool
	acks         map[uint8]uint8
}

// NewController8042 returns a controller in its power-on state.
func NewController8042() *Controller8042 {
	return &Controller8042{
		config: DefaultConfig,
		acks:   make(map[uint8]uint8),
	}
}

// AttachTo maps the controller's ports on b.
func (c *Controller8042) AttachTo(b *Bus) {
	b.Attach(c, kbdData, kbdCommand)
}

// SetBusyPolls makes the input buffer report full for n status reads after
// every write.
func (c *Controller8042) SetBusyPolls(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busyPerWrite = n
}

// SetStuck makes the input buffer report full forever.
func (c *Controller8042) SetStuck(stuck bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stuck = stuck
}

// SetAck replaces the acknowledgment produced for command cmd.
func (c *Controller8042) SetAck(cmd, ack uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.acks[cmd] = ack
}

// Config returns the current configuration byte.
func (c *Controller8042) Config() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// AuxEnabled returns true once the auxiliary port has been enabled.
func (c *Controller8042) AuxEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.auxEnabled
}

// Scanning returns true once the keyboard has been told to send scancodes.
func (c *Controller8042) Scanning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scanning
}

// Pending returns the number of bytes waiting in the output buffer.
func (c *Controller8042) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.out)
}

// KeyboardInput queues keyboard bytes. It returns true if the controller
// would raise IRQ1.
func (c *Controller8042) KeyboardInput(bs ...uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range bs {
		c.out = append(c.out, outByte{v: b})
	}
	return len(bs) > 0 && c.config&ConfigKeyboardIRQ != 0
}

// MouseInput queues auxiliary bytes. It returns true if the controller
// would raise IRQ12.
func (c *Controller8042) MouseInput(bs ...uint8) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range bs {
		c.out = append(c.out, outByte{v: b, aux: true})
	}
	return len(bs) > 0 && c.config&ConfigAuxIRQ != 0 && c.config&ConfigAuxClockOff == 0
}

func (c *Controller8042) push(v uint8, aux bool) {
	c.out = append(c.out, outByte{v: v, aux: aux})
}

func (c *Controller8042) ack(cmd uint8, aux bool) {
	v, ok := c.acks[cmd]
	if !ok {
		v = Ack
	}
	c.push(v, aux)
}

// In8 implements Device.In8.
func (c *Controller8042) In8(addr ioport.Addr) uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch addr {
	case kbdCommand:
		s := uint8(statusSystem)
		if len(c.out) > 0 {
			s |= statusOutputFull
			if c.out[0].aux {
				s |= statusAux
			}
		}
		if c.stuck || c.busy > 0 {
			s |= statusInputFull
			if c.busy > 0 {
				c.busy--
			}
		}
		return s
	case kbdData:
		if len(c.out) == 0 {
			return c.last
		}
		b := c.out[0]
		c.out = c.out[1:]
		c.last = b.v
		return b.v
	}
	return 0xff
}

// Out8 implements Device.Out8.
func (c *Controller8042) Out8(addr ioport.Addr, v uint8) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = c.busyPerWrite
	switch addr {
	case kbdCommand:
		c.command(v)
	case kbdData:
		c.data(v)
	}
}

func (c *Controller8042) command(v uint8) {
	c.pending = 0
	switch v {
	case ctrlEnableAux:
		c.auxEnabled = true
		c.config &^= ConfigAuxClockOff
		c.ack(v, false)
	case ctrlDisableAux:
		c.auxEnabled = false
		c.config |= ConfigAuxClockOff
	case ctrlReadConfig:
		c.push(c.config, false)
	case ctrlWriteConfig, ctrlWriteAux:
		c.pending = v
	}
}

func (c *Controller8042) data(v uint8) {
	switch c.pending {
	case ctrlWriteConfig:
		c.pending = 0
		c.config = v
		c.ack(ctrlWriteConfig, false)
		return
	case ctrlWriteAux:
		c.pending = 0
		c.device(v, true)
		return
	}
	c.device(v, false)
}

// device handles a byte sent to the keyboard, or to the mouse if aux is set.
func (c *Controller8042) device(v uint8, aux bool) {
	switch v {
	case devEnableScan:
		if aux {
			c.auxScanning = true
		} else {
			c.scanning = true
		}
		c.ack(v, aux)
	case devReset:
		c.ack(v, aux)
		c.push(selfTest, aux)
	default:
		c.push(resend, aux)
	}
}
