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

	"github.com/ringzero-os/ringzero/pkg/ring0"
)

// CPU models the interrupt-related state of a processor: the IDT register,
// the interrupt flag and the halted state.
//
// CPU implements ring0.CPU.
type CPU struct {
	mu     sync.Mutex
	idtr   ring0.Descriptor
	loaded bool
	loads  int
	iflag  bool
	halted bool
}

// NewCPU returns a CPU with interrupts disabled and no IDT loaded.
func NewCPU() *CPU {
	return &CPU{}
}

// LoadIDT implements ring0.CPU.LoadIDT.
func (c *CPU) LoadIDT(d ring0.Descriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.idtr = d
	c.loaded = true
	c.loads++
}

// EnableInterrupts implements ring0.CPU.EnableInterrupts. A halted CPU stays
// halted with interrupts off.
func (c *CPU) EnableInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.halted {
		return
	}
	c.iflag = true
}

// DisableInterrupts implements ring0.CPU.DisableInterrupts.
func (c *CPU) DisableInterrupts() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.iflag = false
}

// InterruptsEnabled implements ring0.CPU.InterruptsEnabled.
func (c *CPU) InterruptsEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.iflag
}

// Halt implements ring0.CPU.Halt. The simulated processor does not spin;
// it records that it will never run again.
func (c *CPU) Halt() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.halted = true
}

// Halted returns true after Halt.
func (c *CPU) Halted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.halted
}

// IDTR returns the loaded descriptor, if any.
func (c *CPU) IDTR() (ring0.Descriptor, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.idtr, c.loaded
}

// Loads returns the number of LoadIDT calls.
func (c *CPU) Loads() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}
