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

// Package sim provides simulated legacy PC hardware: an I/O bus, the 8259
// interrupt controller pair, the 8042 keyboard/mouse controller and a CPU
// with an interrupt flag and an IDT register.
//
// The models follow the behaviour a driver observes through the ports; they
// are not cycle accurate.
package sim

import (
	"fmt"
	"sync"

	"github.com/ringzero-os/ringzero/pkg/ioport"
)

// Device is a port-mapped device model.
type Device interface {
	In8(addr ioport.Addr) uint8
	Out8(addr ioport.Addr, v uint8)
}

// Op is the direction of a port access.
type Op byte

// Port access directions.
const (
	Read  Op = 'r'
	Write Op = 'w'
)

// Access is one recorded port access.
type Access struct {
	Op    Op
	Addr  ioport.Addr
	Value uint8
}

// String implements fmt.Stringer.
func (a Access) String() string {
	if a.Op == Write {
		return fmt.Sprintf("out %v <- %#02x", a.Addr, a.Value)
	}
	return fmt.Sprintf("in %v -> %#02x", a.Addr, a.Value)
}

// Bus routes port accesses to attached devices and records them in order.
// Reads from unattached ports return 0xff.
type Bus struct {
	mu      sync.Mutex
	devices map[ioport.Addr]Device
	trace   []Access
}

// NewBus returns an empty bus.
func NewBus() *Bus {
	return &Bus{devices: make(map[ioport.Addr]Device)}
}

// Attach maps addrs to d.
func (b *Bus) Attach(d Device, addrs ...ioport.Addr) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range addrs {
		b.devices[a] = d
	}
}

// In8 implements ioport.Bus.In8.
func (b *Bus) In8(addr ioport.Addr) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	v := uint8(0xff)
	if d, ok := b.devices[addr]; ok {
		v = d.In8(addr)
	}
	b.trace = append(b.trace, Access{Op: Read, Addr: addr, Value: v})
	return v
}

// Out8 implements ioport.Bus.Out8.
func (b *Bus) Out8(addr ioport.Addr, v uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if d, ok := b.devices[addr]; ok {
		d.Out8(addr, v)
	}
	b.trace = append(b.trace, Access{Op: Write, Addr: addr, Value: v})
}

// Trace returns a copy of the accesses recorded so far.
func (b *Bus) Trace() []Access {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Access(nil), b.trace...)
}

// ResetTrace discards the recorded accesses.
func (b *Bus) ResetTrace() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trace = nil
}

// Filter returns the accesses in trace that touch one of addrs.
func Filter(trace []Access, addrs ...ioport.Addr) []Access {
	var out []Access
	for _, a := range trace {
		for _, want := range addrs {
			if a.Addr == want {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Writes returns only the writes in trace.
func Writes(trace []Access) []Access {
	var out []Access
	for _, a := range trace {
		if a.Op == Write {
			out = append(out, a)
		}
	}
	return out
}
