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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ringzero-os/ringzero/pkg/ioport"
)

func initPIC(b *Bus) {
	for _, w := range []struct {
		addr ioport.Addr
		v    uint8
	}{
		{0x20, 0x11}, {0xa0, 0x11},
		{0x21, 0x20}, {0xa1, 0x28},
		{0x21, 0x01}, {0xa1, 0x01},
		{0x21, 0x00}, {0xa1, 0x00},
	} {
		b.Out8(w.addr, w.v)
	}
}

func TestBusTrace(t *testing.T) {
	b := NewBus()
	b.Out8(0x80, 1)
	if got := b.In8(0x81); got != 0xff {
		t.Errorf("unattached read = %#x, want 0xff", got)
	}
	want := []Access{
		{Op: Write, Addr: 0x80, Value: 1},
		{Op: Read, Addr: 0x81, Value: 0xff},
	}
	if diff := cmp.Diff(want, b.Trace()); diff != "" {
		t.Errorf("trace mismatch (-want +got):\n%s", diff)
	}
	if got := Writes(b.Trace()); len(got) != 1 {
		t.Errorf("Writes = %v, want one write", got)
	}
	if got := Filter(b.Trace(), 0x81); len(got) != 1 || got[0].Op != Read {
		t.Errorf("Filter = %v, want the read", got)
	}
	b.ResetTrace()
	if got := b.Trace(); len(got) != 0 {
		t.Errorf("trace after reset = %v", got)
	}
}

func TestPICInitialization(t *testing.T) {
	b := NewBus()
	p := NewPIC()
	p.AttachTo(b)

	if _, ok := p.Raise(0); ok {
		t.Errorf("uninitialized pair delivered IRQ0")
	}
	initPIC(b)
	want := PICState{
		MasterReady:   true,
		SlaveReady:    true,
		MasterOffset:  0x20,
		SlaveOffset:   0x28,
		MasterCascade: 0x01,
		SlaveCascade:  0x01,
	}
	if diff := cmp.Diff(want, p.State()); diff != "" {
		t.Errorf("state mismatch (-want +got):\n%s", diff)
	}
}

func TestPICStallsWithoutEOI(t *testing.T) {
	b := NewBus()
	p := NewPIC()
	p.AttachTo(b)
	initPIC(b)

	v, ok := p.Raise(1)
	if !ok || v != 33 {
		t.Fatalf("Raise(1) = %d, %v, want 33, true", v, ok)
	}
	if _, ok := p.Raise(1); ok {
		t.Errorf("IRQ1 delivered again before EOI")
	}
	// Other lines still get through.
	if v, ok := p.Raise(0); !ok || v != 32 {
		t.Errorf("Raise(0) = %d, %v, want 32, true", v, ok)
	}
	// Non-specific EOI retires the highest priority line first.
	b.Out8(0x20, 0x20)
	if _, ok := p.Raise(1); ok {
		t.Errorf("IRQ1 delivered after EOI for IRQ0")
	}
	b.Out8(0x20, 0x20)
	if _, ok := p.Raise(1); !ok {
		t.Errorf("IRQ1 not delivered after its EOI")
	}
}

func TestPICSlaveNeedsBothEOIs(t *testing.T) {
	b := NewBus()
	p := NewPIC()
	p.AttachTo(b)
	initPIC(b)

	v, ok := p.Raise(12)
	if !ok || v != 44 {
		t.Fatalf("Raise(12) = %d, %v, want 44, true", v, ok)
	}
	if got := p.State(); got.MasterISR != 1<<2 || got.SlaveISR != 1<<4 {
		t.Errorf("ISR = %#x/%#x, want 0x4/0x10", got.MasterISR, got.SlaveISR)
	}

	// Slave EOI alone leaves the cascade line in service.
	b.Out8(0xa0, 0x20)
	if _, ok := p.Raise(12); ok {
		t.Errorf("IRQ12 delivered with the cascade line in service")
	}
	b.Out8(0x20, 0x20)
	if _, ok := p.Raise(12); !ok {
		t.Errorf("IRQ12 not delivered after both EOIs")
	}
	if got := p.State(); got.MasterEOIs != 1 || got.SlaveEOIs != 1 {
		t.Errorf("EOIs = %d/%d, want 1/1", got.MasterEOIs, got.SlaveEOIs)
	}
}

func TestPICMask(t *testing.T) {
	b := NewBus()
	p := NewPIC()
	p.AttachTo(b)
	initPIC(b)

	b.Out8(0x21, 1<<3)
	if _, ok := p.Raise(3); ok {
		t.Errorf("masked IRQ3 delivered")
	}
	if got := b.In8(0x21); got != 1<<3 {
		t.Errorf("IMR = %#x, want 0x8", got)
	}
	b.Out8(0x21, 0)
	if _, ok := p.Raise(3); !ok {
		t.Errorf("unmasked IRQ3 not delivered")
	}
}

func TestController8042BringUp(t *testing.T) {
	b := NewBus()
	c := NewController8042()
	c.AttachTo(b)

	if got := b.In8(0x64); got&statusOutputFull != 0 {
		t.Fatalf("status = %#x, output buffer full at power on", got)
	}
	b.Out8(0x64, 0xa8)
	if got := b.In8(0x60); got != Ack {
		t.Errorf("enable aux ack = %#x", got)
	}
	b.Out8(0x64, 0x20)
	cfg := b.In8(0x60)
	if cfg&ConfigAuxClockOff != 0 {
		t.Errorf("config %#x still has aux clock disabled after 0xa8", cfg)
	}
	b.Out8(0x64, 0x60)
	b.Out8(0x60, cfg|ConfigAuxIRQ)
	if got := b.In8(0x60); got != Ack {
		t.Errorf("write config ack = %#x", got)
	}
	b.Out8(0x60, 0xf4)
	if got := b.In8(0x60); got != Ack {
		t.Errorf("enable scanning ack = %#x", got)
	}
	if !c.AuxEnabled() || !c.Scanning() {
		t.Errorf("aux enabled %v, scanning %v", c.AuxEnabled(), c.Scanning())
	}
	if got := c.Config(); got&ConfigAuxIRQ == 0 {
		t.Errorf("config = %#x, want aux IRQ enabled", got)
	}
}

func TestController8042Input(t *testing.T) {
	b := NewBus()
	c := NewController8042()
	c.AttachTo(b)

	if c.MouseInput(0x08) {
		t.Errorf("mouse IRQ raised with aux disabled")
	}
	if !c.KeyboardInput(0x1e) {
		t.Errorf("keyboard IRQ not raised")
	}
	if got := b.In8(0x64); got&statusAux == 0 {
		t.Errorf("status = %#x, want aux byte first", got)
	}
	if got := b.In8(0x60); got != 0x08 {
		t.Errorf("data = %#x, want 0x08", got)
	}
	if got := b.In8(0x64); got&(statusOutputFull|statusAux) != statusOutputFull {
		t.Errorf("status = %#x, want keyboard byte", got)
	}
	if got := b.In8(0x60); got != 0x1e {
		t.Errorf("data = %#x, want 0x1e", got)
	}
	if got := c.Pending(); got != 0 {
		t.Errorf("pending = %d", got)
	}
}

func TestController8042Busy(t *testing.T) {
	b := NewBus()
	c := NewController8042()
	c.AttachTo(b)
	c.SetBusyPolls(2)

	b.Out8(0x64, 0x20)
	for i := 0; i < 2; i++ {
		if got := b.In8(0x64); got&statusInputFull == 0 {
			t.Errorf("poll %d: status = %#x, want input full", i, got)
		}
	}
	if got := b.In8(0x64); got&statusInputFull != 0 {
		t.Errorf("status = %#x, want input empty", got)
	}

	c.SetStuck(true)
	for i := 0; i < 10; i++ {
		if got := b.In8(0x64); got&statusInputFull == 0 {
			t.Fatalf("stuck controller cleared input full")
		}
	}
}

func TestController8042AckOverride(t *testing.T) {
	b := NewBus()
	c := NewController8042()
	c.AttachTo(b)
	c.SetAck(0xf4, 0xfe)

	b.Out8(0x60, 0xf4)
	if got := b.In8(0x60); got != 0xfe {
		t.Errorf("ack = %#x, want 0xfe", got)
	}
}

func TestCPU(t *testing.T) {
	c := NewCPU()
	if c.InterruptsEnabled() {
		t.Errorf("interrupts enabled at reset")
	}
	if _, ok := c.IDTR(); ok {
		t.Errorf("IDTR loaded at reset")
	}
	c.EnableInterrupts()
	if !c.InterruptsEnabled() {
		t.Errorf("EnableInterrupts had no effect")
	}
	c.DisableInterrupts()
	c.Halt()
	c.EnableInterrupts()
	if !c.Halted() || c.InterruptsEnabled() {
		t.Errorf("halted CPU: halted %v, IF %v", c.Halted(), c.InterruptsEnabled())
	}
}
