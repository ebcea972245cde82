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

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ringzero-os/ringzero/pkg/ioport"
	"github.com/ringzero-os/ringzero/pkg/metric"
	"github.com/ringzero-os/ringzero/pkg/ps2"
	"github.com/ringzero-os/ringzero/pkg/sim"
	"github.com/ringzero-os/ringzero/pkg/vga"
)

// scriptedPoller returns readings in order, then None.
type scriptedPoller struct {
	readings []ps2.Reading
	polls    int
}

func (p *scriptedPoller) Poll() ps2.Reading {
	p.polls++
	if len(p.readings) == 0 {
		return ps2.Reading{Source: ps2.None}
	}
	r := p.readings[0]
	p.readings = p.readings[1:]
	return r
}

func keys(scancodes ...uint8) []ps2.Reading {
	var rs []ps2.Reading
	for _, sc := range scancodes {
		rs = append(rs, ps2.Reading{Source: ps2.Keyboard, Data: sc})
	}
	return rs
}

func mouse(bs ...uint8) []ps2.Reading {
	var rs []ps2.Reading
	for _, b := range bs {
		rs = append(rs, ps2.Reading{Source: ps2.Mouse, Data: b})
	}
	return rs
}

func newMetrics() *Metrics {
	return NewMetrics(metric.NewRegistry(""))
}

func TestTimer(t *testing.T) {
	for _, echo := range []bool{false, true} {
		s := vga.NewScreen()
		m := newMetrics()
		timer := NewTimer(s, echo, m)
		timer.HandleInterrupt(nil)
		timer.HandleInterrupt(nil)
		if got := timer.Ticks(); got != 2 {
			t.Errorf("echo %v: Ticks = %d, want 2", echo, got)
		}
		want := ""
		if echo {
			want = "clock clock"
		}
		if got := s.Row(0); got != want {
			t.Errorf("echo %v: Row(0) = %q, want %q", echo, got, want)
		}
		if echo {
			if got := s.Cell(0, 0); got.Foreground() != vga.Black || got.Background() != vga.White {
				t.Errorf("clock colors = %v on %v", got.Foreground(), got.Background())
			}
		}
	}
}

func TestKeyboard(t *testing.T) {
	// "hi" then shift+a, with releases and an extended key between.
	p := &scriptedPoller{readings: keys(
		0x23, 0xa3, // h
		0x17, 0x97, // i
		0xe0, 0x48, 0xe0, 0xc8, // up arrow
		0x2a, 0x1e, 0x9e, 0xaa, // A
		0x1c, // enter
	)}
	s := vga.NewScreen()
	m := newMetrics()
	in := NewInput(p, s, m)
	in.HandleInterrupt(nil)

	if got, want := string(in.TakeKeys()), "hiA\n"; got != want {
		t.Errorf("keys = %q, want %q", got, want)
	}
	if got := in.TakeKeys(); len(got) != 0 {
		t.Errorf("keys after take = %q", got)
	}
	if got := s.Row(0); got != "hiA" {
		t.Errorf("echo = %q, want %q", got, "hiA")
	}
	if x, y := s.Cursor(); x != 0 || y != 1 {
		t.Errorf("cursor = (%d, %d), want (0, 1)", x, y)
	}
	if got := m.Keys.Value(); got != 4 {
		t.Errorf("key count = %d, want 4", got)
	}
}

func TestKeyboardOverflow(t *testing.T) {
	var scancodes []uint8
	for i := 0; i < MaxKeys+3; i++ {
		scancodes = append(scancodes, 0x1e)
	}
	m := newMetrics()
	in := NewInput(&scriptedPoller{}, vga.NewScreen(), m)
	// Several interrupts, each draining at most maxDrain bytes.
	for len(scancodes) > 0 {
		n := min(len(scancodes), maxDrain)
		in.ps2 = &scriptedPoller{readings: keys(scancodes[:n]...)}
		scancodes = scancodes[n:]
		in.HandleInterrupt(nil)
	}
	if got := len(in.TakeKeys()); got != MaxKeys {
		t.Errorf("buffered %d keys, want %d", got, MaxKeys)
	}
	if got := m.Dropped.Value("keyboard"); got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

func TestDrainIsBounded(t *testing.T) {
	var rs []ps2.Reading
	for i := 0; i < maxDrain+10; i++ {
		rs = append(rs, ps2.Reading{Source: ps2.Keyboard, Data: 0x80})
	}
	p := &scriptedPoller{readings: rs}
	in := NewInput(p, vga.NewScreen(), newMetrics())
	in.HandleInterrupt(nil)
	if p.polls != maxDrain {
		t.Errorf("polls = %d, want %d", p.polls, maxDrain)
	}
}

func TestMouse(t *testing.T) {
	p := &scriptedPoller{readings: mouse(
		0x00,             // out of sync, dropped
		0x29, 0x05, 0xfb, // left, dx 5, dy -5
		0x1a, 0xff, 0x00, // right, dx -1
		0xc8, 0x00, 0x00, // overflow
	)}
	m := newMetrics()
	in := NewInput(p, vga.NewScreen(), m)
	in.HandleInterrupt(nil)

	want := []MouseEvent{
		{Left: true, DX: 5, DY: -5},
		{Right: true, DX: -1},
		{Overflow: true},
	}
	if diff := cmp.Diff(want, in.TakeMouseEvents()); diff != "" {
		t.Errorf("mouse events mismatch (-want +got):\n%s", diff)
	}
	if got := m.MouseResyncs.Value(); got != 1 {
		t.Errorf("resyncs = %d, want 1", got)
	}
	if got := m.MousePackets.Value(); got != 3 {
		t.Errorf("packets = %d, want 3", got)
	}
	if got := in.TakeKeys(); len(got) != 0 {
		t.Errorf("mouse bytes decoded as keys: %q", got)
	}
}

func TestMousePacketAcrossInterrupts(t *testing.T) {
	p := &scriptedPoller{readings: mouse(0x08, 0x01)}
	in := NewInput(p, vga.NewScreen(), newMetrics())
	in.HandleInterrupt(nil)
	if got := in.TakeMouseEvents(); len(got) != 0 {
		t.Fatalf("partial packet produced %v", got)
	}
	p.readings = mouse(0x02)
	in.HandleInterrupt(nil)
	want := []MouseEvent{{DX: 1, DY: 2}}
	if diff := cmp.Diff(want, in.TakeMouseEvents()); diff != "" {
		t.Errorf("mouse events mismatch (-want +got):\n%s", diff)
	}
}

func TestInputWithController(t *testing.T) {
	bus := sim.NewBus()
	model := sim.NewController8042()
	model.AttachTo(bus)
	c, err := ps2.New(ioport.NewSpace(bus), ps2.Options{PollLimit: 10})
	if err != nil {
		t.Fatalf("ps2.New failed: %v", err)
	}
	if _, err := c.BringUp(context.Background()); err != nil {
		t.Fatalf("BringUp failed: %v", err)
	}
	in := NewInput(c, vga.NewScreen(), newMetrics())

	if !model.KeyboardInput(0x10, 0x90) {
		t.Errorf("keyboard input raised no interrupt")
	}
	if !model.MouseInput(0x08, 0x03, 0x04) {
		t.Errorf("mouse input raised no interrupt after bring up")
	}
	in.HandleInterrupt(nil)

	if got := string(in.TakeKeys()); got != "q" {
		t.Errorf("keys = %q, want %q", got, "q")
	}
	want := []MouseEvent{{DX: 3, DY: 4}}
	if diff := cmp.Diff(want, in.TakeMouseEvents()); diff != "" {
		t.Errorf("mouse events mismatch (-want +got):\n%s", diff)
	}
	if got := model.Pending(); got != 0 {
		t.Errorf("%d bytes left in the controller", got)
	}
}

func TestEncodeDecode(t *testing.T) {
	const text = "the quick brown fox jumps over the lazy dog\nTHE QUICK BROWN FOX 0123456789 !@#$%^&*()[]{};':\",./<>?\\|`~-=_+"
	var d Decoder
	var got []byte
	for i := 0; i < len(text); i++ {
		scancodes, ok := Encode(text[i])
		if !ok {
			t.Fatalf("Encode(%q) failed", text[i])
		}
		for _, sc := range scancodes {
			if c, ok := d.Decode(sc); ok {
				got = append(got, c)
			}
		}
	}
	if string(got) != text {
		t.Errorf("round trip = %q, want %q", got, text)
	}
	if _, ok := Encode(0); ok {
		t.Errorf("Encode(0) succeeded")
	}
	if _, ok := Encode(0x80); ok {
		t.Errorf("Encode(0x80) succeeded")
	}
}

func TestMousePacket(t *testing.T) {
	for _, tc := range []struct {
		ev   MouseEvent
		want MouseEvent
	}{
		{ev: MouseEvent{}, want: MouseEvent{}},
		{ev: MouseEvent{Left: true, DX: 5, DY: -3}, want: MouseEvent{Left: true, DX: 5, DY: -3}},
		{ev: MouseEvent{Right: true, Middle: true, DX: -256, DY: 255}, want: MouseEvent{Right: true, Middle: true, DX: -256, DY: 255}},
		{ev: MouseEvent{DX: 300, DY: -1000}, want: MouseEvent{DX: 255, DY: -256, Overflow: true}},
	} {
		p := tc.ev.Packet()
		if p[0]&mouseSync == 0 {
			t.Errorf("%+v: packet %#v lacks the sync bit", tc.ev, p)
		}
		if diff := cmp.Diff(tc.want, decodePacket(p)); diff != "" {
			t.Errorf("%+v: decoded packet mismatch (-want +got):\n%s", tc.ev, diff)
		}
	}
}
