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

// Package devices implements the interrupt handlers for the legacy timer,
// keyboard and mouse.
package devices

import (
	"sync"

	"github.com/ringzero-os/ringzero/pkg/dispatch"
	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/metric"
	"github.com/ringzero-os/ringzero/pkg/ps2"
	"github.com/ringzero-os/ringzero/pkg/vga"
)

// IRQ lines served here.
const (
	TimerIRQ    = 0
	KeyboardIRQ = 1
	MouseIRQ    = 12
)

// Buffer limits. Input beyond them is dropped.
const (
	MaxKeys        = 1024
	MaxMouseEvents = 256

	// maxDrain bounds the bytes read per interrupt, so a controller stuck
	// with its output buffer full cannot wedge the handler.
	maxDrain = 256
)

// Metrics counts device events.
type Metrics struct {
	Ticks        *metric.Uint64Metric
	Keys         *metric.Uint64Metric
	Dropped      *metric.Uint64Metric
	MousePackets *metric.Uint64Metric
	MouseResyncs *metric.Uint64Metric
}

// NewMetrics registers the device metrics in r.
func NewMetrics(r *metric.Registry) *Metrics {
	return &Metrics{
		Ticks:        r.MustCreateNewUint64Metric("timer_ticks_total", "Timer interrupts handled."),
		Keys:         r.MustCreateNewUint64Metric("keys_total", "Characters decoded from the keyboard."),
		Dropped:      r.MustCreateNewUint64Metric("input_dropped_total", "Input discarded because a buffer was full.", metric.NewField("source", []string{"keyboard", "mouse"})),
		MousePackets: r.MustCreateNewUint64Metric("mouse_packets_total", "Complete mouse packets."),
		MouseResyncs: r.MustCreateNewUint64Metric("mouse_resyncs_total", "Mouse bytes discarded while looking for a packet start."),
	}
}

// Timer handles IRQ0.
type Timer struct {
	display dispatch.Display
	echo    bool
	metrics *Metrics
}

// NewTimer returns a timer handler. If echo is set every tick prints
// "clock " in black on white.
func NewTimer(display dispatch.Display, echo bool, m *Metrics) *Timer {
	return &Timer{display: display, echo: echo, metrics: m}
}

// HandleInterrupt implements dispatch.Handler.HandleInterrupt.
func (t *Timer) HandleInterrupt(*dispatch.Frame) {
	t.metrics.Ticks.Increment()
	if t.echo {
		t.display.SetColors(vga.Black, vga.White)
		t.display.Write("clock ")
	}
}

// Ticks returns the number of ticks handled.
func (t *Timer) Ticks() uint64 {
	return t.metrics.Ticks.Value()
}

// Poller reads one byte from the PS/2 controller if one is waiting.
// *ps2.Controller implements Poller.
type Poller interface {
	Poll() ps2.Reading
}

// MouseEvent is one decoded mouse packet.
type MouseEvent struct {
	Left, Right, Middle bool
	DX, DY              int
	Overflow            bool
}

// Mouse packet bits of the first byte.
const (
	mouseLeft      = 1 << 0
	mouseRight     = 1 << 1
	mouseMiddle    = 1 << 2
	mouseSync      = 1 << 3
	mouseXSign     = 1 << 4
	mouseYSign     = 1 << 5
	mouseXOverflow = 1 << 6
	mouseYOverflow = 1 << 7
)

func decodePacket(p [3]uint8) MouseEvent {
	ev := MouseEvent{
		Left:     p[0]&mouseLeft != 0,
		Right:    p[0]&mouseRight != 0,
		Middle:   p[0]&mouseMiddle != 0,
		DX:       int(p[1]),
		DY:       int(p[2]),
		Overflow: p[0]&(mouseXOverflow|mouseYOverflow) != 0,
	}
	if p[0]&mouseXSign != 0 {
		ev.DX -= 0x100
	}
	if p[0]&mouseYSign != 0 {
		ev.DY -= 0x100
	}
	return ev
}

// Packet encodes e as the three bytes a mouse sends. Movements outside
// -256..255 are clamped and flagged as overflow.
func (e MouseEvent) Packet() [3]uint8 {
	p := [3]uint8{mouseSync, 0, 0}
	for _, b := range []struct {
		bit uint8
		on  bool
	}{
		{mouseLeft, e.Left},
		{mouseRight, e.Right},
		{mouseMiddle, e.Middle},
		{mouseXOverflow, e.Overflow},
	} {
		if b.on {
			p[0] |= b.bit
		}
	}
	for i, d := range []int{e.DX, e.DY} {
		if d < -0x100 || d > 0xff {
			p[0] |= mouseXOverflow << i
			d = max(-0x100, min(d, 0xff))
		}
		if d < 0 {
			p[0] |= mouseXSign << i
		}
		p[1+i] = uint8(d)
	}
	return p
}

// Input handles IRQ1 and IRQ12. Both drain the controller's output buffer,
// so bytes are routed by their source rather than by the line that fired.
type Input struct {
	ps2     Poller
	display dispatch.Display
	metrics *Metrics

	mu      sync.Mutex
	decoder Decoder
	keys    []byte
	packet  [3]uint8
	pos     int
	events  []MouseEvent
}

// NewInput returns an input handler reading from p and echoing keys to
// display.
func NewInput(p Poller, display dispatch.Display, m *Metrics) *Input {
	return &Input{ps2: p, display: display, metrics: m}
}

// HandleInterrupt implements dispatch.Handler.HandleInterrupt.
func (in *Input) HandleInterrupt(*dispatch.Frame) {
	in.mu.Lock()
	defer in.mu.Unlock()
	for i := 0; i < maxDrain; i++ {
		r := in.ps2.Poll()
		switch r.Source {
		case ps2.None:
			return
		case ps2.Keyboard:
			in.keyLocked(r.Data)
		case ps2.Mouse:
			in.mouseLocked(r.Data)
		}
	}
	log.Warningf("PS/2 output buffer still full after %d reads", maxDrain)
}

func (in *Input) keyLocked(sc uint8) {
	c, ok := in.decoder.Decode(sc)
	if !ok {
		return
	}
	in.display.SetColors(vga.White, vga.Black)
	in.display.Write(string(rune(c)))
	if len(in.keys) >= MaxKeys {
		in.metrics.Dropped.Increment("keyboard")
		return
	}
	in.keys = append(in.keys, c)
	in.metrics.Keys.Increment()
}

func (in *Input) mouseLocked(b uint8) {
	if in.pos == 0 && b&mouseSync == 0 {
		in.metrics.MouseResyncs.Increment()
		return
	}
	in.packet[in.pos] = b
	in.pos++
	if in.pos < len(in.packet) {
		return
	}
	in.pos = 0
	in.metrics.MousePackets.Increment()
	if len(in.events) >= MaxMouseEvents {
		in.metrics.Dropped.Increment("mouse")
		return
	}
	in.events = append(in.events, decodePacket(in.packet))
}

// TakeKeys returns and clears the buffered characters.
func (in *Input) TakeKeys() []byte {
	in.mu.Lock()
	defer in.mu.Unlock()
	k := in.keys
	in.keys = nil
	return k
}

// TakeMouseEvents returns and clears the buffered mouse events.
func (in *Input) TakeMouseEvents() []MouseEvent {
	in.mu.Lock()
	defer in.mu.Unlock()
	ev := in.events
	in.events = nil
	return ev
}
