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

package boot

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ringzero-os/ringzero/pkg/devices"
	"github.com/ringzero-os/ringzero/pkg/pic"
	"github.com/ringzero-os/ringzero/pkg/ring0"
)

// EventKind is the kind of an injected event.
type EventKind int

// Event kinds.
const (
	// EventTick raises the timer line.
	EventTick EventKind = iota

	// EventKeys types Event.Text on the keyboard.
	EventKeys

	// EventMouse sends Event.Mouse as one packet.
	EventMouse

	// EventIRQ raises Event.IRQ with no device data.
	EventIRQ

	// EventFault raises exception Event.Vector.
	EventFault
)

// Event is something that happens to a simulated machine.
type Event struct {
	Kind      EventKind
	Text      string
	Mouse     devices.MouseEvent
	IRQ       pic.IRQ
	Vector    ring0.Vector
	ErrorCode uint64
}

// String implements fmt.Stringer. It is the inverse of ParseEvent.
func (e Event) String() string {
	switch e.Kind {
	case EventTick:
		return "tick"
	case EventKeys:
		return "keys:" + strconv.Quote(e.Text)
	case EventMouse:
		s := fmt.Sprintf("mouse:%d,%d", e.Mouse.DX, e.Mouse.DY)
		for _, b := range []struct {
			on   bool
			name string
		}{{e.Mouse.Left, "l"}, {e.Mouse.Right, "r"}, {e.Mouse.Middle, "m"}} {
			if b.on {
				s += "," + b.name
			}
		}
		return s
	case EventIRQ:
		return fmt.Sprintf("irq:%d", e.IRQ)
	case EventFault:
		if e.Vector.HasErrorCode() {
			return fmt.Sprintf("fault:%d:%d", uintptr(e.Vector), e.ErrorCode)
		}
		return fmt.Sprintf("fault:%d", uintptr(e.Vector))
	}
	return fmt.Sprintf("EventKind(%d)", e.Kind)
}

// ParseEvent parses one event:
//
//	tick                  timer interrupt
//	keys:TEXT             type TEXT; a Go quoted string is unquoted
//	mouse:DX,DY[,l|r|m]   mouse movement and buttons held
//	irq:N                 raise IRQ line N
//	fault:V[:ERR]         raise exception V with error code ERR
func ParseEvent(s string) (Event, error) {
	kind, arg, _ := strings.Cut(s, ":")
	switch kind {
	case "tick":
		if arg != "" {
			return Event{}, fmt.Errorf("event %q: tick takes no argument", s)
		}
		return Event{Kind: EventTick}, nil

	case "keys":
		text := arg
		if unq, err := strconv.Unquote(arg); err == nil {
			text = unq
		}
		for i := 0; i < len(text); i++ {
			if _, ok := devices.Encode(text[i]); !ok {
				return Event{}, fmt.Errorf("event %q: no key types %q", s, text[i])
			}
		}
		return Event{Kind: EventKeys, Text: text}, nil

	case "mouse":
		parts := strings.Split(arg, ",")
		if len(parts) < 2 {
			return Event{}, fmt.Errorf("event %q: want mouse:DX,DY", s)
		}
		var ev devices.MouseEvent
		var err error
		if ev.DX, err = strconv.Atoi(parts[0]); err != nil {
			return Event{}, fmt.Errorf("event %q: %w", s, err)
		}
		if ev.DY, err = strconv.Atoi(parts[1]); err != nil {
			return Event{}, fmt.Errorf("event %q: %w", s, err)
		}
		for _, b := range parts[2:] {
			switch b {
			case "l":
				ev.Left = true
			case "r":
				ev.Right = true
			case "m":
				ev.Middle = true
			default:
				return Event{}, fmt.Errorf("event %q: unknown button %q", s, b)
			}
		}
		return Event{Kind: EventMouse, Mouse: ev}, nil

	case "irq":
		n, err := strconv.ParseUint(arg, 0, 8)
		if err != nil || n >= pic.NumIRQs {
			return Event{}, fmt.Errorf("event %q: IRQ must be 0-%d", s, pic.NumIRQs-1)
		}
		return Event{Kind: EventIRQ, IRQ: pic.IRQ(n)}, nil

	case "fault":
		vs, codes, hasCode := strings.Cut(arg, ":")
		v, err := strconv.ParseUint(vs, 0, 8)
		if err != nil {
			return Event{}, fmt.Errorf("event %q: vector must be 0-%d", s, ring0.NumVectors-1)
		}
		ev := Event{Kind: EventFault, Vector: ring0.Vector(v)}
		if hasCode {
			if ev.ErrorCode, err = strconv.ParseUint(codes, 0, 64); err != nil {
				return Event{}, fmt.Errorf("event %q: %w", s, err)
			}
		}
		return ev, nil
	}
	return Event{}, fmt.Errorf("unknown event %q", s)
}

// ParseEvents parses each element of args with ParseEvent.
func ParseEvents(args []string) ([]Event, error) {
	events := make([]Event, 0, len(args))
	for _, a := range args {
		ev, err := ParseEvent(a)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

// Inject makes e happen on a simulated machine. It returns the number of
// interrupts delivered.
func (m *Machine) Inject(e Event) (int, error) {
	if !m.hw.Simulated() {
		return 0, ErrNotSimulated
	}
	switch e.Kind {
	case EventTick:
		return m.raise(devices.TimerIRQ, true)
	case EventKeys:
		delivered := 0
		for i := 0; i < len(e.Text); i++ {
			codes, ok := devices.Encode(e.Text[i])
			if !ok {
				return delivered, fmt.Errorf("no key types %q", e.Text[i])
			}
			n, err := m.raise(devices.KeyboardIRQ, m.hw.PS2.KeyboardInput(codes...))
			delivered += n
			if err != nil {
				return delivered, err
			}
		}
		return delivered, nil
	case EventMouse:
		p := e.Mouse.Packet()
		return m.raise(devices.MouseIRQ, m.hw.PS2.MouseInput(p[:]...))
	case EventIRQ:
		return m.raise(e.IRQ, true)
	case EventFault:
		if err := m.Fault(e.Vector, e.ErrorCode); err != nil {
			return 0, err
		}
		return 1, nil
	}
	return 0, fmt.Errorf("unknown event kind %d", e.Kind)
}

func (m *Machine) raise(irq pic.IRQ, assert bool) (int, error) {
	if !assert {
		return 0, nil
	}
	ok, err := m.Interrupt(irq)
	if !ok || err != nil {
		return 0, err
	}
	return 1, nil
}
