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

// Package dispatch routes interrupt vectors to handlers.
//
// CPU exceptions (vectors 0-31) and entries through a gate that is not
// present are fatal: the dispatcher reports them on the display, disables
// interrupts and halts. Every other vector goes to its registered handler;
// vectors owned by the PIC are acknowledged exactly once afterwards, even if
// the handler panics.
package dispatch

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/metric"
	"github.com/ringzero-os/ringzero/pkg/ring0"
	"github.com/ringzero-os/ringzero/pkg/vga"
)

// Display is the surface used to report fatal faults.
type Display interface {
	Write(s string)
	SetColors(fg, bg vga.Color)
}

// Gates returns the installed gate for a vector. *ring0.GateTable
// implements Gates.
type Gates interface {
	Entry(v ring0.Vector) (ring0.GateEntry, error)
}

// Acknowledger signals end-of-interrupt for the vectors it owns and
// returns false for the others. *pic.Pair implements Acknowledger.
type Acknowledger interface {
	Acknowledge(v ring0.Vector) bool
}

// Colors used to report a fatal fault.
const (
	ErrorForeground = vga.White
	ErrorBackground = vga.Red
)

// spuriousLogInterval bounds how often spurious interrupts are logged.
const spuriousLogInterval = time.Second

// State is the dispatcher state.
type State int32

// States.
const (
	// Running dispatches interrupts.
	Running State = iota

	// Halted is terminal: the CPU has been halted and nothing more is
	// dispatched.
	Halted
)

// String implements fmt.Stringer.
func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

// Fault describes the fault that halted the machine.
type Fault struct {
	Vector       ring0.Vector
	ErrorCode    uint64
	HasErrorCode bool
	Message      string
}

// Config holds a Dispatcher's collaborators.
type Config struct {
	Gates    Gates
	Handlers *Registry
	CPU      ring0.CPU
	Display  Display

	// PIC, if set, is asked to acknowledge every non-exception vector.
	PIC Acknowledger

	// Metrics, if set, receives counts. Otherwise counts are kept in a
	// private registry.
	Metrics *Metrics
}

// Dispatcher handles interrupts.
type Dispatcher struct {
	gates    Gates
	handlers *Registry
	cpu      ring0.CPU
	display  Display
	pic      Acknowledger
	metrics  *Metrics
	spurious log.Logger

	state atomic.Int32

	// mu serializes the fatal path.
	mu    sync.Mutex
	fault *Fault
}

// New returns a running dispatcher.
func New(c Config) (*Dispatcher, error) {
	switch {
	case c.Gates == nil:
		return nil, errors.New("dispatcher needs a gate table")
	case c.Handlers == nil:
		return nil, errors.New("dispatcher needs a handler registry")
	case c.CPU == nil:
		return nil, errors.New("dispatcher needs a CPU")
	case c.Display == nil:
		return nil, errors.New("dispatcher needs a display")
	}
	if c.Metrics == nil {
		c.Metrics = NewMetrics(metric.NewRegistry(""))
	}
	return &Dispatcher{
		gates:    c.Gates,
		handlers: c.Handlers,
		cpu:      c.CPU,
		display:  c.Display,
		pic:      c.PIC,
		metrics:  c.Metrics,
		spurious: log.BasicRateLimitedLogger(spuriousLogInterval),
	}, nil
}

// State returns the current state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Halted returns true once a fatal fault has halted the machine.
func (d *Dispatcher) Halted() bool {
	return d.State() == Halted
}

// Fault returns the fault that halted the machine.
func (d *Dispatcher) Fault() (Fault, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.fault == nil {
		return Fault{}, false
	}
	return *d.fault, true
}

// Metrics returns the dispatcher's counters.
func (d *Dispatcher) Metrics() *Metrics {
	return d.metrics
}

// Dispatch handles the interrupt described by f.
func (d *Dispatcher) Dispatch(f *Frame) {
	if d.Halted() {
		return
	}
	v := f.Vector
	if v >= ring0.NumVectors {
		log.Warningf("Dispatch of out of range vector %d ignored", uintptr(v))
		return
	}
	d.metrics.Interrupts.Increment(VectorValue(v))

	if e, err := d.gates.Entry(v); err != nil || !e.Present() {
		// The CPU raises #NP with an error code naming the IDT entry.
		np := *f
		np.Vector = ring0.SegmentNotPresent
		np.ErrorCode = uint64(v)<<3 | 2
		np.HasErrorCode = true
		d.fatal(&np, "")
		return
	}
	if v.IsException() {
		d.fatal(f, "")
		return
	}
	if p := d.deliver(f); p != nil {
		d.fatal(f, fmt.Sprintf("handler for %q panicked: %v", v.String(), p))
	}
}

// deliver runs the handler for f and acknowledges the vector. It returns
// the handler's panic value, if any.
func (d *Dispatcher) deliver(f *Frame) (panicked any) {
	defer func() {
		panicked = recover()
		d.acknowledge(f.Vector)
	}()
	h := d.handlers.Lookup(f.Vector)
	if h == nil {
		d.metrics.Spurious.Increment(VectorValue(f.Vector))
		d.spurious.Warningf("Spurious interrupt on vector %d (%v)", uintptr(f.Vector), f.Vector)
		return nil
	}
	h.HandleInterrupt(f)
	return nil
}

func (d *Dispatcher) acknowledge(v ring0.Vector) {
	if d.pic != nil && d.pic.Acknowledge(v) {
		d.metrics.Acknowledged.Increment()
	}
}

// fatal reports f and halts. If reason is empty the fault is reported as an
// unhandled interrupt.
func (d *Dispatcher) fatal(f *Frame, reason string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Halted() {
		return
	}

	if reason == "" {
		reason = fmt.Sprintf("unhandled interrupt %q", f.Vector.String())
		if f.HasErrorCode {
			reason += fmt.Sprintf(" (err:%d)", f.ErrorCode)
		}
	}
	d.display.SetColors(ErrorForeground, ErrorBackground)
	d.display.Write("\nException: " + reason + " - halting\n")
	log.Warningf("Halting: %s: %v", reason, f)

	d.metrics.Fatal.Increment(VectorValue(f.Vector))
	d.fault = &Fault{
		Vector:       f.Vector,
		ErrorCode:    f.ErrorCode,
		HasErrorCode: f.HasErrorCode,
		Message:      reason,
	}
	d.cpu.DisableInterrupts()
	d.state.Store(int32(Halted))
	d.cpu.Halt()
}
