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

package dispatch

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/ringzero-os/ringzero/pkg/ioport"
	"github.com/ringzero-os/ringzero/pkg/metric"
	"github.com/ringzero-os/ringzero/pkg/pic"
	"github.com/ringzero-os/ringzero/pkg/ring0"
	"github.com/ringzero-os/ringzero/pkg/sim"
	"github.com/ringzero-os/ringzero/pkg/vga"
)

// recordingDisplay records calls in order.
type recordingDisplay struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingDisplay) Write(s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "write "+s)
}

func (r *recordingDisplay) SetColors(fg, bg vga.Color) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "colors "+fg.String()+" on "+bg.String())
}

type env struct {
	d        *Dispatcher
	table    *ring0.GateTable
	handlers *Registry
	cpu      *sim.CPU
	bus      *sim.Bus
	display  *recordingDisplay
	metrics  *Metrics
}

// newEnv binds every vector, initializes a PIC on a simulated bus and
// returns a dispatcher over them. register is called before the registry
// is sealed.
func newEnv(t *testing.T, register func(r *Registry)) *env {
	t.Helper()
	table := ring0.NewGateTable()
	for v := ring0.Vector(0); v < ring0.NumVectors; v++ {
		if err := table.Bind(v, 0x1000+16*uint64(v), ring0.KernelCodeSelector, ring0.Present, ring0.DisableInterrupts); err != nil {
			t.Fatalf("Bind(%d) failed: %v", v, err)
		}
	}
	bus := sim.NewBus()
	sim.NewPIC().AttachTo(bus)
	pair, err := pic.New(ioport.NewSpace(bus))
	if err != nil {
		t.Fatalf("pic.New failed: %v", err)
	}
	if err := pair.Init(pic.DefaultMasterOffset, pic.DefaultSlaveOffset); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	bus.ResetTrace()

	handlers := NewRegistry()
	if register != nil {
		register(handlers)
	}
	handlers.Seal()

	e := &env{
		table:    table,
		handlers: handlers,
		cpu:      sim.NewCPU(),
		bus:      bus,
		display:  &recordingDisplay{},
		metrics:  NewMetrics(metric.NewRegistry("")),
	}
	e.cpu.EnableInterrupts()
	e.d, err = New(Config{
		Gates:    table,
		Handlers: handlers,
		CPU:      e.cpu,
		Display:  e.display,
		PIC:      pair,
		Metrics:  e.metrics,
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return e
}

func eoi(addr ioport.Addr) sim.Access {
	return sim.Access{Op: sim.Write, Addr: addr, Value: pic.CmdEOI}
}

func TestExceptionHalts(t *testing.T) {
	for _, tc := range []struct {
		name    string
		frame   *Frame
		message string
	}{
		{
			name:    "divide by zero",
			frame:   NewFrame(ring0.DivideByZero, 0),
			message: "\nException: unhandled interrupt \"divide by zero\" - halting\n",
		},
		{
			name:    "general protection",
			frame:   NewFrame(ring0.GeneralProtectionFault, 16),
			message: "\nException: unhandled interrupt \"general protection fault\" (err:16) - halting\n",
		},
		{
			name:    "page fault",
			frame:   NewFrame(ring0.PageFault, 2),
			message: "\nException: unhandled interrupt \"page fault\" (err:2) - halting\n",
		},
		{
			name:    "reserved",
			frame:   NewFrame(31, 0),
			message: "\nException: unhandled interrupt \"reserved exception 31\" - halting\n",
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			e := newEnv(t, nil)
			e.d.Dispatch(tc.frame)

			want := []string{"colors white on red", "write " + tc.message}
			if diff := cmp.Diff(want, e.display.calls); diff != "" {
				t.Errorf("display calls mismatch (-want +got):\n%s", diff)
			}
			if !e.d.Halted() || !e.cpu.Halted() {
				t.Errorf("dispatcher halted %v, CPU halted %v", e.d.Halted(), e.cpu.Halted())
			}
			if e.cpu.InterruptsEnabled() {
				t.Errorf("interrupts still enabled after fatal fault")
			}
			if got := e.bus.Trace(); len(got) != 0 {
				t.Errorf("exception touched ports: %v", got)
			}
			f, ok := e.d.Fault()
			if !ok || f.Vector != tc.frame.Vector {
				t.Errorf("Fault = %+v, %v", f, ok)
			}
			if got := e.metrics.Fatal.Value(VectorValue(tc.frame.Vector)); got != 1 {
				t.Errorf("fatal count = %d, want 1", got)
			}
		})
	}
}

func TestHaltedIsTerminal(t *testing.T) {
	calls := 0
	e := newEnv(t, func(r *Registry) {
		if err := r.Register(33, HandlerFunc(func(*Frame) { calls++ })); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	})
	e.d.Dispatch(NewFrame(ring0.DivideByZero, 0))
	e.display.calls = nil

	e.d.Dispatch(NewFrame(33, 0))
	e.d.Dispatch(NewFrame(ring0.PageFault, 0))
	if calls != 0 {
		t.Errorf("handler invoked %d times after halt", calls)
	}
	if len(e.display.calls) != 0 {
		t.Errorf("display used after halt: %v", e.display.calls)
	}
	if got := e.bus.Trace(); len(got) != 0 {
		t.Errorf("ports touched after halt: %v", got)
	}
	if got := e.d.State(); got != Halted {
		t.Errorf("state = %v, want %v", got, Halted)
	}
}

func TestHandlerThenAcknowledge(t *testing.T) {
	var e *env
	var traceAtHandler []sim.Access
	var got *Frame
	e = newEnv(t, func(r *Registry) {
		h := HandlerFunc(func(f *Frame) {
			got = f
			traceAtHandler = e.bus.Trace()
		})
		if err := r.Register(33, h); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	})
	frame := NewFrame(33, 0)
	frame.RIP = 0xdead
	e.d.Dispatch(frame)

	if got != frame {
		t.Errorf("handler got %v, want %v", got, frame)
	}
	if len(traceAtHandler) != 0 {
		t.Errorf("acknowledged before the handler ran: %v", traceAtHandler)
	}
	if diff := cmp.Diff([]sim.Access{eoi(pic.MasterCommand)}, e.bus.Trace()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
	if e.d.Halted() {
		t.Errorf("dispatcher halted")
	}
	if got := e.metrics.Interrupts.Value("33"); got != 1 {
		t.Errorf("interrupt count = %d, want 1", got)
	}
	if got := e.metrics.Acknowledged.Value(); got != 1 {
		t.Errorf("EOI count = %d, want 1", got)
	}
}

func TestSlaveAcknowledge(t *testing.T) {
	e := newEnv(t, func(r *Registry) {
		if err := r.Register(44, HandlerFunc(func(*Frame) {})); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	})
	e.d.Dispatch(NewFrame(44, 0))
	want := []sim.Access{eoi(pic.SlaveCommand), eoi(pic.MasterCommand)}
	if diff := cmp.Diff(want, e.bus.Trace()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
}

func TestNonPICVectorNotAcknowledged(t *testing.T) {
	called := false
	e := newEnv(t, func(r *Registry) {
		if err := r.Register(0x80, HandlerFunc(func(*Frame) { called = true })); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	})
	e.d.Dispatch(NewFrame(0x80, 0))
	if !called {
		t.Errorf("handler not called")
	}
	if got := e.bus.Trace(); len(got) != 0 {
		t.Errorf("software vector touched ports: %v", got)
	}
}

func TestHandlerPanic(t *testing.T) {
	e := newEnv(t, func(r *Registry) {
		if err := r.Register(33, HandlerFunc(func(*Frame) { panic("boom") })); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	})
	e.d.Dispatch(NewFrame(33, 0))

	// The line is acknowledged exactly once before halting.
	if diff := cmp.Diff([]sim.Access{eoi(pic.MasterCommand)}, e.bus.Trace()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
	if !e.d.Halted() || !e.cpu.Halted() {
		t.Fatalf("handler panic did not halt")
	}
	f, _ := e.d.Fault()
	if !strings.Contains(f.Message, "panicked: boom") {
		t.Errorf("fault message = %q", f.Message)
	}
	if len(e.display.calls) != 2 || !strings.HasPrefix(e.display.calls[1], "write \nException: handler for") {
		t.Errorf("display calls = %q", e.display.calls)
	}
}

func TestSpurious(t *testing.T) {
	e := newEnv(t, nil)
	e.d.Dispatch(NewFrame(39, 0))
	e.d.Dispatch(NewFrame(39, 0))

	if e.d.Halted() {
		t.Fatalf("spurious interrupt halted the machine")
	}
	want := []sim.Access{eoi(pic.MasterCommand), eoi(pic.MasterCommand)}
	if diff := cmp.Diff(want, e.bus.Trace()); diff != "" {
		t.Errorf("port writes mismatch (-want +got):\n%s", diff)
	}
	if got := e.metrics.Spurious.Value("39"); got != 2 {
		t.Errorf("spurious count = %d, want 2", got)
	}
}

func TestNotPresentGate(t *testing.T) {
	called := false
	e := newEnv(t, func(r *Registry) {
		if err := r.Register(100, HandlerFunc(func(*Frame) { called = true })); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	})
	if err := e.table.Bind(100, 0x2000, ring0.KernelCodeSelector, ring0.NotPresent); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	e.d.Dispatch(NewFrame(100, 0))

	if called {
		t.Errorf("handler invoked through a gate that is not present")
	}
	f, ok := e.d.Fault()
	if !ok {
		t.Fatalf("no fault recorded")
	}
	want := Fault{
		Vector:       ring0.SegmentNotPresent,
		ErrorCode:    100<<3 | 2,
		HasErrorCode: true,
		Message:      "unhandled interrupt \"segment not present\" (err:802)",
	}
	if diff := cmp.Diff(want, f); diff != "" {
		t.Errorf("fault mismatch (-want +got):\n%s", diff)
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h := HandlerFunc(func(*Frame) {})
	for _, tc := range []struct {
		name string
		v    ring0.Vector
		h    Handler
		want error
	}{
		{name: "ok", v: 32, h: h},
		{name: "last", v: 255, h: h},
		{name: "duplicate", v: 32, h: h, want: ErrAlreadyRegistered},
		{name: "exception", v: 0, h: h, want: ErrReservedVector},
		{name: "last exception", v: 31, h: h, want: ErrReservedVector},
		{name: "out of range", v: 256, h: h, want: ring0.ErrInvalidVector},
		{name: "nil", v: 40, want: ErrNilHandler},
	} {
		t.Run(tc.name, func(t *testing.T) {
			err := r.Register(tc.v, tc.h)
			if tc.want == nil && err != nil {
				t.Fatalf("Register failed: %v", err)
			}
			if !errors.Is(err, tc.want) {
				t.Errorf("Register got %v, want %v", err, tc.want)
			}
		})
	}
	if diff := cmp.Diff([]ring0.Vector{32, 255}, r.Vectors()); diff != "" {
		t.Errorf("vectors mismatch (-want +got):\n%s", diff)
	}

	r.Seal()
	if !r.Sealed() {
		t.Errorf("Sealed = false after Seal")
	}
	if err := r.Register(50, h); !errors.Is(err, ErrSealed) {
		t.Errorf("Register after Seal got %v, want %v", err, ErrSealed)
	}
	if r.Lookup(32) == nil || r.Lookup(50) != nil || r.Lookup(1000) != nil {
		t.Errorf("Lookup results wrong after Seal")
	}
}

func TestNewFrame(t *testing.T) {
	if f := NewFrame(ring0.DivideByZero, 7); f.HasErrorCode || f.ErrorCode != 0 {
		t.Errorf("NewFrame(DivideByZero, 7) = %+v, want no error code", f)
	}
	if f := NewFrame(ring0.DoubleFault, 0); !f.HasErrorCode {
		t.Errorf("NewFrame(DoubleFault, 0) = %+v, want an error code", f)
	}
}

func TestNewRequiresCollaborators(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Errorf("New with empty config succeeded")
	}
}
