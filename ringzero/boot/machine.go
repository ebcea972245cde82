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

// Package boot brings up the interrupt core of a machine: the gate table,
// the interrupt controllers and the PS/2 controller, and the dispatcher that
// ties them to device handlers.
package boot

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ringzero-os/ringzero/pkg/devices"
	"github.com/ringzero-os/ringzero/pkg/dispatch"
	"github.com/ringzero-os/ringzero/pkg/ioport"
	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/metric"
	"github.com/ringzero-os/ringzero/pkg/pic"
	"github.com/ringzero-os/ringzero/pkg/ps2"
	"github.com/ringzero-os/ringzero/pkg/ring0"
	"github.com/ringzero-os/ringzero/pkg/vga"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// MetricPrefix is prepended to every exported metric name.
const MetricPrefix = "ringzero_"

// ErrNotSimulated is returned when injecting events into real hardware.
var ErrNotSimulated = errors.New("hardware is not simulated")

// Interrupted-context values given to handlers.
const (
	flagsReserved  = 1 << 1
	flagsInterrupt = 1 << 9
)

// Machine keeps the state of a booted machine. It owns the gate table for
// the machine's lifetime: the CPU's IDTR points into it.
type Machine struct {
	conf *config.Config
	hw   *Hardware

	// table is the installed gate table.
	table *ring0.GateTable

	pic        *pic.Pair
	ps2        *ps2.Controller
	handshake  ps2.Handshake
	handlers   *dispatch.Registry
	dispatcher *dispatch.Dispatcher

	screen  *vga.Screen
	timer   *devices.Timer
	input   *devices.Input
	metrics *metric.Registry

	// mu serializes delivery. The simulated processor takes one interrupt
	// at a time.
	mu sync.Mutex
}

// Boot builds and installs the gate table, remaps the PIC pair, brings up
// the PS/2 controller, and finally enables interrupts.
//
// Configuration errors are returned before the table is installed.
func Boot(ctx context.Context, conf *config.Config, hw *Hardware) (*Machine, error) {
	if err := pic.ValidateOffsets(masterOffset(conf), slaveOffset(conf)); err != nil {
		return nil, fmt.Errorf("error validating configuration: %w", err)
	}
	m := &Machine{
		conf:     conf,
		hw:       hw,
		screen:   vga.NewScreen(),
		handlers: dispatch.NewRegistry(),
		metrics:  metric.NewRegistry(MetricPrefix),
	}
	protocolErrors := m.metrics.MustCreateNewUint64Metric("ps2_protocol_errors_total", "PS/2 controller replies other than the expected acknowledgment.")

	// Create the gate table.
	table, err := newGateTable(conf)
	if err != nil {
		return nil, fmt.Errorf("error creating gate table: %w", err)
	}
	m.table = table

	// Claim the ports.
	space := ioport.NewSpace(hw.Bus)
	if m.pic, err = pic.New(space); err != nil {
		return nil, fmt.Errorf("error claiming PIC ports: %w", err)
	}
	if m.ps2, err = ps2.New(space, ps2.Options{PollLimit: conf.PS2PollLimit}); err != nil {
		return nil, fmt.Errorf("error claiming PS/2 ports: %w", err)
	}

	// Register device handlers.
	devMetrics := devices.NewMetrics(m.metrics)
	m.timer = devices.NewTimer(m.screen, conf.EchoTicks, devMetrics)
	m.input = devices.NewInput(m.ps2, m.screen, devMetrics)
	for irq, h := range map[pic.IRQ]dispatch.Handler{
		devices.TimerIRQ:    m.timer,
		devices.KeyboardIRQ: m.input,
		devices.MouseIRQ:    m.input,
	} {
		if err := m.handlers.Register(irqVector(conf, irq), h); err != nil {
			return nil, fmt.Errorf("error registering IRQ %d: %w", irq, err)
		}
	}
	m.handlers.Seal()

	m.dispatcher, err = dispatch.New(dispatch.Config{
		Gates:    m.table,
		Handlers: m.handlers,
		CPU:      hw.CPU,
		Display:  m.screen,
		PIC:      m.pic,
		Metrics:  dispatch.NewMetrics(m.metrics),
	})
	if err != nil {
		return nil, fmt.Errorf("error creating dispatcher: %w", err)
	}

	// Nothing can fail before this point but configuration. From here on
	// the hardware is being reprogrammed.
	ring0.Install(hw.CPU, m.table)
	log.Infof("Gate table installed: %d vectors at %#x", ring0.NumVectors, ring0.NewDescriptor(m.table).Base)

	if err := m.pic.Init(masterOffset(conf), slaveOffset(conf)); err != nil {
		return nil, fmt.Errorf("error initializing PIC: %w", err)
	}

	m.handshake, err = m.ps2.BringUp(ctx)
	protocolErrors.IncrementBy(uint64(len(m.handshake.Errors)))
	if err != nil {
		return nil, fmt.Errorf("error bringing up PS/2 controller: %w", err)
	}

	hw.CPU.EnableInterrupts()
	log.Infof("Interrupts enabled")
	return m, nil
}

func masterOffset(conf *config.Config) ring0.Vector {
	return ring0.Vector(conf.PICMasterOffset)
}

func slaveOffset(conf *config.Config) ring0.Vector {
	return ring0.Vector(conf.PICSlaveOffset)
}

// irqVector returns the vector irq is remapped to.
func irqVector(conf *config.Config, irq pic.IRQ) ring0.Vector {
	if irq.OnSlave() {
		return slaveOffset(conf) + ring0.Vector(irq-pic.LinesPerChip)
	}
	return masterOffset(conf) + ring0.Vector(irq)
}

// newGateTable binds every vector to its entry stub. All gates are
// interrupt gates in the kernel code segment; breakpoint and overflow can
// be raised from user mode.
func newGateTable(conf *config.Config) (*ring0.GateTable, error) {
	t := ring0.NewGateTable()
	for v := ring0.Vector(0); v < ring0.NumVectors; v++ {
		dpl := ring0.Supervisor
		switch v {
		case ring0.Breakpoint, ring0.Overflow:
			dpl = ring0.User
		}
		if err := t.Bind(v, conf.Trampoline(v), ring0.KernelCodeSelector, ring0.Present, ring0.DisableInterrupts, dpl); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// Table returns the installed gate table.
func (m *Machine) Table() *ring0.GateTable {
	return m.table
}

// Screen returns the text screen.
func (m *Machine) Screen() *vga.Screen {
	return m.screen
}

// Dispatcher returns the dispatcher.
func (m *Machine) Dispatcher() *dispatch.Dispatcher {
	return m.dispatcher
}

// Handlers returns the sealed handler registry.
func (m *Machine) Handlers() *dispatch.Registry {
	return m.handlers
}

// PIC returns the interrupt controller pair.
func (m *Machine) PIC() *pic.Pair {
	return m.pic
}

// Handshake returns the PS/2 bring-up record.
func (m *Machine) Handshake() ps2.Handshake {
	return m.handshake
}

// Metrics returns the machine's metrics.
func (m *Machine) Metrics() *metric.Registry {
	return m.metrics
}

// Timer returns the IRQ0 handler.
func (m *Machine) Timer() *devices.Timer {
	return m.timer
}

// Input returns the IRQ1 and IRQ12 handler.
func (m *Machine) Input() *devices.Input {
	return m.input
}

// Hardware returns the hardware the machine runs on.
func (m *Machine) Hardware() *Hardware {
	return m.hw
}

// Halted returns true once a fatal fault halted the machine.
func (m *Machine) Halted() bool {
	return m.dispatcher.Halted()
}

// Interrupt raises IRQ line irq on the simulated PIC. The interrupt is
// delivered only if the processor has interrupts enabled and the PIC lets
// the line through; it returns whether it was.
func (m *Machine) Interrupt(irq pic.IRQ) (bool, error) {
	if !m.hw.Simulated() {
		return false, ErrNotSimulated
	}
	if irq >= pic.NumIRQs {
		return false, fmt.Errorf("%w: %d", pic.ErrInvalidIRQ, irq)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dispatcher.Halted() || !m.hw.CPU.InterruptsEnabled() {
		return false, nil
	}
	v, ok := m.hw.PIC.Raise(uint8(irq))
	if !ok {
		return false, nil
	}
	m.deliverLocked(dispatch.NewFrame(ring0.Vector(v), 0))
	return true, nil
}

// Fault raises exception v. Exceptions are not maskable. errorCode is
// ignored for vectors that do not push one.
func (m *Machine) Fault(v ring0.Vector, errorCode uint64) error {
	if v >= ring0.NumVectors {
		return fmt.Errorf("%w: %d", ring0.ErrInvalidVector, uintptr(v))
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliverLocked(dispatch.NewFrame(v, errorCode))
	return nil
}

// deliverLocked enters the gate for f.Vector the way the CPU does: an
// interrupt gate clears the interrupt flag until the handler returns.
func (m *Machine) deliverLocked(f *dispatch.Frame) {
	cpu := m.hw.CPU
	enabled := cpu.InterruptsEnabled()
	f.CS = ring0.KernelCodeSelector
	f.RFLAGS = flagsReserved
	if enabled {
		f.RFLAGS |= flagsInterrupt
	}

	if g, err := m.table.Entry(f.Vector); err == nil && g.Present() && !g.InterruptsEnabled() {
		cpu.DisableInterrupts()
	}
	m.dispatcher.Dispatch(f)
	if enabled && !m.dispatcher.Halted() {
		cpu.EnableInterrupts()
	}
}
