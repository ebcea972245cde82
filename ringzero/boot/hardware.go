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
	"context"
	"fmt"

	"github.com/ringzero-os/ringzero/pkg/cleanup"
	"github.com/ringzero-os/ringzero/pkg/ioport"
	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/pic"
	"github.com/ringzero-os/ringzero/pkg/ps2"
	"github.com/ringzero-os/ringzero/pkg/ring0"
	"github.com/ringzero-os/ringzero/pkg/sim"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// Hardware is what a Machine runs on: a port bus and a processor.
type Hardware struct {
	// Bus carries port I/O.
	Bus ioport.Bus

	// CPU executes the privileged instructions.
	CPU ring0.CPU

	// PIC and PS2 are the simulated chips behind Bus. They are nil when Bus
	// is real hardware, and then interrupts cannot be injected.
	PIC *sim.PIC
	PS2 *sim.Controller8042

	// Trace is the simulated bus, for inspecting port accesses.
	Trace *sim.Bus

	close func() error
}

// NewSimHardware returns a simulated chipset: a 8259 pair and a 8042
// controller on a traced bus, and a processor with interrupts disabled.
func NewSimHardware() *Hardware {
	bus := sim.NewBus()
	p := sim.NewPIC()
	p.AttachTo(bus)
	kbc := sim.NewController8042()
	kbc.AttachTo(bus)
	return &Hardware{
		Bus:   bus,
		CPU:   sim.NewCPU(),
		PIC:   p,
		PS2:   kbc,
		Trace: bus,
	}
}

// NewHardware creates the hardware selected by conf.Platform.
//
// The processor is always simulated: a user process cannot load an IDT or
// change the interrupt flag.
func NewHardware(conf *config.Config) (*Hardware, error) {
	switch conf.Platform {
	case config.PlatformSim:
		log.Infof("Platform: sim")
		return NewSimHardware(), nil
	case config.PlatformDevPort:
		log.Infof("Platform: devport, %q", conf.DevPortPath)
		dp, err := ioport.OpenDevPort(conf.DevPortPath, conf.DevPortLock)
		if err != nil {
			return nil, fmt.Errorf("error opening port device: %w", err)
		}
		return &Hardware{
			Bus:   dp,
			CPU:   sim.NewCPU(),
			close: dp.Close,
		}, nil
	default:
		return nil, fmt.Errorf("invalid platform %v", conf.Platform)
	}
}

// Simulated returns true if interrupts can be injected.
func (hw *Hardware) Simulated() bool {
	return hw.PIC != nil && hw.PS2 != nil
}

// Close releases the hardware.
func (hw *Hardware) Close() error {
	if hw.close == nil {
		return nil
	}
	return hw.close()
}

// Probe is a read-mostly look at the controller behind hw: one status read,
// then the configuration byte. It does not reprogram anything.
type Probe struct {
	Status ps2.Status
	Config uint8

	// PICMasterMask and PICSlaveMask are the interrupt mask registers.
	PICMasterMask, PICSlaveMask uint8
}

// ProbeHardware reads the PS/2 status and configuration and the PIC masks.
func ProbeHardware(ctx context.Context, conf *config.Config, hw *Hardware) (Probe, error) {
	space := ioport.NewSpace(hw.Bus)
	ctrl, err := ps2.New(space, ps2.Options{PollLimit: conf.PS2PollLimit})
	if err != nil {
		return Probe{}, fmt.Errorf("error claiming PS/2 ports: %w", err)
	}
	ports, err := space.ClaimAll(pic.MasterData, pic.SlaveData)
	if err != nil {
		return Probe{}, fmt.Errorf("error claiming PIC ports: %w", err)
	}

	var pr Probe
	pr.Status = ctrl.Status()
	pr.PICMasterMask = ports[0].Read()
	pr.PICSlaveMask = ports[1].Read()
	cu := cleanup.Make(func() {
		log.Warningf("Probe incomplete: status %v, masks %#02x/%#02x", pr.Status, pr.PICMasterMask, pr.PICSlaveMask)
	})
	defer cu.Clean()

	if pr.Config, err = ctrl.Config(ctx); err != nil {
		return pr, fmt.Errorf("error reading PS/2 configuration: %w", err)
	}
	cu.Release()
	return pr, nil
}
