// Copyright 2020 The gVisor Authors.
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

// Package config provides basic infrastructure to set configuration settings
// for ringzero. Each setting that can be changed from the command line must
// be registered in RegisterFlags, and a Config field tagged with the flag
// name holds its value.
package config

import (
	"fmt"
	"reflect"

	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/pic"
	"github.com/ringzero-os/ringzero/pkg/ring0"
)

// Config holds configuration that is not part of the machine itself.
type Config struct {
	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log"`

	// LogFormat is the log format.
	LogFormat string `flag:"log-format"`

	// Platform selects the port bus: a simulated machine, or /dev/port.
	Platform PlatformType `flag:"platform"`

	// DevPortPath is the port device used with the devport platform.
	DevPortPath string `flag:"devport-path"`

	// DevPortLock is the lock file guarding DevPortPath.
	DevPortLock string `flag:"devport-lock"`

	// PICMasterOffset is the vector of master IRQ 0.
	PICMasterOffset uint `flag:"pic-master-offset"`

	// PICSlaveOffset is the vector of slave IRQ 8.
	PICSlaveOffset uint `flag:"pic-slave-offset"`

	// PS2PollLimit bounds each PS/2 status wait. 0 waits forever.
	PS2PollLimit int `flag:"ps2-poll-limit"`

	// TrampolineBase is the address of the entry stub for vector 0. Stubs
	// are TrampolineStride bytes apart.
	TrampolineBase uint64 `flag:"trampoline-base"`

	// EchoTicks writes "clock " on every timer interrupt.
	EchoTicks bool `flag:"echo-ticks"`
}

// TrampolineStride is the distance between two entry stubs.
const TrampolineStride = 16

// Log formats.
var logFormats = map[string]struct{}{
	"text":     {},
	"json":     {},
	"json-k8s": {},
}

func (c *Config) validate() error {
	if _, ok := logFormats[c.LogFormat]; !ok {
		return fmt.Errorf("invalid log format %q, must be 'text', 'json', or 'json-k8s'", c.LogFormat)
	}
	if err := pic.ValidateOffsets(ring0.Vector(c.PICMasterOffset), ring0.Vector(c.PICSlaveOffset)); err != nil {
		return fmt.Errorf("pic-master-offset=%d pic-slave-offset=%d: %w", c.PICMasterOffset, c.PICSlaveOffset, err)
	}
	if c.PS2PollLimit < 0 {
		return fmt.Errorf("ps2-poll-limit must be positive or 0, got %d", c.PS2PollLimit)
	}
	if c.TrampolineBase%TrampolineStride != 0 {
		return fmt.Errorf("trampoline-base %#x is not %d byte aligned", c.TrampolineBase, TrampolineStride)
	}
	if last := c.TrampolineBase + TrampolineStride*(ring0.NumVectors-1); last < c.TrampolineBase {
		return fmt.Errorf("trampoline-base %#x overflows the address space", c.TrampolineBase)
	}
	if c.Platform == PlatformDevPort && c.DevPortPath == "" {
		return fmt.Errorf("platform %v requires devport-path", c.Platform)
	}
	return nil
}

// Trampoline returns the entry stub address for v.
func (c *Config) Trampoline(v ring0.Vector) uint64 {
	return c.TrampolineBase + TrampolineStride*uint64(v)
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Platform: %v", c.Platform)
	log.Infof("PIC offsets: master %d, slave %d", c.PICMasterOffset, c.PICSlaveOffset)
	log.Debugf("Config: %s", c)
}

// String implements fmt.Stringer. It lists every flag field.
func (c *Config) String() string {
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	s := "{"
	for i := 0; i < st.NumField(); i++ {
		name, ok := st.Field(i).Tag.Lookup("flag")
		if !ok {
			continue
		}
		if len(s) > 1 {
			s += " "
		}
		s += name + "=" + getVal(obj.Field(i))
	}
	return s + "}"
}

// PlatformType tells which bus the machine's ports are wired to.
type PlatformType int

const (
	// PlatformSim runs against the simulated chipset in pkg/sim.
	PlatformSim PlatformType = iota

	// PlatformDevPort reads and writes real ports through /dev/port.
	PlatformDevPort
)

func platformTypePtr(v PlatformType) *PlatformType {
	return &v
}

// Set implements flag.Value.
func (p *PlatformType) Set(v string) error {
	switch v {
	case "sim":
		*p = PlatformSim
	case "devport":
		*p = PlatformDevPort
	default:
		return fmt.Errorf("invalid platform type %q", v)
	}
	return nil
}

// Get implements flag.Getter.
func (p *PlatformType) Get() any {
	return *p
}

// String implements flag.Value.
func (p PlatformType) String() string {
	switch p {
	case PlatformSim:
		return "sim"
	case PlatformDevPort:
		return "devport"
	}
	panic(fmt.Sprintf("Invalid platform type %d", p))
}
