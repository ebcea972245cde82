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

package ring0

import "fmt"

// Vector is an interrupt vector number.
type Vector uintptr

// Exception vectors.
const (
	DivideByZero Vector = iota
	Debug
	NMI
	Breakpoint
	Overflow
	BoundRangeExceeded
	InvalidOpcode
	DeviceNotAvailable
	DoubleFault
	CoprocessorSegmentOverrun
	InvalidTSS
	SegmentNotPresent
	StackSegmentFault
	GeneralProtectionFault
	PageFault
	_
	X87FloatingPointException
	AlignmentCheck
	MachineCheck
	SIMDFloatingPointException
	VirtualizationException
	ControlProtectionException
	_
	_
	_
	_
	_
	_
	HypervisorInjectionException
	VMMCommunicationException
	SecurityException
)

const (
	// NumExceptions is the number of vectors reserved by the CPU for
	// exceptions. Device interrupts must be remapped above this range.
	NumExceptions = 32

	// NumVectors is the architectural size of the interrupt table.
	NumVectors = 256
)

var exceptionNames = [NumExceptions]string{
	DivideByZero:                 "divide by zero",
	Debug:                        "debug",
	NMI:                          "non-maskable interrupt",
	Breakpoint:                   "breakpoint",
	Overflow:                     "overflow",
	BoundRangeExceeded:           "bound range exceeded",
	InvalidOpcode:                "invalid opcode",
	DeviceNotAvailable:           "device not available",
	DoubleFault:                  "double fault",
	CoprocessorSegmentOverrun:    "coprocessor segment overrun",
	InvalidTSS:                   "invalid TSS",
	SegmentNotPresent:            "segment not present",
	StackSegmentFault:            "stack-segment fault",
	GeneralProtectionFault:       "general protection fault",
	PageFault:                    "page fault",
	X87FloatingPointException:    "x87 floating-point exception",
	AlignmentCheck:               "alignment check",
	MachineCheck:                 "machine check",
	SIMDFloatingPointException:   "SIMD floating-point exception",
	VirtualizationException:      "virtualization exception",
	ControlProtectionException:   "control protection exception",
	HypervisorInjectionException: "hypervisor injection exception",
	VMMCommunicationException:    "VMM communication exception",
	SecurityException:            "security exception",
}

// IsException returns true if v is one of the CPU-reserved vectors.
func (v Vector) IsException() bool {
	return v < NumExceptions
}

// HasErrorCode returns true if the CPU pushes an error code when raising v.
func (v Vector) HasErrorCode() bool {
	switch v {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck,
		ControlProtectionException, VMMCommunicationException, SecurityException:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (v Vector) String() string {
	if v.IsException() {
		if name := exceptionNames[v]; name != "" {
			return name
		}
		return fmt.Sprintf("reserved exception %d", uintptr(v))
	}
	return fmt.Sprintf("irq vector %d", uintptr(v))
}
