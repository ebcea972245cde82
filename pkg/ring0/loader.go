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

import (
	"encoding/binary"
	"reflect"
)

// DescriptorSize is the size of the lidt operand.
const DescriptorSize = 10

// Descriptor is the operand of lidt: the table's limit and base address.
type Descriptor struct {
	Limit uint16
	Base  uint64
}

// NewDescriptor returns the descriptor for t.
func NewDescriptor(t *GateTable) Descriptor {
	return Descriptor{
		Limit: uint16(t.Size() - 1),
		Base:  uint64(reflect.ValueOf(&t[0]).Pointer()),
	}
}

// MarshalBinary implements encoding.BinaryMarshaler. The result is packed:
// the base immediately follows the limit.
func (d Descriptor) MarshalBinary() ([]byte, error) {
	b := make([]byte, DescriptorSize)
	binary.LittleEndian.PutUint16(b[0:], d.Limit)
	binary.LittleEndian.PutUint64(b[2:], d.Base)
	return b, nil
}

// CPU is the set of privileged instructions the interrupt core needs.
type CPU interface {
	// LoadIDT loads the interrupt descriptor table register.
	LoadIDT(d Descriptor)

	// EnableInterrupts sets the interrupt flag.
	EnableInterrupts()

	// DisableInterrupts clears the interrupt flag.
	DisableInterrupts()

	// InterruptsEnabled returns the interrupt flag.
	InterruptsEnabled() bool

	// Halt stops the CPU. On hardware with interrupts disabled it never
	// returns.
	Halt()
}

// Install loads t as the CPU's interrupt table.
//
// Precondition: t is fully populated and is never moved or released
// afterwards; the CPU keeps only its address.
func Install(cpu CPU, t *GateTable) {
	cpu.LoadIDT(NewDescriptor(t))
}
