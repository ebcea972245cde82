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
	"errors"
	"fmt"
)

var (
	// ErrInvalidVector is returned for vectors outside the table.
	ErrInvalidVector = errors.New("invalid vector")

	// ErrMalformedEntry is returned for gates that cannot be encoded.
	ErrMalformedEntry = errors.New("malformed gate entry")
)

// KernelCodeSelector is the GDT selector of the kernel code segment.
const KernelCodeSelector = 0x08

// GateTable is the interrupt descriptor table.
//
// The CPU reads it directly. Once installed it must stay where it is for
// the lifetime of the machine.
type GateTable [NumVectors]GateEntry

// NewGateTable returns a table with every gate not present.
func NewGateTable() *GateTable {
	t := &GateTable{}
	for v := range t {
		t[v] = NewGateEntry()
	}
	return t
}

// Bind points vector v at target through code segment selector, applying
// opts in order. The gate is assembled first and stored in one assignment,
// so a reader never sees half of it.
func (t *GateTable) Bind(v Vector, target uint64, selector uint16, opts ...GateOption) error {
	if v >= NumVectors {
		return fmt.Errorf("%w: %d", ErrInvalidVector, uintptr(v))
	}
	g := NewGateEntry()
	g.setTarget(target)
	g.selector = selector
	for _, o := range opts {
		if err := o.validate(); err != nil {
			return fmt.Errorf("vector %d: %w", uintptr(v), err)
		}
		g.SetOption(o)
	}
	t[v] = g
	return nil
}

// Entry returns the gate for v.
func (t *GateTable) Entry(v Vector) (GateEntry, error) {
	if v >= NumVectors {
		return GateEntry{}, fmt.Errorf("%w: %d", ErrInvalidVector, uintptr(v))
	}
	return t[v], nil
}

// Size returns the table size in bytes.
func (t *GateTable) Size() int {
	return len(t) * GateEntrySize
}

// Bytes returns the table in the CPU's format.
func (t *GateTable) Bytes() []byte {
	b := make([]byte, t.Size())
	for v := range t {
		t[v].put(b[v*GateEntrySize:])
	}
	return b
}
