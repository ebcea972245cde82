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

// Package ioport provides capabilities for x86 I/O port access.
//
// A Port is the only way to touch an I/O address. Ports are obtained from a
// Space, which hands out each address at most once, so two drivers can never
// alias the same register.
package ioport

import (
	"errors"
	"fmt"
	"sync"
)

// ErrPortClaimed is returned when an address already has an owner.
var ErrPortClaimed = errors.New("port already claimed")

// Addr is an I/O port address.
type Addr uint16

// String implements fmt.Stringer.
func (a Addr) String() string {
	return fmt.Sprintf("%#04x", uint16(a))
}

// Bus performs raw byte-wide port I/O.
type Bus interface {
	// In8 reads a byte from addr.
	In8(addr Addr) uint8

	// Out8 writes v to addr.
	Out8(addr Addr, v uint8)
}

// Port is the capability to access a single I/O address.
type Port struct {
	addr Addr
	bus  Bus

	// mu serializes accesses to the register.
	mu sync.Mutex
}

// Addr returns the port's address.
func (p *Port) Addr() Addr {
	return p.addr
}

// Read reads the register.
func (p *Port) Read() uint8 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.bus.In8(p.addr)
}

// Write writes v to the register.
func (p *Port) Write(v uint8) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bus.Out8(p.addr, v)
}

// Space is the I/O address space of one bus.
type Space struct {
	bus Bus

	mu      sync.Mutex
	claimed map[Addr]*Port
}

// NewSpace returns a Space backed by bus.
func NewSpace(bus Bus) *Space {
	return &Space{
		bus:     bus,
		claimed: make(map[Addr]*Port),
	}
}

// Claim returns the capability for addr. It fails if addr was claimed
// before.
func (s *Space) Claim(addr Addr) (*Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.claimed[addr]; ok {
		return nil, fmt.Errorf("%w: %v", ErrPortClaimed, addr)
	}
	p := &Port{addr: addr, bus: s.bus}
	s.claimed[addr] = p
	return p, nil
}

// ClaimAll claims every address in addrs, in order. On failure nothing is
// claimed.
func (s *Space) ClaimAll(addrs ...Addr) ([]*Port, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seen := make(map[Addr]bool, len(addrs))
	for _, a := range addrs {
		if _, ok := s.claimed[a]; ok || seen[a] {
			return nil, fmt.Errorf("%w: %v", ErrPortClaimed, a)
		}
		seen[a] = true
	}
	ports := make([]*Port, 0, len(addrs))
	for _, a := range addrs {
		p := &Port{addr: a, bus: s.bus}
		s.claimed[a] = p
		ports = append(ports, p)
	}
	return ports, nil
}

// Claimed returns true if addr has an owner.
func (s *Space) Claimed(addr Addr) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.claimed[addr]
	return ok
}
