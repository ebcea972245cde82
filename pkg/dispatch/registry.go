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
	"fmt"
	"sync"

	"github.com/ringzero-os/ringzero/pkg/ring0"
)

var (
	// ErrReservedVector is returned when registering a handler for a CPU
	// exception. Exceptions always go to the fatal path.
	ErrReservedVector = errors.New("vector reserved for exceptions")

	// ErrAlreadyRegistered is returned when a vector already has a handler.
	ErrAlreadyRegistered = errors.New("vector already has a handler")

	// ErrSealed is returned by Register after Seal.
	ErrSealed = errors.New("handler registry sealed")

	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("nil handler")
)

// Registry maps vectors to handlers. It is filled during boot and is
// read-only once sealed.
type Registry struct {
	mu       sync.RWMutex
	handlers [ring0.NumVectors]Handler
	sealed   bool
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register installs h for v.
func (r *Registry) Register(v ring0.Vector, h Handler) error {
	switch {
	case v >= ring0.NumVectors:
		return fmt.Errorf("%w: %d", ring0.ErrInvalidVector, uintptr(v))
	case v.IsException():
		return fmt.Errorf("%w: %d (%v)", ErrReservedVector, uintptr(v), v)
	case h == nil:
		return fmt.Errorf("%w: vector %d", ErrNilHandler, uintptr(v))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}
	if r.handlers[v] != nil {
		return fmt.Errorf("%w: %d", ErrAlreadyRegistered, uintptr(v))
	}
	r.handlers[v] = h
	return nil
}

// Seal makes the registry read-only.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed returns true after Seal.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Lookup returns the handler for v, or nil.
func (r *Registry) Lookup(v ring0.Vector) Handler {
	if v >= ring0.NumVectors {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.handlers[v]
}

// Vectors returns the vectors that have a handler, in ascending order.
func (r *Registry) Vectors() []ring0.Vector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var vs []ring0.Vector
	for v, h := range r.handlers {
		if h != nil {
			vs = append(vs, ring0.Vector(v))
		}
	}
	return vs
}
