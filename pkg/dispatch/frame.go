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
	"fmt"

	"github.com/ringzero-os/ringzero/pkg/ring0"
)

// Frame is the interrupted context pushed by the CPU on entry, plus the
// vector the trampoline was entered for.
type Frame struct {
	Vector       ring0.Vector
	ErrorCode    uint64
	HasErrorCode bool

	RIP    uint64
	CS     uint64
	RFLAGS uint64
	RSP    uint64
	SS     uint64
}

// NewFrame returns a frame for v. The error code is kept only if the CPU
// pushes one for v.
func NewFrame(v ring0.Vector, errorCode uint64) *Frame {
	f := &Frame{Vector: v}
	if v.HasErrorCode() {
		f.ErrorCode = errorCode
		f.HasErrorCode = true
	}
	return f
}

// String implements fmt.Stringer.
func (f *Frame) String() string {
	s := fmt.Sprintf("vector %d (%v) rip %#x cs %#x rflags %#x rsp %#x ss %#x",
		uintptr(f.Vector), f.Vector, f.RIP, f.CS, f.RFLAGS, f.RSP, f.SS)
	if f.HasErrorCode {
		s += fmt.Sprintf(" err %#x", f.ErrorCode)
	}
	return s
}

// Handler handles an interrupt.
type Handler interface {
	HandleInterrupt(f *Frame)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(f *Frame)

// HandleInterrupt implements Handler.HandleInterrupt.
func (fn HandlerFunc) HandleInterrupt(f *Frame) {
	fn(f)
}
