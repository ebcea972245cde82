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
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewGateEntry(t *testing.T) {
	g := NewGateEntry()
	if g.Present() {
		t.Errorf("new gate is present")
	}
	if got, want := g.Reserved(), uint16(0b111); got != want {
		t.Errorf("Reserved(): got %#b, wanted %#b", got, want)
	}
	if got, want := g.Options(), uint16(0x0e00); got != want {
		t.Errorf("Options(): got %#x, wanted %#x", got, want)
	}
}

// fields is the decoded view of an options word.
type fields struct {
	Present    bool
	Trap       bool
	DPL        uint8
	StackIndex uint8
	Reserved   uint16
}

func decode(g GateEntry) fields {
	return fields{
		Present:    g.Present(),
		Trap:       g.InterruptsEnabled(),
		DPL:        g.DPL(),
		StackIndex: g.StackIndex(),
		Reserved:   g.Reserved(),
	}
}

func TestSetOptionIndependent(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	opts := []GateOption{Present, NotPresent, DisableInterrupts, EnableInterrupts, User, Supervisor}
	for iter := 0; iter < 500; iter++ {
		g := NewGateEntry()
		want := fields{Reserved: 0b111}
		for n := r.Intn(20); n > 0; n-- {
			var o GateOption
			if i := r.Intn(len(opts) + 1); i < len(opts) {
				o = opts[i]
			} else {
				o = StackIndex(uint16(r.Intn(MaxStackIndex + 1)))
			}
			g.SetOption(o)
			switch o {
			case Present:
				want.Present = true
			case NotPresent:
				want.Present = false
			case DisableInterrupts:
				want.Trap = false
			case EnableInterrupts:
				want.Trap = true
			case User:
				want.DPL = DPLUser
			case Supervisor:
				want.DPL = DPLSupervisor
			default:
				want.StackIndex = uint8(o.index)
			}
			if diff := cmp.Diff(want, decode(g)); diff != "" {
				t.Fatalf("after %v (-want +got):\n%s", o, diff)
			}
		}
	}
}

func TestSetOptionStackIndexTruncates(t *testing.T) {
	g := NewGateEntry()
	g.SetOption(Present)
	g.SetOption(StackIndex(0xf))
	if got, want := g.StackIndex(), uint8(7); got != want {
		t.Errorf("StackIndex(): got %d, wanted %d", got, want)
	}
	if !g.Present() || g.Reserved() != 0b111 {
		t.Errorf("neighbouring fields disturbed: %v", g)
	}
}

func TestMarshalLayout(t *testing.T) {
	tbl := NewGateTable()
	if err := tbl.Bind(PageFault, 0x1122334455667788, KernelCodeSelector, Present, User, StackIndex(1)); err != nil {
		t.Fatalf("Bind failed: %v", err)
	}
	g, err := tbl.Entry(PageFault)
	if err != nil {
		t.Fatalf("Entry failed: %v", err)
	}
	b, err := g.MarshalBinary()
	if err != nil {
		t.Fatalf("MarshalBinary failed: %v", err)
	}
	want := []byte{
		0x88, 0x77, // offset 15:0
		0x08, 0x00, // selector
		0x01, 0xee, // ist=1, type=0xe, dpl=3, present
		0x66, 0x55, // offset 31:16
		0x44, 0x33, 0x22, 0x11, // offset 63:32
		0x00, 0x00, 0x00, 0x00, // reserved
	}
	if diff := cmp.Diff(want, b); diff != "" {
		t.Errorf("MarshalBinary (-want +got):\n%s", diff)
	}

	var back GateEntry
	if err := back.UnmarshalBinary(b); err != nil {
		t.Fatalf("UnmarshalBinary failed: %v", err)
	}
	if back != g {
		t.Errorf("UnmarshalBinary: got %v, wanted %v", back, g)
	}

	all := tbl.Bytes()
	if got, want := len(all), NumVectors*GateEntrySize; got != want {
		t.Fatalf("Bytes(): got %d bytes, wanted %d", got, want)
	}
	if diff := cmp.Diff(want, all[int(PageFault)*GateEntrySize:][:GateEntrySize]); diff != "" {
		t.Errorf("Bytes() slot for PageFault (-want +got):\n%s", diff)
	}
}

func TestUnmarshalRejectsReservedBits(t *testing.T) {
	var g GateEntry
	if err := g.UnmarshalBinary(make([]byte, GateEntrySize)); !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("UnmarshalBinary(zeroes): got %v, wanted %v", err, ErrMalformedEntry)
	}
	if err := g.UnmarshalBinary(make([]byte, 8)); !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("UnmarshalBinary(short): got %v, wanted %v", err, ErrMalformedEntry)
	}
}

func TestBindErrors(t *testing.T) {
	tbl := NewGateTable()
	if err := tbl.Bind(NumVectors, 0, KernelCodeSelector, Present); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("Bind(256): got %v, wanted %v", err, ErrInvalidVector)
	}
	if err := tbl.Bind(0x21, 0xdead, KernelCodeSelector, Present, StackIndex(8)); !errors.Is(err, ErrMalformedEntry) {
		t.Errorf("Bind(StackIndex(8)): got %v, wanted %v", err, ErrMalformedEntry)
	}
	// A rejected bind leaves the slot untouched.
	if g, _ := tbl.Entry(0x21); g != NewGateEntry() {
		t.Errorf("failed Bind modified the table: %v", g)
	}
	if _, err := tbl.Entry(300); !errors.Is(err, ErrInvalidVector) {
		t.Errorf("Entry(300): got %v, wanted %v", err, ErrInvalidVector)
	}
}

func TestBindLastVector(t *testing.T) {
	tbl := NewGateTable()
	if err := tbl.Bind(NumVectors-1, 0xffffffff80001000, KernelCodeSelector, Present, EnableInterrupts); err != nil {
		t.Fatalf("Bind(255) failed: %v", err)
	}
	g, _ := tbl.Entry(NumVectors - 1)
	if !g.Present() || !g.InterruptsEnabled() || g.Target() != 0xffffffff80001000 {
		t.Errorf("Entry(255) = %v", g)
	}
}

func TestVectorNames(t *testing.T) {
	for _, tc := range []struct {
		v       Vector
		name    string
		errCode bool
	}{
		{DivideByZero, "divide by zero", false},
		{DoubleFault, "double fault", true},
		{GeneralProtectionFault, "general protection fault", true},
		{PageFault, "page fault", true},
		{MachineCheck, "machine check", false},
		{SecurityException, "security exception", true},
		{15, "reserved exception 15", false},
		{0x21, "irq vector 33", false},
	} {
		if got := tc.v.String(); got != tc.name {
			t.Errorf("Vector(%d).String(): got %q, wanted %q", uintptr(tc.v), got, tc.name)
		}
		if got := tc.v.HasErrorCode(); got != tc.errCode {
			t.Errorf("Vector(%d).HasErrorCode(): got %t, wanted %t", uintptr(tc.v), got, tc.errCode)
		}
	}
}
