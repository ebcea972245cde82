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

package cmd

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"github.com/ringzero-os/ringzero/pkg/dispatch"
	"github.com/ringzero-os/ringzero/pkg/ring0"
	"github.com/ringzero-os/ringzero/ringzero/cmd/util"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// IDT implements subcommands.Command for the "idt" command, which boots a
// simulated machine and dumps its gate table.
type IDT struct {
	vector int
	raw    bool
}

// Name implements subcommands.Command.Name.
func (*IDT) Name() string {
	return "idt"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*IDT) Synopsis() string {
	return "dump the interrupt descriptor table"
}

// Usage implements subcommands.Command.Usage.
func (*IDT) Usage() string {
	return `idt [-vector=N] [-raw] - prints the gate table installed at boot
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (i *IDT) SetFlags(f *flag.FlagSet) {
	f.IntVar(&i.vector, "vector", -1, "print only this vector.")
	f.BoolVar(&i.raw, "raw", false, "print the table as the CPU reads it, in hex.")
}

// Execute implements subcommands.Command.Execute.
func (i *IDT) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	m, err := bootSim(ctx, conf)
	if err != nil {
		util.Fatalf("booting: %v", err)
	}
	if err := i.write(os.Stdout, m.Table(), m.Handlers()); err != nil {
		util.Fatalf("writing table: %v", err)
	}
	return subcommands.ExitSuccess
}

func (i *IDT) write(w io.Writer, t *ring0.GateTable, handlers *dispatch.Registry) error {
	first, last := ring0.Vector(0), ring0.Vector(ring0.NumVectors-1)
	if i.vector >= 0 {
		if i.vector >= ring0.NumVectors {
			return fmt.Errorf("%w: %d", ring0.ErrInvalidVector, i.vector)
		}
		first, last = ring0.Vector(i.vector), ring0.Vector(i.vector)
	}

	if i.raw {
		b := t.Bytes()
		_, err := io.WriteString(w, hex.Dump(b[first*ring0.GateEntrySize:(last+1)*ring0.GateEntrySize]))
		return err
	}

	d := ring0.NewDescriptor(t)
	fmt.Fprintf(w, "IDTR base %#x limit %#x\n", d.Base, d.Limit)
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	fmt.Fprintln(tw, "VECTOR\tNAME\tTARGET\tSEL\tTYPE\tDPL\tIST\tHANDLER")
	for v := first; v <= last; v++ {
		g, err := t.Entry(v)
		if err != nil {
			return err
		}
		kind := "interrupt"
		if g.InterruptsEnabled() {
			kind = "trap"
		}
		if !g.Present() {
			kind = "absent"
		}
		fmt.Fprintf(tw, "%d\t%v\t%#x\t%#x\t%s\t%d\t%d\t%s\n",
			uintptr(v), v, g.Target(), g.Selector(), kind, g.DPL(), g.StackIndex(), handlerKind(v, handlers))
	}
	return tw.Flush()
}

func handlerKind(v ring0.Vector, handlers *dispatch.Registry) string {
	switch {
	case v.IsException():
		return "fatal"
	case handlers.Lookup(v) != nil:
		return "device"
	default:
		return "spurious"
	}
}
