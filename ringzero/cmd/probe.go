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
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/subcommands"

	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/ringzero/boot"
	"github.com/ringzero-os/ringzero/ringzero/cmd/util"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// Probe implements subcommands.Command for the "probe" command, which reads
// the PS/2 controller and PIC registers without reprogramming them.
type Probe struct {
	timeout time.Duration
}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "read the PS/2 controller and PIC state"
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return `probe [-timeout=DURATION] - reads PS/2 status and configuration and the PIC masks

With --platform=devport the real ports are read through /dev/port, which
requires root.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *Probe) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&p.timeout, "timeout", 5*time.Second, "give up waiting for the controller after this long.")
}

// Execute implements subcommands.Command.Execute.
func (p *Probe) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	hw, err := boot.NewHardware(conf)
	if err != nil {
		util.Fatalf("%v", err)
	}
	defer func() {
		if err := hw.Close(); err != nil {
			log.Warningf("Closing hardware: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	pr, err := boot.ProbeHardware(ctx, conf, hw)
	if err != nil {
		util.Fatalf("probing: %v", err)
	}
	fmt.Fprintf(os.Stdout, "platform:       %v\n", conf.Platform)
	fmt.Fprintf(os.Stdout, "ps2 status:     %#02x (output full %t, input full %t, aux %t)\n", uint8(pr.Status), pr.Status.OutputFull(), pr.Status.InputFull(), pr.Status.Aux())
	fmt.Fprintf(os.Stdout, "ps2 config:     %#02x\n", pr.Config)
	fmt.Fprintf(os.Stdout, "pic masks:      master %#02x, slave %#02x\n", pr.PICMasterMask, pr.PICSlaveMask)
	return subcommands.ExitSuccess
}
