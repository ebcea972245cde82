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
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/ringzero-os/ringzero/pkg/vga"
	"github.com/ringzero-os/ringzero/ringzero/boot"
	"github.com/ringzero-os/ringzero/ringzero/cmd/util"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// refreshInterval is how often the terminal is redrawn while events run.
const refreshInterval = 50 * time.Millisecond

// Boot implements subcommands.Command for the "boot" command, which boots a
// simulated machine, injects events into it and shows its screen.
type Boot struct {
	eventSource

	// render is auto, tcell or plain.
	render string

	// interval separates injected events.
	interval time.Duration

	// hold keeps the terminal screen up after the last event.
	hold time.Duration
}

// Name implements subcommands.Command.Name.
func (*Boot) Name() string {
	return "boot"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Boot) Synopsis() string {
	return "boot a simulated machine and inject events"
}

// Usage implements subcommands.Command.Usage.
func (*Boot) Usage() string {
	return `boot [flags] [event...] - boots a simulated machine, injects the events and shows the screen

Events are tick, keys:TEXT, mouse:DX,DY[,l|r|m], irq:N and fault:V[:ERR].
The exit status is 1 if the machine halted on a fault.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (b *Boot) SetFlags(f *flag.FlagSet) {
	b.setFlags(f)
	f.StringVar(&b.render, "render", "auto", "how to show the screen: tcell, plain, or auto (tcell if stdout is a terminal).")
	f.DurationVar(&b.interval, "interval", 0, "delay between injected events.")
	f.DurationVar(&b.hold, "hold", 2*time.Second, "how long the terminal screen stays up after the last event.")
}

// Execute implements subcommands.Command.Execute.
func (b *Boot) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	events, err := b.load(f.Args())
	if err != nil {
		f.Usage()
		util.Fatalf("parsing events: %v", err)
	}
	useTerminal, err := b.useTerminal()
	if err != nil {
		util.Fatalf("%v", err)
	}

	m, err := bootSim(ctx, conf)
	if err != nil {
		util.Fatalf("booting: %v", err)
	}

	if useTerminal {
		err = b.runTerminal(ctx, m, events)
	} else {
		if err = inject(ctx, m, events, b.interval); err == nil {
			err = writeRows(os.Stdout, m)
		}
	}
	if err != nil {
		util.Fatalf("running events: %v", err)
	}

	if fault, ok := m.Dispatcher().Fault(); ok {
		util.Infof("Machine halted: %s", fault.Message)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func (b *Boot) useTerminal() (bool, error) {
	switch b.render {
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	case "tcell":
		return true, nil
	case "plain":
		return false, nil
	}
	return false, fmt.Errorf("invalid --render %q, must be 'auto', 'tcell', or 'plain'", b.render)
}

// runTerminal injects events while another goroutine keeps the terminal in
// sync with the machine's screen.
func (b *Boot) runTerminal(ctx context.Context, m *boot.Machine, events []boot.Event) error {
	t, err := vga.OpenTerminal()
	if err != nil {
		return err
	}
	defer t.Close()

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	g.Go(func() error {
		defer close(done)
		return inject(ctx, m, events, b.interval)
	})
	g.Go(func() error {
		ticker := time.NewTicker(refreshInterval)
		defer ticker.Stop()
		for {
			t.Draw(m.Screen())
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-done:
				t.Draw(m.Screen())
				hold := time.NewTimer(b.hold)
				defer hold.Stop()
				select {
				case <-ctx.Done():
				case <-hold.C:
				}
				return nil
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}
