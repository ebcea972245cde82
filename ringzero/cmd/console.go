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
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/google/subcommands"
	"github.com/rivo/tview"
	"golang.org/x/sync/errgroup"

	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/pkg/vga"
	"github.com/ringzero-os/ringzero/ringzero/boot"
	"github.com/ringzero-os/ringzero/ringzero/cmd/util"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// maxPendingEvents bounds input waiting to be injected.
const maxPendingEvents = 64

// commandPrefix starts a console line that is an event rather than text to
// type.
const commandPrefix = "/"

// Console implements subcommands.Command for the "console" command, an
// interactive view of a simulated machine.
type Console struct {
	tick time.Duration
}

// Name implements subcommands.Command.Name.
func (*Console) Name() string {
	return "console"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Console) Synopsis() string {
	return "interact with a simulated machine"
}

// Usage implements subcommands.Command.Usage.
func (*Console) Usage() string {
	return `console [-tick=DURATION] - boots a simulated machine and shows its screen

Lines entered are typed on the machine's keyboard. Lines starting with "/"
are events instead (/tick, /irq:N, /mouse:DX,DY, /fault:V[:ERR]); /quit
exits.
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (c *Console) SetFlags(f *flag.FlagSet) {
	f.DurationVar(&c.tick, "tick", time.Second, "timer interrupt period. 0 disables the timer.")
}

// Execute implements subcommands.Command.Execute.
func (c *Console) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	if f.NArg() != 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	conf := args[0].(*config.Config)

	m, err := bootSim(ctx, conf)
	if err != nil {
		util.Fatalf("booting: %v", err)
	}
	v := newConsoleView(m)

	// Logs would garble the terminal; show them in a pane instead.
	log.SetTarget(log.GoogleEmitter{Writer: &log.Writer{Next: v.log}})

	g, ctx := errgroup.WithContext(ctx)
	stopped := make(chan struct{})
	g.Go(func() error {
		defer close(stopped)
		return v.app.Run()
	})
	g.Go(func() error {
		var tick <-chan time.Time
		if c.tick > 0 {
			t := time.NewTicker(c.tick)
			defer t.Stop()
			tick = t.C
		}
		for {
			select {
			case <-stopped:
				return nil
			case <-ctx.Done():
				v.app.Stop()
				return nil
			case <-tick:
				v.inject(boot.Event{Kind: boot.EventTick})
			case ev := <-v.events:
				v.inject(ev)
			}
		}
	})
	if err := g.Wait(); err != nil {
		util.Fatalf("console: %v", err)
	}
	return subcommands.ExitSuccess
}

// consoleView lays out the machine's screen above a status line, a log pane
// and an input line.
type consoleView struct {
	m *boot.Machine

	screen *tview.Box
	state  *tview.TextView
	log    *tview.TextView
	input  *tview.InputField
	rows   *tview.Flex
	app    *tview.Application

	// events carries input to the goroutine that injects it.
	events chan boot.Event

	mu    sync.Mutex
	keys  int
	last  string
	fault string
}

func newConsoleView(m *boot.Machine) *consoleView {
	v := &consoleView{
		m:      m,
		screen: tview.NewBox(),
		state: tview.NewTextView().
			SetWrap(false),
		log: tview.NewTextView().
			SetMaxLines(1000),
		input: tview.NewInputField().
			SetLabel("> "),
		rows: tview.NewFlex().
			SetDirection(tview.FlexRow),
		app:    tview.NewApplication(),
		events: make(chan boot.Event, maxPendingEvents),
	}
	v.screen.SetBorder(true).SetTitle(" ringzero ")
	v.screen.SetDrawFunc(func(s tcell.Screen, x, y, width, height int) (int, int, int, int) {
		vga.DrawTo(s, x+1, y+1, m.Screen())
		return x + 1, y + 1, width - 2, height - 2
	})
	v.log.SetChangedFunc(func() { v.app.Draw() })
	v.state.SetBackgroundColor(tcell.ColorDarkBlue)
	v.rows.
		AddItem(v.screen, vga.Height+2, 0, false).
		AddItem(v.state, 1, 0, false).
		AddItem(v.log, 0, 1, false).
		AddItem(v.input, 1, 0, true)
	v.app.SetRoot(v.rows, true)

	v.input.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		line := v.input.GetText()
		v.input.SetText("")
		v.enter(line)
	})
	v.state.SetText(v.status())
	return v
}

// enter handles one input line. It runs on the event loop, so injection is
// left to another goroutine.
func (v *consoleView) enter(line string) {
	if !strings.HasPrefix(line, commandPrefix) {
		v.queue(boot.Event{Kind: boot.EventKeys, Text: line + "\n"})
		return
	}
	cmd := strings.TrimPrefix(line, commandPrefix)
	if cmd == "quit" || cmd == "exit" {
		v.app.Stop()
		return
	}
	ev, err := boot.ParseEvent(cmd)
	if err != nil {
		log.Warningf("%v", err)
		return
	}
	v.queue(ev)
}

func (v *consoleView) queue(ev boot.Event) {
	select {
	case v.events <- ev:
	default:
		log.Warningf("Input queue full, dropping %v", ev)
	}
}

// inject runs ev on the machine and refreshes the view. It may be called
// from any goroutine.
func (v *consoleView) inject(ev boot.Event) {
	n, err := v.m.Inject(ev)
	v.mu.Lock()
	v.keys += len(v.m.Input().TakeKeys())
	v.last = fmt.Sprintf("%v: %d delivered", ev, n)
	if err != nil {
		v.last = fmt.Sprintf("%v: %v", ev, err)
	}
	if fault, ok := v.m.Dispatcher().Fault(); ok {
		v.fault = fault.Message
	}
	v.mu.Unlock()
	status := v.status()
	v.app.QueueUpdateDraw(func() {
		v.state.SetText(status)
	})
}

func (v *consoleView) status() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	s := fmt.Sprintf(" %v | ticks %d | keys %d | %s", v.m.Dispatcher().State(), v.m.Timer().Ticks(), v.keys, v.last)
	if v.fault != "" {
		s += " | " + v.fault
	}
	return s
}
