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

// Package cmd holds implementations of the ringzero commands.
package cmd

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ringzero-os/ringzero/pkg/log"
	"github.com/ringzero-os/ringzero/ringzero/boot"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// stringFlags can be used with string flags that appear multiple times.
type stringFlags []string

// String implements flag.Value.
func (s *stringFlags) String() string {
	return strings.Join(*s, " ")
}

// Get implements flag.Getter.
func (s *stringFlags) Get() any {
	return s
}

// Set implements flag.Value.
func (s *stringFlags) Set(v string) error {
	if v == "" {
		return fmt.Errorf("flag value must not be empty")
	}
	*s = append(*s, v)
	return nil
}

// eventSource collects the events of a run from repeated --event flags, an
// optional script file and the positional arguments, in that order.
type eventSource struct {
	events stringFlags
	script string
}

func (e *eventSource) setFlags(f *flag.FlagSet) {
	f.Var(&e.events, "event", "event to inject after boot; may be repeated. One of tick, keys:TEXT, mouse:DX,DY[,l|r|m], irq:N, fault:V[:ERR].")
	f.StringVar(&e.script, "script", "", "file with one event per line. Blank lines and lines starting with '#' are ignored.")
}

func (e *eventSource) load(args []string) ([]boot.Event, error) {
	all := append([]string(nil), e.events...)
	if e.script != "" {
		f, err := os.Open(e.script)
		if err != nil {
			return nil, fmt.Errorf("opening script: %w", err)
		}
		defer f.Close()
		lines, err := readScript(f)
		if err != nil {
			return nil, fmt.Errorf("reading script %q: %w", e.script, err)
		}
		all = append(all, lines...)
	}
	all = append(all, args...)
	return boot.ParseEvents(all)
}

func readScript(r io.Reader) ([]string, error) {
	var lines []string
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := strings.TrimSpace(s.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, s.Err()
}

// bootSim boots a simulated machine. Booting reprograms the interrupt
// controllers, so it is never done on real ports.
func bootSim(ctx context.Context, conf *config.Config) (*boot.Machine, error) {
	if conf.Platform != config.PlatformSim {
		return nil, fmt.Errorf("booting requires --platform=sim, got %v; use probe for real hardware", conf.Platform)
	}
	hw, err := boot.NewHardware(conf)
	if err != nil {
		return nil, err
	}
	return boot.Boot(ctx, conf, hw)
}

// inject runs events on m in order, interval apart, stopping early if ctx
// is done or the machine halts.
func inject(ctx context.Context, m *boot.Machine, events []boot.Event, interval time.Duration) error {
	for i, ev := range events {
		if i > 0 && interval > 0 {
			t := time.NewTimer(interval)
			select {
			case <-ctx.Done():
				t.Stop()
				return ctx.Err()
			case <-t.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.Halted() {
			log.Infof("Machine halted, %d events not injected", len(events)-i)
			return nil
		}
		n, err := m.Inject(ev)
		if err != nil {
			return fmt.Errorf("injecting %v: %w", ev, err)
		}
		log.Debugf("Injected %v: %d interrupts delivered", ev, n)
	}
	return nil
}

// writeRows writes the used rows of the screen as plain text.
func writeRows(w io.Writer, m *boot.Machine) error {
	s := m.Screen().String()
	if s == "" {
		return nil
	}
	_, err := fmt.Fprintln(w, s)
	return err
}
