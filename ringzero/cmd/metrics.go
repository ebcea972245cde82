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
	"io"
	"os"

	"github.com/google/subcommands"

	"github.com/ringzero-os/ringzero/ringzero/boot"
	"github.com/ringzero-os/ringzero/ringzero/cmd/util"
	"github.com/ringzero-os/ringzero/ringzero/config"
)

// Metrics implements subcommands.Command for the "metrics" command.
type Metrics struct {
	eventSource
}

// Name implements subcommands.Command.Name.
func (*Metrics) Name() string {
	return "metrics"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Metrics) Synopsis() string {
	return "export interrupt metrics of a simulated run"
}

// Usage implements subcommands.Command.Usage.
func (*Metrics) Usage() string {
	return `metrics [flags] [event...] - boots a simulated machine, injects the events and prints its metrics in Prometheus text format
`
}

// SetFlags implements subcommands.Command.SetFlags.
func (m *Metrics) SetFlags(f *flag.FlagSet) {
	m.setFlags(f)
}

// Execute implements subcommands.Command.Execute.
func (m *Metrics) Execute(ctx context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := args[0].(*config.Config)

	events, err := m.load(f.Args())
	if err != nil {
		f.Usage()
		util.Fatalf("parsing events: %v", err)
	}
	if err := runMetrics(ctx, conf, events, os.Stdout); err != nil {
		util.Fatalf("%v", err)
	}
	return subcommands.ExitSuccess
}

// runMetrics boots a simulated machine, runs events on it and writes its
// metrics to w.
func runMetrics(ctx context.Context, conf *config.Config, events []boot.Event, w io.Writer) error {
	machine, err := bootSim(ctx, conf)
	if err != nil {
		return fmt.Errorf("booting: %w", err)
	}
	if err := inject(ctx, machine, events, 0); err != nil {
		return fmt.Errorf("running events: %w", err)
	}
	if err := machine.Metrics().WriteText(w); err != nil {
		return fmt.Errorf("cannot write metrics: %w", err)
	}
	return nil
}
