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

// Package ps2 drives the 8042 PS/2 controller: it enables the auxiliary
// (mouse) port, turns on its interrupt and enables keyboard scanning, and
// reads bytes from the output buffer.
package ps2

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/cenkalti/backoff"
	"github.com/ringzero-os/ringzero/pkg/ioport"
	"github.com/ringzero-os/ringzero/pkg/log"
)

// Port addresses. Status reads and command writes share StatusPort.
const (
	DataPort   ioport.Addr = 0x60
	StatusPort ioport.Addr = 0x64
)

// Controller commands, written to StatusPort.
const (
	CmdReadConfig  = 0x20
	CmdWriteConfig = 0x60
	CmdEnableAux   = 0xa8
)

// Device commands, written to DataPort.
const (
	DevEnableScanning = 0xf4
)

// Ack is the acknowledgment byte.
const Ack = 0xfa

// Configuration byte bits.
const (
	ConfigKeyboardIRQ      = 1 << 0
	ConfigAuxIRQ           = 1 << 1
	ConfigAuxClockDisabled = 1 << 5
)

// DefaultPollLimit is the default bound on status polls per wait.
const DefaultPollLimit = 100000

var (
	// ErrTimeout is returned when the controller does not become ready
	// within the poll limit.
	ErrTimeout = errors.New("PS/2 controller timed out")

	// ErrUnexpectedAck is recorded when the controller answers with
	// something other than Ack.
	ErrUnexpectedAck = errors.New("unexpected PS/2 acknowledgment")

	errNotReady = errors.New("not ready")
)

// Status is the controller status register.
type Status uint8

// Status bits.
const (
	StatusOutputFull Status = 1 << 0
	StatusInputFull  Status = 1 << 1
	StatusAux        Status = 1 << 5
)

// OutputFull returns true if a byte is waiting to be read.
func (s Status) OutputFull() bool { return s&StatusOutputFull != 0 }

// InputFull returns true if the controller has not consumed the last write.
func (s Status) InputFull() bool { return s&StatusInputFull != 0 }

// Aux returns true if the waiting byte came from the auxiliary device.
func (s Status) Aux() bool { return s&StatusAux != 0 }

// String implements fmt.Stringer.
func (s Status) String() string {
	return fmt.Sprintf("%#02x{output:%t input:%t aux:%t}", uint8(s), s.OutputFull(), s.InputFull(), s.Aux())
}

// Source identifies the device a byte came from.
type Source int

// Sources.
const (
	None Source = iota
	Keyboard
	Mouse
)

// String implements fmt.Stringer.
func (s Source) String() string {
	switch s {
	case None:
		return "none"
	case Keyboard:
		return "keyboard"
	case Mouse:
		return "mouse"
	}
	return fmt.Sprintf("Source(%d)", int(s))
}

// Reading is the result of one Poll.
type Reading struct {
	Source Source
	Data   uint8
}

// Handshake records the controller's answers during BringUp.
type Handshake struct {
	EnableAuxAck      uint8
	ConfigBefore      uint8
	ConfigAfter       uint8
	WriteConfigAck    uint8
	EnableScanningAck uint8

	// Errors holds the protocol errors seen. They are not fatal.
	Errors []error
}

// Options configures a Controller.
type Options struct {
	// PollLimit is the most status register reads a single wait performs
	// before giving up with ErrTimeout. Zero waits forever.
	PollLimit int
}

// Controller is the 8042.
type Controller struct {
	// mu serializes port sequences.
	mu     sync.Mutex
	data   *ioport.Port
	status *ioport.Port
	opts   Options
}

// New claims the controller's ports from space.
func New(space *ioport.Space, opts Options) (*Controller, error) {
	if opts.PollLimit < 0 {
		return nil, fmt.Errorf("invalid poll limit %d", opts.PollLimit)
	}
	ports, err := space.ClaimAll(DataPort, StatusPort)
	if err != nil {
		return nil, fmt.Errorf("claiming PS/2 ports: %w", err)
	}
	return &Controller{
		data:   ports[0],
		status: ports[1],
		opts:   opts,
	}, nil
}

// Status reads the status register once.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status(c.status.Read())
}

// wait polls the status register until ready returns true, the poll limit
// is reached or ctx is done.
func (c *Controller) wait(ctx context.Context, what string, ready func(Status) bool) error {
	var b backoff.BackOff = &backoff.ZeroBackOff{}
	if c.opts.PollLimit > 0 {
		// The first read is not a retry.
		b = backoff.WithMaxRetries(b, uint64(c.opts.PollLimit-1))
	}
	polls := 0
	op := func() error {
		polls++
		if ready(Status(c.status.Read())) {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return backoff.Permanent(err)
		}
		return errNotReady
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("waiting for %s: %w", what, ctxErr)
		}
		return fmt.Errorf("%w: waiting for %s, %d polls", ErrTimeout, what, polls)
	}
	return nil
}

func canWrite(s Status) bool { return !s.InputFull() }

func canRead(s Status) bool { return s.OutputFull() }

// command writes a controller command.
func (c *Controller) command(ctx context.Context, cmd uint8) error {
	if err := c.wait(ctx, "input buffer", canWrite); err != nil {
		return fmt.Errorf("command %#02x: %w", cmd, err)
	}
	c.status.Write(cmd)
	return nil
}

// write writes a byte to the data port.
func (c *Controller) write(ctx context.Context, v uint8) error {
	if err := c.wait(ctx, "input buffer", canWrite); err != nil {
		return fmt.Errorf("write %#02x: %w", v, err)
	}
	c.data.Write(v)
	return nil
}

// read reads a byte from the data port.
func (c *Controller) read(ctx context.Context) (uint8, error) {
	if err := c.wait(ctx, "output buffer", canRead); err != nil {
		return 0, fmt.Errorf("read: %w", err)
	}
	return c.data.Read(), nil
}

// readAck reads an acknowledgment. A wrong byte is recorded in h.
func (c *Controller) readAck(ctx context.Context, h *Handshake, step string) (uint8, error) {
	v, err := c.read(ctx)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", step, err)
	}
	if v != Ack {
		err := fmt.Errorf("%w: %s: got %#02x, want %#02x", ErrUnexpectedAck, step, v, Ack)
		log.Warningf("PS/2: %v", err)
		h.Errors = append(h.Errors, err)
	}
	return v, nil
}

// BringUp enables the auxiliary port and its interrupt, then enables
// scanning. Only a timeout or ctx ending fails it; wrong acknowledgments are
// reported in the Handshake.
func (c *Controller) BringUp(ctx context.Context) (Handshake, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var (
		h   Handshake
		err error
	)
	if err := c.command(ctx, CmdEnableAux); err != nil {
		return h, err
	}
	if h.EnableAuxAck, err = c.readAck(ctx, &h, "enable auxiliary port"); err != nil {
		return h, err
	}

	if err := c.command(ctx, CmdReadConfig); err != nil {
		return h, err
	}
	if h.ConfigBefore, err = c.read(ctx); err != nil {
		return h, fmt.Errorf("read configuration: %w", err)
	}

	h.ConfigAfter = (h.ConfigBefore | ConfigAuxIRQ) &^ ConfigAuxClockDisabled
	if err := c.command(ctx, CmdWriteConfig); err != nil {
		return h, err
	}
	if err := c.write(ctx, h.ConfigAfter); err != nil {
		return h, err
	}
	if h.WriteConfigAck, err = c.readAck(ctx, &h, "write configuration"); err != nil {
		return h, err
	}

	if err := c.write(ctx, DevEnableScanning); err != nil {
		return h, err
	}
	if h.EnableScanningAck, err = c.readAck(ctx, &h, "enable scanning"); err != nil {
		return h, err
	}

	log.Infof("PS/2 controller up: config %#02x -> %#02x, %d protocol errors", h.ConfigBefore, h.ConfigAfter, len(h.Errors))
	return h, nil
}

// Config reads the configuration byte.
func (c *Controller) Config(ctx context.Context) (uint8, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.command(ctx, CmdReadConfig); err != nil {
		return 0, err
	}
	return c.read(ctx)
}

// Poll reads one byte if one is waiting. It never blocks: when the output
// buffer is empty the data port is not touched.
func (c *Controller) Poll() Reading {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Status(c.status.Read())
	if !s.OutputFull() {
		return Reading{Source: None}
	}
	r := Reading{Source: Keyboard, Data: c.data.Read()}
	if s.Aux() {
		r.Source = Mouse
	}
	return r
}
