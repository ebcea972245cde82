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

//go:build linux
// +build linux

package ioport

import (
	"fmt"
	"os"
	"time"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"

	"github.com/ringzero-os/ringzero/pkg/cleanup"
	"github.com/ringzero-os/ringzero/pkg/log"
)

// DefaultDevPortPath is the kernel's character device for I/O port access.
const DefaultDevPortPath = "/dev/port"

// floatingBus is what an ISA read returns when nothing drives the bus.
const floatingBus = 0xff

// DevPort is a Bus backed by Linux's /dev/port, where the file offset is the
// port address. It requires CAP_SYS_RAWIO.
//
// Only one process may own a DevPort for a given lock file at a time.
type DevPort struct {
	f    *os.File
	lock *flock.Flock
	warn log.Logger
}

// OpenDevPort opens path for port I/O, holding an exclusive lock on
// lockPath for the lifetime of the DevPort.
func OpenDevPort(path, lockPath string) (*DevPort, error) {
	lock := flock.New(lockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %q: %w", lockPath, err)
	}
	if !ok {
		return nil, fmt.Errorf("%q is held by another process: %w", lockPath, ErrPortClaimed)
	}
	cu := cleanup.Make(func() { lock.Unlock() })
	defer cu.Clean()

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening %q: %w", path, err)
	}
	cu.Release()
	log.Infof("Port I/O through %q, lock %q", path, lockPath)
	return &DevPort{
		f:    f,
		lock: lock,
		warn: log.BasicRateLimitedLogger(time.Second),
	}, nil
}

// In8 implements Bus.In8.
func (d *DevPort) In8(addr Addr) uint8 {
	var b [1]byte
	if _, err := unix.Pread(int(d.f.Fd()), b[:], int64(addr)); err != nil {
		d.warn.Warningf("inb %v: %v", addr, err)
		return floatingBus
	}
	return b[0]
}

// Out8 implements Bus.Out8.
func (d *DevPort) Out8(addr Addr, v uint8) {
	if _, err := unix.Pwrite(int(d.f.Fd()), []byte{v}, int64(addr)); err != nil {
		d.warn.Warningf("outb %v <- %#02x: %v", addr, v, err)
	}
}

// Close releases the device and the lock.
func (d *DevPort) Close() error {
	err := d.f.Close()
	if uerr := d.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}
