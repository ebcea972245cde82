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
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// newPortFile stands in for /dev/port: offsets are port addresses.
func newPortFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "port")
	if err := os.WriteFile(path, make([]byte, 1<<16), 0600); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	return path
}

func TestDevPort(t *testing.T) {
	path := newPortFile(t)
	lockPath := filepath.Join(t.TempDir(), "port.lock")
	d, err := OpenDevPort(path, lockPath)
	if err != nil {
		t.Fatalf("OpenDevPort failed: %v", err)
	}
	defer d.Close()

	s := NewSpace(d)
	p, err := s.Claim(0x64)
	if err != nil {
		t.Fatalf("Claim failed: %v", err)
	}
	p.Write(0xa8)
	if got := p.Read(); got != 0xa8 {
		t.Errorf("Read(): got %#x, wanted 0xa8", got)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}
	if b[0x64] != 0xa8 || b[0x60] != 0 {
		t.Errorf("backing file: [0x60]=%#x [0x64]=%#x", b[0x60], b[0x64])
	}
}

func TestDevPortExclusive(t *testing.T) {
	path := newPortFile(t)
	lockPath := filepath.Join(t.TempDir(), "port.lock")
	d, err := OpenDevPort(path, lockPath)
	if err != nil {
		t.Fatalf("OpenDevPort failed: %v", err)
	}
	if _, err := OpenDevPort(path, lockPath); !errors.Is(err, ErrPortClaimed) {
		t.Errorf("second OpenDevPort: got %v, wanted %v", err, ErrPortClaimed)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	d2, err := OpenDevPort(path, lockPath)
	if err != nil {
		t.Fatalf("OpenDevPort after Close failed: %v", err)
	}
	d2.Close()
}

func TestDevPortMissingDevice(t *testing.T) {
	lockPath := filepath.Join(t.TempDir(), "port.lock")
	if _, err := OpenDevPort(filepath.Join(t.TempDir(), "nope"), lockPath); err == nil {
		t.Fatalf("OpenDevPort on a missing device succeeded")
	}
	// The lock must have been released by the failed open.
	d, err := OpenDevPort(newPortFile(t), lockPath)
	if err != nil {
		t.Fatalf("OpenDevPort after failure: %v", err)
	}
	d.Close()
}
