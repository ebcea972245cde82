// Copyright 2018 Google LLC
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

package log

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

type testWriter struct {
	lines []string
	fail  bool
}

func (w *testWriter) Write(bytes []byte) (int, error) {
	if w.fail {
		return 0, fmt.Errorf("simulated failure")
	}
	w.lines = append(w.lines, string(bytes))
	return len(bytes), nil
}

func TestDropMessages(t *testing.T) {
	tw := &testWriter{}
	w := Writer{Next: tw}
	if _, err := w.Write([]byte("line 1\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	tw.fail = true
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}
	if _, err := w.Write([]byte("error\n")); err == nil {
		t.Fatalf("Write should have failed")
	}

	tw.fail = false
	if _, err := w.Write([]byte("line 2\n")); err != nil {
		t.Fatalf("Write failed, err: %v", err)
	}

	expected := []string{
		"line 1\n",
		"line 2\n",
		"\n*** Dropped 2 log messages ***\n",
	}
	if len(tw.lines) != len(expected) {
		t.Fatalf("Writer should have logged %d lines, got: %v, expected: %v", len(expected), tw.lines, expected)
	}
	for i, l := range tw.lines {
		if l != expected[i] {
			t.Fatalf("line %d doesn't match, got: %v, expected: %v", i, l, expected[i])
		}
	}
}

func TestLevels(t *testing.T) {
	tw := &testWriter{}
	l := BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}
	l.Debugf("hidden\n")
	l.Infof("shown %d\n", 1)
	l.Warningf("shown %d\n", 2)
	if got, want := len(tw.lines), 2; got != want {
		t.Fatalf("got %d lines (%v), wanted %d", got, tw.lines, want)
	}
	l.SetLevel(Debug)
	if !l.IsLogging(Debug) {
		t.Errorf("IsLogging(Debug) = false after SetLevel(Debug)")
	}
}

func TestGoogleEmitter(t *testing.T) {
	tw := &testWriter{}
	e := GoogleEmitter{&Writer{Next: tw}}
	ts := time.Date(2026, time.May, 7, 13, 4, 5, 123456000, time.UTC)
	e.Emit(0, Warning, ts, "vector %d", 33)
	if len(tw.lines) != 1 {
		t.Fatalf("got %d lines, wanted 1", len(tw.lines))
	}
	line := tw.lines[0]
	if !strings.HasPrefix(line, "W0507 13:04:05.123456 ") {
		t.Errorf("bad header: %q", line)
	}
	if !strings.Contains(line, "log_test.go:") || !strings.HasSuffix(line, "] vector 33\n") {
		t.Errorf("bad caller or message: %q", line)
	}
}

func TestRateLimitedLogger(t *testing.T) {
	tw := &testWriter{}
	rl := RateLimitedLogger(&BasicLogger{Level: Info, Emitter: &Writer{Next: tw}}, time.Hour)
	for i := 0; i < 5; i++ {
		rl.Warningf("spurious %d\n", i)
	}
	if got, want := len(tw.lines), 1; got != want {
		t.Fatalf("got %d lines (%v), wanted %d", got, tw.lines, want)
	}
	if got, want := tw.lines[0], "spurious 0\n"; got != want {
		t.Errorf("got %q, wanted %q", got, want)
	}
}

func TestOpenFile(t *testing.T) {
	dir := t.TempDir()
	f, err := OpenFile(filepath.Join(dir, "sub", "boot-%TIMESTAMP%.log"), time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if got, want := filepath.Base(f.Name()), "boot-20260102-030405.000000.log"; got != want {
		t.Errorf("file name: got %q, wanted %q", got, want)
	}
	if _, err := os.Stat(f.Name()); err != nil {
		t.Errorf("Stat failed: %v", err)
	}
	if f, err := OpenFile("", time.Now()); f != nil || err != nil {
		t.Errorf("OpenFile(\"\") = %v, %v; wanted nil, nil", f, err)
	}
}
