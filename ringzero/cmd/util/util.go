// Copyright 2018 The gVisor Authors.
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

// Package util groups a bunch of common helper functions used by commands.
package util

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ringzero-os/ringzero/pkg/log"
)

// ErrorLogger is where error messages should be written to. These messages
// are consumed by the caller and must be in the same JSON format as the log
// file.
var ErrorLogger io.Writer

// Exit codes.
const (
	// ExitFailure is returned by Fatalf.
	ExitFailure = 128
)

// exit is replaced in tests.
var exit = os.Exit

type jsonError struct {
	Msg   string    `json:"msg"`
	Level string    `json:"level"`
	Time  time.Time `json:"time"`
}

// Writef writes to stdout and logs the message.
func Writef(format string, args ...any) {
	log.Debugf(format, args...)
	fmt.Fprintf(os.Stdout, format, args...)
}

// Infof writes an info level message to stderr and the log.
func Infof(format string, args ...any) {
	log.Infof(format, args...)
	fmt.Fprintf(os.Stderr, format+"\n", args...)
}

// writeError writes the error to the ErrorLogger, if set.
func writeError(level, msg string) {
	if ErrorLogger == nil {
		return
	}
	b, err := json.Marshal(jsonError{
		Msg:   msg,
		Level: level,
		Time:  time.Now(),
	})
	if err != nil {
		panic(err)
	}
	if _, err := ErrorLogger.Write(append(b, '\n')); err != nil {
		log.Warningf("writing error to log: %v", err)
	}
}

// Fatalf logs the same message to the log file, stderr, and ErrorLogger,
// then exits with ExitFailure.
func Fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	log.Warningf("FATAL ERROR: %s", msg)
	fmt.Fprintf(os.Stderr, "ringzero: %s\n", msg)
	writeError("error", msg)
	exit(ExitFailure)
}
