// Copyright 2025 The Enclaverun Authors
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

package exception

import (
	"testing"

	"enclaverun.dev/enclaverun/pkg/abi/linux"
)

func TestClassify(t *testing.T) {
	for _, tc := range []struct {
		sig  linux.Signal
		want Class
	}{
		{linux.SIGBUS, ClassDefault},
		{linux.SIGFPE, ClassDefault},
		{linux.SIGILL, ClassDefault},
		{linux.SIGSEGV, ClassDefault},
		{linux.SIGTRAP, ClassDefault},
		{linux.SIGHUP, ClassOptional},
		{linux.SIGABRT, ClassOptional},
		{linux.SIGALRM, ClassOptional},
		{linux.SIGPIPE, ClassOptional},
		{linux.SIGPOLL, ClassOptional},
		{linux.SIGUSR1, ClassOptional},
		{linux.SIGUSR2, ClassOptional},
		{linux.SIGINT, ClassNone},
		{linux.SIGTERM, ClassNone},
		{linux.SIGKILL, ClassNone},
		{linux.SIGCHLD, ClassNone},
		{linux.Signal(0), ClassNone},
		{linux.Signal(linux.SignalMaximum + 1), ClassNone},
	} {
		if got := Classify(tc.sig); got != tc.want {
			t.Errorf("Classify(%d) = %v, want %v", tc.sig, got, tc.want)
		}
	}
}

func TestSetsAreDisjoint(t *testing.T) {
	if overlap := defaultSet & optionalSet; overlap != 0 {
		t.Errorf("default and optional sets overlap: %#x", overlap)
	}
	if got, want := len(defaultSignals), 5; got != want {
		t.Errorf("default set has %d signals, want %d", got, want)
	}
	if got, want := len(optionalSignals), 7; got != want {
		t.Errorf("optional set has %d signals, want %d", got, want)
	}
}
