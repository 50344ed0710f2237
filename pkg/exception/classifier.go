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
	"enclaverun.dev/enclaverun/pkg/abi/linux"
)

// Class partitions the signals the bridge manages.
type Class int

const (
	// ClassNone marks a signal the bridge does not intercept.
	ClassNone Class = iota

	// ClassDefault signals are always intercepted: they are the ones the
	// isolation hardware itself can raise.
	ClassDefault

	// ClassOptional signals are intercepted but, absent a real previous
	// handler, dropped rather than delivered (SIGABRT excepted).
	ClassOptional
)

// defaultSignals are always forwarded to the enclave and are recognizable by
// the isolation hardware.
var defaultSignals = [...]linux.Signal{
	linux.SIGBUS,
	linux.SIGFPE,
	linux.SIGILL,
	linux.SIGSEGV,
	linux.SIGTRAP,
}

// optionalSignals are forwarded to the enclave but require it to explicitly
// register interest; otherwise they are swallowed.
var optionalSignals = [...]linux.Signal{
	linux.SIGHUP,
	linux.SIGABRT,
	linux.SIGALRM,
	linux.SIGPIPE,
	linux.SIGPOLL,
	linux.SIGUSR1,
	linux.SIGUSR2,
}

// Membership masks for the fixed sets. Computed once at package
// initialization; the signal handler reads them without synchronization.
var (
	defaultSet  = linux.MakeSignalSet(defaultSignals[:]...)
	optionalSet = linux.MakeSignalSet(optionalSignals[:]...)
)

// Classify reports which of the two fixed sets sig belongs to, if any.
//
//go:nosplit
func Classify(sig linux.Signal) Class {
	if !sig.IsValid() {
		return ClassNone
	}
	bit := uint64(1) << uint64(sig-1)
	switch {
	case uint64(defaultSet)&bit != 0:
		return ClassDefault
	case uint64(optionalSet)&bit != 0:
		return ClassOptional
	}
	return ClassNone
}
