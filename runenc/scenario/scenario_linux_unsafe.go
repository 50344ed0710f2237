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

//go:build linux && amd64
// +build linux,amd64

package scenario

import (
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"

	"enclaverun.dev/enclaverun/pkg/abi/linux"
)

// resetToDefault restores the kernel's default disposition for sig,
// removing whatever handler the Go runtime installed at startup. Scenarios
// call it before the bridge captures the previous disposition.
func resetToDefault(sig linux.Signal) {
	var dfl linux.SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&dfl)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		fmt.Fprintf(os.Stderr, "resetting signal %d: %v\n", sig, e)
		os.Exit(2)
	}
}

// addResetHand reinstalls the current disposition for sig with SA_RESETHAND
// added, turning the runtime's handler into a one-shot chain target.
func addResetHand(sig linux.Signal) {
	var act linux.SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&act)), linux.SignalSetSize, 0, 0); e != 0 {
		fmt.Fprintf(os.Stderr, "reading disposition for signal %d: %v\n", sig, e)
		os.Exit(2)
	}
	act.Flags |= linux.SA_RESETHAND
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&act)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		fmt.Fprintf(os.Stderr, "reinstalling disposition for signal %d: %v\n", sig, e)
		os.Exit(2)
	}
}

// raise delivers sig to the calling thread, so the handler runs before
// raise returns.
func raise(sig linux.Signal) {
	if err := unix.Tgkill(unix.Getpid(), unix.Gettid(), unix.Signal(sig)); err != nil {
		fmt.Fprintf(os.Stderr, "tgkill(%d): %v\n", sig, err)
		os.Exit(2)
	}
}
