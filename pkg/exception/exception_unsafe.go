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

package exception

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"

	"enclaverun.dev/enclaverun/pkg/abi/linux"
	"enclaverun.dev/enclaverun/pkg/gohacks"
)

// Initialize installs the bridge's handler for every signal in the default
// and optional sets, capturing each pre-existing disposition into the
// registry. A single rt_sigaction call per signal performs the install and
// the fetch of the previous disposition, so there is no window in which two
// observers could see both.
//
// Initialize must run exactly once per process, before any protected code
// does, and before any thread can take a managed signal. Calling it a second
// time is a precondition violation: the registry would be overwritten with
// the bridge's own handler.
//
// If the kernel refuses any single install, the handlers installed so far
// are backed out and the process panics; partial interception is not a
// supported state.
func Initialize() {
	// The handler honors the signal mask in effect now, except that the
	// managed signals are explicitly unblocked so that any of them may be
	// taken again while the handler runs.
	var current linux.SignalSet
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_SETMASK, 0, uintptr(unsafe.Pointer(&current)), linux.SignalSetSize, 0, 0); e != 0 {
		panic(fmt.Sprintf("exception: reading signal mask: %v", e))
	}

	act := linux.SigAction{
		Handler: uint64(addrOfSighandler()),
		// SA_SIGINFO selects three-argument dispatch, SA_NODEFER keeps
		// the delivered signal unblocked during handling, SA_RESTART
		// resumes interrupted system calls. SA_ONSTACK moves delivery
		// to the alternate signal stack the runtime establishes on
		// every thread; goroutine stacks are too small for the kernel's
		// signal frame. The kernel requires an explicit restorer for
		// handlers installed through raw rt_sigaction on amd64.
		Flags:    linux.SA_SIGINFO | linux.SA_NODEFER | linux.SA_RESTART | linux.SA_ONSTACK | linux.SA_RESTORER,
		Restorer: uint64(addrOfSigreturn()),
		Mask:     current &^ (defaultSet | optionalSet),
	}

	installed := make([]linux.Signal, 0, len(defaultSignals)+len(optionalSignals))
	for _, set := range [...][]linux.Signal{defaultSignals[:], optionalSignals[:]} {
		for _, sig := range set {
			if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&act)), uintptr(unsafe.Pointer(&savedActions[sig])), linux.SignalSetSize, 0, 0); e != 0 {
				for _, s := range installed {
					unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(s), uintptr(unsafe.Pointer(&savedActions[s])), 0, linux.SignalSetSize, 0, 0)
				}
				panic(fmt.Sprintf("exception: unable to set handler for signal %d: %v", sig, e))
			}
			installed = append(installed, sig)
		}
	}
}

// faultHandler is called from the sighandler assembly stub for every
// delivery of a managed signal.
//
// It runs in signal-handler context on whatever stack the interrupted thread
// was using, and possibly concurrently on several threads for different
// faults. Only raw system calls and nosplit functions may execute here;
// anything that could allocate, lock, or split the stack will be flaky at
// best. All per-delivery state lives in this frame.
//
//go:nosplit
func faultHandler(sigNum uint64, info *linux.SignalInfo, ctx unsafe.Pointer) {
	sig := linux.Signal(sigNum)

	var ec Context
	translate(&ec, sig, info, ctx)

	// Passing &ec to a func value makes escape analysis move ec to the
	// heap, and the handler must not allocate; launder the pointer so ec
	// stays in this frame.
	if d := dispatch; d != nil && d((*Context)(gohacks.Noescape(unsafe.Pointer(&ec)))) == ContinueExecution {
		// The enclave recovered; resume at the fault site through
		// normal signal return.
		return
	}

	act := savedAction(sig)
	switch act.Handler {
	case linux.SIG_DFL:
		// An optional signal the host never installed a handler for
		// is dropped, not delivered. SIGABRT is the exception: it is
		// still expected to abort the process.
		if Classify(sig) == ClassOptional && sig != linux.SIGABRT {
			return
		}
		raiseDefault(sig)
	case linux.SIG_IGN:
		// The pre-existing disposition was "ignore"; honor it.
	default:
		chain(act, sigNum, info, ctx)
	}
}

// raiseDefault reinstates the kernel's default disposition for sig and
// redelivers it on the current thread. Real redelivery, rather than a direct
// exit, preserves the termination status encoding and core dump behavior of
// the default action.
//
//go:nosplit
func raiseDefault(sig linux.Signal) {
	var dfl linux.SigAction // Handler is SIG_DFL.
	unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&dfl)), 0, linux.SignalSetSize, 0, 0)

	pid, _, _ := unix.RawSyscall(unix.SYS_GETPID, 0, 0, 0)
	tid, _, _ := unix.RawSyscall(unix.SYS_GETTID, 0, 0, 0)
	unix.RawSyscall(unix.SYS_TGKILL, pid, tid, uintptr(sig))
}

// chain transfers the delivery to the handler that was installed before the
// bridge's, reproducing the kernel's conventions: the handler's saved mask
// is applied for the duration of the call, the delivered signal is
// additionally blocked unless the handler was registered with SA_NODEFER,
// and a saved SA_RESETHAND is mirrored into the registry afterwards so the
// next delivery follows the default path, just as it would have without the
// bridge in between.
//
//go:nosplit
func chain(act *linux.SigAction, sigNum uint64, info *linux.SignalInfo, ctx unsafe.Pointer) {
	mask := chainMask(act, linux.Signal(sigNum))

	var previous linux.SignalSet
	unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_SETMASK, uintptr(unsafe.Pointer(&mask)), uintptr(unsafe.Pointer(&previous)), linux.SignalSetSize, 0, 0)

	if act.IsSigInfo() {
		callSigactionHandler(uintptr(act.Handler), uintptr(sigNum), unsafe.Pointer(info), ctx)
	} else {
		callSignalHandler(uintptr(act.Handler), uintptr(sigNum))
	}

	unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_SETMASK, uintptr(unsafe.Pointer(&previous)), 0, linux.SignalSetSize, 0, 0)

	// The kernel reset its own disposition to SIG_DFL when it delivered
	// to an SA_RESETHAND handler; record the same locally. This is the
	// registry's only post-initialization write and never re-queries the
	// kernel.
	if act.IsResetHandler() {
		act.Handler = linux.SIG_DFL
	}
}

// chainMask computes the thread signal mask to apply while the previous
// handler runs.
//
//go:nosplit
func chainMask(act *linux.SigAction, sig linux.Signal) linux.SignalSet {
	mask := act.Mask
	if !act.IsNoDefer() {
		mask |= linux.SignalSet(uint64(1) << uint64(sig-1))
	}
	return mask
}
