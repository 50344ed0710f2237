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

//go:build amd64
// +build amd64

package exception

import (
	"unsafe"

	"enclaverun.dev/enclaverun/pkg/abi/linux"
	"enclaverun.dev/enclaverun/pkg/arch"
)

// sighandler is the signal entry point, defined in exception_amd64.s. Its
// address, not the address of a Go wrapper, is what gets installed, so the
// Go runtime's signal plumbing is bypassed entirely for managed signals.
func sighandler()

// addrOfSighandler returns the start address of sighandler.
//
// sighandler is written in assembly and thus can never be inlined, so
// taking its address this way is stable.
func addrOfSighandler() uintptr

// sigreturn is the sa_restorer trampoline paired with sighandler; it issues
// rt_sigreturn the way a libc restorer would.
func sigreturn()

// addrOfSigreturn returns the start address of sigreturn.
func addrOfSigreturn() uintptr

// callSigactionHandler invokes a saved three-argument (SA_SIGINFO) handler
// with the C calling convention.
func callSigactionHandler(handler, sigNum uintptr, info, ctx unsafe.Pointer)

// callSignalHandler invokes a saved single-argument handler with the C
// calling convention.
func callSignalHandler(handler, sigNum uintptr)

// translate builds the platform-neutral fault context from the raw delivery.
// Another architecture's adapter would supply its own translate beside this
// one; everything above this layer is architecture-neutral.
//
//go:nosplit
func translate(ec *Context, sig linux.Signal, info *linux.SignalInfo, ctx unsafe.Pointer) {
	mctx := &(*arch.UContext64)(ctx).MContext
	ec.Rax = mctx.Rax
	ec.Rbx = mctx.Rbx
	ec.Rip = mctx.Rip
	ec.FaultingAddress = info.Addr()

	// Only SIGSEGV can identify a fault the isolation hardware raised for
	// an enclave memory violation, so only it keeps its number for the
	// dispatcher to classify; the rest of the default set reaches this
	// path purely through preventive interception and carries zero.
	// Optional signals always carry their number.
	ec.SignalNumber = uint64(sig)
	if Classify(sig) == ClassDefault && sig != linux.SIGSEGV {
		ec.SignalNumber = 0
	}
}
