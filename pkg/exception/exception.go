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

// Package exception intercepts hardware and software faults raised while a
// thread executes inside a hardware-isolated enclave, forwards a
// platform-neutral description of the fault to the enclave runtime's
// dispatcher, and falls back to ordinary signal semantics when the enclave
// declines to handle it: dispositions that were installed before Initialize
// are invoked with their original calling convention and mask, and signals
// with no real prior handler either take their true default action or, for
// the optional set, are dropped.
//
// The handler installed by this package bypasses the Go runtime's signal
// handling entirely. It chains to the
// previously installed handler (including the Go runtime's own) when the
// fault is not an enclave fault, so ordinary panics keep working. After
// Initialize, calling signal.Notify for any managed signal would reinstall
// the runtime's handler over the bridge's and must be avoided.
package exception

// Outcome is the enclave dispatcher's verdict on a forwarded fault.
type Outcome int

const (
	// ContinueSearch means the fault was not an enclave fault, or the
	// enclave could not recover from it. Delivery proceeds to whatever
	// disposition was in effect before the bridge took over.
	ContinueSearch Outcome = iota

	// ContinueExecution means the enclave handled the fault; execution
	// resumes at the fault site through normal signal return.
	ContinueExecution
)

// Context is the platform-neutral description of a fault passed to the
// dispatcher. It lives on the delivering thread's stack for the duration of
// a single delivery and must not be retained.
type Context struct {
	// Rax, Rbx and Rip are raw register values captured at the fault
	// site; the enclave's transition bookkeeping needs exactly these to
	// tell an in-enclave fault from a host-side one.
	Rax uint64
	Rbx uint64
	Rip uint64

	// SignalNumber is the delivered signal number for SIGSEGV and for
	// every optional-set signal, and zero for the remaining default-set
	// signals. Only SIGSEGV can be raised by the isolation hardware for a
	// genuine enclave memory violation, so only it needs identity on the
	// enclave side; keep this rule as-is when extending the signal sets.
	SignalNumber uint64

	// FaultingAddress is si_addr. For a faulting access inside the
	// protected region the hardware reports it with the low 12 bits
	// cleared.
	FaultingAddress uint64
}

// Dispatcher is the single entry point into the enclave runtime's fault
// handling. It is invoked once per delivery, in signal-handler context, on
// whatever thread the kernel chose: implementations must not allocate,
// block, take locks, or let a panic escape.
type Dispatcher func(*Context) Outcome

// dispatch is read by the signal handler. Written once, before Initialize.
var dispatch Dispatcher

// SetDispatcher registers the enclave fault dispatcher. It must be called
// before Initialize; with no dispatcher registered every delivery behaves as
// ContinueSearch.
func SetDispatcher(d Dispatcher) {
	dispatch = d
}
