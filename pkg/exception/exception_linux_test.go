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
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"testing"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"enclaverun.dev/enclaverun/pkg/abi/linux"
	"enclaverun.dev/enclaverun/pkg/test/sigstub"
)

const scenarioEnv = "EXCEPTION_TEST_SCENARIO"

// Test dispatcher state. Deliveries below are raised with tgkill on the
// calling thread, so the handler runs synchronously before raise returns and
// plain variables are safe.
var (
	testOutcome Outcome
	testCalls   int
	testContext Context
)

func testDispatcher(ec *Context) Outcome {
	testCalls++
	testContext = *ec
	return testOutcome
}

// chainCh receives SIGUSR1 forwarded by the Go runtime's handler, which is
// the "real previous handler" the chaining tests exercise.
var chainCh = make(chan os.Signal, 4)

func TestMain(m *testing.M) {
	if name := os.Getenv(scenarioEnv); name != "" {
		runScenario(name)
		// Scenarios never return; they exit or die by signal.
		fmt.Fprintf(os.Stderr, "scenario %q returned\n", name)
		os.Exit(2)
	}

	// Arrange the dispositions the tests assume before the bridge
	// captures them: SIGUSR2 gets its true default action back, SIGUSR1
	// stays with the runtime's handler, observed through Notify, and
	// SIGALRM gets a single-argument C-convention handler.
	resetToDefault(linux.SIGUSR2)
	signal.Notify(chainCh, syscall.SIGUSR1)
	installSimple(linux.SIGALRM, sigstub.Handler())

	SetDispatcher(testDispatcher)
	Initialize()
	os.Exit(m.Run())
}

// resetToDefault restores the kernel's default disposition for sig,
// removing whatever handler the Go runtime installed at startup.
func resetToDefault(sig linux.Signal) {
	var dfl linux.SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&dfl)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		panic(fmt.Sprintf("resetting signal %d: %v", sig, e))
	}
}

// addResetHand reinstalls the current disposition for sig with SA_RESETHAND
// added, turning the runtime's handler into a one-shot chain target.
func addResetHand(sig linux.Signal) {
	var act linux.SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), 0, uintptr(unsafe.Pointer(&act)), linux.SignalSetSize, 0, 0); e != 0 {
		panic(fmt.Sprintf("reading disposition for signal %d: %v", sig, e))
	}
	act.Flags |= linux.SA_RESETHAND
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&act)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		panic(fmt.Sprintf("reinstalling disposition for signal %d: %v", sig, e))
	}
}

// installSimple installs a handler that uses the single-argument calling
// convention, with no flags at all.
func installSimple(sig linux.Signal, handler uintptr) {
	act := linux.SigAction{Handler: uint64(handler)}
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(sig), uintptr(unsafe.Pointer(&act)), 0, linux.SignalSetSize, 0, 0); e != 0 {
		panic(fmt.Sprintf("installing handler for signal %d: %v", sig, e))
	}
}

// raise delivers sig to the calling thread.
func raise(sig linux.Signal) {
	if err := unix.Tgkill(unix.Getpid(), unix.Gettid(), unix.Signal(sig)); err != nil {
		panic(fmt.Sprintf("tgkill(%d): %v", sig, err))
	}
}

func currentMask() linux.SignalSet {
	var mask linux.SignalSet
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGPROCMASK, linux.SIG_SETMASK, 0, uintptr(unsafe.Pointer(&mask)), linux.SignalSetSize, 0, 0); e != 0 {
		panic(fmt.Sprintf("reading signal mask: %v", e))
	}
	return mask
}

func resetTestState(outcome Outcome) {
	testOutcome = outcome
	testCalls = 0
	testContext = Context{}
}

func TestRegistryCapturedPreviousDispositions(t *testing.T) {
	// SIGUSR2 was reset before Initialize: the registry must show the
	// default action.
	if act := savedAction(linux.SIGUSR2); act.Handler != linux.SIG_DFL {
		t.Errorf("saved SIGUSR2 handler = %#x, want SIG_DFL", act.Handler)
	}
	// SIGUSR1 kept the runtime's handler, which uses extended dispatch.
	act := savedAction(linux.SIGUSR1)
	if act.Handler == linux.SIG_DFL || act.Handler == linux.SIG_IGN {
		t.Fatalf("saved SIGUSR1 handler = %#x, want a real handler", act.Handler)
	}
	if !act.IsSigInfo() {
		t.Errorf("saved SIGUSR1 disposition lacks SA_SIGINFO")
	}
}

func TestInstalledHandlerFlags(t *testing.T) {
	var act linux.SigAction
	if _, _, e := unix.RawSyscall6(unix.SYS_RT_SIGACTION, uintptr(linux.SIGSEGV), 0, uintptr(unsafe.Pointer(&act)), linux.SignalSetSize, 0, 0); e != 0 {
		t.Fatalf("reading installed disposition: %v", e)
	}
	if got, want := act.Handler, uint64(addrOfSighandler()); got != want {
		t.Fatalf("installed handler = %#x, want %#x", got, want)
	}
	// SA_ONSTACK in particular: without it the kernel would push the
	// signal frame onto the delivering goroutine's stack.
	for _, flag := range []uint64{linux.SA_SIGINFO, linux.SA_NODEFER, linux.SA_RESTART, linux.SA_ONSTACK, linux.SA_RESTORER} {
		if act.Flags&flag == 0 {
			t.Errorf("installed flags %#x lack %#x", act.Flags, flag)
		}
	}
}

func TestDeliveryDoesNotAllocate(t *testing.T) {
	resetTestState(ContinueExecution)
	if n := testing.AllocsPerRun(100, func() { raise(linux.SIGUSR2) }); n != 0 {
		t.Errorf("delivery allocated %v times per run, want 0", n)
	}
}

func TestResolvedDeliveryResumes(t *testing.T) {
	resetTestState(ContinueExecution)
	raise(linux.SIGUSR2)
	if testCalls != 1 {
		t.Fatalf("dispatcher called %d times, want 1", testCalls)
	}
	if got, want := testContext.SignalNumber, uint64(linux.SIGUSR2); got != want {
		t.Errorf("SignalNumber = %d, want %d", got, want)
	}
}

func TestOptionalSignalSwallowed(t *testing.T) {
	// SIGUSR2 has no real previous handler; with the dispatcher declining
	// it must be dropped without terminating the process.
	resetTestState(ContinueSearch)
	raise(linux.SIGUSR2)
	if testCalls != 1 {
		t.Fatalf("dispatcher called %d times, want 1", testCalls)
	}
	// Still here: swallowed.
}

func TestChainToPreviousHandler(t *testing.T) {
	resetTestState(ContinueSearch)
	before := currentMask()
	raise(linux.SIGUSR1)
	if testCalls != 1 {
		t.Fatalf("dispatcher called %d times, want 1", testCalls)
	}
	select {
	case <-chainCh:
		// The runtime's handler ran and forwarded the signal.
	case <-time.After(5 * time.Second):
		t.Fatal("previous handler was not invoked")
	}
	if after := currentMask(); after != before {
		t.Errorf("signal mask after chain = %#x, want %#x", after, before)
	}
}

func TestChainToSimpleHandler(t *testing.T) {
	// SIGALRM's previous handler was installed without SA_SIGINFO, so the
	// chain must use the single-argument convention.
	if act := savedAction(linux.SIGALRM); act.IsSigInfo() {
		t.Fatalf("saved SIGALRM disposition has SA_SIGINFO, want simple form")
	}
	sigstub.Reset()
	resetTestState(ContinueSearch)
	raise(linux.SIGALRM)
	if testCalls != 1 {
		t.Fatalf("dispatcher called %d times, want 1", testCalls)
	}
	if got := sigstub.Calls(); got != 1 {
		t.Fatalf("previous handler called %d times, want 1", got)
	}
	if got, want := sigstub.Signal(), uint32(linux.SIGALRM); got != want {
		t.Errorf("previous handler received signal %d, want %d", got, want)
	}
}

func TestDefaultSetNumberZeroedOnDelivery(t *testing.T) {
	resetTestState(ContinueExecution)
	raise(linux.SIGTRAP)
	if testCalls != 1 {
		t.Fatalf("dispatcher called %d times, want 1", testCalls)
	}
	if testContext.SignalNumber != 0 {
		t.Errorf("SignalNumber = %d, want 0 for SIGTRAP", testContext.SignalNumber)
	}
}

func TestSegvKeepsNumberOnDelivery(t *testing.T) {
	resetTestState(ContinueExecution)
	raise(linux.SIGSEGV)
	if testCalls != 1 {
		t.Fatalf("dispatcher called %d times, want 1", testCalls)
	}
	if got, want := testContext.SignalNumber, uint64(linux.SIGSEGV); got != want {
		t.Errorf("SignalNumber = %d, want %d", got, want)
	}
}

// Scenarios that end in process death run in child processes.

func runScenario(name string) {
	decline := Dispatcher(func(*Context) Outcome { return ContinueSearch })

	switch name {
	case "swallow-usr1":
		resetToDefault(linux.SIGUSR1)
		SetDispatcher(decline)
		Initialize()
		raise(linux.SIGUSR1)
		os.Exit(0)

	case "abort-default":
		resetToDefault(linux.SIGABRT)
		SetDispatcher(decline)
		Initialize()
		raise(linux.SIGABRT)
		os.Exit(3) // Unreachable: SIGABRT is never swallowed.

	case "bus-default":
		resetToDefault(linux.SIGBUS)
		SetDispatcher(decline)
		Initialize()
		raise(linux.SIGBUS)
		os.Exit(3) // Unreachable: default-set signals re-raise to default.

	case "resethand-usr1":
		addResetHand(linux.SIGUSR1)
		SetDispatcher(decline)
		Initialize()
		// First delivery chains to the one-shot handler; the bridge
		// records SIG_DFL for the next one.
		raise(linux.SIGUSR1)
		// Second delivery takes the default path and kills us.
		raise(linux.SIGUSR1)
		os.Exit(3)
	}

	fmt.Fprintf(os.Stderr, "unknown scenario %q\n", name)
	os.Exit(2)
}

func TestFaultScenarios(t *testing.T) {
	for _, tc := range []struct {
		scenario string
		// fatal is the signal expected to terminate the child; zero
		// means a clean exit.
		fatal linux.Signal
	}{
		{scenario: "swallow-usr1"},
		{scenario: "abort-default", fatal: linux.SIGABRT},
		{scenario: "bus-default", fatal: linux.SIGBUS},
		{scenario: "resethand-usr1", fatal: linux.SIGUSR1},
	} {
		t.Run(tc.scenario, func(t *testing.T) {
			cmd := exec.Command(os.Args[0])
			cmd.Env = append(os.Environ(), scenarioEnv+"="+tc.scenario)
			err := cmd.Run()

			if tc.fatal == 0 {
				if err != nil {
					t.Fatalf("scenario %q: %v", tc.scenario, err)
				}
				return
			}

			var ee *exec.ExitError
			if !errors.As(err, &ee) {
				t.Fatalf("scenario %q: got %v, want termination by signal %d", tc.scenario, err, tc.fatal)
			}
			ws, ok := ee.Sys().(syscall.WaitStatus)
			if !ok {
				t.Fatalf("scenario %q: no wait status", tc.scenario)
			}
			if !ws.Signaled() || ws.Signal() != syscall.Signal(tc.fatal) {
				t.Errorf("scenario %q: wait status %#x, want termination by signal %d", tc.scenario, uint32(ws), tc.fatal)
			}
		})
	}
}
