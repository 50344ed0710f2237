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

// Package scenario drives the exception bridge through its delivery paths,
// one dedicated child process per scenario: most paths end with the child
// terminated by a signal, so they cannot run in the probing process itself.
// The parent re-executes its own binary with an environment marker; the
// entry point is expected to divert such children into Child before doing
// anything else.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"

	"enclaverun.dev/enclaverun/pkg/abi/linux"
	"enclaverun.dev/enclaverun/pkg/exception"
	"enclaverun.dev/enclaverun/pkg/posix"
)

const (
	// ChildEnv marks a process as a scenario child and names the
	// scenario to run.
	ChildEnv = "RUNENC_SCENARIO"

	// ReadyEnv names a file the child creates once its bridge is
	// initialized and it is safe to deliver external signals.
	ReadyEnv = "RUNENC_SCENARIO_READY"
)

// A Scenario exercises one path through the bridge's chain resolution.
type Scenario struct {
	Name        string
	Description string

	// Fatal is the signal expected to terminate the child; zero means
	// the child must exit cleanly.
	Fatal linux.Signal

	// External, if nonzero, is delivered by the parent once the child
	// reports ready, instead of the child raising a signal itself.
	External linux.Signal

	// run executes in the child, after the POSIX tables are registered.
	// It must call ready once deliveries may arrive.
	run func(ready func())
}

func decline(*exception.Context) exception.Outcome { return exception.ContinueSearch }
func resolve(*exception.Context) exception.Outcome { return exception.ContinueExecution }

var scenarios = []Scenario{
	{
		Name:        "resolve-usr2",
		Description: "dispatcher resolves the fault; execution resumes",
		run: func(ready func()) {
			exception.SetDispatcher(resolve)
			exception.Initialize()
			ready()
			raise(linux.SIGUSR2)
		},
	},
	{
		Name:        "swallow-usr1",
		Description: "optional signal with no host handler is dropped",
		run: func(ready func()) {
			resetToDefault(linux.SIGUSR1)
			exception.SetDispatcher(decline)
			exception.Initialize()
			ready()
			raise(linux.SIGUSR1)
		},
	},
	{
		Name:        "abort-default",
		Description: "SIGABRT is never swallowed; the process aborts",
		Fatal:       linux.SIGABRT,
		run: func(ready func()) {
			resetToDefault(linux.SIGABRT)
			exception.SetDispatcher(decline)
			exception.Initialize()
			ready()
			raise(linux.SIGABRT)
		},
	},
	{
		Name:        "segv-default",
		Description: "unresolved SIGSEGV takes its true default action",
		Fatal:       linux.SIGSEGV,
		run: func(ready func()) {
			resetToDefault(linux.SIGSEGV)
			exception.SetDispatcher(decline)
			exception.Initialize()
			ready()
			raise(linux.SIGSEGV)
		},
	},
	{
		Name:        "resethand-usr1",
		Description: "one-shot previous handler chains once, then the default path kills",
		Fatal:       linux.SIGUSR1,
		run: func(ready func()) {
			addResetHand(linux.SIGUSR1)
			exception.SetDispatcher(decline)
			exception.Initialize()
			ready()
			raise(linux.SIGUSR1)
			raise(linux.SIGUSR1)
		},
	},
	{
		Name:        "external-hup",
		Description: "externally delivered SIGHUP with no host handler is dropped",
		External:    linux.SIGHUP,
		run: func(ready func()) {
			resetToDefault(linux.SIGHUP)
			exception.SetDispatcher(decline)
			exception.Initialize()
			ready()
			// Give the parent's delivery time to arrive; a swallow
			// leaves the sleep undisturbed.
			time.Sleep(2 * time.Second)
		},
	},
}

// All returns every scenario.
func All() []Scenario {
	return scenarios
}

// ByName returns the named scenario.
func ByName(name string) (Scenario, bool) {
	for _, s := range scenarios {
		if s.Name == name {
			return s, true
		}
	}
	return Scenario{}, false
}

// Child executes the named scenario in this process and never returns.
// Entry points must divert into Child before installing any signal
// handling of their own when ChildEnv is set.
func Child(name string) {
	s, ok := ByName(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown scenario %q\n", name)
		os.Exit(2)
	}

	// Host bring-up order: call tables first, then the exception bridge.
	if err := posix.RegisterOcallTable(posix.OcallTableID, nil); err != nil {
		fmt.Fprintf(os.Stderr, "registering ocall table: %v\n", err)
		os.Exit(2)
	}

	s.run(func() {
		if path := os.Getenv(ReadyEnv); path != "" {
			if err := os.WriteFile(path, []byte("ok"), 0644); err != nil {
				fmt.Fprintf(os.Stderr, "writing ready file: %v\n", err)
				os.Exit(2)
			}
		}
	})

	if s.Fatal != 0 {
		fmt.Fprintln(os.Stderr, "scenario survived a delivery that should have been fatal")
		os.Exit(3)
	}
	os.Exit(0)
}

// Run executes s in a child process and checks the way the child ended
// against the scenario's expectation.
func Run(s Scenario, log *logrus.Entry, timeout time.Duration) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving own binary: %w", err)
	}
	dir, err := os.MkdirTemp("", "runenc-scenario-")
	if err != nil {
		return fmt.Errorf("creating scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)
	readyPath := filepath.Join(dir, "ready")

	var stderr bytes.Buffer
	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), ChildEnv+"="+s.Name, ReadyEnv+"="+readyPath)
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting child: %w", err)
	}

	if s.External != 0 {
		if err := awaitReady(readyPath, timeout); err != nil {
			cmd.Process.Kill()
			cmd.Wait()
			return fmt.Errorf("scenario %q: %w", s.Name, err)
		}
		log.WithField("signal", int(s.External)).Debug("delivering external signal")
		if err := cmd.Process.Signal(syscall.Signal(s.External)); err != nil {
			return fmt.Errorf("scenario %q: delivering signal: %w", s.Name, err)
		}
	}

	waitErr := make(chan error, 1)
	go func() { waitErr <- cmd.Wait() }()
	select {
	case err = <-waitErr:
	case <-time.After(timeout):
		cmd.Process.Kill()
		<-waitErr
		return fmt.Errorf("scenario %q: timed out after %v", s.Name, timeout)
	}
	return expectStatus(s, err, stderr.Bytes())
}

// awaitReady polls for the child's ready file.
func awaitReady(path string, timeout time.Duration) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxElapsedTime = timeout
	op := func() error {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("child not ready: %w", err)
		}
		return nil
	}
	return backoff.Retry(op, b)
}

func expectStatus(s Scenario, err error, stderr []byte) error {
	if s.Fatal == 0 {
		if err != nil {
			return fmt.Errorf("scenario %q: child failed: %v (stderr: %q)", s.Name, err, stderr)
		}
		return nil
	}

	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		return fmt.Errorf("scenario %q: child exited cleanly, want termination by signal %d", s.Name, s.Fatal)
	}
	ws, ok := ee.Sys().(syscall.WaitStatus)
	if !ok {
		return fmt.Errorf("scenario %q: no wait status for child", s.Name)
	}
	if !ws.Signaled() || ws.Signal() != syscall.Signal(s.Fatal) {
		return fmt.Errorf("scenario %q: wait status %#x, want termination by signal %d (stderr: %q)", s.Name, uint32(ws), s.Fatal, stderr)
	}
	return nil
}
