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

package sigstub

import "sync/atomic"

// handler is the stub entry point, defined in sigstub_amd64.s. It records
// the signal number from the first C argument register and counts calls.
func handler()

// addrOfHandler returns the start address of handler.
//
// handler is written in assembly and thus can never be inlined, so taking
// its address this way is stable.
func addrOfHandler() uintptr

// Recording state written by the assembly stub.
var (
	calls  uint32
	signal uint32
)

// Handler returns the address of the stub, suitable for installing as a
// non-SA_SIGINFO disposition.
func Handler() uintptr {
	return addrOfHandler()
}

// Calls returns how many times the stub has run since the last Reset.
func Calls() uint32 {
	return atomic.LoadUint32(&calls)
}

// Signal returns the signal number the stub last received.
func Signal() uint32 {
	return atomic.LoadUint32(&signal)
}

// Reset clears the recorded state.
func Reset() {
	atomic.StoreUint32(&calls, 0)
	atomic.StoreUint32(&signal, 0)
}
