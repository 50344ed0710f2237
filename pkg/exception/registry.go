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

// savedActions records, for every managed signal, the disposition that was
// in effect immediately before Initialize installed the bridge's handler.
// It is populated entirely during Initialize, before any managed signal can
// reach the bridge's handler, and is read-only afterwards with one
// exception: when a chained handler was registered with SA_RESETHAND, its
// entry is rewritten to SIG_DFL after the first chained delivery, mirroring
// what the kernel did to its own disposition. Concurrent deliveries of the
// same signal racing that rewrite are accepted; signal-handler context
// forbids the synchronization that would close the window.
var savedActions [linux.SignalMaximum + 1]linux.SigAction

// savedAction returns the registry entry for sig.
//
//go:nosplit
func savedAction(sig linux.Signal) *linux.SigAction {
	return &savedActions[sig]
}
