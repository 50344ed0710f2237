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

// Package arch provides architecture-specific definitions of the raw signal
// frame the kernel hands to a signal handler. A per-architecture file defines
// the register context; callers that need to stay architecture-neutral go
// through the exception package instead of using these layouts directly.
package arch

// SignalStack represents information about a user stack, and is equivalent
// to stack_t.
type SignalStack struct {
	Addr  uint64
	Flags uint32
	_     uint32
	Size  uint64
}
