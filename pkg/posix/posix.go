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

// Package posix carries the shared definitions of the POSIX bridge between
// the host and the enclave: host file descriptors, the packed epoll
// notification record, and registration of the call tables the two sides
// exchange. The exception bridge never inspects any of this; it is an
// independently owned surface that happens to share the host runtime's
// initialization sequence.
package posix

import (
	"fmt"
	"sync"
)

// HostFD represents a file descriptor owned by the host. It is 64 bits wide
// so that a second, non-POSIX host platform can pass its native handle type
// through unchanged.
type HostFD int64

// DeviceNotification describes one epoll event forwarded from the host to
// the enclave's poll device.
type DeviceNotification struct {
	// EventMask is the epoll event bits.
	EventMask uint32

	// EpollFD is the enclave-side descriptor of the epoll device.
	EpollFD uint32

	// ListIdx is the host-assigned slot in the notification list; the
	// host stores it in the event data so the enclave can find the
	// registration that fired.
	ListIdx uint32
}

// Data packs the descriptor and slot into the 64-bit epoll data word, with
// the descriptor in the low half.
func (n DeviceNotification) Data() uint64 {
	return uint64(n.ListIdx)<<32 | uint64(n.EpollFD)
}

// NotificationFromData is the inverse of Data.
func NotificationFromData(events uint32, data uint64) DeviceNotification {
	return DeviceNotification{
		EventMask: events,
		EpollFD:   uint32(data),
		ListIdx:   uint32(data >> 32),
	}
}

// Function table identifiers shared by the two sides of the bridge.
const (
	// OcallTableID identifies the host-side call table.
	OcallTableID = 0

	// EcallTableID identifies the enclave-side call table.
	EcallTableID = 0
)

// Call tables are registered once, during host bring-up, before any call can
// arrive. The bridge treats the registered entries as opaque.
var (
	tablesMu    sync.Mutex
	ocallTables = make(map[uint64][]uintptr)
	ecallTables = make(map[uint64][]uintptr)
)

// RegisterOcallTable registers the host-side call table for id. Registering
// the same id twice is an error; tables are immutable once registered.
func RegisterOcallTable(id uint64, fns []uintptr) error {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if _, ok := ocallTables[id]; ok {
		return fmt.Errorf("posix: ocall table %d already registered", id)
	}
	ocallTables[id] = fns
	return nil
}

// RegisterEcallTable registers the enclave-side call table for id.
func RegisterEcallTable(id uint64, fns []uintptr) error {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	if _, ok := ecallTables[id]; ok {
		return fmt.Errorf("posix: ecall table %d already registered", id)
	}
	ecallTables[id] = fns
	return nil
}

// OcallTable returns the host-side table registered under id.
func OcallTable(id uint64) ([]uintptr, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	fns, ok := ocallTables[id]
	return fns, ok
}

// EcallTable returns the enclave-side table registered under id.
func EcallTable(id uint64) ([]uintptr, bool) {
	tablesMu.Lock()
	defer tablesMu.Unlock()
	fns, ok := ecallTables[id]
	return fns, ok
}
