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

// Package linux contains the constants and struct layouts of the Linux
// signal ABI that the host exception bridge operates on. Layouts follow the
// kernel's uapi definitions exactly; they are passed to raw system calls and
// must not be reordered or padded differently.
package linux
