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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "runenc.toml")
	if err := os.WriteFile(path, []byte(contents), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
scenarios = ["resolve-usr2", "abort-default"]
timeout_seconds = 5
log_level = "debug"
parallelism = 4
`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := &Config{
		Scenarios:      []string{"resolve-usr2", "abort-default"},
		TimeoutSeconds: 5,
		LogLevel:       "debug",
		Parallelism:    4,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load returned unexpected config (-want +got):\n%s", diff)
	}
	if got.Timeout() != 5*time.Second {
		t.Errorf("Timeout() = %v, want 5s", got.Timeout())
	}
}

func TestLoadDefaults(t *testing.T) {
	// A file setting only one field keeps defaults for the rest.
	path := writeConfig(t, `log_level = "warning"`)
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TimeoutSeconds != 30 || got.Parallelism != 1 {
		t.Errorf("defaults not preserved: %+v", got)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	for _, tc := range []struct {
		name     string
		contents string
	}{
		{"zero timeout", `timeout_seconds = 0`},
		{"negative parallelism", `parallelism = -1`},
		{"bad level", `log_level = "loud"`},
		{"bad toml", `scenarios = [`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tc.contents)); err == nil {
				t.Error("Load succeeded, want error")
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("Load succeeded on a missing file, want error")
	}
}
