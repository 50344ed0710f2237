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

// Package cli is the main entrypoint for runenc.
package cli

import (
	"context"
	"flag"
	"os"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"

	"enclaverun.dev/enclaverun/runenc/cmd"
	"enclaverun.dev/enclaverun/runenc/scenario"
)

// Main is the main entrypoint.
func Main() {
	// Scenario children divert here before any flag or signal setup, so
	// the child's signal dispositions are exactly what the scenario
	// arranges.
	if name := os.Getenv(scenario.ChildEnv); name != "" {
		scenario.Child(name)
		// Child never returns.
	}

	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(new(cmd.Probe), "")
	subcommands.Register(new(cmd.List), "")
	subcommands.Register(new(cmd.Version), "")

	flag.Parse()

	log := logrus.New()
	log.SetOutput(os.Stderr)

	os.Exit(int(subcommands.Execute(context.Background(), log)))
}
