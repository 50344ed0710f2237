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

package cmd

import (
	"context"
	"flag"
	"fmt"

	"github.com/google/subcommands"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"enclaverun.dev/enclaverun/runenc/config"
	"enclaverun.dev/enclaverun/runenc/scenario"
)

// Probe implements subcommands.Command for the "probe" command, which runs
// exception bridge scenarios in child processes and verifies how they end.
type Probe struct {
	configPath string
}

// Name implements subcommands.Command.Name.
func (*Probe) Name() string {
	return "probe"
}

// Synopsis implements subcommands.Command.Synopsis.
func (*Probe) Synopsis() string {
	return "run exception bridge scenarios and check their outcomes"
}

// Usage implements subcommands.Command.Usage.
func (*Probe) Usage() string {
	return `probe [flags] [scenario...]`
}

// SetFlags implements subcommands.Command.SetFlags.
func (p *Probe) SetFlags(f *flag.FlagSet) {
	f.StringVar(&p.configPath, "config", "", "TOML configuration file; flags and arguments override it")
}

// Execute implements subcommands.Command.Execute.
func (p *Probe) Execute(_ context.Context, f *flag.FlagSet, args ...any) subcommands.ExitStatus {
	conf := config.Default()
	if p.configPath != "" {
		var err error
		if conf, err = config.Load(p.configPath); err != nil {
			Fatalf("%v", err)
		}
	}
	if f.NArg() > 0 {
		conf.Scenarios = f.Args()
	}

	log := args[0].(*logrus.Logger)
	log.SetLevel(conf.Level())

	scenarios, err := selectScenarios(conf.Scenarios)
	if err != nil {
		Fatalf("%v", err)
	}

	var g errgroup.Group
	g.SetLimit(conf.Parallelism)
	for _, s := range scenarios {
		s := s
		g.Go(func() error {
			entry := log.WithField("scenario", s.Name)
			entry.Info(s.Description)
			if err := scenario.Run(s, entry, conf.Timeout()); err != nil {
				entry.WithError(err).Error("scenario failed")
				return err
			}
			entry.Info("ok")
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return subcommands.ExitFailure
	}
	log.WithField("count", len(scenarios)).Info("all scenarios passed")
	return subcommands.ExitSuccess
}

func selectScenarios(names []string) ([]scenario.Scenario, error) {
	if len(names) == 0 {
		return scenario.All(), nil
	}
	var out []scenario.Scenario
	for _, name := range names {
		s, ok := scenario.ByName(name)
		if !ok {
			return nil, fmt.Errorf("unknown scenario %q", name)
		}
		out = append(out, s)
	}
	return out, nil
}
