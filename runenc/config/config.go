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

// Package config holds the runenc probe configuration.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/sirupsen/logrus"
)

// Config configures a probe run.
type Config struct {
	// Scenarios names the scenarios to run; empty means all of them.
	Scenarios []string `toml:"scenarios"`

	// TimeoutSeconds bounds each scenario child.
	TimeoutSeconds int `toml:"timeout_seconds"`

	// LogLevel is a logrus level name.
	LogLevel string `toml:"log_level"`

	// Parallelism is the number of scenarios run concurrently.
	Parallelism int `toml:"parallelism"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		TimeoutSeconds: 30,
		LogLevel:       "info",
		Parallelism:    1,
	}
}

// Load reads a TOML configuration file, filling unset fields from Default.
func Load(path string) (*Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, c); err != nil {
		return nil, fmt.Errorf("loading config %q: %w", path, err)
	}
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("config %q: %w", path, err)
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.TimeoutSeconds <= 0 {
		return fmt.Errorf("timeout_seconds must be positive, got %d", c.TimeoutSeconds)
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// Timeout returns the per-scenario timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// Level returns the parsed log level. Load has already validated it.
func (c *Config) Level() logrus.Level {
	l, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}
