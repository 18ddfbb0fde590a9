// Copyright 2025 Google LLC
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

// Package config is the typed configuration for an AgentFS instance,
// bound from CLI flags (via pflag) and materialized by viper so the
// same struct can be populated from flags, environment variables, or a
// YAML file.
package config

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultBlockSize is used when Config.BlockSize is left at zero.
const DefaultBlockSize = 4096

// Config is the full set of knobs for opening an AgentFS instance.
type Config struct {
	// DSN is the backing SQLite database path (or ":memory:").
	DSN string `mapstructure:"dsn"`

	// InstanceID names the instance in the process-wide registry
	// (agentfs.Open keys its instance cache by this value).
	InstanceID string `mapstructure:"instance-id"`

	// BlockSize sets the block size when an instance's database is first
	// created; it is immutable thereafter (superblock.block_size), and
	// reopening with a different value fails.
	BlockSize int `mapstructure:"block-size"`

	Log LogConfig `mapstructure:"log"`
}

type LogConfig struct {
	Format   string `mapstructure:"format"`
	Severity string `mapstructure:"severity"`
	File     string `mapstructure:"file"`
}

// BindFlags registers the AgentFS flags on flagSet and binds them into
// viper, so Load can later produce a Config from whatever combination of
// flags/env/file the caller used.
func BindFlags(flagSet *pflag.FlagSet) error {
	flagSet.String("dsn", "agentfs.db", "path to the backing SQLite database")
	flagSet.String("instance-id", "default", "name of the filesystem instance")
	flagSet.Int("block-size", DefaultBlockSize, "block size in bytes, fixed at instance creation")
	flagSet.String("log-format", "text", "log output format: text or json")
	flagSet.String("log-severity", "INFO", "minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR")
	flagSet.String("log-file", "", "path to a log file; empty means stderr")

	for _, name := range []string{"dsn", "instance-id", "block-size", "log-format", "log-severity", "log-file"} {
		if err := viper.BindPFlag(name, flagSet.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %q: %w", name, err)
		}
	}
	return nil
}

// Load materializes a Config from viper's current state (flags, env,
// config file — whatever BindFlags and the caller's viper setup wired
// up).
func Load() (Config, error) {
	cfg := Config{
		DSN:        viper.GetString("dsn"),
		InstanceID: viper.GetString("instance-id"),
		BlockSize:  viper.GetInt("block-size"),
		Log: LogConfig{
			Format:   viper.GetString("log-format"),
			Severity: viper.GetString("log-severity"),
			File:     viper.GetString("log-file"),
		},
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = "default"
	}
	return cfg, nil
}
