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

// Package cmd is the agentfs CLI's cobra command tree.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pedrocarlo/agentfs/internal/config"
	"github.com/pedrocarlo/agentfs/internal/logger"
)

var (
	cfgFile   string
	bindErr   error
	AppConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "agentfs",
	Short: "A persistent, POSIX-semantic virtual filesystem backed by an embedded database",
	Long: `agentfs is an in-process virtual filesystem that stores inodes,
directory entries and file content as rows in an embedded SQL database,
giving an AI agent's tool calls a durable workspace without a real mount.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if bindErr != nil {
			return bindErr
		}
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		AppConfig = cfg
		return logger.Init(logger.Config{
			Format:   cfg.Log.Format,
			Severity: cfg.Log.Severity,
			File:     cfg.Log.File,
		})
	},
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "path to a YAML config file")
	bindErr = config.BindFlags(rootCmd.PersistentFlags())
	rootCmd.AddCommand(shellCmd)
}

func initConfig() {
	if cfgFile == "" {
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		bindErr = fmt.Errorf("reading config file: %w", err)
	}
}
