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

package config

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsDefaultsLoadIntoConfig(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "agentfs.db", cfg.DSN)
	require.Equal(t, "default", cfg.InstanceID)
	require.Equal(t, DefaultBlockSize, cfg.BlockSize)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, "INFO", cfg.Log.Severity)
}

func TestBindFlagsHonorsOverrides(t *testing.T) {
	viper.Reset()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)

	require.NoError(t, BindFlags(fs))
	require.NoError(t, fs.Parse([]string{"--dsn=/tmp/x.db", "--block-size=8192", "--instance-id=agent-1"}))

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "/tmp/x.db", cfg.DSN)
	require.Equal(t, 8192, cfg.BlockSize)
	require.Equal(t, "agent-1", cfg.InstanceID)
}

func TestLoadFallsBackOnInvalidBlockSize(t *testing.T) {
	viper.Reset()
	viper.Set("block-size", -1)
	viper.Set("instance-id", "")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, DefaultBlockSize, cfg.BlockSize)
	require.Equal(t, "default", cfg.InstanceID)
}
