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

// Command agentfs is a small exerciser for the AgentFS kernel: its shell
// subcommand opens an instance and evaluates shell-like command lines
// read from stdin, the in-repo stand-in for the out-of-scope bash-tool
// shim (spec §1/§6).
package main

import (
	"os"

	"github.com/pedrocarlo/agentfs/cmd/agentfs/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
