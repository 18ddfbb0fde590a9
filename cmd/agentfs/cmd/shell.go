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

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pedrocarlo/agentfs"
)

var shellCmd = &cobra.Command{
	Use:   "shell [db-path]",
	Short: "Open an AgentFS instance and drive it from an interactive line reader",
	Long: `shell is a minimal, in-repo exerciser for the AgentFS kernel: it
reads lines from stdin and evaluates a handful of shell-like commands
(ls, cat, echo >, mkdir, rm, rmdir, ln, mv, stat) against one instance.
It is not a full bash-tool shim (that integration is out of scope).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runShell,
}

func runShell(cmd *cobra.Command, args []string) error {
	dsn := AppConfig.DSN
	if len(args) == 1 {
		dsn = args[0]
	}

	ctx := context.Background()
	fsys, err := agentfs.Open(ctx, agentfs.Config{
		DSN:        dsn,
		InstanceID: AppConfig.InstanceID,
		BlockSize:  AppConfig.BlockSize,
	})
	if err != nil {
		return fmt.Errorf("opening %q: %w", dsn, err)
	}
	defer fsys.Close()

	return evalLines(ctx, fsys, cmd.InOrStdin(), cmd.OutOrStdout())
}

func evalLines(ctx context.Context, fsys *agentfs.FS, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := evalLine(ctx, fsys, line, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
	return scanner.Err()
}

func evalLine(ctx context.Context, fsys *agentfs.FS, line string, out io.Writer) error {
	if idx := strings.Index(line, ">"); strings.HasPrefix(line, "echo ") && idx != -1 {
		body := strings.TrimSpace(line[len("echo "):idx])
		path := strings.TrimSpace(line[idx+1:])
		body = strings.Trim(body, `"'`)
		return fsys.WriteString(ctx, path, body+"\n")
	}

	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	verb, rest := fields[0], fields[1:]

	switch verb {
	case "ls":
		path := "."
		if len(rest) > 0 {
			path = rest[0]
		}
		entries, err := fsys.Readdir(ctx, path)
		if err != nil {
			return err
		}
		for _, e := range entries {
			fmt.Fprintln(out, e.Name)
		}
		return nil

	case "cat":
		if len(rest) != 1 {
			return fmt.Errorf("usage: cat <path>")
		}
		text, err := fsys.ReadString(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprint(out, text)
		return nil

	case "mkdir":
		if len(rest) < 1 {
			return fmt.Errorf("usage: mkdir [-p] <path>")
		}
		recursive := rest[0] == "-p"
		path := rest[0]
		if recursive {
			if len(rest) < 2 {
				return fmt.Errorf("usage: mkdir -p <path>")
			}
			path = rest[1]
		}
		return fsys.Mkdir(ctx, path, recursive)

	case "rm":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rm <path>")
		}
		return fsys.Unlink(ctx, rest[0])

	case "rmdir":
		if len(rest) != 1 {
			return fmt.Errorf("usage: rmdir <path>")
		}
		return fsys.Rmdir(ctx, rest[0])

	case "ln":
		if len(rest) != 2 {
			return fmt.Errorf("usage: ln <old> <new>")
		}
		return fsys.Link(ctx, rest[0], rest[1])

	case "mv":
		if len(rest) != 2 {
			return fmt.Errorf("usage: mv <from> <to>")
		}
		return fsys.Rename(ctx, rest[0], rest[1])

	case "stat":
		if len(rest) != 1 {
			return fmt.Errorf("usage: stat <path>")
		}
		st, err := fsys.Stat(ctx, rest[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "ino=%d kind=%s mode=%o nlink=%d size=%d\n",
			st.Ino, st.Kind, st.Mode, st.Nlink, st.Size)
		return nil

	default:
		return fmt.Errorf("unknown command %q", verb)
	}
}
