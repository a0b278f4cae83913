// Copyright 2025 Kadir Pekel
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

// Command playbooks is the CLI host for the playbooks execution core.
// It loads one or more compiled PBASM files, wires a durable checkpoint
// provider and an Anthropic-backed LLMCaller per declared AI agent, and
// drives a terminal session: stdin lines route to the chosen AI agent,
// and that agent's human-directed Say output streams back to stdout as
// the LLM generates it.
//
// Usage:
//
//	playbooks run examples/hello.pbasm
//	playbooks run --no-checkpoint examples/hello.pbasm
//	playbooks version
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"github.com/kadirpekel/playbooks/pkg/plog"
)

// CLI is the top-level kong command tree, following the teacher's own
// cmd/hector.CLI shape (one struct field per subcommand, global log
// flags on the root).
type CLI struct {
	Run     RunCmd     `cmd:"" help:"Run a compiled PBASM program interactively."`
	Version VersionCmd `cmd:"" help:"Show version information."`

	LogLevel  string `help:"Log level (debug, info, warn, error)." default:"warn"`
	LogFormat string `help:"Log format (simple or verbose)." default:"simple"`
}

// VersionCmd prints the module's build version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Println("playbooks (dev build)")
	return nil
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("playbooks"),
		kong.Description("Run playbooks programs: agents executing LLM-generated code against a durable call stack."),
	)

	level, err := plog.ParseLevel(cli.LogLevel)
	if err != nil {
		level = slog.LevelWarn
	}
	plog.Init(level, os.Stderr, cli.LogFormat)

	if err := ctx.Run(); err != nil {
		fmt.Fprintln(os.Stderr, "playbooks:", err)
		os.Exit(1)
	}
}
