// Copyright 2025 KrakLabs
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
//
// SPDX-License-Identifier: Apache-2.0

// Package main implements the Atlas CLI: ingest paths into a collection,
// search and browse what's been ingested, and optionally serve both over a
// local MCP tool surface.
//
// Usage:
//
//	atlas init                          Create atlas.yaml configuration
//	atlas ingest <paths...>              Ingest files or directories
//	atlas search <query>                 Semantic search over a collection
//	atlas timeline --since <time>        Chronological chunk listing
//	atlas status                         Show registry and collection status
//	atlas reset --yes                    Delete local checkpoint state
//	atlas --mcp                          Start as an MCP server (stdio)
package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// GlobalFlags holds the flags every subcommand accepts, mirroring the
// corpus convention of a small shared flags struct threaded into per-command
// helpers (NewProgressConfig, output selection) instead of re-parsing them.
type GlobalFlags struct {
	JSON    bool
	Quiet   bool
	NoColor bool
	Verbose int
}

func main() {
	var (
		showVersion = pflag.BoolP("version", "V", false, "Show version and exit")
		mcpMode     = pflag.Bool("mcp", false, "Start as an MCP server (JSON-RPC over stdio)")
		configPath  = pflag.String("config", defaultConfigFileName, "Path to atlas.yaml")
	)
	pflag.Usage = printUsage

	pflag.Parse()

	if *showVersion {
		fmt.Printf("atlas version %s\n", version)
		fmt.Printf("commit: %s\n", commit)
		fmt.Printf("built: %s\n", date)
		os.Exit(0)
	}

	if *mcpMode {
		runMCPServer(*configPath)
		return
	}

	args := pflag.Args()
	if len(args) == 0 {
		pflag.Usage()
		os.Exit(1)
	}

	command := args[0]
	cmdArgs := args[1:]

	switch command {
	case "init":
		runInit(cmdArgs)
	case "ingest":
		runIngest(cmdArgs, *configPath)
	case "search":
		runSearch(cmdArgs, *configPath)
	case "timeline":
		runTimeline(cmdArgs, *configPath)
	case "status":
		runStatus(cmdArgs, *configPath)
	case "reset":
		runReset(cmdArgs, *configPath)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		pflag.Usage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Atlas - semantic memory substrate CLI

Usage:
  atlas <command> [options]

Commands:
  init          Create atlas.yaml configuration
  ingest        Ingest one or more paths into a collection
  search        Semantic search over an ingested collection
  timeline      List chunks chronologically
  status        Show registered backends and collection counts
  reset         Delete local checkpoint state (destructive!)

Global Options:
  --mcp         Start as an MCP server (JSON-RPC over stdio)
  --config      Path to atlas.yaml
  --version     Show version and exit

Examples:
  atlas init
  atlas ingest ./docs ./src --recursive
  atlas search "how does retry backoff work" --limit 5 --rerank
  atlas timeline --since 2026-07-01T00:00:00Z
  atlas status
  atlas --mcp

Environment Variables:
  OPENAI_API_KEY, ANTHROPIC_API_KEY, VOYAGE_API_KEY, QDRANT_API_KEY
  credentials are read from the environment only, never from atlas.yaml.

`)
}
