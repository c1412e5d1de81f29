// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/internal/errors"
	"github.com/kraklabs/atlas/internal/ui"
)

const defaultConfigFileName = "atlas.yaml"

func runInit(args []string) {
	fs := pflag.NewFlagSet("init", pflag.ExitOnError)
	interactive := fs.Bool("interactive", true, "Prompt for backend choices instead of using defaults")
	force := fs.Bool("force", false, "Overwrite an existing atlas.yaml")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atlas init [options]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if _, err := os.Stat(defaultConfigFileName); err == nil && !*force {
		handleFatal(errors.NewConfigError(
			"atlas.yaml already exists",
			"init will not overwrite an existing configuration by default",
			"Re-run with --force to overwrite it",
		), false)
	}

	cfg := config.Default()

	if *interactive && isInteractiveTerminal() {
		runInteractiveInit(cfg)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		handleFatal(errors.NewInternalError("Cannot marshal configuration", err.Error(), "This is a bug, please report it", err), false)
	}
	if err := os.WriteFile(defaultConfigFileName, data, 0644); err != nil {
		handleFatal(errors.NewPermissionError("Cannot write atlas.yaml", err.Error(), "Check write permissions in the current directory", err), false)
	}

	addToGitignore(".atlas/")

	ui.Successf("Created %s", defaultConfigFileName)
	printInitNextSteps()
}

func runInteractiveInit(cfg *config.Config) {
	reader := bufio.NewReader(os.Stdin)

	embedding := prompt(reader, "Embedding backend (provider[:model])", orDefault(cfg.Backends.Embedding, "ollama"))
	cfg.Backends.Embedding = embedding

	reranker := prompt(reader, "Reranker backend (blank for none)", cfg.Backends.Reranker)
	cfg.Backends.Reranker = reranker

	storageDSN := prompt(reader, "Storage DSN", cfg.Backends.Storage)
	cfg.Backends.Storage = storageDSN
}

func prompt(reader *bufio.Reader, label, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", label, defaultValue)
	} else {
		fmt.Printf("%s: ", label)
	}
	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultValue
	}
	return line
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func isInteractiveTerminal() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func addToGitignore(entry string) {
	data, err := os.ReadFile(".gitignore")
	if err != nil && !os.IsNotExist(err) {
		return
	}
	if strings.Contains(string(data), entry) {
		return
	}
	f, err := os.OpenFile(".gitignore", os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	defer f.Close()
	if len(data) > 0 && !strings.HasSuffix(string(data), "\n") {
		fmt.Fprintln(f)
	}
	fmt.Fprintln(f, entry)
}

func printInitNextSteps() {
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Set the credentials your chosen backends need, e.g. export OPENAI_API_KEY=...")
	fmt.Println("  2. atlas ingest <paths...>")
	fmt.Println("  3. atlas search \"<query>\"")
}
