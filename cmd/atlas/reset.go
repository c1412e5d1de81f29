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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/internal/errors"
	"github.com/kraklabs/atlas/internal/output"
	"github.com/kraklabs/atlas/internal/ui"
	"github.com/kraklabs/atlas/pkg/pipeline"
	"github.com/kraklabs/atlas/pkg/storage"
)

// runReset clears local checkpoint state for a collection. It never touches
// the storage collection itself — dropping ingested data is a storage-level
// operation, not something the CLI does implicitly behind a flag.
func runReset(args []string, configPath string) {
	fs := pflag.NewFlagSet("reset", pflag.ExitOnError)
	var globals GlobalFlags
	fs.BoolVar(&globals.JSON, "json", false, "Output a JSON result")
	fs.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	confirmed := fs.Bool("yes", false, "Confirm the destructive reset (required)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atlas reset --yes [options]\n\n")
		fmt.Fprintf(os.Stderr, "Deletes the local ingestion checkpoint file for the configured collection.\nIngest never resumes from this file; it always re-reads every input path.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	ui.InitColors(globals.NoColor)

	if !*confirmed {
		handleFatal(errors.NewInputError(
			"Refusing to reset without confirmation",
			"atlas reset deletes the local checkpoint file",
			"Re-run with --yes to confirm",
		), globals.JSON)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot load atlas.yaml", err.Error(), "Run: atlas init", err), globals.JSON)
	}

	collection, err := storage.ParseDSNCollection(cfg.Backends.Storage)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot parse storage DSN", err.Error(), "Check backends.storage_dsn in atlas.yaml", err), globals.JSON)
	}

	cm := pipeline.NewCheckpointManager(cfg.Ingestion.CheckpointPath)
	if err := cm.ClearCheckpoint(collection); err != nil {
		handleFatal(errors.NewPermissionError("Cannot remove checkpoint file", err.Error(), "Check file permissions under the checkpoint directory", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(map[string]string{"collection": collection, "status": "reset"})
		return
	}
	ui.Successf("Cleared checkpoint state for collection %q", collection)
}
