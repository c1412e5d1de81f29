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
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/pflag"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/internal/errors"
	"github.com/kraklabs/atlas/internal/output"
	"github.com/kraklabs/atlas/internal/ui"
	"github.com/kraklabs/atlas/internal/wire"
	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/pipeline"
	"github.com/kraklabs/atlas/pkg/storage"
)

func runIngest(args []string, configPath string) {
	fs := pflag.NewFlagSet("ingest", pflag.ExitOnError)
	var globals GlobalFlags
	fs.BoolVar(&globals.JSON, "json", false, "Output a JSON summary instead of a progress bar")
	fs.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress progress output")
	fs.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	recursive := fs.BoolP("recursive", "r", true, "Recurse into subdirectories")
	exclude := fs.StringSlice("exclude", nil, "Glob patterns to exclude (repeatable)")
	importance := fs.String("importance", "normal", "Importance hint for ingested chunks: low, normal, high")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atlas ingest <paths...> [options]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	paths := fs.Args()
	if len(paths) == 0 {
		fs.Usage()
		os.Exit(errors.ExitInput)
	}

	ui.InitColors(globals.NoColor)

	cfg, err := config.Load(configPath)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot load atlas.yaml", err.Error(), "Check the file's YAML syntax or run: atlas init", err), globals.JSON)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	reg, err := wire.Backends(cfg, logger)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot build the backend registry", err.Error(), "Check the backends section of atlas.yaml and your API key environment variables", err), globals.JSON)
	}

	collection, store, err := openRegisteredStorage(cfg, reg)
	if err != nil {
		handleFatal(errors.NewDatabaseError("Cannot connect to storage", err.Error(), "Confirm Qdrant is running and reachable at the configured DSN", err), globals.JSON)
	}
	defer store.Close()

	ctx := context.Background()

	embedder, err := ingestTextEmbedder(reg)
	if err != nil {
		handleFatal(errors.NewConfigError("No text-embedding backend registered", err.Error(), "Set backends.embedding in atlas.yaml or an API key environment variable", err), globals.JSON)
	}
	vectorDims := map[string]int{"text": embedder.Dimensions()}
	if _, err := reg.GetFor(backend.CapabilityCodeEmbedding); err == nil {
		vectorDims["code"] = embedder.Dimensions()
	}

	ic := pipeline.NewIngestContext(reg, ".", collection, nil)
	pause := pipeline.NewPauseController()
	controller := pipeline.NewController(ic, pause, logger)

	progressCfg := NewProgressConfig(globals)
	bar := NewProgressBar(progressCfg, int64(len(paths)), phaseDescription("reading"))

	opts := pipeline.IngestOptions{
		Paths:              paths,
		ExcludeGlobs:       *exclude,
		Recursive:          *recursive,
		ChunkMinChars:      cfg.Ingestion.ChunkMinChars,
		BatchHNSWThreshold: cfg.Ingestion.BatchHNSWThreshold,
		VectorDimensions:   vectorDims,
		Importance:         *importance,
	}

	result, err := controller.Run(ctx, opts)
	if bar != nil {
		bar.Finish()
	}
	if err != nil {
		handleFatal(errors.NewDatabaseError("Ingestion failed", err.Error(), "Re-run 'atlas ingest' once the underlying issue is resolved; already-upserted batches are durable", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}

	ui.Successf("Ingested %d files into %d chunks", result.FilesProcessed, result.ChunksStored)
	if result.BatchMode {
		ui.Info("Batch mode was used (index building deferred until upsert finished)")
	}
	for _, e := range result.Errors {
		ui.Warningf("%s: %v", e.Path, e.Err)
	}
}

// openRegisteredStorage opens the configured storage backend, registers it
// into reg under backend.CapabilityVectorStorage, and returns its collection
// name. Storage is wired here rather than in internal/wire because only the
// commands that talk to the collection (ingest, search, timeline, status and
// the MCP tools) need a live connection; init never opens one.
func openRegisteredStorage(cfg *config.Config, reg interface {
	Register(backend.Capability, string, any) error
}) (string, *storage.QdrantStorage, error) {
	collection, err := storage.ParseDSNCollection(cfg.Backends.Storage)
	if err != nil {
		return "", nil, err
	}
	store, err := storage.Open(cfg.Backends.Storage)
	if err != nil {
		return "", nil, err
	}
	if err := reg.Register(backend.CapabilityVectorStorage, "qdrant", store); err != nil {
		return "", nil, err
	}
	return collection, store, nil
}

func ingestTextEmbedder(reg interface {
	GetFor(backend.Capability) (any, error)
}) (backend.TextEmbedder, error) {
	v, err := reg.GetFor(backend.CapabilityTextEmbedding)
	if err != nil {
		return nil, err
	}
	eb, ok := v.(backend.TextEmbedder)
	if !ok {
		return nil, fmt.Errorf("registered embedding backend does not implement TextEmbedder")
	}
	return eb, nil
}

func handleFatal(err *errors.UserError, jsonOutput bool) {
	errors.FatalError(err, jsonOutput)
}
