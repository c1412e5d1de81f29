// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-only

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
)

// StatusResult summarizes what atlas status reports: the registered backends
// per capability and the collection's point count.
type StatusResult struct {
	Collection  string              `json:"collection"`
	StorageDSN  string              `json:"storage_dsn"`
	ChunkCount  int64               `json:"chunk_count"`
	Backends    map[string][]string `json:"backends"`
	Unavailable map[string]string   `json:"unavailable,omitempty"`
}

func runStatus(args []string, configPath string) {
	fs := pflag.NewFlagSet("status", pflag.ExitOnError)
	var globals GlobalFlags
	fs.BoolVar(&globals.JSON, "json", false, "Output status as JSON")
	fs.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atlas status [options]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	ui.InitColors(globals.NoColor)

	cfg, err := config.Load(configPath)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot load atlas.yaml", err.Error(), "Run: atlas init", err), globals.JSON)
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
	count, err := store.Count(ctx, collection)
	if err != nil {
		handleFatal(errors.NewDatabaseError("Cannot count chunks", err.Error(), "Confirm the collection has been created with: atlas ingest", err), globals.JSON)
	}

	result := StatusResult{
		Collection:  collection,
		StorageDSN:  cfg.Backends.Storage,
		ChunkCount:  count,
		Backends:    make(map[string][]string),
		Unavailable: make(map[string]string),
	}

	capabilities := []backend.Capability{
		backend.CapabilityTextEmbedding,
		backend.CapabilityCodeEmbedding,
		backend.CapabilityContextualEmbed,
		backend.CapabilityTextReranking,
		backend.CapabilityKeyGeneration,
		backend.CapabilityTextSplitting,
		backend.CapabilityVectorStorage,
	}
	for _, cap := range capabilities {
		descs := reg.Descriptors(cap)
		if len(descs) == 0 {
			continue
		}
		specs := make([]string, len(descs))
		for i, d := range descs {
			specs[i] = d.Specifier()
		}
		result.Backends[string(cap)] = specs

		if err := reg.CheckAvailability(ctx, cap); err != nil {
			result.Unavailable[string(cap)] = err.Error()
		}
	}

	if globals.JSON {
		_ = output.JSON(result)
		return
	}
	printStatus(result)
}

func printStatus(r StatusResult) {
	ui.Header("Atlas Status")
	fmt.Printf("%s %s\n", ui.Label("Collection:"), r.Collection)
	fmt.Printf("%s %s\n", ui.Label("Storage:"), ui.DimText(r.StorageDSN))
	fmt.Printf("%s %s\n\n", ui.Label("Chunks:"), ui.CountText(int(r.ChunkCount)))

	ui.SubHeader("Backends:")
	for cap, specs := range r.Backends {
		status := "ok"
		if msg, bad := r.Unavailable[cap]; bad {
			status = "unavailable: " + msg
		}
		fmt.Printf("  %-24s %-20s %s\n", cap, specs[0], status)
	}
}
