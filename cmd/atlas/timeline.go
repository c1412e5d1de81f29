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
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/internal/errors"
	"github.com/kraklabs/atlas/internal/output"
	"github.com/kraklabs/atlas/internal/ui"
	"github.com/kraklabs/atlas/internal/wire"
	"github.com/kraklabs/atlas/pkg/retrieval"
)

func runTimeline(args []string, configPath string) {
	fs := pflag.NewFlagSet("timeline", pflag.ExitOnError)
	var globals GlobalFlags
	fs.BoolVar(&globals.JSON, "json", false, "Output results as JSON")
	fs.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress informational output")
	fs.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	since := fs.String("since", "", "Only list chunks ingested at or after this RFC3339 time (required)")
	limit := fs.IntP("limit", "n", 20, "Maximum number of results")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atlas timeline --since <time> [options]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if *since == "" {
		handleFatal(errors.NewInputError("Missing --since", "timeline requires a starting point", "Pass --since with an RFC3339 timestamp, e.g. --since 2026-07-01T00:00:00Z"), globals.JSON)
	}
	sinceTime, err := time.Parse(time.RFC3339, *since)
	if err != nil {
		handleFatal(errors.NewInputError("Invalid --since value", err.Error(), "Use an RFC3339 timestamp, e.g. 2026-07-01T00:00:00Z"), globals.JSON)
	}

	ui.InitColors(globals.NoColor)

	cfg, err := config.Load(configPath)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot load atlas.yaml", err.Error(), "Run: atlas init", err), globals.JSON)
	}

	records, err := timelineViaDaemonOrDirect(cfg, sinceTime, *limit)
	if err != nil {
		handleFatal(errors.NewDatabaseError("Timeline query failed", err.Error(), "Confirm storage is reachable and the collection has been ingested", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(records)
		return
	}
	printTimeline(records)
}

// timelineViaDaemonOrDirect always opens a direct storage connection: the
// daemon client has no Timeline method yet, only Search, so this read path
// does not route through it even when the daemon is enabled.
func timelineViaDaemonOrDirect(cfg *config.Config, since time.Time, limit int) ([]retrieval.SearchRecord, error) {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	reg, err := wire.Backends(cfg, logger)
	if err != nil {
		return nil, err
	}
	collection, store, err := openRegisteredStorage(cfg, reg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	embedder, err := ingestTextEmbedder(reg)
	if err != nil {
		return nil, err
	}

	svc := retrieval.NewService(store, embedder, nil, nil, collection, logger)
	return svc.Timeline(context.Background(), since, limit)
}

func printTimeline(records []retrieval.SearchRecord) {
	if len(records) == 0 {
		ui.Info("No chunks in range")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "INGESTED\tFILE\tCHUNK\tKEY\tTEXT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n", r.CreatedAt.Format(time.RFC3339), r.FilePath, r.ChunkIndex, r.QNTMKey, truncate(r.Text, 80))
	}
	w.Flush()
}
