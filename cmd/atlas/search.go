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
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/internal/errors"
	"github.com/kraklabs/atlas/internal/output"
	"github.com/kraklabs/atlas/internal/ui"
	"github.com/kraklabs/atlas/internal/wire"
	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/daemon"
	"github.com/kraklabs/atlas/pkg/retrieval"
)

func runSearch(args []string, configPath string) {
	fs := pflag.NewFlagSet("search", pflag.ExitOnError)
	var globals GlobalFlags
	fs.BoolVar(&globals.JSON, "json", false, "Output results as JSON")
	fs.BoolVarP(&globals.Quiet, "quiet", "q", false, "Suppress informational output")
	fs.BoolVar(&globals.NoColor, "no-color", false, "Disable colored output")
	limit := fs.IntP("limit", "n", 10, "Maximum number of results")
	since := fs.String("since", "", "Only return chunks ingested at or after this RFC3339 time")
	qntmKey := fs.String("qntm-key", "", "Restrict results to chunks tagged with this QNTM key")
	rerank := fs.Bool("rerank", false, "Rerank candidates with the configured reranker")
	expand := fs.Bool("expand-query", false, "Rewrite the query before embedding it")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: atlas search <query> [options]\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	queryArgs := fs.Args()
	if len(queryArgs) == 0 {
		fs.Usage()
		os.Exit(errors.ExitInput)
	}
	query := strings.Join(queryArgs, " ")

	ui.InitColors(globals.NoColor)

	cfg, err := config.Load(configPath)
	if err != nil {
		handleFatal(errors.NewConfigError("Cannot load atlas.yaml", err.Error(), "Run: atlas init", err), globals.JSON)
	}

	req := retrieval.SearchRequest{Query: query, Limit: *limit, Rerank: *rerank, QNTMKey: *qntmKey, ExpandQuery: *expand}
	if *since != "" {
		t, perr := time.Parse(time.RFC3339, *since)
		if perr != nil {
			handleFatal(errors.NewInputError("Invalid --since value", perr.Error(), "Use an RFC3339 timestamp, e.g. 2026-07-01T00:00:00Z"), globals.JSON)
		}
		req.Since = &t
	}

	records, err := searchViaDaemonOrDirect(cfg, req)
	if err != nil {
		handleFatal(errors.NewDatabaseError("Search failed", err.Error(), "Confirm storage is reachable and the collection has been ingested", err), globals.JSON)
	}

	if globals.JSON {
		_ = output.JSON(records)
		return
	}
	printSearchResults(records)
}

func searchViaDaemonOrDirect(cfg *config.Config, req retrieval.SearchRequest) ([]retrieval.SearchRecord, error) {
	if cfg.Daemon.Enabled {
		client := daemon.NewClient(cfg.Daemon.SocketPath)
		defer client.Close()
		records, err := client.Search(req)
		if err == nil {
			return records, nil
		}
		// Fall through to a direct call per §4.11's fallback contract.
	}

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
	var reranker backend.Reranker
	if v, err := reg.GetFor(backend.CapabilityTextReranking); err == nil {
		if rr, ok := v.(backend.Reranker); ok {
			reranker = rr
		}
	}

	svc := retrieval.NewService(store, embedder, reranker, retrieval.NoopExpander{}, collection, logger)
	return svc.Search(context.Background(), req)
}

func printSearchResults(records []retrieval.SearchRecord) {
	if len(records) == 0 {
		ui.Info("No results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
	fmt.Fprintln(w, "SCORE\tFILE\tCHUNK\tKEY\tTEXT")
	for _, r := range records {
		score := r.Score
		if r.RerankScore != nil {
			score = *r.RerankScore
		}
		fmt.Fprintf(w, "%.3f\t%s\t%d\t%s\t%s\n", score, r.FilePath, r.ChunkIndex, r.QNTMKey, truncate(r.Text, 80))
	}
	w.Flush()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}
