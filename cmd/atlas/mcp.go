// Copyright 2026 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-only

// MCP support is intentionally stubbed: a minimal JSON-RPC-over-stdio loop
// exposing the three read/write operations as tools, with no resources,
// prompts, or streaming — enough for a collaborator to call atlas_search,
// atlas_timeline, and atlas_ingest without a full MCP SDK dependency.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/internal/wire"
	"github.com/kraklabs/atlas/pkg/pipeline"
	"github.com/kraklabs/atlas/pkg/retrieval"
)

type rpcRequest struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type rpcResponse struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

var mcpTools = []map[string]any{
	{
		"name":        "atlas_search",
		"description": "Semantic search over the ingested collection, with optional rerank and time filtering.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"query":   map[string]any{"type": "string"},
				"limit":   map[string]any{"type": "integer"},
				"rerank":  map[string]any{"type": "boolean"},
				"qntmKey": map[string]any{"type": "string"},
			},
			"required": []string{"query"},
		},
	},
	{
		"name":        "atlas_timeline",
		"description": "List ingested chunks chronologically from a starting RFC3339 timestamp.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"since": map[string]any{"type": "string"},
				"limit": map[string]any{"type": "integer"},
			},
			"required": []string{"since"},
		},
	},
	{
		"name":        "atlas_ingest",
		"description": "Ingest one or more paths into the collection.",
		"inputSchema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"paths": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			},
			"required": []string{"paths"},
		},
	},
}

func runMCPServer(configPath string) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "mcp: load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	enc := json.NewEncoder(os.Stdout)

	for scanner.Scan() {
		var req rpcRequest
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			enc.Encode(rpcResponse{Error: &rpcError{Code: -32700, Message: "parse error"}})
			continue
		}
		resp := dispatchMCP(cfg, logger, req)
		enc.Encode(resp)
	}
}

func dispatchMCP(cfg *config.Config, logger *slog.Logger, req rpcRequest) rpcResponse {
	switch req.Method {
	case "initialize":
		return rpcResponse{ID: req.ID, Result: map[string]any{
			"protocolVersion": "2024-11-05",
			"serverInfo":      map[string]string{"name": "atlas", "version": version},
		}}
	case "tools/list":
		return rpcResponse{ID: req.ID, Result: map[string]any{"tools": mcpTools}}
	case "tools/call":
		return callMCPTool(cfg, logger, req)
	default:
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32601, Message: "method not found: " + req.Method}}
	}
}

func callMCPTool(cfg *config.Config, logger *slog.Logger, req rpcRequest) rpcResponse {
	var call struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	}
	if err := json.Unmarshal(req.Params, &call); err != nil {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid params"}}
	}

	ctx := context.Background()

	switch call.Name {
	case "atlas_search":
		var args struct {
			Query   string `json:"query"`
			Limit   int    `json:"limit"`
			Rerank  bool   `json:"rerank"`
			QNTMKey string `json:"qntmKey"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32602, Message: err.Error()}}
		}
		records, err := searchViaDaemonOrDirect(cfg, retrieval.SearchRequest{Query: args.Query, Limit: args.Limit, Rerank: args.Rerank, QNTMKey: args.QNTMKey})
		if err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}}
		}
		return rpcResponse{ID: req.ID, Result: records}

	case "atlas_timeline":
		var args struct {
			Since string `json:"since"`
			Limit int    `json:"limit"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32602, Message: err.Error()}}
		}
		since, err := time.Parse(time.RFC3339, args.Since)
		if err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32602, Message: "invalid since: " + err.Error()}}
		}
		records, err := timelineViaDaemonOrDirect(cfg, since, args.Limit)
		if err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}}
		}
		return rpcResponse{ID: req.ID, Result: records}

	case "atlas_ingest":
		var args struct {
			Paths []string `json:"paths"`
		}
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32602, Message: err.Error()}}
		}
		result, err := ingestPaths(ctx, cfg, logger, args.Paths)
		if err != nil {
			return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32000, Message: err.Error()}}
		}
		return rpcResponse{ID: req.ID, Result: result}

	default:
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: -32601, Message: "unknown tool: " + call.Name}}
	}
}

// ingestPaths runs one ingest call without any CLI-facing progress
// reporting, for use from the MCP tool surface.
func ingestPaths(ctx context.Context, cfg *config.Config, logger *slog.Logger, paths []string) (*pipeline.IngestResult, error) {
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
	vectorDims := map[string]int{"text": embedder.Dimensions()}

	ic := pipeline.NewIngestContext(reg, ".", collection, nil)
	controller := pipeline.NewController(ic, pipeline.NewPauseController(), logger)

	return controller.Run(ctx, pipeline.IngestOptions{
		Paths:              paths,
		Recursive:          true,
		ChunkMinChars:      cfg.Ingestion.ChunkMinChars,
		BatchHNSWThreshold: cfg.Ingestion.BatchHNSWThreshold,
		VectorDimensions:   vectorDims,
	})
}
