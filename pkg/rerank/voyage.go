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

// Package rerank implements the text reranker backend (§4.2): an optional
// cross-encoder pass over a candidate list that retrieval's semantic search
// operation applies when a caller asks for rerank (§4.10).
package rerank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
)

// VoyageProvider reranks candidates against a Voyage-style /rerank endpoint.
type VoyageProvider struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewVoyageProvider creates a reranker backend. apiKey/baseURL/model fall
// back to VOYAGE_API_KEY / VOYAGE_BASE_URL / VOYAGE_RERANK_MODEL.
func NewVoyageProvider(apiKey, baseURL, model string, logger *slog.Logger) *VoyageProvider {
	if apiKey == "" {
		apiKey = os.Getenv("VOYAGE_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("VOYAGE_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.voyageai.com/v1"
	}
	if model == "" {
		model = os.Getenv("VOYAGE_RERANK_MODEL")
	}
	if model == "" {
		model = "rerank-2"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &VoyageProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     logger,
	}
}

func (p *VoyageProvider) Name() string { return "voyage" }

func (p *VoyageProvider) Supports(c backend.Capability) bool {
	return c == backend.CapabilityTextReranking
}

func (p *VoyageProvider) IsAvailable(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("rerank: voyage api key not configured")
	}
	return nil
}

func (p *VoyageProvider) Rerank(ctx context.Context, query string, candidates []string) ([]float32, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	payload := map[string]any{
		"model":     p.model,
		"query":     query,
		"documents": candidates,
	}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank: voyage request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("rerank: voyage error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Data []struct {
			Index          int     `json:"index"`
			RelevanceScore float32 `json:"relevance_score"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	scores := make([]float32, len(candidates))
	for _, d := range result.Data {
		if d.Index >= 0 && d.Index < len(scores) {
			scores[d.Index] = d.RelevanceScore
		}
	}
	return scores, nil
}

var _ backend.Reranker = (*VoyageProvider)(nil)

// NoopReranker returns candidates' input order verbatim by assigning
// uniformly descending scores; it is the default when rerank is requested
// but no reranker backend is configured.
type NoopReranker struct{}

func (NoopReranker) Name() string                          { return "noop" }
func (NoopReranker) Supports(c backend.Capability) bool     { return c == backend.CapabilityTextReranking }
func (NoopReranker) IsAvailable(ctx context.Context) error   { return nil }

func (NoopReranker) Rerank(ctx context.Context, query string, candidates []string) ([]float32, error) {
	scores := make([]float32, len(candidates))
	for i := range scores {
		scores[i] = float32(len(candidates)-i) / float32(len(candidates))
	}
	return scores, nil
}

var _ backend.Reranker = NoopReranker{}
