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

package embedding

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

// OllamaProvider embeds text against a local Ollama server's /api/embeddings
// endpoint. It implements TextEmbedder, CodeEmbedder (the same model serves
// both unless a code-specific model is configured) and ContextualEmbedder
// (by prefixing the context ahead of the chunk text before embedding).
type OllamaProvider struct {
	baseURL    string
	model      string
	dimensions int
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewOllamaProvider creates an Ollama-backed embedding provider. baseURL and
// model default to OLLAMA_HOST/OLLAMA_EMBED_MODEL when empty, matching the
// env-cascade convention used by pkg/llm.DefaultProvider.
func NewOllamaProvider(baseURL, model string, dimensions int, logger *slog.Logger) *OllamaProvider {
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_HOST")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = os.Getenv("OLLAMA_EMBED_MODEL")
	}
	if model == "" {
		model = "nomic-embed-text"
	}
	if dimensions == 0 {
		dimensions = 768
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OllamaProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      DefaultRetryConfig(),
		logger:     logger,
	}
}

func (p *OllamaProvider) Name() string { return "ollama" }

func (p *OllamaProvider) Supports(c backend.Capability) bool {
	switch c {
	case backend.CapabilityTextEmbedding, backend.CapabilityCodeEmbedding, backend.CapabilityContextualEmbed:
		return true
	default:
		return false
	}
}

func (p *OllamaProvider) IsAvailable(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("embedding: ollama unreachable: %w", err)
	}
	defer resp.Body.Close()
	return nil
}

func (p *OllamaProvider) Dimensions() int { return p.dimensions }

func (p *OllamaProvider) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedBatch(ctx, texts)
}

func (p *OllamaProvider) EmbedCode(ctx context.Context, snippets []string) ([][]float32, error) {
	return p.embedBatch(ctx, snippets)
}

func (p *OllamaProvider) EmbedContextual(ctx context.Context, chunks []backend.ContextualChunk) ([][]float32, error) {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.Context == "" {
			texts[i] = c.Text
			continue
		}
		texts[i] = c.Context + "\n\n" + c.Text
	}
	return p.embedBatch(ctx, texts)
}

func (p *OllamaProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding: ollama embed item %d: %w", i, err)
		}
		out[i] = vec
	}
	return out, nil
}

func (p *OllamaProvider) embedOne(ctx context.Context, text string) ([]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(computeBackoffWithJitter(p.retry.InitialBackoff, attempt, p.retry.Multiplier, p.retry.MaxBackoff)):
			}
		}

		vec, err := p.doEmbed(ctx, text)
		if err == nil {
			return vec, nil
		}
		lastErr = err
		if !isRetryableEmbeddingError(err) {
			return nil, err
		}
		p.logger.Warn("embedding.ollama.retry", "attempt", attempt, "err", err, "rate_limited", isRateLimited(err))
	}
	return nil, fmt.Errorf("embedding: ollama exhausted retries: %w", lastErr)
}

func (p *OllamaProvider) doEmbed(ctx context.Context, text string) ([]float32, error) {
	payload := map[string]any{"model": p.model, "prompt": text}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("ollama embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ollama embed error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Embedding []float32 `json:"embedding"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return normalize(result.Embedding), nil
}

var _ backend.TextEmbedder = (*OllamaProvider)(nil)
var _ backend.CodeEmbedder = (*OllamaProvider)(nil)
var _ backend.ContextualEmbedder = (*OllamaProvider)(nil)
