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
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
)

// OpenAIProvider embeds text against an OpenAI-compatible /embeddings
// endpoint, batching all input texts into a single request the way the API
// supports natively (unlike Ollama's one-prompt-per-call endpoint).
type OpenAIProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	httpClient *http.Client
	retry      RetryConfig
	logger     *slog.Logger
}

// NewOpenAIProvider creates an OpenAI-compatible embedding provider. apiKey,
// baseURL, and model fall back to OPENAI_API_KEY / OPENAI_BASE_URL /
// OPENAI_EMBED_MODEL when empty.
func NewOpenAIProvider(apiKey, baseURL, model string, dimensions int, logger *slog.Logger) *OpenAIProvider {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if model == "" {
		model = os.Getenv("OPENAI_EMBED_MODEL")
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if dimensions == 0 {
		dimensions = 1536
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		model:      model,
		dimensions: dimensions,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		retry:      DefaultRetryConfig(),
		logger:     logger,
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Supports(c backend.Capability) bool {
	switch c {
	case backend.CapabilityTextEmbedding, backend.CapabilityCodeEmbedding, backend.CapabilityContextualEmbed:
		return true
	default:
		return false
	}
}

func (p *OpenAIProvider) IsAvailable(ctx context.Context) error {
	if p.apiKey == "" {
		return fmt.Errorf("embedding: openai api key not configured")
	}
	return nil
}

func (p *OpenAIProvider) Dimensions() int { return p.dimensions }

func (p *OpenAIProvider) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	return p.embedBatch(ctx, texts)
}

func (p *OpenAIProvider) EmbedCode(ctx context.Context, snippets []string) ([][]float32, error) {
	return p.embedBatch(ctx, snippets)
}

func (p *OpenAIProvider) EmbedContextual(ctx context.Context, chunks []backend.ContextualChunk) ([][]float32, error) {
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

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt <= p.retry.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(computeBackoffWithJitter(p.retry.InitialBackoff, attempt, p.retry.Multiplier, p.retry.MaxBackoff)):
			}
		}

		vecs, err := p.doEmbedBatch(ctx, texts)
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !isRetryableEmbeddingError(err) {
			return nil, err
		}
		p.logger.Warn("embedding.openai.retry", "attempt", attempt, "err", err, "rate_limited", isRateLimited(err))
	}
	return nil, fmt.Errorf("embedding: openai exhausted retries: %w", lastErr)
}

func (p *OpenAIProvider) doEmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	payload := map[string]any{"model": p.model, "input": texts}
	body, _ := json.Marshal(payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("openai embed error (status %d): %s", resp.StatusCode, string(bodyBytes))
	}

	var result struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for _, d := range result.Data {
		out[d.Index] = normalize(d.Embedding)
	}
	return out, nil
}

// normalize L2-normalizes an embedding vector in place semantics (returns a
// new slice), matching the unit-norm contract callers of EmbedText rely on
// for cosine-similarity search.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := float32(1.0 / math.Sqrt(sumSq))
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = x * norm
	}
	return out
}

var _ backend.TextEmbedder = (*OpenAIProvider)(nil)
var _ backend.CodeEmbedder = (*OpenAIProvider)(nil)
var _ backend.ContextualEmbedder = (*OpenAIProvider)(nil)
