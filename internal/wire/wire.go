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

// Package wire builds a pkg/registry.Registry from a loaded config.Config,
// dispatching each configured provider[:model] specifier to its concrete
// backend constructor. It is the one place that knows about every backend
// package; pkg/pipeline, pkg/retrieval and cmd/atlas only ever see the
// registry and pkg/backend interfaces.
package wire

import (
	"fmt"
	"log/slog"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/embedding"
	"github.com/kraklabs/atlas/pkg/llm"
	"github.com/kraklabs/atlas/pkg/registry"
	"github.com/kraklabs/atlas/pkg/rerank"
	"github.com/kraklabs/atlas/pkg/splitter"
)

// defaultSpecifier is used for any capability the config leaves blank.
const defaultSpecifier = "ollama"

// Backends builds a Registry with every capability the pipeline and
// retrieval packages need registered: text/code/contextual embedding,
// reranking, key generation, and splitting. Storage is not registered here;
// the cmd/atlas commands open and register it themselves.
func Backends(cfg *config.Config, logger *slog.Logger) (*registry.Registry, error) {
	reg := registry.New(logger)

	embedSpec := orDefault(cfg.Backends.Embedding, defaultSpecifier)
	provider, model, err := registry.ParseSpecifier(embedSpec)
	if err != nil {
		return nil, fmt.Errorf("wire: embedding specifier: %w", err)
	}
	embedder, err := newEmbedder(provider, model, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("wire: embedding backend %q: %w", embedSpec, err)
	}
	if err := reg.Register(backend.CapabilityTextEmbedding, embedSpec, embedder); err != nil {
		return nil, err
	}
	if _, ok := embedder.(backend.CodeEmbedder); ok {
		if err := reg.Register(backend.CapabilityCodeEmbedding, embedSpec, embedder); err != nil {
			return nil, err
		}
	}
	if _, ok := embedder.(backend.ContextualEmbedder); ok {
		if err := reg.Register(backend.CapabilityContextualEmbed, embedSpec, embedder); err != nil {
			return nil, err
		}
	}

	rerankSpec := cfg.Backends.Reranker
	reranker := newReranker(rerankSpec, cfg, logger)
	if rerankSpec == "" {
		rerankSpec = "noop"
	}
	if err := reg.Register(backend.CapabilityTextReranking, rerankSpec, reranker); err != nil {
		return nil, err
	}

	keygenSpec := orDefault(cfg.Backends.KeyGen, defaultSpecifier)
	kgProvider, _, err := registry.ParseSpecifier(keygenSpec)
	if err != nil {
		return nil, fmt.Errorf("wire: keygen specifier: %w", err)
	}
	keygen, err := newKeyGenerator(kgProvider, cfg)
	if err != nil {
		return nil, fmt.Errorf("wire: keygen backend %q: %w", keygenSpec, err)
	}
	if err := reg.Register(backend.CapabilityKeyGeneration, keygenSpec, keygen); err != nil {
		return nil, err
	}

	splitSpec := orDefault(cfg.Backends.Splitter, "semantic-boundary")
	if err := reg.Register(backend.CapabilityTextSplitting, splitSpec, splitter.New()); err != nil {
		return nil, err
	}

	return reg, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func newEmbedder(provider, model string, cfg *config.Config, logger *slog.Logger) (any, error) {
	switch provider {
	case "ollama", "":
		return embedding.NewOllamaProvider("", model, 0, logger), nil
	case "openai":
		return embedding.NewOpenAIProvider(cfg.Credentials.OpenAIAPIKey, "", model, 0, logger), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", provider)
	}
}

func newReranker(specifier string, cfg *config.Config, logger *slog.Logger) backend.Reranker {
	if specifier == "" {
		return rerank.NoopReranker{}
	}
	provider, model, err := registry.ParseSpecifier(specifier)
	if err != nil {
		return rerank.NoopReranker{}
	}
	switch provider {
	case "voyage":
		return rerank.NewVoyageProvider(cfg.Credentials.VoyageAPIKey, "", model, logger)
	default:
		return rerank.NoopReranker{}
	}
}

func newKeyGenerator(provider string, cfg *config.Config) (backend.KeyGenerator, error) {
	var providerType string
	var apiKey string
	switch provider {
	case "ollama", "":
		providerType = "ollama"
	case "openai":
		providerType = "openai"
		apiKey = cfg.Credentials.OpenAIAPIKey
	case "anthropic":
		providerType = "anthropic"
		apiKey = cfg.Credentials.AnthropicAPIKey
	default:
		return nil, fmt.Errorf("unknown keygen provider %q", provider)
	}

	llmProvider, err := llm.NewProvider(llm.ProviderConfig{Type: providerType, APIKey: apiKey})
	if err != nil {
		return nil, err
	}
	return llm.NewKeyGenerator(llmProvider, 0), nil
}
