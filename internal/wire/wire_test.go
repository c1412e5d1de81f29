// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package wire

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/pkg/backend"
)

func TestBackends_RegistersDefaultCapabilities(t *testing.T) {
	cfg := config.Default()

	reg, err := Backends(cfg, nil)
	require.NoError(t, err)

	for _, cap := range []backend.Capability{
		backend.CapabilityTextEmbedding,
		backend.CapabilityTextReranking,
		backend.CapabilityKeyGeneration,
		backend.CapabilityTextSplitting,
	} {
		descs := reg.Descriptors(cap)
		require.NotEmptyf(t, descs, "expected at least one backend for capability %s", cap)
	}
}

func TestBackends_DefaultRerankerIsNoop(t *testing.T) {
	cfg := config.Default()

	reg, err := Backends(cfg, nil)
	require.NoError(t, err)

	descs := reg.Descriptors(backend.CapabilityTextReranking)
	require.Len(t, descs, 1)
	require.Equal(t, "noop", descs[0].Specifier())
}

func TestBackends_RejectsUnknownEmbeddingProvider(t *testing.T) {
	cfg := config.Default()
	cfg.Backends.Embedding = "not-a-real-provider"

	_, err := Backends(cfg, nil)
	require.Error(t, err)
}

func TestBackends_OpenAIEmbeddingAlsoServesCodeAndContextual(t *testing.T) {
	cfg := config.Default()
	cfg.Backends.Embedding = "openai:text-embedding-3-small"
	cfg.Credentials.OpenAIAPIKey = "test-key"

	reg, err := Backends(cfg, nil)
	require.NoError(t, err)

	require.NotEmpty(t, reg.Descriptors(backend.CapabilityTextEmbedding))
	require.NotEmpty(t, reg.Descriptors(backend.CapabilityCodeEmbedding))
	require.NotEmpty(t, reg.Descriptors(backend.CapabilityContextualEmbed))
}
