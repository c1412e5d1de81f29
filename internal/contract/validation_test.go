// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChunkMinCharsDefault(t *testing.T) {
	t.Setenv("ATLAS_CHUNK_MIN_CHARS", "")
	assert.Equal(t, DefaultChunkMinChars, ChunkMinChars())
}

func TestChunkMinCharsOverride(t *testing.T) {
	t.Setenv("ATLAS_CHUNK_MIN_CHARS", "500")
	assert.Equal(t, 500, ChunkMinChars())
}

func TestChunkMinCharsIgnoresInvalid(t *testing.T) {
	t.Setenv("ATLAS_CHUNK_MIN_CHARS", "not-a-number")
	assert.Equal(t, DefaultChunkMinChars, ChunkMinChars())

	t.Setenv("ATLAS_CHUNK_MIN_CHARS", "-10")
	assert.Equal(t, DefaultChunkMinChars, ChunkMinChars())
}

func TestBatchHNSWThresholdDefault(t *testing.T) {
	t.Setenv("ATLAS_BATCH_HNSW_THRESHOLD", "")
	assert.Equal(t, DefaultBatchHNSWThreshold, BatchHNSWThreshold())
}

func TestValidateSpecifier(t *testing.T) {
	cases := []struct {
		in string
		ok bool
	}{
		{"ollama:nomic-embed-text", true},
		{"openai", true},
		{"", false},
		{":model", false},
		{"   ", false},
	}
	for _, tc := range cases {
		result := ValidateSpecifier(tc.in)
		assert.Equal(t, tc.ok, result.OK, tc.in)
	}
}
