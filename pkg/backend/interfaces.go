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

package backend

import "context"

// TextEmbedder turns a batch of plain-text chunks into dense vectors.
type TextEmbedder interface {
	Availability
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// CodeEmbedder is a TextEmbedder specialized for source-code chunks; most
// providers implement both with the same underlying model but some (e.g. a
// code-specific model) only advertise CapabilityCodeEmbedding.
type CodeEmbedder interface {
	Availability
	EmbedCode(ctx context.Context, snippets []string) ([][]float32, error)
	Dimensions() int
}

// ContextualEmbedder embeds a chunk together with surrounding context (the
// document title, the preceding chunk, ...) rather than the chunk in
// isolation. Backends that don't support this fall back to TextEmbedder.
type ContextualEmbedder interface {
	Availability
	EmbedContextual(ctx context.Context, chunks []ContextualChunk) ([][]float32, error)
	Dimensions() int
}

// ContextualChunk pairs a chunk's text with the context a ContextualEmbedder
// should condition on.
type ContextualChunk struct {
	Text    string
	Context string
}

// Reranker reorders a candidate list against a query, returning relevance
// scores in the same order candidates were given.
type Reranker interface {
	Availability
	Rerank(ctx context.Context, query string, candidates []string) ([]float32, error)
}

// KeyGenerator derives QNTM keys (semantic tags) for a chunk, optionally
// reusing an existing key dictionary so equivalent concepts canonicalize to
// the same key instead of drifting across ingestion runs.
type KeyGenerator interface {
	Availability
	GenerateKeys(ctx context.Context, text string, existingKeys []string) ([]string, error)
}

// Splitter breaks raw source text into chunks according to its own notion of
// semantic boundary (headings, paragraphs, sentences, or — for language-aware
// splitters — syntactic units).
type Splitter interface {
	Availability
	Split(ctx context.Context, sourcePath, text string) ([]string, error)
}

// Storage is the vector-store backend: collection lifecycle, upsert, query,
// and the batch-mode index toggling the ingestion controller uses around
// large upsert runs.
type Storage interface {
	Availability

	// EnsureCollection creates the backing collection if absent; it never
	// migrates an existing collection's schema.
	EnsureCollection(ctx context.Context, name string, vectorDimensions map[string]int) error

	// Upsert writes points idempotently: re-upserting the same id overwrites
	// the prior payload and vectors rather than duplicating the point.
	Upsert(ctx context.Context, collection string, points []VectorPoint) error

	// Query performs a nearest-neighbor search against a named vector space,
	// optionally filtered by QNTM key or time range.
	Query(ctx context.Context, collection string, q Query) ([]ScoredPoint, error)

	// Scroll returns points matching q's QNTMKeys/Since/Until filters without
	// a nearest-neighbor query, for read paths like the timeline that rank
	// by recency rather than similarity. q.VectorName and q.Vector are
	// ignored; q.TopK caps the number of points returned. Scored points come
	// back with Score 0 since no similarity was computed.
	Scroll(ctx context.Context, collection string, q Query) ([]ScoredPoint, error)

	// Count returns the number of active points in the collection.
	Count(ctx context.Context, collection string) (int64, error)

	// SetIndexBuilding enables or disables background index construction,
	// used to speed up large batch-upsert runs (§4.9 step 4) and re-enabled
	// once the run finishes.
	SetIndexBuilding(ctx context.Context, collection string, enabled bool) error

	Close() error
}

// Query describes a single retrieval request against a Storage backend.
type Query struct {
	VectorName         string
	Vector             []float32
	TopK               int
	QNTMKeys           []string
	Since              *int64 // unix seconds, inclusive lower bound on IngestedAt
	Until              *int64 // unix seconds, exclusive upper bound on IngestedAt
	ConsolidationLevel *int   // exact match against the stored consolidation_level
}

// ScoredPoint is a single Query result.
type ScoredPoint struct {
	Point ChunkPayload
	Score float32
}
