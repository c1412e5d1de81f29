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

// Package backend defines the data model and capability interfaces shared by
// every pluggable backend family (embedders, rerankers, key generators,
// splitters, storage). A backend is identified by a capability tag plus a
// provider[:model] specifier; pkg/registry resolves specifiers to concrete
// values implementing these interfaces.
package backend

import (
	"context"
	"time"
)

// Capability names the family of work a backend performs. Several backends
// may advertise the same capability (e.g. two embedding providers); the
// registry's Get selects one by exact specifier and GetFor returns the first
// one registered.
type Capability string

const (
	CapabilityTextEmbedding     Capability = "text-embedding"
	CapabilityCodeEmbedding     Capability = "code-embedding"
	CapabilityContextualEmbed   Capability = "contextual-embedding"
	CapabilityTextReranking     Capability = "text-reranking"
	CapabilityTextCompletion    Capability = "text-completion"
	CapabilityJSONCompletion    Capability = "json-completion"
	CapabilityKeyGeneration     Capability = "key-generation"
	CapabilityTextSplitting     Capability = "text-splitting"
	CapabilityVectorStorage     Capability = "vector-storage"
	CapabilityToolUse           Capability = "tool-use"
	CapabilityStreamingOutput   Capability = "streaming"
)

// ContentType classifies a chunk for embedding-strategy and filter purposes.
type ContentType string

const (
	ContentTypeText  ContentType = "text"
	ContentTypeCode  ContentType = "code"
	ContentTypeMedia ContentType = "media"
)

// Importance is an advisory retrieval-ranking hint attached at ingest time.
type Importance string

const (
	ImportanceLow    Importance = "low"
	ImportanceNormal Importance = "normal"
	ImportanceHigh   Importance = "high"
)

// EmbeddingStrategy records which of the two embed-stage strategies (§4.6)
// produced a chunk's vectors.
type EmbeddingStrategy string

const (
	EmbeddingStrategySnippet       EmbeddingStrategy = "snippet"
	EmbeddingStrategyContextualized EmbeddingStrategy = "contextualized"
)

// ChunkPayload is the unit of content that moves through the ingestion
// pipeline from read+chunk through embedding, key generation, and upsert. Its
// field set is the bit-stable contract persisted into storage payloads.
type ChunkPayload struct {
	// ID is the deterministic external identifier: a stable hash of
	// (SourcePath, ChunkIndex) so re-ingesting the same file reproduces the
	// same id instead of creating duplicate points.
	ID string `json:"id"`

	// SourcePath is the path the chunk was read from, normalized to forward
	// slashes relative to the ingestion root.
	SourcePath string `json:"source_path"`

	// FileName is the base name of SourcePath.
	FileName string `json:"file_name"`

	// FileType is the lowercased final extension of FileName, including the
	// leading dot ("" if the file has no extension).
	FileType string `json:"file_type"`

	// ChunkIndex is the zero-based position of this chunk within its source,
	// dense after short-chunk filtering: ChunkIndex < TotalChunks.
	ChunkIndex int `json:"chunk_index"`

	// TotalChunks is the count of surviving chunks emitted for SourcePath.
	TotalChunks int `json:"total_chunks"`

	// Text is the chunk's raw textual content.
	Text string `json:"text"`

	// CharCount is len(Text); stored separately so storage-side filters don't
	// need to decode Text to enforce the minimum-chunk-size invariant.
	CharCount int `json:"char_count"`

	// Language is an optional hint ("go", "markdown", "prose", ...) used to
	// pick an embedding strategy and to annotate the stored payload.
	Language string `json:"language,omitempty"`

	// ContentType is derived from FileType and drives embed-stage strategy
	// selection (§4.6) and named-vector presence.
	ContentType ContentType `json:"content_type"`

	// QNTMKeys are the semantic tags produced by the key-generation stage.
	QNTMKeys []string `json:"qntm_keys,omitempty"`

	// IngestedAt is when this chunk was embedded and upserted. Monotone
	// within a single ingestion run.
	IngestedAt time.Time `json:"ingested_at"`

	// Importance is an advisory retrieval-ranking hint; default Normal.
	Importance Importance `json:"importance"`

	// ConsolidationLevel is 0 for raw ingested chunks; a consolidation
	// process may later write derived chunks at higher levels.
	ConsolidationLevel int `json:"consolidation_level"`

	// EmbeddingModel is the provider-qualified model identifier that
	// produced this chunk's text vector.
	EmbeddingModel string `json:"embedding_model"`

	// EmbeddingStrategy records which §4.6 strategy produced the vectors.
	EmbeddingStrategy EmbeddingStrategy `json:"embedding_strategy"`

	// VectorsPresent mirrors the named-vector keys actually set on the
	// stored point so readers can filter on presence without a storage
	// round trip.
	VectorsPresent []string `json:"vectors_present,omitempty"`

	// Parents lists the chunk ids this chunk was derived from; present iff
	// ConsolidationLevel > 0.
	Parents []string `json:"parents,omitempty"`

	// Extra carries backend-specific metadata (e.g. a source's custom
	// front-matter) without growing this struct per backend.
	Extra map[string]any `json:"extra,omitempty"`
}

// NamedVector is a single named embedding (e.g. "text" or "code") attached to
// a VectorPoint. Storage backends that support multiple vector spaces per
// point key on Name; backends with a single vector space ignore it.
type NamedVector struct {
	Name   string    `json:"name"`
	Values []float32 `json:"values"`
}

// VectorPoint is what the batch-upsert stage writes to storage: an id, one or
// more named vectors, and the chunk payload.
type VectorPoint struct {
	ID      string        `json:"id"`
	Vectors []NamedVector `json:"vectors"`
	Payload ChunkPayload  `json:"payload"`
}

// Lifecycle marks where in the ingest→retrieve lifecycle a point currently
// sits. Most backends only ever see Active; Tombstoned exists so a storage
// backend can implement soft deletes without breaking the id contract.
type Lifecycle string

const (
	LifecycleActive     Lifecycle = "active"
	LifecycleTombstoned Lifecycle = "tombstoned"
)

// Descriptor is how a backend advertises itself to the registry: which
// capability it serves and under what provider/model specifier. It carries no
// reachability state; that is checked through Availability.IsAvailable.
type Descriptor struct {
	Capability Capability
	Provider   string
	Model      string
}

// Specifier returns the canonical "provider[:model]" string for this
// descriptor, matching the parsing rules in pkg/registry.
func (d Descriptor) Specifier() string {
	if d.Model == "" {
		return d.Provider
	}
	return d.Provider + ":" + d.Model
}

// Ownership indicates whether a resource (an ingest-scoped handle, a pooled
// connection) is owned by the holder and must be closed by it, or borrowed
// from a longer-lived owner and must not be closed.
type Ownership int

const (
	OwnershipOwned Ownership = iota
	OwnershipBorrowed
)

// Availability is the shared health-check surface every backend implements:
// Supports reports whether a capability is served at all, IsAvailable reports
// whether the backend is currently reachable (e.g. the remote API responds).
type Availability interface {
	Name() string
	Supports(capability Capability) bool
	IsAvailable(ctx context.Context) error
}
