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

// Package storage implements the backend.Storage interface against Qdrant,
// Atlas's only shipped vector-store backend. Collections hold one or more
// named vector spaces ("text", "code") per point, so a single chunk can carry
// both a prose embedding and a code embedding without two collections.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/kraklabs/atlas/pkg/backend"
)

// payloadIDField stores the caller-facing chunk id. Qdrant point ids must be
// a UUID or unsigned integer, so a deterministic UUIDv5 is derived from the
// chunk id for the wire-level point id and the original string is kept here.
const payloadIDField = "_atlas_id"

// QdrantStorage implements backend.Storage against a Qdrant cluster reached
// over its gRPC API (default port 6334).
type QdrantStorage struct {
	client *qdrant.Client
	dsn    string
}

// Open parses a "qdrant://host:port/path?api_key=..." DSN and returns a
// connected QdrantStorage. The collection itself is created lazily by
// EnsureCollection, not by Open.
func Open(dsn string) (*QdrantStorage, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse dsn: %w", err)
	}

	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	portStr := parsed.Port()
	if portStr == "" {
		portStr = "6334"
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("storage: invalid port in dsn %q: %w", dsn, err)
	}

	cfg := &qdrant.Config{Host: host, Port: port}
	if parsed.Scheme == "qdrants" || parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}

	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create qdrant client: %w", err)
	}

	return &QdrantStorage{client: client, dsn: dsn}, nil
}

func (s *QdrantStorage) Name() string { return "qdrant" }

func (s *QdrantStorage) Supports(c backend.Capability) bool {
	return c == backend.CapabilityVectorStorage
}

func (s *QdrantStorage) IsAvailable(ctx context.Context) error {
	_, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("storage: qdrant health check: %w", err)
	}
	return nil
}

// EnsureCollection creates the collection with one named vector per entry in
// vectorDimensions if it does not already exist. It never alters an existing
// collection's vector configuration; schema migration is out of scope.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, name string, vectorDimensions map[string]int) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("storage: check collection exists: %w", err)
	}
	if exists {
		return nil
	}

	vectorsMap := make(map[string]*qdrant.VectorParams, len(vectorDimensions))
	for vecName, dim := range vectorDimensions {
		if dim <= 0 {
			return fmt.Errorf("storage: vector %q requires dimensions > 0", vecName)
		}
		vectorsMap[vecName] = &qdrant.VectorParams{
			Size:     uint64(dim),
			Distance: qdrant.Distance_Cosine,
		}
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig:  qdrant.NewVectorsConfigMap(vectorsMap),
	})
	if err != nil {
		return fmt.Errorf("storage: create collection %q: %w", name, err)
	}
	return nil
}

func pointUUID(id string) string {
	if _, err := uuid.Parse(id); err == nil {
		return id
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String()
}

// Upsert writes points idempotently: re-upserting the same chunk id
// overwrites the Qdrant point's vectors and payload rather than creating a
// duplicate, because the point id is a deterministic hash of the chunk id.
func (s *QdrantStorage) Upsert(ctx context.Context, collection string, points []backend.VectorPoint) error {
	if len(points) == 0 {
		return nil
	}

	wire := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		vectors := make(map[string]*qdrant.Vector, len(p.Vectors))
		for _, v := range p.Vectors {
			vectors[v.Name] = qdrant.NewVectorDense(v.Values)
		}

		payload, err := payloadStruct(p.ID, p.Payload)
		if err != nil {
			return fmt.Errorf("storage: encode payload for %q: %w", p.ID, err)
		}

		wire = append(wire, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointUUID(p.ID)),
			Vectors: qdrant.NewVectorsMap(vectors),
			Payload: payload,
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Points:         wire,
	})
	if err != nil {
		return fmt.Errorf("storage: upsert %d points into %q: %w", len(points), collection, err)
	}
	return nil
}

func payloadStruct(id string, payload backend.ChunkPayload) (map[string]*qdrant.Value, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	var asMap map[string]any
	if err := json.Unmarshal(data, &asMap); err != nil {
		return nil, err
	}
	asMap[payloadIDField] = id
	return qdrant.NewValueMap(asMap), nil
}

func payloadFromStruct(fields map[string]*qdrant.Value) (backend.ChunkPayload, error) {
	plain := make(map[string]any, len(fields))
	for k, v := range fields {
		plain[k] = v.AsInterface()
	}
	data, err := json.Marshal(plain)
	if err != nil {
		return backend.ChunkPayload{}, err
	}
	var payload backend.ChunkPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return backend.ChunkPayload{}, err
	}
	if id, ok := plain[payloadIDField].(string); ok && id != "" {
		payload.ID = id
	}
	return payload, nil
}

// Query runs a nearest-neighbor search against a named vector space,
// optionally filtered by QNTM key membership and/or an ingestion time range.
func (s *QdrantStorage) Query(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = 10
	}
	limit := uint64(topK)

	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(q.Vector),
		Using:          strPtr(q.VectorName),
		Limit:          &limit,
		Filter:         scrollFilter(q),
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: query %q: %w", collection, err)
	}

	out := make([]backend.ScoredPoint, 0, len(results))
	for _, hit := range results {
		payload, err := payloadFromStruct(hit.Payload)
		if err != nil {
			return nil, fmt.Errorf("storage: decode payload: %w", err)
		}
		out = append(out, backend.ScoredPoint{Point: payload, Score: hit.Score})
	}
	return out, nil
}

// Scroll returns points matching q's QNTM-key and time-range filters without
// a nearest-neighbor query, for the timeline read path (§4.10: "No vector
// query is performed").
func (s *QdrantStorage) Scroll(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	filter := scrollFilter(q)

	limit := uint32(q.TopK)
	if limit == 0 {
		limit = 20
	}

	points, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scroll %q: %w", collection, err)
	}

	out := make([]backend.ScoredPoint, 0, len(points))
	for _, hit := range points {
		payload, err := payloadFromStruct(hit.Payload)
		if err != nil {
			return nil, fmt.Errorf("storage: decode payload: %w", err)
		}
		out = append(out, backend.ScoredPoint{Point: payload})
	}
	return out, nil
}

func scrollFilter(q backend.Query) *qdrant.Filter {
	var must []*qdrant.Condition
	for _, key := range q.QNTMKeys {
		must = append(must, qdrant.NewMatch("qntm_keys", key))
	}
	if q.Since != nil || q.Until != nil {
		rng := &qdrant.DatetimeRange{}
		if q.Since != nil {
			t := time.Unix(*q.Since, 0).UTC()
			rng.Gte = &t
		}
		if q.Until != nil {
			t := time.Unix(*q.Until, 0).UTC()
			rng.Lt = &t
		}
		must = append(must, qdrant.NewDatetimeRange("ingested_at", rng))
	}
	if q.ConsolidationLevel != nil {
		must = append(must, qdrant.NewMatchInt("consolidation_level", int64(*q.ConsolidationLevel)))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Count returns the number of points currently stored in the collection.
func (s *QdrantStorage) Count(ctx context.Context, collection string) (int64, error) {
	exact := true
	result, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("storage: count %q: %w", collection, err)
	}
	return int64(result), nil
}

// SetIndexBuilding toggles HNSW index construction for the collection. The
// ingestion controller disables it before a large batch-upsert run and
// re-enables it afterward (§4.9 step 4, §5 batch-mode toggling); with
// building disabled, m=0 means Qdrant skips incremental graph maintenance
// per-upsert and the graph is rebuilt once at the end.
func (s *QdrantStorage) SetIndexBuilding(ctx context.Context, collection string, enabled bool) error {
	m := uint64(16)
	if !enabled {
		m = 0
	}
	_, err := s.client.UpdateCollection(ctx, &qdrant.UpdateCollection{
		CollectionName: collection,
		HnswConfig: &qdrant.HnswConfigDiff{
			M: &m,
		},
	})
	if err != nil {
		return fmt.Errorf("storage: set index building %v on %q: %w", enabled, collection, err)
	}
	return nil
}

func (s *QdrantStorage) Close() error {
	return s.client.Close()
}

var _ backend.Storage = (*QdrantStorage)(nil)

// ParseDSNCollection splits a "qdrant://host:port/collection" DSN's path
// component into a bare collection name, trimming leading slashes.
func ParseDSNCollection(dsn string) (string, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("storage: parse dsn: %w", err)
	}
	name := strings.TrimPrefix(parsed.Path, "/")
	if name == "" {
		return "", fmt.Errorf("storage: dsn %q has no collection path", dsn)
	}
	return name, nil
}
