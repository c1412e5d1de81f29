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

// Package retrieval implements the three read-side operations over a stored
// collection (§4.10): semantic search (with optional rerank and query
// expansion), the timeline, and key-filtered search. It consumes
// pkg/backend.Storage and pkg/backend.Reranker; it never writes.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/pipeline"
)

// defaultRerankTopKMultiplier and defaultRerankTopKFloor implement §4.10's
// "default: max(limit * 3, 15)" rerank candidate pool size.
const (
	defaultRerankTopKMultiplier = 3
	defaultRerankTopKFloor      = 15
)

// timelineScrollMultiplier over-fetches from Scroll before the client-side
// recency sort, since a filter-only scroll carries no ordering guarantee
// from storage: fetching exactly limit rows could silently drop newer
// points that happened to scroll back later.
const timelineScrollMultiplier = 3

// QueryExpander optionally rewrites a search query before embedding (§4.10
// step 1). Expansion is off by default; NoopExpander is the zero-cost
// default implementation.
type QueryExpander interface {
	Expand(ctx context.Context, query string, existingKeys []string) (string, error)
}

// NoopExpander returns the query unchanged. It is the default when no query
// expander is configured — query expansion is an opt-in feature (§4.10).
type NoopExpander struct{}

func (NoopExpander) Expand(_ context.Context, query string, _ []string) (string, error) {
	return query, nil
}

// SearchRequest mirrors §4.10's semantic-search input shape.
type SearchRequest struct {
	Query              string
	Limit              int
	Since              *time.Time
	QNTMKey            string
	Rerank             bool
	RerankTopK         int
	ExpandQuery        bool
	ConsolidationLevel *int
}

// SearchRecord is one result row (§4.10's output shape).
type SearchRecord struct {
	Text        string
	FilePath    string
	ChunkIndex  int
	Score       float32
	CreatedAt   time.Time
	QNTMKey     string
	RerankScore *float32
}

// Service performs retrieval operations against one collection.
type Service struct {
	storage    backend.Storage
	embedder   backend.TextEmbedder
	reranker   backend.Reranker
	expander   QueryExpander
	collection string
	logger     *slog.Logger
}

// NewService creates a retrieval Service. A nil reranker means rerank
// requests fall back to vector-only ordering; a nil expander defaults to
// NoopExpander.
func NewService(storage backend.Storage, embedder backend.TextEmbedder, reranker backend.Reranker, expander QueryExpander, collection string, logger *slog.Logger) *Service {
	if expander == nil {
		expander = NoopExpander{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{storage: storage, embedder: embedder, reranker: reranker, expander: expander, collection: collection, logger: logger}
}

// Search implements §4.10's semantic search procedure end to end.
func (s *Service) Search(ctx context.Context, req SearchRequest) ([]SearchRecord, error) {
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	query := req.Query
	if req.ExpandQuery {
		expanded, err := s.expander.Expand(ctx, query, nil)
		if err != nil {
			s.logger.Warn("retrieval.search.expand_failed", "err", err)
		} else {
			query = expanded
		}
	}

	vectors, err := s.embedder.EmbedText(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed query: %w", err)
	}

	q := backend.Query{VectorName: "text", Vector: vectors[0]}
	if req.Since != nil {
		since := req.Since.Unix()
		q.Since = &since
	}
	if req.QNTMKey != "" {
		q.QNTMKeys = []string{req.QNTMKey}
	}
	if req.ConsolidationLevel != nil {
		q.ConsolidationLevel = req.ConsolidationLevel
	}

	topK := limit
	if req.Rerank {
		topK = req.RerankTopK
		if topK <= 0 {
			topK = limit * defaultRerankTopKMultiplier
			if topK < defaultRerankTopKFloor {
				topK = defaultRerankTopKFloor
			}
		}
	}
	q.TopK = topK

	scored, err := s.storage.Query(ctx, s.collection, q)
	if err != nil {
		return nil, fmt.Errorf("retrieval: query: %w", err)
	}

	records := toRecords(scored)

	if req.Rerank {
		records = s.applyRerank(ctx, query, records)
	}

	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// Timeline implements §4.10's timeline operation: no vector query, just
// chunks with CreatedAt >= since, newest first, capped at limit.
func (s *Service) Timeline(ctx context.Context, since time.Time, limit int) ([]SearchRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	sinceUnix := since.Unix()
	scored, err := s.storage.Scroll(ctx, s.collection, backend.Query{Since: &sinceUnix, TopK: limit * timelineScrollMultiplier})
	if err != nil {
		return nil, fmt.Errorf("retrieval: timeline scroll: %w", err)
	}

	records := toRecords(scored)
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

// KeyFilteredSearch is a semantic search with a required qntmKey filter.
func (s *Service) KeyFilteredSearch(ctx context.Context, qntmKey string, req SearchRequest) ([]SearchRecord, error) {
	if qntmKey == "" {
		return nil, fmt.Errorf("retrieval: key-filtered search requires a non-empty qntmKey")
	}
	req.QNTMKey = qntmKey
	return s.Search(ctx, req)
}

func (s *Service) applyRerank(ctx context.Context, query string, records []SearchRecord) []SearchRecord {
	if s.reranker == nil {
		pipeline.RecordRerankFallback()
		return records
	}

	candidates := make([]string, len(records))
	for i, r := range records {
		candidates[i] = r.Text
	}

	scores, err := s.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		s.logger.Warn("retrieval.search.rerank_failed", "err", err)
		pipeline.RecordRerankFallback()
		return records
	}

	for i := range records {
		score := scores[i]
		records[i].RerankScore = &score
	}
	sort.SliceStable(records, func(i, j int) bool {
		return *records[i].RerankScore > *records[j].RerankScore
	})
	return records
}

func toRecords(scored []backend.ScoredPoint) []SearchRecord {
	out := make([]SearchRecord, len(scored))
	for i, sp := range scored {
		qntmKey := ""
		if len(sp.Point.QNTMKeys) > 0 {
			qntmKey = sp.Point.QNTMKeys[0]
		}
		out[i] = SearchRecord{
			Text:       sp.Point.Text,
			FilePath:   sp.Point.SourcePath,
			ChunkIndex: sp.Point.ChunkIndex,
			Score:      sp.Score,
			CreatedAt:  sp.Point.IngestedAt,
			QNTMKey:    qntmKey,
		}
	}
	return out
}
