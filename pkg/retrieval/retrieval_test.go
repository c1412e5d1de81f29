// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package retrieval

import (
	"context"
	"testing"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
)

type stubEmbedder struct{}

func (stubEmbedder) Name() string                         { return "stub" }
func (stubEmbedder) Supports(c backend.Capability) bool   { return true }
func (stubEmbedder) IsAvailable(ctx context.Context) error { return nil }
func (stubEmbedder) Dimensions() int                       { return 2 }
func (stubEmbedder) EmbedText(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{0.1, 0.2}
	}
	return out, nil
}

type stubStorage struct {
	points []backend.ScoredPoint
	lastQ  backend.Query
}

func (s *stubStorage) Name() string                         { return "stub" }
func (s *stubStorage) Supports(c backend.Capability) bool   { return true }
func (s *stubStorage) IsAvailable(ctx context.Context) error { return nil }
func (s *stubStorage) EnsureCollection(ctx context.Context, name string, dims map[string]int) error {
	return nil
}
func (s *stubStorage) Upsert(ctx context.Context, collection string, points []backend.VectorPoint) error {
	return nil
}
func (s *stubStorage) Query(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	s.lastQ = q
	return s.points, nil
}
func (s *stubStorage) Scroll(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	s.lastQ = q
	return s.points, nil
}
func (s *stubStorage) Count(ctx context.Context, collection string) (int64, error) { return int64(len(s.points)), nil }
func (s *stubStorage) SetIndexBuilding(ctx context.Context, collection string, enabled bool) error {
	return nil
}
func (s *stubStorage) Close() error { return nil }

type stubReranker struct{ scores []float32 }

func (r *stubReranker) Name() string                         { return "stub-rerank" }
func (r *stubReranker) Supports(c backend.Capability) bool   { return true }
func (r *stubReranker) IsAvailable(ctx context.Context) error { return nil }
func (r *stubReranker) Rerank(ctx context.Context, query string, candidates []string) ([]float32, error) {
	return r.scores, nil
}

func samplePoints() []backend.ScoredPoint {
	now := time.Now().UTC()
	return []backend.ScoredPoint{
		{Point: backend.ChunkPayload{Text: "alpha", SourcePath: "a.md", IngestedAt: now.Add(-time.Hour)}, Score: 0.5},
		{Point: backend.ChunkPayload{Text: "beta", SourcePath: "b.md", IngestedAt: now}, Score: 0.9},
	}
}

func TestSearch_ReturnsVectorOrderedResultsWithoutRerank(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	svc := NewService(st, stubEmbedder{}, nil, nil, "docs", nil)

	records, err := svc.Search(context.Background(), SearchRequest{Query: "find things", Limit: 10})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].RerankScore != nil {
		t.Fatal("expected no rerank score when rerank is off")
	}
}

func TestSearch_RerankReordersByScore(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	rr := &stubReranker{scores: []float32{0.1, 0.9}} // beta's current position is index 1, alpha is 0
	svc := NewService(st, stubEmbedder{}, rr, nil, "docs", nil)

	records, err := svc.Search(context.Background(), SearchRequest{Query: "find things", Limit: 10, Rerank: true})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if records[0].Text != "beta" {
		t.Fatalf("expected beta (higher rerank score) first, got %q", records[0].Text)
	}
}

func TestSearch_RerankTopKDefaultsToMaxLimitTimesThreeOrFifteen(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	rr := &stubReranker{scores: []float32{0.1, 0.2}}
	svc := NewService(st, stubEmbedder{}, rr, nil, "docs", nil)

	if _, err := svc.Search(context.Background(), SearchRequest{Query: "q", Limit: 10, Rerank: true}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if st.lastQ.TopK != 30 {
		t.Fatalf("expected default rerank topK 30 (limit*3), got %d", st.lastQ.TopK)
	}

	if _, err := svc.Search(context.Background(), SearchRequest{Query: "q", Limit: 2, Rerank: true}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if st.lastQ.TopK != 15 {
		t.Fatalf("expected rerank topK floor 15, got %d", st.lastQ.TopK)
	}
}

func TestTimeline_SortsDescendingAndCapsLimit(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	svc := NewService(st, stubEmbedder{}, nil, nil, "docs", nil)

	records, err := svc.Timeline(context.Background(), time.Now().Add(-2*time.Hour), 1)
	if err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected limit to cap at 1, got %d", len(records))
	}
	if records[0].Text != "beta" {
		t.Fatalf("expected most recent record first, got %q", records[0].Text)
	}
}

func TestTimeline_PerformsNoVectorQueryAndRequestsMoreThanLimit(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	svc := NewService(st, stubEmbedder{}, nil, nil, "docs", nil)

	if _, err := svc.Timeline(context.Background(), time.Now().Add(-2*time.Hour), 20); err != nil {
		t.Fatalf("Timeline: %v", err)
	}
	if st.lastQ.Vector != nil || st.lastQ.VectorName != "" {
		t.Fatalf("expected no vector query, got %+v", st.lastQ)
	}
	if st.lastQ.TopK <= 20 {
		t.Fatalf("expected scroll to over-fetch beyond limit 20, got topK %d", st.lastQ.TopK)
	}
}

func TestSearch_WiresConsolidationLevelIntoQuery(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	svc := NewService(st, stubEmbedder{}, nil, nil, "docs", nil)

	level := 1
	if _, err := svc.Search(context.Background(), SearchRequest{Query: "q", ConsolidationLevel: &level}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if st.lastQ.ConsolidationLevel == nil || *st.lastQ.ConsolidationLevel != 1 {
		t.Fatalf("expected ConsolidationLevel 1 wired into the query, got %+v", st.lastQ.ConsolidationLevel)
	}
}

func TestKeyFilteredSearch_RequiresKey(t *testing.T) {
	st := &stubStorage{points: samplePoints()}
	svc := NewService(st, stubEmbedder{}, nil, nil, "docs", nil)

	if _, err := svc.KeyFilteredSearch(context.Background(), "", SearchRequest{Query: "q"}); err == nil {
		t.Fatal("expected error for empty qntmKey")
	}
}
