// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package daemon

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/retrieval"
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

type stubStorage struct{}

func (stubStorage) Name() string                         { return "stub" }
func (stubStorage) Supports(c backend.Capability) bool   { return true }
func (stubStorage) IsAvailable(ctx context.Context) error { return nil }
func (stubStorage) EnsureCollection(ctx context.Context, name string, dims map[string]int) error {
	return nil
}
func (stubStorage) Upsert(ctx context.Context, collection string, points []backend.VectorPoint) error {
	return nil
}
func (stubStorage) Query(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	return []backend.ScoredPoint{
		{Point: backend.ChunkPayload{Text: "hello", SourcePath: "a.md", IngestedAt: time.Now().UTC()}, Score: 0.7},
	}, nil
}
func (stubStorage) Scroll(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	return []backend.ScoredPoint{
		{Point: backend.ChunkPayload{Text: "hello", SourcePath: "a.md", IngestedAt: time.Now().UTC()}},
	}, nil
}
func (stubStorage) Count(ctx context.Context, collection string) (int64, error) { return 1, nil }
func (stubStorage) SetIndexBuilding(ctx context.Context, collection string, enabled bool) error {
	return nil
}
func (stubStorage) Close() error { return nil }

func TestServerClient_SearchRoundTrip(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "atlas.sock")

	svc := retrieval.NewService(stubStorage{}, stubEmbedder{}, nil, nil, "docs", nil)
	srv, err := Listen(socketPath, svc)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go srv.Serve(ctx)

	time.Sleep(20 * time.Millisecond) // let Accept start

	client := NewClient(socketPath)
	defer client.Close()

	records, err := client.Search(retrieval.SearchRequest{Query: "hi", Limit: 5})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 || records[0].Text != "hello" {
		t.Fatalf("unexpected records: %+v", records)
	}
}

func TestClient_ReturnsErrorWhenDaemonAbsent(t *testing.T) {
	client := NewClient(filepath.Join(t.TempDir(), "nonexistent.sock"))
	_, err := client.Search(retrieval.SearchRequest{Query: "hi"})
	if err == nil {
		t.Fatal("expected connection error when no daemon is listening")
	}
}
