// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"testing"

	"github.com/kraklabs/atlas/pkg/backend"
)

func TestBuildPoint_DeterministicIDAndVectorsPresent(t *testing.T) {
	rec := KeyedRecord{
		EmbeddedRecord: EmbeddedRecord{
			ReadChunkRecord: ReadChunkRecord{
				SourcePath: "docs/a.md", FileName: "a.md", ChunkIndex: 2, TotalChunks: 5,
				Text: "hello world", ContentType: backend.ContentTypeText,
			},
			TextVector: []float32{0.1, 0.2},
			Model:      "voyage-3",
			Strategy:   backend.EmbeddingStrategySnippet,
		},
		QNTMKeys: []string{"greeting"},
	}

	p1 := BuildPoint(rec, "")
	p2 := BuildPoint(rec, "")

	if p1.ID != p2.ID {
		t.Fatalf("expected deterministic id, got %q vs %q", p1.ID, p2.ID)
	}
	if len(p1.Vectors) != 1 || p1.Vectors[0].Name != "text" {
		t.Fatalf("expected only a text vector, got %+v", p1.Vectors)
	}
	if p1.Payload.Importance != backend.ImportanceNormal {
		t.Fatalf("expected default importance normal, got %q", p1.Payload.Importance)
	}
	if p1.Payload.CharCount != len("hello world") {
		t.Fatalf("expected char count to match text length, got %d", p1.Payload.CharCount)
	}
}

func TestBuildPoint_IncludesCodeVectorWhenPresent(t *testing.T) {
	rec := KeyedRecord{
		EmbeddedRecord: EmbeddedRecord{
			ReadChunkRecord: ReadChunkRecord{SourcePath: "main.go", ChunkIndex: 0, TotalChunks: 1, ContentType: backend.ContentTypeCode},
			TextVector:      []float32{0.1},
			CodeVector:      []float32{0.2},
		},
	}

	p := BuildPoint(rec, "")
	present := p.Payload.VectorsPresent
	if len(present) != 2 || present[0] != "text" || present[1] != "code" {
		t.Fatalf("expected vectors_present [text code], got %v", present)
	}
}

type recordingStorage struct {
	fakeStorage
	upserted []backend.VectorPoint
}

func (r *recordingStorage) Upsert(ctx context.Context, collection string, points []backend.VectorPoint) error {
	r.upserted = append(r.upserted, points...)
	return nil
}

func TestUpsertBatch_WritesAllPoints(t *testing.T) {
	st := &recordingStorage{}
	points := []backend.VectorPoint{{ID: "1"}, {ID: "2"}}

	if err := UpsertBatch(context.Background(), st, "docs", points); err != nil {
		t.Fatalf("UpsertBatch: %v", err)
	}
	if len(st.upserted) != 2 {
		t.Fatalf("expected 2 points upserted, got %d", len(st.upserted))
	}
}
