// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import (
	"context"
	"testing"
)

func TestSanitizeKeys_DedupAndCanonicalize(t *testing.T) {
	keys := SanitizeKeys("Vector Search, vector   search, Batch Upsert", nil, 6)

	if len(keys) != 2 {
		t.Fatalf("expected 2 deduped keys, got %v", keys)
	}
	if keys[0] != "vector search" {
		t.Fatalf("expected collapsed-whitespace lowercase key, got %q", keys[0])
	}
}

func TestSanitizeKeys_ReusesExistingCasing(t *testing.T) {
	keys := SanitizeKeys("ARCH ~ DESIGN", []string{"arch ~ design"}, 6)

	if len(keys) != 1 || keys[0] != "arch ~ design" {
		t.Fatalf("expected reuse of existing key, got %v", keys)
	}
}

func TestSanitizeKeys_CapsAtMax(t *testing.T) {
	keys := SanitizeKeys("a,b,c,d,e,f,g,h", nil, 3)

	if len(keys) != 3 {
		t.Fatalf("expected 3 keys, got %d: %v", len(keys), keys)
	}
}

func TestSanitizeKeys_PreservesFirstOccurrenceOrder(t *testing.T) {
	keys := SanitizeKeys("zebra, arch ~ design, apple", nil, 6)

	want := []string{"zebra", "arch ~ design", "apple"}
	if len(keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), keys)
	}
	for i, k := range want {
		if keys[i] != k {
			t.Fatalf("expected first-occurrence order %v, got %v", want, keys)
		}
	}
}

func TestSanitizeKeys_CanonicalizesNamespaceTermForm(t *testing.T) {
	keys := SanitizeKeys("@Arch  ~  Design", nil, 6)

	if len(keys) != 1 || keys[0] != "arch ~ design" {
		t.Fatalf("expected canonical 'arch ~ design', got %v", keys)
	}
}

func TestSanitizeKeys_AcceptsNamespaceTermAsSingleString(t *testing.T) {
	keys := SanitizeKeys("@arch ~ design", nil, 6)

	if len(keys) != 1 || keys[0] != "arch ~ design" {
		t.Fatalf("expected canonical 'arch ~ design', got %v", keys)
	}
}

func TestKeyGenerator_GenerateKeys(t *testing.T) {
	mock := &MockProvider{
		ChatFunc: func(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
			return &ChatResponse{Message: Message{Role: "assistant", Content: "vector-search, batch-upsert"}}, nil
		},
	}
	gen := NewKeyGenerator(mock, 0)

	keys, err := gen.GenerateKeys(context.Background(), "Atlas batches vector upserts.", nil)
	if err != nil {
		t.Fatalf("GenerateKeys error = %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keys)
	}
}
