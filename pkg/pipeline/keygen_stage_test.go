// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"testing"

	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/registry"
)

type stubKeyGenerator struct{ keys []string }

func (s *stubKeyGenerator) Name() string                         { return "stub-keygen" }
func (s *stubKeyGenerator) Supports(c backend.Capability) bool   { return c == backend.CapabilityKeyGeneration }
func (s *stubKeyGenerator) IsAvailable(ctx context.Context) error { return nil }
func (s *stubKeyGenerator) GenerateKeys(ctx context.Context, text string, existingKeys []string) ([]string, error) {
	return s.keys, nil
}

func TestGenerateKeysForRecord_CanonicalizesAgainstDictionary(t *testing.T) {
	reg := registry.New(nil)
	if err := reg.Register(backend.CapabilityKeyGeneration, "stub", &stubKeyGenerator{keys: []string{"AUTH ~ LOGIN", "new-term"}}); err != nil {
		t.Fatal(err)
	}
	ic := NewIngestContext(reg, "/repo", "docs", []string{"auth ~ login"})

	rec := EmbeddedRecord{ReadChunkRecord: ReadChunkRecord{SourcePath: "a.md", ChunkIndex: 0}}
	keyed, err := GenerateKeysForRecord(context.Background(), ic, nil, rec)
	if err != nil {
		t.Fatalf("GenerateKeysForRecord: %v", err)
	}
	if len(keyed.QNTMKeys) != 2 {
		t.Fatalf("expected 2 keys, got %v", keyed.QNTMKeys)
	}
	if keyed.QNTMKeys[0] != "auth ~ login" {
		t.Fatalf("expected canonical casing to win, got %q", keyed.QNTMKeys[0])
	}
	if keyed.QNTMKeys[1] != "new-term" {
		t.Fatalf("expected unmatched key to pass through, got %q", keyed.QNTMKeys[1])
	}
}

func TestGenerateKeysForRecord_RespectsPauseBeforeCall(t *testing.T) {
	reg := registry.New(nil)
	if err := reg.Register(backend.CapabilityKeyGeneration, "stub", &stubKeyGenerator{keys: []string{"a"}}); err != nil {
		t.Fatal(err)
	}
	ic := NewIngestContext(reg, "/repo", "docs", nil)
	pc := NewPauseController()

	rec := EmbeddedRecord{ReadChunkRecord: ReadChunkRecord{SourcePath: "a.md"}}

	ctx, cancel := context.WithCancel(context.Background())
	pc.Pause()
	cancel()

	if _, err := GenerateKeysForRecord(ctx, ic, pc, rec); err == nil {
		t.Fatal("expected cancellation error while paused")
	}
	if pc.InFlightCount() != 0 {
		t.Fatalf("expected no leaked in-flight registration, got %d", pc.InFlightCount())
	}
}
