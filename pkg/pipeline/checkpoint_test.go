// Copyright 2025 KrakLabs
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"testing"
)

func TestCheckpoint_SaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	cm := NewCheckpointManager(dir)

	cp := &Checkpoint{
		Collection:        "docs",
		LastProcessedFile: "docs/readme.md",
		FilesProcessed:    3,
		ChunksEmbedded:    12,
		BatchesUpserted:   1,
		FileHashes:        map[string]string{"docs/readme.md": "abc123"},
		StartTime:         "2026-07-29T00:00:00Z",
		LastUpdateTime:    "2026-07-29T00:01:00Z",
	}

	if err := cm.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	loaded, err := cm.LoadCheckpoint("docs")
	if err != nil {
		t.Fatalf("LoadCheckpoint: %v", err)
	}
	if loaded == nil {
		t.Fatal("expected checkpoint, got nil")
	}
	if loaded.FilesProcessed != 3 || loaded.ChunksEmbedded != 12 {
		t.Fatalf("unexpected checkpoint contents: %+v", loaded)
	}
	if loaded.FileHashes["docs/readme.md"] != "abc123" {
		t.Fatalf("expected file hash to round-trip, got %+v", loaded.FileHashes)
	}
}

func TestCheckpoint_LoadMissingReturnsNil(t *testing.T) {
	cm := NewCheckpointManager(t.TempDir())
	cp, err := cm.LoadCheckpoint("nonexistent")
	if err != nil {
		t.Fatalf("expected no error for missing checkpoint, got %v", err)
	}
	if cp != nil {
		t.Fatalf("expected nil checkpoint, got %+v", cp)
	}
}

func TestCheckpoint_Clear(t *testing.T) {
	dir := t.TempDir()
	cm := NewCheckpointManager(dir)
	cp := &Checkpoint{Collection: "docs", StartTime: "t0", LastUpdateTime: "t0"}
	if err := cm.SaveCheckpoint(cp); err != nil {
		t.Fatalf("SaveCheckpoint: %v", err)
	}

	if err := cm.ClearCheckpoint("docs"); err != nil {
		t.Fatalf("ClearCheckpoint: %v", err)
	}

	loaded, err := cm.LoadCheckpoint("docs")
	if err != nil {
		t.Fatalf("LoadCheckpoint after clear: %v", err)
	}
	if loaded != nil {
		t.Fatalf("expected checkpoint to be gone, got %+v", loaded)
	}

	// Clearing an already-absent checkpoint is not an error.
	if err := cm.ClearCheckpoint("docs"); err != nil {
		t.Fatalf("ClearCheckpoint on missing file: %v", err)
	}
}
