// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	atlastesting "github.com/kraklabs/atlas/internal/testing"
	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/registry"
	"github.com/kraklabs/atlas/pkg/splitter"
)

func setupController(t *testing.T, root string) (*Controller, *atlastesting.MemoryStorage) {
	t.Helper()
	reg := registry.New(nil)
	if err := reg.Register(backend.CapabilityTextEmbedding, "stub", &stubTextEmbedder{dims: 4}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(backend.CapabilityKeyGeneration, "stub", &stubKeyGenerator{keys: []string{"topic"}}); err != nil {
		t.Fatal(err)
	}
	if err := reg.Register(backend.CapabilityTextSplitting, "stub", splitter.New()); err != nil {
		t.Fatal(err)
	}
	st := atlastesting.NewMemoryStorage()
	if err := reg.Register(backend.CapabilityVectorStorage, "stub", st); err != nil {
		t.Fatal(err)
	}

	ic := NewIngestContext(reg, root, "docs", nil)
	return NewController(ic, NewPauseController(), nil), st
}

func TestController_Run_IngestsFilesIntoStorage(t *testing.T) {
	dir := t.TempDir()
	content := "# Title\n\nFirst paragraph long enough to survive the minimum chunk filter easily.\n\n## Section\n\nSecond paragraph long enough to survive filtering without any trouble at all.\n"
	if err := os.WriteFile(filepath.Join(dir, "doc.md"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	ctrl, st := setupController(t, dir)

	result, err := ctrl.Run(context.Background(), IngestOptions{
		Paths:            []string{dir},
		Recursive:        true,
		ChunkMinChars:    10,
		VectorDimensions: map[string]int{"text": 4},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.FilesProcessed != 1 {
		t.Fatalf("expected 1 file processed, got %d", result.FilesProcessed)
	}
	if result.ChunksStored == 0 {
		t.Fatal("expected chunks stored")
	}
	count, err := st.Count(context.Background(), "docs")
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if int(count) != result.ChunksStored {
		t.Fatalf("expected storage to hold %d points, got %d", result.ChunksStored, count)
	}
	if ctrl.State() != StateDone {
		t.Fatalf("expected final state Done, got %q", ctrl.State())
	}
}

func TestController_Run_AbortsWhenInputPathIsMissing(t *testing.T) {
	dir := t.TempDir()
	goodPath := filepath.Join(dir, "good.md")
	if err := os.WriteFile(goodPath, []byte("# T\n\nLong enough paragraph content to survive the minimum chunk size filter for sure.\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctrl, _ := setupController(t, dir)

	result, err := ctrl.Run(context.Background(), IngestOptions{
		Paths:            []string{goodPath, filepath.Join(dir, "missing.md")},
		ChunkMinChars:    10,
		VectorDimensions: map[string]int{"text": 4},
	})
	if err == nil {
		t.Fatalf("expected an expand-paths error for the missing file")
	}
	_ = result
}

func TestController_Run_EnablesBatchModeAboveThreshold(t *testing.T) {
	dir := t.TempDir()
	for i := 0; i < 3; i++ {
		name := filepath.Join(dir, "doc"+string(rune('a'+i))+".md")
		if err := os.WriteFile(name, []byte("# T\n\nLong enough paragraph content to survive the minimum chunk size filter easily here.\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	ctrl, st := setupController(t, dir)

	result, err := ctrl.Run(context.Background(), IngestOptions{
		Paths:              []string{dir},
		Recursive:          true,
		ChunkMinChars:      10,
		BatchHNSWThreshold: 2,
		VectorDimensions:   map[string]int{"text": 4},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.BatchMode {
		t.Fatal("expected batch mode to be enabled")
	}
	if !st.IndexBuilding() {
		t.Fatal("expected index building re-enabled after the run finishes")
	}
}
