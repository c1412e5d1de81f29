// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/kraklabs/atlas/pkg/splitter"
)

func TestExpandPaths_FileAndDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(dir, "sub"), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("# B"), 0644); err != nil {
		t.Fatal(err)
	}

	files, err := ExpandPaths([]string{dir}, nil, true)
	if err != nil {
		t.Fatalf("ExpandPaths: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected 2 files recursively, got %d: %v", len(files), files)
	}
}

func TestExpandPaths_NonRecursiveStopsAtFirstLevel(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0644)
	os.Mkdir(filepath.Join(dir, "sub"), 0755)
	os.WriteFile(filepath.Join(dir, "sub", "b.md"), []byte("# B"), 0644)

	files, err := ExpandPaths([]string{dir}, nil, false)
	if err != nil {
		t.Fatalf("ExpandPaths: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file non-recursively, got %d: %v", len(files), files)
	}
}

func TestExpandPaths_ExcludesMatchingGlob(t *testing.T) {
	dir := t.TempDir()
	os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0644)
	os.Mkdir(filepath.Join(dir, "node_modules"), 0755)
	os.WriteFile(filepath.Join(dir, "node_modules", "b.md"), []byte("# B"), 0644)

	files, err := ExpandPaths([]string{dir}, []string{"node_modules/**"}, true)
	if err != nil {
		t.Fatalf("ExpandPaths: %v", err)
	}
	for _, f := range files {
		if strings.Contains(f, "node_modules") {
			t.Fatalf("expected node_modules excluded, got %v", files)
		}
	}
}

func TestReadAndChunk_DropsShortChunksAndDensifiesIndex(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	content := "# Heading One\n\nThis is a reasonably long paragraph of prose that should survive the minimum chunk size filter easily.\n\n## Heading Two\n\nAnother long enough paragraph of prose content that survives filtering without trouble at all.\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := ReadAndChunk(context.Background(), splitter.New(), dir, path, 10, nil)
	if err != nil {
		t.Fatalf("ReadAndChunk: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected surviving chunks")
	}
	for i, r := range records {
		if r.ChunkIndex != i {
			t.Fatalf("expected dense chunk index %d, got %d", i, r.ChunkIndex)
		}
		if r.TotalChunks != len(records) {
			t.Fatalf("expected total chunks %d, got %d", len(records), r.TotalChunks)
		}
		if r.ContentType != "text" {
			t.Fatalf("expected text content type, got %q", r.ContentType)
		}
	}
}

func TestReadAndChunk_CodeExtensionClassifiesAsCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "main.go")
	content := strings.Repeat("func doSomething() {}\n", 20)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	records, err := ReadAndChunk(context.Background(), splitter.New(), dir, path, 10, nil)
	if err != nil {
		t.Fatalf("ReadAndChunk: %v", err)
	}
	if len(records) == 0 {
		t.Fatal("expected surviving chunks")
	}
	if records[0].ContentType != "code" {
		t.Fatalf("expected code content type, got %q", records[0].ContentType)
	}
}
