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

package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
)

// codeExtensions maps a lowercase file extension to "code" content typing;
// anything else falls back to "text" (or "media" for known binary formats).
var codeExtensions = map[string]bool{
	".go": true, ".ts": true, ".tsx": true, ".js": true, ".jsx": true,
	".py": true, ".rs": true, ".java": true, ".c": true, ".h": true,
	".cpp": true, ".hpp": true, ".rb": true, ".sh": true, ".sql": true,
}

var mediaExtensions = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".pdf": true,
	".mp4": true, ".mp3": true, ".zip": true,
}

// ReadChunkRecord is what the read+chunk stage (§4.5) yields per surviving
// chunk. ChunkIndex and TotalChunks are populated after short-chunk
// filtering so indices are dense starting at 0.
type ReadChunkRecord struct {
	SourcePath  string
	FileName    string
	FileType    string
	ContentType backend.ContentType
	Text        string
	ChunkIndex  int
	TotalChunks int
}

// ReadChunkError records a per-file failure that does not abort the run.
type ReadChunkError struct {
	Path string
	Err  error
}

// ExpandPaths turns a list of root paths (files, directories, or glob
// patterns) into a flat, deduplicated list of file paths (§4.9 step 3). When
// recursive is false, directory descent stops at the first level.
func ExpandPaths(roots []string, excludeGlobs []string, recursive bool) ([]string, error) {
	seen := make(map[string]bool)
	var out []string

	add := func(path string) {
		abs, err := filepath.Abs(path)
		if err != nil {
			abs = path
		}
		if !seen[abs] {
			seen[abs] = true
			out = append(out, path)
		}
	}

	for _, root := range roots {
		if strings.ContainsAny(root, "*?[") {
			matches, err := filepath.Glob(root)
			if err != nil {
				return nil, fmt.Errorf("expand glob %q: %w", root, err)
			}
			for _, m := range matches {
				add(m)
			}
			continue
		}

		info, err := os.Stat(root)
		if err != nil {
			return nil, fmt.Errorf("stat %q: %w", root, err)
		}
		if !info.IsDir() {
			add(root)
			continue
		}

		files, err := walkDir(root, excludeGlobs, recursive)
		if err != nil {
			return nil, fmt.Errorf("walk %q: %w", root, err)
		}
		for _, f := range files {
			add(f)
		}
	}

	return out, nil
}

func walkDir(root string, excludeGlobs []string, recursive bool) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			if path == root {
				return nil
			}
			if !recursive {
				return filepath.SkipDir
			}
			if matchesAnyGlob(filepath.ToSlash(rel), excludeGlobs) {
				return filepath.SkipDir
			}
			return nil
		}

		if matchesAnyGlob(filepath.ToSlash(rel), excludeGlobs) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	return files, err
}

// matchesAnyGlob reports whether path matches any of patterns, each
// interpreted as a simple "*"/"**" glob against the full relative path.
func matchesAnyGlob(path string, patterns []string) bool {
	for _, pattern := range patterns {
		pattern = filepath.ToSlash(pattern)
		if strings.HasSuffix(pattern, "/**") {
			prefix := strings.TrimSuffix(pattern, "/**")
			if path == prefix || strings.HasPrefix(path, prefix+"/") {
				return true
			}
			continue
		}
		if ok, _ := filepath.Match(pattern, path); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, filepath.Base(path)); ok {
			return true
		}
	}
	return false
}

// ReadAndChunk reads sourcePath as UTF-8, splits it with splitter, drops any
// chunk under chunkMinChars, and returns one record per surviving chunk with
// dense zero-based ChunkIndex/TotalChunks. A nil slice with nil error means
// the file produced no surviving chunks, not a failure.
func ReadAndChunk(ctx context.Context, sp backend.Splitter, root, sourcePath string, chunkMinChars int, logger *slog.Logger) ([]ReadChunkRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}

	start := time.Now()
	data, err := os.ReadFile(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", sourcePath, err)
	}
	text := string(data)

	relPath, err := filepath.Rel(root, sourcePath)
	if err != nil {
		relPath = sourcePath
	}
	relPath = filepath.ToSlash(relPath)

	fileName := filepath.Base(relPath)
	fileType := strings.ToLower(filepath.Ext(fileName))
	contentType := classifyContentType(fileType)

	raw, err := sp.Split(ctx, relPath, text)
	if err != nil {
		return nil, fmt.Errorf("split %q: %w", sourcePath, err)
	}

	var surviving []string
	for _, chunk := range raw {
		if len(strings.TrimSpace(chunk)) < chunkMinChars {
			continue
		}
		surviving = append(surviving, chunk)
	}

	recordReadDuration(time.Since(start))
	recordFileRead()
	recordChunkMade(len(surviving))

	if len(surviving) == 0 {
		return nil, nil
	}

	records := make([]ReadChunkRecord, len(surviving))
	for i, chunk := range surviving {
		records[i] = ReadChunkRecord{
			SourcePath:  relPath,
			FileName:    fileName,
			FileType:    fileType,
			ContentType: contentType,
			Text:        chunk,
			ChunkIndex:  i,
			TotalChunks: len(surviving),
		}
	}
	return records, nil
}

func classifyContentType(fileType string) backend.ContentType {
	if codeExtensions[fileType] {
		return backend.ContentTypeCode
	}
	if mediaExtensions[fileType] {
		return backend.ContentTypeMedia
	}
	return backend.ContentTypeText
}

func recordReadDuration(d time.Duration) {
	ingMetrics.init()
	ingMetrics.readDuration.Observe(d.Seconds())
}
