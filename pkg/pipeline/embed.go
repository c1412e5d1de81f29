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
	"log/slog"
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
)

// EmbedConcurrency is the fixed, low concurrency for the embed stage (§4.6):
// embedding endpoints are typically rate-limited per account, so a single
// ingest should not starve other clients.
const EmbedConcurrency = 3

// minChunksForContextual is the minimum surviving-chunk count a file must
// have before the contextualized strategy is even considered (§4.6): a
// single-chunk file gains nothing from contextualization.
const minChunksForContextual = 3

// EmbeddedRecord is a ReadChunkRecord after the embed stage has attached
// vectors, the strategy used, and the model identifier.
type EmbeddedRecord struct {
	ReadChunkRecord
	TextVector []float32
	CodeVector []float32
	Model      string
	Strategy   backend.EmbeddingStrategy
}

// fileChunkGroup is the unit the embed stage reasons about strategy
// selection over: every surviving chunk from one file, together so
// contextualized embedding can see siblings.
type fileChunkGroup struct {
	SourcePath string
	Records    []ReadChunkRecord
}

// GroupBySourceFile groups a flat record slice by SourcePath, preserving the
// order each file's chunks were emitted in.
func GroupBySourceFile(records []ReadChunkRecord) []fileChunkGroup {
	order := make([]string, 0)
	groups := make(map[string]*fileChunkGroup)
	for _, r := range records {
		g, ok := groups[r.SourcePath]
		if !ok {
			g = &fileChunkGroup{SourcePath: r.SourcePath}
			groups[r.SourcePath] = g
			order = append(order, r.SourcePath)
		}
		g.Records = append(g.Records, r)
	}
	out := make([]fileChunkGroup, 0, len(order))
	for _, path := range order {
		out = append(out, *groups[path])
	}
	return out
}

// EmbedFile runs the embed stage (§4.6) over every chunk of one file,
// deciding between the snippet and contextualized strategies. It always
// produces a text vector; it additionally produces a code vector when the
// content is code and a code embedder is available.
func EmbedFile(ctx context.Context, ic *IngestContext, group fileChunkGroup, logger *slog.Logger) ([]EmbeddedRecord, error) {
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	defer func() { recordEmbedDuration(time.Since(start)) }()

	textEmbedder, err := ic.TextEmbedder()
	if err != nil {
		return nil, fmt.Errorf("embed stage: %w", err)
	}

	useContextual := shouldUseContextual(ic, group)

	var textVectors [][]float32
	var strategy backend.EmbeddingStrategy

	if useContextual {
		contextual, _ := ic.ContextualEmbedder()
		chunks := make([]backend.ContextualChunk, len(group.Records))
		for i, r := range group.Records {
			chunks[i] = backend.ContextualChunk{
				Text:    r.Text,
				Context: fmt.Sprintf("%s (chunk %d of %d)", r.FileName, r.ChunkIndex+1, r.TotalChunks),
			}
		}
		vecs, cErr := contextual.EmbedContextual(ctx, chunks)
		if cErr == nil {
			textVectors = vecs
			strategy = backend.EmbeddingStrategyContextualized
		} else {
			logger.Warn("pipeline.embed.contextual_fallback", "source_path", group.SourcePath, "err", cErr)
		}
	}

	if textVectors == nil {
		texts := make([]string, len(group.Records))
		for i, r := range group.Records {
			texts[i] = r.Text
		}
		vecs, tErr := textEmbedder.EmbedText(ctx, texts)
		if tErr != nil {
			recordEmbedError()
			return nil, fmt.Errorf("embed stage: snippet embed %q: %w", group.SourcePath, tErr)
		}
		textVectors = vecs
		strategy = backend.EmbeddingStrategySnippet
	}

	var codeVectors [][]float32
	isCode := len(group.Records) > 0 && group.Records[0].ContentType == backend.ContentTypeCode
	if isCode {
		if codeEmbedder, cErr := ic.CodeEmbedder(); cErr == nil && codeEmbedder != nil {
			snippets := make([]string, len(group.Records))
			for i, r := range group.Records {
				snippets[i] = r.Text
			}
			vecs, err := codeEmbedder.EmbedCode(ctx, snippets)
			if err != nil {
				logger.Warn("pipeline.embed.code_vector_skipped", "source_path", group.SourcePath, "err", err)
			} else {
				codeVectors = vecs
			}
		}
	}

	out := make([]EmbeddedRecord, len(group.Records))
	for i, r := range group.Records {
		rec := EmbeddedRecord{
			ReadChunkRecord: r,
			TextVector:      textVectors[i],
			Model:           textEmbedder.Name(),
			Strategy:        strategy,
		}
		if codeVectors != nil {
			rec.CodeVector = codeVectors[i]
		}
		out[i] = rec
		recordChunkEmbedded()
	}
	return out, nil
}

// shouldUseContextual implements §4.6's contextualized-strategy gate: the
// file must be document-class (not code), have at least
// minChunksForContextual surviving chunks, and a contextualized backend must
// be registered.
func shouldUseContextual(ic *IngestContext, group fileChunkGroup) bool {
	if len(group.Records) < minChunksForContextual {
		return false
	}
	if group.Records[0].ContentType == backend.ContentTypeCode {
		return false
	}
	_, ok := ic.ContextualEmbedder()
	return ok
}

func recordEmbedDuration(d time.Duration) {
	ingMetrics.init()
	ingMetrics.embedDuration.Observe(d.Seconds())
}
