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
	"time"

	"github.com/kraklabs/atlas/pkg/backend"
)

// UpsertBatchOptions configures the §4.8 batcher ahead of storage.Upsert.
var UpsertBatchOptions = BatchOptions{MaxSize: 50, TimeoutMs: 15000}

// BuildPoint converts one keyed, embedded record into the vector point
// storage will upsert: a deterministic id, a named-vector map populated only
// with the vectors actually produced, and the full chunk payload (§3).
func BuildPoint(rec KeyedRecord, importance backend.Importance) backend.VectorPoint {
	id := GenerateChunkID(rec.SourcePath, rec.ChunkIndex)

	vectors := []backend.NamedVector{{Name: "text", Values: rec.TextVector}}
	present := []string{"text"}
	if rec.CodeVector != nil {
		vectors = append(vectors, backend.NamedVector{Name: "code", Values: rec.CodeVector})
		present = append(present, "code")
	}

	if importance == "" {
		importance = backend.ImportanceNormal
	}

	payload := backend.ChunkPayload{
		ID:                 id,
		SourcePath:         rec.SourcePath,
		FileName:           rec.FileName,
		FileType:           rec.FileType,
		ChunkIndex:         rec.ChunkIndex,
		TotalChunks:        rec.TotalChunks,
		Text:               rec.Text,
		CharCount:          len(rec.Text),
		ContentType:        rec.ContentType,
		QNTMKeys:           rec.QNTMKeys,
		IngestedAt:         time.Now().UTC(),
		Importance:         importance,
		ConsolidationLevel: 0,
		EmbeddingModel:     rec.Model,
		EmbeddingStrategy:  rec.Strategy,
		VectorsPresent:     present,
	}

	return backend.VectorPoint{ID: id, Vectors: vectors, Payload: payload}
}

// UpsertBatch writes one batch of points to storage and records the outcome.
// Because point ids are deterministic (§3, §4.8 idempotence), re-ingesting
// unchanged content replaces an existing point rather than duplicating it.
func UpsertBatch(ctx context.Context, st backend.Storage, collection string, points []backend.VectorPoint) error {
	start := time.Now()
	defer func() { recordUpsertDuration(time.Since(start)) }()

	if err := st.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("upsert batch of %d points: %w", len(points), err)
	}
	recordBatchUpserted(len(points))
	return nil
}

func recordUpsertDuration(d time.Duration) {
	ingMetrics.init()
	ingMetrics.upsertDuration.Observe(d.Seconds())
}
