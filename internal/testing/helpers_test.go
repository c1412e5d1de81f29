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

package testing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/atlas/pkg/backend"
)

func point(id string, vec []float32, keys []string, ingested time.Time) backend.VectorPoint {
	return backend.VectorPoint{
		ID:      id,
		Vectors: []backend.NamedVector{{Name: "text", Values: vec}},
		Payload: backend.ChunkPayload{
			ID:         id,
			SourcePath: id,
			QNTMKeys:   keys,
			IngestedAt: ingested,
		},
	}
}

func TestMemoryStorage_UpsertIsIdempotent(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{point("a", []float32{1, 0}, nil, time.Now())}))
	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{point("a", []float32{1, 0}, nil, time.Now())}))

	count, err := store.Count(ctx, "docs")
	require.NoError(t, err)
	assert.EqualValues(t, 1, count)
}

func TestMemoryStorage_QueryRanksByCosineSimilarity(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{
		point("close", []float32{1, 0}, nil, time.Now()),
		point("far", []float32{0, 1}, nil, time.Now()),
	}))

	results, err := store.Query(ctx, "docs", backend.Query{VectorName: "text", Vector: []float32{1, 0}, TopK: 2})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "close", results[0].Point.ID)
	assert.Equal(t, "far", results[1].Point.ID)
}

func TestMemoryStorage_QueryFiltersByQNTMKey(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{
		point("tagged", []float32{1, 0}, []string{"onboarding"}, time.Now()),
		point("untagged", []float32{1, 0}, nil, time.Now()),
	}))

	results, err := store.Query(ctx, "docs", backend.Query{VectorName: "text", Vector: []float32{1, 0}, TopK: 10, QNTMKeys: []string{"onboarding"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "tagged", results[0].Point.ID)
}

func TestMemoryStorage_QueryFiltersByTimeRange(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	old := time.Unix(1000, 0).UTC()
	recent := time.Unix(2000, 0).UTC()
	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{
		point("old", []float32{1, 0}, nil, old),
		point("recent", []float32{1, 0}, nil, recent),
	}))

	since := int64(1500)
	results, err := store.Query(ctx, "docs", backend.Query{VectorName: "text", Vector: []float32{1, 0}, TopK: 10, Since: &since})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "recent", results[0].Point.ID)
}

func TestMemoryStorage_ScrollIgnoresVectorAndHonorsLimit(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	old := time.Unix(1000, 0).UTC()
	recent := time.Unix(2000, 0).UTC()
	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{
		point("old", nil, nil, old),
		point("recent", nil, nil, recent),
	}))

	results, err := store.Scroll(ctx, "docs", backend.Query{TopK: 1})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Zero(t, results[0].Score, "scroll results carry no similarity score")
}

func TestMemoryStorage_ScrollFiltersByConsolidationLevel(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	raw := point("raw", nil, nil, time.Now())
	raw.Payload.ConsolidationLevel = 0
	derived := point("derived", nil, nil, time.Now())
	derived.Payload.ConsolidationLevel = 1
	require.NoError(t, store.Upsert(ctx, "docs", []backend.VectorPoint{raw, derived}))

	level := 1
	results, err := store.Scroll(ctx, "docs", backend.Query{TopK: 10, ConsolidationLevel: &level})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "derived", results[0].Point.ID)
}

func TestMemoryStorage_SetIndexBuildingTracksLastValue(t *testing.T) {
	store := NewMemoryStorage()
	ctx := context.Background()

	require.NoError(t, store.SetIndexBuilding(ctx, "docs", false))
	assert.False(t, store.IndexBuilding())

	require.NoError(t, store.SetIndexBuilding(ctx, "docs", true))
	assert.True(t, store.IndexBuilding())
}

func TestMemoryStorage_IsolatedBetweenInstances(t *testing.T) {
	ctx := context.Background()
	a := NewMemoryStorage()
	b := NewMemoryStorage()

	require.NoError(t, a.Upsert(ctx, "docs", []backend.VectorPoint{point("only-in-a", []float32{1, 0}, nil, time.Now())}))

	countB, err := b.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(t, countB)
}
