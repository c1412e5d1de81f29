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
	"math"
	"sort"
	"sync"

	"github.com/kraklabs/atlas/pkg/backend"
)

// MemoryStorage is an in-memory backend.Storage. Upsert stores points keyed
// by id; Query does brute-force cosine similarity against the requested
// named vector, applying the same QNTM-key and since/until filters the
// Qdrant-backed storage applies server-side.
type MemoryStorage struct {
	mu         sync.Mutex
	points     map[string]backend.VectorPoint
	indexBuild bool
}

// NewMemoryStorage returns an empty MemoryStorage ready to register under
// backend.CapabilityVectorStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{points: make(map[string]backend.VectorPoint)}
}

func (m *MemoryStorage) Name() string { return "memory" }

func (m *MemoryStorage) Supports(c backend.Capability) bool {
	return c == backend.CapabilityVectorStorage
}

func (m *MemoryStorage) IsAvailable(ctx context.Context) error { return nil }

func (m *MemoryStorage) EnsureCollection(ctx context.Context, name string, vectorDimensions map[string]int) error {
	return nil
}

func (m *MemoryStorage) Upsert(ctx context.Context, collection string, points []backend.VectorPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.points[p.ID] = p
	}
	return nil
}

func (m *MemoryStorage) Query(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []backend.ScoredPoint
	for _, p := range m.points {
		vec, ok := namedVector(p, q.VectorName)
		if !ok {
			continue
		}
		if !matchesKeys(p.Payload.QNTMKeys, q.QNTMKeys) {
			continue
		}
		if !inTimeRange(p.Payload.IngestedAt.Unix(), q.Since, q.Until) {
			continue
		}
		if q.ConsolidationLevel != nil && p.Payload.ConsolidationLevel != *q.ConsolidationLevel {
			continue
		}
		candidates = append(candidates, backend.ScoredPoint{
			Point: p.Payload,
			Score: cosineSimilarity(vec, q.Vector),
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	topK := q.TopK
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK], nil
}

func (m *MemoryStorage) Scroll(ctx context.Context, collection string, q backend.Query) ([]backend.ScoredPoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var candidates []backend.ScoredPoint
	for _, p := range m.points {
		if !matchesKeys(p.Payload.QNTMKeys, q.QNTMKeys) {
			continue
		}
		if !inTimeRange(p.Payload.IngestedAt.Unix(), q.Since, q.Until) {
			continue
		}
		if q.ConsolidationLevel != nil && p.Payload.ConsolidationLevel != *q.ConsolidationLevel {
			continue
		}
		candidates = append(candidates, backend.ScoredPoint{Point: p.Payload})
	}

	topK := q.TopK
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}
	return candidates[:topK], nil
}

func (m *MemoryStorage) Count(ctx context.Context, collection string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.points)), nil
}

func (m *MemoryStorage) SetIndexBuilding(ctx context.Context, collection string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.indexBuild = enabled
	return nil
}

// IndexBuilding reports the last value passed to SetIndexBuilding, so tests
// can assert the batch-upsert stage toggled it around a large run.
func (m *MemoryStorage) IndexBuilding() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.indexBuild
}

func (m *MemoryStorage) Close() error { return nil }

func namedVector(p backend.VectorPoint, name string) ([]float32, bool) {
	for _, v := range p.Vectors {
		if v.Name == name {
			return v.Values, true
		}
	}
	return nil, false
}

func matchesKeys(have, want []string) bool {
	if len(want) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(have))
	for _, k := range have {
		set[k] = struct{}{}
	}
	for _, k := range want {
		if _, ok := set[k]; ok {
			return true
		}
	}
	return false
}

func inTimeRange(unix int64, since, until *int64) bool {
	if since != nil && unix < *since {
		return false
	}
	if until != nil && unix >= *until {
		return false
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}
