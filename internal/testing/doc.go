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

// Package testing provides a shared in-memory backend.Storage for tests that
// exercise ingestion or retrieval without a live Qdrant instance.
//
// # Quick Start
//
//	func TestMyFeature(t *testing.T) {
//	    store := testing.NewMemoryStorage()
//	    reg := registry.New(nil)
//	    reg.Register(backend.CapabilityVectorStorage, "mem", store)
//
//	    // ingest or query through store as a normal backend.Storage
//	}
//
// NewMemoryStorage returns a Storage that keeps points in a map and answers
// Query with brute-force cosine similarity against the named vector space,
// honoring QNTM key and since/until filters the same way pkg/storage's
// Qdrant-backed implementation does. It is meant for unit and table-driven
// tests of pkg/pipeline and pkg/retrieval, not for load or benchmark testing.
package testing
