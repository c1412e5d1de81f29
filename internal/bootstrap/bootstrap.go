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

package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kraklabs/atlas/internal/config"
	"github.com/kraklabs/atlas/pkg/backend"
	"github.com/kraklabs/atlas/pkg/storage"
)

// CollectionInfo holds information about an initialized Atlas collection.
type CollectionInfo struct {
	Collection string
	DSN        string
	Vectors    map[string]int
}

// InitCollection opens the Qdrant storage backend and ensures the named-vector
// collection exists. This function is idempotent: calling it multiple times
// is safe, matching the rest of the ingestion pipeline's re-run guarantees.
//
// The function:
//  1. Opens the storage backend from cfg.Backends.Storage
//  2. Confirms the backend is reachable
//  3. Creates the collection's named-vector spaces if they don't exist
func InitCollection(ctx context.Context, cfg *config.Config, vectorDimensions map[string]int, logger *slog.Logger) (*CollectionInfo, error) {
	if logger == nil {
		logger = slog.Default()
	}

	collection, err := storage.ParseDSNCollection(cfg.Backends.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	logger.Info("bootstrap.collection.init.start",
		"collection", collection,
		"dsn", cfg.Backends.Storage,
	)

	store, err := storage.Open(cfg.Backends.Storage)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: open storage: %w", err)
	}
	defer func() { _ = store.Close() }()

	if err := store.IsAvailable(ctx); err != nil {
		return nil, fmt.Errorf("bootstrap: storage unavailable: %w", err)
	}

	if err := store.EnsureCollection(ctx, collection, vectorDimensions); err != nil {
		return nil, fmt.Errorf("bootstrap: ensure collection: %w", err)
	}

	logger.Info("bootstrap.collection.init.success",
		"collection", collection,
	)

	return &CollectionInfo{
		Collection: collection,
		DSN:        cfg.Backends.Storage,
		Vectors:    vectorDimensions,
	}, nil
}

// OpenStorage opens the configured storage backend for read/write access
// without re-running EnsureCollection, for callers (search, timeline) that
// only need a live connection to an already-initialized collection.
func OpenStorage(cfg *config.Config) (backend.Storage, string, error) {
	collection, err := storage.ParseDSNCollection(cfg.Backends.Storage)
	if err != nil {
		return nil, "", fmt.Errorf("bootstrap: %w", err)
	}
	store, err := storage.Open(cfg.Backends.Storage)
	if err != nil {
		return nil, "", fmt.Errorf("bootstrap: open storage: %w", err)
	}
	return store, collection, nil
}
