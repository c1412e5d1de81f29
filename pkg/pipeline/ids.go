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

// Package pipeline implements the ingestion pipeline: the async-iterator
// primitives (§4.3), the ingest context (§4.4), read+chunk (§4.5), the embed
// stage (§4.6), the key-generation stage (§4.7), batch upsert (§4.8), the
// ingestion controller and its state machine (§4.9), and the pause
// controller (§4.12).
package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
)

// GenerateChunkID produces the deterministic external id for a chunk:
// hash(normalized source path + chunk index). Re-ingesting the same file
// reproduces the same ids so batch upsert overwrites rather than duplicates.
func GenerateChunkID(sourcePath string, chunkIndex int) string {
	normalized := normalizePath(sourcePath)
	idStr := fmt.Sprintf("%s|%d", normalized, chunkIndex)
	hash := sha256.Sum256([]byte(idStr))
	return fmt.Sprintf("chunk:%s", hex.EncodeToString(hash[:16]))
}

// normalizePath normalizes a file path for consistent id generation: strips
// a leading "./", cleans redundant separators, and forces forward slashes so
// ids are stable across platforms.
func normalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	path = filepath.ToSlash(path)
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}
