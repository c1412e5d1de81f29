// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Checkpoint records the state of an ingestion run: the last file processed,
// run counters, and per-file content hashes. It is not part of the state
// machine in §4.9: the controller does not load, save or clear checkpoints,
// so a run never skips files recorded here.
type Checkpoint struct {
	Collection        string            `json:"collection"`
	LastProcessedFile string            `json:"last_processed_file,omitempty"`
	FilesProcessed    int               `json:"files_processed"`
	ChunksEmbedded    int               `json:"chunks_embedded"`
	BatchesUpserted   int               `json:"batches_upserted"`
	FileHashes        map[string]string `json:"file_hashes,omitempty"` // source path -> content hash
	StartTime         string            `json:"start_time"`
	LastUpdateTime    string            `json:"last_update_time"`
}

// CheckpointManager persists Checkpoint values under a configured directory.
type CheckpointManager struct {
	dir string
}

// NewCheckpointManager creates a manager rooted at dir. An empty dir falls
// back to the current working directory.
func NewCheckpointManager(dir string) *CheckpointManager {
	return &CheckpointManager{dir: dir}
}

// LoadCheckpoint loads the checkpoint for collection, returning (nil, nil)
// if none exists yet.
func (cm *CheckpointManager) LoadCheckpoint(collection string) (*Checkpoint, error) {
	path := cm.path(collection)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("parse checkpoint: %w", err)
	}
	if cp.FileHashes == nil {
		cp.FileHashes = make(map[string]string)
	}
	return &cp, nil
}

// SaveCheckpoint persists cp atomically: write to a temp file in the same
// directory, then rename over the target, so a crash mid-write never leaves
// a truncated checkpoint behind.
func (cm *CheckpointManager) SaveCheckpoint(cp *Checkpoint) error {
	path := cm.path(cp.Collection)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create checkpoint dir: %w", err)
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal checkpoint: %w", err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write checkpoint temp: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename checkpoint: %w", err)
	}
	return nil
}

// ClearCheckpoint removes the checkpoint for collection, if any. `atlas
// reset` calls it; the controller does not.
func (cm *CheckpointManager) ClearCheckpoint(collection string) error {
	path := cm.path(collection)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove checkpoint: %w", err)
	}
	return nil
}

func (cm *CheckpointManager) path(collection string) string {
	name := fmt.Sprintf("checkpoint-%s.json", collection)
	if cm.dir != "" {
		return filepath.Join(cm.dir, name)
	}
	return name
}
