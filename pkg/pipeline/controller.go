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

	"github.com/kraklabs/atlas/pkg/backend"
)

// State is the ingestion controller's run state (§4.9):
// Idle -> PreparingCollection -> Running -> (Paused <-> Running)* -> Finalizing -> Done|Failed.
type State string

const (
	StateIdle                State = "idle"
	StatePreparingCollection State = "preparing_collection"
	StateRunning             State = "running"
	StatePaused              State = "paused"
	StateFinalizing          State = "finalizing"
	StateDone                State = "done"
	StateFailed              State = "failed"
)

// IngestOptions configures a single Run call.
type IngestOptions struct {
	Paths              []string
	ExcludeGlobs       []string
	Recursive          bool
	ChunkMinChars      int
	BatchHNSWThreshold int
	VectorDimensions   map[string]int
	Importance         string
}

// IngestResult is the summary the controller returns on exit (§4.9 step 7).
type IngestResult struct {
	FilesProcessed int
	ChunksStored   int
	Errors         []ReadChunkError
	BatchMode      bool
}

// Controller orchestrates one ingest call end to end: collection
// preparation, key-dictionary fetch, path expansion, batch-mode decision,
// and the read+chunk -> embed -> key-gen -> upsert stream.
type Controller struct {
	ic     *IngestContext
	pause  *PauseController
	logger *slog.Logger

	state State
}

// NewController creates a controller bound to an ingest context and a
// (possibly shared, possibly nil) pause controller. A nil pause controller
// disables pause coordination entirely.
func NewController(ic *IngestContext, pause *PauseController, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{ic: ic, pause: pause, logger: logger, state: StateIdle}
}

// State returns the controller's current run state.
func (c *Controller) State() State { return c.state }

func (c *Controller) setState(s State) {
	c.state = s
	c.logger.Info("pipeline.controller.state", "state", s)
}

// Run executes the full §4.9 orchestration and returns the per-run summary.
// Per-file read errors are collected in the result and do not abort the run;
// a pipeline-level error (e.g. the collection can't be ensured, or a fatal
// storage error) aborts the run and transitions to Failed, but batches
// already upserted before the failure remain durable.
func (c *Controller) Run(ctx context.Context, opts IngestOptions) (*IngestResult, error) {
	result := &IngestResult{}

	// Step 1: ensure the collection exists with the right vector spec.
	c.setState(StatePreparingCollection)
	st, err := c.ic.Storage()
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("controller: %w", err)
	}
	if err := st.EnsureCollection(ctx, c.ic.Collection, opts.VectorDimensions); err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("controller: ensure collection: %w", err)
	}

	// Step 2: existing-key dictionary was already supplied to NewIngestContext
	// by the caller, or is empty — it is fetched once, outside the run loop,
	// because it is shared across the whole ingest call.

	// Step 3: expand path inputs into a file list.
	files, err := ExpandPaths(opts.Paths, opts.ExcludeGlobs, opts.Recursive)
	if err != nil {
		c.setState(StateFailed)
		return nil, fmt.Errorf("controller: expand paths: %w", err)
	}

	// Step 4: decide batch mode.
	threshold := opts.BatchHNSWThreshold
	batchMode := threshold > 0 && len(files) >= threshold
	result.BatchMode = batchMode
	if batchMode {
		if err := st.SetIndexBuilding(ctx, c.ic.Collection, false); err != nil {
			c.logger.Warn("pipeline.controller.batch_mode_disable_failed", "err", err)
			batchMode = false
		} else {
			c.logger.Info("pipeline.controller.batch_mode_enabled", "files", len(files), "threshold", threshold)
		}
	}
	defer func() {
		if batchMode {
			if err := st.SetIndexBuilding(ctx, c.ic.Collection, true); err != nil {
				c.logger.Warn("pipeline.controller.batch_mode_reenable_failed", "err", err)
			}
		}
	}()

	// Step 5: the pause controller doubles as the consolidation watchdog's
	// coordination point; nothing to start here beyond what NewController
	// already wired up.

	// Step 6: stream files through read+chunk -> embed -> key-gen -> upsert.
	c.setState(StateRunning)
	if err := c.runStream(ctx, files, opts, result); err != nil {
		c.setState(StateFailed)
		return result, fmt.Errorf("controller: %w", err)
	}

	// Step 7.
	c.setState(StateFinalizing)
	c.setState(StateDone)
	return result, nil
}

func (c *Controller) runStream(ctx context.Context, files []string, opts IngestOptions, result *IngestResult) error {
	importance := backendImportance(opts.Importance)

	chunkMin := opts.ChunkMinChars
	if chunkMin <= 0 {
		chunkMin = 200
	}

	var allRecords []ReadChunkRecord
	for _, f := range files {
		if c.pause != nil {
			if c.pause.IsPaused() {
				c.setState(StatePaused)
			}
			if err := c.pause.WaitForResume(ctx); err != nil {
				return err
			}
			if c.state == StatePaused {
				c.setState(StateRunning)
			}
			c.pause.RegisterInFlight()
		}

		sp, err := c.ic.Splitter()
		if err != nil {
			if c.pause != nil {
				c.pause.CompleteInFlight()
			}
			return fmt.Errorf("splitter: %w", err)
		}

		records, err := ReadAndChunk(ctx, sp, c.ic.Root, f, chunkMin, c.logger)
		if c.pause != nil {
			c.pause.CompleteInFlight()
		}
		if err != nil {
			result.Errors = append(result.Errors, ReadChunkError{Path: f, Err: err})
			c.logger.Warn("pipeline.controller.read_error", "path", f, "err", err)
			continue
		}
		result.FilesProcessed++
		allRecords = append(allRecords, records...)
	}

	groups := GroupBySourceFile(allRecords)

	embedSource := make(chan fileChunkGroup)
	go func() {
		defer close(embedSource)
		for _, g := range groups {
			select {
			case embedSource <- g:
			case <-ctx.Done():
				return
			}
		}
	}()

	embedded, embedErrs := Parallel(ctx, embedSource, func(ctx context.Context, g fileChunkGroup) ([]EmbeddedRecord, error) {
		return EmbedFile(ctx, c.ic, g, c.logger)
	}, EmbedConcurrency)

	flatEmbedded := make(chan EmbeddedRecord)
	go func() {
		defer close(flatEmbedded)
		for recs := range embedded {
			for _, r := range recs {
				select {
				case flatEmbedded <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	keyed, keygenErrs := AdaptiveParallel(ctx, flatEmbedded, func(ctx context.Context, r EmbeddedRecord) (KeyedRecord, error) {
		return GenerateKeysForRecord(ctx, c.ic, c.pause, r)
	}, KeyGenConcurrency)

	points := make(chan backend.VectorPoint)
	go func() {
		defer close(points)
		for k := range keyed {
			select {
			case points <- BuildPoint(k, importance):
			case <-ctx.Done():
				return
			}
		}
	}()

	batches := Batch(ctx, points, UpsertBatchOptions)

	st, err := c.ic.Storage()
	if err != nil {
		return err
	}

	for batch := range batches {
		if err := UpsertBatch(ctx, st, c.ic.Collection, batch); err != nil {
			return err
		}
		result.ChunksStored += len(batch)
	}

	if err := <-embedErrs; err != nil {
		return fmt.Errorf("embed stage: %w", err)
	}
	if err := <-keygenErrs; err != nil {
		return fmt.Errorf("keygen stage: %w", err)
	}
	return nil
}

func backendImportance(s string) backend.Importance {
	switch backend.Importance(s) {
	case backend.ImportanceLow, backend.ImportanceHigh:
		return backend.Importance(s)
	default:
		return backend.ImportanceNormal
	}
}
