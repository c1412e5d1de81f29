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
)

// KeyGenConcurrency is the §4.7 adaptiveParallel configuration: the
// key-generation stage is both the slowest and the most rate-sensitive part
// of the pipeline, so it runs under adaptive control rather than a fixed
// concurrency.
var KeyGenConcurrency = AdaptiveOptions{
	InitialConcurrency: 8,
	Min:                2,
	Max:                16,
	MonitoringInterval: 30 * time.Second,
}

// KeyedRecord is an EmbeddedRecord after the key-generation stage has
// attached its QNTM keys, with the existing-key dictionary's casing applied.
type KeyedRecord struct {
	EmbeddedRecord
	QNTMKeys []string
}

// GenerateKeysForRecord invokes ic's key generator for one embedded record,
// pausing first if the pause controller reports paused (§4.7, §4.12), then
// replaces each returned key with the ingest context's existing-key
// dictionary casing where one matches. It does not sanitize keys itself;
// llm.KeyGenerator sanitizes its own output before returning it.
func GenerateKeysForRecord(ctx context.Context, ic *IngestContext, pc *PauseController, rec EmbeddedRecord) (KeyedRecord, error) {
	if pc != nil {
		if err := pc.WaitForResume(ctx); err != nil {
			return KeyedRecord{}, err
		}
		pc.RegisterInFlight()
		defer pc.CompleteInFlight()
	}

	start := time.Now()
	defer func() { recordKeygenDuration(time.Since(start)) }()

	kg, err := ic.KeyGenerator()
	if err != nil {
		return KeyedRecord{}, fmt.Errorf("keygen stage: %w", err)
	}

	raw, err := kg.GenerateKeys(ctx, rec.Text, ic.ExistingKeys)
	if err != nil {
		recordKeyGenError()
		return KeyedRecord{}, fmt.Errorf("keygen stage: %q chunk %d: %w", rec.SourcePath, rec.ChunkIndex, err)
	}

	keys := canonicalizeAgainstDictionary(ic, raw)
	recordKeysGenerated(len(keys))

	return KeyedRecord{EmbeddedRecord: rec, QNTMKeys: keys}, nil
}

// canonicalizeAgainstDictionary replaces each generated key with the
// dictionary's canonical casing when one case-insensitively matches (§4.7
// reuse policy); keys with no dictionary match pass through unchanged.
func canonicalizeAgainstDictionary(ic *IngestContext, keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		if canon, ok := ic.HasExistingKey(k); ok {
			out[i] = canon
			recordKeyReused()
		} else {
			out[i] = k
		}
	}
	return out
}

func recordKeygenDuration(d time.Duration) {
	ingMetrics.init()
	ingMetrics.keygenDuration.Observe(d.Seconds())
}
