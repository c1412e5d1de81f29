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
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// metricsIngestion holds Prometheus metrics for the ingestion subsystem.
type metricsIngestion struct {
	once sync.Once

	filesRead    prometheus.Counter
	chunksMade   prometheus.Counter
	chunksEmbedded prometheus.Counter
	embedErrors  prometheus.Counter
	embedRetries prometheus.Counter

	keysGenerated prometheus.Counter
	keyGenErrors  prometheus.Counter
	keyGenReused  prometheus.Counter

	batchesUpserted prometheus.Counter
	pointsUpserted  prometheus.Counter

	rerankFallbacks prometheus.Counter

	adaptiveConcurrency prometheus.Gauge

	readDuration   prometheus.Histogram
	embedDuration  prometheus.Histogram
	keygenDuration prometheus.Histogram
	upsertDuration prometheus.Histogram
	totalDuration  prometheus.Histogram
}

var ingMetrics metricsIngestion

func (m *metricsIngestion) init() {
	m.once.Do(func() {
		m.filesRead = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_files_read_total", Help: "Files read by the ingestion controller"})
		m.chunksMade = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_chunks_made_total", Help: "Chunks produced by the splitter"})
		m.chunksEmbedded = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_chunks_embedded_total", Help: "Chunks successfully embedded"})
		m.embedErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_embed_errors_total", Help: "Embedding provider errors"})
		m.embedRetries = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_embed_retries_total", Help: "Embedding retries"})

		m.keysGenerated = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_keys_generated_total", Help: "QNTM keys generated"})
		m.keyGenErrors = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_keygen_errors_total", Help: "Key generation provider errors"})
		m.keyGenReused = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_keygen_reused_total", Help: "Keys canonicalized to an existing dictionary entry"})

		m.batchesUpserted = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_batches_upserted_total", Help: "Batches upserted to storage"})
		m.pointsUpserted = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ing_points_upserted_total", Help: "Vector points upserted to storage"})

		m.rerankFallbacks = prometheus.NewCounter(prometheus.CounterOpts{Name: "atlas_ret_rerank_fallbacks_total", Help: "Retrieval calls whose rerank fell back to vector-only ordering"})

		m.adaptiveConcurrency = prometheus.NewGauge(prometheus.GaugeOpts{Name: "atlas_ing_adaptive_concurrency", Help: "Current adaptiveParallel concurrency level"})

		buckets := []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}
		m.readDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "atlas_ing_read_seconds", Help: "Duration of read+chunk", Buckets: buckets})
		m.embedDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "atlas_ing_embed_seconds", Help: "Duration of the embed stage", Buckets: buckets})
		m.keygenDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "atlas_ing_keygen_seconds", Help: "Duration of the key-generation stage", Buckets: buckets})
		m.upsertDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "atlas_ing_upsert_seconds", Help: "Duration of batch upsert", Buckets: buckets})
		m.totalDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "atlas_ing_total_seconds", Help: "Duration of a full ingestion run", Buckets: buckets})

		prometheus.MustRegister(
			m.filesRead, m.chunksMade, m.chunksEmbedded, m.embedErrors, m.embedRetries,
			m.keysGenerated, m.keyGenErrors, m.keyGenReused,
			m.batchesUpserted, m.pointsUpserted,
			m.rerankFallbacks,
			m.adaptiveConcurrency,
			m.readDuration, m.embedDuration, m.keygenDuration, m.upsertDuration, m.totalDuration,
		)
	})
}

func recordFileRead()          { ingMetrics.init(); ingMetrics.filesRead.Inc() }
func recordChunkMade(n int)    { ingMetrics.init(); ingMetrics.chunksMade.Add(float64(n)) }
func recordChunkEmbedded()     { ingMetrics.init(); ingMetrics.chunksEmbedded.Inc() }
func recordEmbedError()        { ingMetrics.init(); ingMetrics.embedErrors.Inc() }
func recordEmbedRetry()        { ingMetrics.init(); ingMetrics.embedRetries.Inc() }
func recordKeysGenerated(n int) { ingMetrics.init(); ingMetrics.keysGenerated.Add(float64(n)) }
func recordKeyGenError()       { ingMetrics.init(); ingMetrics.keyGenErrors.Inc() }
func recordKeyReused()         { ingMetrics.init(); ingMetrics.keyGenReused.Inc() }
func recordBatchUpserted(points int) {
	ingMetrics.init()
	ingMetrics.batchesUpserted.Inc()
	ingMetrics.pointsUpserted.Add(float64(points))
}
func recordRerankFallback()       { ingMetrics.init(); ingMetrics.rerankFallbacks.Inc() }
func setAdaptiveConcurrency(n int) { ingMetrics.init(); ingMetrics.adaptiveConcurrency.Set(float64(n)) }

// RecordRerankFallback is the exported entry point pkg/retrieval uses to
// count a rerank call that fell back to vector-only ordering; the counter
// itself lives here so every Prometheus metric the pipeline registers goes
// through one lazy sync.Once registration.
func RecordRerankFallback() { recordRerankFallback() }
