// Copyright 2024 by the Authors
// This file is part of near-indexer-for-explorer-sub000.
//
// near-indexer-for-explorer-sub000 is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// near-indexer-for-explorer-sub000 is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with near-indexer-for-explorer-sub000. If not, see <http://www.gnu.org/licenses/>.

// Package metrics exposes the pipeline's throughput and contention
// counters via a standard Prometheus registry. Exposition (the HTTP
// handler, scrape config) is an external concern; this package only
// defines and updates the series.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds every metric the indexer and circulating-supply engine
// update. Constructed once at startup and passed down by reference.
type Registry struct {
	BlocksIndexed       prometheus.Counter
	ChunksIndexed       prometheus.Counter
	TransactionsIndexed prometheus.Counter
	ReceiptsIndexed     prometheus.Counter
	OutcomesIndexed     prometheus.Counter
	EventsIndexed       *prometheus.CounterVec

	ReceiptResolutionTier *prometheus.CounterVec
	ReceiptCacheSize       prometheus.Gauge

	BlockProcessingSeconds prometheus.Histogram
	WriterRetries           *prometheus.CounterVec

	CirculatingSupplyComputations prometheus.Counter
	CirculatingSupplyValue         prometheus.Gauge
}

// NewRegistry builds a Registry and registers every series on reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BlocksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "blocks_indexed_total",
			Help: "Number of blocks successfully written.",
		}),
		ChunksIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "chunks_indexed_total",
			Help: "Number of chunks successfully written.",
		}),
		TransactionsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "transactions_indexed_total",
			Help: "Number of transactions successfully written.",
		}),
		ReceiptsIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "receipts_indexed_total",
			Help: "Number of receipts successfully written.",
		}),
		OutcomesIndexed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "execution_outcomes_indexed_total",
			Help: "Number of execution outcomes successfully written.",
		}),
		EventsIndexed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "events_indexed_total",
			Help: "Number of NEP standard events indexed, by standard and kind.",
		}, []string{"standard", "kind"}),
		ReceiptResolutionTier: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "receipt_resolution_tier_total",
			Help: "Receipts resolved to a parent transaction hash, by resolution tier.",
		}, []string{"tier"}),
		ReceiptCacheSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "near_indexer", Name: "receipt_cache_size",
			Help: "Current number of entries held by the receipt cache.",
		}),
		BlockProcessingSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "near_indexer", Name: "block_processing_seconds",
			Help:    "Wall-clock seconds to process one block through the orchestrator DAG.",
			Buckets: prometheus.DefBuckets,
		}),
		WriterRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "writer_retries_total",
			Help: "Number of retry attempts, by writer component.",
		}, []string{"component"}),
		CirculatingSupplyComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "near_indexer", Name: "circulating_supply_computations_total",
			Help: "Number of circulating supply rows computed and persisted.",
		}),
		CirculatingSupplyValue: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "near_indexer", Name: "circulating_supply_value",
			Help: "Most recently computed circulating supply, in yoctoNEAR.",
		}),
	}

	reg.MustRegister(
		r.BlocksIndexed, r.ChunksIndexed, r.TransactionsIndexed, r.ReceiptsIndexed,
		r.OutcomesIndexed, r.EventsIndexed, r.ReceiptResolutionTier, r.ReceiptCacheSize,
		r.BlockProcessingSeconds, r.WriterRetries,
		r.CirculatingSupplyComputations, r.CirculatingSupplyValue,
	)
	return r
}
