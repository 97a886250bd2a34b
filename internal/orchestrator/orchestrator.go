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

// Package orchestrator sequences one StreamerMessage through the fixed
// write DAG (C10): store_block, store_chunks, store_transactions,
// store_receipts, then store_execution_outcomes,
// handle_accounts/handle_access_keys, store_events, and
// store_account_changes concurrently. It owns the receipt cache's
// lifetime across the whole run, handing it by reference to the stages
// that need it.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/near/near-indexer-for-explorer-sub000/internal/db"
	"github.com/near/near-indexer-for-explorer-sub000/internal/metrics"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/receiptcache"
)

// Extractor turns a raw StreamerMessage into the row sets each writer
// consumes. It's a plain function type rather than an interface so a
// caller can swap in a pure function without a wrapper struct.
type Extractor func(msg models.StreamerMessage) (Extracted, error)

// Extracted is every row set derivable from one StreamerMessage, ready to
// hand to the writers. Fields match each writer's Store signature.
type Extracted struct {
	Block        models.Block
	Chunks       []models.Chunk
	Transactions []models.Transaction
	TransactionActions []models.TransactionAction
	AccountChanges      []models.AccountChange

	CreatedAccounts map[string]string // account id -> causing receipt id
	DeletedAccounts map[string]string
	ImplicitTransferTargets map[string]string

	AccessKeyAdds    map[db.AccessKeyID]db.AccessKeyAdd
	AccessKeyDeletes map[db.AccessKeyID]string
}

// Orchestrator runs the per-block write DAG against a shared DB connection
// and receipt cache. It takes db.Querier rather than *db.Pool so tests can
// substitute a fake without a real Postgres instance.
type Orchestrator struct {
	q      db.Querier
	cache  *receiptcache.Cache
	strict bool
	metrics *metrics.Registry

	extract Extractor
}

// New builds an Orchestrator. strict is threaded into the receipt writer
// to select its retry-budget behavior.
func New(q db.Querier, cache *receiptcache.Cache, strict bool, reg *metrics.Registry, extract Extractor) *Orchestrator {
	return &Orchestrator{q: q, cache: cache, strict: strict, metrics: reg, extract: extract}
}

// ProcessBlock runs the fixed DAG for one StreamerMessage.
func (o *Orchestrator) ProcessBlock(ctx context.Context, msg models.StreamerMessage) error {
	start := time.Now()
	extracted, err := o.extract(msg)
	if err != nil {
		return fmt.Errorf("orchestrator: extract block %s: %w", msg.Block.Hash, err)
	}

	blockWriter := db.NewBlockWriter(o.q)
	chunkWriter := db.NewChunkWriter(o.q)
	txWriter := db.NewTransactionWriter(o.q, o.cache)
	receiptWriter := db.NewReceiptWriter(o.q, o.cache, o.strict, o.metrics)
	outcomeWriter := db.NewOutcomeWriter(o.q)
	accountWriter := db.NewAccountWriter(o.q)
	accessKeyWriter := db.NewAccessKeyWriter(o.q)
	eventWriter := db.NewEventWriter(o.q, o.metrics)
	accountChangeWriter := db.NewAccountChangeWriter(o.q)

	// Step 1-2: store_block, then store_chunks. Both are prerequisites
	// for every later step (foreign keys on blocks.hash/chunks.hash).
	if err := blockWriter.Store(ctx, extracted.Block); err != nil {
		return fmt.Errorf("orchestrator: store_block: %w", err)
	}
	if err := chunkWriter.Store(ctx, extracted.Chunks); err != nil {
		return fmt.Errorf("orchestrator: store_chunks: %w", err)
	}

	// Step 3: store_transactions, then store_receipts. store_transactions
	// seeds the receipt cache with converted_into_receipt_id -> tx_hash
	// before store_receipts' Tier-1 lookup runs against that same cache,
	// so these two stay sequential rather than joining the later
	// errgroup -- running them concurrently would race the seed write
	// against the read it exists to satisfy.
	if err := txWriter.Store(ctx, msg.Block.Hash, msg.Block.Height.String(), extracted.Transactions, extracted.TransactionActions); err != nil {
		return fmt.Errorf("orchestrator: store_transactions: %w", err)
	}
	if err := receiptWriter.Store(ctx, msg.Shards, msg.Block.Hash, msg.Block.TimestampNS.String()); err != nil {
		return fmt.Errorf("orchestrator: store_receipts: %w", err)
	}

	// Step 4: outcomes, accounts/access-keys, events, account-changes in
	// parallel -- none of these depend on each other, only on the
	// receipts/transactions already committed above.
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := outcomeWriter.Store(gctx, msg.Shards, msg.Block.Hash, msg.Block.TimestampNS.String()); err != nil {
			return fmt.Errorf("store_execution_outcomes: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := accountWriter.Store(gctx, msg.Block.Height.String(), extracted.CreatedAccounts, extracted.DeletedAccounts, extracted.ImplicitTransferTargets); err != nil {
			return fmt.Errorf("handle_accounts: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := accessKeyWriter.Store(gctx, msg.Block.Height.String(), extracted.AccessKeyAdds, extracted.AccessKeyDeletes); err != nil {
			return fmt.Errorf("handle_access_keys: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		if err := eventWriter.Store(gctx, msg.Shards); err != nil {
			return fmt.Errorf("store_events: %w", err)
		}
		return nil
	})
	if len(extracted.AccountChanges) > 0 {
		g.Go(func() error {
			if err := accountChangeWriter.Store(gctx, extracted.AccountChanges); err != nil {
				return fmt.Errorf("store_account_changes: %w", err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("orchestrator: block %s: %w", msg.Block.Hash, err)
	}

	if o.metrics != nil {
		o.metrics.BlocksIndexed.Inc()
		o.metrics.ChunksIndexed.Add(float64(len(extracted.Chunks)))
		o.metrics.TransactionsIndexed.Add(float64(len(extracted.Transactions)))
		o.metrics.ReceiptCacheSize.Set(float64(o.cache.Len()))

		var receiptCount, outcomeCount int
		for _, shard := range msg.Shards {
			if shard.Chunk != nil {
				receiptCount += len(shard.Chunk.Receipts)
			}
			outcomeCount += len(shard.ReceiptExecutionOutcomes)
		}
		o.metrics.ReceiptsIndexed.Add(float64(receiptCount))
		o.metrics.OutcomesIndexed.Add(float64(outcomeCount))
		o.metrics.BlockProcessingSeconds.Observe(time.Since(start).Seconds())
	}
	return nil
}
