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

package db

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/near/near-indexer-for-explorer-sub000/internal/metrics"
	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/receiptcache"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// nonStrictRetryBudget bounds resolver retries in non-strict mode: at
// least a few attempts even when not strict, so a momentary DB hiccup
// doesn't needlessly drop receipts.
const nonStrictRetryBudget = 4

// ReceiptWriter is the receipt resolver and writer (C6), the centerpiece
// of the pipeline: every receipt must be attributed to the transaction
// hash that ultimately caused it before it can be persisted.
type ReceiptWriter struct {
	q         Querier
	cache     *receiptcache.Cache
	strict    bool
	backoffInitial time.Duration
	backoffMax     time.Duration
	metrics        *metrics.Registry
}

// NewReceiptWriter builds a ReceiptWriter. strict controls whether
// resolution retries indefinitely (true) or gives up after
// nonStrictRetryBudget retries of tiers 2-4 (false) -- see resolveParentTx. reg may
// be nil, in which case tier resolution isn't observed.
func NewReceiptWriter(q Querier, cache *receiptcache.Cache, strict bool, reg *metrics.Registry) *ReceiptWriter {
	return &ReceiptWriter{
		q:      q,
		cache:  cache,
		strict: strict,
		backoffInitial: 100 * time.Millisecond,
		backoffMax:     120 * time.Second,
		metrics:        reg,
	}
}

// observeTier records one receipt resolving at the given tier, if a
// metrics registry was wired in.
func (w *ReceiptWriter) observeTier(tier string) {
	if w.metrics != nil {
		w.metrics.ReceiptResolutionTier.WithLabelValues(tier).Inc()
	}
}

// pendingReceipt is one receipt still awaiting resolution, keyed by the
// cache key its tier-1 lookup and later DB joins use, alongside the id
// that ultimately gets persisted in the receipts row.
type pendingReceipt struct {
	view models.ReceiptView
	key  models.ReceiptOrDataID
}

// Store resolves and persists all receipts for every chunk in shards.
func (w *ReceiptWriter) Store(ctx context.Context, shards []models.ShardView, blockHash string, blockTimestampNS string) error {
	for _, shard := range shards {
		if shard.Chunk == nil || len(shard.Chunk.Receipts) == 0 {
			continue
		}
		if err := w.storeChunkReceipts(ctx, shard.Chunk, blockHash, blockTimestampNS); err != nil {
			return err
		}
	}
	return nil
}

func (w *ReceiptWriter) storeChunkReceipts(ctx context.Context, chunk *models.ChunkView, blockHash string, blockTimestampNS string) error {
	views := make([]models.ReceiptView, len(chunk.Receipts))
	for i, r := range chunk.Receipts {
		views[i] = r.Receipt
	}

	resolved, err := w.resolveParentTx(ctx, views)
	if err != nil {
		return err
	}

	// Write phase step 2: propagate resolved action receipts' output
	// data receivers into the cache so future blocks' data receipts
	// resolve at Tier 1.
	for _, v := range views {
		if !v.Receipt.IsAction || len(v.Receipt.OutputDataReceivers) == 0 {
			continue
		}
		txHash, ok := resolved[models.ReceiptID(v.ReceiptID)]
		if !ok {
			continue
		}
		for _, recv := range v.Receipt.OutputDataReceivers {
			w.cache.Set(models.DataID(recv.DataID), txHash)
		}
	}

	var receiptRows []models.Receipt
	var actionReceipts []models.ReceiptView
	var dataReceipts []models.ReceiptView
	for idx, ir := range chunk.Receipts {
		v := ir.Receipt
		txHash, ok := resolved[models.ReceiptID(v.ReceiptID)]
		if !ok {
			logrus.WithFields(logrus.Fields{
				"receipt_id": v.ReceiptID,
				"block_hash": blockHash,
				"chunk_hash": chunk.Header.Hash,
			}).Warn("receipts: skipping receipt, parent transaction not found")
			continue
		}

		kind := models.ReceiptKindAction
		if !v.Receipt.IsAction {
			kind = models.ReceiptKindData
		}
		receiptRows = append(receiptRows, models.Receipt{
			ReceiptID:        v.ReceiptID,
			BlockHash:        blockHash,
			ChunkHash:        chunk.Header.Hash,
			IndexInChunk:     idx,
			PredecessorID:    v.PredecessorID,
			ReceiverID:       v.ReceiverID,
			Kind:             kind,
			OriginatedFromTransactionHash: txHash,
		})
		if v.Receipt.IsAction {
			actionReceipts = append(actionReceipts, v)
		} else {
			dataReceipts = append(dataReceipts, v)
		}
	}

	if err := w.insertReceipts(ctx, receiptRows, blockTimestampNS); err != nil {
		return err
	}
	if err := w.insertActionReceipts(ctx, actionReceipts, blockTimestampNS); err != nil {
		return err
	}
	return w.insertDataReceipts(ctx, dataReceipts)
}

// resolverKey returns the cache/resolution key for a receipt: by its own
// id for action receipts, by its data id for data receipts.
func resolverKey(v models.ReceiptView) models.ReceiptOrDataID {
	if v.Receipt.IsAction {
		return models.ReceiptID(v.ReceiptID)
	}
	return models.DataID(v.Receipt.DataID)
}

// resolveParentTx implements the four-tier resolver. The returned map is
// keyed the way callers consume it: action receipts by ReceiptID(own id),
// data receipts also by ReceiptID(own id) once resolved via Tier 2 (the
// DataID key is consumed, not re-exposed -- see the note in the tier-2
// comment below).
func (w *ReceiptWriter) resolveParentTx(ctx context.Context, receipts []models.ReceiptView) (map[models.ReceiptOrDataID]string, error) {
	resolved := make(map[models.ReceiptOrDataID]string)
	pending := make([]pendingReceipt, 0, len(receipts))

	// Tier 1: in-memory cache.
	for _, v := range receipts {
		key := resolverKey(v)
		if key.Kind == models.KindDataID {
			if txHash, ok := w.cache.Get(key); ok {
				w.cache.Remove(key)
				resolved[models.ReceiptID(v.ReceiptID)] = txHash
				w.observeTier("1")
				continue
			}
		} else {
			if txHash, ok := w.cache.Get(key); ok {
				resolved[key] = txHash
				w.observeTier("1")
				continue
			}
		}
		pending = append(pending, pendingReceipt{view: v, key: key})
	}

	if len(pending) == 0 {
		return resolved, nil
	}

	backoffInterval := w.backoffInitial
	retriesLeft := nonStrictRetryBudget
	for {
		var err error
		pending, err = w.resolveTiers234(ctx, pending, resolved)
		if err != nil {
			return nil, err
		}
		if len(pending) == 0 {
			return resolved, nil
		}
		if !w.strict {
			retriesLeft--
			if retriesLeft < 0 {
				for _, p := range pending {
					logrus.WithField("receipt_id", p.view.ReceiptID).Warn(
						"receipts: giving up on parent transaction resolution after retry budget exhausted")
					w.observeTier("giveup")
				}
				return resolved, nil
			}
		}

		t := time.NewTimer(backoffInterval)
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, fmt.Errorf("receipts: resolve parent tx: %w", ctx.Err())
		case <-t.C:
		}
		if backoffInterval < w.backoffMax {
			backoffInterval *= 2
			if backoffInterval > w.backoffMax {
				backoffInterval = w.backoffMax
			}
		}
	}
}

// resolveTiers234 runs tiers 2-4 against the DB for the given pending set
// and returns the still-unresolved remainder.
func (w *ReceiptWriter) resolveTiers234(ctx context.Context, pending []pendingReceipt, resolved map[models.ReceiptOrDataID]string) ([]pendingReceipt, error) {
	var dataIDs []string
	for _, p := range pending {
		if p.key.Kind == models.KindDataID {
			dataIDs = append(dataIDs, p.key.ID)
		}
	}
	if len(dataIDs) > 0 {
		byDataID, err := w.tier2DataOutputJoin(ctx, dataIDs)
		if err != nil {
			return nil, err
		}
		remaining := pending[:0]
		for _, p := range pending {
			if p.key.Kind == models.KindDataID {
				if txHash, ok := byDataID[p.key.ID]; ok {
					resolved[models.ReceiptID(p.view.ReceiptID)] = txHash
					w.observeTier("2")
					continue
				}
			}
			remaining = append(remaining, p)
		}
		pending = remaining
	}

	var actionReceiptIDs []string
	for _, p := range pending {
		if p.key.Kind == models.KindReceiptID {
			actionReceiptIDs = append(actionReceiptIDs, p.key.ID)
		}
	}
	if len(actionReceiptIDs) == 0 {
		return pending, nil
	}

	byProduced, err := w.tier3ExecutionOutcomeJoin(ctx, actionReceiptIDs)
	if err != nil {
		return nil, err
	}
	remaining := pending[:0]
	var stillUnresolved []string
	for _, p := range pending {
		if p.key.Kind == models.KindReceiptID {
			if txHash, ok := byProduced[p.key.ID]; ok {
				resolved[p.key] = txHash
				w.observeTier("3")
				continue
			}
			stillUnresolved = append(stillUnresolved, p.key.ID)
		}
		remaining = append(remaining, p)
	}
	pending = remaining

	if len(stillUnresolved) == 0 {
		return pending, nil
	}
	byConverted, err := w.tier4TransactionsJoin(ctx, stillUnresolved)
	if err != nil {
		return nil, err
	}
	remaining = pending[:0]
	for _, p := range pending {
		if p.key.Kind == models.KindReceiptID {
			if txHash, ok := byConverted[p.key.ID]; ok {
				resolved[p.key] = txHash
				w.observeTier("4")
				continue
			}
		}
		remaining = append(remaining, p)
	}
	return remaining, nil
}

func (w *ReceiptWriter) tier2DataOutputJoin(ctx context.Context, dataIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	err := retry.Do(ctx, "db.ReceiptsTier2DataOutputJoin", 0, nil, func(ctx context.Context) error {
		rows, err := w.q.Query(ctx, `
SELECT o.output_data_id, r.originated_from_transaction_hash
FROM action_receipt_output_data o
JOIN receipts r ON o.output_from_receipt_id = r.receipt_id
WHERE o.output_data_id = ANY($1)
`, dataIDs)
		if err != nil {
			return fmt.Errorf("receipts: tier2 data-output join: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var dataID, txHash string
			if err := rows.Scan(&dataID, &txHash); err != nil {
				return fmt.Errorf("receipts: tier2 scan: %w", err)
			}
			out[dataID] = txHash
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *ReceiptWriter) tier3ExecutionOutcomeJoin(ctx context.Context, receiptIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	err := retry.Do(ctx, "db.ReceiptsTier3ExecutionOutcomeJoin", 0, nil, func(ctx context.Context) error {
		rows, err := w.q.Query(ctx, `
SELECT eor.produced_receipt_id, r.originated_from_transaction_hash
FROM execution_outcome_receipts eor
JOIN receipts r ON eor.executed_receipt_id = r.receipt_id
WHERE eor.produced_receipt_id = ANY($1)
`, receiptIDs)
		if err != nil {
			return fmt.Errorf("receipts: tier3 execution-outcome join: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var producedID, txHash string
			if err := rows.Scan(&producedID, &txHash); err != nil {
				return fmt.Errorf("receipts: tier3 scan: %w", err)
			}
			out[producedID] = txHash
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *ReceiptWriter) tier4TransactionsJoin(ctx context.Context, receiptIDs []string) (map[string]string, error) {
	out := make(map[string]string)
	err := retry.Do(ctx, "db.ReceiptsTier4TransactionsJoin", 0, nil, func(ctx context.Context) error {
		rows, err := w.q.Query(ctx, `
SELECT converted_into_receipt_id, transaction_hash
FROM transactions
WHERE converted_into_receipt_id = ANY($1)
`, receiptIDs)
		if err != nil {
			return fmt.Errorf("receipts: tier4 transactions join: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var receiptID, txHash string
			if err := rows.Scan(&receiptID, &txHash); err != nil {
				return fmt.Errorf("receipts: tier4 scan: %w", err)
			}
			out[receiptID] = txHash
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (w *ReceiptWriter) insertReceipts(ctx context.Context, rows []models.Receipt, blockTimestampNS string) error {
	for _, r := range rows {
		r := r
		err := retry.Do(ctx, "db.StoreReceipt", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO receipts (
	receipt_id, block_hash, chunk_hash, index_in_chunk, block_timestamp,
	predecessor_id, receiver_id, receipt_kind, originated_from_transaction_hash
)
VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9)
ON CONFLICT (receipt_id) DO NOTHING
`,
				r.ReceiptID, r.BlockHash, r.ChunkHash, r.IndexInChunk, blockTimestampNS,
				r.PredecessorID, r.ReceiverID, string(r.Kind), r.OriginatedFromTransactionHash,
			)
			if err != nil {
				return fmt.Errorf("db: insert receipt %s: %w", r.ReceiptID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *ReceiptWriter) insertActionReceipts(ctx context.Context, views []models.ReceiptView, blockTimestampNS string) error {
	for _, v := range views {
		v := v
		err := retry.Do(ctx, "db.StoreActionReceipt", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO action_receipts (receipt_id, signer_id, signer_public_key, gas_price)
VALUES ($1, $2, $3, $4::numeric)
ON CONFLICT (receipt_id) DO NOTHING
`,
				v.ReceiptID, v.Receipt.SignerID, v.Receipt.SignerPublicKey, v.Receipt.GasPrice,
			)
			if err != nil {
				return fmt.Errorf("db: insert action_receipt %s: %w", v.ReceiptID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}

		if err := w.insertActionReceiptActions(ctx, v, blockTimestampNS); err != nil {
			return err
		}
		for _, dataID := range v.Receipt.InputDataIDs {
			dataID := dataID
			err := retry.Do(ctx, "db.StoreActionReceiptInputData", 0, nil, func(ctx context.Context) error {
				_, err := w.q.Exec(ctx, `
INSERT INTO action_receipt_input_data (input_data_id, input_to_receipt_id)
VALUES ($1, $2)
ON CONFLICT (input_data_id, input_to_receipt_id) DO NOTHING
`, dataID, v.ReceiptID)
				if err != nil {
					return fmt.Errorf("db: insert action_receipt_input_data %s: %w", dataID, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
		for _, recv := range v.Receipt.OutputDataReceivers {
			recv := recv
			err := retry.Do(ctx, "db.StoreActionReceiptOutputData", 0, nil, func(ctx context.Context) error {
				_, err := w.q.Exec(ctx, `
INSERT INTO action_receipt_output_data (output_data_id, output_from_receipt_id, receiver_id)
VALUES ($1, $2, $3)
ON CONFLICT (output_data_id, output_from_receipt_id) DO NOTHING
`, recv.DataID, v.ReceiptID, recv.ReceiverID)
				if err != nil {
					return fmt.Errorf("db: insert action_receipt_output_data %s: %w", recv.DataID, err)
				}
				return nil
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// insertActionReceiptActions flattens Delegate actions identically to the
// transaction-action writer: one outer row plus one inner row per nested
// action, linked by delegate_parent_index.
func (w *ReceiptWriter) insertActionReceiptActions(ctx context.Context, v models.ReceiptView, blockTimestampNS string) error {
	index := 0
	insert := func(kind models.ActionKind, args map[string]interface{}, isDelegate bool, delegateParams map[string]interface{}, parentIdx *int) error {
		argsJSON, err := json.Marshal(args)
		if err != nil {
			return fmt.Errorf("db: marshal action_receipt_action args: %w", err)
		}
		var delegateJSON []byte
		if delegateParams != nil {
			delegateJSON, err = json.Marshal(delegateParams)
			if err != nil {
				return fmt.Errorf("db: marshal delegate parameters: %w", err)
			}
		}
		idx := index
		err = retry.Do(ctx, "db.StoreActionReceiptAction", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO action_receipt_actions (
	receipt_id, index_in_action_receipt, action_kind, args, predecessor_id,
	receiver_id, block_timestamp, is_delegate_action, delegate_parameters, delegate_parent_index
)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10)
ON CONFLICT (receipt_id, index_in_action_receipt) DO NOTHING
`,
				v.ReceiptID, idx, string(kind), argsJSON, v.PredecessorID, v.ReceiverID,
				blockTimestampNS, isDelegate, nullableJSON(delegateJSON), parentIdx,
			)
			if err != nil {
				return fmt.Errorf("db: insert action_receipt_action %s[%d]: %w", v.ReceiptID, idx, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
		index++
		return nil
	}

	for _, a := range v.Receipt.Actions {
		if !a.IsDelegateAction {
			if err := insert(a.Kind, a.Args, false, nil, nil); err != nil {
				return err
			}
			continue
		}
		parentIdx := index
		if err := insert(a.Kind, a.Args, true, a.DelegateParameters, nil); err != nil {
			return err
		}
		for _, inner := range a.DelegateActions {
			p := parentIdx
			if err := insert(inner.Kind, inner.Args, false, nil, &p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *ReceiptWriter) insertDataReceipts(ctx context.Context, views []models.ReceiptView) error {
	for _, v := range views {
		v := v
		err := retry.Do(ctx, "db.StoreDataReceipt", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO data_receipts (data_id, receipt_id, data)
VALUES ($1, $2, $3)
ON CONFLICT (data_id) DO NOTHING
`, v.Receipt.DataID, v.ReceiptID, nullableBytes(v.Receipt.Data))
			if err != nil {
				return fmt.Errorf("db: insert data_receipt %s: %w", v.Receipt.DataID, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func nullableBytes(b []byte) interface{} {
	if b == nil {
		return nil
	}
	return b
}
