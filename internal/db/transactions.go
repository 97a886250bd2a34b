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
	"strconv"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/receiptcache"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// TransactionWriter persists transactions and their actions (C5), seeding
// the receipt cache with (converted_into_receipt_id -> transaction_hash)
// entries so C6's Tier-1 lookup can resolve locally produced receipts.
type TransactionWriter struct {
	q     Querier
	cache *receiptcache.Cache
}

// NewTransactionWriter builds a TransactionWriter over q, seeding entries
// into cache as it stores transactions.
func NewTransactionWriter(q Querier, cache *receiptcache.Cache) *TransactionWriter {
	return &TransactionWriter{q: q, cache: cache}
}

// Store inserts txs for blockHeight/blockHash, seeds the cache, and runs
// the hash-collision escape hatch (spec-preserved as "_issue84_<height>").
func (w *TransactionWriter) Store(ctx context.Context, blockHash string, blockHeight string, txs []models.Transaction, actions []models.TransactionAction) error {
	// Step 2: seed the cache before anything touches the DB, so the
	// receipt writer (C6), which the orchestrator runs after this Store
	// returns, finds every entry at Tier 1.
	for _, tx := range txs {
		w.cache.Set(models.ReceiptID(tx.ConvertedIntoReceiptID), tx.Hash)
	}

	attempted := make(map[string]models.Transaction, len(txs))
	for _, tx := range txs {
		attempted[tx.Hash] = tx
	}

	if err := w.insertTransactions(ctx, txs); err != nil {
		return err
	}
	if err := w.insertActions(ctx, actions); err != nil {
		return err
	}

	// Step 5: hash-collision escape hatch. A transaction row can silently
	// fail to insert (ON CONFLICT DO NOTHING) because its hash collides
	// with an unrelated pre-existing transaction, so checking
	// transaction_hash membership can't tell "mine" from "theirs". Each
	// transaction's converted_into_receipt_id is unique to it, so we use
	// that set instead to find which of our attempted inserts actually
	// landed.
	presentReceiptIDs, err := w.presentConvertedReceiptIDs(ctx, blockHash)
	if err != nil {
		return err
	}
	if len(presentReceiptIDs) >= len(attempted) {
		return nil
	}

	var retryTxs []models.Transaction
	var retryActions []models.TransactionAction
	actionsByTxHash := make(map[string][]models.TransactionAction)
	for _, a := range actions {
		actionsByTxHash[a.TransactionHash] = append(actionsByTxHash[a.TransactionHash], a)
	}
	for hash, tx := range attempted {
		if presentReceiptIDs[tx.ConvertedIntoReceiptID] {
			continue
		}
		suffixed := tx
		suffixed.Hash = hash + "_issue84_" + blockHeight
		retryTxs = append(retryTxs, suffixed)
		for _, a := range actionsByTxHash[hash] {
			a.TransactionHash = suffixed.Hash
			retryActions = append(retryActions, a)
		}
		w.cache.Set(models.ReceiptID(tx.ConvertedIntoReceiptID), suffixed.Hash)
	}
	if len(retryTxs) == 0 {
		return nil
	}
	if err := w.insertTransactions(ctx, retryTxs); err != nil {
		return err
	}
	return w.insertActions(ctx, retryActions)
}

func (w *TransactionWriter) insertTransactions(ctx context.Context, txs []models.Transaction) error {
	for _, tx := range txs {
		tx := tx
		err := retry.Do(ctx, "db.StoreTransaction", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO transactions (
	transaction_hash, block_hash, chunk_hash, index_in_chunk, signer_id, public_key,
	nonce, receiver_id, signature, status, converted_into_receipt_id,
	receipt_conversion_gas_burnt, receipt_conversion_tokens_burnt
)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8, $9, $10, $11, $12::numeric, $13::numeric)
ON CONFLICT (transaction_hash) DO NOTHING
`,
				tx.Hash, tx.BlockHash, tx.ChunkHash, tx.IndexInChunk, tx.SignerID, tx.PublicKey,
				strconv.FormatUint(tx.Nonce, 10), tx.ReceiverID, tx.Signature, tx.Status,
				tx.ConvertedIntoReceiptID, strconv.FormatUint(tx.ConversionGasBurnt, 10),
				tx.ConversionTokensBurnt.String(),
			)
			if err != nil {
				return fmt.Errorf("db: store transaction %s: %w", tx.Hash, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *TransactionWriter) insertActions(ctx context.Context, actions []models.TransactionAction) error {
	for _, a := range actions {
		a := a
		err := retry.Do(ctx, "db.StoreTransactionAction", 0, nil, func(ctx context.Context) error {
			argsJSON, err := json.Marshal(a.Args)
			if err != nil {
				return fmt.Errorf("db: marshal transaction action args: %w", err)
			}
			var delegateJSON []byte
			if a.DelegateParameters != nil {
				delegateJSON, err = json.Marshal(a.DelegateParameters)
				if err != nil {
					return fmt.Errorf("db: marshal delegate parameters: %w", err)
				}
			}
			_, err = w.q.Exec(ctx, `
INSERT INTO transaction_actions (
	transaction_hash, index_in_transaction, action_kind, args,
	is_delegate_action, delegate_parameters, delegate_parent_index
)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (transaction_hash, index_in_transaction) DO NOTHING
`,
				a.TransactionHash, a.IndexInTransaction, string(a.ActionKind), argsJSON,
				a.IsDelegateAction, nullableJSON(delegateJSON), a.DelegateParentIndex,
			)
			if err != nil {
				return fmt.Errorf("db: store transaction action %s[%d]: %w", a.TransactionHash, a.IndexInTransaction, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *TransactionWriter) presentConvertedReceiptIDs(ctx context.Context, blockHash string) (map[string]bool, error) {
	rows, err := w.q.Query(ctx, `
SELECT converted_into_receipt_id FROM transactions WHERE block_hash = $1
`, blockHash)
	if err != nil {
		return nil, fmt.Errorf("db: query present converted_into_receipt_id: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var receiptID string
		if err := rows.Scan(&receiptID); err != nil {
			return nil, fmt.Errorf("db: scan converted_into_receipt_id: %w", err)
		}
		present[receiptID] = true
	}
	return present, rows.Err()
}

// nullableJSON returns nil (SQL NULL) for an empty/nil byte slice, and the
// slice itself otherwise -- pgx writes a zero-length []byte as an empty
// jsonb value rather than NULL, which is wrong for an optional column.
func nullableJSON(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return b
}
