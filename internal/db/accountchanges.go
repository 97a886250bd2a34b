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

// This writer is a supplement over the distilled pipeline: the upstream
// explorer backend persists one row per state change for its account
// "activity" views, a feature the distillation dropped but original_source
// implements (crate::models::account_changes). store_account_changes is
// optional in the orchestrator DAG precisely because nothing downstream in
// the causality engine depends on it.
package db

import (
	"context"
	"fmt"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// AccountChangeWriter persists one row per state change with its cause.
type AccountChangeWriter struct {
	q Querier
}

// NewAccountChangeWriter builds an AccountChangeWriter over q.
func NewAccountChangeWriter(q Querier) *AccountChangeWriter {
	return &AccountChangeWriter{q: q}
}

// Store persists rows, each keyed by (block_hash, index_in_block).
func (w *AccountChangeWriter) Store(ctx context.Context, rows []models.AccountChange) error {
	for _, r := range rows {
		r := r
		err := retry.Do(ctx, "db.StoreAccountChange", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO account_changes (
	block_hash, index_in_block, affected_account_id, cause_transaction_hash, cause_receipt_id,
	update_reason, nonstaked_balance, staked_balance, storage_usage
)
VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric)
ON CONFLICT (block_hash, index_in_block) DO NOTHING
`,
				r.BlockHash, r.IndexInBlock, r.AffectedAccountID, r.CauseTransactionHash, r.CauseReceiptID,
				string(r.UpdateReason), r.NonStakedBalance.String(), r.StakedBalance.String(), r.StorageUsage,
			)
			if err != nil {
				return fmt.Errorf("db: insert account_change %s[%d]: %w", r.BlockHash, r.IndexInBlock, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
