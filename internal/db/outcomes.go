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
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// OutcomeWriter persists execution outcomes (C7). Outcomes are written
// only for receipts already present in the receipts table: writing an
// outcome for a receipt this block skipped (e.g. unresolved parent tx in
// non-strict mode) would violate the foreign key, and silently dropping
// that outcome is the correct behavior in a replay.
type OutcomeWriter struct {
	q Querier
}

// NewOutcomeWriter builds an OutcomeWriter over q.
func NewOutcomeWriter(q Querier) *OutcomeWriter {
	return &OutcomeWriter{q: q}
}

type shardOutcome struct {
	shardID uint64
	outcome models.ReceiptExecutionOutcomeView
}

// Store filters outcomes down to the ones whose receipt_id already has a
// receipts row, then persists those and their produced-receipt edges.
func (w *OutcomeWriter) Store(ctx context.Context, shards []models.ShardView, blockHash string, blockTimestampNS string) error {
	var all []shardOutcome
	for _, s := range shards {
		for _, o := range s.ReceiptExecutionOutcomes {
			all = append(all, shardOutcome{shardID: s.ShardID, outcome: o})
		}
	}
	if len(all) == 0 {
		return nil
	}

	ids := make([]string, len(all))
	for i, o := range all {
		ids[i] = o.outcome.Outcome.ReceiptID
	}
	present, err := w.presentReceiptIDs(ctx, ids)
	if err != nil {
		return err
	}

	for _, o := range all {
		if !present[o.outcome.Outcome.ReceiptID] {
			continue
		}
		if err := w.insertOutcome(ctx, o, blockHash, blockTimestampNS); err != nil {
			return err
		}
	}
	return nil
}

func (w *OutcomeWriter) presentReceiptIDs(ctx context.Context, ids []string) (map[string]bool, error) {
	rows, err := w.q.Query(ctx, `SELECT receipt_id FROM receipts WHERE receipt_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("db: query present receipt ids for outcomes: %w", err)
	}
	defer rows.Close()

	present := make(map[string]bool)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("db: scan receipt id: %w", err)
		}
		present[id] = true
	}
	return present, rows.Err()
}

func (w *OutcomeWriter) insertOutcome(ctx context.Context, o shardOutcome, blockHash string, blockTimestampNS string) error {
	return retry.Do(ctx, "db.StoreExecutionOutcome", 0, nil, func(ctx context.Context) error {
		logsJSON, err := json.Marshal(o.outcome.Outcome.Outcome.Logs)
		if err != nil {
			return fmt.Errorf("db: marshal outcome logs: %w", err)
		}
		_, err = w.q.Exec(ctx, `
INSERT INTO execution_outcomes (
	receipt_id, executed_in_block_hash, executed_in_block_timestamp, index_in_chunk,
	gas_burnt, tokens_burnt, executor_account_id, status, shard_id, logs
)
VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6::numeric, $7, $8, $9::numeric, $10)
ON CONFLICT (receipt_id) DO NOTHING
`,
			o.outcome.Outcome.ReceiptID, blockHash, blockTimestampNS, o.outcome.Outcome.IndexInChunk,
			strconv.FormatUint(o.outcome.Outcome.Outcome.GasBurnt, 10), o.outcome.Outcome.Outcome.TokensBurnt,
			o.outcome.Outcome.Outcome.ExecutorAccountID, string(o.outcome.Outcome.Outcome.Status),
			strconv.FormatUint(o.shardID, 10), logsJSON,
		)
		if err != nil {
			return fmt.Errorf("db: insert execution_outcome %s: %w", o.outcome.Outcome.ReceiptID, err)
		}

		for idx, producedID := range o.outcome.Outcome.Outcome.ReceiptIDs {
			_, err := w.q.Exec(ctx, `
INSERT INTO execution_outcome_receipts (executed_receipt_id, produced_index, produced_receipt_id)
VALUES ($1, $2, $3)
ON CONFLICT (executed_receipt_id, produced_index) DO NOTHING
`, o.outcome.Outcome.ReceiptID, idx, producedID)
			if err != nil {
				return fmt.Errorf("db: insert execution_outcome_receipt %s[%d]: %w", o.outcome.Outcome.ReceiptID, idx, err)
			}
		}
		return nil
	})
}
