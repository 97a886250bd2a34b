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
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// SupplyWriter persists the daily circulating-supply row computed by the
// circulating-supply engine (C12).
type SupplyWriter struct {
	q Querier
}

// NewSupplyWriter builds a SupplyWriter over q.
func NewSupplyWriter(q Querier) *SupplyWriter {
	return &SupplyWriter{q: q}
}

// Store inserts row, conflict-do-nothing on its timestamp key (the engine
// computes at most one row per UTC day).
func (w *SupplyWriter) Store(ctx context.Context, row models.CirculatingSupplyRow) error {
	return retry.Do(ctx, "db.StoreCirculatingSupply", 0, nil, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
INSERT INTO aggregated__circulating_supply (
	computed_at_block_timestamp, computed_at_block_hash, circulating_tokens_supply, total_tokens_supply,
	total_lockup_contracts_count, unfinished_lockup_contracts_count, foundation_locked_tokens, lockups_locked_tokens
)
VALUES ($1::numeric, $2, $3::numeric, $4::numeric, $5, $6, $7::numeric, $8::numeric)
ON CONFLICT (computed_at_block_timestamp) DO NOTHING
`,
			row.ComputedAtBlockTimestampNS.String(), row.BlockHash, row.CirculatingSupply.String(),
			row.TotalSupply.String(), row.LockupsCount, row.UnfinishedLockupsCount,
			row.FoundationLockedTokens.String(), row.LockupsLockedTokens.String(),
		)
		if err != nil {
			return fmt.Errorf("db: store circulating supply row: %w", err)
		}
		return nil
	})
}

// LatestComputedAt returns the timestamp (nanoseconds) of the most
// recently persisted row, or nil if none exist yet.
func (w *SupplyWriter) LatestComputedAt(ctx context.Context) (*string, error) {
	row := w.q.QueryRow(ctx, `
SELECT computed_at_block_timestamp::text FROM aggregated__circulating_supply
ORDER BY computed_at_block_timestamp DESC LIMIT 1
`)
	var ts string
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: query latest circulating supply timestamp: %w", err)
	}
	return &ts, nil
}
