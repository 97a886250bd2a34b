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
	"github.com/near/near-indexer-for-explorer-sub000/internal/xerrors"
)

// BlockWriter persists blocks (C3).
type BlockWriter struct {
	q Querier
}

// NewBlockWriter builds a BlockWriter over q.
func NewBlockWriter(q Querier) *BlockWriter {
	return &BlockWriter{q: q}
}

// Store inserts block, idempotently: a second call for the same height is
// a no-op (the stream may redeliver a block after a restart).
func (w *BlockWriter) Store(ctx context.Context, block models.Block) error {
	return retry.Do(ctx, "db.StoreBlock", 0, nil, func(ctx context.Context) error {
		_, err := w.q.Exec(ctx, `
INSERT INTO blocks (height, hash, prev_hash, timestamp, total_supply, gas_price, author_account_id)
VALUES ($1::numeric, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7)
ON CONFLICT (height) DO NOTHING
`,
			block.Height.String(), block.Hash, block.PrevHash, block.TimestampNS.String(),
			block.TotalSupply.String(), block.GasPrice.String(), block.AuthorAccountID,
		)
		if err != nil {
			return fmt.Errorf("db: store block %s: %w", block.Hash, err)
		}
		return nil
	})
}

// LatestHeight returns the highest height ingested so far, or nil if the
// blocks table is empty (a fresh indexer run).
func (w *BlockWriter) LatestHeight(ctx context.Context) (*string, error) {
	row := w.q.QueryRow(ctx, `SELECT height::text FROM blocks ORDER BY height DESC LIMIT 1`)
	var height string
	if err := row.Scan(&height); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("db: query latest block height: %w", err)
	}
	return &height, nil
}

// BoundaryBlock is the hash, height, timestamp, and total supply of the
// block BlockBeforeTimestamp finds.
type BoundaryBlock struct {
	Hash        string
	Height      string
	TimestampNS string
	TotalSupply string
}

// BlockBeforeTimestamp returns the latest block whose timestamp is <=
// targetTimestampNS, or an error wrapping xerrors.ErrNotFound if no block
// that old exists yet. The circulating-supply engine uses this to locate
// a day's boundary block.
func (w *BlockWriter) BlockBeforeTimestamp(ctx context.Context, targetTimestampNS string) (*BoundaryBlock, error) {
	row := w.q.QueryRow(ctx, `
SELECT hash, height::text, timestamp::text, total_supply::text FROM blocks
WHERE timestamp <= $1::numeric
ORDER BY timestamp DESC LIMIT 1
`, targetTimestampNS)
	var b BoundaryBlock
	if err := row.Scan(&b.Hash, &b.Height, &b.TimestampNS, &b.TotalSupply); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("db: no block at or before timestamp %s: %w", targetTimestampNS, xerrors.ErrNotFound)
		}
		return nil, fmt.Errorf("db: query block before timestamp %s: %w", targetTimestampNS, err)
	}
	return &b, nil
}
