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
	"fmt"
	"strconv"

	"github.com/near/near-indexer-for-explorer-sub000/internal/models"
	"github.com/near/near-indexer-for-explorer-sub000/internal/retry"
)

// ChunkWriter persists chunks (C4).
type ChunkWriter struct {
	q Querier
}

// NewChunkWriter builds a ChunkWriter over q.
func NewChunkWriter(q Querier) *ChunkWriter {
	return &ChunkWriter{q: q}
}

// Store inserts one row per chunk, conflict-do-nothing on hash.
func (w *ChunkWriter) Store(ctx context.Context, chunks []models.Chunk) error {
	for _, c := range chunks {
		c := c
		err := retry.Do(ctx, "db.StoreChunk", 0, nil, func(ctx context.Context) error {
			_, err := w.q.Exec(ctx, `
INSERT INTO chunks (block_hash, hash, shard_id, signature, gas_limit, gas_used, author_account_id)
VALUES ($1, $2, $3::numeric, $4, $5::numeric, $6::numeric, $7)
ON CONFLICT (hash) DO NOTHING
`,
				c.BlockHash, c.Hash, strconv.FormatUint(c.ShardID, 10), c.Signature,
				strconv.FormatUint(c.GasLimit, 10), strconv.FormatUint(c.GasUsed, 10), c.AuthorAccountID,
			)
			if err != nil {
				return fmt.Errorf("db: store chunk %s: %w", c.Hash, err)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}
