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

package models

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// Block is the row persisted for each block header. Immutable once
// written; re-ingesting the same height/hash is a no-op (see BlockWriter.Store).
type Block struct {
	Height     *big.Int // arbitrary-precision block height
	Hash       string
	PrevHash   string
	TimestampNS *big.Int // nanoseconds since epoch, arbitrary-precision
	TotalSupply decimal.Decimal // up to 128 bits
	GasPrice    decimal.Decimal
	AuthorAccountID string
}

// Chunk is the row persisted for each shard's chunk within a block.
type Chunk struct {
	Hash          string
	BlockHash     string
	ShardID       uint64
	GasUsed       uint64
	GasLimit      uint64
	AuthorAccountID string
	Signature     string
}
