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

// Transaction is the row persisted for each signed transaction included in
// a chunk. Hash may carry the "_issue84_<height>" collision-escape suffix
// (see TransactionWriter) when the natural hash already exists for a
// different transaction.
type Transaction struct {
	Hash               string
	BlockHash          string
	ChunkHash          string
	SignerID           string
	PublicKey          string
	Nonce              uint64
	ReceiverID         string
	Signature          string
	Status             string
	ConvertedIntoReceiptID string // first action receipt produced by this tx
	ConversionGasBurnt    uint64
	ConversionTokensBurnt decimal.Decimal
	IndexInChunk          int
	BlockHeight           *big.Int
}

// TransactionAction is one (transaction_hash, index_in_transaction) action row.
type TransactionAction struct {
	TransactionHash  string
	IndexInTransaction int
	ActionKind        ActionKind
	Args              map[string]interface{}

	IsDelegateAction     bool
	DelegateParameters   map[string]interface{}
	DelegateParentIndex *int // nil for the outer Delegate row and for non-delegate rows
}
