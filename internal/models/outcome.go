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

// ExecutionOutcome is the row persisted for a receipt's execution result.
// Only written for receipts already present in the receipts table (C7).
type ExecutionOutcome struct {
	ReceiptID          string
	ExecutedInBlockHash string
	ExecutedInBlockTimestampNS *big.Int
	IndexInChunk        int
	GasBurnt            uint64
	TokensBurnt         decimal.Decimal
	ExecutorAccountID string
	Status              ExecutionStatus
	ShardID             uint64
	Logs                []string
}

// ExecutionOutcomeReceipt is one (executed_receipt_id, produced_index) edge
// recording that executing a receipt produced another receipt.
type ExecutionOutcomeReceipt struct {
	ExecutedReceiptID string
	ProducedIndex      int
	ProducedReceiptID string
}
