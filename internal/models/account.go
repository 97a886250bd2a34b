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

// Account is the row tracking an account's creation/deletion lifecycle.
// LastUpdateBlockHeight updates must be monotonic: a write carrying a lower
// height than what's stored is a no-op (see AccountWriter).
type Account struct {
	AccountID           string
	CreatedByReceiptID *string
	DeletedByReceiptID *string
	LastUpdateBlockHeight *big.Int
}

// AccessKey is the row tracking one (public_key, account_id) key's
// lifecycle. Same monotonicity invariant as Account.
type AccessKey struct {
	PublicKey             string
	AccountID              string
	CreatedByReceiptID    *string
	DeletedByReceiptID    *string
	PermissionKind         AccessKeyPermissionKind
	LastUpdateBlockHeight *big.Int
}

// AccountChange is one (block_hash, index_in_block) row recording a single
// state change with its cause, for explorer "account activity" views. Not
// central to the causality engine; written by the optional
// store_account_changes step in the orchestrator DAG.
type AccountChange struct {
	BlockHash        string
	IndexInBlock     int
	AffectedAccountID string
	CauseTransactionHash *string
	CauseReceiptID        *string
	UpdateReason          StateChangeValueKind
	NonStakedBalance      decimal.Decimal
	StakedBalance         decimal.Decimal
	StorageUsage          uint64
}
