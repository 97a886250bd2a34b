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

// CirculatingSupplyRow is the single aggregated row persisted per UTC day by
// the circulating-supply engine (C12).
type CirculatingSupplyRow struct {
	ComputedAtBlockTimestampNS *big.Int
	BlockHash                   string
	TotalSupply                  decimal.Decimal
	CirculatingSupply            decimal.Decimal
	FoundationLockedTokens       decimal.Decimal
	LockupsLockedTokens          decimal.Decimal
	LockupsCount                  int
	UnfinishedLockupsCount        int
}
