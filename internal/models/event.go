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

import "github.com/shopspring/decimal"

// FungibleTokenEvent is one row per nep141 ft_mint/ft_transfer/ft_burn
// event, parsed from an EVENT_JSON log line.
type FungibleTokenEvent struct {
	EmittedForReceiptID string
	ShardID              uint64
	IndexInShard          int
	ContractAccountID   string
	Kind                  EventKind
	OldOwnerID           string
	NewOwnerID           string
	Amount                decimal.Decimal
	Memo                  string
}

// NonFungibleTokenEvent is one row per nep171 nft_mint/nft_transfer/nft_burn
// event; one row per token id in the event's data array.
type NonFungibleTokenEvent struct {
	EmittedForReceiptID string
	ShardID              uint64
	IndexInShard          int
	ContractAccountID   string
	Kind                  EventKind
	TokenID               string
	OldOwnerID           string
	NewOwnerID           string
	AuthorizerID         string
	Memo                  string
}

// EventEnvelope is the tagged-union document format of an EVENT_JSON log,
// per spec.md §4.9 / §6.
type EventEnvelope struct {
	Standard EventStandard          `json:"standard"`
	Version  string                 `json:"version"`
	Event    EventKind               `json:"event"`
	Data     []map[string]interface{} `json:"data"`
}
